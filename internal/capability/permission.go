package capability

import (
	"errors"
	"fmt"
	"strings"
)

// Permission is a named capability an API key or access token may exercise.
type Permission string

const (
	// PermStream allows fetching decrypted audio chunks
	PermStream Permission = "stream"
	// PermDownloadPreview allows fetching low-bitrate preview chunks
	PermDownloadPreview Permission = "download-preview"
	// PermIssueToken allows requesting access tokens
	PermIssueToken Permission = "issue-token"
	// PermIngest allows uploading encrypted chunks into the store
	PermIngest Permission = "ingest"
)

// ErrInsufficientScope is returned when a required permission is missing.
var ErrInsufficientScope = errors.New("insufficient scope")

// ErrUnknownPermission is returned when parsing an unrecognized permission name.
var ErrUnknownPermission = errors.New("unknown permission")

// ParsePermission validates a permission name.
func ParsePermission(s string) (Permission, error) {
	switch p := Permission(s); p {
	case PermStream, PermDownloadPreview, PermIssueToken, PermIngest:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPermission, s)
}

// ParsePermissions parses a comma-separated scope list, e.g. "stream,issue-token".
func ParsePermissions(s string) ([]Permission, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	perms := make([]Permission, 0, len(parts))
	for _, part := range parts {
		p, err := ParsePermission(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, nil
}

// Authorize checks that every required permission is present in the held set.
// Pure function, no side effects.
func Authorize(have, need []Permission) error {
	for _, n := range need {
		if !contains(have, n) {
			return fmt.Errorf("%w: missing %q", ErrInsufficientScope, n)
		}
	}
	return nil
}

func contains(perms []Permission, p Permission) bool {
	for _, have := range perms {
		if have == p {
			return true
		}
	}
	return false
}

// Join renders a permission set as a comma-separated string for storage.
func Join(perms []Permission) string {
	parts := make([]string, len(perms))
	for i, p := range perms {
		parts[i] = string(p)
	}
	return strings.Join(parts, ",")
}
