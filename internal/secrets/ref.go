// Package secrets resolves secret references to payloads.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// LatestVersion selects the newest version of a secret.
const LatestVersion = "latest"

var (
	// ErrNotFound is returned when the secret or version does not exist.
	ErrNotFound = errors.New("secret not found")
	// ErrInvalidRef is returned for references that cannot be qualified.
	ErrInvalidRef = errors.New("invalid secret reference")
)

// Store fetches secret payloads by fully-qualified reference.
// Implementations may block on network I/O.
type Store interface {
	Access(ctx context.Context, ref string) ([]byte, error)
}

// Ref is a fully-qualified secret version reference.
type Ref struct {
	Project  string
	SecretID string
	Version  string
}

func (r Ref) String() string {
	return fmt.Sprintf("projects/%s/secrets/%s/versions/%s", r.Project, r.SecretID, r.Version)
}

// NormalizeRef qualifies ref into projects/<p>/secrets/<id>/versions/<v>.
//
// Accepted forms:
//
//	projects/<p>/secrets/<id>/versions/<v>
//	projects/<p>/secrets/<id>
//	<id>/versions/<v>
//	<id>:<v>
//	<id>
//
// Bare forms need projectID. A missing version becomes defaultVersion, or
// "latest" when that is empty.
func NormalizeRef(ref, projectID, defaultVersion string) (Ref, error) {
	ref = strings.TrimSpace(ref)
	if defaultVersion == "" {
		defaultVersion = LatestVersion
	}
	if ref == "" {
		return Ref{}, fmt.Errorf("%w: empty", ErrInvalidRef)
	}

	if strings.HasPrefix(ref, "projects/") {
		parts := strings.Split(ref, "/")
		switch {
		case len(parts) == 4 && parts[2] == "secrets":
			return build(parts[1], parts[3], defaultVersion, ref)
		case len(parts) == 6 && parts[2] == "secrets" && parts[4] == "versions":
			return build(parts[1], parts[3], parts[5], ref)
		default:
			return Ref{}, fmt.Errorf("%w: %q", ErrInvalidRef, ref)
		}
	}

	if strings.TrimSpace(projectID) == "" {
		return Ref{}, fmt.Errorf("%w: %q needs a project id", ErrInvalidRef, ref)
	}

	id, version := ref, defaultVersion
	if before, after, ok := strings.Cut(ref, "/versions/"); ok {
		id, version = before, after
	} else if before, after, ok := strings.Cut(ref, ":"); ok {
		id, version = before, after
	}
	if version == "" {
		version = defaultVersion
	}
	return build(strings.TrimSpace(projectID), id, version, ref)
}

func build(project, id, version, raw string) (Ref, error) {
	if project == "" || id == "" || version == "" || strings.Contains(id, "/") || strings.Contains(version, "/") {
		return Ref{}, fmt.Errorf("%w: %q", ErrInvalidRef, raw)
	}
	return Ref{Project: project, SecretID: id, Version: version}, nil
}

// ParseRef parses a fully-qualified reference without defaults.
func ParseRef(ref string) (Ref, error) {
	parts := strings.Split(strings.TrimSpace(ref), "/")
	if len(parts) != 6 || parts[0] != "projects" || parts[2] != "secrets" || parts[4] != "versions" {
		return Ref{}, fmt.Errorf("%w: %q is not fully qualified", ErrInvalidRef, ref)
	}
	return build(parts[1], parts[3], parts[5], ref)
}
