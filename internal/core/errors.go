package core

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Typed errors below unwrap to one of these so callers
// can classify failures with errors.Is.
var (
	// ErrInvalidSource indicates that a source string matches no recognized shape.
	ErrInvalidSource = errors.New("invalid source")

	// ErrFetch indicates that a source could not be materialized locally.
	ErrFetch = errors.New("fetch failed")

	// ErrNoSkillsFound indicates that discovery exhausted every location.
	ErrNoSkillsFound = errors.New("no skills found")

	// ErrValidation indicates malformed frontmatter or a duplicate skill name.
	ErrValidation = errors.New("validation failed")

	// ErrConflict indicates a foreign file at an install destination.
	ErrConflict = errors.New("destination conflict")

	// ErrAllConflicts indicates that every target in a plan conflicts.
	ErrAllConflicts = errors.New("every install target conflicts with an existing file")

	// ErrInstall indicates a filesystem failure on one install operation.
	ErrInstall = errors.New("install failed")

	// ErrManifestCorruption indicates unreadable or invalid persisted state.
	ErrManifestCorruption = errors.New("manifest is corrupt")

	// ErrUnknownAgent indicates an agent id missing from the registry.
	ErrUnknownAgent = errors.New("unknown agent")
)

// ValidationError reports a structural problem with one or more skill files.
type ValidationError struct {
	Message string
	Paths   []string
}

func (e *ValidationError) Error() string {
	if len(e.Paths) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, strings.Join(e.Paths, ", "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ConflictError reports a destination occupied by a file this tool did not install.
type ConflictError struct {
	AgentID     string
	Destination string
	Reason      string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.AgentID, e.Reason, e.Destination)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// InstallError reports a filesystem failure for one operation.
type InstallError struct {
	AgentID     string
	SkillName   string
	Destination string
	Err         error
}

func (e *InstallError) Error() string {
	return fmt.Sprintf("installing %s for %s: %v", e.SkillName, e.AgentID, e.Err)
}

// Unwrap exposes both the sentinel and the underlying cause.
func (e *InstallError) Unwrap() []error { return []error{ErrInstall, e.Err} }

// ManifestCorruptionError reports a manifest file that cannot be trusted.
type ManifestCorruptionError struct {
	Path string
	Err  error
}

func (e *ManifestCorruptionError) Error() string {
	return fmt.Sprintf("manifest %s is corrupt: %v", e.Path, e.Err)
}

func (e *ManifestCorruptionError) Unwrap() []error { return []error{ErrManifestCorruption, e.Err} }

func invalidSource(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidSource, fmt.Sprintf(format, args...))
}
