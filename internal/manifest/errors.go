package manifest

import (
	"fmt"
)

// Op names the stage of a manifest load that failed
type Op string

const (
	OpRead     Op = "read"
	OpParse    Op = "parse"
	OpValidate Op = "validate"
)

// ManifestError is returned when a manifest cannot be loaded
type ManifestError struct {
	Path string
	Op   Op
	Err  error
}

func (e *ManifestError) Error() string {
	return fmt.Sprintf("failed to %s manifest at %s: %v", e.Op, e.Path, e.Err)
}

func (e *ManifestError) Unwrap() error {
	return e.Err
}
