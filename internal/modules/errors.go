package modules

import (
	"fmt"
)

// ErrModuleNotFound is returned when no module is registered under an identifier
type ErrModuleNotFound struct {
	ID  string
	Err error
}

func (e ErrModuleNotFound) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("module not found: %s: %v", e.ID, e.Err)
	}
	return fmt.Sprintf("module not found: %s", e.ID)
}

func (e ErrModuleNotFound) Unwrap() error {
	return e.Err
}

// ErrMalformedModule is returned when a module loads but does not have the expected shape
type ErrMalformedModule struct {
	ID     string
	Reason string
}

func (e ErrMalformedModule) Error() string {
	return fmt.Sprintf("malformed module %s: %s", e.ID, e.Reason)
}

// ErrDescriptorParse is returned when a module descriptor cannot be parsed or validated
type ErrDescriptorParse struct {
	Path string
	Err  error
}

func (e ErrDescriptorParse) Error() string {
	return fmt.Sprintf("failed to parse module descriptor at %s: %v", e.Path, e.Err)
}

func (e ErrDescriptorParse) Unwrap() error {
	return e.Err
}

// ErrTemplateParse is returned when a module template cannot be read or parsed
type ErrTemplateParse struct {
	Path string
	Err  error
}

func (e ErrTemplateParse) Error() string {
	return fmt.Sprintf("failed to parse template at %s: %v", e.Path, e.Err)
}

func (e ErrTemplateParse) Unwrap() error {
	return e.Err
}
