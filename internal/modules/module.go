package modules

import (
	"fmt"
	"sort"
)

// DefaultExport is the export name a module's default value is stored under
const DefaultExport = "default"

// Module is a compiled unit resolved by the Registry.
//
// A Module is immutable once Require has returned it; every caller asking for
// the same ID receives the same *Module.
type Module struct {
	ID       string
	ESModule bool           // Exports carry a "default" entry rather than being the value itself
	Exports  map[string]any // Named exports
}

// Export returns the named export and whether it exists
func (m *Module) Export(name string) (any, bool) {
	if m == nil || m.Exports == nil {
		return nil, false
	}
	v, ok := m.Exports[name]
	return v, ok
}

// ExportNames returns the sorted export names of the module
func (m *Module) ExportNames() []string {
	names := make([]string, 0, len(m.Exports))
	for name := range m.Exports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveDefaultExport unwraps one level of module interop.
//
// It returns the module's default export when it holds a T, and otherwise the
// module value itself when that is a T. Anything else is a malformed module.
func ResolveDefaultExport[T any](m *Module) (T, error) {
	var zero T
	if m == nil {
		return zero, ErrMalformedModule{Reason: "module is nil"}
	}

	if v, ok := m.Export(DefaultExport); ok && v != nil {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
		return zero, ErrMalformedModule{
			ID:     m.ID,
			Reason: fmt.Sprintf("default export is %T, want %T", v, zero),
		}
	}

	if typed, ok := any(m).(T); ok {
		return typed, nil
	}

	return zero, ErrMalformedModule{
		ID:     m.ID,
		Reason: fmt.Sprintf("no default export of type %T", zero),
	}
}

// ExportAs returns the named export asserted to T
func ExportAs[T any](m *Module, name string) (T, error) {
	var zero T
	if m == nil {
		return zero, ErrMalformedModule{Reason: "module is nil"}
	}
	v, ok := m.Export(name)
	if !ok || v == nil {
		return zero, ErrMalformedModule{ID: m.ID, Reason: fmt.Sprintf("missing export %q", name)}
	}
	typed, ok := v.(T)
	if !ok {
		return zero, ErrMalformedModule{
			ID:     m.ID,
			Reason: fmt.Sprintf("export %q is %T, want %T", name, v, zero),
		}
	}
	return typed, nil
}
