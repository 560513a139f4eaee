package modules

import (
	"embed"
	"io/fs"
	"sync"
)

// Identifiers of the framework's built-in compiled modules
const (
	DocumentModuleID   = "lvt/dist/pages/_document"
	AppModuleID        = "lvt/dist/pages/_app"
	ErrorRouteModuleID = "lvt/dist/server/route-modules/pages/builtin/_error"
)

//go:embed all:dist
var builtinModules embed.FS

// Builtin returns the filesystem holding the built-in module descriptors and templates
func Builtin() fs.FS {
	return builtinModules
}

var defaultRegistry = sync.OnceValue(func() *Registry {
	return NewRegistry(builtinModules)
})

// DefaultRegistry returns the process-wide registry of built-in modules
func DefaultRegistry() *Registry {
	return defaultRegistry()
}
