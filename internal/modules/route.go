package modules

// RouteKind classifies a route module
type RouteKind string

const (
	RouteKindPages    RouteKind = "PAGES"
	RouteKindPagesAPI RouteKind = "PAGES_API"
	RouteKindAppPage  RouteKind = "APP_PAGE"
	RouteKindAppRoute RouteKind = "APP_ROUTE"
)

// RouteExport is the export name a route module is stored under
const RouteExport = "routeModule"

// RouteDefinition describes where a route module is mounted
type RouteDefinition struct {
	Kind       RouteKind
	Page       string
	Pathname   string
	Filename   string
	BundlePath string
}

// Userland holds what the page author exported
type Userland struct {
	Default *Page
}

// RouteModule bundles a page's render logic with its route metadata
type RouteModule struct {
	Definition RouteDefinition
	Userland   Userland
}
