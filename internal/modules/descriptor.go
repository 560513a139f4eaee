package modules

import (
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	DescriptorFileName = "module.yaml"

	// IDPrefix is the namespace every framework module identifier lives under
	IDPrefix = "lvt/"
)

// ModuleKind is the kind of compiled unit a descriptor produces
type ModuleKind string

const (
	KindDocument ModuleKind = "document"
	KindApp      ModuleKind = "app"
	KindRoute    ModuleKind = "route"
)

// RouteDescriptor is the route block of a route module descriptor
type RouteDescriptor struct {
	Kind       RouteKind `yaml:"kind" validate:"required,oneof=PAGES PAGES_API APP_PAGE APP_ROUTE"`
	Page       string    `yaml:"page" validate:"required,startswith=/"`
	Pathname   string    `yaml:"pathname" validate:"required,startswith=/"`
	Filename   string    `yaml:"filename,omitempty"`
	BundlePath string    `yaml:"bundle_path,omitempty"`
}

// Descriptor is the module.yaml file structure
type Descriptor struct {
	ID        string           `yaml:"id" validate:"required,startswith=lvt/"`
	Kind      ModuleKind       `yaml:"kind" validate:"required,oneof=document app route"`
	Templates []string         `yaml:"templates" validate:"required,min=1,dive,required"`
	Minify    bool             `yaml:"minify,omitempty"`
	Route     *RouteDescriptor `yaml:"route,omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks if the descriptor is valid
func (d *Descriptor) Validate() error {
	if err := validate.Struct(d); err != nil {
		return err
	}
	if d.Kind == KindRoute && d.Route == nil {
		return fmt.Errorf("route module %s has no route block", d.ID)
	}
	if d.Kind != KindRoute && d.Route != nil {
		return fmt.Errorf("%s module %s must not declare a route block", d.Kind, d.ID)
	}
	return nil
}

// descriptorDir maps a module identifier to its directory inside the module FS
func descriptorDir(id string) (string, bool) {
	rest, ok := strings.CutPrefix(id, IDPrefix)
	if !ok || rest == "" {
		return "", false
	}
	dir := path.Clean(rest)
	if !fs.ValidPath(dir) {
		return "", false
	}
	return dir, true
}

// LoadDescriptor loads and validates the descriptor of a module directory
func LoadDescriptor(fsys fs.FS, dir string) (*Descriptor, error) {
	descriptorPath := path.Join(dir, DescriptorFileName)

	data, err := fs.ReadFile(fsys, descriptorPath)
	if err != nil {
		return nil, err
	}

	var d Descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, ErrDescriptorParse{
			Path: descriptorPath,
			Err:  fmt.Errorf("failed to parse YAML: %w", err),
		}
	}

	if err := d.Validate(); err != nil {
		return nil, ErrDescriptorParse{Path: descriptorPath, Err: err}
	}

	return &d, nil
}
