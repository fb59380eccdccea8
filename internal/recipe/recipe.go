// Package recipe models the service's dependency manifest: the settings
// axes a build is configured along, the generators it emits, the pinned
// name/version requirements and the output layout convention. The manifest
// is static data; loading it twice yields the same result.
package recipe

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const SupportedSchema = "v1"

//go:embed recipe.yml
var defaultRecipe []byte

type Descriptor struct {
	SchemaVersion string   `yaml:"schema_version"`
	Settings      []string `yaml:"settings"`
	Generators    []string `yaml:"generators"`
	Requires      []string `yaml:"requires"`
	Layout        string   `yaml:"layout"`
}

type Requirement struct {
	Name    string
	Version string
}

func (r Requirement) String() string { return r.Name + "/" + r.Version }

var (
	namePattern    = regexp.MustCompile(`^[a-z0-9][a-z0-9_.+-]*$`)
	versionPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._+-]*$`)
)

// ParseRequirement splits a "name/version" specifier.
func ParseRequirement(s string) (Requirement, error) {
	name, version, ok := strings.Cut(s, "/")
	if !ok || strings.Contains(version, "/") {
		return Requirement{}, fmt.Errorf("requirement %q: want name/version", s)
	}
	if !namePattern.MatchString(name) {
		return Requirement{}, fmt.Errorf("requirement %q: invalid package name", s)
	}
	if !versionPattern.MatchString(version) {
		return Requirement{}, fmt.Errorf("requirement %q: invalid version", s)
	}
	return Requirement{Name: name, Version: version}, nil
}

// Load reads a descriptor from a YAML file.
func Load(p string) (Descriptor, error) {
	raw, err := os.ReadFile(p)
	if err != nil {
		return Descriptor{}, fmt.Errorf("recipe %s: %w", p, err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (Descriptor, error) {
	var d Descriptor
	if err := yaml.Unmarshal(raw, &d); err != nil {
		return d, fmt.Errorf("recipe: %w", err)
	}
	if d.SchemaVersion == "" {
		d.SchemaVersion = SupportedSchema
	}
	if d.SchemaVersion != SupportedSchema {
		return d, fmt.Errorf("recipe schema_version %q not supported (want %q)", d.SchemaVersion, SupportedSchema)
	}
	return d, nil
}

// Default returns the manifest compiled into the binary.
func Default() Descriptor {
	d, err := Parse(defaultRecipe)
	if err != nil {
		panic(err)
	}
	return d
}

// Requirements parses Requires in declaration order.
func (d Descriptor) Requirements() ([]Requirement, error) {
	out := make([]Requirement, 0, len(d.Requires))
	for _, s := range d.Requires {
		r, err := ParseRequirement(s)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Validate reports every structural problem of the descriptor.
func (d Descriptor) Validate() error {
	var errs []error

	if len(d.Settings) == 0 {
		errs = append(errs, errors.New("settings: at least one axis is required"))
	}
	if dup := firstDuplicate(d.Settings); dup != "" {
		errs = append(errs, fmt.Errorf("settings: duplicate axis %q", dup))
	}
	for _, s := range d.Settings {
		if strings.TrimSpace(s) == "" {
			errs = append(errs, errors.New("settings: empty axis name"))
			break
		}
	}
	if dup := firstDuplicate(d.Generators); dup != "" {
		errs = append(errs, fmt.Errorf("generators: duplicate generator %q", dup))
	}

	seen := make(map[string]string, len(d.Requires))
	for _, s := range d.Requires {
		r, err := ParseRequirement(s)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if prev, ok := seen[r.Name]; ok {
			errs = append(errs, fmt.Errorf("requires: %q already required as %q", s, prev))
			continue
		}
		seen[r.Name] = s
	}

	if _, err := d.ResolveLayout(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func firstDuplicate(items []string) string {
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if _, ok := seen[it]; ok {
			return it
		}
		seen[it] = struct{}{}
	}
	return ""
}

/*──────── layouts ───────*/

// Layout is a predefined output directory convention.
type Layout struct {
	Name string
	// perBuildType nests outputs under the build type (Release, Debug, ...).
	perBuildType bool
}

var layouts = map[string]Layout{
	"cmake_layout": {Name: "cmake_layout", perBuildType: true},
	"basic_layout": {Name: "basic_layout"},
}

func (d Descriptor) ResolveLayout() (Layout, error) {
	l, ok := layouts[d.Layout]
	if !ok {
		return Layout{}, fmt.Errorf("layout: unknown convention %q", d.Layout)
	}
	return l, nil
}

func (l Layout) BuildDir(buildType string) string {
	if l.perBuildType && buildType != "" {
		return path.Join("build", buildType)
	}
	return "build"
}

func (l Layout) GeneratorsDir(buildType string) string {
	return path.Join(l.BuildDir(buildType), "generators")
}
