package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

// Target types understood by the builder.
const (
	TypeAndroidSO = "android-so"
	TypeXposed    = "xposed"
)

// Resolved is a target with its inheritance chain applied. Empty strings mean
// the field was never set anywhere in the chain.
type Resolved struct {
	Name string
	// Dir is the project directory relative paths are interpreted against.
	Dir string

	Type                 string
	Platform             string
	Version              string
	FridaVersion         string
	Mode                 string
	Entry                string
	XZ                   bool
	OverridePrebuildFile string
	PackageName          string
	Keystore             string
	DisplayName          string
	Icon                 string
}

// Abstract reports whether the target has no type. Such targets only exist to
// be inherited from and are not built.
func (r Resolved) Abstract() bool {
	return r.Type == ""
}

// Path resolves p against the project directory unless it is absolute.
func (r Resolved) Path(p string) string {
	if p == "" || filepath.IsAbs(p) || r.Dir == "" {
		return p
	}
	return filepath.Join(r.Dir, p)
}

// Resolve flattens the inheritance chain of every target in f.
func Resolve(f *File) (map[string]Resolved, error) {
	r := resolver{
		targets:  f.Targets,
		dir:      f.Dir(),
		done:     make(map[string]Resolved, len(f.Targets)),
		visiting: map[string]bool{},
	}
	names := make([]string, 0, len(f.Targets))
	for name := range f.Targets {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if _, err := r.resolve(name, nil); err != nil {
			return nil, err
		}
	}
	return r.done, nil
}

type resolver struct {
	targets  map[string]Target
	dir      string
	done     map[string]Resolved
	visiting map[string]bool
}

func (r *resolver) resolve(name string, chain []string) (Resolved, error) {
	if res, ok := r.done[name]; ok {
		return res, nil
	}
	chain = append(chain, name)
	if r.visiting[name] {
		return Resolved{}, fmt.Errorf("%w: %s", ErrCycle, strings.Join(chain, " -> "))
	}
	t, ok := r.targets[name]
	if !ok {
		if len(chain) > 1 {
			return Resolved{}, fmt.Errorf("%w: %q (inherited by %q)", ErrUnknownTarget, name, chain[len(chain)-2])
		}
		return Resolved{}, fmt.Errorf("%w: %q", ErrUnknownTarget, name)
	}

	r.visiting[name] = true
	var res Resolved
	if t.Inherit != nil {
		parent, err := r.resolve(*t.Inherit, chain)
		if err != nil {
			return Resolved{}, err
		}
		res = parent
	}
	delete(r.visiting, name)

	res.Name = name
	res.Dir = r.dir
	t.apply(&res)
	r.done[name] = res
	return res, nil
}

func (t Target) apply(res *Resolved) {
	set(&res.Type, t.Type)
	set(&res.Platform, t.Platform)
	set(&res.Version, t.Version)
	set(&res.FridaVersion, t.FridaVersion)
	set(&res.Mode, t.Mode)
	set(&res.Entry, t.Entry)
	set(&res.XZ, t.XZ)
	set(&res.OverridePrebuildFile, t.OverridePrebuildFile)
	set(&res.PackageName, t.PackageName)
	set(&res.Keystore, t.Keystore)
	set(&res.DisplayName, t.Name)
	set(&res.Icon, t.Icon)
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
