package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"go.uber.org/multierr"

	"github.com/roach88/critq/internal/metadata"
)

// Mode controls how errors are handled while loading.
type Mode int

const (
	// FailFast stops on the first error.
	FailFast Mode = iota
	// CollectAll reports every error, combined with multierr.
	CollectAll
)

// Result is a loaded schema directory.
type Result struct {
	Definitions []metadata.Definition
	Files       []string
	Value       cue.Value
}

// Load reads every CUE file in dir as one instance and compiles its
// entity definitions. In CollectAll mode the result holds every entity
// that compiled and err combines the failures.
func Load(dir string, mode Mode) (*Result, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &Error{Code: ErrCodeNotFound, Message: fmt.Sprintf("schema directory: %v", err), Err: err}
	}
	if !info.IsDir() {
		return nil, &Error{Code: ErrCodeNotFound, Message: "not a directory: " + dir}
	}

	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, &Error{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("scanning %s: %v", dir, err), Err: err}
	}
	if len(files) == 0 {
		return nil, &Error{Code: ErrCodeNoFiles, Message: "no CUE files found in " + dir}
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &Error{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &Error{Code: ErrCodeLoadFailed, Message: inst.Err.Error(), Err: inst.Err}
	}

	value := cuecontext.New().BuildInstance(inst)
	if err := value.Err(); err != nil {
		e := fromCUE(err, "", "")
		e.Code = ErrCodeBuildFailed
		return nil, e
	}

	defs, err := Compile(value, mode)
	res := &Result{Definitions: defs, Files: files, Value: value}
	if err != nil {
		return res, err
	}
	if len(defs) == 0 {
		return res, &Error{Code: ErrCodeNoFiles, Message: "no entity definitions found in " + dir}
	}
	return res, nil
}

// FindCUEFiles returns the .cue files under dir, sorted.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	slices.Sort(files)
	return files, err
}

// Register defines every definition in a new registry and checks that
// association targets exist and that embedded targets are embeddable.
func Register(defs []metadata.Definition, mode Mode, opts ...metadata.RegistryOption) (*metadata.Registry, error) {
	reg := metadata.NewRegistry(opts...)
	byName := make(map[string]metadata.Definition, len(defs))
	var errs error
	add := func(err error) bool {
		errs = multierr.Append(errs, err)
		return mode == FailFast
	}

	for _, def := range defs {
		byName[def.Name] = def
		if _, err := reg.Define(def); err != nil {
			if add(&Error{Code: ErrCodeInvalidEntity, Entity: def.Name, Message: err.Error(), Err: err}) {
				return nil, errs
			}
		}
	}
	for _, def := range defs {
		for _, a := range def.Associations {
			target, ok := byName[a.Target]
			var err error
			switch {
			case !ok:
				err = &Error{Code: ErrCodeUnknownTarget, Entity: def.Name, Field: a.Name, Message: fmt.Sprintf("target entity %q is not defined", a.Target)}
			case a.Kind == metadata.Embedded && !target.Embeddable:
				err = &Error{Code: ErrCodeInvalidEntity, Entity: def.Name, Field: a.Name, Message: fmt.Sprintf("embedded target %q is not embeddable", a.Target)}
			}
			if err != nil && add(err) {
				return nil, errs
			}
		}
	}
	if errs != nil {
		return nil, errs
	}
	return reg, nil
}

// LoadRegistry loads dir and registers its definitions, stopping at the
// first error.
func LoadRegistry(dir string, opts ...metadata.RegistryOption) (*metadata.Registry, error) {
	res, err := Load(dir, FailFast)
	if err != nil {
		return nil, err
	}
	return Register(res.Definitions, FailFast, opts...)
}
