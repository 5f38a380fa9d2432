package hclpipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/burstbeam/internal/ctxlog"
	"github.com/specialistvlad/burstbeam/internal/pipeline"
)

// Loader reads pipeline definitions from HCL.
type Loader struct {
	// Env is visible to static attributes as env.<NAME>.
	Env map[string]string
}

// NewLoader creates a loader exposing the process environment.
func NewLoader() *Loader {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			env[k] = v
		}
	}
	return &Loader{Env: env}
}

// parsedStep is a decoded step block and the bytes of the file it came from.
type parsedStep struct {
	block *stepBlock
	file  string
	src   []byte
}

// Load reads every .hcl file under paths and builds one pipeline from all
// of their steps.
func (l *Loader) Load(ctx context.Context, paths ...string) (*pipeline.Pipeline, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	files, err := findAllHCLFiles(paths)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .hcl files found in %s", strings.Join(paths, ", "))
	}
	logger.Debug("Discovered HCL files.", "count", len(files))

	parser := hclparse.NewParser()
	var steps []parsedStep
	for _, file := range files {
		f, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}
		decoded, err := decodeFile(file, f)
		if err != nil {
			return nil, err
		}
		steps = append(steps, decoded...)
	}
	return l.build(ctx, steps)
}

// LoadSource builds a pipeline from a single in-memory file.
func (l *Loader) LoadSource(ctx context.Context, filename string, src []byte) (*pipeline.Pipeline, error) {
	f, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}
	steps, err := decodeFile(filename, f)
	if err != nil {
		return nil, err
	}
	return l.build(ctx, steps)
}

func decodeFile(name string, f *hcl.File) ([]parsedStep, error) {
	var root fileRoot
	if diags := gohcl.DecodeBody(f.Body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", name, diags)
	}
	out := make([]parsedStep, 0, len(root.Steps))
	for _, b := range root.Steps {
		out = append(out, parsedStep{block: b, file: name, src: f.Bytes})
	}
	return out, nil
}

// build declares every step first and links references second, so steps
// can refer to each other regardless of declaration order.
func (l *Loader) build(ctx context.Context, steps []parsedStep) (*pipeline.Pipeline, error) {
	logger := ctxlog.FromContext(ctx)
	evalCtx := l.evalContext()

	p := pipeline.New()
	declared := make(map[string]*pipeline.Transform, len(steps))
	for _, ps := range steps {
		name := ps.block.Name
		if _, dup := declared[name]; dup {
			return nil, fmt.Errorf("%s: step %q is declared more than once", ps.file, name)
		}
		fn, err := stepFn(ps, evalCtx)
		if err != nil {
			return nil, err
		}
		declared[name] = p.Declare(name, fn)
		logger.Debug("Declared step.", "step", name, "kind", fn.Kind, "file", ps.file)
	}

	for _, ps := range steps {
		t := declared[ps.block.Name]
		refs, err := inputRefs(ps.block)
		if err != nil {
			return nil, err
		}
		for _, r := range refs {
			t.AddInput(r.resolve(p, declared))
		}
		seen := make(map[string]struct{})
		for _, si := range ps.block.SideInputs {
			if _, dup := seen[si.Name]; dup {
				return nil, fmt.Errorf("step %q: side input %q is declared more than once", ps.block.Name, si.Name)
			}
			seen[si.Name] = struct{}{}
			v, err := sideInput(ps.block.Name, si, p, declared, evalCtx)
			if err != nil {
				return nil, err
			}
			t.AddSideInput(v)
		}
	}

	logger.Debug("HCL loading complete.", "steps", len(steps))
	return p, nil
}

// findAllHCLFiles walks all given paths and returns a flat list of all .hcl
// files found. Paths that do not exist are skipped.
func findAllHCLFiles(paths []string) ([]string, error) {
	var all []string
	seen := make(map[string]struct{})
	add := func(p string) {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			all = append(all, p)
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}
		if !info.IsDir() {
			if filepath.Ext(path) == ".hcl" {
				add(path)
			}
			continue
		}
		err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && filepath.Ext(p) == ".hcl" {
				add(p)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return all, nil
}
