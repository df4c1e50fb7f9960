package pipeline

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource []byte

// Format is the encoding of a pipeline file.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatCUE  Format = "cue"
)

// FormatOf infers the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".cue":
		return FormatCUE, nil
	default:
		return "", fmt.Errorf("unsupported pipeline file %q (want .yaml, .yml or .cue)", path)
	}
}

// LoadError reports a pipeline that could not be decoded. Pos is set when the
// CUE evaluator knows where the problem is.
type LoadError struct {
	File    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}

// Load reads, decodes and validates the pipeline at path.
func Load(path string) (*Definition, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pipeline: %w", err)
	}
	return Parse(data, format, path)
}

// Parse decodes and validates a pipeline. name labels error messages.
func Parse(data []byte, format Format, name string) (*Definition, error) {
	var (
		def *Definition
		err error
	)
	switch format {
	case FormatYAML:
		def, err = parseYAML(data, name)
	case FormatCUE:
		def, err = parseCUE(data, name)
	default:
		return nil, fmt.Errorf("unknown pipeline format %q", format)
	}
	if err != nil {
		return nil, err
	}
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline %s: %w", name, err)
	}
	return def, nil
}

func parseYAML(data []byte, name string) (*Definition, error) {
	var def Definition
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		return nil, &LoadError{File: name, Message: err.Error()}
	}
	return &def, nil
}

// parseCUE evaluates data, unifies its "pipeline" field with the embedded
// #Pipeline schema and decodes the concrete result.
func parseCUE(data []byte, name string) (*Definition, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile embedded schema: %w", err)
	}

	v := ctx.CompileBytes(data, cue.Filename(name))
	if err := v.Err(); err != nil {
		return nil, cueLoadError(name, err)
	}
	p := v.LookupPath(cue.ParsePath("pipeline"))
	if !p.Exists() {
		return nil, &LoadError{File: name, Message: "no top-level pipeline field"}
	}

	p = schema.LookupPath(cue.ParsePath("#Pipeline")).Unify(p)
	if err := p.Validate(cue.Concrete(true)); err != nil {
		return nil, cueLoadError(name, err)
	}

	raw, err := p.MarshalJSON()
	if err != nil {
		return nil, cueLoadError(name, err)
	}
	var def Definition
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, &LoadError{File: name, Message: err.Error()}
	}
	return &def, nil
}

// cueLoadError keeps the first CUE error and its position.
func cueLoadError(name string, err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{File: name, Message: err.Error()}
	}
	first := errs[0]
	le := &LoadError{File: name, Message: first.Error()}
	if pos := cueerrors.Positions(first); len(pos) > 0 {
		le.Pos = pos[0]
	}
	return le
}
