// Package config loads experiment descriptions written in HCL: the model
// to build, how to train it and how to log.
//
// A file looks like:
//
//	variable "vocab" {
//	  default = 12
//	}
//
//	logging {
//	  level  = "debug"
//	  format = "json"
//	}
//
//	model "copy" {
//	  kind = "seqencdec.simple"
//	  seed = 42
//	  config = {
//	    invocab  = var.vocab
//	    outvocab = var.vocab
//	    encdim   = 32
//	    decdim   = 32
//	    attdim   = 16
//	  }
//	}
//
//	trainer {
//	  optimizer = "adam"
//	  lr        = 0.01
//	  loss      = "cross_entropy"
//	  metrics   = ["accuracy"]
//	  batches   = 8
//	  epochs    = 30
//
//	  validation {
//	    splits  = 5
//	    random  = true
//	    metrics = ["accuracy"]
//	  }
//	}
//
// The model's config object is passed as JSON to the block kind's builder,
// so its attribute names are the JSON names of the kind's config.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/born-ml/teafacto/internal/ctxlog"
)

var (
	// ErrInvalid is returned when a configuration parses but is not usable.
	ErrInvalid = errors.New("config: invalid configuration")
	// ErrVariable is returned for undefined or unset variables.
	ErrVariable = errors.New("config: variable error")
)

// Config is a decoded configuration file.
type Config struct {
	Logging *Logging `hcl:"logging,block"`
	Model   Model    `hcl:"model,block"`
	Trainer *Trainer `hcl:"trainer,block"`
}

// Logging selects the log level (debug, info, warn, error) and format
// (text, json).
type Logging struct {
	Level  string `hcl:"level,optional"`
	Format string `hcl:"format,optional"`
}

// Model names a registered block kind and its configuration.
type Model struct {
	Name   string    `hcl:"name,label"`
	Kind   string    `hcl:"kind"`
	Seed   int       `hcl:"seed,optional"`
	Config cty.Value `hcl:"config"`
}

// Trainer describes the training run.
type Trainer struct {
	Optimizer    string             `hcl:"optimizer,optional"`
	LR           float64            `hcl:"lr,optional"`
	Hyper        map[string]float64 `hcl:"hyper,optional"`
	Loss         string             `hcl:"loss,optional"`
	Metrics      []string           `hcl:"metrics,optional"`
	Batches      int                `hcl:"batches,optional"`
	Epochs       int                `hcl:"epochs,optional"`
	Seed         int                `hcl:"seed,optional"`
	Regularize   float64            `hcl:"regularize,optional"`
	ClipGradNorm float64            `hcl:"clip_grad_norm,optional"`
	DecayAfter   int                `hcl:"decay_after,optional"`
	DecayFactor  float64            `hcl:"decay_factor,optional"`
	Validation   *Validation        `hcl:"validation,block"`
}

// Validation holds out a part of the training data.
type Validation struct {
	Splits  int      `hcl:"splits,optional"`
	Random  bool     `hcl:"random,optional"`
	Metrics []string `hcl:"metrics,optional"`
}

type variableBlock struct {
	Name    string         `hcl:"name,label"`
	Default hcl.Expression `hcl:"default,optional"`
}

type rootFile struct {
	Variables []*variableBlock `hcl:"variable,block"`
	Remain    hcl.Body         `hcl:",remain"`
}

// Options tunes loading.
type Options struct {
	// Vars overrides variable defaults. Values are Go values convertible to
	// cty (numbers, strings, bools, slices and maps of them).
	Vars map[string]any
}

// LoadFile reads and decodes the configuration at path.
func LoadFile(ctx context.Context, path string, opts Options) (*Config, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(ctx, src, path, opts)
}

// Parse decodes an HCL configuration. filename is used in diagnostics.
func Parse(ctx context.Context, src []byte, filename string, opts Options) (*Config, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("decoding config", "path", filename)

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse %s: %w", filename, diags)
	}

	var root rootFile
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("decode %s: %w", filename, diags)
	}
	vars, err := variables(root.Variables, opts.Vars)
	if err != nil {
		return nil, err
	}
	evalCtx := &hcl.EvalContext{Variables: map[string]cty.Value{"var": cty.ObjectVal(vars)}}

	var cfg Config
	if diags := gohcl.DecodeBody(root.Remain, evalCtx, &cfg); diags.HasErrors() {
		return nil, fmt.Errorf("decode %s: %w", filename, diags)
	}
	cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.Debug("decoded config", "path", filename, "model", cfg.Model.Name, "kind", cfg.Model.Kind,
		"variables", len(vars), "trainer", cfg.Trainer != nil)
	return &cfg, nil
}

// variables evaluates the declared defaults and applies the overrides.
func variables(blocks []*variableBlock, overrides map[string]any) (map[string]cty.Value, error) {
	vars := make(map[string]cty.Value, len(blocks))
	for _, b := range blocks {
		if _, dup := vars[b.Name]; dup {
			return nil, fmt.Errorf("%w: %q declared twice", ErrVariable, b.Name)
		}
		v, diags := b.Default.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("variable %q: %w", b.Name, diags)
		}
		vars[b.Name] = v
	}
	for name, raw := range overrides {
		if _, ok := vars[name]; !ok {
			return nil, fmt.Errorf("%w: %q is not declared", ErrVariable, name)
		}
		ty, err := gocty.ImpliedType(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrVariable, name, err)
		}
		v, err := gocty.ToCtyValue(raw, ty)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrVariable, name, err)
		}
		vars[name] = v
	}
	for name, v := range vars {
		if v.IsNull() {
			return nil, fmt.Errorf("%w: %q has no value", ErrVariable, name)
		}
	}
	return vars, nil
}
