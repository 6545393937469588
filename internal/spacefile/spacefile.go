// Package spacefile decodes search space files.
//
// A search space file lists the trainers to search and, optionally, their
// hyperparameter domains:
//
//	task: binary
//	trainers:
//	  - kind: LightGbm
//	    params:
//	      - name: NumberOfLeaves
//	        type: long
//	        min: 2
//	        max: 128
//	        log: true
//	        step_size: 4
//	      - name: UseCategoricalSplit
//	        type: discrete
//	        values: ["true", "false"]
//	  - kind: FastTree          # no params: the catalog domains
//	  - kind: LinearSvm
//	    params: []              # empty: defaults only, never tuned
package spacefile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/thalesfsp/automl"
	"gopkg.in/yaml.v3"
)

// File is a decoded search space file.
type File struct {
	Task     string    `yaml:"task"`
	Trainers []Trainer `yaml:"trainers"`
}

// Trainer is one trainer entry.
type Trainer struct {
	Kind   string  `yaml:"kind"`
	Params []Param `yaml:"params"`
}

// Param is one hyperparameter domain.
type Param struct {
	Name     string   `yaml:"name"`
	Type     string   `yaml:"type"`
	Values   []string `yaml:"values,omitempty"`
	Min      float64  `yaml:"min,omitempty"`
	Max      float64  `yaml:"max,omitempty"`
	Log      bool     `yaml:"log,omitempty"`
	NumSteps int      `yaml:"num_steps,omitempty"`
	StepSize float64  `yaml:"step_size,omitempty"`
}

// Parse decodes a file. Unknown fields are rejected.
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("search space file is empty")
		}

		return nil, fmt.Errorf("decode search space: %w", err)
	}

	if len(f.Trainers) == 0 {
		return nil, automl.ErrNoTrainers
	}

	return &f, nil
}

// Load reads and decodes the file at path.
func Load(path string) (*File, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read search space: %w", err)
	}

	return Parse(bytes.NewReader(content))
}

// TaskKind returns the declared task, binary classification when empty.
func (f *File) TaskKind() (automl.TaskKind, error) {
	if f.Task == "" {
		return automl.BinaryClassification, nil
	}

	return automl.ParseTaskKind(f.Task)
}

// TrainerSpecs builds and validates the trainer specs in file order.
func (f *File) TrainerSpecs() ([]automl.TrainerSpec, error) {
	specs := make([]automl.TrainerSpec, 0, len(f.Trainers))

	for i, t := range f.Trainers {
		kind, err := automl.ParseTrainerKind(t.Kind)
		if err != nil {
			return nil, fmt.Errorf("trainers[%d]: %w", i, err)
		}

		domains := automl.DefaultDomains(kind)
		if t.Params != nil {
			domains = make([]automl.ParamDomain, 0, len(t.Params))

			for _, p := range t.Params {
				d, err := p.Domain()
				if err != nil {
					return nil, fmt.Errorf("trainers[%d] %s: %w", i, kind, err)
				}

				domains = append(domains, d)
			}
		}

		spec, err := automl.NewTrainerSpec(kind, domains...)
		if err != nil {
			return nil, fmt.Errorf("trainers[%d] %s: %w", i, kind, err)
		}

		specs = append(specs, spec)
	}

	return specs, nil
}

// Domain converts the entry.
func (p Param) Domain() (automl.ParamDomain, error) {
	kind, err := automl.ParseParamKind(p.Type)
	if err != nil {
		return automl.ParamDomain{}, fmt.Errorf("param %q: %w", p.Name, err)
	}

	if kind == automl.DiscreteParam {
		return automl.Discrete(p.Name, p.Values...), nil
	}

	if len(p.Values) > 0 {
		return automl.ParamDomain{}, fmt.Errorf("param %q: values are only allowed on discrete params", p.Name)
	}

	return automl.ParamDomain{
		Name:     p.Name,
		Kind:     kind,
		Min:      p.Min,
		Max:      p.Max,
		LogScale: p.Log,
		NumSteps: p.NumSteps,
		StepSize: p.StepSize,
	}, nil
}

// FromSpecs renders specs back into a file, e.g. to dump the catalog.
func FromSpecs(task automl.TaskKind, specs []automl.TrainerSpec) *File {
	f := &File{Task: task.String()}

	for _, spec := range specs {
		t := Trainer{Kind: spec.Kind().String(), Params: []Param{}}

		for _, d := range spec.Domains() {
			t.Params = append(t.Params, Param{
				Name:     d.Name,
				Type:     d.Kind.String(),
				Values:   d.Options,
				Min:      d.Min,
				Max:      d.Max,
				Log:      d.LogScale,
				NumSteps: d.NumSteps,
				StepSize: d.StepSize,
			})
		}

		f.Trainers = append(f.Trainers, t)
	}

	return f
}

// Encode writes f as YAML.
func (f *File) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	if err := enc.Encode(f); err != nil {
		return fmt.Errorf("encode search space: %w", err)
	}

	return enc.Close()
}
