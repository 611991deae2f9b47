// Package cases loads conformance test cases. A case names an operator,
// carries its scalar parameters and supplies the input tensors either as
// literal values or through a seeded per-operator generator.
package cases

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/accelmark/opcheck/internal/compare"
	"github.com/accelmark/opcheck/internal/executor"
	"github.com/accelmark/opcheck/internal/tensor"
	"gopkg.in/yaml.v3"
)

// TensorSpec declares one tensor argument in a case file. Data values are
// written as numbers and converted to the declared element type; an absent
// Data leaves the buffer zeroed (useful for declaring output shapes).
type TensorSpec struct {
	DType string    `yaml:"dtype" json:"dtype"`
	Shape []int     `yaml:"shape" json:"shape"`
	Data  []float64 `yaml:"data,omitempty" json:"data,omitempty"`
}

// Case is one conformance test case.
type Case struct {
	Name      string                `yaml:"name,omitempty" json:"name,omitempty"`
	Operator  string                `yaml:"operator" json:"operator"`
	Params    map[string]int64      `yaml:"params" json:"params"`
	Seed      *int64                `yaml:"seed,omitempty" json:"seed,omitempty"`
	Tensors   map[string]TensorSpec `yaml:"tensors,omitempty" json:"tensors,omitempty"`
	Tolerance *compare.Policy       `yaml:"tolerance,omitempty" json:"tolerance,omitempty"`
}

// Load reads one case file.
func Load(path string) (*Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Case
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("case file %s: %w", path, err)
	}
	if c.Operator == "" {
		return nil, fmt.Errorf("case file %s: missing operator name", path)
	}
	if c.Name == "" {
		c.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return &c, nil
}

// LoadDir reads every .yaml case under dir, sorted by file name.
func LoadDir(dir string) ([]*Case, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ext := filepath.Ext(e.Name()); ext == ".yaml" || ext == ".yml" {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)

	loaded := make([]*Case, 0, len(paths))
	for _, p := range paths {
		c, err := Load(p)
		if err != nil {
			return nil, err
		}
		loaded = append(loaded, c)
	}
	return loaded, nil
}

// Input materializes the case into host buffers: literal tensors first, then
// the operator's generator for anything a seeded case leaves out.
func (c *Case) Input() (executor.CaseInput, error) {
	in := executor.CaseInput{
		Params:  c.Params,
		Tensors: make(map[string]*tensor.HostBuffer, len(c.Tensors)),
	}
	for name, spec := range c.Tensors {
		buf, err := spec.buffer(name)
		if err != nil {
			return executor.CaseInput{}, err
		}
		in.Tensors[name] = buf
	}
	if c.Seed != nil {
		generated, err := generate(c.Operator, c.Params, *c.Seed)
		if err != nil {
			return executor.CaseInput{}, err
		}
		for name, buf := range generated {
			if _, declared := in.Tensors[name]; !declared {
				in.Tensors[name] = buf
			}
		}
	}
	return in, nil
}

func (s TensorSpec) buffer(name string) (*tensor.HostBuffer, error) {
	dt, err := tensor.ParseDataType(s.DType)
	if err != nil {
		return nil, fmt.Errorf("tensor %q: %w", name, err)
	}
	desc, err := tensor.NewDescriptor(name, dt, tensor.Shape(s.Shape))
	if err != nil {
		return nil, err
	}
	buf := tensor.NewHostBuffer(desc)
	if len(s.Data) == 0 {
		return buf, nil
	}
	if len(s.Data) != desc.NumElements() {
		return nil, fmt.Errorf("tensor %q: %d values for shape %s", name, len(s.Data), desc.Shape)
	}
	switch dt {
	case tensor.Float32:
		dst := buf.Float32s()
		for i, v := range s.Data {
			dst[i] = float32(v)
		}
	case tensor.Float64:
		copy(buf.Float64s(), s.Data)
	case tensor.Int32:
		dst := buf.Int32s()
		for i, v := range s.Data {
			dst[i] = int32(v)
		}
	case tensor.Int64:
		dst := buf.Int64s()
		for i, v := range s.Data {
			dst[i] = int64(v)
		}
	}
	return buf, nil
}
