// Package config loads power benchmark run plans.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fidde/stattest/internal/generator"
	"github.com/fidde/stattest/internal/stattest"
)

// Plan describes one power benchmark run: every test is evaluated against
// samples from every generator at every size.
type Plan struct {
	// Alpha is the significance level used to decide rejection
	Alpha float64 `yaml:"alpha"`

	// Count is the number of samples per (generator, size)
	Count int `yaml:"count"`

	Sizes      []int    `yaml:"sizes"`
	Generators []string `yaml:"generators"`
	Tests      []string `yaml:"tests"`

	// Simulations is the Monte Carlo count for critical values
	Simulations int `yaml:"simulations"`

	// Seed for sample generation and simulation
	Seed uint64 `yaml:"seed"`
}

// DefaultPlan returns a small plan that checks the exponentiality tests
// against a few alternatives.
func DefaultPlan() *Plan {
	return &Plan{
		Alpha:       0.05,
		Count:       1000,
		Sizes:       []int{10, 20, 50},
		Generators:  []string{"exp(1)", "weibull(1.5,1)", "gamma(2,1)", "lognorm(0,1)"},
		Tests:       stattest.Codes(),
		Simulations: 10000,
		Seed:        1,
	}
}

// LoadPlan loads a plan from a YAML file. Fields missing from the file keep
// their DefaultPlan values.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan file: %w", err)
	}

	plan := DefaultPlan()
	if err := yaml.Unmarshal(data, plan); err != nil {
		return nil, fmt.Errorf("parsing plan YAML: %w", err)
	}

	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plan %s: %w", path, err)
	}
	return plan, nil
}

// Validate checks the plan and rewrites generator codes to their canonical
// form.
func (p *Plan) Validate() error {
	var errs []error

	if !(p.Alpha > 0 && p.Alpha < 1) {
		errs = append(errs, fmt.Errorf("alpha %v outside (0, 1)", p.Alpha))
	}
	if p.Count < 1 {
		errs = append(errs, fmt.Errorf("count must be positive, got %d", p.Count))
	}
	if p.Simulations < 1 {
		errs = append(errs, fmt.Errorf("simulations must be positive, got %d", p.Simulations))
	}
	if len(p.Sizes) == 0 {
		errs = append(errs, errors.New("no sizes"))
	}
	for _, size := range p.Sizes {
		if size < 1 {
			errs = append(errs, fmt.Errorf("size must be positive, got %d", size))
		}
	}

	if len(p.Generators) == 0 {
		errs = append(errs, errors.New("no generators"))
	}
	for i, code := range p.Generators {
		g, err := generator.Parse(code, nil)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		p.Generators[i] = g.Code()
	}

	if len(p.Tests) == 0 {
		errs = append(errs, errors.New("no tests"))
	}
	for _, code := range p.Tests {
		if _, err := stattest.Lookup(code); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
