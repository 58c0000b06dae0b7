// Package generator builds named random-variate generators. A generator
// code is the distribution name followed by its parameters, for example
// "exp(1)", "norm(0,1)" or "weibull(1.5,2)".
package generator

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat/distuv"
)

// ErrInvalidCode is returned when a generator code cannot be parsed.
var ErrInvalidCode = errors.New("invalid generator code")

// Generator produces samples from one distribution.
type Generator interface {
	// Code identifies the generator; samples are stored under it.
	Code() string
	Generate(n int) []float64
}

type factory struct {
	params int
	// positive lists parameter positions that must be > 0
	positive []int
	build    func(p []float64, src rand.Source) distuv.Rander
}

var registry = map[string]factory{
	"exp": {1, []int{0}, func(p []float64, src rand.Source) distuv.Rander {
		return distuv.Exponential{Rate: p[0], Src: src}
	}},
	"norm": {2, []int{1}, func(p []float64, src rand.Source) distuv.Rander {
		return distuv.Normal{Mu: p[0], Sigma: p[1], Src: src}
	}},
	"unif": {2, nil, func(p []float64, src rand.Source) distuv.Rander {
		return distuv.Uniform{Min: p[0], Max: p[1], Src: src}
	}},
	// gamma(shape, rate)
	"gamma": {2, []int{0, 1}, func(p []float64, src rand.Source) distuv.Rander {
		return distuv.Gamma{Alpha: p[0], Beta: p[1], Src: src}
	}},
	// weibull(shape, scale)
	"weibull": {2, []int{0, 1}, func(p []float64, src rand.Source) distuv.Rander {
		return distuv.Weibull{K: p[0], Lambda: p[1], Src: src}
	}},
	"lognorm": {2, []int{1}, func(p []float64, src rand.Source) distuv.Rander {
		return distuv.LogNormal{Mu: p[0], Sigma: p[1], Src: src}
	}},
	"beta": {2, []int{0, 1}, func(p []float64, src rand.Source) distuv.Rander {
		return distuv.Beta{Alpha: p[0], Beta: p[1], Src: src}
	}},
	"chi2": {1, []int{0}, func(p []float64, src rand.Source) distuv.Rander {
		return distuv.ChiSquared{K: p[0], Src: src}
	}},
}

var codePattern = regexp.MustCompile(`^([a-z0-9]+)\(([^()]*)\)$`)

// Names returns the supported distribution names.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type distGenerator struct {
	code string
	dist distuv.Rander
}

func (g *distGenerator) Code() string { return g.code }

func (g *distGenerator) Generate(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = g.dist.Rand()
	}
	return out
}

// Parse builds the generator named by code. Samples are drawn from src; a
// nil src uses the global math/rand/v2 source. The returned generator's
// Code is the canonical spelling of code.
func Parse(code string, src rand.Source) (Generator, error) {
	m := codePattern.FindStringSubmatch(strings.ReplaceAll(code, " ", ""))
	if m == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCode, code)
	}

	f, ok := registry[m[1]]
	if !ok {
		return nil, fmt.Errorf("%w: unknown distribution %q (supported: %s)", ErrInvalidCode, m[1], strings.Join(Names(), ", "))
	}

	var params []float64
	if m[2] != "" {
		for _, field := range strings.Split(m[2], ",") {
			p, err := strconv.ParseFloat(field, 64)
			if err != nil || math.IsNaN(p) || math.IsInf(p, 0) {
				return nil, fmt.Errorf("%w: parameter %q of %q", ErrInvalidCode, field, code)
			}
			params = append(params, p)
		}
	}
	if len(params) != f.params {
		return nil, fmt.Errorf("%w: %s takes %d parameters, got %d", ErrInvalidCode, m[1], f.params, len(params))
	}
	for _, i := range f.positive {
		if params[i] <= 0 {
			return nil, fmt.Errorf("%w: parameter %d of %q must be positive", ErrInvalidCode, i+1, code)
		}
	}
	if m[1] == "unif" && params[0] >= params[1] {
		return nil, fmt.Errorf("%w: %q needs min < max", ErrInvalidCode, code)
	}

	return &distGenerator{
		code: canonical(m[1], params),
		dist: f.build(params, src),
	}, nil
}

func canonical(name string, params []float64) string {
	parts := make([]string, len(params))
	for i, p := range params {
		parts[i] = strconv.FormatFloat(p, 'g', -1, 64)
	}
	return name + "(" + strings.Join(parts, ",") + ")"
}
