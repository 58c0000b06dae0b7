// Package stattest implements goodness-of-fit tests for exponentiality and
// the Monte Carlo machinery that supplies their critical values.
package stattest

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

var (
	// ErrInvalidSample is returned for empty samples or samples with
	// non-positive or non-finite values.
	ErrInvalidSample = errors.New("invalid sample")

	// ErrInvalidAlpha is returned for significance levels outside (0, 1).
	ErrInvalidAlpha = errors.New("significance level must be in (0, 1)")

	// ErrUnknownStatistic is returned by Lookup.
	ErrUnknownStatistic = errors.New("unknown statistic")
)

// Statistic is a test statistic. Large values are evidence against the
// null hypothesis.
type Statistic interface {
	Code() string
	// Null is the generator code of the null distribution used to simulate
	// critical values.
	Null() string
	Execute(rvs []float64) (float64, error)
}

var unitExp = distuv.Exponential{Rate: 1}

// normalize validates rvs and returns it divided by its mean, sorted.
func normalize(rvs []float64) ([]float64, error) {
	if len(rvs) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrInvalidSample)
	}
	for _, v := range rvs {
		if !(v > 0) || math.IsInf(v, 1) {
			return nil, fmt.Errorf("%w: exponentiality tests need positive finite values, got %v", ErrInvalidSample, v)
		}
	}

	y := make([]float64, len(rvs))
	copy(y, rvs)
	floats.Scale(1/stat.Mean(y, nil), y)
	sort.Float64s(y)
	return y, nil
}

type exponentiality struct {
	code    string
	compute func(y []float64) float64
}

func (e exponentiality) Code() string { return e.code }

func (e exponentiality) Null() string { return "exp(1)" }

func (e exponentiality) Execute(rvs []float64) (float64, error) {
	y, err := normalize(rvs)
	if err != nil {
		return 0, err
	}
	return e.compute(y), nil
}

// KS is the two-sided Kolmogorov-Smirnov distance between the
// scale-normalised sample and Exp(1).
var KS Statistic = exponentiality{code: "KS_exp", compute: func(y []float64) float64 {
	n := float64(len(y))
	var dPlus, dMinus float64
	for i, v := range y {
		f := unitExp.CDF(v)
		dPlus = math.Max(dPlus, float64(i+1)/n-f)
		dMinus = math.Max(dMinus, f-float64(i)/n)
	}
	return math.Max(dPlus, dMinus)
}}

// KSPlus is the one-sided Kolmogorov-Smirnov D+: the largest amount by
// which the empirical CDF of the scale-normalised sample exceeds Exp(1).
var KSPlus Statistic = exponentiality{code: "KSplus_exp", compute: func(y []float64) float64 {
	n := float64(len(y))
	var dPlus float64
	for i, v := range y {
		dPlus = math.Max(dPlus, float64(i+1)/n-unitExp.CDF(v))
	}
	return dPlus
}}

// CM is the Cramér-von Mises W² statistic.
var CM Statistic = exponentiality{code: "CM_exp", compute: func(y []float64) float64 {
	n := float64(len(y))
	w := 1 / (12 * n)
	for i, v := range y {
		d := unitExp.CDF(v) - float64(2*i+1)/(2*n)
		w += d * d
	}
	return w
}}

// AD is the Anderson-Darling A² statistic.
var AD Statistic = exponentiality{code: "AD_exp", compute: func(y []float64) float64 {
	n := len(y)
	var sum float64
	for i, v := range y {
		// log(1 - F(y)) = -y for Exp(1)
		sum += float64(2*i+1) * (math.Log(unitExp.CDF(v)) - y[n-1-i])
	}
	return -float64(n) - sum/float64(n)
}}

// CO is the Cox-Oakes statistic n + Σ (1 - yᵢ) log yᵢ.
var CO Statistic = exponentiality{code: "CO_exp", compute: func(y []float64) float64 {
	co := float64(len(y))
	for _, v := range y {
		co += (1 - v) * math.Log(v)
	}
	return co
}}

var statistics = map[string]Statistic{
	KS.Code():     KS,
	KSPlus.Code(): KSPlus,
	CM.Code():     CM,
	AD.Code():     AD,
	CO.Code():     CO,
}

// Lookup returns the statistic with the given code.
func Lookup(code string) (Statistic, error) {
	s, ok := statistics[code]
	if !ok {
		return nil, fmt.Errorf("%w: %q (supported: %s)", ErrUnknownStatistic, code, strings.Join(Codes(), ", "))
	}
	return s, nil
}

// Codes lists the supported statistic codes.
func Codes() []string {
	codes := make([]string, 0, len(statistics))
	for c := range statistics {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}
