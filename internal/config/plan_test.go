package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fidde/stattest/internal/generator"
	"github.com/fidde/stattest/internal/stattest"
)

func writePlan(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadPlan(t *testing.T) {
	path := writePlan(t, `alpha: 0.1
count: 200
sizes: [5, 15]
generators:
  - exp(2.0)
  - weibull(1.5, 1)
tests: [KS_exp, CO_exp]
seed: 9
`)

	plan, err := LoadPlan(path)
	require.NoError(t, err)

	assert.Equal(t, 0.1, plan.Alpha)
	assert.Equal(t, 200, plan.Count)
	assert.Equal(t, []int{5, 15}, plan.Sizes)
	assert.Equal(t, []string{"exp(2)", "weibull(1.5,1)"}, plan.Generators)
	assert.Equal(t, []string{"KS_exp", "CO_exp"}, plan.Tests)
	assert.Equal(t, uint64(9), plan.Seed)

	// Not in the file
	assert.Equal(t, DefaultPlan().Simulations, plan.Simulations)
}

func TestLoadPlanErrors(t *testing.T) {
	_, err := LoadPlan(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadPlan(writePlan(t, "alpha: [not, a, number]"))
	assert.Error(t, err)

	_, err = LoadPlan(writePlan(t, `alpha: 1.5
count: 0
sizes: [0]
generators: ["cauchy(0,1)"]
tests: [SW_norm]
`))
	require.Error(t, err)
	assert.ErrorIs(t, err, generator.ErrInvalidCode)
	assert.ErrorIs(t, err, stattest.ErrUnknownStatistic)
	assert.Contains(t, err.Error(), "alpha")
	assert.Contains(t, err.Error(), "count")
}

func TestDefaultPlanIsValid(t *testing.T) {
	assert.NoError(t, DefaultPlan().Validate())
}
