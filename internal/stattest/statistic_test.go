package stattest

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seq(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i + 1)
	}
	return out
}

func TestStatistics(t *testing.T) {
	tests := []struct {
		stat Statistic
		want map[int]float64
	}{
		{KS, map[int]float64{7: 0.2506121974302237, 10: 0.2204217212151905}},
		{KSPlus, map[int]float64{7: 0.17377394345044517, 10: 0.16232061118184815}},
		{CM, map[int]float64{7: 0.1285081983260836, 10: 0.1571176343805259}},
		{AD, map[int]float64{7: 0.7159276688631069, 10: 0.8762043637073393}},
		{CO, map[int]float64{7: 4.863554837932963, 10: 6.543897927269165}},
	}

	for _, tt := range tests {
		t.Run(tt.stat.Code(), func(t *testing.T) {
			for n, want := range tt.want {
				got, err := tt.stat.Execute(seq(n))
				require.NoError(t, err)
				assert.InDelta(t, want, got, 1e-12, "n=%d", n)
			}
		})
	}
}

func TestStatisticsAreScaleInvariant(t *testing.T) {
	x := []float64{0.3, 1.7, 0.05, 2.2, 0.9}
	scaled := make([]float64, len(x))
	for i, v := range x {
		scaled[i] = v * 40
	}

	for _, s := range []Statistic{KS, KSPlus, CM, AD, CO} {
		a, err := s.Execute(x)
		require.NoError(t, err)
		b, err := s.Execute(scaled)
		require.NoError(t, err)
		assert.InDelta(t, a, b, 1e-12, s.Code())
	}
}

func TestExecuteDoesNotModifyInput(t *testing.T) {
	x := []float64{3, 1, 2}
	_, err := KS.Execute(x)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 1, 2}, x)
}

func TestInvalidSamples(t *testing.T) {
	for _, rvs := range [][]float64{
		nil,
		{},
		{1, 0, 2},
		{1, -2},
		{1, math.NaN()},
		{1, math.Inf(1)},
	} {
		_, err := KS.Execute(rvs)
		assert.ErrorIs(t, err, ErrInvalidSample, "%v", rvs)
	}
}

func TestLookup(t *testing.T) {
	s, err := Lookup("AD_exp")
	require.NoError(t, err)
	assert.Equal(t, AD.Code(), s.Code())

	s, err = Lookup("KSplus_exp")
	require.NoError(t, err)
	assert.Equal(t, KSPlus.Code(), s.Code())

	_, err = Lookup("SW_norm")
	assert.ErrorIs(t, err, ErrUnknownStatistic)

	assert.Equal(t, []string{"AD_exp", "CM_exp", "CO_exp", "KS_exp", "KSplus_exp"}, Codes())
}
