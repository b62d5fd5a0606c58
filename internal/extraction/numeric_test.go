package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocaleFloat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  float64
	}{
		{"dot decimal", "2.5", 2.5},
		{"comma decimal", "3,14", 3.14},
		{"comma as thousands separator", "1,234.5", 1234.5},
		{"plain integer", "1920", 1920},
		{"surrounding whitespace", "  7,5 ", 7.5},
		{"negative comma decimal", "-0,25", -0.25},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseLocaleFloat(tt.input)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}

	t.Run("non-numeric input", func(t *testing.T) {
		t.Parallel()
		_, err := ParseLocaleFloat("not a number")
		assert.Error(t, err)
	})
}

func TestParseSamples(t *testing.T) {
	t.Parallel()

	t.Run("comma-delimited list", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, []float64{1, 2, 3}, ParseSamples("1,2,3", 1))
	})

	t.Run("bracketed array", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, []float64{1.5, -2, 3}, ParseSamples("[1.5, -2, 3]", 1))
	})

	t.Run("single scalar", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, []float64{42}, ParseSamples("42", 1))
	})

	t.Run("non-numeric tokens dropped", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, []float64{1, 3}, ParseSamples("1,x,3", 1))
	})

	t.Run("scale applied before rounding", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, []float64{1, 2}, ParseSamples("0.001,0.002", 1000))
	})

	t.Run("values rounded to storage precision", func(t *testing.T) {
		t.Parallel()
		got := ParseSamples("0.123456789", 1)
		require.Len(t, got, 1)
		assert.Equal(t, 0.12345679, got[0])
	})

	t.Run("empty payload", func(t *testing.T) {
		t.Parallel()
		assert.Nil(t, ParseSamples("", 1))
		assert.Nil(t, ParseSamples("   ", 1))
	})
}
