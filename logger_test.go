package rastersample_test

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/alecthomas/assert/v2"

	"github.com/twpayne/go-rastersample"
)

func TestSetLogger(t *testing.T) {
	var buffer bytes.Buffer
	rastersample.SetLogger(slog.New(slog.NewTextHandler(&buffer, nil)))
	defer rastersample.SetLogger(nil)

	band, err := rastersample.NewMemBand([][]float64{
		{10.5, 1.3},
		{2.4, 3.8},
	})
	assert.NoError(t, err)

	quiet := rastersample.NewSampler(rastersample.WithErrorPolicy(rastersample.ErrorPolicyQuiet))
	_, ok, err := quiet.InterpolateAtPoint(t.Context(), band, 1, 1, rastersample.Method(99))
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, strings.Contains(buffer.String(), "unsupported interpolation method"))
}
