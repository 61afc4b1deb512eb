package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinPilot/internal/ports"
)

func TestSanitize(t *testing.T) {
	v, err := sanitize("price", 45000.5)
	require.NoError(t, err)
	assert.Equal(t, 45000.5, v)

	_, err = sanitize("price", math.NaN())
	assert.ErrorIs(t, err, ports.ErrInvalidNumeric)

	_, err = sanitize("price", math.Inf(1))
	assert.ErrorIs(t, err, ports.ErrInvalidNumeric)

	_, err = sanitize("price", math.Inf(-1))
	assert.ErrorIs(t, err, ports.ErrInvalidNumeric)

	// Negative values are fine for the plain variant (profits can be losses).
	v, err = sanitize("profit", -12.5)
	require.NoError(t, err)
	assert.Equal(t, -12.5, v)
}

func TestSanitizePositive(t *testing.T) {
	v, err := sanitizePositive("qty", 0.25)
	require.NoError(t, err)
	assert.Equal(t, 0.25, v)

	_, err = sanitizePositive("qty", 0)
	assert.ErrorIs(t, err, ports.ErrInvalidNumeric)

	_, err = sanitizePositive("qty", -1)
	assert.ErrorIs(t, err, ports.ErrInvalidNumeric)

	_, err = sanitizePositive("qty", math.NaN())
	assert.ErrorIs(t, err, ports.ErrInvalidNumeric)
}
