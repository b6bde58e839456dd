package otp

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_SixDigitsInRange(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := Generate()
		require.NoError(t, err)
		require.Len(t, code, 6)
		n, err := strconv.Atoi(code)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 100000)
		assert.LessOrEqual(t, n, 999999)
	}
}

func TestGenerate_NotConstant(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		code, err := Generate()
		require.NoError(t, err)
		seen[code] = true
	}
	// 20 draws from 900k values colliding into one bucket would mean a broken RNG.
	assert.Greater(t, len(seen), 1)
}

func TestValidCode(t *testing.T) {
	assert.True(t, ValidCode("123456"))
	assert.True(t, ValidCode("000000"))
	assert.False(t, ValidCode("12345"))
	assert.False(t, ValidCode("1234567"))
	assert.False(t, ValidCode("12345a"))
	assert.False(t, ValidCode(""))
	assert.False(t, ValidCode("12 456"))
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "a@b.com", NormalizeEmail("  A@B.CoM "))
	assert.Equal(t, "a@b.com", NormalizeEmail("a@b.com"))
}

func TestValidEmail(t *testing.T) {
	assert.True(t, ValidEmail("user@example.com"))
	assert.True(t, ValidEmail("  User@Example.COM "))
	assert.False(t, ValidEmail("userexample.com"))
	assert.False(t, ValidEmail("user@example"))
	assert.False(t, ValidEmail("user @example.com"))
	assert.False(t, ValidEmail(""))
}

func TestKeys_NamespacedAndNormalized(t *testing.T) {
	assert.Equal(t, "otp:register:a@b.com", RegisterKey(" A@B.com "))
	assert.Equal(t, "otp:auth:a@b.com", AuthKey(" A@B.com "))
	assert.NotEqual(t, RegisterKey("a@b.com"), AuthKey("a@b.com"))
}
