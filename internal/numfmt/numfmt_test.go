package numfmt

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatPrefersOriginalString(t *testing.T) {
	assert.Equal(t, "0.01", Format("0.0100000", math.NaN()))
	assert.Equal(t, "100.5", Format("100.50", 100.5))
	assert.Equal(t, "7254.7", Format("7254.7", 7254.7))
}

func TestFormatNegativeZero(t *testing.T) {
	assert.Equal(t, "0", Format("-0.0", math.NaN()))
	assert.Equal(t, "0", Format("0.000", math.NaN()))
}

func TestFormatFloatFallback(t *testing.T) {
	assert.Equal(t, "0.000000001", Format("", 1e-9))
	assert.Equal(t, "2", Format("", 2.0))
}

func TestFormatTruncatesToMaxDecimals(t *testing.T) {
	assert.Equal(t, "1.234567890123", Format("1.234567890123456", math.NaN()))
	assert.Equal(t, "1.23", FormatN("1.23999", math.NaN(), 2))
	// truncation, not rounding
	assert.Equal(t, "0.99", FormatN("0.999", math.NaN(), 2))
}

func TestFormatNone(t *testing.T) {
	assert.Equal(t, None, Format("", math.NaN()))
	assert.Equal(t, None, Format("", math.Inf(1)))
	assert.Equal(t, None, Format("", math.Inf(-1)))
	assert.Equal(t, None, FormatFloat(math.NaN()))
}

func TestFormatUnparsableStringFallsBackToFloat(t *testing.T) {
	assert.Equal(t, "3.5", Format("not-a-number", 3.5))
	assert.Equal(t, None, Format("not-a-number", math.NaN()))
}

func TestFormatIntegerStaysPlain(t *testing.T) {
	assert.Equal(t, "42000", Format("42000", math.NaN()))
	assert.Equal(t, "-12.5", Format("-12.500", math.NaN()))
}
