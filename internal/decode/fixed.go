package decode

import (
	"math/big"
	"strings"
)

// FormatFixed renders value / 10^exponent with digits fractional digits. Extra precision is
// truncated toward zero, never rounded.
func FormatFixed(value *big.Int, exponent, digits int) string {
	if value == nil {
		return ""
	}
	if exponent < 0 {
		exponent = 0
	}
	if digits < 0 {
		digits = 0
	}

	abs := new(big.Int).Abs(value)
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exponent)), nil)
	whole, rem := new(big.Int).QuoRem(abs, unit, new(big.Int))

	frac := new(big.Int).Mul(rem, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil))
	frac.Quo(frac, unit)

	var b strings.Builder
	if value.Sign() < 0 && (whole.Sign() != 0 || frac.Sign() != 0) {
		b.WriteByte('-')
	}
	b.WriteString(whole.String())
	if digits > 0 {
		fracText := frac.String()
		b.WriteByte('.')
		b.WriteString(strings.Repeat("0", digits-len(fracText)))
		b.WriteString(fracText)
	}
	return b.String()
}
