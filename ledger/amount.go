package ledger

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// decimal numbers only: no hex floats, no NaN or Inf spellings
var amountPattern = regexp.MustCompile(`^[-+]?(\d+(\.\d*)?|\.\d+)([eE][-+]?\d+)?$`)

// ParseAmount converts a major-unit amount ("10", "19.99", 5e2) into minor
// units, rounding half away from zero.
func ParseAmount(text string) (int64, error) {
	text = strings.TrimSpace(text)
	if !amountPattern.MatchString(text) {
		return 0, ErrInvalidAmount
	}

	v, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0, ErrInvalidAmount
	}

	minor := math.Round(v * 100)
	if minor < 1 || minor >= math.MaxInt64 {
		return 0, ErrInvalidAmount
	}
	return int64(minor), nil
}
