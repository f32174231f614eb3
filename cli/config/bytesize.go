package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

var byteSuffixes = []struct {
	suffix string
	shift  uint
}{
	{"kib", 10}, {"mib", 20}, {"gib", 30}, {"tib", 40},
	{"k", 10}, {"m", 20}, {"g", 30}, {"t", 40},
	{"b", 0},
}

// ParseByteSize parses a byte count such as "0", "65536", "64KiB" or "4G".
// Empty input yields 0. Negative counts are accepted and mean unbounded.
func ParseByteSize(s string) (int64, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "" {
		return 0, nil
	}
	var shift uint
	for _, bs := range byteSuffixes {
		if strings.HasSuffix(v, bs.suffix) {
			v, shift = strings.TrimSpace(strings.TrimSuffix(v, bs.suffix)), bs.shift
			break
		}
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q", s)
	}
	if shift > 0 && (n > math.MaxInt64>>shift || n < math.MinInt64>>shift) {
		return 0, fmt.Errorf("byte size %q overflows", s)
	}
	return n << shift, nil
}
