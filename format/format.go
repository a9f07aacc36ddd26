package format

import (
	"strconv"
	"strings"
)

var countUnits = []struct {
	size int64
	name string
}{
	{1_000_000_000, "B"},
	{1_000_000, "M"},
	{1_000, "K"},
}

// HumanCount formats an element or parameter count, e.g. 1.5M.
func HumanCount(n int64) string {
	for _, u := range countUnits {
		if n >= u.size {
			return truncate(float64(n)/float64(u.size)) + u.name
		}
	}

	return strconv.FormatInt(n, 10)
}

// Shape formats tensor dimensions as 3072x16. A scalar has no dimensions.
func Shape(dims []int64) string {
	if len(dims) == 0 {
		return "scalar"
	}

	s := make([]string, len(dims))
	for i, d := range dims {
		s[i] = strconv.FormatInt(d, 10)
	}
	return strings.Join(s, "x")
}
