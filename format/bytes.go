package format

import (
	"math"
	"strconv"
)

const (
	Byte     = 1
	KibiByte = Byte << 10
	MebiByte = KibiByte << 10
	GibiByte = MebiByte << 10
	TebiByte = GibiByte << 10
)

var byteUnits = []struct {
	size int64
	name string
}{
	{TebiByte, "TiB"},
	{GibiByte, "GiB"},
	{MebiByte, "MiB"},
	{KibiByte, "KiB"},
}

// HumanBytes formats b with binary units, truncated to one decimal.
func HumanBytes(b int64) string {
	for _, u := range byteUnits {
		if b >= u.size {
			return truncate(float64(b)/float64(u.size)) + " " + u.name
		}
	}

	return strconv.FormatInt(b, 10) + " B"
}

func truncate(f float64) string {
	return strconv.FormatFloat(math.Floor(f*10)/10, 'f', -1, 64)
}
