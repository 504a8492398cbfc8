package manifest

import (
	"math"
	"strconv"
)

// ScaleDurations rewrites the duration column of src into dst, multiplied
// by factor (1000 turns seconds into milliseconds). Fractions are kept:
// 1.2345 s becomes 1234.5, whole values keep the ".0" suffix.
func ScaleDurations(src, dst string, factor float64) (int, error) {
	recs, err := ReadManifest(src)
	if err != nil {
		return 0, err
	}
	lines := make([]string, len(recs))
	for i, r := range recs {
		lines[i] = r.ID + " " + r.Path + " " + exactDuration(r.DurationMs*factor) + " " + r.Text
	}
	return len(recs), WriteAtomic(dst, lines)
}

func exactDuration(ms float64) string {
	if ms == math.Trunc(ms) {
		return strconv.FormatFloat(ms, 'f', 1, 64)
	}
	return strconv.FormatFloat(ms, 'f', -1, 64)
}
