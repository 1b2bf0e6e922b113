package eval

import (
	"bytes"
	"fmt"
	"strings"
)

// lineDiff renders want against got line by line. Matching lines are
// skipped; it is only meant to make a failed equality readable.
func lineDiff(want, got string) string {
	if want == got {
		return ""
	}
	var buf bytes.Buffer
	buf.WriteString("--- want\n")
	buf.WriteString("+++ got\n")
	wl := strings.Split(want, "\n")
	gl := strings.Split(got, "\n")
	i, j := 0, 0
	for i < len(wl) || j < len(gl) {
		if i < len(wl) && j < len(gl) && wl[i] == gl[j] {
			i++
			j++
			continue
		}
		if i < len(wl) {
			fmt.Fprintf(&buf, "-%s\n", wl[i])
			i++
		}
		if j < len(gl) {
			fmt.Fprintf(&buf, "+%s\n", gl[j])
			j++
		}
	}
	return buf.String()
}
