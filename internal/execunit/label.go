package execunit

import (
	"strings"
	"time"
)

const labelLayout = "2006-01-02T15:04:05.000000"

var labelReplacer = strings.NewReplacer(":", "_", ".", "_")

// Label names the unit covering (prev, current]. Both times are rendered in
// UTC with microseconds, so distinct pairs give distinct labels, and the
// result contains no ':' or '.' and is safe as a directory or file name.
func Label(prev, current time.Time) string {
	return labelReplacer.Replace(prev.UTC().Format(labelLayout)) + "_" +
		labelReplacer.Replace(current.UTC().Format(labelLayout))
}
