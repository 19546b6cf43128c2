package manifest

import (
	"strings"

	"github.com/openmined/appsync/internal/snapi"
)

var recordNameReplacer = strings.NewReplacer("/", "〳", `\`, "〳", ".", "_DOT_")

// RecordName derives the on-disk name of a remote record. The name is taken from the
// record's name (or displayField when set), suffixed by the first non-empty differentiator,
// and made safe for use as a single path segment.
func RecordName(row snapi.Row, displayField string, differentiators []string) string {
	name := row.Display("name")
	if name == "" {
		name = row["sys_id"]
	}

	if displayField != "" {
		name = row.Display(displayField)
	}

	for _, df := range differentiators {
		if v := row[df]; v != "" {
			name += " (" + df + ":" + v + ")"
			break
		}
	}

	if name == "" {
		name = row["sys_id"]
	}

	return recordNameReplacer.Replace(name)
}
