package google

import (
	"strings"

	ports "costing/internal/sheets"
)

// parseSaveIDs maps each save id found in column A to its 1-based row
// number. The header and blank cells are skipped; a repeated id keeps its
// first row.
func parseSaveIDs(values [][]interface{}) map[string]int {
	header := strings.TrimSpace(ports.Header[0].(string))
	ids := make(map[string]int, len(values))
	for i, row := range values {
		cols := toStrings(row)
		if len(cols) == 0 {
			continue
		}
		id := cols[0]
		if id == "" || strings.EqualFold(id, header) {
			continue
		}
		if _, seen := ids[id]; seen {
			continue
		}
		ids[id] = i + 1
	}
	return ids
}
