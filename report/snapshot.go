package report

import (
	"encoding/json"
	"os"
)

// WriteSnapshot stores the report as an indented JSON file next to the
// rendered markdown, for diffing between runs.
func WriteSnapshot(path string, r *Report) (err error) {
	var data []byte
	if data, err = json.MarshalIndent(r, "", "  "); err != nil {
		return
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}
