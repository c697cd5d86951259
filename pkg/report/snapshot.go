package report

import (
	"fmt"
	"os"

	"github.com/tidwall/gjson"
)

const DefaultSnapshotPath = "exportOOP.json"

// WriteSnapshot overwrites path with body, pretty-printed with a four space indent.
func WriteSnapshot(path, body string) error {
	if path == "" {
		path = DefaultSnapshotPath
	}
	if !gjson.Valid(body) {
		return fmt.Errorf("snapshot for %s is not valid JSON", path)
	}

	pretty := gjson.Get(body, `@pretty:{"indent":"    "}`).Raw
	if err := os.WriteFile(path, []byte(pretty), 0o644); err != nil {
		return fmt.Errorf("writing snapshot %s: %w", path, err)
	}
	return nil
}
