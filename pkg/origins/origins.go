package origins

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Delimiter separates fields in input rows.
const Delimiter = ';'

// Load reads path and returns the first field of every non-empty row, in file order.
// Duplicates are kept and nothing is validated: a header row is returned like any other origin.
func Load(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening input file %s: %w", path, err)
	}
	defer file.Close()

	list, err := Read(file)
	if err != nil {
		return nil, fmt.Errorf("reading input file %s: %w", path, err)
	}
	return list, nil
}

// Read is Load for an already opened reader.
func Read(r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	reader.Comma = Delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var list []string
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			continue
		}
		list = append(list, row[0])
	}
	return list, nil
}
