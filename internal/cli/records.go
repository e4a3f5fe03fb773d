package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"

	"sftocsv/internal/csvfile"
	"sftocsv/internal/record"
)

// readRecordsFile loads a .csv file (every cell a string) or a .json file
// holding either an array of records or a query response with a records
// field.
func readRecordsFile(path string) (record.Collection, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return csvfile.ReadRecords(path)
	case ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return decodeRecords(data)
	default:
		return nil, fmt.Errorf("%s: unsupported file type (want .csv or .json)", path)
	}
}

func decodeRecords(data []byte) (record.Collection, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var resp struct {
			Records record.Collection `json:"records"`
		}
		if err := json.Unmarshal(data, &resp); err != nil {
			return nil, fmt.Errorf("parse records: %w", err)
		}
		return resp.Records, nil
	}
	var recs record.Collection
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("parse records: %w", err)
	}
	return recs, nil
}
