// Package csvfile persists record collections as CSV files and reads them back.
package csvfile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"sftocsv/internal/record"
)

const ext = ".csv"

// Path normalizes name to a single .csv suffix.
func Path(name string) string {
	return strings.TrimSuffix(name, ext) + ext
}

// BagPath returns the file name used for one type of a bag: <prefix>_<Type>.csv.
func BagPath(prefix, typ string) string {
	return strings.TrimSuffix(prefix, ext) + "_" + typ + ext
}

// KeyList returns the union of field names across records, first-seen order.
func KeyList(records record.Collection) []string {
	return records.Keys()
}

// Write encodes records as CSV to w. The header is the union of all field
// names; missing fields render as empty cells.
func Write(w io.Writer, records record.Collection) error {
	header := KeyList(records)
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	row := make([]string, len(header))
	for i, r := range records {
		for j, k := range header {
			v, _ := r.Get(k)
			row[j] = record.Format(v)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteRecords writes records to the CSV file at path. With appendMode set,
// rows already in the file are kept and the header becomes the union of the
// existing columns and the new fields. A missing file is simply created.
func WriteRecords(records record.Collection, path string, appendMode bool) error {
	path = Path(path)

	all := record.Collection{}
	if appendMode {
		existing, err := ReadRecords(path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("read existing %s: %w", path, err)
		}
		all = append(all, existing...)
	}
	all = append(all, records...)

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := Write(f, all); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// WriteBag writes one file per type in bag, named <prefix>_<Type>.csv.
// It returns the paths written, in type order.
func WriteBag(bag *record.Bag, prefix string, appendMode bool) ([]string, error) {
	var paths []string
	for _, typ := range bag.Types() {
		recs, _ := bag.Get(typ)
		p := BagPath(prefix, typ)
		if err := WriteRecords(recs, p, appendMode); err != nil {
			return paths, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// ReadRecords reads a CSV file with a header row. Every cell becomes a
// String value; columns a row lacks are left out of that row.
func ReadRecords(path string) (record.Collection, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f, Options{HasHeader: true})
}

// Options controls how Read parses its input.
type Options struct {
	Delimiter rune
	HasHeader bool
	// Convert maps a raw cell to a Value. Nil keeps every cell as a String.
	Convert func(string) record.Value
}

// Read parses CSV from r into records. Without a header, columns are named
// col_1, col_2, ...
func Read(r io.Reader, opts Options) (record.Collection, error) {
	reader := csv.NewReader(r)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(rows) == 0 {
		return record.Collection{}, nil
	}

	var header []string
	if opts.HasHeader {
		header, rows = rows[0], rows[1:]
	} else {
		header = make([]string, len(rows[0]))
		for i := range header {
			header[i] = fmt.Sprintf("col_%d", i+1)
		}
	}

	convert := opts.Convert
	if convert == nil {
		convert = func(s string) record.Value { return record.String(s) }
	}

	out := make(record.Collection, 0, len(rows))
	for _, row := range rows {
		rec := record.New()
		for j, h := range header {
			if j < len(row) {
				rec.Set(h, convert(row[j]))
			}
		}
		out = append(out, rec)
	}
	return out, nil
}
