package metadata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Header is the column order the portal expects.
var Header = []string{"Filename", "Title", "Keywords", "Category"}

// ErrInvalidRow is wrapped by every row-level parse error.
var ErrInvalidRow = errors.New("invalid metadata row")

// Row is one CSV line.
type Row struct {
	Filename string
	Title    string
	Keywords []string
	Category int
}

// RowFor builds the CSV row of an item.
func RowFor(it UploadItem) Row {
	return Row{
		Filename: it.Filename(),
		Title:    it.Title,
		Keywords: append([]string(nil), it.Keywords...),
		Category: it.Category,
	}
}

// SplitKeywords splits a comma-separated keyword cell, trimming blanks.
func SplitKeywords(s string) []string {
	var out []string
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// ReadCSV parses rows. Columns are located by header name so extra or
// reordered columns are tolerated.
func ReadCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	head, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty file", ErrInvalidRow)
		}
		return nil, err
	}

	col := make(map[string]int, len(head))
	for i, h := range head {
		col[strings.TrimPrefix(strings.TrimSpace(h), "\ufeff")] = i
	}
	for _, h := range Header {
		if _, ok := col[h]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrInvalidRow, h)
		}
	}

	var rows []Row
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		get := func(name string) string {
			if i := col[name]; i < len(rec) {
				return strings.TrimSpace(rec[i])
			}
			return ""
		}

		row := Row{
			Filename: get("Filename"),
			Title:    get("Title"),
			Keywords: SplitKeywords(get("Keywords")),
		}
		if row.Filename == "" {
			return nil, fmt.Errorf("%w: line %d has no filename", ErrInvalidRow, line)
		}
		if c := get("Category"); c != "" {
			row.Category, err = strconv.Atoi(c)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d category %q is not a number", ErrInvalidRow, line, c)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// WriteCSV writes the header and one row per entry. Keywords are joined with
// commas, which makes the csv writer quote the cell.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{r.Filename, r.Title, strings.Join(r.Keywords, ","), strconv.Itoa(r.Category)}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSVFile reads rows from path.
func ReadCSVFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f)
}

// WriteCSVFile writes rows to path, creating parent directories.
func WriteCSVFile(path string, rows []Row) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteCSV(f, rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Normalize rewrites in to out in canonical form: header order fixed,
// keywords trimmed and properly quoted.
func Normalize(in, out string) (int, error) {
	rows, err := ReadCSVFile(in)
	if err != nil {
		return 0, err
	}
	if err := WriteCSVFile(out, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// Merge applies rows onto items by filename. It returns the updated items
// and the filenames of rows that matched no item.
func Merge(items []UploadItem, rows []Row) ([]UploadItem, []string) {
	byName := make(map[string]Row, len(rows))
	for _, r := range rows {
		byName[r.Filename] = r
	}

	out := make([]UploadItem, len(items))
	for i, it := range items {
		if r, ok := byName[it.Filename()]; ok {
			it = it.WithMetadata(r.Title, r.Keywords, r.Category)
			delete(byName, it.Filename())
		}
		out[i] = it
	}

	var unmatched []string
	for _, r := range rows {
		if _, ok := byName[r.Filename]; ok {
			unmatched = append(unmatched, r.Filename)
		}
	}
	return out, unmatched
}
