package source

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/meridian-group/econwatch/internal/model"
)

// File reads a whole batch from a local CSV, JSON, or XLSX file. Window
// bounds are ignored for files; the file is the batch.
type File struct {
	name         string
	jurisdiction string
	path         string
	format       string
}

// NewFile creates a file adapter. Format is csv, json, or xlsx.
func NewFile(name, jurisdiction, path, format string) (*File, error) {
	switch format {
	case "csv", "json", "xlsx":
	default:
		return nil, eris.Errorf("source %s: unsupported file format %q", name, format)
	}
	return &File{name: name, jurisdiction: jurisdiction, path: path, format: format}, nil
}

func (f *File) Name() string         { return f.name }
func (f *File) Jurisdiction() string { return f.jurisdiction }

func (f *File) Fetch(ctx context.Context, _ Window) ([]model.ObservationInput, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "source: fetch cancelled")
	}

	switch f.format {
	case "csv":
		file, err := os.Open(f.path)
		if err != nil {
			return nil, eris.Wrapf(err, "source %s: open", f.name)
		}
		defer file.Close()
		return parseCSV(file)
	case "json":
		data, err := os.ReadFile(f.path)
		if err != nil {
			return nil, eris.Wrapf(err, "source %s: read", f.name)
		}
		return parseJSON(data)
	case "xlsx":
		return parseXLSX(f.path)
	}
	return nil, eris.Errorf("source %s: unsupported format %q", f.name, f.format)
}

func parseCSV(r io.Reader) ([]model.ObservationInput, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "source: read csv")
	}
	if len(records) == 0 {
		return nil, eris.New("source: csv file is empty")
	}
	return decodeRows(records[0], records[1:])
}

func parseJSON(data []byte) ([]model.ObservationInput, error) {
	var items []model.ObservationInput
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, eris.Wrap(err, "source: decode json")
	}
	for i := range items {
		if len(items[i].Raw) == 0 {
			if raw, err := json.Marshal(items[i]); err == nil {
				items[i].Raw = raw
			}
		}
	}
	return items, nil
}

func parseXLSX(path string) ([]model.ObservationInput, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "source: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("source: xlsx file has no sheets")
	}

	sheet := f.Sheets[0]
	var rows [][]string
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	if len(rows) == 0 {
		return nil, eris.New("source: xlsx sheet is empty")
	}
	return decodeRows(rows[0], rows[1:])
}
