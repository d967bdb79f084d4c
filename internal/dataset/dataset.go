package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	ErrNotFound          = errors.New("dataset not found")
	ErrPermissionDenied  = errors.New("dataset access denied")
	ErrUnreadable        = errors.New("dataset unreadable")
	ErrUnsupportedFormat = errors.New("unsupported dataset format")
)

// Row maps a column header to its cell value.
type Row map[string]string

// Dataset is the ingested table for one run. It is not modified after decoding.
type Dataset struct {
	Headers []string
	Rows    []Row
}

// Preview returns up to n leading rows.
func (d *Dataset) Preview(n int) []Row {
	if n > len(d.Rows) {
		n = len(d.Rows)
	}
	return d.Rows[:n]
}

// Source opens a dataset by its opaque handle.
type Source interface {
	Open(ctx context.Context, handle string) (io.ReadCloser, error)
}

// Store is a Source that also accepts uploads.
type Store interface {
	Source
	Save(ctx context.Context, ext string, r io.Reader) (string, error)
}

// Load opens the handle through src and decodes it. Decoding failures are
// wrapped with ErrUnreadable.
func Load(ctx context.Context, src Source, handle string) (*Dataset, error) {
	rc, err := src.Open(ctx, handle)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	ds, err := Decode(handle, rc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	return ds, nil
}

// SupportedExtension reports whether Decode understands files ending in ext.
func SupportedExtension(ext string) bool {
	switch strings.ToLower(ext) {
	case ".csv", ".xlsx", ".xlsm":
		return true
	}
	return false
}

// Decode picks a decoder from the file extension of name.
func Decode(name string, r io.Reader) (*Dataset, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return decodeCSV(r)
	case ".xlsx", ".xlsm":
		return decodeXLSX(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(name))
	}
}

func decodeCSV(r io.Reader) (*Dataset, error) {
	csvReader := csv.NewReader(r)
	csvReader.FieldsPerRecord = -1
	csvReader.TrimLeadingSpace = true

	var records [][]string
	for {
		record, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row: %w", err)
		}
		records = append(records, record)
	}
	return fromRecords(records), nil
}

func decodeXLSX(r io.Reader) (*Dataset, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return &Dataset{}, nil
	}

	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	return fromRecords(records), nil
}

// fromRecords treats the first record as the header row. Blank rows are dropped
// and short rows leave the trailing cells absent.
func fromRecords(records [][]string) *Dataset {
	ds := &Dataset{}
	if len(records) == 0 {
		return ds
	}

	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		h = strings.TrimSpace(h)
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		headers[i] = h
	}
	ds.Headers = headers

	for _, record := range records[1:] {
		row := make(Row, len(headers))
		for i, cell := range record {
			if i >= len(headers) || headers[i] == "" {
				continue
			}
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			row[headers[i]] = cell
		}
		if len(row) == 0 {
			continue
		}
		ds.Rows = append(ds.Rows, row)
	}
	return ds
}
