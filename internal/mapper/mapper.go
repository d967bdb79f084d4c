// Package mapper resolves free-form column headers to the fixed recipient
// schema and turns raw rows into canonical records.
package mapper

import (
	"strings"
	"time"

	"github.com/blagoySimandov/autoflow/internal/dataset"
	"github.com/blagoySimandov/autoflow/internal/models"
)

const (
	DefaultName    = "User"
	DefaultBalance = "0"
)

var synonyms = map[models.Field][]string{
	models.FieldRegistrationNumber: {"reg"},
	models.FieldBalance:            {"amount"},
}

// MapColumns matches every required field against headers. The first header,
// in input order, that contains the field name or one of its synonyms wins.
// Unmatched fields are returned in missing.
func MapColumns(headers []string) (models.FieldMapping, []models.Field) {
	mapping := make(models.FieldMapping)
	var missing []models.Field

	for _, field := range models.RequiredFields {
		if header, ok := matchHeader(field, headers); ok {
			mapping[field] = header
		} else {
			missing = append(missing, field)
		}
	}
	return mapping, missing
}

func matchHeader(field models.Field, headers []string) (string, bool) {
	needles := append([]string{strings.ToLower(string(field))}, synonyms[field]...)
	for _, header := range headers {
		h := strings.ToLower(header)
		for _, needle := range needles {
			if strings.Contains(h, needle) {
				return header, true
			}
		}
	}
	return "", false
}

// exactNames are the headers a field falls back to when the caller supplies
// its own mapping.
var exactNames = map[models.Field][]string{
	models.FieldRegistrationNumber: {"RegNo"},
}

// Resolve picks the mapping a run normalizes with. Without caller entries the
// heuristic mapping of MapColumns is used. With caller entries, fields the
// caller left out only fall back to a header named exactly like the field.
// Entries that do not name a header of the dataset are dropped.
func Resolve(headers []string, override models.FieldMapping) models.FieldMapping {
	if len(override) == 0 {
		mapping, _ := MapColumns(headers)
		return mapping
	}

	known := make(map[string]bool, len(headers))
	for _, h := range headers {
		known[h] = true
	}

	resolved := make(models.FieldMapping, len(models.RequiredFields))
	for _, f := range models.RequiredFields {
		if h, ok := override.Header(f); ok {
			if known[h] {
				resolved[f] = h
			}
			continue
		}
		for _, name := range append([]string{string(f)}, exactNames[f]...) {
			if known[name] {
				resolved[f] = name
				break
			}
		}
	}
	return resolved
}

// Normalize produces one record per row, in row order.
func Normalize(ds *dataset.Dataset, mapping models.FieldMapping) []*models.CanonicalRecord {
	records := make([]*models.CanonicalRecord, len(ds.Rows))
	now := time.Now()

	for i, row := range ds.Rows {
		value := func(f models.Field) string {
			if header, ok := mapping.Header(f); ok {
				return strings.TrimSpace(row[header])
			}
			return ""
		}

		records[i] = &models.CanonicalRecord{
			Index:              i,
			Name:               withDefault(value(models.FieldName), DefaultName),
			Email:              value(models.FieldEmail),
			Phone:              value(models.FieldPhone),
			RegistrationNumber: value(models.FieldRegistrationNumber),
			AccountStatus:      value(models.FieldStatus),
			Balance:            withDefault(value(models.FieldBalance), DefaultBalance),
			DueDate:            value(models.FieldDueDate),
			Raw:                row,
			Stage:              models.StagePending,
			UpdatedAt:          now,
		}
	}
	return records
}

func withDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
