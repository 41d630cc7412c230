package source

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/meridian-group/econwatch/internal/model"
)

// Recognized column names for tabular feeds. Matching is case-insensitive
// and unknown columns are carried into metadata rather than rejected.
const (
	colEntity         = "entity"
	colIndicator      = "indicator"
	colSubRegion      = "sub_region"
	colPeriod         = "period"
	colValue          = "value"
	colUnit           = "unit"
	colOfficial       = "official"
	colConfidence     = "confidence"
	colClassification = "classification"
)

var knownColumns = map[string]bool{
	colEntity: true, colIndicator: true, colSubRegion: true, colPeriod: true,
	colValue: true, colUnit: true, colOfficial: true, colConfidence: true,
	colClassification: true,
}

// decodeRows maps header-addressed rows onto observation inputs. Cell-level
// parse problems leave the typed field unset so validation can name them;
// the original row survives verbatim in Raw.
func decodeRows(header []string, rows [][]string) ([]model.ObservationInput, error) {
	idx := make(map[string]int, len(header))
	for i, col := range header {
		idx[strings.ToLower(strings.TrimSpace(col))] = i
	}
	if _, ok := idx[colEntity]; !ok {
		return nil, eris.New("source: header has no entity column")
	}
	if _, ok := idx[colIndicator]; !ok {
		return nil, eris.New("source: header has no indicator column")
	}

	items := make([]model.ObservationInput, 0, len(rows))
	for _, row := range rows {
		items = append(items, decodeRow(header, idx, row))
	}
	return items, nil
}

func decodeRow(header []string, idx map[string]int, row []string) model.ObservationInput {
	cell := func(col string) string {
		i, ok := idx[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	item := model.ObservationInput{
		Entity:         cell(colEntity),
		Indicator:      cell(colIndicator),
		SubRegion:      cell(colSubRegion),
		Period:         cell(colPeriod),
		Unit:           cell(colUnit),
		Classification: cell(colClassification),
	}

	if v := cell(colValue); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			item.Value = &f
		}
	}
	if c := cell(colConfidence); c != "" {
		if f, err := strconv.ParseFloat(c, 64); err == nil {
			item.Confidence = &f
		}
	}
	item.Official = parseBoolCell(cell(colOfficial))

	raw := make(map[string]string, len(header))
	for i, col := range header {
		if i < len(row) {
			raw[strings.ToLower(strings.TrimSpace(col))] = strings.TrimSpace(row[i])
		}
	}
	for col, v := range raw {
		if !knownColumns[col] && v != "" {
			if item.Metadata == nil {
				item.Metadata = make(map[string]any)
			}
			item.Metadata[col] = v
		}
	}
	if data, err := json.Marshal(raw); err == nil {
		item.Raw = data
	}
	return item
}

func parseBoolCell(s string) bool {
	switch strings.ToLower(s) {
	case "true", "t", "yes", "y", "1", "official":
		return true
	}
	return false
}
