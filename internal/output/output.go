// Package output implements the result-formatting surface
// (table/json/jsonl/csv) every command funnels its final payload through,
// grounded on original_source/src/fz_cli/output.py's format dispatch and
// envelope-unwrapping rules, using github.com/olekukonko/tablewriter for
// the table renderer (grounded on stacklok-toolhive's
// cmd/thv/app/ui/clients_status.go usage) in place of the source's
// tabulate.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

// Format is one of the recognized output formats.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
	FormatCSV   Format = "csv"
)

const truncateWidth = 60

// Write renders data in the given format to w. data is typically a
// []map[string]any, a single map[string]any, or an envelope shaped like
// {"items": [...], "total": N} — unwrap normalizes all three before
// rendering.
func Write(w io.Writer, format Format, data any) error {
	rows, single := unwrap(data)

	switch format {
	case FormatJSON:
		return writeJSON(w, data)
	case FormatJSONL:
		return writeJSONL(w, rows, single)
	case FormatCSV:
		return writeCSV(w, rows)
	default:
		return writeTable(w, rows)
	}
}

// unwrap normalizes data into a row list. A bare list is used as-is; an
// {"items": [...], "total": N} envelope yields its items; a single object
// is wrapped into a one-row list and also returned as single for formats
// that special-case a lone record.
func unwrap(data any) (rows []map[string]any, single bool) {
	switch v := data.(type) {
	case []map[string]any:
		return v, false
	case map[string]any:
		if items, ok := v["items"]; ok {
			if list, ok := items.([]map[string]any); ok {
				return list, false
			}
			if list, ok := items.([]any); ok {
				return toMapSlice(list), false
			}
		}
		return []map[string]any{v}, true
	case []any:
		return toMapSlice(v), false
	default:
		return nil, false
	}
}

func toMapSlice(list []any) []map[string]any {
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func writeJSON(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func writeJSONL(w io.Writer, rows []map[string]any, single bool) error {
	enc := json.NewEncoder(w)
	if single && len(rows) == 1 {
		return enc.Encode(rows[0])
	}
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			return err
		}
	}
	return nil
}

func writeCSV(w io.Writer, rows []map[string]any) error {
	if len(rows) == 0 {
		return nil
	}
	headers := sortedKeys(rows[0])
	cw := csv.NewWriter(w)
	if err := cw.Write(headers); err != nil {
		return err
	}
	for _, row := range rows {
		record := make([]string, len(headers))
		for i, h := range headers {
			record[i] = fmt.Sprint(row[h])
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeTable(w io.Writer, rows []map[string]any) error {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No results.")
		return nil
	}
	headers := sortedKeys(rows[0])

	table := tablewriter.NewWriter(w)
	table.Options(
		tablewriter.WithHeader(headers),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.Border{Left: tw.State(1), Top: tw.State(1), Right: tw.State(1), Bottom: tw.State(1)},
		}),
	)

	for _, row := range rows {
		record := make([]string, len(headers))
		for i, h := range headers {
			record[i] = truncate(fmt.Sprint(row[h]))
		}
		if err := table.Append(record); err != nil {
			return fmt.Errorf("appending row: %w", err)
		}
	}
	return table.Render()
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func truncate(s string) string {
	if len(s) <= truncateWidth {
		return s
	}
	return s[:truncateWidth-3] + "..."
}
