package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestWrite_JSON(t *testing.T) {
	var buf bytes.Buffer
	data := []map[string]any{{"id": "1", "name": "a"}}
	if err := Write(&buf, FormatJSON, data); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	var decoded []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if len(decoded) != 1 || decoded[0]["id"] != "1" {
		t.Errorf("unexpected decoded output: %v", decoded)
	}
}

func TestWrite_JSONLMultipleLines(t *testing.T) {
	var buf bytes.Buffer
	data := []map[string]any{{"id": "1"}, {"id": "2"}}
	if err := Write(&buf, FormatJSONL, data); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}
}

func TestWrite_CSVHeaderAndRows(t *testing.T) {
	var buf bytes.Buffer
	data := []map[string]any{{"id": "1", "name": "alpha"}, {"id": "2", "name": "beta"}}
	if err := Write(&buf, FormatCSV, data); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines: %q", len(lines), buf.String())
	}
	if lines[0] != "id,name" {
		t.Errorf("expected sorted header, got %q", lines[0])
	}
}

func TestWrite_TableEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, FormatTable, []map[string]any{}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if !strings.Contains(buf.String(), "No results.") {
		t.Errorf("expected empty-results message, got %q", buf.String())
	}
}

func TestUnwrap_EnvelopeWithItemsAndTotal(t *testing.T) {
	data := map[string]any{
		"items": []any{
			map[string]any{"id": "1"},
			map[string]any{"id": "2"},
		},
		"total": float64(2),
	}
	rows, single := unwrap(data)
	if single {
		t.Error("expected single=false for an items envelope")
	}
	if len(rows) != 2 {
		t.Errorf("expected 2 rows, got %d", len(rows))
	}
}

func TestUnwrap_SingleObject(t *testing.T) {
	data := map[string]any{"id": "1", "name": "solo"}
	rows, single := unwrap(data)
	if !single {
		t.Error("expected single=true for a bare object")
	}
	if len(rows) != 1 {
		t.Errorf("expected 1 row, got %d", len(rows))
	}
}

func TestTruncate(t *testing.T) {
	short := "hello"
	if truncate(short) != short {
		t.Errorf("short string should be unchanged, got %q", truncate(short))
	}
	long := strings.Repeat("x", 100)
	got := truncate(long)
	if len(got) != truncateWidth {
		t.Errorf("expected truncated length %d, got %d", truncateWidth, len(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("expected ellipsis suffix, got %q", got)
	}
}
