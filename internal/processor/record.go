package processor

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
)

// Schema names an input record layout.
type Schema string

const (
	// SchemaEnvelope nests the record at data.<record_key>[0]. It is the
	// default when the document carries no schema field.
	SchemaEnvelope Schema = "envelope"
	// SchemaFlat places the record fields at the top level.
	SchemaFlat Schema = "flat"
)

// Record is the decoded, stringified content of an input record.
type Record struct {
	Schema    Schema
	StartTime string
	StopTime  string
	// Companion is the base name of the companion message, or empty.
	Companion string
	Meta      map[string]string
}

type rawRecord struct {
	StartTime any            `json:"start_time"`
	StopTime  any            `json:"stop_time"`
	Filename  any            `json:"filename"`
	Meta      map[string]any `json:"meta"`
}

type rawEnvelope struct {
	Data map[string][]json.RawMessage `json:"data"`
}

// DecodeRecord reads a record document. recordKey selects the list inside
// data for the envelope schema.
func DecodeRecord(r io.Reader, recordKey string) (Record, error) {
	payload, err := io.ReadAll(r)
	if err != nil {
		return Record{}, fmt.Errorf("read record: %w", err)
	}

	var head struct {
		Schema string `json:"schema"`
	}
	if err := json.Unmarshal(payload, &head); err != nil {
		return Record{}, fmt.Errorf("decode record: %w", err)
	}

	schema := Schema(strings.ToLower(strings.TrimSpace(head.Schema)))
	var body []byte
	switch schema {
	case "", SchemaEnvelope:
		schema = SchemaEnvelope
		var env rawEnvelope
		if err := json.Unmarshal(payload, &env); err != nil {
			return Record{}, fmt.Errorf("decode envelope: %w", err)
		}
		items := env.Data[recordKey]
		if len(items) == 0 {
			return Record{}, fmt.Errorf("envelope has no records under data.%s", recordKey)
		}
		body = items[0]
	case SchemaFlat:
		body = payload
	default:
		return Record{}, fmt.Errorf("unsupported record schema %q", head.Schema)
	}

	var raw rawRecord
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	if err := decoder.Decode(&raw); err != nil {
		return Record{}, fmt.Errorf("decode record fields: %w", err)
	}

	record := Record{
		Schema:    schema,
		StartTime: stringify(raw.StartTime),
		StopTime:  stringify(raw.StopTime),
		Meta:      make(map[string]string, len(raw.Meta)),
	}
	for key, value := range raw.Meta {
		record.Meta[key] = stringify(value)
	}

	companion := firstName(raw.Filename)
	if companion == "" {
		companion = firstName(raw.Meta["filename"])
	}
	if companion != "" {
		companion = filepath.Base(filepath.Clean(companion))
		if companion == "." || companion == string(filepath.Separator) || companion == ".." {
			companion = ""
		}
	}
	record.Companion = companion
	return record, nil
}

// stringify renders a decoded JSON value. Lists are joined by newlines.
func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		if v {
			return "true"
		}
		return "false"
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, stringify(item))
		}
		return strings.Join(parts, "\n")
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(encoded)
	}
}

// firstName returns a companion name from a string or the first element of a list.
func firstName(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case []any:
		if len(v) == 0 {
			return ""
		}
		return firstName(v[0])
	default:
		return ""
	}
}
