package processor

import (
	"strings"
	"testing"
)

func TestDecodeRecordEnvelope(t *testing.T) {
	input := `{
		"data": {"asdf": [{
			"start_time": 1700000000,
			"stop_time": "2024-01-01 10:00",
			"filename": ["../mail/message.eml", "other.eml"],
			"meta": {"test3": ["alpha", 2, true], "test4": "bravo"}
		}]}
	}`
	record, err := DecodeRecord(strings.NewReader(input), "asdf")
	if err != nil {
		t.Fatalf("DecodeRecord: %v", err)
	}
	if record.Schema != SchemaEnvelope {
		t.Fatalf("expected envelope schema, got %q", record.Schema)
	}
	if record.StartTime != "1700000000" || record.StopTime != "2024-01-01 10:00" {
		t.Fatalf("unexpected times %q %q", record.StartTime, record.StopTime)
	}
	if record.Meta["test3"] != "alpha\n2\ntrue" {
		t.Fatalf("expected list joined by newlines, got %q", record.Meta["test3"])
	}
	if record.Meta["test4"] != "bravo" {
		t.Fatalf("unexpected test4 %q", record.Meta["test4"])
	}
	if record.Companion != "message.eml" {
		t.Fatalf("expected sanitized companion name, got %q", record.Companion)
	}
}

func TestDecodeRecordFlatWithMetaFilename(t *testing.T) {
	input := `{"schema": "flat", "start_time": "a", "filename": "", "meta": {"filename": "m.eml", "test4": 1.5}}`
	record, err := DecodeRecord(strings.NewReader(input), "ignored")
	if err != nil {
		t.Fatalf("DecodeRecord: %v", err)
	}
	if record.Schema != SchemaFlat || record.StartTime != "a" || record.StopTime != "" {
		t.Fatalf("unexpected record %+v", record)
	}
	if record.Companion != "m.eml" {
		t.Fatalf("expected meta filename fallback, got %q", record.Companion)
	}
	if record.Meta["test4"] != "1.5" {
		t.Fatalf("unexpected number rendering %q", record.Meta["test4"])
	}
}

func TestDecodeRecordRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"not json":       `{"data":`,
		"missing key":    `{"data": {"other": [{}]}}`,
		"empty list":     `{"data": {"asdf": []}}`,
		"unknown schema": `{"schema": "xml"}`,
		"record not obj": `{"data": {"asdf": ["text"]}}`,
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := DecodeRecord(strings.NewReader(input), "asdf"); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestDecodeRecordWithoutCompanion(t *testing.T) {
	record, err := DecodeRecord(strings.NewReader(`{"data": {"asdf": [{"meta": {}}]}}`), "asdf")
	if err != nil {
		t.Fatalf("DecodeRecord: %v", err)
	}
	if record.Companion != "" {
		t.Fatalf("expected no companion, got %q", record.Companion)
	}
}
