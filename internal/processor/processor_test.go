package processor_test

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"emlwatch/internal/logging"
	"emlwatch/internal/processor"
)

const recordJSON = `{"data": {"asdf": [{
	"start_time": "09:00",
	"stop_time": "10:00",
	"filename": "mail.eml",
	"meta": {"test3": ["a&b", "c"], "test4": "four"}
}]}}`

const companionEML = "Subject: hi\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=x\r\n" +
	"\r\n" +
	"--x\r\n" +
	"Content-Type: text/plain\r\n" +
	"\r\n" +
	"hello\r\nworld\r\n" +
	"--x\r\n" +
	"Content-Type: application/octet-stream\r\n" +
	"Content-Disposition: attachment; filename=data.bin\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"AAECAwQ=\r\n" +
	"--x--\r\n"

func options(templatePath string) processor.Options {
	return processor.Options{
		TemplatePath:          templatePath,
		RecordKey:             "asdf",
		InputExtension:        ".json",
		OutputExtension:       ".docx",
		TempExtension:         ".tmp",
		CompanionTimeout:      200 * time.Millisecond,
		CompanionPollInterval: 20 * time.Millisecond,
	}
}

func write(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func writeDocxTemplate(t *testing.T, path, documentXML string) {
	t.Helper()
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create template: %v", err)
	}
	defer file.Close()
	zw := zip.NewWriter(file)
	parts := map[string]string{
		"[Content_Types].xml": `<?xml version="1.0"?><Types/>`,
		"word/document.xml":   documentXML,
	}
	for name, content := range parts {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create: %v", err)
		}
		if _, err := io.WriteString(w, content); err != nil {
			t.Fatalf("zip write: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
}

func readDocxPart(t *testing.T, path, name string) string {
	t.Helper()
	archive, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("open artifact: %v", err)
	}
	defer archive.Close()
	for _, file := range archive.File {
		if file.Name != name {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			t.Fatalf("open part: %v", err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			t.Fatalf("read part: %v", err)
		}
		return string(data)
	}
	t.Fatalf("part %s not found", name)
	return ""
}

func TestProcessRendersTextTemplateWithCompanion(t *testing.T) {
	dir := t.TempDir()
	inbox := filepath.Join(dir, "qwerty")
	tmpl := filepath.Join(dir, "template.txt")
	write(t, tmpl, `{{.StartTime}}-{{.StopTime}}|{{index .Meta "test3"}}|{{.Body}}|{{range .Attachments}}{{.Name}} {{.Size}} {{.HumanSize}} {{.SizeText}}{{end}}`)
	candidate := filepath.Join(inbox, "1.json")
	write(t, candidate, recordJSON)
	write(t, filepath.Join(inbox, "mail.eml"), companionEML)

	p := processor.New(options(tmpl), logging.NewNop())
	if err := p.Process(context.Background(), candidate); err != nil {
		t.Fatalf("Process: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(inbox, "1.docx"))
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	want := "09:00-10:00|a&b\nc|hello\nworld|data.bin 5 5 B 5 байт (5 B)"
	if string(got) != want {
		t.Fatalf("artifact = %q, want %q", got, want)
	}
	if _, err := os.Stat(filepath.Join(inbox, "1.tmp")); !os.IsNotExist(err) {
		t.Fatalf("expected temp file removed, stat err=%v", err)
	}
}

const wordNS = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"`

// paragraphTexts returns the visible text of each paragraph in a document part.
func paragraphTexts(t *testing.T, documentXML string) []string {
	t.Helper()
	decoder := xml.NewDecoder(strings.NewReader(documentXML))
	var (
		paragraphs []string
		current    strings.Builder
		inText     bool
	)
	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			return paragraphs
		}
		if err != nil {
			t.Fatalf("decode document: %v", err)
		}
		switch tok := token.(type) {
		case xml.StartElement:
			inText = inText || tok.Name.Local == "t"
		case xml.EndElement:
			if tok.Name.Local == "t" {
				inText = false
			}
			if tok.Name.Local == "p" {
				paragraphs = append(paragraphs, current.String())
				current.Reset()
			}
		case xml.CharData:
			if inText {
				current.Write(tok)
			}
		}
	}
}

func TestProcessRendersDocxTemplate(t *testing.T) {
	dir := t.TempDir()
	tmpl := filepath.Join(dir, "template.docx")
	// Word often splits a placeholder over several runs.
	writeDocxTemplate(t, tmpl, `<w:document `+wordNS+`><w:body>`+
		`<w:p><w:r><w:t>{start_</w:t></w:r><w:r><w:rPr><w:b/></w:rPr><w:t>time}</w:t></w:r></w:p>`+
		`<w:p><w:r><w:t xml:space="preserve">{meta.test3} {unknown}</w:t></w:r></w:p>`+
		`<w:p><w:r><w:t>{attachments}</w:t></w:r></w:p>`+
		`</w:body></w:document>`)
	inbox := filepath.Join(dir, "qwerty")
	candidate := filepath.Join(inbox, "2.json")
	write(t, candidate, recordJSON)
	write(t, filepath.Join(inbox, "mail.eml"), companionEML)

	p := processor.New(options(tmpl), logging.NewNop())
	if err := p.Process(context.Background(), candidate); err != nil {
		t.Fatalf("Process: %v", err)
	}

	artifact := filepath.Join(inbox, "2.docx")
	got := paragraphTexts(t, readDocxPart(t, artifact, "word/document.xml"))
	want := []string{"09:00", "a&b\nc ", "- data.bin | 5 байт (5 B)"}
	if len(got) != len(want) {
		t.Fatalf("paragraphs = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("paragraph %d = %q, want %q", i, got[i], want[i])
		}
	}
	if types := readDocxPart(t, artifact, "[Content_Types].xml"); !strings.Contains(types, "<Types/>") {
		t.Fatalf("expected untouched content types, got %q", types)
	}
}

func TestProcessRejectsTemplatesWithoutPlaceholders(t *testing.T) {
	dir := t.TempDir()
	docxTemplate := filepath.Join(dir, "labels.docx")
	writeDocxTemplate(t, docxTemplate, `<w:document `+wordNS+`><w:body>`+
		`<w:tbl><w:tr><w:tc><w:p><w:r><w:t>Test1</w:t></w:r></w:p></w:tc><w:tc><w:p/></w:tc></w:tr></w:tbl>`+
		`</w:body></w:document>`)
	textTemplate := filepath.Join(dir, "static.txt")
	write(t, textTemplate, "nothing to fill in")

	for i, tmpl := range []string{docxTemplate, textTemplate} {
		stem := fmt.Sprintf("static-%d", i)
		candidate := filepath.Join(dir, "qwerty", stem+".json")
		write(t, candidate, strings.Replace(recordJSON, `"filename": "mail.eml",`, "", 1))

		err := processor.New(options(tmpl), logging.NewNop()).Process(context.Background(), candidate)
		if !errors.Is(err, processor.ErrTemplate) {
			t.Fatalf("%s: expected ErrTemplate, got %v", filepath.Base(tmpl), err)
		}
		for _, name := range []string{stem + ".docx", stem + ".tmp"} {
			if _, statErr := os.Stat(filepath.Join(dir, "qwerty", name)); !os.IsNotExist(statErr) {
				t.Fatalf("expected no %s, stat err=%v", name, statErr)
			}
		}
		if _, err := processor.InspectTemplate(tmpl); !errors.Is(err, processor.ErrTemplate) {
			t.Fatalf("%s: expected InspectTemplate to reject it, got %v", filepath.Base(tmpl), err)
		}
	}
}

func TestInspectTemplateListsPlaceholders(t *testing.T) {
	dir := t.TempDir()
	tmpl := filepath.Join(dir, "template.docx")
	writeDocxTemplate(t, tmpl, `<w:document `+wordNS+`><w:body>`+
		`<w:p><w:r><w:t>{sub</w:t></w:r><w:r><w:t>ject} and {body}</w:t></w:r></w:p>`+
		`<w:p><w:r><w:t>{subject}</w:t></w:r></w:p>`+
		`</w:body></w:document>`)

	info, err := processor.InspectTemplate(tmpl)
	if err != nil {
		t.Fatalf("InspectTemplate: %v", err)
	}
	if info.Kind != "docx" || strings.Join(info.Placeholders, ",") != "subject,body" {
		t.Fatalf("unexpected template info %+v", info)
	}
}

func TestProcessContinuesWithoutCompanion(t *testing.T) {
	dir := t.TempDir()
	tmpl := filepath.Join(dir, "template.txt")
	write(t, tmpl, `[{{.Body}}]`)
	candidate := filepath.Join(dir, "qwerty", "3.json")
	write(t, candidate, recordJSON)

	p := processor.New(options(tmpl), logging.NewNop())
	start := time.Now()
	if err := p.Process(context.Background(), candidate); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if time.Since(start) < 200*time.Millisecond {
		t.Fatal("expected processor to wait for the companion timeout")
	}
	got, err := os.ReadFile(filepath.Join(dir, "qwerty", "3.docx"))
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if string(got) != "[]" {
		t.Fatalf("unexpected artifact %q", got)
	}
}

func TestProcessFailsWithoutTemplate(t *testing.T) {
	dir := t.TempDir()
	candidate := filepath.Join(dir, "qwerty", "4.json")
	write(t, candidate, strings.Replace(recordJSON, `"filename": "mail.eml",`, "", 1))

	p := processor.New(options(filepath.Join(dir, "missing.docx")), logging.NewNop())
	err := p.Process(context.Background(), candidate)
	if !errors.Is(err, processor.ErrTemplate) {
		t.Fatalf("expected ErrTemplate, got %v", err)
	}
	for _, name := range []string{"4.docx", "4.tmp"} {
		if _, statErr := os.Stat(filepath.Join(dir, "qwerty", name)); !os.IsNotExist(statErr) {
			t.Fatalf("expected no %s, stat err=%v", name, statErr)
		}
	}
}

func TestProcessFailsOnBrokenTemplateWithoutOutput(t *testing.T) {
	dir := t.TempDir()
	tmpl := filepath.Join(dir, "template.txt")
	write(t, tmpl, `{{.Nope`)
	candidate := filepath.Join(dir, "qwerty", "5.json")
	write(t, candidate, strings.Replace(recordJSON, `"filename": "mail.eml",`, "", 1))

	err := processor.New(options(tmpl), logging.NewNop()).Process(context.Background(), candidate)
	if processor.Kind(err) != "template" {
		t.Fatalf("expected template error, got %v", err)
	}
	for _, name := range []string{"5.docx", "5.tmp"} {
		if _, statErr := os.Stat(filepath.Join(dir, "qwerty", name)); !os.IsNotExist(statErr) {
			t.Fatalf("expected no %s, stat err=%v", name, statErr)
		}
	}
}

func TestProcessFailsOnMalformedRecord(t *testing.T) {
	dir := t.TempDir()
	tmpl := filepath.Join(dir, "template.txt")
	write(t, tmpl, "x")
	candidate := filepath.Join(dir, "qwerty", "6.json")
	write(t, candidate, `{"data": {}}`)

	err := processor.New(options(tmpl), logging.NewNop()).Process(context.Background(), candidate)
	if !errors.Is(err, processor.ErrRecord) {
		t.Fatalf("expected ErrRecord, got %v", err)
	}
}

func TestKindClassifiesMarkers(t *testing.T) {
	cases := map[string]error{
		"record":    processor.Wrap(processor.ErrRecord, "decode", "x", errors.New("boom")),
		"companion": processor.Wrap(processor.ErrCompanion, "parse", "", nil),
		"template":  processor.Wrap(processor.ErrTemplate, "", "", nil),
		"publish":   processor.Wrap(processor.ErrPublish, "rename", "y", nil),
		"unknown":   errors.New("other"),
	}
	for want, err := range cases {
		if got := processor.Kind(err); got != want {
			t.Errorf("Kind(%v) = %q, want %q", err, got, want)
		}
	}
	if processor.Kind(nil) != "" {
		t.Fatal("expected empty kind for nil")
	}
}
