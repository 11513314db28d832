package processor

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/template"
	"text/template/parse"

	"github.com/dustin/go-humanize"
	"github.com/lukasjarosch/go-docx"
)

// AttachmentView is an attachment as seen by templates.
type AttachmentView struct {
	Name string
	// Size is the decoded size in bytes.
	Size      int64
	HumanSize string
	// SizeText reads "<n> байт (<x.xx> KB)", the form used by existing reports.
	SizeText string
	Line     string
}

// Document is the data handed to templates.
type Document struct {
	Source         string
	StartTime      string
	StopTime       string
	Meta           map[string]string
	Companion      string
	Subject        string
	From           string
	Date           string
	Body           string
	BodyLines      []string
	Attachments    []AttachmentView
	AttachmentList string
}

// NewDocument assembles template data from a record and its optional message.
func NewDocument(source string, record Record, msg *Message) Document {
	doc := Document{
		Source:    source,
		StartTime: record.StartTime,
		StopTime:  record.StopTime,
		Meta:      record.Meta,
		Companion: record.Companion,
	}
	if doc.Meta == nil {
		doc.Meta = map[string]string{}
	}
	if msg == nil {
		return doc
	}
	doc.Subject = msg.Subject
	doc.From = msg.From
	doc.Date = msg.Date
	doc.Body = msg.Body
	if msg.Body != "" {
		doc.BodyLines = strings.Split(msg.Body, "\n")
	}
	lines := make([]string, 0, len(msg.Attachments))
	for _, att := range msg.Attachments {
		view := AttachmentView{
			Name:      att.Name,
			Size:      att.Size,
			HumanSize: humanize.IBytes(uint64(att.Size)),
			SizeText:  sizeText(att.Size),
		}
		view.Line = fmt.Sprintf("- %s | %s", view.Name, view.SizeText)
		doc.Attachments = append(doc.Attachments, view)
		lines = append(lines, view.Line)
	}
	doc.AttachmentList = strings.Join(lines, "\n")
	return doc
}

// Placeholders returns the values for {key} placeholders in docx templates.
// Meta entries are available as {meta.<key>}.
func (d Document) Placeholders() docx.PlaceholderMap {
	values := docx.PlaceholderMap{
		"source":      d.Source,
		"start_time":  d.StartTime,
		"stop_time":   d.StopTime,
		"companion":   d.Companion,
		"subject":     d.Subject,
		"from":        d.From,
		"date":        d.Date,
		"body":        d.Body,
		"attachments": d.AttachmentList,
	}
	for key, value := range d.Meta {
		values["meta."+key] = value
	}
	return values
}

// sizeText formats size as a byte count followed by a 1024-based unit with
// two decimals, e.g. "1536 байт (1.50 KB)".
func sizeText(size int64) string {
	units := []string{"B", "KB", "MB", "GB"}
	value := float64(size)
	unit := units[0]
	for i, candidate := range units {
		unit = candidate
		if value < 1024 || i == len(units)-1 {
			break
		}
		value /= 1024
	}
	if unit == "B" {
		return fmt.Sprintf("%d байт (%.0f B)", size, value)
	}
	return fmt.Sprintf("%d байт (%.2f %s)", size, value, unit)
}

var templateFuncs = template.FuncMap{
	"join": strings.Join,
	"bytes": func(size int64) string {
		return humanize.IBytes(uint64(size))
	},
	"sizeText": sizeText,
}

// Render writes the artifact for doc using the template at templatePath.
// Templates ending in .docx are Word documents with {key} placeholders; any
// other file is a plain text template.
func Render(w io.Writer, templatePath string, doc Document) error {
	if isDocx(templatePath) {
		return renderDocx(w, templatePath, doc)
	}
	return renderText(w, templatePath, doc)
}

func isDocx(templatePath string) bool {
	return strings.EqualFold(filepath.Ext(templatePath), ".docx")
}

func renderText(w io.Writer, templatePath string, doc Document) error {
	tmpl, err := parseTextTemplate(templatePath)
	if err != nil {
		return err
	}
	if err := tmpl.Execute(w, doc); err != nil {
		return Wrap(ErrTemplate, "execute template", templatePath, err)
	}
	return nil
}

// parseTextTemplate parses templatePath and rejects templates without a
// single action, which would publish the same text for every record.
func parseTextTemplate(templatePath string) (*template.Template, error) {
	tmpl, err := template.New(filepath.Base(templatePath)).
		Funcs(templateFuncs).
		Option("missingkey=zero").
		ParseFiles(templatePath)
	if err != nil {
		return nil, Wrap(ErrTemplate, "parse template", templatePath, err)
	}
	if len(textActions(tmpl)) == 0 {
		return nil, Wrap(ErrTemplate, "template has no actions", templatePath, nil)
	}
	return tmpl, nil
}

func textActions(tmpl *template.Template) []string {
	if tmpl.Tree == nil || tmpl.Tree.Root == nil {
		return nil
	}
	var actions []string
	for _, node := range tmpl.Tree.Root.Nodes {
		if node.Type() != parse.NodeText {
			actions = append(actions, node.String())
		}
	}
	return actions
}

func renderDocx(w io.Writer, templatePath string, doc Document) error {
	keys, err := docxPlaceholders(templatePath)
	if err != nil {
		return Wrap(ErrTemplate, "read template", templatePath, err)
	}
	if len(keys) == 0 {
		return Wrap(ErrTemplate, "template has no placeholders", templatePath, nil)
	}

	// Only keys present in the template are passed; unknown keys render empty.
	values := doc.Placeholders()
	fill := make(docx.PlaceholderMap, len(keys))
	for _, key := range keys {
		value, ok := values[key]
		if !ok {
			value = ""
		}
		fill[key] = value
	}

	document, err := docx.Open(templatePath)
	if err != nil {
		return Wrap(ErrTemplate, "open template", templatePath, err)
	}
	defer document.Close()

	if err := document.ReplaceAll(fill); err != nil {
		return Wrap(ErrTemplate, "fill template", templatePath, err)
	}
	if err := document.Write(w); err != nil {
		return fmt.Errorf("write document: %w", err)
	}
	return nil
}
