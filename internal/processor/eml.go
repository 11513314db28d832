package processor

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jhillyerd/enmime"
)

const defaultAttachmentName = "attachment.bin"

// Attachment is one attached file of a companion message.
type Attachment struct {
	Name string
	Size int64
}

// Message is the part of a companion message that ends up in the artifact.
type Message struct {
	Subject     string
	From        string
	Date        string
	Body        string
	Attachments []Attachment
}

// ParseMessage reads an RFC 5322 message. The body is the text/plain parts
// joined by blank lines, or the text/html parts when there is no plain text.
// Any part with an attachment disposition or a file name is listed as an
// attachment with its decoded size instead.
func ParseMessage(r io.Reader) (Message, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Message{}, fmt.Errorf("read message: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return Message{}, errors.New("read message: empty input")
	}
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return Message{}, fmt.Errorf("read message: %w", err)
	}

	var c partCollector
	c.walk(env.Root)

	body := joinParts(c.plain)
	if body == "" {
		body = joinParts(c.html)
	}
	return Message{
		Subject:     strings.TrimSpace(env.GetHeader("Subject")),
		From:        strings.TrimSpace(env.GetHeader("From")),
		Date:        strings.TrimSpace(env.GetHeader("Date")),
		Body:        body,
		Attachments: c.attachments,
	}, nil
}

// partCollector sorts the leaf parts of a decoded message in document order.
type partCollector struct {
	plain       []string
	html        []string
	attachments []Attachment
}

func (c *partCollector) walk(part *enmime.Part) {
	for ; part != nil; part = part.NextSibling {
		if part.FirstChild != nil {
			c.walk(part.FirstChild)
			continue
		}
		c.leaf(part)
	}
}

func (c *partCollector) leaf(part *enmime.Part) {
	contentType := strings.ToLower(part.ContentType)
	if strings.HasPrefix(contentType, "multipart/") {
		return
	}
	if strings.EqualFold(part.Disposition, "attachment") || part.FileName != "" {
		name := part.FileName
		if name == "" {
			name = defaultAttachmentName
		}
		c.attachments = append(c.attachments, Attachment{Name: name, Size: int64(len(part.Content))})
		return
	}
	switch contentType {
	case "", "text/plain":
		c.plain = append(c.plain, normalizeNewlines(part.Content))
	case "text/html":
		c.html = append(c.html, normalizeNewlines(part.Content))
	}
}

func normalizeNewlines(content []byte) string {
	return string(bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n")))
}

func joinParts(parts []string) string {
	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			kept = append(kept, trimmed)
		}
	}
	return strings.Join(kept, "\n\n")
}
