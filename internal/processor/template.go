package processor

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"slices"
	"strings"
)

// TemplateInfo describes a template that is usable for rendering.
type TemplateInfo struct {
	// Kind is "docx" or "text".
	Kind string
	// Placeholders lists docx placeholder keys or text template actions.
	Placeholders []string
}

// InspectTemplate loads the template at templatePath the way Render does
// and reports what it fills in. A template that cannot be parsed or that
// has nothing to fill in is an ErrTemplate.
func InspectTemplate(templatePath string) (TemplateInfo, error) {
	if isDocx(templatePath) {
		keys, err := docxPlaceholders(templatePath)
		if err != nil {
			return TemplateInfo{}, Wrap(ErrTemplate, "read template", templatePath, err)
		}
		if len(keys) == 0 {
			return TemplateInfo{}, Wrap(ErrTemplate, "template has no placeholders", templatePath, nil)
		}
		return TemplateInfo{Kind: "docx", Placeholders: keys}, nil
	}
	tmpl, err := parseTextTemplate(templatePath)
	if err != nil {
		return TemplateInfo{}, err
	}
	return TemplateInfo{Kind: "text", Placeholders: textActions(tmpl)}, nil
}

var placeholderPattern = regexp.MustCompile(`\{([^{}]+)\}`)

// docxPlaceholders returns the distinct {key} placeholders in the document,
// header and footer parts. Text is joined per paragraph so a placeholder
// Word split over several runs is still found.
func docxPlaceholders(templatePath string) ([]string, error) {
	archive, err := zip.OpenReader(templatePath)
	if err != nil {
		return nil, fmt.Errorf("open docx: %w", err)
	}
	defer archive.Close()

	var keys []string
	foundDocument := false
	for _, file := range archive.File {
		if path.Dir(file.Name) != "word" || !strings.HasSuffix(file.Name, ".xml") {
			continue
		}
		if file.Name == "word/document.xml" {
			foundDocument = true
		}
		paragraphs, err := partParagraphs(file)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", file.Name, err)
		}
		for _, text := range paragraphs {
			for _, match := range placeholderPattern.FindAllStringSubmatch(text, -1) {
				if key := match[1]; !slices.Contains(keys, key) {
					keys = append(keys, key)
				}
			}
		}
	}
	if !foundDocument {
		return nil, errors.New("word/document.xml missing")
	}
	return keys, nil
}

// partParagraphs returns the visible text of each w:p in a WordprocessingML part.
func partParagraphs(file *zip.File) ([]string, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	decoder := xml.NewDecoder(rc)
	var (
		paragraphs []string
		current    strings.Builder
		inText     bool
	)
	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := token.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				paragraphs = append(paragraphs, current.String())
				current.Reset()
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}
	if current.Len() > 0 {
		paragraphs = append(paragraphs, current.String())
	}
	return paragraphs, nil
}
