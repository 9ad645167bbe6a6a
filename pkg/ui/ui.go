// Package ui renders command results for the terminal, as plain text or as
// JSON.
package ui

import (
	"io"
	"os"

	"github.com/arthur-debert/elevlink/pkg/errors"
)

// Field is one labelled value of a Report
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Report is the outcome of a command
type Report struct {
	Command string  `json:"command"`
	Title   string  `json:"title"`
	OK      bool    `json:"ok"`
	Fields  []Field `json:"fields,omitempty"`
}

// Add appends a field and returns the report
func (r *Report) Add(name, value string) *Report {
	r.Fields = append(r.Fields, Field{Name: name, Value: value})
	return r
}

// Renderer writes reports and errors in one format
type Renderer interface {
	RenderReport(r *Report) error
	RenderError(err error) error
}

// NewRenderer creates a renderer for format. FormatAuto inspects output.
func NewRenderer(format Format, output io.Writer) (Renderer, error) {
	switch format {
	case FormatAuto:
		if file, ok := output.(*os.File); ok {
			return NewRenderer(DetectFormat(file), output)
		}
		return NewRenderer(FormatText, output)
	case FormatTerminal:
		return newTerminalRenderer(output), nil
	case FormatText:
		return &textRenderer{out: output}, nil
	case FormatJSON:
		return newJSONRenderer(output), nil
	default:
		return nil, errors.Newf(errors.ErrInvalidInput, "unknown format: %v", format)
	}
}
