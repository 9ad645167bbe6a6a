package ui

import (
	"fmt"
	"io"

	"github.com/bytedance/sonic"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

type terminalRenderer struct {
	out      io.Writer
	renderer *lipgloss.Renderer
}

func newTerminalRenderer(out io.Writer) *terminalRenderer {
	r := lipgloss.NewRenderer(out)
	// the caller already decided this output gets colour
	if r.ColorProfile() == termenv.Ascii {
		r.SetColorProfile(termenv.ANSI256)
	}
	return &terminalRenderer{out: out, renderer: r}
}

func (t *terminalRenderer) RenderReport(r *Report) error {
	mark := successStyle.Renderer(t.renderer).Render("✓")
	if !r.OK {
		mark = errorStyle.Renderer(t.renderer).Render("✗")
	}
	if _, err := fmt.Fprintf(t.out, "%s %s\n", mark, titleStyle.Renderer(t.renderer).Render(r.Title)); err != nil {
		return err
	}
	for _, f := range r.Fields {
		label := labelStyle.Renderer(t.renderer).Render(f.Name + ":")
		value := valueStyle.Renderer(t.renderer).Render(f.Value)
		if _, err := fmt.Fprintf(t.out, "%s %s\n", label, value); err != nil {
			return err
		}
	}
	return nil
}

func (t *terminalRenderer) RenderError(err error) error {
	_, werr := fmt.Fprintf(t.out, "%s %s\n", errorStyle.Renderer(t.renderer).Render("Error:"), err)
	return werr
}

type textRenderer struct {
	out io.Writer
}

func (t *textRenderer) RenderReport(r *Report) error {
	status := "ok"
	if !r.OK {
		status = "no"
	}
	if _, err := fmt.Fprintf(t.out, "[%s] %s\n", status, r.Title); err != nil {
		return err
	}
	for _, f := range r.Fields {
		if _, err := fmt.Fprintf(t.out, "  %s: %s\n", f.Name, f.Value); err != nil {
			return err
		}
	}
	return nil
}

func (t *textRenderer) RenderError(err error) error {
	_, werr := fmt.Fprintf(t.out, "Error: %s\n", err)
	return werr
}

type jsonRenderer struct {
	encoder sonic.Encoder
}

func newJSONRenderer(out io.Writer) *jsonRenderer {
	enc := sonic.ConfigStd.NewEncoder(out)
	enc.SetIndent("", "  ")
	return &jsonRenderer{encoder: enc}
}

func (j *jsonRenderer) RenderReport(r *Report) error {
	return j.encoder.Encode(r)
}

func (j *jsonRenderer) RenderError(err error) error {
	return j.encoder.Encode(map[string]string{"error": err.Error()})
}
