package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
)

type printer struct {
	out io.Writer

	header  *color.Color
	success *color.Color
	warn    *color.Color
	fail    *color.Color
	info    *color.Color
}

func newPrinter(out io.Writer, noColor bool) *printer {
	p := &printer{
		out:     out,
		header:  color.New(color.FgCyan, color.Bold),
		success: color.New(color.FgGreen),
		warn:    color.New(color.FgYellow),
		fail:    color.New(color.FgRed, color.Bold),
		info:    color.New(color.FgBlue),
	}
	if noColor {
		for _, c := range []*color.Color{p.header, p.success, p.warn, p.fail, p.info} {
			c.DisableColor()
		}
	}
	return p
}

func (p *printer) Header(title string) {
	p.header.Fprintf(p.out, "== %s ==\n", title)
}

func (p *printer) Success(format string, args ...any) {
	p.success.Fprintf(p.out, "✓ "+format+"\n", args...)
}

func (p *printer) Warn(format string, args ...any) {
	p.warn.Fprintf(p.out, "! "+format+"\n", args...)
}

func (p *printer) Fail(format string, args ...any) {
	p.fail.Fprintf(p.out, "✗ "+format+"\n", args...)
}

func (p *printer) Info(format string, args ...any) {
	p.info.Fprintf(p.out, format+"\n", args...)
}

func (p *printer) Plain(format string, args ...any) {
	fmt.Fprintf(p.out, format+"\n", args...)
}

func (p *printer) JSON(v any) error {
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
