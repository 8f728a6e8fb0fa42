// Package las normalises Log ASCII Standard well-log files. Header
// sections become text blocks and the ~A data section becomes a table.
package las

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/custodia-labs/strata/internal/core/domain"
	"github.com/custodia-labs/strata/internal/core/ports/driven"
	"github.com/custodia-labs/strata/internal/normalisers"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

const (
	mimeLAS  = "text/x-las"
	preamble = "preamble"
)

// Normaliser handles LAS 1.2 and 2.0 files.
type Normaliser struct{}

// New creates a new LAS normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{mimeLAS, "application/x-las"}
}

// SupportedExtensions returns the file extensions this normaliser handles.
func (n *Normaliser) SupportedExtensions() []string {
	return []string{".las"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 70
}

type section struct {
	name  string
	lines []string
}

// Normalise splits the file into sections in file order.
func (n *Normaliser) Normalise(_ context.Context, input *domain.FileInput, documentID string) (*driven.NormaliseResult, error) {
	if input == nil {
		return nil, domain.ErrInvalidInput
	}
	text, err := normalisers.DecodeText(input.Content)
	if err != nil {
		return nil, err
	}

	sections := split(text)
	if !slices.ContainsFunc(sections, func(s section) bool { return s.name != preamble }) {
		return nil, fmt.Errorf("%w: no LAS sections found", domain.ErrCorruptInput)
	}

	var (
		curves []string
		wrap   bool
		title  string
	)
	for _, s := range sections {
		switch s.name {
		case "V":
			wrap = strings.EqualFold(headerValue(s.lines, "WRAP"), "YES")
		case "W":
			title = headerValue(s.lines, "WELL")
		case "C":
			curves = mnemonics(s.lines)
		}
	}

	b := normalisers.NewBuilder(documentID)
	for _, s := range sections {
		attrs := map[string]string{domain.AttrSection: s.name}
		if s.name != "A" {
			b.AddText(0, strings.Join(s.lines, "\n"), attrs)
			continue
		}
		rows := dataRows(s.lines[1:], len(curves), wrap)
		if len(rows) == 0 {
			continue
		}
		if len(curves) > 0 {
			rows = append([]string{strings.Join(curves, "\t")}, rows...)
		}
		attrs[domain.AttrDelimiter] = "\t"
		b.Add(0, domain.BlockTable, []byte(strings.Join(rows, "\n")), "text/tab-separated-values", attrs)
	}

	return &driven.NormaliseResult{Blocks: b.Blocks(), MIMEType: mimeLAS, Title: title}, nil
}

// split groups lines under their ~ section headers. Lines before the
// first header are dropped only when blank.
func split(text string) []section {
	var out []section
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "~") && len(trimmed) > 1 {
			out = append(out, section{name: strings.ToUpper(trimmed[1:2]), lines: []string{line}})
			continue
		}
		if len(out) == 0 {
			if trimmed != "" {
				out = append(out, section{name: preamble})
			} else {
				continue
			}
		}
		last := &out[len(out)-1]
		last.lines = append(last.lines, line)
	}
	return out
}

// headerLine parses "MNEM.UNIT  VALUE : DESCRIPTION".
func headerLine(line string) (mnem, value string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "~") {
		return "", "", false
	}
	dot := strings.Index(line, ".")
	if dot < 0 {
		return "", "", false
	}
	mnem = strings.TrimSpace(line[:dot])
	rest := line[dot+1:]
	// The unit runs up to the first space.
	if sp := strings.IndexAny(rest, " \t"); sp >= 0 {
		rest = rest[sp:]
	} else {
		rest = ""
	}
	if colon := strings.LastIndex(rest, ":"); colon >= 0 {
		rest = rest[:colon]
	}
	return mnem, strings.TrimSpace(rest), mnem != ""
}

func headerValue(lines []string, key string) string {
	for _, line := range lines {
		if mnem, value, ok := headerLine(line); ok && strings.EqualFold(mnem, key) {
			return value
		}
	}
	return ""
}

func mnemonics(lines []string) []string {
	var out []string
	for _, line := range lines {
		if mnem, _, ok := headerLine(line); ok {
			out = append(out, mnem)
		}
	}
	return out
}

// dataRows returns tab-joined rows. Wrapped files spread one depth step
// over several lines, so values are regrouped by curve count.
func dataRows(lines []string, ncurves int, wrap bool) []string {
	var rows []string
	if !wrap || ncurves == 0 {
		for _, line := range lines {
			fields := strings.Fields(line)
			if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
				continue
			}
			rows = append(rows, strings.Join(fields, "\t"))
		}
		return rows
	}

	var values []string
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) > 0 && strings.HasPrefix(fields[0], "#") {
			continue
		}
		values = append(values, fields...)
	}
	for len(values) > 0 {
		n := min(ncurves, len(values))
		rows = append(rows, strings.Join(values[:n], "\t"))
		values = values[n:]
	}
	return rows
}
