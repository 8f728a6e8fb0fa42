package services

import (
	"bytes"
	"encoding/csv"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/strata/internal/core/domain"
)

// tableDelimiters are tried in order when a table carries no delimiter
// attribute.
var tableDelimiters = []rune{',', '\t', ';', '|'}

// tableParse is the outcome of the cheap structural table parse.
type tableParse struct {
	rows   [][]string
	ragged float64
	ok     bool
	reason domain.RationaleTag
}

// parseTable splits a table payload into rows and checks that the column
// count is consistent enough to trust.
func parseTable(block domain.ContentBlock, policy domain.RoutingPolicy) tableParse {
	payload := block.Payload
	if !utf8.Valid(payload) || bytes.IndexByte(payload, 0) >= 0 {
		return tableParse{reason: domain.RationaleTableBinary}
	}

	delims := tableDelimiters
	if d := block.Attribute(domain.AttrDelimiter); utf8.RuneCountInString(d) == 1 {
		r, _ := utf8.DecodeRuneInString(d)
		delims = []rune{r}
	}

	var best tableParse
	bestCols := 0
	for _, d := range delims {
		rows := splitRows(string(payload), d)
		cols, ragged := columnProfile(rows)
		if cols < 2 {
			continue
		}
		if bestCols == 0 || ragged < best.ragged || (ragged == best.ragged && cols > bestCols) {
			best = tableParse{rows: rows, ragged: ragged}
			bestCols = cols
		}
	}

	switch {
	case bestCols == 0:
		best.reason = domain.RationaleTableNoDelim
	case len(best.rows) < max(policy.MinTableRows, 1):
		best.reason = domain.RationaleTableTooShort
	case best.ragged > policy.RaggedRowTolerance:
		best.reason = domain.RationaleTableRagged
	default:
		best.ok = true
		best.reason = domain.RationaleTableParsed
	}
	return best
}

// splitRows reads delimited rows, honouring quotes. Outer pipes of
// markdown-style rows are dropped.
func splitRows(text string, delim rune) [][]string {
	r := csv.NewReader(strings.NewReader(text))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil
		}
		if delim == '|' && len(rec) > 2 && strings.TrimSpace(rec[0]) == "" && strings.TrimSpace(rec[len(rec)-1]) == "" {
			rec = rec[1 : len(rec)-1]
		}
		for i := range rec {
			rec[i] = strings.TrimSpace(rec[i])
		}
		if strings.Join(rec, "") == "" {
			continue
		}
		rows = append(rows, rec)
	}
	return rows
}

// columnProfile returns the modal column count and the fraction of rows
// that deviate from it.
func columnProfile(rows [][]string) (int, float64) {
	if len(rows) == 0 {
		return 0, 0
	}
	counts := make(map[int]int)
	for _, row := range rows {
		counts[len(row)]++
	}
	mode, freq := 0, 0
	for cols, n := range counts {
		if n > freq || (n == freq && cols > mode) {
			mode, freq = cols, n
		}
	}
	return mode, float64(len(rows)-freq) / float64(len(rows))
}

// renderRows formats rows as pipe-delimited lines.
func renderRows(rows [][]string) string {
	lines := make([]string, len(rows))
	for i, row := range rows {
		lines[i] = strings.Join(row, " | ")
	}
	return strings.Join(lines, "\n")
}

// templateMarkers identify LAS well-log headers rendered into images.
var templateMarkers = []string{"~VERSION", "~WELL", "STRT", "STOP", "NULL", "COMP", "UWI", "API"}

// imagePrecheck scores an image's embedded text layer.
type imagePrecheck struct {
	text       string
	confidence float64
	template   bool
	reason     domain.RationaleTag
}

func precheckImage(block domain.ContentBlock, policy domain.RoutingPolicy) imagePrecheck {
	text := strings.TrimSpace(block.Attribute(domain.AttrTextLayer))
	pc := imagePrecheck{text: text, template: knownTemplate(text)}

	n := utf8.RuneCountInString(text)
	switch {
	case n == 0:
		pc.reason = domain.RationaleImageNoTextLayer
		return pc
	case n < policy.MinTextLayerChars:
		pc.reason = domain.RationaleImageSparseText
		return pc
	}

	saturation := max(policy.TextLayerSaturation, 1)
	pc.confidence = min(1, float64(n)/float64(saturation))
	if pc.template {
		pc.confidence = min(1, pc.confidence+policy.TemplateBonus)
	}
	pc.reason = domain.RationaleImageLowConf
	if pc.confidence >= policy.PrecheckConfidence {
		pc.reason = domain.RationaleImageTextLayer
	}
	return pc
}

// knownTemplate reports whether at least two well-log header markers
// occur as words.
func knownTemplate(text string) bool {
	if text == "" {
		return false
	}
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(text, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '.' || r == ':' || r == ','
	}) {
		words[strings.ToUpper(w)] = true
	}
	hits := 0
	for _, m := range templateMarkers {
		if words[m] {
			hits++
		}
	}
	return hits >= 2
}
