package html

import (
	"context"
	"encoding/base64"
	"html"
	"regexp"
	"strings"

	"github.com/custodia-labs/strata/internal/core/domain"
	"github.com/custodia-labs/strata/internal/core/ports/driven"
	"github.com/custodia-labs/strata/internal/normalisers"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles HTML documents such as exported field reports.
// Headings start text blocks, <table> elements become table blocks and
// inline data-URI images become image blocks.
type Normaliser struct{}

// New creates a new HTML normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"text/html", "application/xhtml+xml"}
}

// SupportedExtensions returns the file extensions this normaliser handles.
func (n *Normaliser) SupportedExtensions() []string {
	return []string{".html", ".htm", ".xhtml"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50 // Generic MIME normaliser, higher than plaintext
}

// Pre-compiled regular expressions for HTML parsing performance.
var (
	titleTag          = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	scriptTag         = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleTag          = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	noscriptTag       = regexp.MustCompile(`(?is)<noscript[^>]*>.*?</noscript>`)
	headTag           = regexp.MustCompile(`(?is)<head[^>]*>.*?</head>`)
	svgTag            = regexp.MustCompile(`(?is)<svg[^>]*>.*?</svg>`)
	htmlComments      = regexp.MustCompile(`(?s)<!--.*?-->`)
	blockElements     = regexp.MustCompile(`(?i)</(p|div|br|hr|h[1-6]|li|tr|blockquote|pre|table|section|article)>`)
	openBlockElements = regexp.MustCompile(`(?i)<(p|div|h[1-6]|li|tr|blockquote|pre|table|section|article)[^>]*>`)
	brTags            = regexp.MustCompile(`(?i)<br\s*/?>`)
	hrTags            = regexp.MustCompile(`(?i)<hr\s*/?>`)
	allTags           = regexp.MustCompile(`<[^>]+>`)
	multiSpaces       = regexp.MustCompile(`[ \t]+`)
	multiNewlines     = regexp.MustCompile(`\n{3,}`)

	// Structural elements, matched in document order.
	structure = regexp.MustCompile(`(?is)<table[^>]*>.*?</table>|<img[^>]*>|<h[1-6][^>]*>`)
	rowTag    = regexp.MustCompile(`(?is)<tr[^>]*>(.*?)</tr>`)
	cellTag   = regexp.MustCompile(`(?is)<t[hd][^>]*>(.*?)</t[hd]>`)
	dataURI   = regexp.MustCompile(`(?is)src\s*=\s*["']data:(image/[a-z0-9.+-]+);base64,([^"']+)["']`)
)

// tableDelimiter separates cells in table block payloads.
const tableDelimiter = "\t"

// Normalise converts an HTML document into blocks in source order.
func (n *Normaliser) Normalise(_ context.Context, input *domain.FileInput, documentID string) (*driven.NormaliseResult, error) {
	if input == nil {
		return nil, domain.ErrInvalidInput
	}
	content, err := normalisers.DecodeText(input.Content)
	if err != nil {
		return nil, err
	}

	title := extractHTMLTitle(content)
	if title == "" {
		title = normalisers.TitleFromName(input.Name)
	}

	body := removeHidden(content)

	b := normalisers.NewBuilder(documentID)
	prev := 0
	for _, loc := range structure.FindAllStringIndex(body, -1) {
		elem := body[loc[0]:loc[1]]
		switch strings.ToLower(elem[:4]) {
		case "<tab":
			b.AddText(0, stripHTML(body[prev:loc[0]]), nil)
			if rows := tableRows(elem); rows != "" {
				b.Add(0, domain.BlockTable, []byte(rows), "text/plain",
					map[string]string{domain.AttrDelimiter: tableDelimiter})
			}
			prev = loc[1]
		case "<img":
			m := dataURI.FindStringSubmatch(elem)
			if m == nil {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(m[2]), ""))
			if err != nil {
				continue
			}
			b.AddText(0, stripHTML(body[prev:loc[0]]), nil)
			b.Add(0, domain.BlockImage, data, strings.ToLower(m[1]), nil)
			prev = loc[1]
		default:
			// A heading closes the current section.
			b.AddText(0, stripHTML(body[prev:loc[0]]), nil)
			prev = loc[0]
		}
	}
	b.AddText(0, stripHTML(body[prev:]), nil)

	return &driven.NormaliseResult{
		Blocks:   b.Blocks(),
		MIMEType: "text/html",
		Title:    title,
	}, nil
}

// tableRows flattens a <table> element into delimited rows.
func tableRows(table string) string {
	var rows []string
	for _, row := range rowTag.FindAllStringSubmatch(table, -1) {
		var cells []string
		for _, cell := range cellTag.FindAllStringSubmatch(row[1], -1) {
			text := strings.Join(strings.Fields(stripHTML(cell[1])), " ")
			cells = append(cells, text)
		}
		if len(cells) > 0 {
			rows = append(rows, strings.Join(cells, tableDelimiter))
		}
	}
	return strings.Join(rows, "\n")
}

// extractHTMLTitle returns the <title> text, or "" when there is none.
func extractHTMLTitle(content string) string {
	matches := titleTag.FindStringSubmatch(content)
	if len(matches) > 1 {
		return strings.TrimSpace(html.UnescapeString(matches[1]))
	}
	return ""
}

// removeHidden drops elements whose content is never displayed.
func removeHidden(content string) string {
	for _, re := range []*regexp.Regexp{scriptTag, styleTag, noscriptTag, headTag, svgTag, htmlComments} {
		content = re.ReplaceAllString(content, "")
	}
	return content
}

// stripHTML removes HTML tags and extracts readable text content.
func stripHTML(content string) string {
	// Add newlines before block elements for readability
	content = openBlockElements.ReplaceAllString(content, "\n")

	// Add newlines after closing block elements
	content = blockElements.ReplaceAllString(content, "\n")

	// Convert <br> and <hr> to newlines
	content = brTags.ReplaceAllString(content, "\n")
	content = hrTags.ReplaceAllString(content, "\n")

	// Strip all remaining HTML tags
	content = allTags.ReplaceAllString(content, "")

	// Decode HTML entities
	content = html.UnescapeString(content)

	// Collapse multiple spaces (but preserve newlines)
	content = multiSpaces.ReplaceAllString(content, " ")

	// Collapse multiple newlines
	content = multiNewlines.ReplaceAllString(content, "\n\n")

	// Trim each line and remove empty lines
	lines := strings.Split(content, "\n")
	var result []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			result = append(result, line)
		}
	}

	return strings.Join(result, "\n")
}
