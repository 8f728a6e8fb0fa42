package spreadsheet

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/xml"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/custodia-labs/strata/internal/core/domain"
	"github.com/custodia-labs/strata/internal/core/ports/driven"
	"github.com/custodia-labs/strata/internal/normalisers"
)

type workbookXML struct {
	Sheets []struct {
		Name string `xml:"name,attr"`
		RID  string `xml:"http://schemas.openxmlformats.org/officeDocument/2006/relationships id,attr"`
	} `xml:"sheets>sheet"`
}

type sharedStringsXML struct {
	Items []richText `xml:"si"`
}

// richText is a string item that is either plain or a sequence of runs.
type richText struct {
	T    string `xml:"t"`
	Runs []struct {
		T string `xml:"t"`
	} `xml:"r"`
}

func (r richText) String() string {
	if len(r.Runs) == 0 {
		return r.T
	}
	var sb strings.Builder
	sb.WriteString(r.T)
	for _, run := range r.Runs {
		sb.WriteString(run.T)
	}
	return sb.String()
}

type worksheetXML struct {
	Rows []struct {
		Cells []cellXML `xml:"c"`
	} `xml:"sheetData>row"`
}

type cellXML struct {
	Ref    string   `xml:"r,attr"`
	Type   string   `xml:"t,attr"`
	Value  string   `xml:"v"`
	Inline richText `xml:"is"`
}

func normaliseXLSX(ctx context.Context, content []byte, documentID string) (*driven.NormaliseResult, error) {
	zr, err := normalisers.OpenZip(content)
	if err != nil {
		return nil, err
	}

	data, err := normalisers.ReadZipFile(zr, "xl/workbook.xml")
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("%w: workbook part missing", domain.ErrCorruptInput)
	}
	var wb workbookXML
	if err := xml.Unmarshal(data, &wb); err != nil {
		return nil, fmt.Errorf("%w: parsing workbook: %v", domain.ErrCorruptInput, err)
	}

	rels, err := normalisers.ReadRelationships(zr, "xl/_rels/workbook.xml.rels")
	if err != nil {
		return nil, err
	}
	shared, err := readSharedStrings(zr)
	if err != nil {
		return nil, err
	}

	b := normalisers.NewBuilder(documentID)
	for i, sheet := range wb.Sheets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rel, ok := rels[sheet.RID]
		if !ok {
			continue
		}
		rows, err := readSheet(zr, sheetPath(rel.Target), shared)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			continue
		}
		payload, err := encodeCSV(rows)
		if err != nil {
			return nil, err
		}
		b.Add(i, domain.BlockTable, payload, mimeCSV, map[string]string{
			domain.AttrSheet:     sheet.Name,
			domain.AttrDelimiter: ",",
		})
	}

	return &driven.NormaliseResult{
		Blocks:   b.Blocks(),
		MIMEType: mimeXLSX,
		Title:    normalisers.CoreTitle(zr),
	}, nil
}

// sheetPath resolves a workbook relationship target to an archive path.
func sheetPath(target string) string {
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(target, "/")
	}
	return path.Join("xl", target)
}

func readSharedStrings(zr *zip.Reader) ([]string, error) {
	data, err := normalisers.ReadZipFile(zr, "xl/sharedStrings.xml")
	if err != nil || data == nil {
		return nil, err
	}
	var sst sharedStringsXML
	if err := xml.Unmarshal(data, &sst); err != nil {
		return nil, fmt.Errorf("%w: parsing shared strings: %v", domain.ErrCorruptInput, err)
	}
	out := make([]string, len(sst.Items))
	for i, item := range sst.Items {
		out[i] = item.String()
	}
	return out, nil
}

// readSheet returns the sheet's rows with gaps filled and trailing blank
// rows dropped.
func readSheet(zr *zip.Reader, name string, shared []string) ([][]string, error) {
	data, err := normalisers.ReadZipFile(zr, name)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("%w: worksheet %s missing", domain.ErrCorruptInput, name)
	}
	var ws worksheetXML
	if err := xml.Unmarshal(data, &ws); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", domain.ErrCorruptInput, name, err)
	}

	var rows [][]string
	lastNonBlank := -1
	for _, row := range ws.Rows {
		var cells []string
		for pos, c := range row.Cells {
			col := columnIndex(c.Ref)
			if col < 0 {
				col = pos
			}
			for len(cells) < col {
				cells = append(cells, "")
			}
			v := cellValue(c, shared)
			if col < len(cells) {
				cells[col] = v
			} else {
				cells = append(cells, v)
			}
		}
		for len(cells) > 0 && strings.TrimSpace(cells[len(cells)-1]) == "" {
			cells = cells[:len(cells)-1]
		}
		rows = append(rows, cells)
		if len(cells) > 0 {
			lastNonBlank = len(rows) - 1
		}
	}
	return rows[:lastNonBlank+1], nil
}

func cellValue(c cellXML, shared []string) string {
	switch c.Type {
	case "s":
		idx, err := strconv.Atoi(strings.TrimSpace(c.Value))
		if err != nil || idx < 0 || idx >= len(shared) {
			return ""
		}
		return shared[idx]
	case "inlineStr":
		return c.Inline.String()
	case "b":
		if c.Value == "1" {
			return "TRUE"
		}
		return "FALSE"
	default:
		return c.Value
	}
}

// columnIndex converts the letters of a cell reference such as "AB12"
// into a zero-based column index.
func columnIndex(ref string) int {
	col := 0
	for _, r := range ref {
		if r < 'A' || r > 'Z' {
			break
		}
		col = col*26 + int(r-'A'+1)
	}
	return col - 1
}

func encodeCSV(rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("encoding sheet: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
