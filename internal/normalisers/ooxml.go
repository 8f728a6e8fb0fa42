package normalisers

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/custodia-labs/strata/internal/core/domain"
)

// maxZipEntry bounds a single decompressed archive member.
const maxZipEntry = domain.MaxFileBytes * 4

// OpenZip opens an Office Open XML package held in memory.
func OpenZip(content []byte) (*zip.Reader, error) {
	r, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("%w: not a valid OOXML package: %v", domain.ErrCorruptInput, err)
	}
	return r, nil
}

// ReadZipFile returns the named member of the archive, or nil when the
// member is absent.
func ReadZipFile(r *zip.Reader, name string) ([]byte, error) {
	for _, f := range r.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: opening %s: %v", domain.ErrCorruptInput, name, err)
		}
		defer rc.Close()

		data, err := io.ReadAll(io.LimitReader(rc, maxZipEntry+1))
		if err != nil {
			return nil, fmt.Errorf("%w: reading %s: %v", domain.ErrCorruptInput, name, err)
		}
		if len(data) > maxZipEntry {
			return nil, fmt.Errorf("%w: %s exceeds size limit", domain.ErrCorruptInput, name)
		}
		return data, nil
	}
	return nil, nil
}

type coreProperties struct {
	Title string `xml:"title"`
}

// CoreTitle returns the title recorded in docProps/core.xml, if any.
func CoreTitle(r *zip.Reader) string {
	data, err := ReadZipFile(r, "docProps/core.xml")
	if err != nil || data == nil {
		return ""
	}
	var core coreProperties
	if err := xml.Unmarshal(data, &core); err != nil {
		return ""
	}
	return strings.TrimSpace(core.Title)
}

// Relationship is one entry of an OOXML .rels part.
type Relationship struct {
	ID     string `xml:"Id,attr"`
	Type   string `xml:"Type,attr"`
	Target string `xml:"Target,attr"`
}

type relationships struct {
	Items []Relationship `xml:"Relationship"`
}

// ReadRelationships parses a .rels part into a map keyed by relationship ID.
// A missing part yields an empty map.
func ReadRelationships(r *zip.Reader, name string) (map[string]Relationship, error) {
	out := make(map[string]Relationship)
	data, err := ReadZipFile(r, name)
	if err != nil || data == nil {
		return out, err
	}
	var rels relationships
	if err := xml.Unmarshal(data, &rels); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", domain.ErrCorruptInput, name, err)
	}
	for _, rel := range rels.Items {
		out[rel.ID] = rel
	}
	return out, nil
}
