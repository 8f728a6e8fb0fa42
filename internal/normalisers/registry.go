package normalisers

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/strata/internal/core/domain"
	"github.com/custodia-labs/strata/internal/core/ports/driven"
	"github.com/custodia-labs/strata/internal/logger"
)

// Ensure Registry implements the interface.
var _ driven.NormaliserRegistry = (*Registry)(nil)

// Registry selects a normaliser by MIME type, then by file extension,
// then by sniffing the content. Among matches the highest priority wins.
type Registry struct {
	mu          sync.RWMutex
	normalisers []driven.Normaliser
}

// NewRegistry creates a registry holding the given normalisers.
func NewRegistry(normalisers ...driven.Normaliser) *Registry {
	r := &Registry{}
	for _, n := range normalisers {
		r.Register(n)
	}
	return r
}

// Register adds a normaliser. Later registrations win priority ties.
func (r *Registry) Register(n driven.Normaliser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.normalisers = append(r.normalisers, n)
	sort.SliceStable(r.normalisers, func(i, j int) bool {
		return r.normalisers[i].Priority() > r.normalisers[j].Priority()
	})
}

// Normalise runs the best matching normaliser over the input.
func (r *Registry) Normalise(ctx context.Context, input *domain.FileInput, documentID string) (*driven.NormaliseResult, error) {
	if input == nil || documentID == "" {
		return nil, domain.ErrInvalidInput
	}
	if len(input.Content) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", domain.ErrInvalidInput, input.Name)
	}

	n, mimeType := r.lookup(input.Name, input.MIMEType, input.Content)
	if n == nil {
		return nil, fmt.Errorf("%w: %s (%s)", domain.ErrUnsupportedFormat, input.Name, mimeType)
	}

	defer logger.Timed(fmt.Sprintf("normalise %s", input.Name))()
	result, err := n.Normalise(ctx, input, documentID)
	if err != nil {
		return nil, err
	}
	if result.MIMEType == "" {
		result.MIMEType = mimeType
	}
	if result.Title == "" {
		result.Title = TitleFromName(input.Name)
	}
	logger.Debug("normalised %s into %d blocks", input.Name, len(result.Blocks))
	return result, nil
}

// Supports reports whether a file name or MIME type can be normalised.
func (r *Registry) Supports(name, mimeType string) bool {
	n, _ := r.lookup(name, mimeType, nil)
	return n != nil
}

// SupportedExtensions returns every registered extension, sorted.
func (r *Registry) SupportedExtensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var exts []string
	for _, n := range r.normalisers {
		for _, ext := range n.SupportedExtensions() {
			if !seen[ext] {
				seen[ext] = true
				exts = append(exts, ext)
			}
		}
	}
	sort.Strings(exts)
	return exts
}

// lookup returns the chosen normaliser and the MIME type it matched on.
func (r *Registry) lookup(name, mimeType string, content []byte) (driven.Normaliser, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if mt := baseMIME(mimeType); mt != "" && mt != "application/octet-stream" {
		if n := r.byMIME(mt); n != nil {
			return n, mt
		}
	}

	if ext := Ext(name); ext != "" {
		for _, n := range r.normalisers {
			for _, e := range n.SupportedExtensions() {
				if e == ext {
					return n, extMIME(ext, mimeType)
				}
			}
		}
	}

	if len(content) > 0 {
		sniffed := baseMIME(http.DetectContentType(content))
		if n := r.byMIME(sniffed); n != nil {
			return n, sniffed
		}
		return nil, sniffed
	}
	return nil, baseMIME(mimeType)
}

func (r *Registry) byMIME(mimeType string) driven.Normaliser {
	for _, n := range r.normalisers {
		for _, mt := range n.SupportedMIMETypes() {
			if mt == mimeType {
				return n
			}
		}
	}
	return nil
}

// baseMIME strips parameters such as "; charset=utf-8".
func baseMIME(mimeType string) string {
	if mimeType == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(mimeType); err == nil {
		return mt
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}

func extMIME(ext, declared string) string {
	if mt := mime.TypeByExtension(ext); mt != "" {
		return baseMIME(mt)
	}
	if declared != "" {
		return baseMIME(declared)
	}
	return "application/octet-stream"
}
