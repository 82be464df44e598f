package reference

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ledongthuc/pdf"

	"eye-report/api/internal/apperr"
	"eye-report/api/internal/prompt"
)

const (
	DefaultPath     = "REFERENCE.pdf"
	DefaultMaxPages = 41
)

// Loader reads terminology text from the bundled reference document.
type Loader struct {
	Path     string
	MaxPages int
	MaxChars int

	// extract is swapped in tests.
	extract func(path string, maxPages int) (string, error)
}

func NewLoader(path string, maxPages, maxChars int) *Loader {
	if strings.TrimSpace(path) == "" {
		path = DefaultPath
	}
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	if maxChars <= 0 {
		maxChars = prompt.DefaultReferenceCap
	}
	return &Loader{Path: path, MaxPages: maxPages, MaxChars: maxChars, extract: extractByExt}
}

// Load returns the capped text or a ReferenceLoad error. It is a short local
// read and ignores ctx.
func (l *Loader) Load(_ context.Context) (string, error) {
	if _, err := os.Stat(l.Path); err != nil {
		return "", apperr.ReferenceLoad("reference document not available", err)
	}
	text, err := l.extract(l.Path, l.MaxPages)
	if err != nil {
		return "", apperr.ReferenceLoad("reference extraction failed", err)
	}
	return prompt.Truncate(text, l.MaxChars), nil
}

func extractByExt(path string, maxPages int) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		b, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(b), nil
	default:
		return extractPDF(path, maxPages)
	}
}

func extractPDF(path string, maxPages int) (text string, err error) {
	// the pdf reader panics on some malformed xref tables
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var b strings.Builder
	total := r.NumPage()
	for i := 1; i <= total && i <= maxPages; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		s, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(s)
	}
	return b.String(), nil
}

// Corpus caches the first load for the life of the process. It never fails:
// a load error leaves the text empty and is kept for health reporting.
type Corpus struct {
	loader *Loader

	once sync.Once
	text string
	err  error
}

func NewCorpus(l *Loader) *Corpus {
	return &Corpus{loader: l}
}

func (c *Corpus) Text(ctx context.Context) string {
	c.once.Do(func() {
		if c.loader == nil {
			return
		}
		c.text, c.err = c.loader.Load(ctx)
	})
	return c.text
}

// Err is the load error, if any, after the first Text call.
func (c *Corpus) Err() error {
	return c.err
}
