package parser

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knakk/rdf"
)

// ErrUnsupportedFormat is returned when no parser is registered for a file.
var ErrUnsupportedFormat = errors.New("parser: unsupported format")

type Registry struct {
	parsers map[string]Parser
}

func NewRegistry() *Registry {
	r := &Registry{parsers: make(map[string]Parser)}
	// Register built-in parsers
	nt := &RDFParser{Format: rdf.NTriples}
	ttl := &RDFParser{Format: rdf.Turtle}
	xml := &RDFParser{Format: rdf.RDFXML}
	sheet := &XLSXParser{}

	for _, p := range []Parser{nt, ttl, xml, sheet} {
		for _, f := range p.SupportedFormats() {
			r.Register(f, p)
		}
	}
	return r
}

// Get returns the parser registered for format (an extension without dot).
func (r *Registry) Get(format string) (Parser, error) {
	p, ok := r.parsers[format]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	return p, nil
}

// ForPath picks a parser from the file extension, looking through a
// trailing .gz so that dump.nt.gz resolves to the N-Triples parser.
func (r *Registry) ForPath(path string) (Parser, error) {
	return r.Get(Format(path))
}

// Register maps format to p, replacing any parser already registered.
func (r *Registry) Register(format string, p Parser) {
	r.parsers[format] = p
}

// Format returns the lower-cased syntax extension of path, ignoring a
// trailing .gz compression suffix.
func Format(path string) string {
	name := strings.ToLower(filepath.Base(path))
	name = strings.TrimSuffix(name, ".gz")
	return strings.TrimPrefix(filepath.Ext(name), ".")
}
