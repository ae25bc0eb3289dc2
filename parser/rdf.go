package parser

import (
	"bufio"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/knakk/rdf"
)

// ctxCheckEvery is how many statements are decoded between context checks.
const ctxCheckEvery = 4096

// RDFParser decodes triple dumps with knakk/rdf. Files ending in .gz are
// decompressed on the fly.
type RDFParser struct {
	Format rdf.Format
}

func (p *RDFParser) SupportedFormats() []string {
	switch p.Format {
	case rdf.NTriples:
		return []string{"nt", "ntriples"}
	case rdf.Turtle:
		return []string{"ttl", "turtle"}
	case rdf.RDFXML:
		return []string{"rdf", "xml", "owl"}
	default:
		return nil
	}
}

func (p *RDFParser) Parse(ctx context.Context, path string, h Handler) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = bufio.NewReaderSize(f, 1<<20)
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return fmt.Errorf("opening gzip stream %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}

	start := time.Now()
	dec := rdf.NewTripleDecoder(r, p.Format)

	h.Start()
	var n int
	for {
		tr, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("decoding %s after %d statements: %w", path, n, err)
		}

		n++
		if n%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		if err := h.Statement(Statement{
			Subject:   tr.Subj.String(),
			Predicate: tr.Pred.String(),
			Object:    tr.Obj.String(),
		}); err != nil {
			return err
		}
	}
	if err := h.Finish(); err != nil {
		return err
	}

	slog.Debug("parser: file decoded", "path", path, "statements", n,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}
