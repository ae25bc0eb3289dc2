package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/bbiangul/triplegraph/entity"
	"github.com/bbiangul/triplegraph/parser"
)

// ResolveInputs expands path into the files to read. A file is returned
// as is. A directory contributes its regular, non-hidden files one level
// deep, sorted by name and filtered by the include glob when one is set.
func ResolveInputs(path, include string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat input %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	if include != "" && !doublestar.ValidatePattern(include) {
		return nil, fmt.Errorf("invalid include pattern %q", include)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("reading input dir %s: %w", path, err)
	}
	var files []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") || e.IsDir() || !e.Type().IsRegular() {
			continue
		}
		if include != "" {
			ok, err := doublestar.Match(include, name)
			if err != nil {
				return nil, fmt.Errorf("matching %s: %w", name, err)
			}
			if !ok {
				continue
			}
		}
		files = append(files, filepath.Join(path, name))
	}
	slices.Sort(files)
	return files, nil
}

// Producer streams qualifying entities from input files onto a queue.
type Producer struct {
	Phase    string
	Registry *parser.Registry

	// Accept selects the entities that are queued. Nil accepts all.
	Accept func(*entity.Entity) bool

	// Observer may be nil.
	Observer ProducerObserver
}

// ProducerObserver receives queue events. metrics.Metrics implements it.
type ProducerObserver interface {
	EntityProduced(phase string)
	QueueDepth(phase string, n int)
}

// Run parses every file in order and closes out when done, on success or
// failure. The barrier opens once every file has a parser, or when Run
// returns, whichever is first. It reports how many entities were queued.
func (p *Producer) Run(ctx context.Context, files []string, out chan<- *entity.Entity, start *Barrier) (int64, error) {
	defer close(out)
	defer start.Open()

	parsers := make([]parser.Parser, len(files))
	for i, f := range files {
		ps, err := p.Registry.ForPath(f)
		if err != nil {
			return 0, err
		}
		parsers[i] = ps
	}
	start.Open()

	var produced, statements int64
	emit := func(e *entity.Entity) error {
		statements += int64(e.Len())
		if p.Accept != nil && !p.Accept(e) {
			return nil
		}
		select {
		case out <- e:
		case <-ctx.Done():
			return ctx.Err()
		}
		produced++
		if p.Observer != nil {
			p.Observer.EntityProduced(p.Phase)
			p.Observer.QueueDepth(p.Phase, len(out))
		}
		return nil
	}

	for i, f := range files {
		began := time.Now()
		before, read := produced, statements
		if err := parsers[i].Parse(ctx, f, entity.NewAssembler(emit)); err != nil {
			return produced, fmt.Errorf("reading %s: %w", f, err)
		}
		slog.Info("pipeline: file read", "phase", p.Phase, "file", f,
			"statements", statements-read, "entities", produced-before,
			"elapsed", time.Since(began).Round(time.Millisecond))
	}
	return produced, nil
}
