package graph

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bbiangul/triplegraph/entity"
	"github.com/bbiangul/triplegraph/store"
)

// VertexBuilder turns topic entities into vertices.
type VertexBuilder struct {
	h   *Handle
	sig store.SignatureIndex
}

// NewVertexBuilder returns a builder writing through h. When the store
// indexes signatures, each vertex also gets its type signature.
func NewVertexBuilder(h *Handle) *VertexBuilder {
	b := &VertexBuilder{h: h}
	if si, ok := h.g.(store.SignatureIndex); ok {
		b.sig = si
	}
	return b
}

// Process creates the vertex for a topic entity. Other entities are
// ignored, as are topics that already have a vertex.
func (b *VertexBuilder) Process(ctx context.Context, e *entity.Entity) error {
	vocab := b.h.vocab
	if !vocab.IsTopic(e) {
		return nil
	}

	props := b.properties(e)

	b.h.mu.Lock()
	defer b.h.mu.Unlock()

	if _, ok, err := b.h.Lookup(ctx, e.URI); err != nil {
		return fmt.Errorf("looking up %s: %w", e.URI, err)
	} else if ok {
		slog.Debug("graph: topic already has a vertex", "uri", e.URI)
		return nil
	}

	v, err := b.h.g.CreateVertex(ctx)
	if err != nil {
		return err
	}
	for _, p := range props {
		if err := b.h.g.SetVertexProperty(ctx, v, p.key, p.value); err != nil {
			return err
		}
	}

	if b.sig != nil {
		if sig := Signature(e.Values(vocab.TypePredicate), b.sig.SignatureDim()); sig != nil {
			if err := b.sig.SetVertexSignature(ctx, v, sig); err != nil {
				return fmt.Errorf("signature for %s: %w", e.URI, err)
			}
		}
	}

	b.h.vertices.Add(1)
	if b.h.obs != nil {
		b.h.obs.VertexCreated()
	}
	return nil
}

type property struct {
	key   string
	value any
}

// properties derives a topic's vertex properties in write order.
func (b *VertexBuilder) properties(e *entity.Entity) []property {
	vocab := b.h.vocab
	props := []property{
		{PropURI, e.URI},
		{vocab.TypePredicate, e.Values(vocab.TypePredicate)},
	}

	if vocab.NamePredicate != "" {
		if names := e.Values(vocab.NamePredicate); len(names) > 0 {
			props = append(props,
				property{PropName, names[0]},
				property{PropNameLower, strings.ToLower(names[0])})
		}
	}

	image := NoImage
	if vocab.ImageMarker != "" {
		for _, p := range e.Predicates(b.h.order) {
			if strings.Contains(LocalName(p), vocab.ImageMarker) {
				if vals := e.Values(p); len(vals) > 0 {
					image = vals[0]
					break
				}
			}
		}
	}
	return append(props, property{PropImage, image})
}
