package graph

import (
	"context"
	"fmt"

	"github.com/bbiangul/triplegraph/entity"
)

// RelationBuilder infers edges between existing vertices.
//
// A topic entity gets a direct-connection edge to every vertex it names
// through a single-valued predicate. A non-topic entity mediates: every
// pair of vertices it names through single-valued predicates gets a
// mediated-connection edge weighted by both predicates. Multi-valued
// predicates are ignored in both cases.
type RelationBuilder struct {
	h *Handle
}

func NewRelationBuilder(h *Handle) *RelationBuilder {
	return &RelationBuilder{h: h}
}

func (b *RelationBuilder) Process(ctx context.Context, e *entity.Entity) error {
	if b.h.vocab.IsTopic(e) {
		return b.direct(ctx, e)
	}
	return b.mediated(ctx, e)
}

func (b *RelationBuilder) direct(ctx context.Context, e *entity.Entity) error {
	src, ok, err := b.h.Lookup(ctx, e.URI)
	if err != nil {
		return fmt.Errorf("looking up %s: %w", e.URI, err)
	}
	if !ok {
		return nil
	}
	from := endpoint{uri: e.URI, v: src}

	for _, pred := range e.Predicates(b.h.order) {
		to, ok, err := b.target(ctx, e, pred)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := b.h.connect(ctx, from, to, LabelDirect, "", pred); err != nil {
			return fmt.Errorf("direct edge %s -> %s: %w", e.URI, to.uri, err)
		}
	}
	return nil
}

func (b *RelationBuilder) mediated(ctx context.Context, e *entity.Entity) error {
	type linked struct {
		endpoint
		pred string
	}
	var prev []linked

	for _, pred := range e.Predicates(b.h.order) {
		cur, ok, err := b.target(ctx, e, pred)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		for _, p := range prev {
			if err := b.h.connect(ctx, cur, p.endpoint, LabelMediated, e.URI, pred, p.pred); err != nil {
				return fmt.Errorf("mediated edge %s - %s via %s: %w", cur.uri, p.uri, e.URI, err)
			}
		}
		prev = append(prev, linked{endpoint: cur, pred: pred})
	}
	return nil
}

// target resolves a single-valued predicate whose value is an identifier
// with a vertex.
func (b *RelationBuilder) target(ctx context.Context, e *entity.Entity, pred string) (endpoint, bool, error) {
	val, ok := e.Single(pred)
	if !ok || !b.h.vocab.IsIdentifier(val) {
		return endpoint{}, false, nil
	}
	v, ok, err := b.h.Lookup(ctx, val)
	if err != nil {
		return endpoint{}, false, fmt.Errorf("looking up %s: %w", val, err)
	}
	return endpoint{uri: val, v: v}, ok, nil
}
