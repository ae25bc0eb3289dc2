// Package entity groups the statements of one subject into a single unit
// of work for the import pipeline.
package entity

import (
	"fmt"
	"slices"
	"strings"
)

// Order selects how an entity's predicates are enumerated during vertex
// and relation building.
type Order string

const (
	// OrderLexical visits predicates sorted by their identifier.
	OrderLexical Order = "lexical"

	// OrderArrival visits predicates in the order they first appeared in
	// the input stream.
	OrderArrival Order = "arrival"
)

// ParseOrder validates an order name. The empty string means lexical.
func ParseOrder(s string) (Order, error) {
	switch Order(strings.ToLower(s)) {
	case "", OrderLexical:
		return OrderLexical, nil
	case OrderArrival:
		return OrderArrival, nil
	default:
		return "", fmt.Errorf("unknown predicate order %q", s)
	}
}

// Entity is every statement sharing one subject.
type Entity struct {
	URI        string
	Properties map[string][]string

	// arrival order of predicates, kept alongside the map
	order []string
}

// New returns an empty entity for uri.
func New(uri string) *Entity {
	return &Entity{URI: uri, Properties: make(map[string][]string)}
}

// Add appends value to the predicate's value list.
func (e *Entity) Add(predicate, value string) {
	if e.Properties == nil {
		e.Properties = make(map[string][]string)
	}
	vals, ok := e.Properties[predicate]
	if !ok {
		e.order = append(e.order, predicate)
	}
	e.Properties[predicate] = append(vals, value)
}

// Values returns the values recorded for predicate.
func (e *Entity) Values(predicate string) []string {
	return e.Properties[predicate]
}

// Single returns the only value of predicate. Missing and multi-valued
// predicates report false.
func (e *Entity) Single(predicate string) (string, bool) {
	vals := e.Properties[predicate]
	if len(vals) != 1 {
		return "", false
	}
	return vals[0], true
}

// Predicates enumerates the entity's predicates in the requested order.
func (e *Entity) Predicates(o Order) []string {
	if o == OrderArrival && len(e.order) == len(e.Properties) {
		return slices.Clone(e.order)
	}
	preds := make([]string, 0, len(e.Properties))
	for p := range e.Properties {
		preds = append(preds, p)
	}
	slices.Sort(preds)
	return preds
}

// Len reports the number of statements grouped into the entity.
func (e *Entity) Len() int {
	n := 0
	for _, v := range e.Properties {
		n += len(v)
	}
	return n
}
