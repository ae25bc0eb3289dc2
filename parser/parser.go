package parser

import "context"

// Statement is a single subject/predicate/object fact read from a dump.
// Object holds the IRI for resource objects, the lexical form for literals
// and the node label for blank nodes.
type Statement struct {
	Subject   string
	Predicate string
	Object    string
}

// Handler receives the statements of one file in order. Start is called
// before the first statement and Finish after the last one, so a handler
// can flush whatever it accumulated. A non-nil error from Statement or
// Finish stops the parse and is returned by Parse.
type Handler interface {
	Start()
	Statement(s Statement) error
	Finish() error
}

// Parser can parse a specific triple syntax.
type Parser interface {
	Parse(ctx context.Context, path string, h Handler) error
	SupportedFormats() []string
}
