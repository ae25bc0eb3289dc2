package entity

import "github.com/bbiangul/triplegraph/parser"

// Assembler turns a subject-sorted statement stream into entities. It
// implements parser.Handler so one assembler can be handed to a parser per
// file. Statements of a subject that reappears after another subject end
// up in a second entity; the input is expected to be sorted.
type Assembler struct {
	emit    func(*Entity) error
	current *Entity
}

// NewAssembler returns an assembler that calls emit once per entity.
func NewAssembler(emit func(*Entity) error) *Assembler {
	return &Assembler{emit: emit}
}

func (a *Assembler) Start() {
	a.current = nil
}

func (a *Assembler) Statement(s parser.Statement) error {
	if a.current == nil || a.current.URI != s.Subject {
		if err := a.flush(); err != nil {
			return err
		}
		a.current = New(s.Subject)
	}
	a.current.Add(s.Predicate, s.Object)
	return nil
}

func (a *Assembler) Finish() error {
	return a.flush()
}

func (a *Assembler) flush() error {
	e := a.current
	a.current = nil
	if e == nil || e.URI == "" {
		return nil
	}
	return a.emit(e)
}
