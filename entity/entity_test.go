package entity

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbiangul/triplegraph/parser"
)

func feed(t *testing.T, a *Assembler, stmts ...parser.Statement) error {
	t.Helper()
	a.Start()
	for _, s := range stmts {
		if err := a.Statement(s); err != nil {
			return err
		}
	}
	return a.Finish()
}

func st(s, p, o string) parser.Statement {
	return parser.Statement{Subject: s, Predicate: p, Object: o}
}

func TestAssemblerGroupsContiguousSubjects(t *testing.T) {
	var got []*Entity
	a := NewAssembler(func(e *Entity) error {
		got = append(got, e)
		return nil
	})

	err := feed(t, a,
		st("s1", "p", "a"),
		st("s1", "p", "b"),
		st("s1", "q", "c"),
		st("s2", "p", "d"),
	)
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "s1", got[0].URI)
	assert.Equal(t, []string{"a", "b"}, got[0].Values("p"))
	assert.Equal(t, []string{"c"}, got[0].Values("q"))
	assert.Equal(t, 3, got[0].Len())
	assert.Equal(t, "s2", got[1].URI)
}

func TestAssemblerSplitsUnsortedSubjects(t *testing.T) {
	var uris []string
	a := NewAssembler(func(e *Entity) error {
		uris = append(uris, e.URI)
		return nil
	})

	require.NoError(t, feed(t, a,
		st("s1", "p", "a"),
		st("s2", "p", "b"),
		st("s1", "p", "c"),
	))
	assert.Equal(t, []string{"s1", "s2", "s1"}, uris)
}

func TestAssemblerEmptyStream(t *testing.T) {
	called := false
	a := NewAssembler(func(*Entity) error {
		called = true
		return nil
	})
	require.NoError(t, feed(t, a))
	assert.False(t, called)
}

func TestAssemblerEmitErrorStops(t *testing.T) {
	stop := errors.New("stop")
	a := NewAssembler(func(*Entity) error { return stop })

	err := feed(t, a, st("s1", "p", "a"), st("s2", "p", "b"))
	assert.ErrorIs(t, err, stop)
}

func TestEntityPredicatesOrder(t *testing.T) {
	e := New("s")
	e.Add("z", "1")
	e.Add("a", "2")
	e.Add("m", "3")
	e.Add("z", "4")

	assert.Equal(t, []string{"a", "m", "z"}, e.Predicates(OrderLexical))
	assert.Equal(t, []string{"z", "a", "m"}, e.Predicates(OrderArrival))
}

func TestEntitySingle(t *testing.T) {
	e := New("s")
	e.Add("one", "x")
	e.Add("many", "x")
	e.Add("many", "y")

	v, ok := e.Single("one")
	assert.True(t, ok)
	assert.Equal(t, "x", v)

	_, ok = e.Single("many")
	assert.False(t, ok)

	_, ok = e.Single("missing")
	assert.False(t, ok)
}

func TestParseOrder(t *testing.T) {
	o, err := ParseOrder("")
	require.NoError(t, err)
	assert.Equal(t, OrderLexical, o)

	o, err = ParseOrder("Arrival")
	require.NoError(t, err)
	assert.Equal(t, OrderArrival, o)

	_, err = ParseOrder("random")
	assert.Error(t, err)
}
