package graph

import (
	"errors"
	"slices"
	"strings"

	"github.com/bbiangul/triplegraph/entity"
)

// Vertex and edge property names written by the builders.
const (
	PropURI         = "URI"
	PropImage       = "image"
	PropName        = "common_topic_name"
	PropNameLower   = "common_topic_name_lc"
	PropConnected   = "vertices.connected"
	PropConnectedBy = "connected-by"

	// NoImage is the image value of topics without an image predicate.
	NoImage = "novalue"

	LabelDirect   = "direct-connection"
	LabelMediated = "mediated-connection"
)

// Vocabulary names the predicates and identifiers that drive vertex and
// edge inference. The defaults match the BaseKB Freebase dump.
type Vocabulary struct {
	Namespace        string `json:"namespace" yaml:"namespace"`
	TypePredicate    string `json:"type_predicate" yaml:"type_predicate"`
	TopicType        string `json:"topic_type" yaml:"topic_type"`
	NamePredicate    string `json:"name_predicate" yaml:"name_predicate"`
	IdentifierPrefix string `json:"identifier_prefix" yaml:"identifier_prefix"`

	// ImageMarker selects the image predicate: the first predicate whose
	// local name contains it.
	ImageMarker string `json:"image_marker" yaml:"image_marker"`
}

// DefaultVocabulary returns the Freebase/BaseKB vocabulary.
func DefaultVocabulary() Vocabulary {
	const ns = "http://rdf.basekb.com/ns/"
	return Vocabulary{
		Namespace:        ns,
		TypePredicate:    "http://www.w3.org/1999/02/22-rdf-syntax-ns#type",
		TopicType:        ns + "common.topic",
		NamePredicate:    ns + "type.object.name",
		IdentifierPrefix: ns + "m",
		ImageMarker:      "image",
	}
}

// Validate reports missing vocabulary terms.
func (v Vocabulary) Validate() error {
	var errs []error
	if v.TypePredicate == "" {
		errs = append(errs, errors.New("type_predicate is empty"))
	}
	if v.TopicType == "" {
		errs = append(errs, errors.New("topic_type is empty"))
	}
	if v.IdentifierPrefix == "" {
		errs = append(errs, errors.New("identifier_prefix is empty"))
	}
	return errors.Join(errs...)
}

// IsTopic reports whether the entity is typed as a topic.
func (v Vocabulary) IsTopic(e *entity.Entity) bool {
	return slices.Contains(e.Values(v.TypePredicate), v.TopicType)
}

// IsIdentifier reports whether s is a qualifying entity identifier.
func (v Vocabulary) IsIdentifier(s string) bool {
	return strings.HasPrefix(s, v.IdentifierPrefix)
}

// LocalName returns the part of an IRI after its final '/'.
func LocalName(iri string) string {
	return iri[strings.LastIndexByte(iri, '/')+1:]
}

// PairKey is the value of PropConnected for an unordered vertex pair.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}
