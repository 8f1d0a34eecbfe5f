package knowledge

import (
	"strings"

	"github.com/gcpassist/gcpassist/engine/knowledge/filter"
)

// Attribute types understood by the query translator.
const (
	AttributeTypeString      = "string"
	AttributeTypeStringArray = "string[]"
	AttributeTypeInteger     = "integer"
	AttributeTypeNumber      = "number"
)

// DefaultDocumentContents describes the indexed corpus to the query translator.
const DefaultDocumentContents = "Information about Good Clinical Practice (GCP) guidelines for clinical trials and research best practices"

// Attribute declares one metadata field that filters may reference.
type Attribute struct {
	Name        string `json:"name"        yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Type        string `json:"type"        yaml:"type"`
}

// AttributeSchema is the ordered list of filterable metadata fields.
type AttributeSchema []Attribute

// DefaultSchema returns the attributes attached to guideline chunks.
func DefaultSchema() AttributeSchema {
	return AttributeSchema{
		{Name: "id", Description: "The unique identifier of the document chunk", Type: AttributeTypeString},
		{Name: "section", Description: "The section or chapter of the guideline the chunk belongs to", Type: AttributeTypeString},
		{Name: "source", Description: "The source document the chunk was taken from", Type: AttributeTypeString},
		{Name: "summary", Description: "A short summary of the chunk content", Type: AttributeTypeString},
	}
}

// Has reports whether name is a declared attribute.
func (s AttributeSchema) Has(name string) bool {
	_, ok := s.Lookup(name)
	return ok
}

// Lookup returns the attribute declared under name.
func (s AttributeSchema) Lookup(name string) (Attribute, bool) {
	name = strings.TrimSpace(name)
	for _, attr := range s {
		if attr.Name == name {
			return attr, true
		}
	}
	return Attribute{}, false
}

// Names lists attribute names in declaration order.
func (s AttributeSchema) Names() []string {
	out := make([]string, 0, len(s))
	for _, attr := range s {
		out = append(out, attr.Name)
	}
	return out
}

// StructuredQuery is a semantic search string plus an optional metadata filter.
type StructuredQuery struct {
	Query  string
	Filter filter.Expression
}

// HasFilter reports whether the query narrows the search.
func (q StructuredQuery) HasFilter() bool {
	return q.Filter != nil
}
