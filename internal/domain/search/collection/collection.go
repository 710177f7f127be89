package collection

// Name identifies a searchable CMS collection.
type Name string

// Searchable collections.
const (
	Topics     Name = "topics"
	Statements Name = "statements"
	Documents  Name = "documents"
	Locations  Name = "locations"
)

// IsValid checks if the name is a known collection.
func (n Name) IsValid() bool {
	return n == Topics || n == Statements || n == Documents || n == Locations
}

// HasEmbeddings reports whether the collection carries embedding vectors
// and can be searched semantically. Documents and locations are
// keyword-only.
func (n Name) HasEmbeddings() bool {
	return n == Topics || n == Statements
}

// DefaultSemantic is the collection set searched when a semantic request
// names none.
func DefaultSemantic() []Name {
	return []Name{Topics, Statements}
}

// All returns every searchable collection.
func All() []Name {
	return []Name{Topics, Statements, Documents, Locations}
}
