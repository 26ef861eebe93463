package model

import "fmt"

// ID is the dense internal identifier of a vector within one field.
// IDs are assigned monotonically from zero by the field's vector store and are never reused.
type ID uint32

// String returns a string representation of the ID.
func (id ID) String() string {
	return fmt.Sprintf("ID(%d)", uint32(id))
}

// Candidate is a scored vector reference produced while searching.
type Candidate struct {
	ID       ID
	Distance float32
}
