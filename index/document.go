package index

import "maps"

// Document is a single unit of indexable content. ID is the external
// primary key; Fields maps field names to raw text that the writer's
// analyzer turns into terms.
type Document struct {
	ID     string
	Fields map[string]string
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	return Document{
		ID:     d.ID,
		Fields: maps.Clone(d.Fields),
	}
}
