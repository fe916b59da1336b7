package models

// BlockType is the kind of node produced by the OCR service.
type BlockType string

const (
	BlockTypeWord        BlockType = "WORD"
	BlockTypeLine        BlockType = "LINE"
	BlockTypeKeyValueSet BlockType = "KEY_VALUE_SET"
)

// EntityType marks a KEY_VALUE_SET block as the key or the value of a form field.
type EntityType string

const (
	EntityTypeKey   EntityType = "KEY"
	EntityTypeValue EntityType = "VALUE"
)

// RelationshipType is the kind of edge between blocks.
type RelationshipType string

const (
	RelationshipChild RelationshipType = "CHILD"
	RelationshipValue RelationshipType = "VALUE"
)

// Relationship is an ordered list of edges of one type. Order is significant.
type Relationship struct {
	Type RelationshipType `json:"type"`
	IDs  []string         `json:"ids"`
}

// Block is one node of the OCR block graph.
type Block struct {
	ID            string         `json:"id"`
	BlockType     BlockType      `json:"blockType"`
	Text          string         `json:"text,omitempty"`
	EntityTypes   []EntityType   `json:"entityTypes,omitempty"`
	Relationships []Relationship `json:"relationships,omitempty"`
}

// HasEntityType reports whether the block carries the given entity role.
func (b Block) HasEntityType(t EntityType) bool {
	for _, et := range b.EntityTypes {
		if et == t {
			return true
		}
	}
	return false
}

// BlockGraph is the raw OCR output for one document. Blocks are kept in the
// order the OCR service returned them.
type BlockGraph struct {
	Blocks []Block `json:"blocks"`
}
