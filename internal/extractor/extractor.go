// Package extractor turns the raw OCR block graph into form key/value pairs and
// the full text of a document.
package extractor

import (
	"strings"

	"github.com/Lllllllleong/idpflow/internal/models"
)

// Result is the structured output of Extract.
type Result struct {
	KeyValues map[string]string
	FullText  string
}

// Extract resolves every KEY block that has a VALUE edge into a value block and
// concatenates all LINE text. Keys without a resolvable value are dropped.
// When a key has several VALUE edges the first one in edge order wins, and when
// two keys resolve to the same text the later one overwrites the earlier.
func Extract(graph models.BlockGraph) Result {
	byID := make(map[string]models.Block, len(graph.Blocks))
	var keys []models.Block
	values := make(map[string]models.Block)
	var lines []string

	for _, b := range graph.Blocks {
		byID[b.ID] = b
		switch b.BlockType {
		case models.BlockTypeKeyValueSet:
			if b.HasEntityType(models.EntityTypeKey) {
				keys = append(keys, b)
			}
			if b.HasEntityType(models.EntityTypeValue) {
				values[b.ID] = b
			}
		case models.BlockTypeLine:
			if b.Text != "" {
				lines = append(lines, b.Text)
			}
		}
	}

	kv := make(map[string]string, len(keys))
	for _, key := range keys {
		value, ok := pairedValue(key, values)
		if !ok {
			continue
		}
		kv[childWords(key, byID)] = childWords(value, byID)
	}

	return Result{
		KeyValues: kv,
		FullText:  strings.Join(lines, " "),
	}
}

func pairedValue(key models.Block, values map[string]models.Block) (models.Block, bool) {
	for _, rel := range key.Relationships {
		if rel.Type != models.RelationshipValue {
			continue
		}
		for _, id := range rel.IDs {
			if v, ok := values[id]; ok {
				return v, true
			}
		}
	}
	return models.Block{}, false
}

// childWords joins the text of the WORD children of b in edge order.
func childWords(b models.Block, byID map[string]models.Block) string {
	var words []string
	for _, rel := range b.Relationships {
		if rel.Type != models.RelationshipChild {
			continue
		}
		for _, id := range rel.IDs {
			child, ok := byID[id]
			if !ok || child.BlockType != models.BlockTypeWord || child.Text == "" {
				continue
			}
			words = append(words, child.Text)
		}
	}
	return strings.Join(words, " ")
}
