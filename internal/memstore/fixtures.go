package memstore

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/Lllllllleong/idpflow/internal/models"
)

// InvoiceGraph is a small OCR result for a one-line invoice with two form
// fields: "Invoice Number" = "INV-001" and "Total" = "$1,250.00".
func InvoiceGraph() models.BlockGraph {
	word := func(id, text string) models.Block {
		return models.Block{ID: id, BlockType: models.BlockTypeWord, Text: text}
	}
	children := func(ids ...string) []models.Relationship {
		return []models.Relationship{{Type: models.RelationshipChild, IDs: ids}}
	}
	return models.BlockGraph{Blocks: []models.Block{
		word("w1", "Invoice"), word("w2", "Number:"), word("w3", "INV-001"),
		word("w4", "Total:"), word("w5", "$1,250.00"),
		{ID: "l1", BlockType: models.BlockTypeLine, Text: "Invoice Number: INV-001", Relationships: children("w1", "w2", "w3")},
		{ID: "l2", BlockType: models.BlockTypeLine, Text: "Total: $1,250.00", Relationships: children("w4", "w5")},
		{
			ID: "k1", BlockType: models.BlockTypeKeyValueSet, EntityTypes: []models.EntityType{models.EntityTypeKey},
			Relationships: []models.Relationship{
				{Type: models.RelationshipChild, IDs: []string{"w1", "w2"}},
				{Type: models.RelationshipValue, IDs: []string{"v1"}},
			},
		},
		{ID: "v1", BlockType: models.BlockTypeKeyValueSet, EntityTypes: []models.EntityType{models.EntityTypeValue}, Relationships: children("w3")},
		{
			ID: "k2", BlockType: models.BlockTypeKeyValueSet, EntityTypes: []models.EntityType{models.EntityTypeKey},
			Relationships: []models.Relationship{
				{Type: models.RelationshipChild, IDs: []string{"w4"}},
				{Type: models.RelationshipValue, IDs: []string{"v2"}},
			},
		},
		{ID: "v2", BlockType: models.BlockTypeKeyValueSet, EntityTypes: []models.EntityType{models.EntityTypeValue}, Relationships: children("w5")},
	}}
}

// MinimalPDF builds a structurally valid PDF with the given number of blank
// pages. Offsets in the cross-reference table are computed from the output.
func MinimalPDF(pages int) []byte {
	if pages < 1 {
		pages = 1
	}
	kids := make([]string, pages)
	for i := range kids {
		kids[i] = fmt.Sprintf("%d 0 R", i+3)
	}

	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), pages),
	}
	for range pages {
		objects = append(objects, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << >> >>")
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}
