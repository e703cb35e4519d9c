package service

import (
	"context"
	"strings"

	"github.com/Endika/participacion/internal/model"
)

// StaticCensus is a CensusClient backed by a fixed allow-list of documents,
// for deployments without a real census integration and for tests. Entries
// are "TYPE:NUMBER" pairs ("dni:12345678Z"); numbers are normalized the
// same way account documents are.
type StaticCensus struct {
	documents map[string]bool
}

// NewStaticCensus builds a StaticCensus from "TYPE:NUMBER" entries.
func NewStaticCensus(entries []string) *StaticCensus {
	docs := make(map[string]bool, len(entries))
	for _, e := range entries {
		parts := strings.SplitN(e, ":", 2)
		if len(parts) != 2 {
			continue
		}
		docs[censusKey(parts[0], model.NormalizeDocumentNumber(parts[1]))] = true
	}
	return &StaticCensus{documents: docs}
}

// Verify reports whether the document appears in the allow-list.
func (c *StaticCensus) Verify(_ context.Context, documentType, documentNumber string) (bool, error) {
	return c.documents[censusKey(documentType, documentNumber)], nil
}

func censusKey(documentType, documentNumber string) string {
	return strings.ToLower(documentType) + ":" + documentNumber
}
