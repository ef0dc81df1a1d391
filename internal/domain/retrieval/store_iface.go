package retrieval

import (
	"context"

	"hrassist/internal/domain/audit"
)

type StoreAPI interface {
	// SaveDocument persists doc with its chunks and entry in one commit. The returned
	// chunks carry the assigned document id.
	SaveDocument(ctx context.Context, doc Document, chunks []Chunk, entry audit.Entry) (Document, []Chunk, error)
	// ReplaceDocument removes every document named doc.Name with its chunks, then saves doc
	// like SaveDocument, in one commit.
	ReplaceDocument(ctx context.Context, doc Document, chunks []Chunk, entry audit.Entry) (Document, []Chunk, error)
	// Checksums maps each document name to the checksum of its newest version.
	Checksums(ctx context.Context) (map[string]string, error)
	// ReplaceChunks swaps every stored chunk for chunks and appends entry in one commit.
	ReplaceChunks(ctx context.Context, chunks []Chunk, entry audit.Entry) error
	Documents(ctx context.Context) ([]Document, error)
	Chunks(ctx context.Context) ([]Chunk, error)
}
