package retrieval

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"hrassist/internal/domain/audit"
	"hrassist/internal/platform/querier"
)

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

var chunkColumns = []string{"document_id", "source_document", "ordinal", "text", "embedding"}

func copyChunks(ctx context.Context, tx pgx.Tx, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	_, err := tx.CopyFrom(ctx, pgx.Identifier{"policy_chunks"}, chunkColumns,
		pgx.CopyFromSlice(len(chunks), func(i int) ([]any, error) {
			c := chunks[i]
			return []any{c.DocumentID, c.Source, c.Ordinal, c.Text, c.Embedding}, nil
		}))
	if err != nil {
		return fmt.Errorf("copy policy chunks: %w", err)
	}
	return nil
}

func (s *Store) SaveDocument(ctx context.Context, doc Document, chunks []Chunk, entry audit.Entry) (Document, []Chunk, error) {
	err := querier.RunInTx(ctx, s.DB, func(tx pgx.Tx) error {
		return insertDocument(ctx, tx, &doc, chunks, entry)
	})
	if err != nil {
		return Document{}, nil, err
	}
	return doc, chunks, nil
}

// ReplaceDocument relies on ON DELETE CASCADE to drop the old chunks.
func (s *Store) ReplaceDocument(ctx context.Context, doc Document, chunks []Chunk, entry audit.Entry) (Document, []Chunk, error) {
	err := querier.RunInTx(ctx, s.DB, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM policy_documents WHERE name = $1`, doc.Name); err != nil {
			return err
		}
		return insertDocument(ctx, tx, &doc, chunks, entry)
	})
	if err != nil {
		return Document{}, nil, err
	}
	return doc, chunks, nil
}

func insertDocument(ctx context.Context, tx pgx.Tx, doc *Document, chunks []Chunk, entry audit.Entry) error {
	if err := tx.QueryRow(ctx, `
      INSERT INTO policy_documents (name, text, checksum)
      VALUES ($1, $2, $3)
      RETURNING id, created_at
    `, doc.Name, doc.Text, doc.Checksum).Scan(&doc.ID, &doc.CreatedAt); err != nil {
		return err
	}
	for i := range chunks {
		chunks[i].DocumentID = doc.ID
	}
	if err := copyChunks(ctx, tx, chunks); err != nil {
		return err
	}
	entry.Target = documentTarget(doc.ID)
	_, err := audit.Insert(ctx, tx, entry)
	return err
}

func (s *Store) Checksums(ctx context.Context) (map[string]string, error) {
	rows, err := s.DB.Query(ctx, `SELECT name, checksum FROM policy_documents ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var name, sum string
		if err := rows.Scan(&name, &sum); err != nil {
			return nil, err
		}
		out[name] = sum
	}
	return out, rows.Err()
}

func (s *Store) ReplaceChunks(ctx context.Context, chunks []Chunk, entry audit.Entry) error {
	return querier.RunInTx(ctx, s.DB, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM policy_chunks`); err != nil {
			return err
		}
		if err := copyChunks(ctx, tx, chunks); err != nil {
			return err
		}
		_, err := audit.Insert(ctx, tx, entry)
		return err
	})
}

func (s *Store) Documents(ctx context.Context) ([]Document, error) {
	rows, err := s.DB.Query(ctx, `SELECT id, name, text, checksum, created_at FROM policy_documents ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.Name, &d.Text, &d.Checksum, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) Chunks(ctx context.Context) ([]Chunk, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, document_id, source_document, ordinal, text, embedding
    FROM policy_chunks
    ORDER BY document_id, ordinal
  `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Source, &c.Ordinal, &c.Text, &c.Embedding); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
