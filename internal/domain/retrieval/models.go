package retrieval

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

const NotFoundAnswer = "Not found in policy documents."

var (
	ErrEmptyDocument = errors.New("policy document has no text")
	ErrEmptyQuestion = errors.New("question is empty")
)

// Document keeps the extracted text so chunks can be rebuilt on reindex.
type Document struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Text      string    `json:"-"`
	Checksum  string    `json:"checksum"`
	CreatedAt time.Time `json:"createdAt"`
}

// Chunk is a searchable slice of a document. Ordinal is its position within the document.
type Chunk struct {
	ID         int64
	DocumentID int64
	Source     string
	Text       string
	Ordinal    int
	Embedding  []float32
}

type Hit struct {
	Chunk Chunk
	Score float64
}

// Citation points at the chunk an answer was grounded on. Citations are logged and
// audited, never shown in the answer text.
type Citation struct {
	Document string  `json:"document"`
	Ordinal  int     `json:"ordinal"`
	Score    float64 `json:"score"`
}

type GroundedAnswer struct {
	Found     bool       `json:"found"`
	Answer    string     `json:"answer"`
	Citations []Citation `json:"-"`
}

type Status struct {
	Documents int    `json:"documents"`
	Chunks    int    `json:"chunks"`
	Segments  int    `json:"segments"`
	Version   uint64 `json:"version"`
}

func notFound() GroundedAnswer {
	return GroundedAnswer{Found: false, Answer: NotFoundAnswer}
}

// Checksum is the hex sha256 of a document's text.
func Checksum(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
