package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/calebyhan/bible-rag/internal/core/domain"
)

// EmbeddedPassage pairs a verse row with its stored embedding.
type EmbeddedPassage struct {
	Row    domain.PassageRow
	Vector []float32
}

// EmbeddingBatch pages through stored embeddings in verse id order, starting
// after afterVerseID. An empty result means the table is exhausted.
func (r *PassageRepository) EmbeddingBatch(ctx context.Context, afterVerseID string, limit int) ([]EmbeddedPassage, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT`+passageColumns+`, e.vector::text
FROM embeddings e
JOIN verses v ON v.id = e.verse_id
JOIN books b ON b.id = v.book_id
JOIN translations t ON t.id = v.translation_id
WHERE v.id::text > $1
ORDER BY v.id::text
LIMIT $2`, afterVerseID, limit)
	if err != nil {
		return nil, fmt.Errorf("embedding batch: %w", err)
	}
	defer rows.Close()

	out := make([]EmbeddedPassage, 0, limit)
	for rows.Next() {
		var p domain.PassageRow
		var literal string
		if err := rows.Scan(
			&p.VerseID, &p.TranslationID, &p.TranslationAbbrev, &p.Ref.BookID, &p.Ref.Chapter, &p.Ref.Verse, &p.Text,
			&p.Book.Name, &p.Book.NameKorean, &p.Book.Abbrev, &p.Book.Testament, &p.Book.Genre,
			&literal,
		); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		vec, err := parseVectorLiteral(literal)
		if err != nil {
			return nil, fmt.Errorf("verse %s: %w", p.VerseID, err)
		}
		p.Book.ID = p.Ref.BookID
		out = append(out, EmbeddedPassage{Row: p, Vector: vec})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embeddings: %w", err)
	}
	return out, nil
}

// parseVectorLiteral reads pgvector's text form "[0.1,0.2,...]".
func parseVectorLiteral(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil, fmt.Errorf("malformed vector literal")
	}
	body := s[1 : len(s)-1]
	if strings.TrimSpace(body) == "" {
		return []float32{}, nil
	}
	parts := strings.Split(body, ",")
	out := make([]float32, len(parts))
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return nil, fmt.Errorf("parse vector component %d: %w", i, err)
		}
		out[i] = float32(f)
	}
	return out, nil
}
