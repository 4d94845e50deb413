package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/calebyhan/bible-rag/internal/core/domain"
)

// referenceTranslation picks the translation used for book verse counts.
const referenceTranslation = `(SELECT id FROM translations ORDER BY language_code, name LIMIT 1)`

// FindBook matches English name and abbreviation case-insensitively and the
// Korean name exactly.
func (r *PassageRepository) FindBook(ctx context.Context, name string) (*domain.Book, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	var b domain.Book
	err := r.db.QueryRowContext(ctx, `
SELECT id, name, COALESCE(name_korean, ''), abbreviation, testament, COALESCE(genre, '')
FROM books
WHERE name ILIKE $1 ESCAPE '\' OR name_korean = $2 OR abbreviation ILIKE $1 ESCAPE '\'
ORDER BY book_number
LIMIT 1
`, escapeLike(name), name).Scan(&b.ID, &b.Name, &b.NameKorean, &b.Abbrev, &b.Testament, &b.Genre)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find book %q: %w", name, err)
	}
	return &b, nil
}

func (r *PassageRepository) FetchChapterRows(ctx context.Context, bookID string, chapter, verse int, abbrevs []string) ([]domain.PassageRow, error) {
	q := &query{}
	preds := []predicate{eq("v.book_id", bookID), eq("v.chapter", chapter)}
	if verse > 0 {
		preds = append(preds, eq("v.verse", verse))
	}
	if upper := upperAll(abbrevs); len(upper) > 0 {
		preds = append(preds, anyOf("upper(t.abbreviation)", upper))
	}
	where := q.where(preds...)

	rows, err := r.db.QueryContext(ctx, `
SELECT`+passageColumns+`
FROM verses v
JOIN books b ON b.id = v.book_id
JOIN translations t ON t.id = v.translation_id
WHERE `+where+`
ORDER BY v.verse, t.language_code, t.abbreviation
`, q.args...)
	if err != nil {
		return nil, fmt.Errorf("fetch chapter rows: %w", err)
	}
	out, err := scanPassageRows(rows, false)
	if err != nil {
		return nil, fmt.Errorf("fetch chapter rows: %w", err)
	}
	return out, nil
}

// FetchVerseContext returns the full text of the verses either side of ref
// in one translation. Chapter boundaries are not crossed.
func (r *PassageRepository) FetchVerseContext(ctx context.Context, ref domain.PassageRef, translationID string) (domain.VerseContext, error) {
	var out domain.VerseContext
	rows, err := r.db.QueryContext(ctx, `
SELECT chapter, verse, text
FROM verses
WHERE book_id = $1 AND chapter = $2 AND translation_id = $3 AND verse IN ($4, $5)
ORDER BY verse
`, ref.BookID, ref.Chapter, translationID, ref.Verse-1, ref.Verse+1)
	if err != nil {
		return out, fmt.Errorf("query verse context: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var cv domain.ContextVerse
		if err := rows.Scan(&cv.Chapter, &cv.Verse, &cv.Text); err != nil {
			return out, fmt.Errorf("scan verse context: %w", err)
		}
		switch cv.Verse {
		case ref.Verse - 1:
			out.Previous = &cv
		case ref.Verse + 1:
			out.Next = &cv
		}
	}
	if err := rows.Err(); err != nil {
		return out, fmt.Errorf("iterate verse context: %w", err)
	}
	return out, nil
}

func (r *PassageRepository) ListTranslations(ctx context.Context, language string) ([]domain.TranslationInfo, error) {
	q := &query{}
	var preds []predicate
	if language = strings.TrimSpace(language); language != "" {
		preds = append(preds, eq("t.language_code", language))
	}
	where := q.where(preds...)

	rows, err := r.db.QueryContext(ctx, `
SELECT t.id, t.name, t.abbreviation, t.language_code, COALESCE(t.description, ''),
	COALESCE(t.is_original_language, false), COUNT(v.id)
FROM translations t
LEFT JOIN verses v ON v.translation_id = t.id
WHERE `+where+`
GROUP BY t.id
ORDER BY t.language_code, t.name
`, q.args...)
	if err != nil {
		return nil, fmt.Errorf("list translations: %w", err)
	}
	defer rows.Close()

	out := make([]domain.TranslationInfo, 0)
	for rows.Next() {
		var t domain.TranslationInfo
		if err := rows.Scan(&t.ID, &t.Name, &t.Abbrev, &t.LanguageCode, &t.Description, &t.IsOriginalLanguage, &t.VerseCount); err != nil {
			return nil, fmt.Errorf("scan translation info: %w", err)
		}
		t.LanguageName = domain.LanguageName(t.LanguageCode)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate translation info: %w", err)
	}
	return out, nil
}

func (r *PassageRepository) ListBooks(ctx context.Context, testament, genre string) ([]domain.BookInfo, error) {
	q := &query{}
	var preds []predicate
	if testament = strings.TrimSpace(testament); testament != "" {
		preds = append(preds, eq("b.testament", testament))
	}
	if genre = strings.TrimSpace(genre); genre != "" {
		preds = append(preds, expr("lower(b.genre) = ?", strings.ToLower(genre)))
	}
	where := q.where(preds...)

	rows, err := r.db.QueryContext(ctx, `
SELECT b.id, b.name, COALESCE(b.name_korean, ''), b.abbreviation, b.testament, COALESCE(b.genre, ''),
	b.book_number, COALESCE(b.total_chapters, 0),
	(SELECT COUNT(*) FROM verses v WHERE v.book_id = b.id AND v.translation_id = `+referenceTranslation+`)
FROM books b
WHERE `+where+`
ORDER BY b.book_number
`, q.args...)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()

	out := make([]domain.BookInfo, 0, 66)
	for rows.Next() {
		var b domain.BookInfo
		if err := rows.Scan(&b.ID, &b.Name, &b.NameKorean, &b.Abbrev, &b.Testament, &b.Genre,
			&b.BookNumber, &b.TotalChapters, &b.TotalVerses); err != nil {
			return nil, fmt.Errorf("scan book info: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate book info: %w", err)
	}
	return out, nil
}

// CorpusStats reads planner row estimates for the large tables so health
// checks never scan them.
func (r *PassageRepository) CorpusStats(ctx context.Context) (domain.CorpusStats, error) {
	var s domain.CorpusStats
	err := r.db.QueryRowContext(ctx, `
SELECT
	GREATEST(COALESCE((SELECT reltuples::bigint FROM pg_class WHERE oid = to_regclass('verses')), 0), 0),
	(SELECT COUNT(*) FROM translations),
	GREATEST(COALESCE((SELECT reltuples::bigint FROM pg_class WHERE oid = to_regclass('embeddings')), 0), 0)
`).Scan(&s.Verses, &s.Translations, &s.Embeddings)
	if err != nil {
		return s, fmt.Errorf("corpus stats: %w", err)
	}
	return s, nil
}

func (r *PassageRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

func upperAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, strings.ToUpper(v))
		}
	}
	return out
}
