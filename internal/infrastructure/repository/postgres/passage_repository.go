package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/calebyhan/bible-rag/internal/core/domain"
)

const (
	defaultProbes           = 20
	defaultTextSearchConfig = "simple"
)

type PassageOptions struct {
	// Probes is the ivfflat partition count scanned per vector query.
	Probes int
	// TextSearchConfig names the Postgres text search configuration.
	TextSearchConfig string
}

// PassageRepository reads verses, embeddings and enrichment tables.
type PassageRepository struct {
	db       *sql.DB
	probes   int
	tsConfig string
}

func NewPassageRepository(db *sql.DB, opts PassageOptions) *PassageRepository {
	if opts.Probes <= 0 {
		opts.Probes = defaultProbes
	}
	if strings.TrimSpace(opts.TextSearchConfig) == "" {
		opts.TextSearchConfig = defaultTextSearchConfig
	}
	return &PassageRepository{db: db, probes: opts.Probes, tsConfig: opts.TextSearchConfig}
}

const passageColumns = `
	v.id, v.translation_id, t.abbreviation, v.book_id, v.chapter, v.verse, v.text,
	b.name, COALESCE(b.name_korean, ''), b.abbreviation, b.testament, COALESCE(b.genre, '')`

func (r *PassageRepository) ResolveTranslations(ctx context.Context, abbrevs []string) ([]domain.Translation, error) {
	if len(abbrevs) == 0 {
		return nil, nil
	}
	upper := make([]string, len(abbrevs))
	for i, a := range abbrevs {
		upper[i] = strings.ToUpper(strings.TrimSpace(a))
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT id, abbreviation, name, language_code
FROM translations
WHERE upper(abbreviation) = ANY($1)
`, upper)
	if err != nil {
		return nil, fmt.Errorf("query translations: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Translation, 0, len(abbrevs))
	for rows.Next() {
		var t domain.Translation
		if err := rows.Scan(&t.ID, &t.Abbrev, &t.Name, &t.Language); err != nil {
			return nil, fmt.Errorf("scan translation: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate translations: %w", err)
	}

	// Keep the caller's order.
	slices.SortStableFunc(out, func(a, b domain.Translation) int {
		return slices.Index(upper, strings.ToUpper(a.Abbrev)) - slices.Index(upper, strings.ToUpper(b.Abbrev))
	})
	return out, nil
}

// HasVectors stops at the first embedding row instead of counting the table.
func (r *PassageRepository) HasVectors(ctx context.Context) (bool, error) {
	var ok bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM embeddings)`).Scan(&ok); err != nil {
		return false, fmt.Errorf("check embeddings: %w", err)
	}
	return ok, nil
}

// VectorSearch returns the best translation row per passage with cosine
// similarity above threshold, best first.
func (r *PassageRepository) VectorSearch(
	ctx context.Context,
	queryVector []float32,
	translationIDs []string,
	filters domain.SearchFilters,
	threshold float64,
	limit int,
) ([]domain.PassageRow, error) {
	if len(queryVector) == 0 || len(translationIDs) == 0 || limit <= 0 {
		return nil, nil
	}

	q := &query{}
	vec := q.bind(vectorLiteral(queryVector))
	where := q.where(append(passageFilters(translationIDs, filters),
		expr("1 - (e.vector <=> "+vec+"::vector) > ?", threshold))...)
	// Every translation of a passage may rank; over-fetch before collapsing.
	fetch := q.bind(limit * len(translationIDs))
	keep := q.bind(limit)

	sqlText := `
WITH nearest AS (
	SELECT e.verse_id, 1 - (e.vector <=> ` + vec + `::vector) AS similarity
	FROM embeddings e
	JOIN verses v ON v.id = e.verse_id
	JOIN books b ON b.id = v.book_id
	WHERE ` + where + `
	ORDER BY e.vector <=> ` + vec + `::vector
	LIMIT ` + fetch + `
), best AS (
	SELECT DISTINCT ON (v.book_id, v.chapter, v.verse)` + passageColumns + `, n.similarity
	FROM nearest n
	JOIN verses v ON v.id = n.verse_id
	JOIN books b ON b.id = v.book_id
	JOIN translations t ON t.id = v.translation_id
	ORDER BY v.book_id, v.chapter, v.verse, n.similarity DESC
)
SELECT * FROM best ORDER BY similarity DESC LIMIT ` + keep

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin vector search tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// SET cannot take bind parameters; probes is an int.
	if _, err := tx.ExecContext(ctx, "SET LOCAL ivfflat.probes = "+strconv.Itoa(r.probes)); err != nil {
		return nil, fmt.Errorf("set ivfflat probes: %w", err)
	}
	rows, err := tx.QueryContext(ctx, sqlText, q.args...)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	out, err := scanPassageRows(rows, true)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit vector search tx: %w", err)
	}
	return out, nil
}

// FullTextSearch ranks verses by ts_rank. Terms are OR-ed so one matching
// word is enough to qualify.
func (r *PassageRepository) FullTextSearch(
	ctx context.Context,
	queryText string,
	translationIDs []string,
	filters domain.SearchFilters,
	limit int,
) ([]domain.PassageRow, error) {
	terms := tsTerms(queryText)
	if len(terms) == 0 || len(translationIDs) == 0 || limit <= 0 {
		return nil, nil
	}

	q := &query{}
	cfg := q.bind(r.tsConfig)
	tsq := "websearch_to_tsquery(" + cfg + "::regconfig, " + q.bind(strings.Join(terms, " or ")) + ")"
	document := "to_tsvector(" + cfg + "::regconfig, v.text)"
	where := q.where(append(passageFilters(translationIDs, filters), expr(document+" @@ "+tsq))...)

	rows, err := r.db.QueryContext(ctx, `
SELECT`+passageColumns+`, ts_rank(`+document+`, `+tsq+`) AS rank
FROM verses v
JOIN books b ON b.id = v.book_id
JOIN translations t ON t.id = v.translation_id
WHERE `+where+`
ORDER BY rank DESC, b.book_number, v.chapter, v.verse
LIMIT `+q.bind(limit), q.args...)
	if err != nil {
		return nil, fmt.Errorf("full-text search: %w", err)
	}
	out, err := scanPassageRows(rows, true)
	if err != nil {
		return nil, fmt.Errorf("full-text search: %w", err)
	}
	return out, nil
}

// tsTerms splits text into plain words for websearch_to_tsquery. Quotes,
// leading minus signs and other punctuation are separators here, so user
// text can never turn into phrase or negation syntax. A literal "or" is
// dropped because it would read as the operator.
func tsTerms(text string) []string {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsMark(r)
	})
	return slices.DeleteFunc(words, func(w string) bool {
		return strings.EqualFold(w, "or")
	})
}

// SubstringSearch matches verses containing the query verbatim, in canonical order.
func (r *PassageRepository) SubstringSearch(
	ctx context.Context,
	queryText string,
	translationIDs []string,
	filters domain.SearchFilters,
	limit int,
) ([]domain.PassageRow, error) {
	queryText = strings.TrimSpace(queryText)
	if queryText == "" || len(translationIDs) == 0 || limit <= 0 {
		return nil, nil
	}

	q := &query{}
	where := q.where(append(passageFilters(translationIDs, filters),
		expr(`v.text ILIKE '%' || ? || '%' ESCAPE '\'`, escapeLike(queryText)))...)

	rows, err := r.db.QueryContext(ctx, `
SELECT`+passageColumns+`
FROM verses v
JOIN books b ON b.id = v.book_id
JOIN translations t ON t.id = v.translation_id
WHERE `+where+`
ORDER BY b.book_number, v.chapter, v.verse
LIMIT `+q.bind(limit), q.args...)
	if err != nil {
		return nil, fmt.Errorf("substring search: %w", err)
	}
	out, err := scanPassageRows(rows, false)
	if err != nil {
		return nil, fmt.Errorf("substring search: %w", err)
	}
	return out, nil
}

func (r *PassageRepository) FetchSiblingTranslations(ctx context.Context, ref domain.PassageRef, translationIDs []string) ([]domain.PassageRow, error) {
	if len(translationIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT`+passageColumns+`
FROM verses v
JOIN books b ON b.id = v.book_id
JOIN translations t ON t.id = v.translation_id
WHERE v.book_id = $1 AND v.chapter = $2 AND v.verse = $3 AND v.translation_id = ANY($4)
`, ref.BookID, ref.Chapter, ref.Verse, translationIDs)
	if err != nil {
		return nil, fmt.Errorf("fetch sibling translations: %w", err)
	}
	out, err := scanPassageRows(rows, false)
	if err != nil {
		return nil, fmt.Errorf("fetch sibling translations: %w", err)
	}
	return out, nil
}

func (r *PassageRepository) FetchCrossReferences(ctx context.Context, passageID string, limit int) ([]domain.CrossReference, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT b.name, COALESCE(b.name_korean, ''), v.chapter, v.verse, cr.relationship_type, COALESCE(cr.confidence, 0)
FROM cross_references cr
JOIN verses v ON v.id = cr.related_verse_id
JOIN books b ON b.id = v.book_id
WHERE cr.verse_id = $1
ORDER BY cr.confidence DESC NULLS LAST
LIMIT $2
`, passageID, limit)
	if err != nil {
		return nil, fmt.Errorf("query cross references: %w", err)
	}
	defer rows.Close()

	out := make([]domain.CrossReference, 0, limit)
	for rows.Next() {
		var ref domain.CrossReference
		if err := rows.Scan(&ref.Book, &ref.BookKorean, &ref.Chapter, &ref.Verse, &ref.Relationship, &ref.Confidence); err != nil {
			return nil, fmt.Errorf("scan cross reference: %w", err)
		}
		out = append(out, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cross references: %w", err)
	}
	return out, nil
}

// FetchOriginalWords returns nil when the verse has no original-language data.
func (r *PassageRepository) FetchOriginalWords(ctx context.Context, passageID string) (*domain.OriginalLanguage, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT word, language, COALESCE(transliteration, ''), COALESCE(strongs_number, ''), COALESCE(morphology, ''), COALESCE(definition, '')
FROM original_words
WHERE verse_id = $1
ORDER BY word_order NULLS LAST
`, passageID)
	if err != nil {
		return nil, fmt.Errorf("query original words: %w", err)
	}
	defer rows.Close()

	var out *domain.OriginalLanguage
	for rows.Next() {
		var w domain.OriginalWord
		var language string
		if err := rows.Scan(&w.Word, &language, &w.Transliteration, &w.Strongs, &w.Morphology, &w.Definition); err != nil {
			return nil, fmt.Errorf("scan original word: %w", err)
		}
		if out == nil {
			out = &domain.OriginalLanguage{Language: language}
		}
		out.Words = append(out.Words, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate original words: %w", err)
	}
	return out, nil
}

func scanPassageRows(rows *sql.Rows, withScore bool) ([]domain.PassageRow, error) {
	defer rows.Close()

	out := make([]domain.PassageRow, 0)
	for rows.Next() {
		var p domain.PassageRow
		dest := []any{
			&p.VerseID, &p.TranslationID, &p.TranslationAbbrev, &p.Ref.BookID, &p.Ref.Chapter, &p.Ref.Verse, &p.Text,
			&p.Book.Name, &p.Book.NameKorean, &p.Book.Abbrev, &p.Book.Testament, &p.Book.Genre,
		}
		if withScore {
			dest = append(dest, &p.Score)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan passage: %w", err)
		}
		p.Book.ID = p.Ref.BookID
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate passages: %w", err)
	}
	return out, nil
}

func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.Grow(len(v) * 10)
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(x), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
