// Package neo4j reads verse cross-references from a graph of
// (:Verse)-[:REFERENCES]->(:Verse) edges.
package neo4j

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/calebyhan/bible-rag/internal/core/domain"
)

type Config struct {
	URI      string
	Username string
	Password string
	Database string
}

type CrossRefStore struct {
	driver   neo4j.DriverWithContext
	database string
}

func New(ctx context.Context, cfg Config) (*CrossRefStore, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verify neo4j connectivity: %w", err)
	}
	return &CrossRefStore{driver: driver, database: cfg.Database}, nil
}

func (s *CrossRefStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

const crossRefQuery = `
MATCH (:Verse {id: $verseId})-[r:REFERENCES]->(t:Verse)-[:IN_BOOK]->(b:Book)
RETURN b.name AS book, coalesce(b.name_korean, '') AS book_korean,
       t.chapter AS chapter, t.verse AS verse,
       coalesce(r.relationship, 'related') AS relationship,
       coalesce(r.confidence, 0.0) AS confidence
ORDER BY confidence DESC
LIMIT $limit`

func (s *CrossRefStore) FetchCrossReferences(ctx context.Context, passageID string, limit int) ([]domain.CrossReference, error) {
	if limit <= 0 {
		return nil, nil
	}
	opts := []neo4j.ExecuteQueryConfigurationOption{neo4j.ExecuteQueryWithReadersRouting()}
	if s.database != "" {
		opts = append(opts, neo4j.ExecuteQueryWithDatabase(s.database))
	}
	result, err := neo4j.ExecuteQuery(ctx, s.driver, crossRefQuery,
		map[string]any{"verseId": passageID, "limit": int64(limit)},
		neo4j.EagerResultTransformer, opts...)
	if err != nil {
		return nil, fmt.Errorf("fetch cross references: %w", err)
	}

	out := make([]domain.CrossReference, 0, len(result.Records))
	for _, record := range result.Records {
		ref, err := crossRefFromRecord(record)
		if err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, nil
}

func crossRefFromRecord(record *neo4j.Record) (domain.CrossReference, error) {
	book, _, err := neo4j.GetRecordValue[string](record, "book")
	if err != nil {
		return domain.CrossReference{}, fmt.Errorf("cross reference book: %w", err)
	}
	bookKorean, _, err := neo4j.GetRecordValue[string](record, "book_korean")
	if err != nil {
		return domain.CrossReference{}, fmt.Errorf("cross reference book_korean: %w", err)
	}
	chapter, _, err := neo4j.GetRecordValue[int64](record, "chapter")
	if err != nil {
		return domain.CrossReference{}, fmt.Errorf("cross reference chapter: %w", err)
	}
	verse, _, err := neo4j.GetRecordValue[int64](record, "verse")
	if err != nil {
		return domain.CrossReference{}, fmt.Errorf("cross reference verse: %w", err)
	}
	relationship, _, err := neo4j.GetRecordValue[string](record, "relationship")
	if err != nil {
		return domain.CrossReference{}, fmt.Errorf("cross reference relationship: %w", err)
	}
	confidence, _, err := neo4j.GetRecordValue[float64](record, "confidence")
	if err != nil {
		return domain.CrossReference{}, fmt.Errorf("cross reference confidence: %w", err)
	}
	return domain.CrossReference{
		Book:         book,
		BookKorean:   bookKorean,
		Chapter:      int(chapter),
		Verse:        int(verse),
		Relationship: relationship,
		Confidence:   confidence,
	}, nil
}
