package domain

import (
	"fmt"
	"strings"
	"time"
)

const snippetRunes = 100

// VerseLookup addresses one verse by book name, Korean name or abbreviation.
// Empty Translations means every translation.
type VerseLookup struct {
	Book             string
	Chapter          int
	Verse            int
	Translations     []string
	IncludeOriginal  bool
	IncludeCrossRefs bool
}

func (l VerseLookup) Validate() error {
	if strings.TrimSpace(l.Book) == "" {
		return fmt.Errorf("%w: book is required", ErrInvalidInput)
	}
	if l.Chapter < 1 || l.Verse < 1 {
		return fmt.Errorf("%w: chapter and verse must be positive", ErrInvalidInput)
	}
	return nil
}

type ChapterLookup struct {
	Book            string
	Chapter         int
	Translations    []string
	IncludeOriginal bool
}

func (l ChapterLookup) Validate() error {
	if strings.TrimSpace(l.Book) == "" {
		return fmt.Errorf("%w: book is required", ErrInvalidInput)
	}
	if l.Chapter < 1 {
		return fmt.Errorf("%w: chapter must be positive", ErrInvalidInput)
	}
	return nil
}

type ContextVerse struct {
	Chapter int    `json:"chapter"`
	Verse   int    `json:"verse"`
	Text    string `json:"text"`
}

// VerseContext holds the neighbouring verses in the same chapter.
type VerseContext struct {
	Previous *ContextVerse `json:"previous"`
	Next     *ContextVerse `json:"next"`
}

type VerseDetail struct {
	Reference       Reference         `json:"reference"`
	Translations    map[string]string `json:"translations"`
	Original        *OriginalLanguage `json:"original,omitempty"`
	CrossReferences []CrossReference  `json:"cross_references,omitempty"`
	Context         VerseContext      `json:"context"`
}

type ChapterReference struct {
	Book       string `json:"book"`
	BookKorean string `json:"book_korean,omitempty"`
	Chapter    int    `json:"chapter"`
	Testament  string `json:"testament"`
}

type ChapterVerse struct {
	VerseID      string            `json:"verse_id"`
	Verse        int               `json:"verse"`
	Translations map[string]string `json:"translations"`
	Original     *OriginalLanguage `json:"original,omitempty"`
}

type ChapterDetail struct {
	Reference ChapterReference `json:"reference"`
	Verses    []ChapterVerse   `json:"verses"`
}

// Snippet shortens text to 100 runes plus an ellipsis.
func Snippet(text string) string {
	runes := []rune(text)
	if len(runes) <= snippetRunes {
		return text
	}
	return string(runes[:snippetRunes]) + "..."
}

var languageNames = map[string]string{
	"en": "English",
	"ko": "한국어",
	"he": "Hebrew",
	"gr": "Greek",
}

// LanguageName falls back to the code itself for unknown languages.
func LanguageName(code string) string {
	if name, ok := languageNames[code]; ok {
		return name
	}
	return code
}

type TranslationInfo struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Abbrev             string `json:"abbreviation"`
	LanguageCode       string `json:"language_code"`
	LanguageName       string `json:"language_name"`
	Description        string `json:"description,omitempty"`
	IsOriginalLanguage bool   `json:"is_original_language"`
	VerseCount         int64  `json:"verse_count"`
}

// BookInfo counts verses in the reference translation only.
type BookInfo struct {
	Book
	BookNumber    int   `json:"book_number"`
	TotalChapters int   `json:"total_chapters"`
	TotalVerses   int64 `json:"total_verses"`
}

// CorpusStats may be planner estimates rather than exact counts.
type CorpusStats struct {
	Verses       int64 `json:"total_verses"`
	Translations int64 `json:"total_translations"`
	Embeddings   int64 `json:"total_embeddings"`
}

type CacheStats struct {
	Backend string `json:"backend"`
	Entries int64  `json:"entries"`
	Hits    int64  `json:"hits"`
}

const (
	HealthHealthy   = "healthy"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"
)

type HealthReport struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Services  map[string]string `json:"services"`
	Stats     map[string]int64  `json:"stats,omitempty"`
	Errors    []string          `json:"errors,omitempty"`
}
