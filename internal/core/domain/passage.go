package domain

import "fmt"

// PassageRef identifies a verse independently of translation. All ranking
// signals key on it.
type PassageRef struct {
	BookID  string `json:"book_id"`
	Chapter int    `json:"chapter"`
	Verse   int    `json:"verse"`
}

func (r PassageRef) Valid() bool {
	return r.BookID != "" && r.Chapter >= 1 && r.Verse >= 1
}

func (r PassageRef) String() string {
	return fmt.Sprintf("%s %d:%d", r.BookID, r.Chapter, r.Verse)
}

type Book struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	NameKorean string `json:"name_korean,omitempty"`
	Abbrev     string `json:"abbreviation"`
	Testament  string `json:"testament"`
	Genre      string `json:"genre,omitempty"`
}

type Translation struct {
	ID       string `json:"id"`
	Abbrev   string `json:"abbreviation"`
	Name     string `json:"name"`
	Language string `json:"language_code"`
}

// PassageRow is one translation's text of a passage as returned by a store.
// Score is the native score of whichever query produced it.
type PassageRow struct {
	VerseID           string
	TranslationID     string
	TranslationAbbrev string
	Ref               PassageRef
	Book              Book
	Text              string
	Score             float64
}

// Candidate is a single hit produced by one retrieval signal.
type Candidate struct {
	Ref   PassageRef
	Score float64
	Row   PassageRow
}

// RankedList is ordered by the producing signal's native score, descending.
type RankedList struct {
	Signal     string
	Candidates []Candidate
}

// FusedPassage is one entry of the fused ranking. Row is the representative
// row from the first list that surfaced the passage.
type FusedPassage struct {
	Ref   PassageRef
	Score float64
	Row   PassageRow
}

type CrossReference struct {
	Book         string  `json:"book"`
	BookKorean   string  `json:"book_korean,omitempty"`
	Chapter      int     `json:"chapter"`
	Verse        int     `json:"verse"`
	Relationship string  `json:"relationship"`
	Confidence   float64 `json:"confidence"`
}

type OriginalWord struct {
	Word            string `json:"word"`
	Transliteration string `json:"transliteration,omitempty"`
	Strongs         string `json:"strongs,omitempty"`
	Morphology      string `json:"morphology,omitempty"`
	Definition      string `json:"definition,omitempty"`
}

type OriginalLanguage struct {
	Language string         `json:"language"`
	Words    []OriginalWord `json:"words"`
}
