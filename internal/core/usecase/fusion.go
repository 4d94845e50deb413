package usecase

import (
	"sort"

	"github.com/calebyhan/bible-rag/internal/core/domain"
)

const defaultRRFK = 60

// FuseRRF merges ranked lists with Reciprocal Rank Fusion. Each candidate at
// zero-based rank r adds 1/(r+k) to its passage. Ties keep first-seen order.
// A single list passes through with its native scores.
func FuseRRF(lists []domain.RankedList, k int) []domain.FusedPassage {
	if k <= 0 {
		k = defaultRRFK
	}

	nonEmpty := make([]domain.RankedList, 0, len(lists))
	for _, list := range lists {
		if len(list.Candidates) > 0 {
			nonEmpty = append(nonEmpty, list)
		}
	}
	switch len(nonEmpty) {
	case 0:
		return []domain.FusedPassage{}
	case 1:
		return passThrough(nonEmpty[0])
	}

	index := make(map[domain.PassageRef]int)
	out := make([]domain.FusedPassage, 0, len(nonEmpty[0].Candidates)*len(nonEmpty))
	for _, list := range nonEmpty {
		seen := make(map[domain.PassageRef]struct{}, len(list.Candidates))
		rank := 0
		for _, c := range list.Candidates {
			if _, dup := seen[c.Ref]; dup {
				continue
			}
			seen[c.Ref] = struct{}{}

			contribution := 1.0 / float64(rank+k)
			rank++
			if pos, ok := index[c.Ref]; ok {
				out[pos].Score += contribution
				continue
			}
			index[c.Ref] = len(out)
			out = append(out, domain.FusedPassage{Ref: c.Ref, Score: contribution, Row: c.Row})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

func passThrough(list domain.RankedList) []domain.FusedPassage {
	out := make([]domain.FusedPassage, 0, len(list.Candidates))
	seen := make(map[domain.PassageRef]struct{}, len(list.Candidates))
	for _, c := range list.Candidates {
		if _, dup := seen[c.Ref]; dup {
			continue
		}
		seen[c.Ref] = struct{}{}
		out = append(out, domain.FusedPassage{Ref: c.Ref, Score: c.Score, Row: c.Row})
	}
	return out
}

func trimFused(fused []domain.FusedPassage, limit int) []domain.FusedPassage {
	if limit <= 0 || len(fused) <= limit {
		return fused
	}
	return fused[:limit]
}

// rankRows collapses store rows into a ranked list with one candidate per
// passage. Rows must already be ordered best first.
func rankRows(signal string, rows []domain.PassageRow) domain.RankedList {
	list := domain.RankedList{Signal: signal, Candidates: make([]domain.Candidate, 0, len(rows))}
	seen := make(map[domain.PassageRef]struct{}, len(rows))
	for _, row := range rows {
		if !row.Ref.Valid() {
			continue
		}
		if _, dup := seen[row.Ref]; dup {
			continue
		}
		seen[row.Ref] = struct{}{}
		list.Candidates = append(list.Candidates, domain.Candidate{Ref: row.Ref, Score: row.Score, Row: row})
	}
	return list
}
