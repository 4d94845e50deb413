package usecase

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strconv"
	"strings"

	"github.com/calebyhan/bible-rag/internal/core/domain"
)

const fingerprintPrefix = "search:"

// Fingerprint builds the cache key for a request. Query case and surrounding
// whitespace are ignored, as is the order of translations, books and expansions.
func Fingerprint(req domain.SearchRequest) string {
	query := strings.Join(strings.Fields(strings.ToLower(req.Query)), " ")

	translations := make([]string, 0, len(req.Translations))
	for _, t := range req.Translations {
		if t = strings.ToUpper(strings.TrimSpace(t)); t != "" {
			translations = append(translations, t)
		}
	}
	slices.Sort(translations)
	translations = slices.Compact(translations)

	pairs := req.Filters.Pairs()
	pairs = append(pairs,
		"max_results="+strconv.Itoa(req.MaxResults),
		"original="+strconv.FormatBool(req.IncludeOriginal),
		"cross_refs="+strconv.FormatBool(req.IncludeCrossRefs),
	)
	for _, exp := range normalizeExpansions(req.Query, req.ExpandedQueries, 0) {
		pairs = append(pairs, "expansion="+strings.ToLower(exp))
	}
	slices.Sort(pairs)

	h := sha256.New()
	h.Write([]byte(query))
	h.Write([]byte{'|'})
	h.Write([]byte(strings.Join(translations, ",")))
	h.Write([]byte{'|'})
	h.Write([]byte(strings.Join(pairs, "&")))
	return fingerprintPrefix + hex.EncodeToString(h.Sum(nil))
}
