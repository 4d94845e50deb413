package ollama

import "fmt"

func buildExpansionPrompt(query string, max int) string {
	const maxQuery = 500
	if len(query) > maxQuery {
		query = query[:maxQuery]
	}

	return fmt.Sprintf(`You rewrite Bible search queries.
Return strict JSON object {"queries": [..]} with at most %d alternative phrasings of the query.
Use synonyms, related biblical themes and plain-language paraphrases. Keep each under 12 words.
Do not repeat the original query. No markdown, no extra keys.

Query:
%s`, max, query)
}
