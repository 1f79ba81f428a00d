package kb

import "sort"

// Rank filters scored chunks against the similarity threshold, falls back to
// the single best chunk when nothing clears it, and truncates to the context
// window. Ordering is descending score with ascending chunk ID on ties, so
// identical input always produces identical output.
func Rank(chunks []ScoredChunk, minSimilarity float32, maxContext int) []ScoredChunk {
	if len(chunks) == 0 {
		return nil
	}

	ordered := make([]ScoredChunk, len(chunks))
	copy(ordered, chunks)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Score != ordered[j].Score {
			return ordered[i].Score > ordered[j].Score
		}
		return ordered[i].ID < ordered[j].ID
	})

	kept := make([]ScoredChunk, 0, len(ordered))
	for _, c := range ordered {
		if c.Score >= minSimilarity {
			kept = append(kept, c)
		}
	}

	// Graceful degradation: a weak best match beats a hard "no answer".
	if len(kept) == 0 {
		kept = ordered[:1]
	}

	if maxContext > 0 && len(kept) > maxContext {
		kept = kept[:maxContext]
	}
	return kept
}
