package notes

import (
	"sort"
	"strings"
)

// DisplayQuery gathers every input the displayed note sequence depends on.
type DisplayQuery struct {
	View           View
	Query          string
	Mode           SearchMode
	Results        []SearchResult
	SearchInFlight bool
}

// Partition returns the notes belonging to the view, in store order.
func Partition(notes []Note, view View) []Note {
	partition := make([]Note, 0, len(notes))
	for _, note := range notes {
		if view.Contains(note) {
			partition = append(partition, note)
		}
	}
	return partition
}

// Display derives the ordered sequence of notes to show for the query.
func Display(notes []Note, query DisplayQuery) []Note {
	partition := Partition(notes, query.View)

	trimmed := strings.TrimSpace(query.Query)
	if trimmed == "" {
		return partition
	}

	if query.Mode != SearchModeSemantic {
		return keywordMatches(partition, query.Query)
	}
	return semanticMatches(partition, query.Results, query.SearchInFlight)
}

// keywordMatches keeps notes whose title, content or any tag contains the query, ignoring case.
func keywordMatches(partition []Note, query string) []Note {
	needle := strings.ToLower(query)
	matches := make([]Note, 0, len(partition))
	for _, note := range partition {
		if matchesKeyword(note, needle) {
			matches = append(matches, note)
		}
	}
	return matches
}

func matchesKeyword(note Note, needle string) bool {
	if strings.Contains(strings.ToLower(note.Title), needle) {
		return true
	}
	if strings.Contains(strings.ToLower(note.Content), needle) {
		return true
	}
	for _, tag := range note.Tags {
		if strings.Contains(strings.ToLower(tag), needle) {
			return true
		}
	}
	return false
}

func semanticMatches(partition []Note, results []SearchResult, inFlight bool) []Note {
	if len(results) == 0 && !inFlight {
		return []Note{}
	}

	scores := make(map[NoteID]float64, len(results))
	for _, result := range results {
		if existing, ok := scores[result.NoteID]; ok && existing >= result.RelevanceScore {
			continue
		}
		scores[result.NoteID] = result.RelevanceScore
	}

	ranked := make([]Note, 0, len(results))
	for _, note := range partition {
		if _, ok := scores[note.ID]; ok {
			ranked = append(ranked, note)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return scores[ranked[i].ID] > scores[ranked[j].ID]
	})
	return ranked
}

// Reasons maps note identifiers to the semantic relevance explanation.
func Reasons(results []SearchResult) map[NoteID]string {
	reasons := make(map[NoteID]string, len(results))
	for _, result := range results {
		if _, ok := reasons[result.NoteID]; ok {
			continue
		}
		reasons[result.NoteID] = result.Reason
	}
	return reasons
}

// CountByView reports how many notes fall into each view partition.
func CountByView(notes []Note) map[View]int {
	counts := map[View]int{ViewActive: 0, ViewArchived: 0, ViewTrash: 0}
	for _, note := range notes {
		switch note.State() {
		case StateTrashed:
			counts[ViewTrash]++
		case StateArchived:
			counts[ViewArchived]++
		default:
			counts[ViewActive]++
		}
	}
	return counts
}
