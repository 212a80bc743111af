package ai

import (
	"fmt"
	"strings"

	"github.com/m-mizutani/gollem"

	"github.com/MarcoPoloResearchLab/lumina/internal/notes"
)

const systemPrompt = "You are the assistant of a personal note-taking application. Answer strictly in the requested JSON format."

func tagsPrompt(title, content string) string {
	return fmt.Sprintf("Suggest 3-5 concise tags for the following note. Return only a JSON array of strings.\n\nTitle: %s\nContent: %s", title, content)
}

func summaryPrompt(content string) string {
	return fmt.Sprintf("Summarize the following note into a single readable paragraph (max 3 sentences).\n\nNote: %s", content)
}

func searchPrompt(query string, candidates []notes.Note) string {
	var sb strings.Builder
	sb.WriteString("You are a semantic search engine for a personal note-taking app.\n")
	fmt.Fprintf(&sb, "User query: %q\n\n", query)
	sb.WriteString("Rate how relevant each note is to the meaning of the query, not just its keywords.\n")
	sb.WriteString("Return a JSON array of objects with noteId, relevanceScore (0.0 to 1.0) and a one-sentence reason.\n\n")
	sb.WriteString("Notes:\n")
	for _, note := range candidates {
		fmt.Fprintf(&sb, "- id: %s\n  title: %s\n  tags: %s\n  content: %s\n", note.ID, note.Title, strings.Join(note.Tags, ", "), snippet(note.Content))
	}
	return sb.String()
}

// snippet caps note content sent to the model.
func snippet(content string) string {
	runes := []rune(content)
	if len(runes) <= snippetLimit {
		return content
	}
	return string(runes[:snippetLimit])
}

func tagsSchema() *gollem.Parameter {
	return &gollem.Parameter{
		Title:       "NoteTags",
		Description: "Concise tags describing the note",
		Type:        gollem.TypeArray,
		Items:       &gollem.Parameter{Type: gollem.TypeString},
	}
}

func summarySchema() *gollem.Parameter {
	return &gollem.Parameter{
		Title: "NoteSummary",
		Type:  gollem.TypeObject,
		Properties: map[string]*gollem.Parameter{
			"summary": {
				Type:        gollem.TypeString,
				Description: "A single readable paragraph of at most three sentences",
				Required:    true,
			},
		},
	}
}

func searchSchema() *gollem.Parameter {
	return &gollem.Parameter{
		Title:       "SemanticSearchResults",
		Description: "Relevance of each note to the query",
		Type:        gollem.TypeArray,
		Items: &gollem.Parameter{
			Type: gollem.TypeObject,
			Properties: map[string]*gollem.Parameter{
				"noteId": {
					Type:        gollem.TypeString,
					Description: "Identifier of the note",
					Required:    true,
				},
				"relevanceScore": {
					Type:        gollem.TypeNumber,
					Description: "Relevance between 0.0 and 1.0",
					Required:    true,
				},
				"reason": {
					Type:        gollem.TypeString,
					Description: "Why the note matches the query",
					Required:    true,
				},
			},
		},
	}
}
