// Package ai derives tags, summaries and semantic search rankings from note text
// through a structured-output LLM session.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sort"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gollem/llm/gemini"

	"github.com/MarcoPoloResearchLab/lumina/internal/notes"
)

const (
	// RelevanceThreshold is the exclusive lower bound a semantic match must exceed.
	RelevanceThreshold = 0.15
	snippetLimit       = 500
)

// ErrMalformedResponse indicates that the model output did not match the requested schema.
var ErrMalformedResponse = errors.New("ai: malformed model response")

// Client implements note enrichment and semantic search on top of a gollem LLM client.
type Client struct {
	llmClient gollem.LLMClient
}

// New wraps an LLM client.
func New(llmClient gollem.LLMClient) (*Client, error) {
	if llmClient == nil {
		return nil, goerr.New("LLM client is required")
	}
	return &Client{llmClient: llmClient}, nil
}

// GeminiConfig selects the Vertex AI project hosting the model.
type GeminiConfig struct {
	ProjectID string
	Location  string
	Model     string
}

// NewGemini builds a Client backed by Gemini. An empty project disables AI and returns nil.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Client, error) {
	if cfg.ProjectID == "" {
		return nil, nil
	}
	var options []gemini.Option
	if cfg.Model != "" {
		options = append(options, gemini.WithModel(cfg.Model))
	}
	llmClient, err := gemini.New(ctx, cfg.ProjectID, cfg.Location, options...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create Gemini client",
			goerr.V("project_id", cfg.ProjectID),
			goerr.V("location", cfg.Location))
	}
	return New(llmClient)
}

// GenerateTags suggests a handful of short tags for the note.
func (c *Client) GenerateTags(ctx context.Context, title, content string) ([]string, error) {
	text, err := c.generate(ctx, tagsSchema(), tagsPrompt(title, content))
	if err != nil {
		return nil, err
	}

	var tags []string
	if err := json.Unmarshal([]byte(text), &tags); err != nil {
		return nil, goerr.Wrap(ErrMalformedResponse, "failed to parse tags", goerr.V("response", text), goerr.V("cause", err.Error()))
	}
	return tags, nil
}

// GenerateSummary produces a short single-paragraph summary.
func (c *Client) GenerateSummary(ctx context.Context, content string) (string, error) {
	text, err := c.generate(ctx, summarySchema(), summaryPrompt(content))
	if err != nil {
		return "", err
	}

	var response summaryResponse
	if err := json.Unmarshal([]byte(text), &response); err != nil {
		return "", goerr.Wrap(ErrMalformedResponse, "failed to parse summary", goerr.V("response", text), goerr.V("cause", err.Error()))
	}
	return strings.TrimSpace(response.Summary), nil
}

// SemanticSearch ranks the notes by relevance to the query. Results at or below the
// threshold are dropped and the remainder is ordered by descending score.
func (c *Client) SemanticSearch(ctx context.Context, query string, candidates []notes.Note) ([]notes.SearchResult, error) {
	if len(candidates) == 0 {
		return []notes.SearchResult{}, nil
	}

	text, err := c.generate(ctx, searchSchema(), searchPrompt(query, candidates))
	if err != nil {
		return nil, err
	}

	var raw []searchResponseItem
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, goerr.Wrap(ErrMalformedResponse, "failed to parse search results", goerr.V("response", text), goerr.V("cause", err.Error()))
	}
	return rankResults(raw, candidates), nil
}

func (c *Client) generate(ctx context.Context, schema *gollem.Parameter, prompt string) (string, error) {
	session, err := c.llmClient.NewSession(ctx,
		gollem.WithSessionContentType(gollem.ContentTypeJSON),
		gollem.WithSessionResponseSchema(schema),
		gollem.WithSessionSystemPrompt(systemPrompt),
	)
	if err != nil {
		return "", goerr.Wrap(err, "failed to create LLM session")
	}

	resp, err := session.GenerateContent(ctx, gollem.Text(prompt))
	if err != nil {
		return "", goerr.Wrap(err, "failed to generate content from LLM")
	}
	if resp == nil || len(resp.Texts) == 0 {
		return "", goerr.Wrap(ErrMalformedResponse, "empty LLM response")
	}
	return strings.Join(resp.Texts, ""), nil
}

type summaryResponse struct {
	Summary string `json:"summary"`
}

type searchResponseItem struct {
	NoteID         string   `json:"noteId"`
	RelevanceScore *float64 `json:"relevanceScore"`
	Reason         string   `json:"reason"`
}

// rankResults keeps items that reference a candidate note with a score above the
// threshold, clamps scores to [0, 1], and sorts by descending score.
func rankResults(raw []searchResponseItem, candidates []notes.Note) []notes.SearchResult {
	known := make(map[notes.NoteID]struct{}, len(candidates))
	for _, note := range candidates {
		known[note.ID] = struct{}{}
	}

	seen := make(map[notes.NoteID]struct{}, len(raw))
	results := make([]notes.SearchResult, 0, len(raw))
	for _, item := range raw {
		id := notes.NoteID(strings.TrimSpace(item.NoteID))
		if _, ok := known[id]; !ok {
			continue
		}
		if _, duplicate := seen[id]; duplicate {
			continue
		}
		if item.RelevanceScore == nil || math.IsNaN(*item.RelevanceScore) {
			continue
		}
		score := math.Min(math.Max(*item.RelevanceScore, 0), 1)
		if score <= RelevanceThreshold {
			continue
		}
		seen[id] = struct{}{}
		results = append(results, notes.SearchResult{
			NoteID:         id,
			RelevanceScore: score,
			Reason:         strings.TrimSpace(item.Reason),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].RelevanceScore > results[j].RelevanceScore
	})
	return results
}
