package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Query selects knowledge-base passages for grounding.
type Query struct {
	Namespace string
	Text      string
	DocName   string
	Limit     int
}

// Passage is one page of an indexed document.
type Passage struct {
	ID      string
	DocName string
	PageNum int
	Text    string
	Score   float32
}

// KnowledgeBase is queried, never written, by this service.
type KnowledgeBase interface {
	Search(ctx context.Context, q Query) ([]Passage, error)
}

// Page payload structure
type QdrantPage struct {
	Username string `json:"username"`
	Text     string `json:"text"`
	PageNum  int    `json:"page_num"`
	DocName  string `json:"doc_name,omitempty"`
}

// pointID accepts both UUID and integer point ids.
type pointID string

func (id *pointID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*id = pointID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("point id: %w", err)
	}
	*id = pointID(n.String())
	return nil
}

// Search request structure
type SearchRequest struct {
	Vector      []float32   `json:"vector"`
	Filter      interface{} `json:"filter,omitempty"`
	Limit       int         `json:"limit"`
	WithPayload bool        `json:"with_payload,omitempty"`
}

type SearchResponse struct {
	Result []SearchResult `json:"result"`
}

type SearchResult struct {
	ID      pointID    `json:"id"`
	Score   float32    `json:"score"`
	Payload QdrantPage `json:"payload"`
}

type qdrantKnowledgeBase struct {
	url        string
	apiKey     string
	collection string
	embedder   Embedder
	http       *http.Client
	log        *Logger
}

func newQdrantKnowledgeBase(url, apiKey, collection string, embedder Embedder, log *Logger) *qdrantKnowledgeBase {
	if collection == "" {
		collection = "pages"
	}
	if log == nil {
		log = nopLogger()
	}
	return &qdrantKnowledgeBase{
		url:        strings.TrimRight(url, "/"),
		apiKey:     apiKey,
		collection: collection,
		embedder:   embedder,
		http:       &http.Client{Timeout: 30 * time.Second},
		log:        log,
	}
}

// Search runs a keyword scroll and a semantic search and merges them. An
// exact keyword hit short-circuits the semantic search.
func (kb *qdrantKnowledgeBase) Search(ctx context.Context, q Query) ([]Passage, error) {
	if q.Limit <= 0 {
		q.Limit = 5
	}
	if strings.TrimSpace(q.Text) == "" {
		return nil, fmt.Errorf("knowledge base query is empty")
	}
	log := kb.log.With("namespace", q.Namespace, "doc_name", q.DocName)

	keywordResults, keywordErr := kb.searchKeyword(ctx, q)
	if keywordErr != nil {
		log.Warn("keyword search failed", "error", keywordErr)
	}

	queryLower := strings.ToLower(q.Text)
	for _, r := range keywordResults {
		if strings.Contains(strings.ToLower(r.Payload.Text), queryLower) {
			log.Debug("exact keyword match", "results", len(keywordResults))
			return toPassages(keywordResults), nil
		}
	}

	semanticResults, semanticErr := kb.searchSemantic(ctx, q)
	if semanticErr != nil {
		if len(keywordResults) > 0 {
			log.Warn("semantic search failed, using keyword results", "error", semanticErr)
			return toPassages(keywordResults), nil
		}
		return nil, semanticErr
	}

	combined := combineSearchResults(keywordResults, semanticResults, q.Limit)
	log.Debug("hybrid search done", "keyword", len(keywordResults), "semantic", len(semanticResults), "combined", len(combined))
	return toPassages(combined), nil
}

func toPassages(results []SearchResult) []Passage {
	out := make([]Passage, 0, len(results))
	for _, r := range results {
		out = append(out, Passage{
			ID:      string(r.ID),
			DocName: r.Payload.DocName,
			PageNum: r.Payload.PageNum,
			Text:    r.Payload.Text,
			Score:   r.Score,
		})
	}
	return out
}

func (kb *qdrantKnowledgeBase) filter(q Query) map[string]interface{} {
	conditions := []map[string]interface{}{
		{"key": "username", "match": map[string]string{"value": q.Namespace}},
	}
	if q.DocName != "" {
		conditions = append(conditions, map[string]interface{}{
			"key": "doc_name", "match": map[string]string{"value": q.DocName},
		})
	}
	return map[string]interface{}{"must": conditions}
}

func (kb *qdrantKnowledgeBase) searchSemantic(ctx context.Context, q Query) ([]SearchResult, error) {
	if kb.embedder == nil {
		return nil, fmt.Errorf("no embedder configured")
	}
	vector, err := kb.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, fmt.Errorf("failed to get query embedding: %w", err)
	}

	// Over-fetch so the text re-ranking has something to choose from.
	searchLimit := q.Limit * 3
	if searchLimit < 10 {
		searchLimit = 10
	}
	var searchResp SearchResponse
	err = kb.post(ctx, "points/search", SearchRequest{
		Vector:      vector,
		WithPayload: true,
		Filter:      kb.filter(q),
		Limit:       searchLimit,
	}, &searchResp)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	return filterByTextSimilarity(searchResp.Result, q.Text, q.Limit), nil
}

func (kb *qdrantKnowledgeBase) searchKeyword(ctx context.Context, q Query) ([]SearchResult, error) {
	scrollReq := map[string]interface{}{
		"filter":       kb.filter(q),
		"limit":        q.Limit * 10,
		"with_payload": true,
	}
	var scrollResp struct {
		Result struct {
			Points []SearchResult `json:"points"`
		} `json:"result"`
	}
	if err := kb.post(ctx, "points/scroll", scrollReq, &scrollResp); err != nil {
		return nil, fmt.Errorf("scroll failed: %w", err)
	}

	var filtered []SearchResult
	queryLower := strings.ToLower(q.Text)
	for _, point := range scrollResp.Result.Points {
		if strings.Contains(strings.ToLower(point.Payload.Text), queryLower) {
			point.Score = 1
			filtered = append(filtered, point)
			if len(filtered) >= q.Limit {
				break
			}
		}
	}
	return filtered, nil
}

func (kb *qdrantKnowledgeBase) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	url := fmt.Sprintf("%s/collections/%s/%s", kb.url, kb.collection, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if kb.apiKey != "" {
		req.Header.Set("api-key", kb.apiKey)
	}

	resp, err := kb.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call qdrant: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("status %d, response: %s", resp.StatusCode, string(bodyBytes))
	}
	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// filterByTextSimilarity re-ranks semantic hits by 0.7 vector score plus
// 0.3 word overlap with the query.
func filterByTextSimilarity(results []SearchResult, query string, limit int) []SearchResult {
	if len(results) == 0 {
		return results
	}

	queryLower := strings.ToLower(query)
	queryWords := strings.Fields(queryLower)

	scored := make([]SearchResult, 0, len(results))
	for _, result := range results {
		textLower := strings.ToLower(result.Payload.Text)
		textScore := float32(0)

		if strings.Contains(textLower, queryLower) {
			textScore = 1.0
		} else {
			matchedWords := 0
			for _, word := range queryWords {
				if len(word) > 2 && strings.Contains(textLower, word) {
					matchedWords++
				}
			}
			if len(queryWords) > 0 {
				textScore = float32(matchedWords) / float32(len(queryWords))
			}
		}

		result.Score = result.Score*0.7 + textScore*0.3
		scored = append(scored, result)
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}

// combineSearchResults puts keyword hits first and drops duplicate ids.
func combineSearchResults(keywordResults, semanticResults []SearchResult, limit int) []SearchResult {
	seen := make(map[pointID]bool)
	var combined []SearchResult

	for _, list := range [][]SearchResult{keywordResults, semanticResults} {
		for _, result := range list {
			if !seen[result.ID] && len(combined) < limit {
				combined = append(combined, result)
				seen[result.ID] = true
			}
		}
	}
	return combined
}
