package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f fakeEmbedder) Embed(context.Context, string) ([]float32, error) { return f.vec, f.err }

type qdrantStub struct {
	mu       sync.Mutex
	scroll   string
	search   string
	paths    []string
	bodies   []map[string]interface{}
	apiKeys  []string
	failWith int
}

func (s *qdrantStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var body map[string]interface{}
	_ = json.NewDecoder(r.Body).Decode(&body)
	s.paths = append(s.paths, r.URL.Path)
	s.bodies = append(s.bodies, body)
	s.apiKeys = append(s.apiKeys, r.Header.Get("api-key"))

	if s.failWith != 0 {
		w.WriteHeader(s.failWith)
		_, _ = w.Write([]byte(`{"status":{"error":"boom"}}`))
		return
	}
	switch {
	case strings.HasSuffix(r.URL.Path, "/points/scroll"):
		_, _ = w.Write([]byte(s.scroll))
	case strings.HasSuffix(r.URL.Path, "/points/search"):
		_, _ = w.Write([]byte(s.search))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newQdrantTest(t *testing.T, stub *qdrantStub, embedder Embedder) *qdrantKnowledgeBase {
	t.Helper()
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)
	return newQdrantKnowledgeBase(srv.URL+"/", "qd-key", "", embedder, nil)
}

const scrollBody = `{"result":{"points":[
	{"id":"a1","payload":{"username":"acme","text":"Zero trust removes implicit trust.","page_num":3,"doc_name":"nist.pdf"}},
	{"id":7,"payload":{"username":"acme","text":"Unrelated page about billing.","page_num":4,"doc_name":"nist.pdf"}}
]}}`

func TestQdrantKeywordHitShortCircuits(t *testing.T) {
	stub := &qdrantStub{scroll: scrollBody}
	kb := newQdrantTest(t, stub, fakeEmbedder{err: errors.New("must not embed")})

	got, err := kb.Search(context.Background(), Query{Namespace: "acme", Text: "zero trust"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a1", got[0].ID)
	assert.Equal(t, 3, got[0].PageNum)
	assert.Equal(t, "nist.pdf", got[0].DocName)
	assert.Equal(t, float32(1), got[0].Score)

	require.Len(t, stub.paths, 1)
	assert.Equal(t, "/collections/pages/points/scroll", stub.paths[0])
	assert.Equal(t, "qd-key", stub.apiKeys[0])
	assert.EqualValues(t, 50, stub.bodies[0]["limit"])

	must := stub.bodies[0]["filter"].(map[string]interface{})["must"].([]interface{})
	require.Len(t, must, 1)
	assert.Equal(t, "username", must[0].(map[string]interface{})["key"])
}

func TestQdrantHybridSearch(t *testing.T) {
	stub := &qdrantStub{
		scroll: `{"result":{"points":[]}}`,
		search: `{"result":[
			{"id":1,"score":0.9,"payload":{"text":"segmentation of networks","page_num":1}},
			{"id":2,"score":0.8,"payload":{"text":"micro segmentation policy engine","page_num":2}},
			{"id":"x","score":0.2,"payload":{"text":"nothing relevant","page_num":9}}
		]}`,
	}
	kb := newQdrantTest(t, stub, fakeEmbedder{vec: []float32{0.1, 0.2}})

	got, err := kb.Search(context.Background(), Query{Namespace: "acme", DocName: "nist.pdf", Text: "segmentation policy", Limit: 2})
	require.NoError(t, err)
	require.Len(t, got, 2)
	// 0.8*0.7+1*0.3 beats 0.9*0.7+0.5*0.3.
	assert.Equal(t, "2", got[0].ID)
	assert.Equal(t, "1", got[1].ID)

	require.Len(t, stub.paths, 2)
	search := stub.bodies[1]
	assert.EqualValues(t, 10, search["limit"])
	assert.Equal(t, true, search["with_payload"])
	must := search["filter"].(map[string]interface{})["must"].([]interface{})
	assert.Len(t, must, 2)
}

func TestQdrantSearchErrors(t *testing.T) {
	_, err := newQdrantKnowledgeBase("http://unused", "", "", nil, nil).Search(context.Background(), Query{Text: "  "})
	assert.Error(t, err)

	stub := &qdrantStub{failWith: http.StatusInternalServerError}
	kb := newQdrantTest(t, stub, fakeEmbedder{vec: []float32{1}})
	_, err = kb.Search(context.Background(), Query{Namespace: "acme", Text: "anything"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestQdrantSemanticFailureWithoutKeywordHits(t *testing.T) {
	stub := &qdrantStub{scroll: `{"result":{"points":[
		{"id":"p","payload":{"text":"the zero trust model","page_num":1}}
	]}}`}
	kb := newQdrantTest(t, stub, fakeEmbedder{err: errors.New("embedder down")})

	// "trust model zero" is not a substring, so the keyword pass finds nothing.
	got, err := kb.Search(context.Background(), Query{Namespace: "acme", Text: "trust model zero"})
	assert.Error(t, err)
	assert.Empty(t, got)
}

func TestPointIDUnmarshal(t *testing.T) {
	var r SearchResult
	require.NoError(t, json.Unmarshal([]byte(`{"id":42,"score":0.5}`), &r))
	assert.Equal(t, pointID("42"), r.ID)
	require.NoError(t, json.Unmarshal([]byte(`{"id":"5c56c793-69f3-4fbf-87e6-c4bf54c28c26"}`), &r))
	assert.Equal(t, pointID("5c56c793-69f3-4fbf-87e6-c4bf54c28c26"), r.ID)
	assert.Error(t, json.Unmarshal([]byte(`{"id":{"x":1}}`), &r))
}

func TestCombineSearchResults(t *testing.T) {
	kw := []SearchResult{{ID: "a"}, {ID: "b"}}
	sem := []SearchResult{{ID: "b"}, {ID: "c"}, {ID: "d"}}

	got := combineSearchResults(kw, sem, 3)
	var ids []pointID
	for _, r := range got {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []pointID{"a", "b", "c"}, ids)
}

func TestFilterByTextSimilarity(t *testing.T) {
	assert.Empty(t, filterByTextSimilarity(nil, "q", 3))

	results := []SearchResult{
		{ID: "low", Score: 0.5, Payload: QdrantPage{Text: "nothing"}},
		{ID: "exact", Score: 0.5, Payload: QdrantPage{Text: "About Zero Trust here"}},
	}
	got := filterByTextSimilarity(results, "zero trust", 1)
	require.Len(t, got, 1)
	assert.Equal(t, pointID("exact"), got[0].ID)
	assert.InDelta(t, 0.65, got[0].Score, 0.0001)
}
