package httpapi

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watchwise/internal/auth"
	"watchwise/internal/conversation"
	"watchwise/internal/feedback"
	"watchwise/internal/llm"
	"watchwise/internal/recommend"
	"watchwise/internal/retrieval"
	"watchwise/internal/storage"
	"watchwise/internal/synth"
)

type fakeLLM struct {
	reply string
	err   error
}

func (f *fakeLLM) Generate(ctx context.Context, messages []llm.Message) (llm.Response, error) {
	if f.err != nil {
		return llm.Response{}, f.err
	}
	return llm.Response{Content: f.reply}, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

const sixTitles = `{"recommendations":[
{"title":"Arrival","type":"Movie","genre":"Sci-Fi","description":"d","matchReason":"m","rating":"7.9","contentRating":"PG-13"},
{"title":"Severance","type":"Series","genre":"Sci-Fi","description":"d","matchReason":"m","rating":"8.7","contentRating":"TV-MA"},
{"title":"Paddington 2","type":"Movie","genre":"Comedy","description":"d","matchReason":"m","rating":"7.8","contentRating":"PG"},
{"title":"Ted Lasso","type":"Series","genre":"Comedy","description":"d","matchReason":"m","rating":"8.8","contentRating":"TV-MA"},
{"title":"Past Lives","type":"Movie","genre":"Drama","description":"d","matchReason":"m","rating":"7.8","contentRating":"PG-13"},
{"title":"The Crown","type":"Series","genre":"Drama","description":"d","matchReason":"m","rating":"8.6","contentRating":"TV-MA"}]}`

const recommendBody = `{"preferences":{"mood":"Relaxed","contentType":"Both","watchTime":"About 2 hours",
"genres":"Comedy, Drama","company":"Just me","watchStyle":"Fully focused","language":"English only"},
"watchedShows":["Dune"],"region":"Canada"}`

type fixture struct {
	handler  http.Handler
	store    *storage.Memory
	verifier *auth.Verifier
}

func newFixture(t *testing.T, client llm.Client) fixture {
	t.Helper()
	store := storage.NewMemory()
	machine, err := conversation.New(conversation.DefaultPolicy(), nil)
	require.NoError(t, err)
	rec := recommend.New(machine, store, retrieval.New(store, retrieval.DefaultOptions()),
		synth.New(client, nil, synth.DefaultOptions()), nil, 0)
	fb := feedback.NewService(store, nil, fakeEmbedder{}, nil)
	verifier := auth.NewVerifier("test-secret", "")
	srv := NewServer(rec, fb, verifier)
	return fixture{handler: srv.Router(Options{}), store: store, verifier: verifier}
}

func (f fixture) do(t *testing.T, method, path, body, userID string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		tok, err := f.verifier.Issue(userID, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, &fakeLLM{})
	rr := f.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestPreflight(t *testing.T) {
	f := newFixture(t, &fakeLLM{})
	req := httptest.NewRequest(http.MethodOptions, "/api/recommendations", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rr.Body.String())
}

func TestConversationStep(t *testing.T) {
	f := newFixture(t, &fakeLLM{})

	rr := f.do(t, http.MethodPost, "/api/conversation/step",
		`{"conversationHistory":[{"question":"How are you feeling?","questionId":"mood","answer":"Relaxed"}]}`, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp conversation.StepResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.False(t, resp.Ready)
	assert.Greater(t, resp.Confidence, 10)
	assert.LessOrEqual(t, resp.Confidence, 30)
	require.NotNil(t, resp.NextQuestion)

	rr = f.do(t, http.MethodPost, "/api/conversation/step", `{"conversationHistory":`, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid JSON body")
}

func TestRecommendAndFeedback(t *testing.T) {
	f := newFixture(t, &fakeLLM{reply: sixTitles})

	rr := f.do(t, http.MethodPost, "/api/recommendations", recommendBody, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var anon recommend.Response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &anon))
	assert.Len(t, anon.Recommendations, synth.BatchSize)
	assert.Empty(t, anon.Recommendations[0].ID)

	rr = f.do(t, http.MethodPost, "/api/recommendations", recommendBody, "u1")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var authed recommend.Response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &authed))
	id := authed.Recommendations[0].ID
	require.NotEmpty(t, id)

	rr = f.do(t, http.MethodPost, "/api/recommendations/"+id+"/rating", `{"rating":5}`, "u1")
	assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = f.do(t, http.MethodPost, "/api/recommendations/"+id+"/rating", `{"rating":9}`, "u1")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	var bad errorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &bad))
	assert.Contains(t, bad.Fields, "rating")

	rr = f.do(t, http.MethodPost, "/api/recommendations/"+id+"/rating", `{"rating":5}`, "u2")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = f.do(t, http.MethodPost, "/api/recommendations/"+id+"/rating", `{"rating":5}`, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = f.do(t, http.MethodPost, "/api/recommendations/"+id+"/watched", `{"watched":true,"liked":false}`, "u1")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var item storage.RatedItem
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &item))
	require.NotNil(t, item.UserRating)
	assert.Equal(t, 1, *item.UserRating)

	rr = f.do(t, http.MethodGet, "/api/history", "", "u1")
	require.Equal(t, http.StatusOK, rr.Code)
	var hist historyResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &hist))
	assert.Len(t, hist.Items, synth.BatchSize)
}

func TestIngestEmbedding(t *testing.T) {
	f := newFixture(t, &fakeLLM{})

	rr := f.do(t, http.MethodPost, "/api/embeddings", `{"title":"Dune","description":"Desert planet","rating":3}`, "u1")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	for i := 0; i < 2; i++ {
		rr = f.do(t, http.MethodPost, "/api/embeddings", `{"title":"Dune","description":"Desert planet","rating":5}`, "u1")
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	}
	assert.Equal(t, 1, f.store.EmbeddingCount("u1", "Dune"))
}

func TestUpstreamFailureIsSanitized(t *testing.T) {
	f := newFixture(t, &fakeLLM{err: errors.New("dial tcp 10.0.0.7:443: connection refused")})

	rr := f.do(t, http.MethodPost, "/api/recommendations", recommendBody, "")
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.NotContains(t, rr.Body.String(), "10.0.0.7")
}

func TestRequestLimits(t *testing.T) {
	f := newFixture(t, &fakeLLM{reply: sixTitles})
	var body bytes.Buffer
	body.WriteString(`{"preferences":{"mood":"x","watchTime":"x","genres":["a"],"company":"x","watchStyle":"x","language":"x"},"watchedShows":[`)
	for i := 0; i < 101; i++ {
		if i > 0 {
			body.WriteString(",")
		}
		body.WriteString(`"t"`)
	}
	body.WriteString(`]}`)

	rr := f.do(t, http.MethodPost, "/api/recommendations", body.String(), "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "watchedShows")
}
