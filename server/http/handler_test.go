package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/w-h-a/docqa"
	"github.com/w-h-a/docqa/errs"
	"github.com/w-h-a/docqa/internal/testutil"
	"github.com/w-h-a/docqa/provider"
)

var invoice = testutil.PDF(
	"Shipping terms: delivery within thirty days of the order date.",
	"The invoice total is 42 dollars, payable to Acme Corp.",
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	factory := func(cfg provider.Config) (provider.Pair, error) {
		if err := cfg.Validate(); err != nil {
			return provider.Pair{}, err
		}
		return provider.Pair{
			Config:    cfg.Normalize(),
			Embedder:  &testutil.HashEmbedder{},
			Generator: &testutil.Generator{Answer: testutil.Reply("The total is 42 dollars.")},
		}, nil
	}

	a, err := docqa.New(
		docqa.WithStore(docqa.StoreMemory, ""),
		docqa.WithK(1),
		docqa.WithFactory(factory),
	)
	require.NoError(t, err)

	srv := httptest.NewServer(NewHandler(a, 0))
	t.Cleanup(func() {
		srv.Close()
		a.Close(context.Background())
	})

	return srv
}

func do(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, url, r)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	rsp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { rsp.Body.Close() })

	return rsp
}

func decodeBody(t *testing.T, rsp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rsp.Body).Decode(v))
}

func createSession(t *testing.T, base string) string {
	t.Helper()

	rsp := do(t, http.MethodPost, base+"/api/v1/sessions", map[string]any{"name": provider.OpenAI, "api_key": "sk-test"})
	require.Equal(t, http.StatusCreated, rsp.StatusCode)

	var created map[string]string
	decodeBody(t, rsp, &created)
	require.NotEmpty(t, created["id"])

	return created["id"]
}

func uploadInvoice(t *testing.T, base, id string) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "invoice.pdf")
	require.NoError(t, err)
	_, err = fw.Write(invoice)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	rsp, err := http.Post(base+"/api/v1/sessions/"+id+"/documents", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	t.Cleanup(func() { rsp.Body.Close() })

	return rsp
}

func TestQuestionRoundTrip(t *testing.T) {
	srv := newTestServer(t)
	id := createSession(t, srv.URL)

	rsp := do(t, http.MethodPost, srv.URL+"/api/v1/sessions/"+id+"/questions", questionRequest{Question: "What is the invoice total?"})
	assert.Equal(t, http.StatusConflict, rsp.StatusCode)

	rsp = uploadInvoice(t, srv.URL, id)
	require.Equal(t, http.StatusCreated, rsp.StatusCode)

	var meta docqa.Document
	decodeBody(t, rsp, &meta)
	assert.Equal(t, "invoice.pdf", meta.Filename)
	assert.Equal(t, 2, meta.PageCount)

	rsp = do(t, http.MethodPost, srv.URL+"/api/v1/sessions/"+id+"/questions", questionRequest{Question: "What is the invoice total?"})
	require.Equal(t, http.StatusOK, rsp.StatusCode)

	var answer answerResponse
	decodeBody(t, rsp, &answer)
	assert.Equal(t, "The total is 42 dollars.", answer.Answer)
	require.Len(t, answer.Sources, 1)
	assert.Equal(t, 2, answer.Sources[0].Page)

	rsp = do(t, http.MethodGet, srv.URL+"/api/v1/sessions/"+id+"/messages", nil)
	require.Equal(t, http.StatusOK, rsp.StatusCode)

	var history map[string][]turnResponse
	decodeBody(t, rsp, &history)
	require.Len(t, history["messages"], 1)
	assert.Equal(t, "What is the invoice total?", history["messages"][0].Question)

	rsp = do(t, http.MethodDelete, srv.URL+"/api/v1/sessions/"+id+"/messages", nil)
	assert.Equal(t, http.StatusNoContent, rsp.StatusCode)
}

func TestStreamedQuestion(t *testing.T) {
	srv := newTestServer(t)
	id := createSession(t, srv.URL)

	require.Equal(t, http.StatusCreated, uploadInvoice(t, srv.URL, id).StatusCode)

	rsp := do(t, http.MethodPost, srv.URL+"/api/v1/sessions/"+id+"/questions?stream=true", questionRequest{Question: "What is the invoice total?"})
	require.Equal(t, http.StatusOK, rsp.StatusCode)
	assert.Equal(t, "text/event-stream", rsp.Header.Get("Content-Type"))

	var (
		event     string
		fragments strings.Builder
		result    answerResponse
		events    []string
	)

	scanner := bufio.NewScanner(rsp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
			events = append(events, event)
		case strings.HasPrefix(line, "data: "):
			data := strings.TrimPrefix(line, "data: ")
			if event == "result" {
				require.NoError(t, json.Unmarshal([]byte(data), &result))
			} else if len(event) == 0 {
				fragments.WriteString(data)
			}
		case len(line) == 0:
			event = ""
		}
	}
	require.NoError(t, scanner.Err())

	assert.Equal(t, []string{"sources", "result"}, events)
	assert.Equal(t, "The total is 42 dollars.", fragments.String())
	assert.Equal(t, "The total is 42 dollars.", result.Answer)
}

func TestSessionManagement(t *testing.T) {
	srv := newTestServer(t)
	id := createSession(t, srv.URL)

	rsp := do(t, http.MethodPut, srv.URL+"/api/v1/sessions/"+id+"/provider", map[string]any{"name": provider.Ollama})
	require.Equal(t, http.StatusOK, rsp.StatusCode)

	var status docqa.Status
	decodeBody(t, rsp, &status)
	assert.Equal(t, provider.Ollama, status.Provider.Name)
	assert.False(t, status.Ready)

	rsp = do(t, http.MethodPut, srv.URL+"/api/v1/sessions/"+id+"/web_search", webSearchRequest{Enabled: true})
	assert.Equal(t, http.StatusNoContent, rsp.StatusCode)

	rsp = do(t, http.MethodPut, srv.URL+"/api/v1/sessions/"+id+"/provider", map[string]any{"name": provider.Google})
	assert.Equal(t, http.StatusUnauthorized, rsp.StatusCode)

	rsp = do(t, http.MethodGet, srv.URL+"/api/v1/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, rsp.StatusCode)
	decodeBody(t, rsp, &status)
	assert.True(t, status.WebSearch)
	assert.Equal(t, provider.Ollama, status.Provider.Name)

	rsp = do(t, http.MethodDelete, srv.URL+"/api/v1/sessions/"+id, nil)
	assert.Equal(t, http.StatusNoContent, rsp.StatusCode)

	rsp = do(t, http.MethodGet, srv.URL+"/api/v1/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rsp.StatusCode)
}

func TestBadRequests(t *testing.T) {
	srv := newTestServer(t)

	rsp := do(t, http.MethodPost, srv.URL+"/api/v1/sessions", map[string]any{"name": "unknown"})
	assert.Equal(t, http.StatusBadRequest, rsp.StatusCode)

	id := createSession(t, srv.URL)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/sessions/"+id+"/questions", strings.NewReader("{"))
	require.NoError(t, err)
	bad, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)

	var e errorResponse
	decodeBody(t, bad, &e)
	assert.NotEmpty(t, e.Error)
	assert.False(t, e.Retryable)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rsp := do(t, http.MethodGet, srv.URL+"/metrics", nil)
	assert.Equal(t, http.StatusOK, rsp.StatusCode)
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{docqa.ErrSessionNotFound, http.StatusNotFound},
		{errs.Load("empty"), http.StatusBadRequest},
		{errs.InvalidConfig("k"), http.StatusBadRequest},
		{errs.Auth("key"), http.StatusUnauthorized},
		{errs.ErrNotReady, http.StatusConflict},
		{errs.Unavailable("429"), http.StatusBadGateway},
		{errs.Generation("generate", errors.New("boom")), http.StatusBadGateway},
		{errs.IndexBuild("partial"), http.StatusBadGateway},
		{errors.New("other"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusOf(tt.err), tt.err.Error())
	}
}
