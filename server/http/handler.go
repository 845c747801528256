package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/w-h-a/docqa"
	"github.com/w-h-a/docqa/errs"
	"github.com/w-h-a/docqa/provider"
)

const defaultMaxUpload = 32 << 20

type handler struct {
	assistant *docqa.Assistant
	maxUpload int64
}

type createSessionRequest struct {
	provider.Config
	ID        string `json:"id,omitempty"`
	WebSearch bool   `json:"web_search"`
}

type webSearchRequest struct {
	Enabled bool `json:"enabled"`
}

type resumeRequest struct {
	Collection string `json:"collection"`
}

type questionRequest struct {
	Question string `json:"question"`
}

type sourceResponse struct {
	Page    int     `json:"page"`
	Index   int     `json:"index"`
	Score   float32 `json:"score"`
	Content string  `json:"content"`
}

type answerResponse struct {
	Question     string           `json:"question"`
	Query        string           `json:"query"`
	Answer       string           `json:"answer,omitempty"`
	Sources      []sourceResponse `json:"sources"`
	WebResults   string           `json:"web_results,omitempty"`
	FallbackUsed bool             `json:"fallback_used"`
}

type turnResponse struct {
	Question   string    `json:"question"`
	Answer     string    `json:"answer"`
	WebResults string    `json:"web_results,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}

func (h *handler) listSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"sessions": h.assistant.Sessions(r.Context())})
}

func (h *handler) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decode(w, r, &req) {
		return
	}

	id, err := h.assistant.NewSession(r.Context(), req.ID, req.Config, req.WebSearch)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *handler) getSession(w http.ResponseWriter, r *http.Request) {
	status, err := h.assistant.Status(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

func (h *handler) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.assistant.DeleteSession(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		writeError(w, r, errs.Load("read upload: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, errs.Load("form field file: %v", err))
		return
	}
	defer file.Close()

	meta, err := h.assistant.Upload(r.Context(), mux.Vars(r)["id"], header.Filename, file, header.Size)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, meta)
}

func (h *handler) reset(w http.ResponseWriter, r *http.Request) {
	if err := h.assistant.Reset(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) resume(w http.ResponseWriter, r *http.Request) {
	var req resumeRequest
	if !decode(w, r, &req) {
		return
	}

	desc, err := h.assistant.Resume(r.Context(), mux.Vars(r)["id"], req.Collection)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, desc)
}

func (h *handler) switchProvider(w http.ResponseWriter, r *http.Request) {
	var cfg provider.Config
	if !decode(w, r, &cfg) {
		return
	}

	id := mux.Vars(r)["id"]

	if err := h.assistant.SwitchProvider(r.Context(), id, cfg); err != nil {
		writeError(w, r, err)
		return
	}

	h.getSession(w, r)
}

func (h *handler) setWebSearch(w http.ResponseWriter, r *http.Request) {
	var req webSearchRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.assistant.SetWebSearch(r.Context(), mux.Vars(r)["id"], req.Enabled); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) ask(w http.ResponseWriter, r *http.Request) {
	var req questionRequest
	if !decode(w, r, &req) {
		return
	}

	id := mux.Vars(r)["id"]

	if stream, _ := strconv.ParseBool(r.URL.Query().Get("stream")); stream {
		h.stream(w, r, id, req.Question)
		return
	}

	res, err := h.assistant.Ask(r.Context(), id, req.Question)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toAnswer(res))
}

// stream answers as server-sent events: one data event per fragment, then a
// result event, or an error event if the turn fails after headers went out.
func (h *handler) stream(w http.ResponseWriter, r *http.Request, id string, question string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, errors.New("streaming unsupported"))
		return
	}

	stream, err := h.assistant.Stream(r.Context(), id, question)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writeEvent(w, "sources", toAnswer(stream.Sources()))
	flusher.Flush()

	for stream.Next() {
		for _, line := range strings.Split(stream.Current(), "\n") {
			fmt.Fprintf(w, "data: %s\n", line)
		}
		fmt.Fprint(w, "\n")
		flusher.Flush()
	}

	if err := stream.Err(); err != nil {
		slog.ErrorContext(r.Context(), "streamed answer failed", "session", id, "error", err)
		writeEvent(w, "error", errorResponse{Error: err.Error(), Retryable: errs.IsRetryable(err)})
		flusher.Flush()
		return
	}

	res, _ := stream.Result()
	writeEvent(w, "result", toAnswer(res))
	flusher.Flush()
}

func (h *handler) history(w http.ResponseWriter, r *http.Request) {
	turns, err := h.assistant.History(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}

	rsp := make([]turnResponse, 0, len(turns))
	for _, t := range turns {
		rsp = append(rsp, turnResponse{
			Question:   t.Question,
			Answer:     t.Answer,
			WebResults: t.WebResults,
			CreatedAt:  t.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string][]turnResponse{"messages": rsp})
}

func (h *handler) clearChat(w http.ResponseWriter, r *http.Request) {
	if err := h.assistant.ClearChat(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// NewHandler routes the assistant's HTTP API. Uploads above maxUpload bytes
// are rejected; zero means 32 MiB.
func NewHandler(a *docqa.Assistant, maxUpload int64) http.Handler {
	if maxUpload <= 0 {
		maxUpload = defaultMaxUpload
	}

	h := &handler{
		assistant: a,
		maxUpload: maxUpload,
	}

	r := mux.NewRouter()

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/sessions", h.listSessions).Methods(http.MethodGet)
	api.HandleFunc("/sessions", h.createSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}", h.getSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", h.deleteSession).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}/documents", h.upload).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/documents", h.reset).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}/collections", h.resume).Methods(http.MethodPut)
	api.HandleFunc("/sessions/{id}/provider", h.switchProvider).Methods(http.MethodPut)
	api.HandleFunc("/sessions/{id}/web_search", h.setWebSearch).Methods(http.MethodPut)
	api.HandleFunc("/sessions/{id}/questions", h.ask).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/messages", h.history).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/messages", h.clearChat).Methods(http.MethodDelete)

	return r
}

func toAnswer(res docqa.Result) answerResponse {
	sources := make([]sourceResponse, 0, len(res.Sources))
	for _, m := range res.Sources {
		sources = append(sources, sourceResponse{
			Page:    m.Chunk.Page,
			Index:   m.Chunk.Index,
			Score:   m.Score,
			Content: m.Chunk.Content,
		})
	}

	return answerResponse{
		Question:     res.Question,
		Query:        res.Query,
		Answer:       res.Answer,
		Sources:      sources,
		WebResults:   res.WebResults,
		FallbackUsed: res.FallbackUsed,
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, r, errs.InvalidConfig("decode request body: %v", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeEvent(w http.ResponseWriter, event string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to encode event", "event", event, "error", err)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, b)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusOf(err)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}

	writeJSON(w, status, errorResponse{Error: err.Error(), Retryable: errs.IsRetryable(err)})
}

// StatusOf maps an error kind to the HTTP status the API answers with.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, docqa.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrLoad), errors.Is(err, errs.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, errs.ErrNotReady):
		return http.StatusConflict
	case errors.Is(err, errs.ErrProviderUnavailable), errors.Is(err, errs.ErrGeneration), errors.Is(err, errs.ErrIndexBuild):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
