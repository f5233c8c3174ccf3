package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pion/logging"

	"github.com/satindergrewal/segue/internal/audio"
	"github.com/satindergrewal/segue/internal/catalog"
	"github.com/satindergrewal/segue/internal/config"
	"github.com/satindergrewal/segue/internal/jobs"
	"github.com/satindergrewal/segue/internal/stream"
	"github.com/satindergrewal/segue/internal/transition"
)

// maxRequestBody bounds JSON request bodies.
const maxRequestBody = 1 << 20

// server is the HTTP API over the catalog and the render queue.
type server struct {
	cfg   config.Config
	cat   *catalog.Catalog
	queue *jobs.Queue
	log   logging.LeveledLogger

	// Live preview; all nil when disabled.
	player      *audio.Player
	broadcaster *stream.Broadcaster
	webrtc      *stream.WebRTCHandler
}

// ErrorResponse is the body of every non-2xx JSON reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`

	// Set for transition build failures.
	Kind  string `json:"kind,omitempty"`
	Stage string `json:"stage,omitempty"`
	Param string `json:"param,omitempty"`
}

// submitRequest is the body of POST /api/transitions. Params fields that are
// left out keep the server defaults.
type submitRequest struct {
	FromSong    string          `json:"from_song"` // id or title
	ToSong      string          `json:"to_song"`
	FromSection int             `json:"from_section"`
	ToSection   int             `json:"to_section"`
	FullSong    bool            `json:"full_song"`
	Params      json.RawMessage `json:"params"`
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/status", s.handleStatus)

	mux.HandleFunc("GET /api/songs", s.handleListSongs)
	mux.HandleFunc("GET /api/songs/{id}", s.handleGetSong)
	mux.HandleFunc("DELETE /api/songs/{id}", s.handleDeleteSong)

	mux.HandleFunc("POST /api/transitions", s.handleSubmit)
	mux.HandleFunc("GET /api/transitions", s.handleListTransitions)
	mux.HandleFunc("GET /api/transitions/{id}", s.handleGetTransition)
	mux.HandleFunc("GET /api/transitions/{id}/audio", s.handleTransitionAudio)

	if s.player != nil {
		mux.HandleFunc("POST /api/skip", s.handleSkip)
		mux.Handle("GET /stream", stream.NewHTTPHandler(s.broadcaster, 0, s.log))
		mux.Handle("/offer", s.webrtc)
	}

	return corsMiddleware(loggingMiddleware(s.log, mux))
}

func (s *server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Errorf("Failed to encode JSON response: %v", err)
	}
}

func (s *server) respondError(w http.ResponseWriter, status int, err error) {
	resp := ErrorResponse{Error: http.StatusText(status), Message: err.Error(), Code: status}
	var te *transition.Error
	if errors.As(err, &te) {
		resp.Kind = te.Kind.String()
		resp.Stage = te.Stage.String()
		resp.Param = te.Param
	}
	s.respondJSON(w, status, resp)
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"pending": s.queue.Pending(),
		"format": map[string]int{
			"sample_rate": s.cfg.SampleRate,
			"channels":    s.cfg.Channels,
		},
		"preview": s.player != nil,
	}
	if s.player != nil {
		track, pos, dur := s.player.Status()
		status["now_playing"] = map[string]any{
			"id":       track.ID,
			"label":    track.Label,
			"position": pos.Seconds(),
			"duration": dur.Seconds(),
		}
		status["preview_queue"] = s.player.QueueSize()
		status["previews_played"] = s.player.Played()
		status["listeners"] = s.broadcaster.Stats()
		status["webrtc_peers"] = s.webrtc.PeerCount()
	}
	s.respondJSON(w, http.StatusOK, status)
}

func (s *server) handleListSongs(w http.ResponseWriter, r *http.Request) {
	songs, err := s.cat.ListSongs()
	if err != nil {
		s.log.Errorf("Failed to list songs: %v", err)
		s.respondError(w, http.StatusInternalServerError, errors.New("failed to retrieve songs"))
		return
	}
	s.respondJSON(w, http.StatusOK, songs)
}

func (s *server) handleGetSong(w http.ResponseWriter, r *http.Request) {
	song, err := s.cat.FindSong(r.PathValue("id"))
	if err != nil {
		s.respondError(w, statusFor(err), err)
		return
	}
	s.respondJSON(w, http.StatusOK, song)
}

func (s *server) handleDeleteSong(w http.ResponseWriter, r *http.Request) {
	if err := s.cat.DeleteSong(r.PathValue("id")); err != nil {
		s.respondError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var body submitRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&body); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	params, err := s.requestParams(body.Params)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}

	from, err := s.cat.FindSong(body.FromSong)
	if err != nil {
		s.respondError(w, statusFor(err), fmt.Errorf("from_song: %w", err))
		return
	}
	to, err := s.cat.FindSong(body.ToSong)
	if err != nil {
		s.respondError(w, statusFor(err), fmt.Errorf("to_song: %w", err))
		return
	}

	rec, err := s.queue.Submit(jobs.Request{
		FromSongID:  from.ID,
		ToSongID:    to.ID,
		FromSection: body.FromSection,
		ToSection:   body.ToSection,
		Params:      params,
		FullSong:    body.FullSong,
	})
	if err != nil {
		s.respondError(w, statusFor(err), err)
		return
	}
	w.Header().Set("Location", "/api/transitions/"+rec.ID)
	s.respondJSON(w, http.StatusAccepted, rec)
}

// requestParams overlays the request's params on the server defaults.
func (s *server) requestParams(raw json.RawMessage) (transition.Params, error) {
	p := defaultParams(s.cfg)
	if len(raw) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("invalid params: %w", err)
	}
	var keys map[string]json.RawMessage
	json.Unmarshal(raw, &keys)
	_, bottomSet := keys["fade_bottom"]
	return forType(p, bottomSet), nil
}

func (s *server) handleListTransitions(w http.ResponseWriter, r *http.Request) {
	list, err := s.cat.ListTransitions(100)
	if err != nil {
		s.log.Errorf("Failed to list transitions: %v", err)
		s.respondError(w, http.StatusInternalServerError, errors.New("failed to retrieve transitions"))
		return
	}
	s.respondJSON(w, http.StatusOK, list)
}

// lookup prefers the live queue record, then the catalog.
func (s *server) lookup(id string) (*catalog.Transition, error) {
	if rec, ok := s.queue.Status(id); ok {
		return &rec, nil
	}
	return s.cat.GetTransition(id)
}

func (s *server) handleGetTransition(w http.ResponseWriter, r *http.Request) {
	rec, err := s.lookup(r.PathValue("id"))
	if err != nil {
		s.respondError(w, statusFor(err), err)
		return
	}
	s.respondJSON(w, http.StatusOK, rec)
}

func (s *server) handleTransitionAudio(w http.ResponseWriter, r *http.Request) {
	rec, err := s.lookup(r.PathValue("id"))
	if err != nil {
		s.respondError(w, statusFor(err), err)
		return
	}
	if rec.Status != catalog.StatusDone || rec.OutputPath == "" {
		s.respondError(w, http.StatusConflict, fmt.Errorf("transition %s is %s", rec.ID, rec.Status))
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.wav"`, rec.ID))
	http.ServeFile(w, r, rec.OutputPath)
}

func (s *server) handleSkip(w http.ResponseWriter, r *http.Request) {
	s.player.Skip()
	s.respondJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// statusFor maps an error to the HTTP status it is reported with.
func statusFor(err error) int {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, jobs.ErrQueueFull):
		return http.StatusServiceUnavailable
	case transition.KindOf(err) != 0:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// corsMiddleware allows any origin; the API carries no credentials.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// responseWriter captures the status code for logging.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush keeps the MP3 stream working behind the logger.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func loggingMiddleware(log logging.LeveledLogger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		log.Debugf("%s %s -> %d (%s)", r.Method, r.URL.Path, wrapped.statusCode, time.Since(started).Round(time.Microsecond))
	})
}
