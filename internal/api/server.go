package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/deckhaven/cardsync/internal/model"
	"github.com/deckhaven/cardsync/internal/store"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Server exposes the stored cards over a read-only JSON API.
type Server struct {
	store store.Store
	log   *zap.Logger
}

// NewServer builds a Server over the given store.
func NewServer(st store.Store) *Server {
	return &Server{store: st, log: zap.L().With(zap.String("component", "api"))}
}

// Router assembles the HTTP routes with CORS for the given origins.
func (s *Server) Router(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/api/cards", func(r chi.Router) {
		r.Get("/", s.handleSearch)
		r.Get("/random", s.handleRandom)
		r.Get("/{uuid}", s.handleGet)
	})
	return r
}

// cardSummary is one search result row.
type cardSummary struct {
	UUID     string  `json:"uuid"`
	Name     string  `json:"name"`
	SetCode  string  `json:"setCode"`
	Language string  `json:"language"`
	ImageURL string  `json:"imageUrl"`
	Summary  Summary `json:"summary"`
}

type searchResponse struct {
	Cards    []cardSummary `json:"cards"`
	Page     int           `json:"page"`
	PageSize int           `json:"pageSize"`
	Total    int64         `json:"total"`
}

// cardDetail is the full document view: identity, quotes per vendor and
// finish, and the complete dated history.
type cardDetail struct {
	model.StoredCard
	Quotes  []Quote        `json:"quotes"`
	History []HistoryPoint `json:"history"`
	Summary Summary        `json:"summary"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", defaultPageSize)
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	cards, total, err := s.store.Search(r.Context(), query, page, pageSize)
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	resp := searchResponse{
		Cards:    make([]cardSummary, 0, len(cards)),
		Page:     page,
		PageSize: pageSize,
		Total:    total,
	}
	for _, c := range cards {
		resp.Cards = append(resp.Cards, cardSummary{
			UUID:     c.UUID,
			Name:     c.Name,
			SetCode:  c.SetCode,
			Language: c.Language,
			ImageURL: c.ImageURL,
			Summary:  Summarize(c.Prices),
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	uuid := chi.URLParam(r, "uuid")
	card, err := s.store.Get(r.Context(), uuid)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	if card == nil {
		s.writeError(w, http.StatusNotFound, "card not found")
		return
	}
	s.writeJSON(w, http.StatusOK, cardDetail{
		StoredCard: *card,
		Quotes:     Quotes(card.Prices),
		History:    History(card.Prices),
		Summary:    Summarize(card.Prices),
	})
}

func (s *Server) handleRandom(w http.ResponseWriter, r *http.Request) {
	card, err := s.store.Random(r.Context())
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	if card == nil {
		s.writeError(w, http.StatusNotFound, "no cards stored")
		return
	}
	s.writeJSON(w, http.StatusOK, cardDetail{
		StoredCard: *card,
		Quotes:     Quotes(card.Prices),
		History:    History(card.Prices),
		Summary:    Summarize(card.Prices),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	total, err := s.store.Count(r.Context())
	if err != nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"cards":  total,
	})
}

// Serve runs the API until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string, allowedOrigins []string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(allowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("api listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("write response failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request, err error) {
	s.log.Error("request failed",
		zap.String("path", r.URL.Path),
		zap.Error(err))
	s.writeError(w, http.StatusInternalServerError, "internal error")
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
