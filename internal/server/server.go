// Package server exposes the listings and the auction map over HTTP.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sheriff-sales/internal/model"
	"github.com/sells-group/sheriff-sales/internal/pipeline"
	"github.com/sells-group/sheriff-sales/internal/reconcile"
	"github.com/sells-group/sheriff-sales/internal/render"
	"github.com/sells-group/sheriff-sales/internal/scheduler"
	"github.com/sells-group/sheriff-sales/internal/store"
)

// MapRenderer redraws the current auction's map.
type MapRenderer interface {
	RenderCurrent(ctx context.Context) (*render.Output, time.Time, error)
}

// Runner triggers pipeline cycles one at a time.
type Runner interface {
	TryRun(ctx context.Context) (*pipeline.RunResult, error)
	Running() bool
	Last() *model.Run
}

// Config wires a Server.
type Config struct {
	Store       store.Store
	Reconciler  *reconcile.Reconciler
	Maps        MapRenderer
	Runner      Runner
	KMLPath     string
	CORSOrigins []string
	// BaseContext is used for cycles started by a request; they outlive it.
	BaseContext context.Context
}

// Server holds the HTTP handlers.
type Server struct {
	cfg Config
}

// New creates a Server.
func New(cfg Config) *Server {
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}
	return &Server{cfg: cfg}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/runs/last", s.lastRun)

		r.Route("/houses", func(r chi.Router) {
			r.Get("/", s.listHouses)
			r.Post("/", s.saveHouses)
			r.Post("/refresh", s.refresh)
			r.Get("/map", s.downloadMap)
			r.Get("/{auctionNumber}", s.getHouse)
			r.Patch("/{auctionNumber}", s.patchHouse)
			r.Delete("/{auctionNumber}", s.deleteHouse)
		})
	})
	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// listHouses returns listings, optionally limited by ?auctionID= or
// ?current=true.
func (s *Server) listHouses(w http.ResponseWriter, r *http.Request) {
	filter := store.ListingFilter{AuctionID: r.URL.Query().Get("auctionID")}
	if current, _ := strconv.ParseBool(r.URL.Query().Get("current")); current && filter.AuctionID == "" {
		id, err := s.cfg.Reconciler.CurrentAuctionID(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if id == "" {
			writeJSON(w, http.StatusOK, []model.Listing{})
			return
		}
		filter.AuctionID = id
	}

	listings, err := s.cfg.Store.ListListings(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if listings == nil {
		listings = []model.Listing{}
	}
	writeJSON(w, http.StatusOK, listings)
}

func (s *Server) getHouse(w http.ResponseWriter, r *http.Request) {
	l, err := s.cfg.Store.GetListing(r.Context(), chi.URLParam(r, "auctionNumber"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// patchHouse merges the request body onto the stored listing.
func (s *Server) patchHouse(w http.ResponseWriter, r *http.Request) {
	num := chi.URLParam(r, "auctionNumber")
	l, err := s.cfg.Store.GetListing(r.Context(), num)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if err := json.NewDecoder(r.Body).Decode(l); err != nil {
		writeError(w, http.StatusBadRequest, eris.Wrap(err, "server: decode listing"))
		return
	}
	l.AuctionNumber = num
	if err := s.cfg.Store.UpsertListing(r.Context(), l); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Location", "/api/v1/houses/"+num)
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) deleteHouse(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.Store.DeleteListing(r.Context(), chi.URLParam(r, "auctionNumber")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// saveHouses reconciles a client-supplied batch of listings.
func (s *Server) saveHouses(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Houses []model.Listing `json:"houses"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, eris.Wrap(err, "server: decode houses"))
		return
	}
	if len(req.Houses) == 0 {
		writeError(w, http.StatusBadRequest, eris.New("server: houses is required"))
		return
	}
	res, err := s.cfg.Reconciler.Reconcile(r.Context(), req.Houses)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// refresh starts a cycle in the background.
func (s *Server) refresh(w http.ResponseWriter, _ *http.Request) {
	if s.cfg.Runner == nil {
		writeError(w, http.StatusServiceUnavailable, eris.New("server: pipeline not configured"))
		return
	}
	if s.cfg.Runner.Running() {
		writeError(w, http.StatusConflict, scheduler.ErrBusy)
		return
	}

	go func() {
		res, err := s.cfg.Runner.TryRun(s.cfg.BaseContext)
		switch {
		case eris.Is(err, scheduler.ErrBusy):
			zap.L().Warn("server: refresh skipped, cycle already running")
		case err != nil:
			zap.L().Error("server: refresh failed", zap.Error(err))
		default:
			zap.L().Info("server: refresh complete",
				zap.String("auction_id", res.AuctionID),
				zap.Int("listings", len(res.Listings)),
			)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) lastRun(w http.ResponseWriter, _ *http.Request) {
	if s.cfg.Runner == nil {
		writeError(w, http.StatusNotFound, eris.New("server: no runs"))
		return
	}
	run := s.cfg.Runner.Last()
	if run == nil {
		writeError(w, http.StatusNotFound, eris.New("server: no runs"))
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// downloadMap redraws the map when possible and streams the file on disk.
// A failed redraw still serves the previous map.
func (s *Server) downloadMap(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Maps != nil {
		if _, _, err := s.cfg.Maps.RenderCurrent(r.Context()); err != nil {
			zap.L().Warn("server: map re-render failed, serving last map", zap.Error(err))
		}
	}

	data, err := os.ReadFile(s.cfg.KMLPath)
	if err != nil {
		if os.IsNotExist(err) {
			writeError(w, http.StatusNotFound, eris.New("server: map not rendered yet"))
			return
		}
		writeError(w, http.StatusInternalServerError, eris.Wrap(err, "server: read map"))
		return
	}

	h := w.Header()
	h.Set("Access-Control-Expose-Headers", "Content-Disposition")
	h.Set("Content-Type", render.KMLContentType)
	h.Set("Content-Length", strconv.Itoa(len(data)))
	h.Set("Content-Disposition", `attachment; filename="`+render.DownloadName+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func writeStoreError(w http.ResponseWriter, err error) {
	if eris.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeError(w, http.StatusInternalServerError, err)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("server: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		zap.L().Error("server: request failed", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("server: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
