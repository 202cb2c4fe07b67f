// Package server exposes the geocoding pipeline and trail map data over HTTP
// for the mobile client.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/trailmix-app/trailgeo/internal/flagstore"
	"github.com/trailmix-app/trailgeo/internal/trails"
	"github.com/trailmix-app/trailgeo/pkg/geocode"
)

// Server wires the pipeline, flag store and trail service into an HTTP API.
type Server struct {
	pipeline *geocode.Pipeline
	flags    *flagstore.Store
	trails   *trails.Service
}

// New creates a Server. The trail service may be nil; its endpoint then
// returns 503.
func New(pipeline *geocode.Pipeline, flags *flagstore.Store, trailSvc *trails.Service) *Server {
	return &Server{pipeline: pipeline, flags: flags, trails: trailSvc}
}

// Handler builds the router with CORS and logging middleware.
func (s *Server) Handler(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPut, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/suggest", s.handleSuggest)
		r.Get("/details", s.handleDetails)
		r.Get("/reverse", s.handleReverse)
		r.Get("/trails", s.handleTrails)
		r.Get("/cache/stats", s.handleCacheStats)
		r.Delete("/cache", s.handleCacheClear)
		r.Get("/flags", s.handleFlagList)
		r.Get("/flags/{key}", s.handleFlagGet)
		r.Put("/flags/{key}", s.handleFlagPut)
	})
	return r
}

// ListenAndServe runs the server until ctx is canceled, then drains.
func (s *Server) ListenAndServe(ctx context.Context, port int, allowedOrigins []string) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(allowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("server: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("server: listening", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server: listen")
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("q")
	if query == "" {
		respondError(w, http.StatusBadRequest, "q is required")
		return
	}

	opts := geocode.SuggestOptions{CountryCode: q.Get("country")}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		opts.Limit = limit
	}
	loc, ok, err := parseLatLng(q.Get("lat"), q.Get("lng"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if ok {
		opts.Location = &loc
	}
	if raw := q.Get("viewbox"); raw != "" {
		vb, err := parseViewbox(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		opts.Viewbox = vb
	}

	results, err := s.pipeline.Suggest(r.Context(), query, opts)
	if err != nil {
		zap.L().Error("server: suggest failed", zap.String("query", query), zap.Error(err))
		respondError(w, http.StatusBadGateway, "all providers failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleDetails(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := geocode.DetailsRequest{
		Provider: geocode.ProviderName(q.Get("provider")),
		PlaceID:  q.Get("place_id"),
	}
	loc, ok, err := parseLatLng(q.Get("lat"), q.Get("lng"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if ok {
		req.Location = &loc
	}

	details, err := s.pipeline.Details(r.Context(), req)
	if err != nil {
		if req.PlaceID == "" && req.Location == nil || req.PlaceID != "" && req.Provider == "" {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		zap.L().Error("server: details failed", zap.Error(err))
		respondError(w, http.StatusBadGateway, "details lookup failed")
		return
	}
	respondJSON(w, http.StatusOK, details)
}

func (s *Server) handleReverse(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	loc, ok, err := parseLatLng(q.Get("lat"), q.Get("lng"))
	if err != nil || !ok {
		respondError(w, http.StatusBadRequest, "lat and lng are required")
		return
	}

	result, err := s.pipeline.Reverse(r.Context(), loc)
	if err != nil {
		zap.L().Error("server: reverse failed", zap.Error(err))
		respondError(w, http.StatusBadGateway, "reverse lookup failed")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleTrails(w http.ResponseWriter, r *http.Request) {
	if s.trails == nil {
		respondError(w, http.StatusServiceUnavailable, "trail data is not configured")
		return
	}

	q := r.URL.Query()
	loc, ok, err := parseLatLng(q.Get("lat"), q.Get("lng"))
	if err != nil || !ok {
		respondError(w, http.StatusBadRequest, "lat and lng are required")
		return
	}

	req := trails.MapRequest{
		Lat:      loc.Lat,
		Lng:      loc.Lng,
		RadiusKm: trails.DefaultMapRadiusKm,
		Style:    q.Get("style"),
		Title:    q.Get("title"),
	}
	if raw := q.Get("radius"); raw != "" {
		if req.RadiusKm, err = strconv.ParseFloat(raw, 64); err != nil {
			respondError(w, http.StatusBadRequest, "radius must be a number")
			return
		}
	}
	if raw := q.Get("zoom"); raw != "" {
		if req.Zoom, err = strconv.Atoi(raw); err != nil {
			respondError(w, http.StatusBadRequest, "zoom must be an integer")
			return
		}
	}

	data, err := s.trails.MapData(r.Context(), req)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, data)
}

func (s *Server) handleCacheStats(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.pipeline.Stats())
}

func (s *Server) handleCacheClear(w http.ResponseWriter, _ *http.Request) {
	s.pipeline.ClearCaches()
	respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleFlagList(w http.ResponseWriter, r *http.Request) {
	if s.flags == nil {
		respondError(w, http.StatusServiceUnavailable, "flag store is not configured")
		return
	}
	flags, err := s.flags.List(r.Context())
	if err != nil {
		zap.L().Error("server: list flags failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "flag store error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"flags": flags})
}

func (s *Server) handleFlagGet(w http.ResponseWriter, r *http.Request) {
	if s.flags == nil {
		respondError(w, http.StatusServiceUnavailable, "flag store is not configured")
		return
	}
	key := chi.URLParam(r, "key")
	value, err := s.flags.Bool(r.Context(), key)
	if err != nil {
		respondError(w, http.StatusNotFound, fmt.Sprintf("unknown flag %q", key))
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"key": key, "value": value})
}

func (s *Server) handleFlagPut(w http.ResponseWriter, r *http.Request) {
	if s.flags == nil {
		respondError(w, http.StatusServiceUnavailable, "flag store is not configured")
		return
	}
	key := chi.URLParam(r, "key")
	var body struct {
		Value *bool `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Value == nil {
		respondError(w, http.StatusBadRequest, "body must be {\"value\": true|false}")
		return
	}
	if err := s.flags.SetBool(r.Context(), key, *body.Value); err != nil {
		zap.L().Error("server: set flag failed", zap.String("key", key), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "flag store error")
		return
	}
	// Flag flips surface within the pipeline's flag cache TTL; invalidating
	// just that cache makes them immediate without dropping warm results.
	s.pipeline.InvalidateFlags()
	respondJSON(w, http.StatusOK, map[string]any{"key": key, "value": *body.Value})
}

func parseLatLng(latRaw, lngRaw string) (geocode.Location, bool, error) {
	if latRaw == "" && lngRaw == "" {
		return geocode.Location{}, false, nil
	}
	if latRaw == "" || lngRaw == "" {
		return geocode.Location{}, false, eris.New("lat and lng must be supplied together")
	}
	lat, err := strconv.ParseFloat(latRaw, 64)
	if err != nil {
		return geocode.Location{}, false, eris.New("lat must be a number")
	}
	lng, err := strconv.ParseFloat(lngRaw, 64)
	if err != nil {
		return geocode.Location{}, false, eris.New("lng must be a number")
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return geocode.Location{}, false, eris.New("lat/lng out of range")
	}
	return geocode.Location{Lat: lat, Lng: lng}, true, nil
}

// parseViewbox parses "minLng,minLat,maxLng,maxLat".
func parseViewbox(raw string) (*geocode.BBox, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return nil, eris.New("viewbox must be minLng,minLat,maxLng,maxLat")
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, eris.New("viewbox values must be numbers")
		}
		vals[i] = v
	}
	return &geocode.BBox{MinLng: vals[0], MinLat: vals[1], MaxLng: vals[2], MaxLat: vals[3]}, nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

type ctxKey string

const requestIDKey ctxKey = "request_id"

// requestID stamps each request with a uuid, echoed in the response header.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// requestLogger logs method, path, status and latency through the global zap
// logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		id, _ := r.Context().Value(requestIDKey).(string)
		zap.L().Info("server: request",
			zap.String("request_id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
