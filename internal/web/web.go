package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/quartz"

	"epochcal/internal/clock"
	"epochcal/internal/config"
	appLog "epochcal/internal/log"
	"epochcal/internal/timeconv"
)

// sampleCacheTTL is how long a clock reading is reused. Cached readings are
// advanced by the elapsed host time, so /api/now stays accurate while the
// RTC is hit at most once per TTL.
const sampleCacheTTL = time.Second

// Server exposes the decoder and the configured clock source over HTTP.
type Server struct {
	cfg  *config.Config
	src  clock.Source
	zone timeconv.Timezone
	clk  quartz.Clock
	mux  *http.ServeMux

	sampleMu    sync.RWMutex
	sampleCache *sampleCache
}

// sampleCache holds the last raw clock reading and when it was taken.
type sampleCache struct {
	source     string
	unixMillis uint64
	updatedAt  time.Time
}

// NewServer constructs a new Server. zone is the default timezone for
// requests without a tz parameter.
func NewServer(cfg *config.Config, src clock.Source, zone timeconv.Timezone) *Server {
	s := &Server{
		cfg:  cfg,
		src:  src,
		zone: zone,
		clk:  quartz.NewReal(),
		mux:  http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty username or password disables auth.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="epochcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// StartServer serves s on cfg.Listen until ctx is canceled, then shuts down
// gracefully.
func StartServer(ctx context.Context, s *Server) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/now", s.handleNow)
	s.mux.HandleFunc("/api/decode", s.handleDecode)
	s.mux.HandleFunc("/api/timezones", s.handleTimezones)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// dateTimeResponse is the JSON shape for /api/now and /api/decode.
type dateTimeResponse struct {
	Source        string `json:"source,omitempty"`
	UnixMillis    uint64 `json:"unix_ms"`
	Year          uint32 `json:"year"`
	Month         uint8  `json:"month"`
	Day           uint8  `json:"day"`
	Hour          uint8  `json:"hour"`
	Minute        uint8  `json:"minute"`
	Second        uint8  `json:"second"`
	Millisecond   uint16 `json:"millisecond"`
	Timezone      string `json:"timezone"`
	OffsetSeconds int32  `json:"offset_seconds"`
}

// timezoneDTO is one entry of /api/timezones.
type timezoneDTO struct {
	Name          string `json:"name"`
	OffsetSeconds int32  `json:"offset_seconds"`
}

func newDateTimeResponse(source string, ms uint64, dt timeconv.DateTime) dateTimeResponse {
	return dateTimeResponse{
		Source:        source,
		UnixMillis:    ms,
		Year:          dt.Year,
		Month:         dt.Month,
		Day:           dt.Day,
		Hour:          dt.Hour,
		Minute:        dt.Minute,
		Second:        dt.Second,
		Millisecond:   dt.Millisecond,
		Timezone:      dt.Timezone.String(),
		OffsetSeconds: dt.Timezone.Offset(),
	}
}

// handleNow reads the clock source and decodes it.
//
// GET /api/now?tz=Asia/Seoul
//   - tz: zone name (default: configured timezone)
func (s *Server) handleNow(w http.ResponseWriter, r *http.Request) {
	tz, ok := s.zoneParam(w, r)
	if !ok {
		return
	}

	source, ms, err := s.readClock(r.Context())
	if err != nil {
		appLog.Error("clock read failed", err, "source", s.src.Name())
		writeError(w, http.StatusServiceUnavailable, "failed to read clock")
		return
	}

	writeJSON(w, http.StatusOK, newDateTimeResponse(source, ms, timeconv.FromUnixMillis(ms, tz)))
}

// readClock returns a fresh or cache-extrapolated reading.
func (s *Server) readClock(ctx context.Context) (string, uint64, error) {
	s.sampleMu.RLock()
	sc := s.sampleCache
	s.sampleMu.RUnlock()
	if sc != nil {
		if elapsed := s.clk.Since(sc.updatedAt); elapsed >= 0 && elapsed < sampleCacheTTL {
			return sc.source, sc.unixMillis + uint64(elapsed.Milliseconds()), nil
		}
	}

	ms, err := s.src.Now(ctx)
	if err != nil {
		return "", 0, err
	}

	s.sampleMu.Lock()
	s.sampleCache = &sampleCache{
		source:     s.src.Name(),
		unixMillis: ms,
		updatedAt:  s.clk.Now(),
	}
	s.sampleMu.Unlock()

	return s.src.Name(), ms, nil
}

// handleDecode decodes a caller-supplied timestamp.
//
// GET /api/decode?ms=1704067199998&tz=Asia/Shanghai
// GET /api/decode?s=1704067199
//   - exactly one of ms / s is required
//   - s must not exceed timeconv.MaxUnixSecs
func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
	tz, ok := s.zoneParam(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	msRaw, secsRaw := q.Get("ms"), q.Get("s")
	if (msRaw == "") == (secsRaw == "") {
		writeError(w, http.StatusBadRequest, "exactly one of ms or s is required")
		return
	}

	var ms uint64
	if msRaw != "" {
		n, err := strconv.ParseUint(msRaw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "ms must be an unsigned 64-bit integer")
			return
		}
		ms = n
	} else {
		n, err := strconv.ParseUint(secsRaw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "s must be an unsigned 64-bit integer")
			return
		}
		if n > timeconv.MaxUnixSecs {
			writeError(w, http.StatusBadRequest, "s overflows the millisecond range")
			return
		}
		ms = n * timeconv.MillisecondsPerSecond
	}

	appLog.Debug("api decode request", "unix_ms", ms, "timezone", tz)
	writeJSON(w, http.StatusOK, newDateTimeResponse("", ms, timeconv.FromUnixMillis(ms, tz)))
}

func (s *Server) handleTimezones(w http.ResponseWriter, _ *http.Request) {
	zones := timeconv.Timezones()
	out := make([]timezoneDTO, 0, len(zones))
	for _, tz := range zones {
		out = append(out, timezoneDTO{Name: tz.String(), OffsetSeconds: tz.Offset()})
	}
	writeJSON(w, http.StatusOK, out)
}

// zoneParam resolves the tz query parameter, writing a 400 on failure.
func (s *Server) zoneParam(w http.ResponseWriter, r *http.Request) (timeconv.Timezone, bool) {
	name := r.URL.Query().Get("tz")
	if name == "" {
		return s.zone, true
	}
	tz, err := timeconv.ParseTimezone(name)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return timeconv.UTC, false
	}
	return tz, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
