package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"epochcal/internal/config"
	"epochcal/internal/timeconv"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubSource struct {
	ms    uint64
	err   error
	calls atomic.Int32
}

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) Now(context.Context) (uint64, error) {
	s.calls.Add(1)
	return s.ms, s.err
}

func newTestServer(t *testing.T, src *stubSource) (*Server, *quartz.Mock) {
	t.Helper()
	clk := quartz.NewMock(t)
	s := NewServer(config.DefaultConfig(), src, timeconv.UTC)
	s.clk = clk
	return s, clk
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, &stubSource{})
	rec := get(t, s.Handler(), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestDecode(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, &stubSource{})
	h := s.Handler()

	rec := get(t, h, "/api/decode?ms=1704067199998&tz=Asia/Shanghai")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, dateTimeResponse{
		UnixMillis:    1704067199998,
		Year:          2024,
		Month:         1,
		Day:           1,
		Hour:          7,
		Minute:        59,
		Second:        59,
		Millisecond:   998,
		Timezone:      "Asia/Shanghai",
		OffsetSeconds: 28800,
	}, decodeBody[dateTimeResponse](t, rec))

	rec = get(t, h, "/api/decode?s=1704067199")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, dateTimeResponse{
		UnixMillis: 1704067199000,
		Year:       2023,
		Month:      12,
		Day:        31,
		Hour:       23,
		Minute:     59,
		Second:     59,
		Timezone:   "UTC",
	}, decodeBody[dateTimeResponse](t, rec))
}

func TestDecode_BadRequests(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, &stubSource{})
	h := s.Handler()

	for _, target := range []string{
		"/api/decode",
		"/api/decode?ms=1&s=1",
		"/api/decode?ms=-1",
		"/api/decode?ms=abc",
		"/api/decode?s=1.5",
		"/api/decode?s=18446744073709552",
		"/api/decode?ms=1&tz=Mars/Olympus",
	} {
		rec := get(t, h, target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		body := decodeBody[map[string]string](t, rec)
		assert.NotEmpty(t, body["error"], target)
	}

	// The largest accepted seconds value still decodes.
	rec := get(t, h, "/api/decode?s=18446744073709551")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTimezones(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, &stubSource{})
	rec := get(t, s.Handler(), "/api/timezones")
	require.Equal(t, http.StatusOK, rec.Code)

	zones := decodeBody[[]timezoneDTO](t, rec)
	require.Len(t, zones, len(timeconv.Timezones()))
	assert.Equal(t, timezoneDTO{Name: "UTC", OffsetSeconds: 0}, zones[0])
	assert.Contains(t, zones, timezoneDTO{Name: "EST", OffsetSeconds: -18000})
}

func TestNow_CachesAndExtrapolates(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	src := &stubSource{ms: 1704067199000}
	s, clk := newTestServer(t, src)
	h := s.Handler()

	rec := get(t, h, "/api/now?tz=Asia/Seoul")
	require.Equal(t, http.StatusOK, rec.Code)
	first := decodeBody[dateTimeResponse](t, rec)
	assert.Equal(t, "stub", first.Source)
	assert.EqualValues(t, 1704067199000, first.UnixMillis)
	assert.Equal(t, "Asia/Seoul", first.Timezone)
	assert.EqualValues(t, 8, first.Hour)

	clk.Advance(500 * time.Millisecond).MustWait(ctx)
	second := decodeBody[dateTimeResponse](t, get(t, h, "/api/now"))
	assert.EqualValues(t, 1704067199500, second.UnixMillis)
	assert.Equal(t, "UTC", second.Timezone)
	assert.EqualValues(t, 1, src.calls.Load())

	clk.Advance(time.Second).MustWait(ctx)
	third := decodeBody[dateTimeResponse](t, get(t, h, "/api/now"))
	assert.EqualValues(t, 1704067199000, third.UnixMillis)
	assert.EqualValues(t, 2, src.calls.Load())
}

func TestNow_SourceError(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, &stubSource{err: errors.New("nack")})
	rec := get(t, s.Handler(), "/api/now")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestBasicAuth(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "secret"}
	h := NewServer(cfg, &stubSource{}, timeconv.UTC).Handler()

	assert.Equal(t, http.StatusOK, get(t, h, "/health").Code)

	rec := get(t, h, "/api/timezones")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

	req := httptest.NewRequest(http.MethodGet, "/api/timezones", nil)
	req.SetBasicAuth("admin", "wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/timezones", nil)
	req.SetBasicAuth("admin", "secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStartServer_ShutsDownOnCancel(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Listen = "127.0.0.1:0"
	s := NewServer(cfg, &stubSource{}, timeconv.UTC)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- StartServer(ctx, s) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}
