package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/sync/errgroup"

	"github.com/devghori1264/aerophoenix/craftd/internal/hardware"
	"github.com/devghori1264/aerophoenix/craftd/internal/models"
	natsclient "github.com/devghori1264/aerophoenix/craftd/internal/nats"
)

const craftJSON = `{"fuel":12,"vel_x":1,"vel_y":2,"vel_z":2,"location":{"x":10,"y":22,"z":9}}`

var fixedCores = hardware.CounterFunc(func(context.Context) (int, int, error) {
	return 16, 8, nil
})

type recordingPublisher struct {
	mu     sync.Mutex
	events []natsclient.Event
	err    error
}

func (p *recordingPublisher) PublishEvent(_ context.Context, subject string, ev natsclient.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func serve(h http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestIndex(t *testing.T) {
	h := NewHTTPHandler(Options{Cores: fixedCores})
	for _, path := range []string{"/", "/index.html"} {
		rec := serve(h, http.MethodGet, path)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, `<a href="test.html">test.html</a>`, rec.Body.String(), path)
		assert.NotEmpty(t, rec.Header().Get(RequestIDHeader), path)
	}
}

func TestCraft(t *testing.T) {
	h := NewHTTPHandler(Options{Cores: fixedCores})
	rec := serve(h, http.MethodGet, "/craft")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, craftJSON, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var c models.Craft
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c))
	assert.Equal(t, models.ExampleCraft(), c)
}

func TestStats(t *testing.T) {
	h := NewHTTPHandler(Options{Cores: fixedCores})
	rec := serve(h, http.MethodGet, "/stats")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"cpu_count":8,"core_count":16}`, rec.Body.String())
}

func TestStatsLiveHost(t *testing.T) {
	h := NewHTTPHandler(Options{})
	rec := serve(h, http.MethodGet, "/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var hw models.Hardware
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hw))
	assert.GreaterOrEqual(t, hw.CPUCount, uint(1))
	assert.GreaterOrEqual(t, hw.CoreCount, uint(1))
}

func TestUnmatchedRoutes(t *testing.T) {
	h := NewHTTPHandler(Options{Cores: fixedCores})
	cases := []struct{ method, path string }{
		{http.MethodGet, "/nope"},
		{http.MethodGet, "/craft/"},
		{http.MethodGet, "/index.htm"},
		{http.MethodGet, "/test.html"},
		{http.MethodPost, "/"},
		{http.MethodPut, "/craft"},
		{http.MethodDelete, "/stats"},
		{http.MethodHead, "/index.html"},
	}
	for _, tc := range cases {
		rec := serve(h, tc.method, tc.path)
		assert.Equal(t, http.StatusNotFound, rec.Code, "%s %s", tc.method, tc.path)
		assert.Empty(t, rec.Body.String(), "%s %s", tc.method, tc.path)
	}
}

func TestCraftSerializationFailure(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	pub := &recordingPublisher{}
	h := NewHTTPHandler(Options{
		Logger:    zap.New(core),
		Publisher: pub,
		Marshal:   func(any) ([]byte, error) { return nil, errors.New("encoder broke") },
	})

	rec := serve(h, http.MethodGet, "/craft")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Not Found", rec.Body.String())
	assert.Equal(t, 1, logs.FilterMessage("serializing json").Len())
	assert.Empty(t, pub.events)
}

func TestStatsFailuresFailClosed(t *testing.T) {
	cases := map[string]Options{
		"introspection": {
			Cores: hardware.CounterFunc(func(context.Context) (int, int, error) {
				return 0, 0, hardware.ErrNoCores
			}),
		},
		"serialization": {
			Cores:   fixedCores,
			Marshal: func(any) ([]byte, error) { return nil, errors.New("encoder broke") },
		},
	}
	for name, opts := range cases {
		t.Run(name, func(t *testing.T) {
			core, logs := observer.New(zapcore.WarnLevel)
			opts.Logger = zap.New(core)
			rec := serve(NewHTTPHandler(opts), http.MethodGet, "/stats")
			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.Empty(t, rec.Body.String())
			assert.Equal(t, 1, logs.Len())
		})
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	h := NewHTTPHandler(Options{Cores: fixedCores, Metrics: m})

	serve(h, http.MethodGet, "/craft")
	serve(h, http.MethodGet, "/craft")
	serve(h, http.MethodGet, "/stats")
	serve(h, http.MethodGet, "/missing")
	serve(h, http.MethodPost, "/craft")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("/craft", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("/stats", "200")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues(unmatchedRoute, "404")))
	assert.Equal(t, 16.0, testutil.ToFloat64(m.cores.WithLabelValues("logical")))
	assert.Equal(t, 8.0, testutil.ToFloat64(m.cores.WithLabelValues("physical")))

	mux := http.NewServeMux()
	RegisterMetrics(mux, reg)
	rec := serve(mux, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "craftd_http_requests_total")
}

func TestPublishesEvents(t *testing.T) {
	pub := &recordingPublisher{}
	h := NewHTTPHandler(Options{Cores: fixedCores, Publisher: pub})

	serve(h, http.MethodGet, "/")
	serve(h, http.MethodGet, "/craft")
	serve(h, http.MethodGet, "/stats")
	serve(h, http.MethodGet, "/nope")

	require.Len(t, pub.events, 2)
	assert.Equal(t, "craft.served", pub.events[0].Event)
	assert.Equal(t, "/craft", pub.events[0].Route)
	assert.JSONEq(t, craftJSON, string(pub.events[0].Payload))
	assert.Equal(t, "stats.served", pub.events[1].Event)
	assert.NotEqual(t, pub.events[0].ID, pub.events[1].ID)
}

func TestPublishFailureKeepsResponse(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	pub := &recordingPublisher{err: natsclient.ErrNotConnected}
	h := NewHTTPHandler(Options{Cores: fixedCores, Publisher: pub, Logger: zap.New(core)})

	rec := serve(h, http.MethodGet, "/craft")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, craftJSON, rec.Body.String())
	assert.Equal(t, 1, logs.FilterMessage("publish failed").Len())
}

func TestTracing(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	h := NewHTTPHandler(Options{Cores: fixedCores, Tracer: tp})

	serve(h, http.MethodGet, "/craft")
	serve(h, http.MethodPut, "/anything")

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "GET /craft", spans[0].Name())
	assert.Equal(t, "PUT unmatched", spans[1].Name())
}

func TestConcurrentRequests(t *testing.T) {
	srv := httptest.NewServer(NewHTTPHandler(Options{Cores: fixedCores}))
	defer srv.Close()

	want := map[string]string{
		"/":      `<a href="test.html">test.html</a>`,
		"/craft": craftJSON,
		"/stats": `{"cpu_count":8,"core_count":16}`,
	}

	var g errgroup.Group
	for i := 0; i < 30; i++ {
		for path, body := range want {
			g.Go(func() error {
				resp, err := http.Get(srv.URL + path)
				if err != nil {
					return err
				}
				defer resp.Body.Close()
				got, err := io.ReadAll(resp.Body)
				if err != nil {
					return err
				}
				if resp.StatusCode != http.StatusOK || string(got) != body {
					return fmt.Errorf("%s: status %d body %q", path, resp.StatusCode, got)
				}
				return nil
			})
		}
	}
	require.NoError(t, g.Wait())
}
