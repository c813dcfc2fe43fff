package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/devghori1264/aerophoenix/craftd/internal/hardware"
	"github.com/devghori1264/aerophoenix/craftd/internal/models"
	natsclient "github.com/devghori1264/aerophoenix/craftd/internal/nats"
)

const (
	RequestIDHeader = "X-Request-Id"

	unmatchedRoute = "unmatched"
	tracerName     = "github.com/devghori1264/aerophoenix/craftd/internal/api"
)

var (
	indexBody    = []byte(`<a href="test.html">test.html</a>`)
	notFoundBody = []byte("Not Found")
)

// EventPublisher receives an event after /craft or /stats is served.
type EventPublisher interface {
	PublishEvent(ctx context.Context, subject string, ev natsclient.Event) error
}

// Options wires the router's collaborators. Zero values fall back to a
// nop logger, the live host, no events, no metrics and no tracing.
type Options struct {
	Logger    *zap.Logger
	Cores     hardware.CoreCounter
	Publisher EventPublisher
	Subject   string
	Metrics   *Metrics
	Tracer    trace.TracerProvider

	// Marshal encodes response bodies; json.Marshal when nil.
	Marshal func(v any) ([]byte, error)
}

type route struct {
	method string
	path   string
}

type Handler struct {
	log       *zap.Logger
	cores     hardware.CoreCounter
	publisher EventPublisher
	subject   string
	metrics   *Metrics
	tracer    trace.Tracer
	marshal   func(v any) ([]byte, error)

	routes map[route]http.HandlerFunc
}

func NewHTTPHandler(opts Options) http.Handler {
	h := &Handler{
		log:       opts.Logger,
		cores:     opts.Cores,
		publisher: opts.Publisher,
		subject:   opts.Subject,
		metrics:   opts.Metrics,
		marshal:   opts.Marshal,
	}
	if h.log == nil {
		h.log = zap.NewNop()
	}
	if h.cores == nil {
		h.cores = hardware.NewHost()
	}
	if h.subject == "" {
		h.subject = natsclient.DefaultSubject
	}
	if h.marshal == nil {
		h.marshal = json.Marshal
	}
	tp := opts.Tracer
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	h.tracer = tp.Tracer(tracerName)

	h.routes = map[route]http.HandlerFunc{
		{http.MethodGet, "/"}:           h.handleIndex,
		{http.MethodGet, "/index.html"}: h.handleIndex,
		{http.MethodGet, "/craft"}:      h.handleCraft,
		{http.MethodGet, "/stats"}:      h.handleStats,
	}
	return h
}

// ServeHTTP dispatches on the exact (method, path) pair. Anything that is
// not in the table is a 404, including known paths with another method.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	reqID := uuid.NewString()
	w.Header().Set(RequestIDHeader, reqID)

	label := r.URL.Path
	fn, ok := h.routes[route{r.Method, r.URL.Path}]
	if !ok {
		label = unmatchedRoute
		fn = h.handleNotFound
	}

	ctx, span := h.tracer.Start(r.Context(), r.Method+" "+label, trace.WithSpanKind(trace.SpanKindServer))
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	fn(rec, r.WithContext(ctx))
	span.SetAttributes(
		attribute.String("http.request.method", r.Method),
		attribute.String("url.path", r.URL.Path),
		attribute.Int("http.response.status_code", rec.status),
		attribute.String("request.id", reqID),
	)
	span.End()

	dur := time.Since(start)
	h.metrics.observe(label, rec.status, dur)
	h.log.Debug("request",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("route", label),
		zap.Int("status", rec.status),
		zap.Duration("duration", dur),
		zap.String("request_id", reqID),
	)
}

func (h *Handler) handleIndex(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write(indexBody)
}

func (h *Handler) handleCraft(w http.ResponseWriter, r *http.Request) {
	body, err := h.marshal(models.ExampleCraft())
	if err != nil {
		h.log.Warn("serializing json", zap.String("route", "/craft"), zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write(notFoundBody)
		return
	}
	h.log.Debug("success", zap.ByteString("json", body))
	writeRawJSON(w, http.StatusOK, body)
	h.publish(r.Context(), "craft.served", "/craft", body)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	logical, physical, err := h.cores.Counts(r.Context())
	if err != nil {
		h.log.Warn("reading core counts", zap.String("route", "/stats"), zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	body, err := h.marshal(models.NewHardware(logical, physical))
	if err != nil {
		h.log.Warn("serializing json", zap.String("route", "/stats"), zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	h.metrics.setCores(logical, physical)
	writeRawJSON(w, http.StatusOK, body)
	h.publish(r.Context(), "stats.served", "/stats", body)
}

func (h *Handler) handleNotFound(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNotFound)
}

// publish never affects the response; failures are only logged.
func (h *Handler) publish(ctx context.Context, kind, path string, body []byte) {
	if h.publisher == nil {
		return
	}
	ev := natsclient.NewEvent(kind, path, body)
	if err := h.publisher.PublishEvent(ctx, h.subject, ev); err != nil {
		h.log.Warn("publish failed", zap.String("event", kind), zap.Error(err))
	}
}

func writeRawJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wroteHeader {
		s.status = code
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	s.wroteHeader = true
	return s.ResponseWriter.Write(b)
}
