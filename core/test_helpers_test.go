package core

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type capturedCounter struct {
	name  string
	value int64
	tags  map[string]string
}

type capturedHistogram struct {
	name  string
	value float64
	tags  map[string]string
}

type captureMetricsRecorder struct {
	mu         sync.Mutex
	counters   []capturedCounter
	histograms []capturedHistogram
}

func (m *captureMetricsRecorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = append(m.counters, capturedCounter{name: name, value: value, tags: cloneTags(tags)})
}

func (m *captureMetricsRecorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms = append(m.histograms, capturedHistogram{name: name, value: value, tags: cloneTags(tags)})
}

func (m *captureMetricsRecorder) counter(name string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total int64
	for _, item := range m.counters {
		if item.name == name {
			total += item.value
		}
	}
	return total
}

type capturedLog struct {
	level  string
	msg    string
	fields map[string]any
}

type captureLogger struct {
	mu       *sync.Mutex
	records  *[]capturedLog
	defaults map[string]any
}

func newCaptureLogger() *captureLogger {
	records := []capturedLog{}
	return &captureLogger{mu: &sync.Mutex{}, records: &records, defaults: map[string]any{}}
}

func (l *captureLogger) WithFields(fields map[string]any) Logger {
	merged := cloneFields(l.defaults)
	for key, value := range fields {
		merged[key] = value
	}
	return &captureLogger{mu: l.mu, records: l.records, defaults: merged}
}

func (l *captureLogger) Trace(msg string, args ...any) { l.record("trace", msg, args...) }
func (l *captureLogger) Debug(msg string, args ...any) { l.record("debug", msg, args...) }
func (l *captureLogger) Info(msg string, args ...any)  { l.record("info", msg, args...) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args...) }
func (l *captureLogger) Error(msg string, args ...any) { l.record("error", msg, args...) }
func (l *captureLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args...) }

func (l *captureLogger) WithContext(context.Context) Logger {
	return &captureLogger{mu: l.mu, records: l.records, defaults: cloneFields(l.defaults)}
}

func (l *captureLogger) record(level string, msg string, args ...any) {
	fields := cloneFields(l.defaults)
	for index := 0; index+1 < len(args); index += 2 {
		key, ok := args[index].(string)
		if !ok {
			continue
		}
		fields[key] = args[index+1]
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.records = append(*l.records, capturedLog{level: level, msg: msg, fields: fields})
}

func (l *captureLogger) snapshot() []capturedLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	items := *l.records
	out := make([]capturedLog, len(items))
	copy(out, items)
	return out
}

type capturedReport struct {
	err    error
	fields map[string]any
}

type captureSink struct {
	mu      sync.Mutex
	reports []capturedReport
}

func (s *captureSink) Report(_ context.Context, err error, fields map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, capturedReport{err: err, fields: cloneFields(fields)})
}

func (s *captureSink) snapshot() []capturedReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]capturedReport(nil), s.reports...)
}

type countingSignal struct {
	calls atomic.Int64
}

func (s *countingSignal) SignalUnauthenticated(context.Context, error) {
	s.calls.Add(1)
}

// stubTransport accepts requests carrying "Bearer <valid>" and rejects every
// other credential with a 401 AUTH_EXPIRED body.
type stubTransport struct {
	kind  string
	calls atomic.Int64
	valid atomic.Value

	mu       sync.Mutex
	requests []TransportRequest

	handle func(req TransportRequest) (TransportResponse, error)
}

func newStubTransport(valid string) *stubTransport {
	transport := &stubTransport{kind: "rest"}
	transport.valid.Store(valid)
	return transport
}

func (t *stubTransport) Kind() string { return t.kind }

func (t *stubTransport) Do(ctx context.Context, req TransportRequest) (TransportResponse, error) {
	t.calls.Add(1)
	t.mu.Lock()
	t.requests = append(t.requests, req)
	t.mu.Unlock()
	if t.handle != nil {
		return t.handle(req)
	}
	if err := ctx.Err(); err != nil {
		return TransportResponse{}, err
	}
	valid, _ := t.valid.Load().(string)
	if req.Headers["Authorization"] == "Bearer "+valid {
		return TransportResponse{StatusCode: http.StatusOK, Body: []byte(`{"ok":true}`)}, nil
	}
	return expiredResponse(), nil
}

func (t *stubTransport) authorizations() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.requests))
	for _, req := range t.requests {
		out = append(out, req.Headers["Authorization"])
	}
	return out
}

func expiredResponse() TransportResponse {
	return TransportResponse{
		StatusCode: http.StatusUnauthorized,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       []byte(`{"code":"AUTH_EXPIRED","message":"token expired"}`),
	}
}

type countingProvider struct {
	calls atomic.Int64
	fn    func(ctx context.Context, call int64) (Credential, error)
}

func (p *countingProvider) Obtain(ctx context.Context) (Credential, error) {
	call := p.calls.Add(1)
	if p.fn == nil {
		return "fresh", nil
	}
	return p.fn(ctx, call)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Classifier.CredentialInvalidCodes = []string{"AUTH_EXPIRED", "AUTH_INVALID"}
	return cfg
}

type clientHarness struct {
	client    *Client
	transport *stubTransport
	provider  *countingProvider
	store     *MemoryCredentialStore
	sink      *captureSink
	signal    *countingSignal
}

func newClientHarness(t *testing.T, cfg Config, initial Credential, opts ...Option) *clientHarness {
	t.Helper()
	h := &clientHarness{
		transport: newStubTransport("fresh"),
		provider:  &countingProvider{},
		store:     NewMemoryCredentialStore(""),
		sink:      &captureSink{},
		signal:    &countingSignal{},
	}
	base := []Option{
		WithTransport(h.transport),
		WithCredentialProvider(h.provider),
		WithCredentialStore(h.store),
		WithReportingSink(h.sink),
		WithUnauthenticatedSignal(h.signal),
		WithInitialCredential(initial),
	}
	client, err := NewClient(cfg, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	h.client = client
	return h
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", strings.TrimSpace(what))
}

type stubLoggerProvider struct {
	logger Logger
}

func (p stubLoggerProvider) GetLogger(string) Logger {
	return p.logger
}
