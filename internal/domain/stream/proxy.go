package stream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/lumenbrowse/lumen/internal/infrastructure/logging"
	"github.com/lumenbrowse/lumen/internal/infrastructure/monitoring"
	"github.com/lumenbrowse/lumen/internal/infrastructure/resilience"
	"github.com/lumenbrowse/lumen/internal/shared/id"
)

// DefaultIdleTimeout bounds how long a stream may go without a chunk.
const DefaultIdleTimeout = 30 * time.Second

// Request is one renderer-initiated chat stream request.
type Request struct {
	RequestID string
	TabKey    string
	Body      map[string]interface{}
}

// Result is the structured outcome returned to the IPC caller. Error
// paths resolve, never reject: every failure becomes {OK:false, ...}.
type Result struct {
	OK      bool   `json:"ok"`
	Status  int    `json:"status,omitempty"`
	Error   string `json:"error,omitempty"`
	Aborted bool   `json:"aborted,omitempty"`
	Timeout bool   `json:"timeout,omitempty"`
}

// AbortResult reports the outcome of an abort request.
type AbortResult struct {
	OK       bool `json:"ok"`
	Active   bool `json:"active"`
	Mismatch bool `json:"mismatch,omitempty"`
}

// FrameSink receives SSE frames addressed to one renderer surface.
type FrameSink interface {
	Frame(surfaceID, requestID, frame string)
}

// Options configures a Proxy.
type Options struct {
	// Endpoint is the backend chat-stream URL.
	Endpoint string
	// IdleTimeout overrides DefaultIdleTimeout when positive.
	IdleTimeout time.Duration
	Sink        FrameSink
	Breaker     *resilience.Breaker
	Client      *resty.Client
	Logger      *logging.Logger
	Metrics     *monitoring.Metrics
}

// Proxy relays chat requests to the backend as SSE streams, forwarding
// frames to renderer surfaces. Streams are keyed per (surface, logical
// tab) so tabs on the same surface can stream concurrently without a
// new request on one tab cancelling another tab's in-flight stream.
type Proxy struct {
	endpoint string
	idle     time.Duration
	sink     FrameSink
	breaker  *resilience.Breaker
	client   *resty.Client
	logger   *logging.Logger
	metrics  *monitoring.Metrics

	mu       sync.Mutex
	sessions map[sessionKey]*session
}

type sessionKey struct {
	surface string
	tab     string
}

// session is one independent streaming lane.
type session struct {
	requestID string
	cancel    context.CancelFunc

	mu       sync.Mutex
	aborted  bool
	timedOut bool
}

func (s *session) abort() {
	s.mu.Lock()
	s.aborted = true
	s.mu.Unlock()
	s.cancel()
}

func (s *session) timeout() {
	s.mu.Lock()
	s.timedOut = true
	s.mu.Unlock()
	s.cancel()
}

func (s *session) flags() (aborted, timedOut bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborted, s.timedOut
}

// NewProxy creates a streaming chat proxy.
func NewProxy(opts Options) *Proxy {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	client := opts.Client
	if client == nil {
		client = resty.New()
	}
	idle := opts.IdleTimeout
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	return &Proxy{
		endpoint: opts.Endpoint,
		idle:     idle,
		sink:     opts.Sink,
		breaker:  opts.Breaker,
		client:   client,
		logger:   logger.Component("stream"),
		metrics:  opts.Metrics,
		sessions: make(map[sessionKey]*session),
	}
}

// ActiveSessions reports the number of in-flight streams.
func (p *Proxy) ActiveSessions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

// HandleStream opens the backend stream and relays frames until the
// stream completes, is aborted, or idles out. It blocks for the
// stream's lifetime and always returns a structured result.
func (p *Proxy) HandleStream(ctx context.Context, surfaceID string, req Request) Result {
	requestID := req.RequestID
	if requestID == "" {
		requestID = id.NewRequestID().String()
	}
	key := sessionKey{surface: surfaceID, tab: req.TabKey}
	if key.tab == "" {
		// Synthesized per-surface lane for requests without a tab.
		key.tab = "surface:" + surfaceID
	}

	body := make(map[string]interface{}, len(req.Body)+2)
	for k, v := range req.Body {
		body[k] = v
	}
	body["stream"] = true
	body["request_id"] = requestID

	sctx, cancel := context.WithCancel(ctx)
	s := &session{requestID: requestID, cancel: cancel}

	p.mu.Lock()
	if old, ok := p.sessions[key]; ok {
		// At most one active stream per session key: the newcomer wins.
		old.abort()
	}
	p.sessions[key] = s
	p.mu.Unlock()
	defer p.deregister(key, s)
	defer cancel()

	if p.metrics != nil {
		p.metrics.StreamsActive.Inc()
		defer p.metrics.StreamsActive.Dec()
	}

	// The idle timer also covers a stuck connect: it only stops ticking
	// down when chunks arrive.
	timer := time.AfterFunc(p.idle, s.timeout)
	defer timer.Stop()

	var resp *resty.Response
	do := func() error {
		var err error
		resp, err = p.client.R().
			SetContext(sctx).
			SetHeader("Accept", "text/event-stream").
			SetHeader("Content-Type", "application/json").
			SetDoNotParseResponse(true).
			SetBody(body).
			Post(p.endpoint)
		if err != nil {
			return err
		}
		if resp.StatusCode() >= 500 {
			return errors.New(resp.Status())
		}
		return nil
	}

	var err error
	if p.breaker != nil {
		err = p.breaker.Do(do)
	} else {
		err = do()
	}

	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
		return p.fail(surfaceID, requestID, "rejected", Result{Error: "backend unavailable: " + err.Error()})
	}
	if err != nil && resp == nil {
		return p.finishWithError(surfaceID, requestID, s, err, 0)
	}
	if resp != nil {
		defer func() {
			if raw := resp.RawBody(); raw != nil {
				raw.Close()
			}
		}()
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 || resp.RawBody() == nil {
		status := resp.StatusCode()
		p.logger.Warn("backend rejected stream request",
			zap.String("request_id", requestID),
			zap.Int("status", status),
		)
		return p.fail(surfaceID, requestID, "error", Result{
			Status: status,
			Error:  "backend returned " + resp.Status(),
		})
	}

	result := p.relay(surfaceID, requestID, s, timer, resp.RawBody())
	p.logger.Debug("stream finished",
		zap.String("request_id", requestID),
		zap.Bool("ok", result.OK),
		zap.Bool("aborted", result.Aborted),
		zap.Bool("timeout", result.Timeout),
	)
	return result
}

// relay pumps the SSE byte stream, forwarding each \n\n-delimited frame
// verbatim and resetting the idle timer on every chunk.
func (p *Proxy) relay(surfaceID, requestID string, s *session, timer *time.Timer, body io.Reader) Result {
	var pending []byte
	buf := make([]byte, 4096)

	for {
		n, err := body.Read(buf)
		if n > 0 {
			timer.Reset(p.idle)
			pending = append(pending, buf[:n]...)
			for {
				idx := bytes.Index(pending, frameDelim)
				if idx < 0 {
					break
				}
				p.forward(surfaceID, requestID, string(pending[:idx]))
				pending = pending[idx+len(frameDelim):]
			}
		}
		if err == io.EOF {
			// Flush trailing decoded bytes as one final frame.
			if trailing := strings.TrimSpace(string(pending)); trailing != "" {
				p.forward(surfaceID, requestID, trailing)
			}
			if p.metrics != nil {
				p.metrics.RecordStream("ok")
			}
			return Result{OK: true}
		}
		if err != nil {
			return p.finishWithError(surfaceID, requestID, s, err, 0)
		}
	}
}

var frameDelim = []byte("\n\n")

// finishWithError classifies a failed stream (idle timeout beats an
// explicit abort, which beats the raw message) and forwards one
// synthesized error frame.
func (p *Proxy) finishWithError(surfaceID, requestID string, s *session, err error, status int) Result {
	aborted, timedOut := s.flags()

	res := Result{Status: status}
	outcome := "error"
	switch {
	case timedOut:
		res.Timeout = true
		res.Error = "timeout"
		outcome = "timeout"
	case aborted:
		res.Aborted = true
		res.Error = "aborted"
		outcome = "aborted"
	default:
		res.Error = err.Error()
	}
	return p.fail(surfaceID, requestID, outcome, res)
}

// fail forwards a synthesized SSE-shaped error frame and records the
// outcome. The IPC caller gets a resolved structured result.
func (p *Proxy) fail(surfaceID, requestID, outcome string, res Result) Result {
	payload, _ := sonic.Marshal(map[string]interface{}{
		"type":       "error",
		"request_id": requestID,
		"error":      res.Error,
		"aborted":    res.Aborted,
		"timeout":    res.Timeout,
	})
	p.forward(surfaceID, requestID, "data: "+string(payload))

	if p.metrics != nil {
		p.metrics.RecordStream(outcome)
	}
	return res
}

func (p *Proxy) forward(surfaceID, requestID, frame string) {
	if p.sink == nil {
		return
	}
	p.sink.Frame(surfaceID, requestID, frame)
	if p.metrics != nil {
		p.metrics.FramesForwarded.Inc()
	}
}

// deregister removes the session unless it was already superseded.
// Exactly one deregistration per session.
func (p *Proxy) deregister(key sessionKey, s *session) {
	p.mu.Lock()
	if p.sessions[key] == s {
		delete(p.sessions, key)
	}
	p.mu.Unlock()
}

// HandleAbort cancels a matching in-flight stream: by tab key first,
// then by request id, then, when neither is supplied and exactly one
// stream is active for the surface, the sole session. With more than
// one candidate and nothing to disambiguate, nothing is aborted.
func (p *Proxy) HandleAbort(surfaceID, requestID, tabKey string) AbortResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	if tabKey != "" {
		key := sessionKey{surface: surfaceID, tab: tabKey}
		if s, ok := p.sessions[key]; ok {
			s.abort()
			delete(p.sessions, key)
			return AbortResult{OK: true, Active: true}
		}
	}

	if requestID != "" {
		for key, s := range p.sessions {
			if key.surface == surfaceID && s.requestID == requestID {
				s.abort()
				delete(p.sessions, key)
				return AbortResult{OK: true, Active: true}
			}
		}
		return AbortResult{OK: false, Active: false, Mismatch: true}
	}

	if tabKey == "" {
		var soleKey sessionKey
		var sole *session
		count := 0
		for key, s := range p.sessions {
			if key.surface == surfaceID {
				soleKey, sole = key, s
				count++
			}
		}
		if count == 1 {
			sole.abort()
			delete(p.sessions, soleKey)
			return AbortResult{OK: true, Active: true}
		}
	}

	return AbortResult{OK: false, Active: false}
}
