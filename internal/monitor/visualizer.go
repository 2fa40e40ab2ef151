package monitor

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
	"golang.org/x/time/rate"

	"github.com/vk/burstgraph/internal/ctxlog"
	"github.com/vk/burstgraph/internal/graph"
)

const (
	// EventVertexValue carries {"vertex": id, "value": v}.
	EventVertexValue = "vertex_value"
	// EventVertexScale carries {"min": a, "max": b}.
	EventVertexScale = "vertex_scale"
)

// Emitter sends a named event to a remote listener.
type Emitter interface {
	Emit(event string, args ...any)
}

// Visualizer streams vertex values to an external viewer. Vertex value events
// are rate limited; events over the limit are dropped and counted.
type Visualizer struct {
	Nop

	emitter Emitter
	limiter *rate.Limiter
	sent    atomic.Uint64
	dropped atomic.Uint64
}

// NewVisualizer creates a visualizer that emits at most eventsPerSecond
// vertex value events, with bursts of up to burst events.
func NewVisualizer(emitter Emitter, eventsPerSecond float64, burst int) *Visualizer {
	if burst < 1 {
		burst = 1
	}
	return &Visualizer{
		emitter: emitter,
		limiter: rate.NewLimiter(rate.Limit(eventsPerSecond), burst),
	}
}

func (v *Visualizer) SetVertexValue(id graph.VertexID, value float64) {
	if !v.limiter.Allow() {
		v.dropped.Add(1)
		return
	}
	v.sent.Add(1)
	v.emitter.Emit(EventVertexValue, map[string]any{"vertex": uint32(id), "value": value})
}

// SetVertexValueScale is never rate limited.
func (v *Visualizer) SetVertexValueScale(min, max float64) {
	v.emitter.Emit(EventVertexScale, map[string]any{"min": min, "max": max})
}

// Sent returns the number of vertex value events emitted.
func (v *Visualizer) Sent() uint64 { return v.sent.Load() }

// Dropped returns the number of vertex value events over the rate limit.
func (v *Visualizer) Dropped() uint64 { return v.dropped.Load() }

// SocketEmitter adapts a socket.io client connection to Emitter.
type SocketEmitter struct {
	sock *socket.Socket
}

func (e *SocketEmitter) Emit(event string, args ...any) {
	e.sock.Emit(event, args...)
}

// Close disconnects from the server.
func (e *SocketEmitter) Close() {
	e.sock.Disconnect()
}

// DialOptions configures DialVisualizer.
type DialOptions struct {
	URL                string
	Namespace          string
	InsecureSkipVerify bool
	ConnectTimeout     time.Duration
}

// DialVisualizer connects to a socket.io visualizer server and waits until
// the connection is established.
func DialVisualizer(ctx context.Context, o DialOptions) (*SocketEmitter, error) {
	logger := ctxlog.FromContext(ctx).With("component", "visualizer", "url", o.URL)

	parsedURL, err := url.Parse(o.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse visualizer URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("visualizer URL %q must include scheme and host", o.URL)
	}
	timeout := o.ConnectTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	opts := socket.DefaultOptions()
	if parsedURL.Path != "" {
		opts.SetPath(parsedURL.Path)
	}
	if o.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	connectChan := make(chan error, 1)
	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(o.Namespace, opts)

	io.Once(types.EventName("connect"), func(...any) {
		logger.Info("📡 Visualizer connected", "sid", io.Id())
		connectChan <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		var err error = fmt.Errorf("connect_error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		connectChan <- err
	})

	logger.Debug("Connecting to visualizer...")
	io.Connect()

	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("visualizer connection failed: %w", err)
		}
		return &SocketEmitter{sock: io}, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for visualizer connection: %w", ctx.Err())
	case <-time.After(timeout):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %s waiting for visualizer connection", timeout)
	}
}
