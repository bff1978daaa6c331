package connectivity

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ProberConfig controls the HTTP reachability prober.
type ProberConfig struct {
	// URL is probed with a HEAD request; any response, including an error
	// status, proves reachability. Default: https://clients3.google.com/generate_204.
	URL string

	// Interval between probes. Default: 15s.
	Interval time.Duration

	// ProbeTimeout bounds a single probe. Default: 5s.
	ProbeTimeout time.Duration

	// MaxTransitionsPerMinute caps how fast emitted transitions may flip, so
	// a flapping link coalesces into few events instead of a drain storm.
	// Default: 4.
	MaxTransitionsPerMinute float64
}

func (c ProberConfig) withDefaults() ProberConfig {
	if c.URL == "" {
		c.URL = "https://clients3.google.com/generate_204"
	}
	if c.Interval <= 0 {
		c.Interval = 15 * time.Second
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 5 * time.Second
	}
	if c.MaxTransitionsPerMinute <= 0 {
		c.MaxTransitionsPerMinute = 4
	}
	return c
}

// Prober is a Source that detects connectivity by periodically probing an
// HTTP endpoint. Transitions are rate-limited; a suppressed transition is
// retried on the next probe, so the steady state is always reported.
type Prober struct {
	cfg    ProberConfig
	client *http.Client
	lim    *rate.Limiter

	mu       sync.Mutex
	state    State
	watchers []chan State
	closed   bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewProber starts a connectivity prober. The initial state is determined by
// an immediate first probe.
func NewProber(cfg ProberConfig) *Prober {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	p := &Prober{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.ProbeTimeout},
		lim:    rate.NewLimiter(rate.Limit(cfg.MaxTransitionsPerMinute/60.0), 1),
		state:  Offline,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go p.run(ctx)
	return p
}

func (p *Prober) Watch() <-chan State {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := make(chan State, 8)
	if p.closed {
		close(ch)
		return ch
	}
	p.watchers = append(p.watchers, ch)
	return ch
}

func (p *Prober) Current() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Prober) Close() {
	p.cancel()
	<-p.done

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for _, ch := range p.watchers {
		close(ch)
	}
	p.watchers = nil
}

func (p *Prober) run(ctx context.Context) {
	defer close(p.done)

	p.probe(ctx)
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.probe(ctx)
		}
	}
}

func (p *Prober) probe(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.cfg.URL, nil)
	if err != nil {
		return
	}

	next := Offline
	if resp, err := p.client.Do(req); err == nil {
		resp.Body.Close()
		next = Online
	}

	p.mu.Lock()
	changed := next != p.state
	if changed {
		// A flapping link burns the limiter; the unchanged probe result
		// next tick will report the settled state.
		if !p.lim.Allow() {
			p.mu.Unlock()
			return
		}
		p.state = next
	}
	watchers := make([]chan State, len(p.watchers))
	copy(watchers, p.watchers)
	p.mu.Unlock()

	if !changed {
		return
	}

	zap.L().Info("connectivity transition", zap.Stringer("state", next))
	for _, ch := range watchers {
		select {
		case ch <- next:
		default:
			// Slow watcher; it will catch up via Current.
		}
	}
}
