// Package webhook delivers notifications to an HTTP endpoint from a bounded
// background queue.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fentz26/potok/internal/connectors"
)

// Config defines the dispatcher configuration.
type Config struct {
	// URL receives every notification. Empty disables delivery.
	URL string
	// Secret is sent in the X-Webhook-Secret header.
	Secret string
	// Timeout bounds a single delivery attempt.
	Timeout time.Duration
	// MaxAttempts is the number of tries per notification.
	MaxAttempts int
	// RetryDelay is the pause between attempts.
	RetryDelay time.Duration
	// QueueSize bounds the pending notifications; new ones are dropped when full.
	QueueSize int
	// Workers is the number of concurrent senders.
	Workers int
}

// DefaultConfig returns the default dispatcher configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:     5 * time.Second,
		MaxAttempts: 3,
		RetryDelay:  time.Second,
		QueueSize:   256,
		Workers:     2,
	}
}

// Dispatcher is an asynchronous webhook Notifier.
type Dispatcher struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
	queue  chan connectors.Notification

	// mu guards closed and the close of queue against concurrent sends.
	mu     sync.RWMutex
	closed bool

	delivered atomic.Int64
	dropped   atomic.Int64
	failed    atomic.Int64

	startOnce sync.Once
	stopOnce  sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New creates a dispatcher. Zero fields of cfg take their defaults.
func New(cfg Config, logger *slog.Logger) *Dispatcher {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
		queue:  make(chan connectors.Notification, cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Name implements connectors.Notifier.
func (d *Dispatcher) Name() string {
	return "webhook"
}

// Enabled reports whether a destination URL is configured.
func (d *Dispatcher) Enabled() bool {
	return d.cfg.URL != ""
}

// Start launches the sender workers.
func (d *Dispatcher) Start() {
	d.startOnce.Do(func() {
		for i := 0; i < d.cfg.Workers; i++ {
			d.wg.Add(1)
			go d.worker()
		}
		d.logger.Info("webhook dispatcher started",
			slog.Bool("enabled", d.Enabled()), slog.Int("workers", d.cfg.Workers))
	})
}

// Stop drains the queue and waits for the workers. Notifications still
// queued when ctx expires are abandoned.
func (d *Dispatcher) Stop(ctx context.Context) error {
	var err error
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()

		done := make(chan struct{})
		go func() {
			d.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			d.cancel()
			<-done
			err = ctx.Err()
		}
		d.cancel()
		d.logger.Info("webhook dispatcher stopped",
			slog.Int64("delivered", d.delivered.Load()),
			slog.Int64("failed", d.failed.Load()),
			slog.Int64("dropped", d.dropped.Load()))
	})
	return err
}

// Notify implements connectors.Notifier. It never blocks.
func (d *Dispatcher) Notify(_ context.Context, n connectors.Notification) {
	if !d.Enabled() {
		return
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now().UTC()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.dropped.Add(1)
		return
	}
	select {
	case d.queue <- n:
	default:
		d.dropped.Add(1)
		d.logger.Warn("webhook queue full, notification dropped",
			slog.String("event_type", string(n.EventType)),
			slog.String("correlation_id", n.CorrelationID))
	}
}

// Stats returns the delivered, failed and dropped counters.
func (d *Dispatcher) Stats() (delivered, failed, dropped int64) {
	return d.delivered.Load(), d.failed.Load(), d.dropped.Load()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for n := range d.queue {
		if err := d.deliver(n); err != nil {
			d.failed.Add(1)
			d.logger.Error("failed to send webhook",
				slog.String("event_type", string(n.EventType)),
				slog.String("user_id", n.UserID),
				slog.String("correlation_id", n.CorrelationID),
				slog.String("error", err.Error()))
			continue
		}
		d.delivered.Add(1)
	}
}

// deliver posts n, retrying up to MaxAttempts times.
func (d *Dispatcher) deliver(n connectors.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-d.ctx.Done():
				return fmt.Errorf("dispatcher stopped: %w", lastErr)
			case <-time.After(d.cfg.RetryDelay):
			}
		}
		lastErr = d.post(body, n.CorrelationID)
		if lastErr == nil {
			d.logger.Debug("webhook sent",
				slog.String("event_type", string(n.EventType)),
				slog.String("correlation_id", n.CorrelationID),
				slog.Int("attempt", attempt))
			return nil
		}
	}
	return fmt.Errorf("after %d attempts: %w", d.cfg.MaxAttempts, lastErr)
}

func (d *Dispatcher) post(body []byte, correlationID string) error {
	req, err := http.NewRequestWithContext(d.ctx, http.MethodPost, d.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Secret", d.cfg.Secret)
	req.Header.Set("X-Correlation-Id", correlationID)

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
