// Package daemon re-runs manifest reconciliation on an interval and serves
// metrics and health endpoints alongside.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yairfalse/vigil/internal/emitter"
	"github.com/yairfalse/vigil/orchestrator"
	"github.com/yairfalse/vigil/storage"
	"github.com/yairfalse/vigil/telemetry"
	"github.com/yairfalse/vigil/types"
	"github.com/yairfalse/vigil/wal"
)

// Config holds daemon configuration
type Config struct {
	Interval      time.Duration
	MetricsAddr   string // empty disables the HTTP server
	OneShot       bool
	KeepRevisions int64 // history compaction; 0 disables it
}

// CycleRunner runs one pass over a set of specs
type CycleRunner interface {
	RunCycle(ctx context.Context, specs []types.EntitySpec) (*orchestrator.CycleResult, error)
}

// SpecSource returns the specs for the next cycle. It is called every
// cycle so manifest edits are picked up without a restart.
type SpecSource func() ([]types.EntitySpec, error)

// Daemon manages continuous reconciliation
type Daemon struct {
	config    Config
	runner    CycleRunner
	source    SpecSource
	journal   *wal.WAL
	compactor storage.Compactor
	emitter   emitter.Emitter
	logger    *telemetry.Logger
	metrics   *DaemonMetrics

	startTime  time.Time
	cycleCount atomic.Int64

	mu         sync.RWMutex
	last       *orchestrator.CycleResult
	lastErr    error
	lastCycle  time.Time
	listenAddr string
}

// NewDaemon creates a new daemon instance
func NewDaemon(config Config, runner CycleRunner, source SpecSource, logger *telemetry.Logger) (*Daemon, error) {
	if runner == nil || source == nil {
		return nil, fmt.Errorf("daemon needs a cycle runner and a spec source")
	}
	if !config.OneShot && config.Interval <= 0 {
		return nil, fmt.Errorf("daemon interval must be positive")
	}
	if logger == nil {
		logger = telemetry.Nop()
	}

	metrics, err := NewDaemonMetrics()
	if err != nil {
		return nil, fmt.Errorf("daemon metrics: %w", err)
	}

	return &Daemon{
		config:    config,
		runner:    runner,
		source:    source,
		logger:    logger,
		metrics:   metrics,
		startTime: time.Now(),
	}, nil
}

// WithJournal enables journal retention cleanup and journal health reporting
func (d *Daemon) WithJournal(w *wal.WAL) *Daemon {
	d.journal = w
	return d
}

// WithCompactor enables history compaction after each cycle
func (d *Daemon) WithCompactor(c storage.Compactor) *Daemon {
	d.compactor = c
	return d
}

// WithEmitter publishes every completed cycle result
func (d *Daemon) WithEmitter(e emitter.Emitter) *Daemon {
	d.emitter = e
	return d
}

// Run starts the reconciliation loop and the HTTP server and blocks until
// ctx is cancelled or one of them fails.
func (d *Daemon) Run(ctx context.Context) error {
	if d.config.OneShot {
		_, err := d.RunOnce(ctx)
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var g run.Group
	g.Add(func() error {
		return d.loop(loopCtx)
	}, func(error) {
		cancel()
	})

	if d.config.MetricsAddr != "" {
		ln, err := net.Listen("tcp", d.config.MetricsAddr)
		if err != nil {
			return fmt.Errorf("metrics listener: %w", err)
		}
		d.setListenAddr(ln.Addr().String())
		server := &http.Server{Handler: d.Handler(), ReadHeaderTimeout: 5 * time.Second}

		g.Add(func() error {
			d.logger.Info().Str("addr", ln.Addr().String()).Msg("starting metrics server")
			if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		}, func(error) {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			_ = server.Shutdown(shutdownCtx)
		})
	}

	return g.Run()
}

func (d *Daemon) loop(ctx context.Context) error {
	_, _ = d.RunOnce(ctx)

	ticker := time.NewTicker(d.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info().Msg("shutting down")
			return nil
		case <-ticker.C:
			_, _ = d.RunOnce(ctx)
		}
	}
}

// RunOnce loads the specs, runs one cycle and performs storage maintenance
func (d *Daemon) RunOnce(ctx context.Context) (*orchestrator.CycleResult, error) {
	d.cycleCount.Add(1)
	start := time.Now()

	specs, err := d.source()
	if err != nil {
		d.logger.WithContext(ctx).Error().Err(err).Msg("failed to load manifest")
		d.metrics.RecordCycle(ctx, "error", time.Since(start).Seconds())
		d.setResult(nil, err)
		return nil, err
	}
	d.metrics.RecordManifestEntities(ctx, int64(len(specs)))

	result, err := d.runner.RunCycle(ctx, specs)
	status := "success"
	switch {
	case err != nil:
		status = "error"
	case !result.Success():
		status = "failed"
	}
	d.metrics.RecordCycle(ctx, status, time.Since(start).Seconds())
	d.setResult(result, err)

	if d.emitter != nil && result != nil {
		if emitErr := d.emitter.Emit(ctx, result); emitErr != nil {
			d.logger.WithContext(ctx).Warn().Err(emitErr).Msg("failed to emit cycle result")
		}
	}

	d.maintain(ctx)
	return result, err
}

func (d *Daemon) maintain(ctx context.Context) {
	if d.journal != nil {
		stats, err := d.journal.Cleanup()
		if err != nil {
			d.logger.LogStorageError(ctx, "journal_cleanup", err)
			d.metrics.RecordStorageOperation(ctx, "journal_cleanup", "error", "io")
		} else {
			d.metrics.RecordStorageOperation(ctx, "journal_cleanup", "success", "")
			if stats.FilesRemoved > 0 {
				d.logger.WithContext(ctx).Info().
					Int("files", stats.FilesRemoved).
					Int64("bytes", stats.BytesFreed).
					Msg("journal files removed")
			}
		}
	}

	if d.compactor != nil && d.config.KeepRevisions > 0 {
		if err := d.compactor.CompactWithContext(ctx, d.config.KeepRevisions); err != nil {
			d.logger.LogStorageError(ctx, "compact", err)
			d.metrics.RecordStorageOperation(ctx, "compact", "error", "bbolt")
			return
		}
		d.metrics.RecordStorageOperation(ctx, "compact", "success", "")
	}
}

func (d *Daemon) setResult(result *orchestrator.CycleResult, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.last = result
	d.lastErr = err
	d.lastCycle = time.Now()
}

func (d *Daemon) setListenAddr(addr string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listenAddr = addr
}

// ListenAddr returns the address the HTTP server is bound to, once started
func (d *Daemon) ListenAddr() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.listenAddr
}

// CycleCount returns total cycles started
func (d *Daemon) CycleCount() int64 {
	return d.cycleCount.Load()
}

// HealthStatus represents daemon health
type HealthStatus struct {
	Status     string            `json:"status"`
	Uptime     int64             `json:"uptime_seconds"`
	Cycles     int64             `json:"cycles"`
	LastRunID  string            `json:"last_run_id,omitempty"`
	LastCycle  *time.Time        `json:"last_cycle,omitempty"`
	LastFailed int               `json:"last_failed"`
	LastDenied int               `json:"last_denied"`
	LastError  string            `json:"last_error,omitempty"`
	Journal    *wal.HealthStatus `json:"journal,omitempty"`
}

// Health statuses
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Health returns daemon health status
func (d *Daemon) Health() HealthStatus {
	d.mu.RLock()
	last, lastErr, lastCycle := d.last, d.lastErr, d.lastCycle
	d.mu.RUnlock()

	health := HealthStatus{
		Status: StatusHealthy,
		Uptime: int64(time.Since(d.startTime).Seconds()),
		Cycles: d.cycleCount.Load(),
	}
	if !lastCycle.IsZero() {
		health.LastCycle = &lastCycle
	}
	if last != nil {
		health.LastRunID = last.RunID
		health.LastFailed = last.Failed
		health.LastDenied = last.Denied
		if !last.Success() {
			health.Status = StatusDegraded
		}
	}
	if d.journal != nil {
		jh := d.journal.GetHealth()
		health.Journal = &jh
		if !jh.Healthy {
			health.Status = StatusDegraded
		}
	}
	if lastErr != nil {
		health.LastError = lastErr.Error()
		health.Status = StatusUnhealthy
	}
	return health
}

// Handler serves /metrics, /health, /-/healthy and /-/ready
func (d *Daemon) Handler() http.Handler {
	mux := http.NewServeMux()

	if telemetry.PrometheusRegistry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(telemetry.PrometheusRegistry, promhttp.HandlerOpts{}))
	} else {
		mux.Handle("/metrics", promhttp.Handler())
	}

	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		health := d.Health()
		w.Header().Set("Content-Type", "application/json")
		if health.Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/-/healthy", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	mux.HandleFunc("/-/ready", func(w http.ResponseWriter, _ *http.Request) {
		d.mu.RLock()
		ready := !d.lastCycle.IsZero()
		d.mu.RUnlock()
		if !ready {
			http.Error(w, "no cycle completed yet", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return mux
}
