package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rafaelviefe/intermediador-de-pagamentos/internal/core"
	"github.com/rafaelviefe/intermediador-de-pagamentos/internal/domain"
	"github.com/rafaelviefe/intermediador-de-pagamentos/internal/model"
)

const (
	// The processors rate-limit their health endpoint to one call per 5s;
	// the lease must expire before the next cycle so a crashed holder
	// cannot starve the fleet.
	PROBE_INTERVAL  = 5 * time.Second
	PROBE_LEASE_TTL = 4 * time.Second
	PROBE_TIMEOUT   = 3 * time.Second
)

type snapshot struct {
	defaultUp  bool
	fallbackUp bool
	loadedAt   time.Time
}

// Monitor keeps the per-processor availability flags. One elected instance at
// a time probes the upstreams and writes the result to the shared store; every
// instance mirrors the store into a local snapshot and answers IsAvailable
// from it without blocking. With no snapshot loaded yet, everything reads as
// unavailable.
type Monitor struct {
	store  core.HealthStore
	client *http.Client

	defaultHealthURL  string
	fallbackHealthURL string

	state atomic.Pointer[snapshot]
}

func NewMonitor(store core.HealthStore, defaultHealthURL, fallbackHealthURL string) *Monitor {
	return &Monitor{
		store:             store,
		client:            &http.Client{Timeout: PROBE_TIMEOUT},
		defaultHealthURL:  defaultHealthURL,
		fallbackHealthURL: fallbackHealthURL,
	}
}

func (m *Monitor) IsAvailable(p domain.Processor) bool {
	s := m.state.Load()
	if s == nil {
		return false
	}
	if p == domain.ProcessorFallback {
		return s.fallbackUp
	}
	return s.defaultUp
}

// Run drives the monitor until ctx is cancelled: an initial sync, the
// notification subscriber, and the lease-gated probe cycle.
func (m *Monitor) Run(ctx context.Context) {
	m.SyncFromStore(ctx)

	updates := m.store.SubscribeUpdates(ctx)
	go func() {
		for range updates {
			m.SyncFromStore(ctx)
		}
	}()

	ticker := time.NewTicker(PROBE_INTERVAL)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("[Health:Monitor] - Stopped")
			return
		case <-ticker.C:
			acquired, err := m.store.AcquireProbeLease(ctx, PROBE_LEASE_TTL)
			if err != nil || !acquired {
				continue
			}
			if err := m.ProbeOnce(ctx); err != nil {
				slog.Error("[Health:Monitor] - Probe cycle failed", "error", err)
			}
		}
	}
}

// ProbeOnce checks both processors, stores both flags as one update and
// publishes the change notification. Any probe failure resolves to DOWN,
// never to unknown.
func (m *Monitor) ProbeOnce(ctx context.Context) error {
	var defaultUp, fallbackUp bool

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defaultUp = m.checkProcessor(ctx, m.defaultHealthURL)
	}()
	go func() {
		defer wg.Done()
		fallbackUp = m.checkProcessor(ctx, m.fallbackHealthURL)
	}()
	wg.Wait()

	if err := m.store.WriteStatuses(ctx, defaultUp, fallbackUp); err != nil {
		return err
	}
	if err := m.store.PublishUpdate(ctx); err != nil {
		return err
	}

	// The prober also receives its own notification, but updating the local
	// snapshot here keeps it fresh even if the subscription lags.
	m.state.Store(&snapshot{defaultUp: defaultUp, fallbackUp: fallbackUp, loadedAt: time.Now()})

	slog.Info("[Health:Monitor] - Probe cycle completed", "default_up", defaultUp, "fallback_up", fallbackUp)
	return nil
}

// SyncFromStore reloads the local snapshot. A failed load forces both
// processors unavailable.
func (m *Monitor) SyncFromStore(ctx context.Context) {
	defaultUp, fallbackUp, err := m.store.LoadStatuses(ctx)
	if err != nil {
		slog.Error("[Health:Monitor] - Failed to sync health state, assuming both unavailable", "error", err)
		m.state.Store(&snapshot{loadedAt: time.Now()})
		return
	}
	m.state.Store(&snapshot{defaultUp: defaultUp, fallbackUp: fallbackUp, loadedAt: time.Now()})
}

func (m *Monitor) checkProcessor(ctx context.Context, url string) bool {
	reqCtx, cancel := context.WithTimeout(ctx, PROBE_TIMEOUT)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}

	resp, err := m.client.Do(req)
	if err != nil {
		slog.Warn("[Health:Monitor] - Health probe failed", "url", url, "error", err)
		return false
	}
	defer resp.Body.Close()

	// 429 means the upstream rate limit was hit; treat it as DOWN and wait
	// for the next cycle instead of retrying.
	if resp.StatusCode != http.StatusOK {
		return false
	}

	var status model.HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		slog.Warn("[Health:Monitor] - Failed to decode health response", "url", url, "error", err)
		return false
	}

	return !status.Failing
}
