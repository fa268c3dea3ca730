// internal/app/system/workers/presencerefresh.go
package workers

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// OccupancySource reports live room occupancy: group id to connection id to
// user id.
type OccupancySource interface {
	Occupancy() (map[string]map[string]string, error)
}

// PresenceSink republishes occupancy to shared presence storage.
type PresenceSink interface {
	Refresh(ctx context.Context, rooms map[string]map[string]string) error
}

// PresenceRefresh is a background worker that periodically republishes this
// process's room occupancy, so presence entries of quiet rooms do not expire
// while their sockets are still open.
type PresenceRefresh struct {
	source   OccupancySource
	sink     PresenceSink
	log      *zap.Logger
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewPresenceRefresh creates a new presence refresh worker.
//
// Parameters:
//   - source: the realtime router
//   - sink: the Redis presence mirror
//   - logger: zap logger for logging
//   - interval: how often to republish (well under the presence TTL)
func NewPresenceRefresh(source OccupancySource, sink PresenceSink, logger *zap.Logger, interval time.Duration) *PresenceRefresh {
	return &PresenceRefresh{
		source:   source,
		sink:     sink,
		log:      logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the background refresh loop.
func (w *PresenceRefresh) Start() {
	w.wg.Add(1)
	go w.run()
	w.log.Info("presence refresh worker started", zap.Duration("interval", w.interval))
}

// Stop signals the worker to stop and waits for it to finish.
func (w *PresenceRefresh) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
	w.log.Info("presence refresh worker stopped")
}

func (w *PresenceRefresh) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.refresh()
		}
	}
}

func (w *PresenceRefresh) refresh() {
	rooms, err := w.source.Occupancy()
	if err != nil {
		w.log.Warn("occupancy snapshot failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := w.sink.Refresh(ctx, rooms); err != nil {
		w.log.Error("presence refresh failed", zap.Error(err))
		return
	}
	if len(rooms) > 0 {
		w.log.Debug("presence refreshed", zap.Int("rooms", len(rooms)))
	}
}
