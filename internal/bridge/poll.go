package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/climate-ip/internal/climateip/controller"
	"github.com/nerrad567/climate-ip/internal/history"
	"github.com/nerrad567/climate-ip/internal/infrastructure/mqtt"
)

// pollLoop refreshes a device immediately and then on its interval.
// Devices that do not poll stop ticking once initialised; their state only
// changes through commands.
func (b *Bridge) pollLoop(ctx context.Context, e *deviceEntry) {
	b.refreshLogged(ctx, e)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if e.ready.Load() && !e.dev.Poll() {
				continue
			}
			b.refreshLogged(ctx, e)
		}
	}
}

func (b *Bridge) refreshLogged(ctx context.Context, e *deviceEntry) {
	if err := b.refresh(ctx, e); err != nil && ctx.Err() == nil {
		b.logger.Warn("device refresh failed", "device", e.dev.ID(), "error", err)
	}
}

// refresh initialises the device if needed, updates its state and
// publishes the snapshot.
func (b *Bridge) refresh(ctx context.Context, e *deviceEntry) error {
	id := e.dev.ID()

	if !e.ready.Load() {
		if err := e.dev.Initialize(ctx); err != nil {
			b.metrics.initFailed(id)
			e.recordPoll(err)
			return fmt.Errorf("initialize %s: %w", id, err)
		}
		e.ready.Store(true)
	}

	start := time.Now()
	err := e.dev.UpdateState(ctx)
	b.metrics.observePoll(id, err, time.Since(start))
	e.recordPoll(err)

	snap := e.dev.Snapshot()
	b.metrics.setAvailable(id, snap.Available)
	if b.telemetry != nil {
		b.telemetry.WriteAvailability(id, snap.Available, snap.UpdatedAt)
		b.telemetry.WriteSnapshot(id, snap.Attributes, snap.UpdatedAt)
	}
	b.publishSnapshot(ctx, e, snap, history.SourcePoll)
	return err
}

func (e *deviceEntry) recordPoll(err error) {
	e.mu.Lock()
	e.lastPoll = time.Now()
	e.lastErr = err
	e.mu.Unlock()
}

// publishSnapshot fans a snapshot out to MQTT, history and listeners when
// its attributes or availability changed since the last publish. Commands
// always record history.
func (b *Bridge) publishSnapshot(ctx context.Context, e *deviceEntry, snap controller.Snapshot, source string) {
	id := snap.ID
	key, err := json.Marshal(struct {
		Available  bool           `json:"available"`
		Attributes map[string]any `json:"attributes"`
	}{snap.Available, snap.Attributes})
	if err != nil {
		b.logger.Error("encoding snapshot failed", "device", id, "error", err)
		return
	}

	e.mu.Lock()
	changed := !bytes.Equal(key, e.lastPublished)
	if changed {
		e.lastPublished = key
	}
	e.mu.Unlock()

	if !changed && source != history.SourceCommand {
		return
	}

	if b.mqtt != nil {
		b.publishState(snap)
	}
	if b.history != nil {
		if err := b.history.Record(ctx, id, snap.Attributes, source); err != nil {
			b.logger.Warn("recording history failed", "device", id, "error", err)
		}
	}
	b.notify(Event{Snapshot: snap, Source: source})
}

func (b *Bridge) publishState(snap controller.Snapshot) {
	ts := snap.UpdatedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	payload, err := json.Marshal(StateMessage{
		DeviceID:   snap.ID,
		Timestamp:  ts.UTC(),
		Available:  snap.Available,
		Attributes: snap.Attributes,
	})
	if err != nil {
		b.logger.Error("encoding state failed", "device", snap.ID, "error", err)
		return
	}

	err = b.mqtt.Publish(mqtt.Topics{}.State(snap.ID), payload, b.qos, true)
	b.metrics.publish("state", err)
	if err != nil {
		b.logger.Warn("publishing state failed", "device", snap.ID, "error", err)
	}
}

// pruneLoop deletes history older than the retention, once at start and
// then hourly.
func (b *Bridge) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		n, err := b.history.Prune(ctx, b.retention)
		switch {
		case err != nil && ctx.Err() == nil:
			b.logger.Warn("pruning history failed", "error", err)
		case n > 0:
			b.logger.Debug("pruned history", "rows", n)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
