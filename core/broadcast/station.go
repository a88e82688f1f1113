// Package broadcast pushes station snapshots to websocket listeners and
// feeds their reports back to the engine.
package broadcast

import (
	"context"
	"time"

	"SyncFM/core/clock"
	"SyncFM/logger"
	"SyncFM/metrics"
	"SyncFM/model"
)

// Engine is the part of the station engine the broadcast loop drives.
type Engine interface {
	Snapshot(now time.Time) model.Snapshot
	ReportTrackEnd(trackID string) bool
	ReportDuration(trackID string, seconds float64) bool
}

// Publisher delivers a frame to every listener.
type Publisher interface {
	Broadcast(frame []byte)
}

// Sender delivers a frame to one listener.
type Sender interface {
	Send(frame []byte) bool
	SendError(message string)
}

// SnapshotSink receives every broadcast snapshot, e.g. to mirror it elsewhere.
type SnapshotSink interface {
	PublishSnapshot(ctx context.Context, snap model.Snapshot) error
}

// Station is the broadcast loop.
type Station struct {
	engine   Engine
	out      Publisher
	clock    clock.Clock
	interval time.Duration
	sinks    []SnapshotSink
}

// NewStation creates a broadcast loop ticking every interval.
func NewStation(engine Engine, out Publisher, clk clock.Clock, interval time.Duration, sinks ...SnapshotSink) *Station {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Station{
		engine:   engine,
		out:      out,
		clock:    clk,
		interval: interval,
		sinks:    sinks,
	}
}

// Run broadcasts a snapshot every interval until ctx is done.
func (s *Station) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logger.Info("Broadcast loop started", logger.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			logger.Info("Broadcast loop stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick takes one snapshot and pushes it to every listener and sink.
func (s *Station) Tick(ctx context.Context) model.Snapshot {
	now := s.clock.Now()
	snap := s.engine.Snapshot(now)

	frame, err := Encode(MsgTypeSync, snap, now)
	if err != nil {
		logger.Error("Failed to encode snapshot", logger.ErrorField(err))
		return snap
	}
	s.out.Broadcast(frame)
	metrics.SnapshotsSent.Inc()

	for _, sink := range s.sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, s.interval)
		if err := sink.PublishSnapshot(sinkCtx, snap); err != nil {
			logger.Warn("Snapshot sink failed", logger.ErrorField(err))
		}
		cancel()
	}
	return snap
}

// Greet sends the current snapshot to one new listener only.
func (s *Station) Greet(to Sender) {
	now := s.clock.Now()
	frame, err := Encode(MsgTypeSync, s.engine.Snapshot(now), now)
	if err != nil {
		logger.Error("Failed to encode snapshot", logger.ErrorField(err))
		return
	}
	to.Send(frame)
}

// HandleMessage applies one inbound listener message to the engine.
func (s *Station) HandleMessage(_ context.Context, from Sender, msg *WSMessage) {
	switch msg.Type {
	case MsgTypeTrackEnd:
		d, err := ParseTrackEnd(msg.Data)
		if err != nil {
			from.SendError(err.Error())
			return
		}
		s.engine.ReportTrackEnd(d.Track)

	case MsgTypeTrackDuration:
		d, err := ParseTrackDuration(msg.Data)
		if err != nil {
			from.SendError(err.Error())
			return
		}
		s.engine.ReportDuration(d.Track, d.Seconds)

	default:
		logger.Debug("Ignoring unknown message", logger.String("type", string(msg.Type)))
		from.SendError("unknown message type: " + string(msg.Type))
	}
}
