// Package radio is the station's single source of truth: which track is on
// air, since when, and in which mode. Listeners only ever see its snapshots.
package radio

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"SyncFM/core/clock"
	"SyncFM/logger"
	"SyncFM/metrics"
	"SyncFM/model"
)

var (
	ErrNotStarted     = errors.New("radio: engine not started")
	ErrAlreadyStarted = errors.New("radio: engine already started")
)

// Advance causes, used as metric labels.
const (
	causeEnded  = "ended"
	causeClient = "client"
	causeSkip   = "skip"
)

// CatalogSource builds the track list of a mode.
type CatalogSource interface {
	Build(ctx context.Context, mode model.Mode) ([]model.Track, error)
}

// Options configures an Engine. Zero durations are valid and disable the
// corresponding delay.
type Options struct {
	Clock         clock.Clock
	Schedule      ModeSchedule
	Catalog       CatalogSource
	MinTrackPlay  time.Duration // advance requests earlier than this after the last advance are ignored
	SettleDelay   time.Duration // pause between a finished rebuild and the first track of the new mode
	EndEpsilon    time.Duration
	UpcomingCount int
	Rand          *rand.Rand
}

// Engine owns the playlist and the timeline. Every method is safe for
// concurrent use and runs to completion under one lock.
type Engine struct {
	opts  Options
	clock clock.Clock

	mu            sync.Mutex
	ctx           context.Context
	started       bool
	mode          model.Mode
	playlist      *Playlist
	timeline      Timeline
	lastAdvance   time.Time
	transitioning bool
	target        model.Mode    // mode being prepared while transitioning
	pending       []model.Track // refreshed catalog for the current mode, installed at exhaustion
	pendingMode   model.Mode

	wg sync.WaitGroup
}

// NewEngine creates an engine. Start must be called before it plays anything.
func NewEngine(opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Engine{opts: opts, clock: opts.Clock}
}

// Start loads the catalog of the current mode and puts its first track on
// air. ctx bounds every later background catalog rebuild.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return ErrAlreadyStarted
	}
	e.mu.Unlock()

	mode := e.opts.Schedule.ModeAt(e.clock.Now())
	tracks, err := e.opts.Catalog.Build(ctx, mode)
	if err != nil {
		return fmt.Errorf("start radio in %s mode: %w", mode, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return ErrAlreadyStarted
	}
	e.ctx = ctx
	e.started = true
	e.install(mode, tracks, e.clock.Now())
	return nil
}

// Wait blocks until an in-flight mode transition has finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// install replaces the playlist and plays its first track. Caller holds mu.
func (e *Engine) install(mode model.Mode, tracks []model.Track, now time.Time) {
	e.mode = mode
	e.playlist = NewPlaylist(mode, tracks, e.opts.Rand)
	e.pending = nil
	e.play(e.playlist.Current(), now)
}

// play puts track on air. Caller holds mu.
func (e *Engine) play(track model.Track, now time.Time) {
	e.timeline.Start(track.ID, now)
	e.lastAdvance = now
	logger.Info("Now playing",
		logger.String("mode", e.mode.String()),
		logger.String("artist", track.Artist),
		logger.String("title", track.Title),
		logger.Int("index", e.playlist.Index()),
		logger.Int("total", e.playlist.Len()))
}

// Advance moves to the next track. Without force the request is dropped
// when the current track started less than MinTrackPlay ago. It reports
// whether the station changed.
func (e *Engine) Advance(force bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	cause := causeClient
	if force {
		cause = causeSkip
	}
	return e.advance(e.clock.Now(), force, cause)
}

// Skip forces an advance regardless of how long the track has played.
func (e *Engine) Skip() bool {
	return e.Advance(true)
}

// advance is the scheduling decision. Caller holds mu.
func (e *Engine) advance(now time.Time, force bool, cause string) bool {
	if !e.started || e.transitioning {
		return false
	}
	// A paused track cannot have ended; only a skip moves on.
	if !force && e.timeline.Track() != "" && !e.timeline.Playing() {
		metrics.IgnoredSignals.WithLabelValues("trackEnd").Inc()
		logger.Debug("Ignoring advance while paused", logger.String("track", e.timeline.Track()))
		return false
	}
	if !force && e.timeline.Track() != "" && now.Sub(e.lastAdvance) < e.opts.MinTrackPlay {
		metrics.IgnoredSignals.WithLabelValues("trackEnd").Inc()
		logger.Debug("Ignoring advance inside minimum play time",
			logger.String("track", e.timeline.Track()),
			logger.Duration("played", now.Sub(e.lastAdvance)))
		return false
	}

	if want := e.opts.Schedule.ModeAt(now); want != e.mode {
		e.beginTransition(want)
		metrics.TrackAdvances.WithLabelValues(cause).Inc()
		return true
	}

	e.next(now)
	metrics.TrackAdvances.WithLabelValues(cause).Inc()
	return true
}

// next plays the following track of the current mode. A refreshed catalog
// waiting for this mode replaces the order once it is exhausted.
func (e *Engine) next(now time.Time) {
	if e.playlist.AtEnd() && e.pending != nil && e.pendingMode == e.mode {
		logger.Info("Installing refreshed catalog",
			logger.String("mode", e.mode.String()),
			logger.Int("tracks", len(e.pending)))
		e.install(e.mode, e.pending, now)
		return
	}
	track, reshuffled := e.playlist.Next()
	if reshuffled {
		logger.Debug("Playlist exhausted, reshuffled", logger.String("mode", e.mode.String()))
	}
	e.play(track, now)
}

// beginTransition takes the station off air while the target mode's
// catalog is rebuilt in the background. Caller holds mu.
func (e *Engine) beginTransition(target model.Mode) {
	logger.Info("Switching mode",
		logger.String("from", e.mode.String()),
		logger.String("to", target.String()))
	e.transitioning = true
	e.target = target
	e.timeline.Clear()

	ctx := e.ctx
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.runTransition(ctx, target)
	}()
}

func (e *Engine) runTransition(ctx context.Context, target model.Mode) {
	tracks, err := e.opts.Catalog.Build(ctx, target)
	if err != nil {
		e.abandonTransition(target, err)
		return
	}

	select {
	case <-e.clock.After(e.opts.SettleDelay):
	case <-ctx.Done():
		e.abandonTransition(target, ctx.Err())
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.transitioning = false
	e.install(target, tracks, e.clock.Now())
	metrics.ModeTransitions.WithLabelValues("ok").Inc()
}

// abandonTransition goes back on air with the next track of the mode that
// was playing. The following advance decision retries the switch.
func (e *Engine) abandonTransition(target model.Mode, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	metrics.ModeTransitions.WithLabelValues("failed").Inc()
	logger.Error("Mode transition failed, staying in current mode",
		logger.String("mode", e.mode.String()),
		logger.String("target", target.String()),
		logger.ErrorField(err))
	e.transitioning = false
	e.next(e.clock.Now())
}

// ReportTrackEnd handles a listener's "track ended" signal. A non-empty
// trackID that is not on air marks the report stale.
func (e *Engine) ReportTrackEnd(trackID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if trackID != "" && trackID != e.timeline.Track() {
		metrics.IgnoredSignals.WithLabelValues("trackEnd").Inc()
		logger.Debug("Ignoring stale track end", logger.String("track", trackID))
		return false
	}
	return e.advance(e.clock.Now(), false, causeClient)
}

// ReportDuration records the current track's length as measured by a
// listener. The first valid report wins.
func (e *Engine) ReportDuration(trackID string, seconds float64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.transitioning || (trackID != "" && trackID != e.timeline.Track()) {
		metrics.IgnoredSignals.WithLabelValues("trackDuration").Inc()
		return false
	}
	if !e.timeline.SetDuration(seconds) {
		metrics.IgnoredSignals.WithLabelValues("trackDuration").Inc()
		return false
	}
	logger.Debug("Track duration reported",
		logger.String("track", e.timeline.Track()),
		logger.Float64("seconds", seconds))
	return true
}

// Pause freezes the timeline at its current offset.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return ErrNotStarted
	}
	if e.timeline.Pause(e.clock.Now()) {
		logger.Info("Station paused", logger.String("track", e.timeline.Track()))
	}
	return nil
}

// Resume continues a paused timeline from where it stopped.
func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return ErrNotStarted
	}
	if e.timeline.Resume(e.clock.Now()) {
		logger.Info("Station resumed", logger.String("track", e.timeline.Track()))
	}
	return nil
}

// Refresh rebuilds mode's catalog and keeps it until the current order is
// exhausted. Refreshes of a mode that is not on air are dropped; the next
// transition into that mode rebuilds anyway.
func (e *Engine) Refresh(ctx context.Context, mode model.Mode) error {
	tracks, err := e.opts.Catalog.Build(ctx, mode)
	if err != nil {
		return fmt.Errorf("refresh %s catalog: %w", mode, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started || e.transitioning || mode != e.mode {
		return nil
	}
	e.pending = tracks
	e.pendingMode = mode
	logger.Info("Refreshed catalog queued",
		logger.String("mode", mode.String()),
		logger.Int("tracks", len(tracks)))
	return nil
}

// NowPlaying returns the track on air, if any.
func (e *Engine) NowPlaying() (model.Track, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started || e.transitioning || e.timeline.Track() == "" {
		return model.Track{}, false
	}
	return e.playlist.Current(), true
}

// Snapshot reads the station at now. A playing track that has reached its
// known end is advanced first, so a snapshot never describes a finished
// track.
func (e *Engine) Snapshot(now time.Time) model.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started && !e.transitioning && e.timeline.Ended(now, e.opts.EndEpsilon) {
		e.advance(now, true, causeEnded)
	}

	snap := model.Snapshot{
		Playlist:   []model.UpcomingTrack{},
		ServerTime: now.UnixMilli(),
	}

	switch {
	case !e.started:
		snap.Mode = e.opts.Schedule.ModeAt(now)
		return snap
	case e.transitioning:
		snap.Mode = e.target
		snap.IsPreparing = true
		return snap
	}

	current := e.playlist.Current()
	snap.Track = current.ID
	snap.Title = current.Title
	snap.Artist = current.Artist
	snap.Mode = e.mode
	snap.Seek = e.timeline.Seek(now)
	snap.IsPlaying = e.timeline.Playing()
	snap.CurrentIndex = e.playlist.Index()
	snap.TotalTracks = e.playlist.Len()
	for _, t := range e.playlist.Upcoming(e.opts.UpcomingCount) {
		snap.Playlist = append(snap.Playlist, model.UpcomingTrack{
			Filename: t.ID,
			Title:    t.Title,
			Artist:   t.Artist,
		})
	}
	return snap
}
