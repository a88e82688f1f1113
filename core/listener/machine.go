// Package listener keeps a local, independently clocked media element close
// to the station timeline described by the snapshots it receives.
package listener

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strings"
	"sync"
	"time"

	"SyncFM/core/clock"
	"SyncFM/logger"
	"SyncFM/model"
)

// ErrNotJoined is returned by user actions issued before Join.
var ErrNotJoined = errors.New("listener: not joined")

// Options configures a Machine. Zero thresholds take the defaults.
type Options struct {
	Media     Media
	Reporter  Reporter // optional
	Clock     clock.Clock
	Frames    FrameScheduler
	SourceURL func(trackID string) string

	InitialDrift float64 // seconds; initial sync threshold
	ResumeDrift  float64 // seconds; threshold right after a user resume
	SteadyDrift  float64 // seconds; steady-state threshold
	Debounce     time.Duration
	ResumeGrace  time.Duration
}

func (o *Options) setDefaults() {
	if o.Clock == nil {
		o.Clock = clock.Real{}
	}
	if o.Frames == nil {
		o.Frames = NewTimerFrames(16 * time.Millisecond)
	}
	if o.SourceURL == nil {
		o.SourceURL = MusicPath("")
	}
	if o.InitialDrift <= 0 {
		o.InitialDrift = 0.5
	}
	if o.ResumeDrift <= 0 {
		o.ResumeDrift = 1
	}
	if o.SteadyDrift <= 0 {
		o.SteadyDrift = 5
	}
	if o.Debounce <= 0 {
		o.Debounce = 2 * time.Second
	}
	if o.ResumeGrace <= 0 {
		o.ResumeGrace = 2 * time.Second
	}
}

// MusicPath returns a SourceURL function serving tracks under base + "/music/".
func MusicPath(base string) func(string) string {
	base = strings.TrimSuffix(base, "/")
	return func(trackID string) string {
		parts := strings.Split(trackID, "/")
		for i, p := range parts {
			parts[i] = url.PathEscape(p)
		}
		return base + "/music/" + strings.Join(parts, "/")
	}
}

// View is what a player UI shows.
type View struct {
	State     State
	Track     string
	Title     string
	Artist    string
	Mode      model.Mode
	Position  float64
	Preparing bool
	Playing   bool // the local element is playing
	Paused    bool // paused by the user
	Playlist  []model.UpcomingTrack
}

// Machine is the reconciliation state machine of one listener.
// All methods are safe for concurrent use.
type Machine struct {
	opts Options

	mu    sync.Mutex
	state State
	sync  SyncState

	track         string // track whose source is loaded in the element
	title         string
	artist        string
	mode          model.Mode
	preparing     bool
	serverPlaying bool
	playlist      []model.UpcomingTrack
	display       float64

	pendingStart bool // the loaded source has not been started yet
	started      bool // last play attempt succeeded

	gen               uint64 // bumped by pause, track change and leave
	correctionPending bool
}

// New creates a Machine in the Idle state.
func New(opts Options) *Machine {
	opts.setDefaults()
	return &Machine{opts: opts, state: Idle}
}

// fire applies a transition. Caller holds mu.
func (m *Machine) fire(ev event) bool {
	if ev == evLeave {
		m.state = Idle
		return true
	}
	next, ok := transitions[transitionKey{m.state, ev}]
	if !ok {
		logger.Debug("Ignoring listener event",
			logger.String("state", m.state.String()),
			logger.String("event", ev.String()))
		return false
	}
	if next != m.state {
		logger.Debug("Listener state change",
			logger.String("from", m.state.String()),
			logger.String("to", next.String()),
			logger.String("event", ev.String()))
	}
	m.state = next
	return true
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SyncState returns a copy of the bookkeeping record.
func (m *Machine) SyncState() SyncState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sync
}

// View returns the display model.
func (m *Machine) View() View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return View{
		State:     m.state,
		Track:     m.track,
		Title:     m.title,
		Artist:    m.artist,
		Mode:      m.mode,
		Position:  m.display,
		Preparing: m.preparing,
		Playing:   m.track != "" && !m.opts.Media.Paused(),
		Paused:    m.sync.IsPausedByUser,
		Playlist:  append([]model.UpcomingTrack(nil), m.playlist...),
	}
}

// liveSeek projects the last server position to now. Caller holds mu.
func (m *Machine) liveSeek(now time.Time) float64 {
	seek := m.sync.LastServerSeek
	if m.serverPlaying && !m.sync.LastSnapshotAt.IsZero() {
		seek += now.Sub(m.sync.LastSnapshotAt).Seconds()
	}
	return seek
}

// joinTarget consumes the position captured at join, carried forward by the
// time spent waiting for the source. Caller holds mu.
func (m *Machine) joinTarget(now time.Time) (float64, bool) {
	if !m.sync.HasJoinSeek {
		return 0, false
	}
	m.sync.HasJoinSeek = false
	target := m.sync.JoinSeek
	if m.serverPlaying {
		target += now.Sub(m.sync.JoinedAt).Seconds()
	}
	return target, true
}

func (m *Machine) ready() bool {
	return m.opts.Media.ReadyState() >= HaveEnoughData
}

// Join starts playback for this listener.
func (m *Machine) Join() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Idle {
		return
	}

	now := m.opts.Clock.Now()
	m.sync = SyncState{
		HasJoined:      true,
		JoinedAt:       now,
		LastServerSeek: m.sync.LastServerSeek,
		LastSnapshotAt: m.sync.LastSnapshotAt,
	}
	m.fire(evJoin)
	logger.Info("Joined radio")

	if m.track == "" {
		return
	}
	m.sync.JoinSeek = m.liveSeek(now)
	m.sync.HasJoinSeek = true
	m.fire(evTrackLoaded)
	if m.pendingStart && m.serverPlaying && m.ready() {
		m.startPlayback(now)
	}
}

// Leave tears the listener down; the element is paused and all sync
// bookkeeping is discarded.
func (m *Machine) Leave() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Idle {
		return
	}
	m.gen++
	m.correctionPending = false
	m.opts.Media.Pause()
	m.sync = SyncState{LastServerSeek: m.sync.LastServerSeek, LastSnapshotAt: m.sync.LastSnapshotAt}
	m.pendingStart = m.track != ""
	m.started = false
	m.fire(evLeave)
	logger.Info("Left radio")
}

// loadTrack switches the element to a new source. Caller holds mu.
func (m *Machine) loadTrack(trackID string) {
	m.gen++
	m.correctionPending = false
	m.track = trackID
	m.pendingStart = true
	m.started = false
	m.sync.HasCompletedInitialSync = false
	m.sync.HasJoinSeek = false
	m.opts.Media.Load(m.opts.SourceURL(trackID))
	m.fire(evTrackLoaded)
	logger.Debug("Loading track", logger.String("track", trackID))
}

// startPlayback seeks the freshly loaded source into position and starts
// it. Caller holds mu and has checked that the listener is joined, not
// paused and the source is ready.
func (m *Machine) startPlayback(now time.Time) {
	target, ok := m.joinTarget(now)
	if !ok {
		target = m.liveSeek(now)
	}
	m.hardSeek(target, now)
	m.sync.HasCompletedInitialSync = true
	m.pendingStart = false
	m.fire(evInitialSyncDone)
	m.ensurePlaying()
}

func (m *Machine) hardSeek(target float64, now time.Time) {
	m.opts.Media.SetCurrentTime(target)
	m.sync.LocalSeek = target
	m.sync.LastSyncAt = now
	m.display = target
}

// ensurePlaying starts the element unless it already plays. A failed start
// clears the started flag so the next snapshot or user action retries.
func (m *Machine) ensurePlaying() {
	if !m.opts.Media.Paused() {
		m.started = true
		return
	}
	if err := m.opts.Media.Play(); err != nil {
		m.started = false
		logger.Warn("Playback start failed", logger.String("track", m.track), logger.ErrorField(err))
		return
	}
	m.started = true
}

func (m *Machine) ensurePaused() {
	if !m.opts.Media.Paused() {
		m.opts.Media.Pause()
	}
}

// HandleSnapshot reconciles the element against one station snapshot.
func (m *Machine) HandleSnapshot(snap model.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.opts.Clock.Now()
	m.sync.LastServerSeek = snap.Seek
	m.sync.LastSnapshotAt = now
	m.serverPlaying = snap.IsPlaying && !snap.IsPreparing
	m.preparing = snap.IsPreparing
	m.mode = snap.Mode
	m.playlist = snap.Playlist
	if snap.HasTrack() {
		m.title = snap.Title
		m.artist = snap.Artist
	}

	// Track changed.
	if snap.HasTrack() && snap.Track != m.track {
		m.loadTrack(snap.Track)
		m.display = snap.Seek
		return
	}

	// Preparing: the element is left alone.
	if snap.IsPreparing {
		m.display = 0
		return
	}

	if m.state == Idle {
		m.display = snap.Seek
		return
	}
	if m.sync.IsPausedByUser {
		return
	}

	if m.pendingStart {
		if !m.ready() {
			m.display = snap.Seek
			return
		}
		if snap.IsPlaying {
			m.startPlayback(now)
		}
		return
	}

	if snap.IsPlaying != m.started {
		if snap.IsPlaying {
			m.ensurePlaying()
		} else {
			m.ensurePaused()
			m.started = false
		}
	}

	// Media not loaded enough to seek.
	if !m.ready() {
		m.display = snap.Seek
		return
	}

	local := m.opts.Media.CurrentTime()
	m.sync.LocalSeek = local
	drift := math.Abs(local - snap.Seek)

	// Initial sync.
	if !m.sync.HasCompletedInitialSync {
		target, ok := m.joinTarget(now)
		if !ok {
			target = snap.Seek
		}
		if math.Abs(local-target) > m.opts.InitialDrift {
			m.hardSeek(target, now)
		} else {
			m.display = local
		}
		m.sync.HasCompletedInitialSync = true
		m.fire(evInitialSyncDone)
		return
	}

	// Just resumed by the user.
	if m.sync.ResumeGraceActive(now, m.opts.ResumeGrace) {
		if drift > m.opts.ResumeDrift && !m.opts.Media.Paused() {
			m.hardSeek(snap.Seek, now)
			m.sync.LastResumeAt = time.Time{}
			m.fire(evResumeSettled)
			return
		}
	} else if !m.sync.LastResumeAt.IsZero() || m.state == Resuming {
		m.sync.LastResumeAt = time.Time{}
		m.fire(evResumeSettled)
	}

	// Steady state.
	if m.sync.DebounceActive(now, m.opts.Debounce) {
		m.display = local
		return
	}
	if drift > m.opts.SteadyDrift && snap.IsPlaying && !m.opts.Media.Paused() {
		if !m.correctionPending {
			m.scheduleCorrection(snap.Seek)
		}
		return
	}
	m.display = local
}

// scheduleCorrection defers a steady-state hard-seek to the next frame.
// Caller holds mu.
func (m *Machine) scheduleCorrection(target float64) {
	m.correctionPending = true
	gen := m.gen
	logger.Debug("Drift detected, scheduling correction",
		logger.String("track", m.track),
		logger.Float64("target", target))
	m.opts.Frames.Schedule(func() { m.applyCorrection(gen, target) })
}

func (m *Machine) applyCorrection(gen uint64, target float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen || !m.correctionPending {
		logger.Debug("Dropping stale correction", logger.Float64("target", target))
		return
	}
	m.correctionPending = false
	if m.state == Idle || m.sync.IsPausedByUser || m.opts.Media.Paused() {
		logger.Debug("Dropping correction for paused element", logger.Float64("target", target))
		return
	}
	m.hardSeek(target, m.opts.Clock.Now())
}

// PauseByUser stops the element immediately and remembers where the
// station was.
func (m *Machine) PauseByUser() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Idle {
		return ErrNotJoined
	}
	if m.sync.IsPausedByUser {
		return nil
	}

	m.gen++
	m.correctionPending = false
	m.sync.IsPausedByUser = true
	m.sync.PausedAt = m.opts.Clock.Now()
	m.sync.PauseServerSeek = m.sync.LastServerSeek
	m.sync.LastResumeAt = time.Time{}
	m.opts.Media.Pause()
	m.sync.LocalSeek = m.opts.Media.CurrentTime()
	m.display = m.sync.LocalSeek
	m.fire(evUserPause)
	return nil
}

// ResumeByUser seeks back to the station position when the element has
// drifted and resumes playback. On a play failure the listener stays paused.
// While the station itself is paused the element stays paused too.
func (m *Machine) ResumeByUser() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Idle {
		return ErrNotJoined
	}
	if !m.sync.IsPausedByUser {
		return nil
	}

	now := m.opts.Clock.Now()
	if m.ready() {
		local := m.opts.Media.CurrentTime()
		if drift := math.Abs(local - m.sync.LastServerSeek); drift > m.opts.ResumeDrift {
			logger.Debug("Resyncing on resume", logger.Float64("drift", drift))
			m.hardSeek(m.sync.LastServerSeek, now)
		}
	}

	// Station paused: the next playing snapshot starts the element.
	if !m.serverPlaying {
		m.ensurePaused()
		m.started = false
		m.sync.IsPausedByUser = false
		m.sync.PausedAt = time.Time{}
		m.sync.LastResumeAt = now
		m.fire(evUserResume)
		return nil
	}

	if err := m.opts.Media.Play(); err != nil {
		m.started = false
		return fmt.Errorf("resume playback: %w", err)
	}
	m.started = true
	m.pendingStart = false
	m.sync.IsPausedByUser = false
	m.sync.PausedAt = time.Time{}
	m.sync.LastResumeAt = now
	m.fire(evUserResume)
	return nil
}

// HandleMediaReady is called once the loaded source can play through.
func (m *Machine) HandleMediaReady() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Idle || m.sync.IsPausedByUser || !m.pendingStart || !m.serverPlaying {
		return
	}
	m.startPlayback(m.opts.Clock.Now())
}

// HandleMetadataLoaded reports the measured duration of the loaded track.
func (m *Machine) HandleMetadataLoaded(seconds float64) {
	m.mu.Lock()
	track := m.track
	m.mu.Unlock()

	if m.opts.Reporter == nil || track == "" || math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds <= 0 {
		return
	}
	if err := m.opts.Reporter.ReportDuration(track, seconds); err != nil {
		logger.Warn("Failed to report track duration", logger.String("track", track), logger.ErrorField(err))
	}
}

// HandleTimeUpdate adopts the element's clock for display.
func (m *Machine) HandleTimeUpdate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Idle || m.correctionPending || m.track == "" {
		return
	}
	m.sync.LocalSeek = m.opts.Media.CurrentTime()
	m.display = m.sync.LocalSeek
}

// HandleEnded tells the station that the loaded track finished playing here.
func (m *Machine) HandleEnded() {
	m.mu.Lock()
	track := m.track
	joined := m.state != Idle
	m.mu.Unlock()

	if !joined || m.opts.Reporter == nil || track == "" {
		return
	}
	logger.Debug("Track ended, notifying station", logger.String("track", track))
	if err := m.opts.Reporter.ReportTrackEnd(track); err != nil {
		logger.Warn("Failed to report track end", logger.String("track", track), logger.ErrorField(err))
	}
}
