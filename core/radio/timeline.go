package radio

import (
	"math"
	"time"
)

// Timeline records what is playing and since when. The playback offset is
// never stored; it is derived from startedAt on every read.
type Timeline struct {
	track     string
	startedAt time.Time
	duration  float64 // seconds; 0 until a listener reports it
	playing   bool
	frozen    float64 // offset captured by Pause
}

// Start begins track at offset zero.
func (t *Timeline) Start(track string, now time.Time) {
	*t = Timeline{track: track, startedAt: now, playing: true}
}

// Clear forgets the current track.
func (t *Timeline) Clear() {
	*t = Timeline{}
}

func (t *Timeline) Track() string { return t.track }

func (t *Timeline) Playing() bool { return t.playing }

// Duration returns the known duration of the current track.
func (t *Timeline) Duration() (float64, bool) {
	return t.duration, t.duration > 0
}

// SetDuration records the track length. Only the first valid report per
// track is kept.
func (t *Timeline) SetDuration(seconds float64) bool {
	if t.track == "" || t.duration > 0 {
		return false
	}
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds <= 0 {
		return false
	}
	t.duration = seconds
	return true
}

// Seek returns the offset into the current track in seconds, clamped to
// [0, duration].
func (t *Timeline) Seek(now time.Time) float64 {
	if t.track == "" {
		return 0
	}
	if !t.playing {
		return t.frozen
	}
	elapsed := now.Sub(t.startedAt).Seconds()
	if elapsed < 0 {
		return 0
	}
	if t.duration > 0 && elapsed > t.duration {
		return t.duration
	}
	return elapsed
}

// Ended reports whether a playing track has reached its known end, within eps.
func (t *Timeline) Ended(now time.Time, eps time.Duration) bool {
	if !t.playing || t.duration <= 0 {
		return false
	}
	return t.Seek(now) >= t.duration-eps.Seconds()
}

// Pause freezes the offset.
func (t *Timeline) Pause(now time.Time) bool {
	if t.track == "" || !t.playing {
		return false
	}
	t.frozen = t.Seek(now)
	t.playing = false
	return true
}

// Resume continues from the frozen offset.
func (t *Timeline) Resume(now time.Time) bool {
	if t.track == "" || t.playing {
		return false
	}
	t.startedAt = now.Add(-time.Duration(t.frozen * float64(time.Second)))
	t.playing = true
	t.frozen = 0
	return true
}
