package listener

import (
	"errors"
	"sync"
	"time"

	"SyncFM/core/clock"
)

// SimulatedMedia is a Media driven by a Clock instead of an audio device.
// It becomes ready LoadDelay after Load, plays at Rate times real speed and
// stops at Duration when one is set.
type SimulatedMedia struct {
	mu    sync.Mutex
	clock clock.Clock

	src       string
	loadedAt  time.Time
	loadDelay time.Duration
	duration  float64
	rate      float64
	playErr   error

	position float64 // at anchor
	anchor   time.Time
	paused   bool

	seeks int
}

// NewSimulatedMedia returns an empty, paused element.
func NewSimulatedMedia(clk clock.Clock) *SimulatedMedia {
	return &SimulatedMedia{clock: clk, rate: 1, paused: true}
}

// SetLoadDelay sets how long a source takes to become ready.
func (s *SimulatedMedia) SetLoadDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadDelay = d
}

// SetDuration sets the length of every loaded source in seconds; 0 means unknown.
func (s *SimulatedMedia) SetDuration(seconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.duration = seconds
}

// SetRate makes the local clock run fast (>1) or slow (<1).
func (s *SimulatedMedia) SetRate(rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.position = s.currentTime(s.clock.Now())
	s.anchor = s.clock.Now()
	s.rate = rate
}

// FailPlay makes subsequent Play calls return err; nil restores them.
func (s *SimulatedMedia) FailPlay(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playErr = err
}

// Seeks returns how many times SetCurrentTime was called.
func (s *SimulatedMedia) Seeks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seeks
}

func (s *SimulatedMedia) Load(src string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.src = src
	s.loadedAt = s.clock.Now()
	s.position = 0
	s.anchor = s.loadedAt
	s.paused = true
}

func (s *SimulatedMedia) Source() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src
}

func (s *SimulatedMedia) ReadyState() ReadyState {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.src == "":
		return HaveNothing
	case s.clock.Now().Sub(s.loadedAt) < s.loadDelay:
		return HaveMetadata
	default:
		return HaveEnoughData
	}
}

func (s *SimulatedMedia) currentTime(now time.Time) float64 {
	pos := s.position
	if !s.paused {
		pos += now.Sub(s.anchor).Seconds() * s.rate
	}
	if s.duration > 0 && pos > s.duration {
		return s.duration
	}
	return pos
}

func (s *SimulatedMedia) CurrentTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentTime(s.clock.Now())
}

func (s *SimulatedMedia) SetCurrentTime(seconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seconds < 0 {
		seconds = 0
	}
	if s.duration > 0 && seconds > s.duration {
		seconds = s.duration
	}
	s.position = seconds
	s.anchor = s.clock.Now()
	s.seeks++
}

func (s *SimulatedMedia) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

func (s *SimulatedMedia) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playErr != nil {
		return s.playErr
	}
	if s.src == "" {
		return errors.New("no source loaded")
	}
	if !s.paused {
		return nil
	}
	s.anchor = s.clock.Now()
	s.paused = false
	return nil
}

func (s *SimulatedMedia) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused {
		return
	}
	now := s.clock.Now()
	s.position = s.currentTime(now)
	s.anchor = now
	s.paused = true
}

// Ended reports whether a source with a known duration has played to its end.
func (s *SimulatedMedia) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration > 0 && s.currentTime(s.clock.Now()) >= s.duration
}
