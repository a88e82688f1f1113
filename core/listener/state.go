package listener

import (
	"fmt"
	"time"
)

// State is the reconciliation phase of one listener.
type State int

const (
	Idle               State = iota // not joined; snapshots only update the display
	Joined                          // joined, no track loaded yet
	InitialSyncPending              // track loaded, first correction not done
	Synced                          // steady state
	Paused                          // paused by the user; snapshots are recorded only
	Resuming                        // resumed less than the grace period ago
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Joined:
		return "Joined"
	case InitialSyncPending:
		return "InitialSyncPending"
	case Synced:
		return "Synced"
	case Paused:
		return "Paused"
	case Resuming:
		return "Resuming"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type event int

const (
	evJoin event = iota
	evTrackLoaded
	evInitialSyncDone
	evUserPause
	evUserResume
	evResumeSettled
	evLeave
)

func (e event) String() string {
	switch e {
	case evJoin:
		return "join"
	case evTrackLoaded:
		return "trackLoaded"
	case evInitialSyncDone:
		return "initialSyncDone"
	case evUserPause:
		return "userPause"
	case evUserResume:
		return "userResume"
	case evResumeSettled:
		return "resumeSettled"
	case evLeave:
		return "leave"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

type transitionKey struct {
	from State
	on   event
}

// transitions lists every legal move. evLeave is accepted from any state and
// is handled outside the table.
var transitions = map[transitionKey]State{
	{Idle, evJoin}:        Joined,
	{Idle, evTrackLoaded}: Idle,

	{Joined, evTrackLoaded}: InitialSyncPending,
	{Joined, evUserPause}:   Paused,

	{InitialSyncPending, evTrackLoaded}:     InitialSyncPending,
	{InitialSyncPending, evInitialSyncDone}: Synced,
	{InitialSyncPending, evUserPause}:       Paused,

	{Synced, evTrackLoaded}: InitialSyncPending,
	{Synced, evUserPause}:   Paused,

	{Paused, evTrackLoaded}: Paused,
	{Paused, evUserResume}:  Resuming,

	{Resuming, evTrackLoaded}:     Resuming,
	{Resuming, evInitialSyncDone}: Resuming,
	{Resuming, evResumeSettled}:   Synced,
	{Resuming, evUserPause}:       Paused,
}

// SyncState is the per-listener bookkeeping behind the reconciliation rules.
// It is created on join and discarded on leave. All seeks are in seconds.
type SyncState struct {
	HasJoined               bool
	LocalSeek               float64
	LastServerSeek          float64
	LastSnapshotAt          time.Time
	IsPausedByUser          bool
	LastSyncAt              time.Time // last hard-seek; zero when none yet
	LastResumeAt            time.Time // zero once the resume grace has been consumed
	HasCompletedInitialSync bool

	JoinedAt        time.Time
	JoinSeek        float64 // server position projected at the moment of joining
	HasJoinSeek     bool
	PausedAt        time.Time
	PauseServerSeek float64
}

// ResumeGraceActive reports whether a user resume happened less than grace ago.
func (s *SyncState) ResumeGraceActive(now time.Time, grace time.Duration) bool {
	return !s.LastResumeAt.IsZero() && now.Sub(s.LastResumeAt) < grace
}

// DebounceActive reports whether corrections are still held back after the
// join or after the last hard-seek.
func (s *SyncState) DebounceActive(now time.Time, window time.Duration) bool {
	if now.Sub(s.JoinedAt) < window {
		return true
	}
	return !s.LastSyncAt.IsZero() && now.Sub(s.LastSyncAt) < window
}
