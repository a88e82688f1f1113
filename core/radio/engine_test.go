package radio

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SyncFM/core/catalog"
	"SyncFM/core/clock"
	"SyncFM/model"
)

type fakeCatalog struct {
	mu     sync.Mutex
	tracks map[model.Mode][]model.Track
	errs   map[model.Mode]error
	builds map[model.Mode]int
}

func newFakeCatalog(day, night int) *fakeCatalog {
	return &fakeCatalog{
		tracks: map[model.Mode][]model.Track{
			model.ModeDay:   makeTracks("day", day),
			model.ModeNight: makeTracks("night", night),
		},
		errs:   map[model.Mode]error{},
		builds: map[model.Mode]int{},
	}
}

func (f *fakeCatalog) Build(_ context.Context, mode model.Mode) ([]model.Track, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builds[mode]++
	if err := f.errs[mode]; err != nil {
		return nil, err
	}
	if len(f.tracks[mode]) == 0 {
		return nil, fmt.Errorf("%w: mode %s", catalog.ErrEmptyCatalog, mode)
	}
	return append([]model.Track(nil), f.tracks[mode]...), nil
}

func (f *fakeCatalog) set(mode model.Mode, tracks []model.Track, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracks[mode] = tracks
	f.errs[mode] = err
}

func (f *fakeCatalog) buildCount(mode model.Mode) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.builds[mode]
}

// noon is inside the day window of the test schedule.
var noon = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, start time.Time, cat CatalogSource) (*Engine, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(start)
	e := NewEngine(Options{
		Clock:         clk,
		Schedule:      ModeSchedule{Location: time.UTC, DayStartHour: 6, DayEndHour: 24},
		Catalog:       cat,
		MinTrackPlay:  5 * time.Second,
		SettleDelay:   3 * time.Second,
		EndEpsilon:    100 * time.Millisecond,
		UpcomingCount: 10,
		Rand:          rand.New(rand.NewSource(1)),
	})
	return e, clk
}

func startEngine(t *testing.T, start time.Time, cat CatalogSource) (*Engine, *clock.Manual) {
	t.Helper()
	e, clk := newTestEngine(t, start, cat)
	require.NoError(t, e.Start(context.Background()))
	return e, clk
}

func TestEngineStart(t *testing.T) {
	t.Run("empty catalog", func(t *testing.T) {
		e, clk := newTestEngine(t, noon, newFakeCatalog(0, 3))
		err := e.Start(context.Background())
		require.Error(t, err)
		assert.True(t, errors.Is(err, catalog.ErrEmptyCatalog))

		snap := e.Snapshot(clk.Now())
		assert.False(t, snap.HasTrack())
		assert.Equal(t, model.ModeDay, snap.Mode)
		assert.NotNil(t, snap.Playlist)
		assert.False(t, e.Advance(true))
		assert.ErrorIs(t, e.Pause(), ErrNotStarted)
		assert.ErrorIs(t, e.Resume(), ErrNotStarted)
	})

	t.Run("starts in the current mode", func(t *testing.T) {
		e, clk := startEngine(t, noon.Add(13*time.Hour), newFakeCatalog(3, 3))
		snap := e.Snapshot(clk.Now())
		assert.Equal(t, model.ModeNight, snap.Mode)
		assert.True(t, strings.HasPrefix(snap.Track, "night/"))
		assert.True(t, snap.IsPlaying)
		assert.Zero(t, snap.Seek)

		assert.ErrorIs(t, e.Start(context.Background()), ErrAlreadyStarted)
	})
}

func TestEngineMinPlayGuard(t *testing.T) {
	e, clk := startEngine(t, noon, newFakeCatalog(5, 1))
	first, ok := e.NowPlaying()
	require.True(t, ok)

	clk.Advance(2 * time.Second)
	assert.False(t, e.ReportTrackEnd(""))
	assert.False(t, e.Advance(false))
	cur, _ := e.NowPlaying()
	assert.Equal(t, first, cur)

	// Several listeners report the same end: exactly one advance.
	clk.Advance(4 * time.Second)
	assert.True(t, e.ReportTrackEnd(""))
	second, _ := e.NowPlaying()
	assert.NotEqual(t, first.ID, second.ID)
	for i := 0; i < 5; i++ {
		assert.False(t, e.ReportTrackEnd(second.ID))
	}
	cur, _ = e.NowPlaying()
	assert.Equal(t, second, cur)

	// A forced advance ignores the guard.
	assert.True(t, e.Skip())
	cur, _ = e.NowPlaying()
	assert.NotEqual(t, second.ID, cur.ID)
}

func TestEngineStaleReports(t *testing.T) {
	e, clk := startEngine(t, noon, newFakeCatalog(5, 1))
	cur, _ := e.NowPlaying()
	clk.Advance(time.Minute)

	assert.False(t, e.ReportTrackEnd("day/not-playing.ogg"))
	assert.False(t, e.ReportDuration("day/not-playing.ogg", 100))
	after, _ := e.NowPlaying()
	assert.Equal(t, cur, after)

	assert.True(t, e.ReportDuration(cur.ID, 100))
	assert.False(t, e.ReportDuration(cur.ID, 120), "first report wins")
	assert.False(t, e.ReportDuration("", 130))
}

func TestEngineNaturalEndAdvancesExactlyOnce(t *testing.T) {
	e, clk := startEngine(t, noon, newFakeCatalog(6, 1))
	first, _ := e.NowPlaying()
	require.True(t, e.ReportDuration("", 200))

	clk.Set(noon.Add(150 * time.Second))
	snap := e.Snapshot(clk.Now())
	assert.Equal(t, first.ID, snap.Track)
	assert.InDelta(t, 150.0, snap.Seek, 1e-9)

	clk.Set(noon.Add(200050 * time.Millisecond))
	snap = e.Snapshot(clk.Now())
	require.NotEqual(t, first.ID, snap.Track)
	assert.Equal(t, 1, snap.CurrentIndex)
	assert.Zero(t, snap.Seek)

	// Metadata belongs to the new track only.
	next, _ := e.NowPlaying()
	assert.Equal(t, next.ID, snap.Track)
	assert.Equal(t, next.Title, snap.Title)
	assert.Equal(t, next.Artist, snap.Artist)

	again := e.Snapshot(clk.Now())
	assert.Equal(t, snap.Track, again.Track)
	assert.Equal(t, 1, again.CurrentIndex)
}

func TestEngineSnapshotUpcoming(t *testing.T) {
	e, clk := startEngine(t, noon, newFakeCatalog(15, 1))
	snap := e.Snapshot(clk.Now())

	assert.Len(t, snap.Playlist, 10)
	assert.Equal(t, 15, snap.TotalTracks)
	assert.Zero(t, snap.CurrentIndex)
	assert.Equal(t, noon.UnixMilli(), snap.ServerTime)
	for _, up := range snap.Playlist {
		assert.NotEqual(t, snap.Track, up.Filename)
		assert.Equal(t, model.FallbackTitle(up.Filename), up.Title)
	}

	e2, clk2 := startEngine(t, noon, newFakeCatalog(1, 1))
	assert.Empty(t, e2.Snapshot(clk2.Now()).Playlist)
}

func TestEngineModeTransition(t *testing.T) {
	cat := newFakeCatalog(3, 4)
	e, clk := startEngine(t, noon.Add(11*time.Hour+59*time.Minute), cat)
	require.Equal(t, model.ModeDay, e.Snapshot(clk.Now()).Mode)

	clk.Set(noon.Add(12*time.Hour + 30*time.Second))
	require.True(t, e.ReportTrackEnd(""))

	snap := e.Snapshot(clk.Now())
	assert.True(t, snap.IsPreparing)
	assert.Empty(t, snap.Track)
	assert.False(t, snap.HasTrack())
	assert.Equal(t, model.ModeNight, snap.Mode)
	assert.Empty(t, snap.Playlist)

	// Everything is a no-op while the new catalog settles.
	assert.False(t, e.Advance(true))
	assert.False(t, e.ReportDuration("", 100))
	_, ok := e.NowPlaying()
	assert.False(t, ok)

	require.Eventually(t, func() bool { return clk.Waiters() == 1 }, time.Second, time.Millisecond)
	clk.Advance(2 * time.Second)
	assert.True(t, e.Snapshot(clk.Now()).IsPreparing)

	clk.Advance(time.Second)
	require.Eventually(t, func() bool { return !e.Snapshot(clk.Now()).IsPreparing }, time.Second, time.Millisecond)
	e.Wait()

	snap = e.Snapshot(clk.Now())
	assert.Equal(t, model.ModeNight, snap.Mode)
	assert.True(t, strings.HasPrefix(snap.Track, "night/"))
	assert.Zero(t, snap.CurrentIndex)
	assert.Equal(t, 4, snap.TotalTracks)
	assert.Zero(t, snap.Seek)
	assert.Equal(t, 1, cat.buildCount(model.ModeNight))
}

func TestEngineModeTransitionFailure(t *testing.T) {
	cat := newFakeCatalog(3, 4)
	cat.set(model.ModeNight, nil, errors.New("disk unplugged"))
	e, clk := startEngine(t, noon.Add(11*time.Hour+59*time.Minute), cat)
	first, _ := e.NowPlaying()

	clk.Set(noon.Add(12*time.Hour + 30*time.Second))
	require.True(t, e.ReportTrackEnd(""))
	e.Wait()

	snap := e.Snapshot(clk.Now())
	assert.False(t, snap.IsPreparing)
	assert.Equal(t, model.ModeDay, snap.Mode)
	assert.True(t, strings.HasPrefix(snap.Track, "day/"))
	assert.NotEqual(t, first.ID, snap.Track)
	assert.Equal(t, 3, snap.TotalTracks)

	// The next advance retries the transition.
	cat.set(model.ModeNight, makeTracks("night", 4), nil)
	clk.Advance(10 * time.Second)
	require.True(t, e.ReportTrackEnd(""))
	require.Eventually(t, func() bool { return clk.Waiters() == 1 }, time.Second, time.Millisecond)
	clk.Advance(3 * time.Second)
	e.Wait()

	snap = e.Snapshot(clk.Now())
	assert.Equal(t, model.ModeNight, snap.Mode)
	assert.True(t, strings.HasPrefix(snap.Track, "night/"))
	assert.Equal(t, 2, cat.buildCount(model.ModeNight))
}

func TestEngineTransitionCancelled(t *testing.T) {
	cat := newFakeCatalog(3, 4)
	clk := clock.NewManual(noon.Add(11*time.Hour + 59*time.Minute))
	e := NewEngine(Options{
		Clock:       clk,
		Schedule:    ModeSchedule{Location: time.UTC, DayStartHour: 6, DayEndHour: 24},
		Catalog:     cat,
		SettleDelay: 3 * time.Second,
		Rand:        rand.New(rand.NewSource(1)),
	})
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, e.Start(ctx))

	clk.Set(noon.Add(12*time.Hour + 30*time.Second))
	require.True(t, e.Advance(false))
	require.Eventually(t, func() bool { return clk.Waiters() == 1 }, time.Second, time.Millisecond)
	cancel()
	e.Wait()

	snap := e.Snapshot(clk.Now())
	assert.False(t, snap.IsPreparing)
	assert.Equal(t, model.ModeDay, snap.Mode)
	assert.True(t, snap.HasTrack(), "back on air in the previous mode")
}

func TestEngineRefreshInstalledAtExhaustion(t *testing.T) {
	cat := newFakeCatalog(3, 2)
	e, clk := startEngine(t, noon, cat)

	cat.set(model.ModeDay, makeTracks("day", 5), nil)
	require.NoError(t, e.Refresh(context.Background(), model.ModeDay))
	require.NoError(t, e.Refresh(context.Background(), model.ModeNight), "refresh of another mode is dropped")

	for i := 1; i <= 2; i++ {
		clk.Advance(time.Second)
		require.True(t, e.Skip())
		snap := e.Snapshot(clk.Now())
		assert.Equal(t, i, snap.CurrentIndex)
		assert.Equal(t, 3, snap.TotalTracks, "current order runs to completion")
	}

	clk.Advance(time.Second)
	require.True(t, e.Skip())
	snap := e.Snapshot(clk.Now())
	assert.Zero(t, snap.CurrentIndex)
	assert.Equal(t, 5, snap.TotalTracks)

	cat.set(model.ModeDay, nil, errors.New("gone"))
	assert.Error(t, e.Refresh(context.Background(), model.ModeDay))
}

func TestEnginePauseResume(t *testing.T) {
	e, clk := startEngine(t, noon, newFakeCatalog(3, 1))
	require.True(t, e.ReportDuration("", 40))

	clk.Advance(30 * time.Second)
	require.NoError(t, e.Pause())
	clk.Advance(time.Minute)

	snap := e.Snapshot(clk.Now())
	assert.False(t, snap.IsPlaying)
	assert.InDelta(t, 30.0, snap.Seek, 1e-9)
	assert.Zero(t, snap.CurrentIndex, "a paused track does not end")

	require.NoError(t, e.Resume())
	clk.Advance(5 * time.Second)
	snap = e.Snapshot(clk.Now())
	assert.True(t, snap.IsPlaying)
	assert.InDelta(t, 35.0, snap.Seek, 1e-6)
}

func TestEnginePausedIgnoresClientEnd(t *testing.T) {
	e, clk := startEngine(t, noon, newFakeCatalog(3, 1))
	first, _ := e.NowPlaying()

	clk.Advance(30 * time.Second)
	require.NoError(t, e.Pause())
	clk.Advance(time.Minute)

	assert.False(t, e.ReportTrackEnd(first.ID))
	assert.False(t, e.Advance(false))
	snap := e.Snapshot(clk.Now())
	assert.Equal(t, first.ID, snap.Track)
	assert.False(t, snap.IsPlaying, "the pause survives a client report")
	assert.InDelta(t, 30.0, snap.Seek, 1e-9)

	// An admin skip still moves on.
	require.True(t, e.Skip())
	snap = e.Snapshot(clk.Now())
	assert.NotEqual(t, first.ID, snap.Track)
	assert.True(t, snap.IsPlaying)
}
