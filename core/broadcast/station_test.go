package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SyncFM/core/clock"
	"SyncFM/model"
)

type engineCall struct {
	method  string
	track   string
	seconds float64
}

type fakeEngine struct {
	mu    sync.Mutex
	snap  model.Snapshot
	calls []engineCall
}

func (f *fakeEngine) Snapshot(now time.Time) model.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.snap
	s.ServerTime = now.UnixMilli()
	return s
}

func (f *fakeEngine) ReportTrackEnd(trackID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, engineCall{method: "end", track: trackID})
	return true
}

func (f *fakeEngine) ReportDuration(trackID string, seconds float64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, engineCall{method: "duration", track: trackID, seconds: seconds})
	return true
}

type recorder struct {
	mu     sync.Mutex
	frames [][]byte
	errs   []string
}

func (r *recorder) Broadcast(frame []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, frame)
}

func (r *recorder) Send(frame []byte) bool {
	r.Broadcast(frame)
	return true
}

func (r *recorder) SendError(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, message)
}

type sinkFunc func(ctx context.Context, snap model.Snapshot) error

func (f sinkFunc) PublishSnapshot(ctx context.Context, snap model.Snapshot) error {
	return f(ctx, snap)
}

func decodeSync(t *testing.T, frame []byte) model.Snapshot {
	t.Helper()
	msg, err := Decode(frame)
	require.NoError(t, err)
	require.Equal(t, MsgTypeSync, msg.Type)
	var snap model.Snapshot
	require.NoError(t, json.Unmarshal(msg.Data, &snap))
	return snap
}

var onAir = model.Snapshot{
	Track:     "day/a.ogg",
	Title:     "A",
	Artist:    "Band",
	Mode:      model.ModeDay,
	Seek:      12.5,
	IsPlaying: true,
	Playlist:  []model.UpcomingTrack{{Filename: "day/b.ogg", Title: "B", Artist: "Band"}},
}

func TestStationTick(t *testing.T) {
	clk := clock.NewManual(time.UnixMilli(1700000000000))
	eng := &fakeEngine{snap: onAir}
	out := &recorder{}

	var sunk []model.Snapshot
	okSink := sinkFunc(func(_ context.Context, snap model.Snapshot) error {
		sunk = append(sunk, snap)
		return nil
	})
	badSink := sinkFunc(func(context.Context, model.Snapshot) error { return errors.New("redis down") })

	st := NewStation(eng, out, clk, 2*time.Second, badSink, okSink)
	st.Tick(context.Background())
	clk.Advance(2 * time.Second)
	st.Tick(context.Background())

	require.Len(t, out.frames, 2, "every tick is pushed unconditionally")
	first := decodeSync(t, out.frames[0])
	assert.Equal(t, "day/a.ogg", first.Track)
	assert.Equal(t, 12.5, first.Seek)
	assert.Equal(t, int64(1700000000000), first.ServerTime)
	assert.Equal(t, int64(1700000002000), decodeSync(t, out.frames[1]).ServerTime)

	assert.Len(t, sunk, 2, "a failing sink does not stop the others")
}

func TestStationGreetTargetsOnePeer(t *testing.T) {
	eng := &fakeEngine{snap: onAir}
	everyone := &recorder{}
	newcomer := &recorder{}

	st := NewStation(eng, everyone, clock.NewManual(time.Now()), time.Second)
	st.Greet(newcomer)

	assert.Empty(t, everyone.frames)
	require.Len(t, newcomer.frames, 1)
	assert.Equal(t, "day/a.ogg", decodeSync(t, newcomer.frames[0]).Track)
}

func TestStationPreparingSnapshotOnWire(t *testing.T) {
	eng := &fakeEngine{snap: model.Snapshot{Mode: model.ModeNight, IsPreparing: true, Playlist: []model.UpcomingTrack{}}}
	out := &recorder{}
	NewStation(eng, out, clock.NewManual(time.Now()), time.Second).Tick(context.Background())

	require.Len(t, out.frames, 1)
	msg, err := Decode(out.frames[0])
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.Data, &raw))
	assert.Equal(t, true, raw["isPreparing"])
	assert.Equal(t, "night", raw["mode"])
	assert.NotContains(t, raw, "track")
	assert.Equal(t, []interface{}{}, raw["playlist"])
}

func TestStationHandleMessage(t *testing.T) {
	tests := []struct {
		name      string
		msg       WSMessage
		wantCalls []engineCall
		wantErr   bool
	}{
		{
			name:      "track end without payload",
			msg:       WSMessage{Type: MsgTypeTrackEnd},
			wantCalls: []engineCall{{method: "end"}},
		},
		{
			name:      "track end naming a track",
			msg:       WSMessage{Type: MsgTypeTrackEnd, Data: json.RawMessage(`{"track":"day/a.ogg"}`)},
			wantCalls: []engineCall{{method: "end", track: "day/a.ogg"}},
		},
		{
			name:      "bare duration",
			msg:       WSMessage{Type: MsgTypeTrackDuration, Data: json.RawMessage(`200`)},
			wantCalls: []engineCall{{method: "duration", seconds: 200}},
		},
		{
			name:      "duration object",
			msg:       WSMessage{Type: MsgTypeTrackDuration, Data: json.RawMessage(`{"track":"day/a.ogg","seconds":180.5}`)},
			wantCalls: []engineCall{{method: "duration", track: "day/a.ogg", seconds: 180.5}},
		},
		{
			name:    "malformed duration",
			msg:     WSMessage{Type: MsgTypeTrackDuration, Data: json.RawMessage(`"long"`)},
			wantErr: true,
		},
		{
			name:    "unknown type",
			msg:     WSMessage{Type: "chat"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := &fakeEngine{snap: onAir}
			from := &recorder{}
			st := NewStation(eng, &recorder{}, clock.NewManual(time.Now()), time.Second)

			msg := tt.msg
			st.HandleMessage(context.Background(), from, &msg)

			assert.Equal(t, tt.wantCalls, eng.calls)
			assert.Equal(t, tt.wantErr, len(from.errs) == 1)
		})
	}
}

func TestStationRunStopsWithContext(t *testing.T) {
	eng := &fakeEngine{snap: onAir}
	out := &recorder{}
	st := NewStation(eng, out, nil, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		st.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		out.mu.Lock()
		defer out.mu.Unlock()
		return len(out.frames) >= 2
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
