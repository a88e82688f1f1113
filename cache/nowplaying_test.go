package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SyncFM/model"
)

type fakeRedis struct {
	values    map[string]string
	ttls      map[string]time.Duration
	published map[string][]string
	failSet   error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		values:    map[string]string{},
		ttls:      map[string]time.Duration{},
		published: map[string][]string{},
	}
}

func toString(v interface{}) string {
	switch v := v.(type) {
	case []byte:
		return string(v)
	case string:
		return v
	}
	panic("unexpected value type")
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, exp time.Duration) *redis.StatusCmd {
	if f.failSet != nil {
		return redis.NewStatusResult("", f.failSet)
	}
	f.values[key] = toString(value)
	f.ttls[key] = exp
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Publish(_ context.Context, channel string, message interface{}) *redis.IntCmd {
	f.published[channel] = append(f.published[channel], toString(message))
	return redis.NewIntResult(1, nil)
}

func TestNowPlayingStoresAndPublishes(t *testing.T) {
	fake := newFakeRedis()
	np := NewNowPlaying(fake)
	ctx := context.Background()

	_, ok, err := np.Latest(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	snap := model.Snapshot{
		Track:     "day/a.ogg",
		Title:     "A",
		Artist:    "B",
		Mode:      model.ModeDay,
		Seek:      12.5,
		IsPlaying: true,
		Playlist:  []model.UpcomingTrack{{Filename: "day/b.ogg", Title: "B", Artist: "C"}},
	}
	require.NoError(t, np.PublishSnapshot(ctx, snap))

	assert.Equal(t, nowPlayingTTL, fake.ttls[NowPlayingKey])
	require.Len(t, fake.published[SyncChannel], 1)
	var published model.Snapshot
	require.NoError(t, json.Unmarshal([]byte(fake.published[SyncChannel][0]), &published))
	assert.Equal(t, snap, published)

	got, ok, err := np.Latest(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, snap, got)
}

func TestNowPlayingSetFailure(t *testing.T) {
	fake := newFakeRedis()
	fake.failSet = errors.New("connection refused")
	np := NewNowPlaying(fake)

	err := np.PublishSnapshot(context.Background(), model.Snapshot{Mode: model.ModeNight, IsPreparing: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, fake.failSet)
	assert.Empty(t, fake.published, "nothing is published when the store fails")
}

func TestNowPlayingCorruptValue(t *testing.T) {
	fake := newFakeRedis()
	fake.values[NowPlayingKey] = "{"
	_, ok, err := NewNowPlaying(fake).Latest(context.Background())
	assert.Error(t, err)
	assert.False(t, ok)
}
