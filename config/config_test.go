package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"SCHEDULE_FILE", "TIMEZONE", "DAY_START_HOUR", "DAY_END_HOUR", "MIN_TRACK_PLAY_MS", "AUDIO_EXTENSIONS", "BROADCAST_INTERVAL_MS"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "Europe/Kyiv", cfg.Timezone)
	assert.Equal(t, 6, cfg.DayStartHour)
	assert.Equal(t, 24, cfg.DayEndHour)
	assert.Equal(t, 5*time.Second, cfg.MinTrackPlay)
	assert.Equal(t, 2*time.Second, cfg.BroadcastInterval)
	assert.Equal(t, 3*time.Second, cfg.SettleDelay)
	assert.Equal(t, 100*time.Millisecond, cfg.EndEpsilon)
	assert.Equal(t, 0.5, cfg.InitialDrift)
	assert.Equal(t, 1.0, cfg.ResumeDrift)
	assert.Equal(t, 5.0, cfg.SteadyDrift)
	assert.Equal(t, []string{".ogg", ".mp3", ".flac", ".m4a"}, cfg.AudioExtensions)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SCHEDULE_FILE", "")
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("DAY_START_HOUR", "8")
	t.Setenv("DAY_END_HOUR", "20")
	t.Setenv("MIN_TRACK_PLAY_MS", "1500")
	t.Setenv("AUDIO_EXTENSIONS", "OGG, mp3")
	t.Setenv("STEADY_DRIFT_SEC", "3.5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "UTC", cfg.Timezone)
	assert.Equal(t, 8, cfg.DayStartHour)
	assert.Equal(t, 20, cfg.DayEndHour)
	assert.Equal(t, 1500*time.Millisecond, cfg.MinTrackPlay)
	assert.Equal(t, []string{".ogg", ".mp3"}, cfg.AudioExtensions)
	assert.Equal(t, 3.5, cfg.SteadyDrift)
}

func TestLoadScheduleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schedule.yaml")
	content := `
timezone: UTC
day:
  start_hour: 7
  end_hour: 23
dirs:
  night: late
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	t.Setenv("SCHEDULE_FILE", path)
	t.Setenv("TIMEZONE", "Europe/Kyiv")
	t.Setenv("DAY_START_HOUR", "")
	t.Setenv("DAY_END_HOUR", "")
	t.Setenv("MUSIC_DIR", "lib")
	t.Setenv("DAY_DIR", "day")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "UTC", cfg.Timezone)
	assert.Equal(t, 7, cfg.DayStartHour)
	assert.Equal(t, 23, cfg.DayEndHour)
	assert.Equal(t, filepath.Join("lib", "late"), cfg.ModeDir("night"))
	assert.Equal(t, filepath.Join("lib", "day"), cfg.ModeDir("day"))
}

func TestLoadScheduleFileErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		t.Setenv("SCHEDULE_FILE", filepath.Join(t.TempDir(), "nope.yaml"))
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("this: is: invalid: ["), 0644))
		t.Setenv("SCHEDULE_FILE", path)
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("unknown mode", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "modes.yaml")
		require.NoError(t, os.WriteFile(path, []byte("dirs:\n  evening: x\n"), 0644))
		t.Setenv("SCHEDULE_FILE", path)
		_, err := Load()
		assert.ErrorContains(t, err, "unknown mode")
	})
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Timezone:          "UTC",
			DayStartHour:      6,
			DayEndHour:        24,
			BroadcastInterval: 2 * time.Second,
			AudioExtensions:   []string{".ogg"},
			TagWorkers:        4,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "wrap-around window", mutate: func(c *Config) { c.DayStartHour, c.DayEndHour = 20, 4 }},
		{name: "unknown timezone", mutate: func(c *Config) { c.Timezone = "Mars/Olympus" }, wantErr: true},
		{name: "start hour out of range", mutate: func(c *Config) { c.DayStartHour = 24 }, wantErr: true},
		{name: "end hour out of range", mutate: func(c *Config) { c.DayEndHour = 25 }, wantErr: true},
		{name: "empty window", mutate: func(c *Config) { c.DayStartHour, c.DayEndHour = 9, 9 }, wantErr: true},
		{name: "zero interval", mutate: func(c *Config) { c.BroadcastInterval = 0 }, wantErr: true},
		{name: "no extensions", mutate: func(c *Config) { c.AudioExtensions = nil }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
