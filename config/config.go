package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // mode computation must not depend on the host's zoneinfo

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config stores the application configuration.
type Config struct {
	Port string

	// Catalog
	MusicDir        string            // root of the audio library, served under /music/
	ModeDirs        map[string]string // mode -> directory relative to MusicDir
	AudioExtensions []string
	TagWorkers      int
	WatchCatalog    bool

	// Schedule
	Timezone     string
	DayStartHour int // first hour (inclusive) of day mode
	DayEndHour   int // last hour (exclusive) of day mode; 24 means midnight

	// Station engine
	MinTrackPlay      time.Duration
	BroadcastInterval time.Duration
	SettleDelay       time.Duration
	EndEpsilon        time.Duration
	UpcomingCount     int

	// Listener reconciliation
	InitialDrift float64 // seconds
	ResumeDrift  float64 // seconds
	SteadyDrift  float64 // seconds
	Debounce     time.Duration
	ResumeGrace  time.Duration

	// Redis now-playing mirror (disabled when RedisHost is empty)
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// MinIO audio store (disabled when MinioEndpoint is empty)
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioRegion    string
	MinioPrefix    string
	MinioUseSSL    bool

	// MySQL tag cache (disabled when DBHost is empty)
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Admin API (disabled when empty)
	AdminJWTSecret string

	// Logging
	LogLevel      string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
}

// scheduleFile is the optional YAML override for the day/night schedule.
type scheduleFile struct {
	Timezone string `yaml:"timezone"`
	Day      struct {
		StartHour *int `yaml:"start_hour"`
		EndHour   *int `yaml:"end_hour"`
	} `yaml:"day"`
	Dirs map[string]string `yaml:"dirs"`
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return intVal
		}
		log.Printf("Ignoring invalid integer %s=%q, using %d", key, value, fallback)
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
		log.Printf("Ignoring invalid number %s=%q, using %g", key, value, fallback)
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvMillis(key string, fallback time.Duration) time.Duration {
	return time.Duration(getEnvInt(key, int(fallback/time.Millisecond))) * time.Millisecond
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		if !strings.HasPrefix(part, ".") {
			part = "." + part
		}
		out = append(out, part)
	}
	return out
}

// Load loads configuration from environment variables (via .env file) or defaults,
// then applies the optional SCHEDULE_FILE and validates the result.
func Load() (*Config, error) {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on existing environment variables and defaults.")
	}

	cfg := &Config{
		Port:     getEnv("PORT", "3001"),
		MusicDir: getEnv("MUSIC_DIR", "music"),
		ModeDirs: map[string]string{
			"day":   getEnv("DAY_DIR", "day"),
			"night": getEnv("NIGHT_DIR", "night"),
		},
		AudioExtensions: splitList(getEnv("AUDIO_EXTENSIONS", ".ogg,.mp3,.flac,.m4a")),
		TagWorkers:      getEnvInt("TAG_WORKERS", 8),
		WatchCatalog:    getEnvBool("WATCH_CATALOG", true),

		Timezone:     getEnv("TIMEZONE", "Europe/Kyiv"),
		DayStartHour: getEnvInt("DAY_START_HOUR", 6),
		DayEndHour:   getEnvInt("DAY_END_HOUR", 24),

		MinTrackPlay:      getEnvMillis("MIN_TRACK_PLAY_MS", 5*time.Second),
		BroadcastInterval: getEnvMillis("BROADCAST_INTERVAL_MS", 2*time.Second),
		SettleDelay:       getEnvMillis("SETTLE_DELAY_MS", 3*time.Second),
		EndEpsilon:        getEnvMillis("END_EPSILON_MS", 100*time.Millisecond),
		UpcomingCount:     getEnvInt("UPCOMING_COUNT", 10),

		InitialDrift: getEnvFloat("INITIAL_DRIFT_SEC", 0.5),
		ResumeDrift:  getEnvFloat("RESUME_DRIFT_SEC", 1),
		SteadyDrift:  getEnvFloat("STEADY_DRIFT_SEC", 5),
		Debounce:     getEnvMillis("DEBOUNCE_MS", 2*time.Second),
		ResumeGrace:  getEnvMillis("RESUME_GRACE_MS", 2*time.Second),

		RedisHost:     getEnv("REDIS_HOST", ""),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", ""),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "syncfm"),
		MinioRegion:    getEnv("MINIO_REGION", ""),
		MinioPrefix:    getEnv("MINIO_PREFIX", "music/"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", true),

		DBHost:     getEnv("DB_HOST", ""),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     getEnv("DB_NAME", "syncfm"),

		AdminJWTSecret: os.Getenv("ADMIN_JWT_SECRET"),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFile:       getEnv("LOG_FILE", ""),
		LogMaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 100),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
		LogMaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 30),
	}

	if path := getEnv("SCHEDULE_FILE", ""); path != "" {
		if err := cfg.applyScheduleFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyScheduleFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read schedule file: %w", err)
	}

	var sf scheduleFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return fmt.Errorf("parse schedule file %s: %w", path, err)
	}

	if sf.Timezone != "" {
		c.Timezone = sf.Timezone
	}
	if sf.Day.StartHour != nil {
		c.DayStartHour = *sf.Day.StartHour
	}
	if sf.Day.EndHour != nil {
		c.DayEndHour = *sf.Day.EndHour
	}
	for mode, dir := range sf.Dirs {
		mode = strings.ToLower(strings.TrimSpace(mode))
		if _, ok := c.ModeDirs[mode]; !ok {
			return fmt.Errorf("schedule file %s: unknown mode %q", path, mode)
		}
		c.ModeDirs[mode] = dir
	}
	return nil
}

// Validate checks ranges and references that would otherwise fail at runtime.
func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.DayStartHour < 0 || c.DayStartHour > 23 {
		return fmt.Errorf("DAY_START_HOUR must be in [0,23], got %d", c.DayStartHour)
	}
	if c.DayEndHour < 1 || c.DayEndHour > 24 {
		return fmt.Errorf("DAY_END_HOUR must be in [1,24], got %d", c.DayEndHour)
	}
	if c.DayStartHour == c.DayEndHour {
		return fmt.Errorf("day window is empty: start and end hour are both %d", c.DayStartHour)
	}
	if c.BroadcastInterval <= 0 {
		return fmt.Errorf("BROADCAST_INTERVAL_MS must be positive")
	}
	if c.MinTrackPlay < 0 || c.SettleDelay < 0 || c.EndEpsilon < 0 {
		return fmt.Errorf("engine durations must not be negative")
	}
	if len(c.AudioExtensions) == 0 {
		return fmt.Errorf("AUDIO_EXTENSIONS must list at least one extension")
	}
	if c.TagWorkers < 1 {
		c.TagWorkers = 1
	}
	if c.UpcomingCount < 0 {
		c.UpcomingCount = 0
	}
	return nil
}

// Location resolves the reference timezone used for mode computation.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("unknown TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// ModeDir returns the absolute-or-relative directory holding a mode's tracks.
func (c *Config) ModeDir(mode string) string {
	return filepath.Join(c.MusicDir, c.ModeDirs[mode])
}

// RedisAddr returns host:port for the Redis client.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}
