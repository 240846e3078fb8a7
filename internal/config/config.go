// This file defines the configuration structure for the application.
package config

import (
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds all configuration settings for the application.
// It maps directly to the structure of config.yml.
type Config struct {
	Port     int `mapstructure:"port"`
	Database struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
		Caller bool   `mapstructure:"caller"`
	} `mapstructure:"log"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Upstream  UpstreamConfig  `mapstructure:"upstream"`
	Cache     struct {
		ListTTL     time.Duration `mapstructure:"list_ttl"`
		CalendarTTL time.Duration `mapstructure:"calendar_ttl"`
	} `mapstructure:"cache"`
	Sync  SyncConfig  `mapstructure:"sync"`
	Media MediaConfig `mapstructure:"media"`
	Forum ForumConfig `mapstructure:"forum"`
	API   APIConfig   `mapstructure:"api"`
}

// ProvidersConfig selects and configures the upstream metadata providers.
type ProvidersConfig struct {
	// AniListPrimary puts AniList ahead of Jikan in every fallback chain.
	AniListPrimary bool     `mapstructure:"anilist_primary"`
	EpisodeOrder   []string `mapstructure:"episode_order"`
	Jikan          struct {
		BaseURL   string  `mapstructure:"base_url"`
		RateLimit float64 `mapstructure:"rate_limit"`
	} `mapstructure:"jikan"`
	AniList struct {
		Enabled   bool    `mapstructure:"enabled"`
		URL       string  `mapstructure:"url"`
		RateLimit float64 `mapstructure:"rate_limit"`
	} `mapstructure:"anilist"`
	TMDB struct {
		APIKey    string  `mapstructure:"api_key"`
		BaseURL   string  `mapstructure:"base_url"`
		ImageURL  string  `mapstructure:"image_url"`
		Language  string  `mapstructure:"language"`
		RateLimit float64 `mapstructure:"rate_limit"`
	} `mapstructure:"tmdb"`
	AnimeSchedule struct {
		Token     string  `mapstructure:"token"`
		BaseURL   string  `mapstructure:"base_url"`
		RateLimit float64 `mapstructure:"rate_limit"`
	} `mapstructure:"animeschedule"`
}

// DetailOrder returns provider ids in fallback order for detail, list and
// schedule lookups. An enabled AniList that is not primary still follows
// Jikan, which cannot serve "al-" ids.
func (p ProvidersConfig) DetailOrder() []string {
	switch {
	case !p.AniList.Enabled:
		return []string{"jikan", "animeschedule", "tmdb"}
	case p.AniListPrimary:
		return []string{"anilist", "jikan", "animeschedule", "tmdb"}
	default:
		return []string{"jikan", "anilist", "animeschedule", "tmdb"}
	}
}

// UpstreamConfig controls the shared outbound HTTP behaviour.
type UpstreamConfig struct {
	UserAgent         string        `mapstructure:"user_agent"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	RateLimitWait     time.Duration `mapstructure:"rate_limit_wait"`
	TransientWait     time.Duration `mapstructure:"transient_wait"`
	AllowPrivateHosts bool          `mapstructure:"allow_private_hosts"`
}

// SyncConfig controls the background sync workers and schedules.
type SyncConfig struct {
	Workers            int           `mapstructure:"workers"`
	QueueSize          int           `mapstructure:"queue_size"`
	JobsPerSecond      float64       `mapstructure:"jobs_per_second"`
	EpisodePageCap     int           `mapstructure:"episode_page_cap"`
	PagePause          time.Duration `mapstructure:"page_pause"`
	SweepPause         time.Duration `mapstructure:"sweep_pause"`
	BackfillPause      time.Duration `mapstructure:"backfill_pause"`
	BackfillBatch      int           `mapstructure:"backfill_batch"`
	StaleBatch         int           `mapstructure:"stale_batch"`
	SweepInterval      int           `mapstructure:"sweep_interval"`
	StaleInterval      int           `mapstructure:"stale_interval"`
	BackfillInterval   int           `mapstructure:"backfill_interval"`
	DiscussionInterval int           `mapstructure:"discussion_interval"`
	DiscussionLookback time.Duration `mapstructure:"discussion_lookback"`
}

// MediaConfig controls image mirroring.
type MediaConfig struct {
	Dir      string `mapstructure:"dir"`
	BaseURL  string `mapstructure:"base_url"`
	MaxBytes int64  `mapstructure:"max_bytes"`
}

// ForumConfig points at the forum that owns discussion threads.
type ForumConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	BaseURL     string `mapstructure:"base_url"`
	APIKey      string `mapstructure:"api_key"`
	APIUsername string `mapstructure:"api_username"`
	CategoryID  int    `mapstructure:"category_id"`
}

// APIConfig holds settings for the REST surface.
type APIConfig struct {
	// SharedKey must match the X-Forum-Api-Key header for user headers to be trusted.
	SharedKey         string `mapstructure:"shared_key"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute"`
}

// Load reads configuration from a file named "config.yml" in the
// current directory and unmarshals it into a Config struct.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AddConfigPath(".")

	// ANIME_DATABASE_PATH overrides `database.path`, and so on.
	viper.SetEnvPrefix("ANIME")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	SetDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	return unmarshal()
}

// SetDefaults registers a default for every known key.
func SetDefaults() {
	viper.SetDefault("port", 8080)
	viper.SetDefault("database.path", "./anime.db")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "auto")
	viper.SetDefault("log.caller", false)

	viper.SetDefault("providers.anilist_primary", true)
	viper.SetDefault("providers.episode_order", []string{"jikan", "anilist"})
	viper.SetDefault("providers.jikan.base_url", "https://api.jikan.moe/v4")
	viper.SetDefault("providers.jikan.rate_limit", 3.0)
	viper.SetDefault("providers.anilist.enabled", true)
	viper.SetDefault("providers.anilist.url", "https://graphql.anilist.co")
	viper.SetDefault("providers.anilist.rate_limit", 1.5)
	viper.SetDefault("providers.tmdb.base_url", "https://api.themoviedb.org/3")
	viper.SetDefault("providers.tmdb.image_url", "https://image.tmdb.org/t/p")
	viper.SetDefault("providers.tmdb.language", "en-US")
	viper.SetDefault("providers.tmdb.rate_limit", 20.0)
	viper.SetDefault("providers.animeschedule.base_url", "https://animeschedule.net/api/v3")
	viper.SetDefault("providers.animeschedule.rate_limit", 2.0)

	viper.SetDefault("upstream.user_agent", "AnimeSync/1.0")
	viper.SetDefault("upstream.connect_timeout", 10*time.Second)
	viper.SetDefault("upstream.read_timeout", 15*time.Second)
	viper.SetDefault("upstream.max_attempts", 3)
	viper.SetDefault("upstream.rate_limit_wait", 1500*time.Millisecond)
	viper.SetDefault("upstream.transient_wait", time.Second)
	viper.SetDefault("upstream.allow_private_hosts", false)

	viper.SetDefault("cache.list_ttl", 6*time.Hour)
	viper.SetDefault("cache.calendar_ttl", 6*time.Hour)

	viper.SetDefault("sync.workers", 2)
	viper.SetDefault("sync.queue_size", 256)
	viper.SetDefault("sync.jobs_per_second", 2.0)
	viper.SetDefault("sync.episode_page_cap", 3)
	viper.SetDefault("sync.page_pause", 500*time.Millisecond)
	viper.SetDefault("sync.sweep_pause", 100*time.Millisecond)
	viper.SetDefault("sync.backfill_pause", 400*time.Millisecond)
	viper.SetDefault("sync.backfill_batch", 25)
	viper.SetDefault("sync.stale_batch", 50)
	viper.SetDefault("sync.sweep_interval", 60)
	viper.SetDefault("sync.stale_interval", 30)
	viper.SetDefault("sync.backfill_interval", 60)
	viper.SetDefault("sync.discussion_interval", 360)
	viper.SetDefault("sync.discussion_lookback", 48*time.Hour)

	viper.SetDefault("media.dir", "./media/anime")
	viper.SetDefault("media.base_url", "/media/anime")
	viper.SetDefault("media.max_bytes", 5*1024*1024)

	viper.SetDefault("forum.enabled", false)
	viper.SetDefault("forum.api_username", "system")

	viper.SetDefault("api.requests_per_minute", 300)
}

// Watch re-reads config.yml whenever it changes on disk and hands the new
// configuration to onChange. Invalid edits are ignored.
func Watch(onChange func(*Config)) {
	viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := unmarshal()
		if err != nil {
			return
		}
		onChange(cfg)
	})
	viper.WatchConfig()
}

func unmarshal() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}
	return &config, nil
}
