package core

import (
	"github.com/vrsandeep/anime-sync/internal/config"
	"github.com/vrsandeep/anime-sync/internal/forum"
	"github.com/vrsandeep/anime-sync/internal/jobs"
	"github.com/vrsandeep/anime-sync/internal/logging"
	"github.com/vrsandeep/anime-sync/internal/media"
	"github.com/vrsandeep/anime-sync/internal/providers"
	"github.com/vrsandeep/anime-sync/internal/providers/anilist"
	"github.com/vrsandeep/anime-sync/internal/providers/animeschedule"
	"github.com/vrsandeep/anime-sync/internal/providers/jikan"
	"github.com/vrsandeep/anime-sync/internal/providers/tmdb"
	"github.com/vrsandeep/anime-sync/internal/upstream"
)

// UpstreamOptions turns the shared outbound settings into client options.
func UpstreamOptions(cfg *config.Config, requestsPerSecond float64) upstream.Options {
	u := cfg.Upstream
	return upstream.Options{
		ConnectTimeout:    u.ConnectTimeout,
		ReadTimeout:       u.ReadTimeout,
		UserAgent:         u.UserAgent,
		RequestsPerSecond: requestsPerSecond,
		AllowPrivateHosts: u.AllowPrivateHosts,
		Policy: upstream.Policy{
			MaxAttempts:   u.MaxAttempts,
			RateLimitWait: u.RateLimitWait,
			TransientWait: u.TransientWait,
		},
	}
}

// RegisterProviders registers every provider the configuration enables.
// Jikan is always on; the others need to be enabled or given credentials.
func RegisterProviders(cfg *config.Config) {
	p := cfg.Providers

	providers.Register(jikan.New(
		upstream.NewClient(jikan.ID, UpstreamOptions(cfg, p.Jikan.RateLimit)),
		p.Jikan.BaseURL,
	))

	if p.AniList.Enabled {
		providers.Register(anilist.New(
			upstream.NewClient(anilist.ID, UpstreamOptions(cfg, p.AniList.RateLimit)),
			p.AniList.URL,
		))
	}

	if p.TMDB.APIKey != "" {
		providers.Register(tmdb.New(
			upstream.NewClient(tmdb.ID, UpstreamOptions(cfg, p.TMDB.RateLimit)),
			p.TMDB.BaseURL, p.TMDB.ImageURL, p.TMDB.APIKey, p.TMDB.Language,
		))
	} else {
		logging.Info().Msg("No TMDB api key, enrichment is disabled")
	}

	if p.AnimeSchedule.Token != "" {
		opts := animeschedule.NewClientOptions(UpstreamOptions(cfg, p.AnimeSchedule.RateLimit), p.AnimeSchedule.Token)
		providers.Register(animeschedule.New(
			upstream.NewClient(animeschedule.ID, opts),
			p.AnimeSchedule.BaseURL,
		))
	}

	for _, info := range providers.GetAll() {
		logging.Info().Str("provider", info.ID).Strs("capabilities", info.Capabilities).Msg("Registered provider")
	}
}

// NewThreadStore returns the Discourse thread store, or nil when the
// forum is disabled.
func NewThreadStore(cfg *config.Config) forum.ThreadStore {
	f := cfg.Forum
	if !f.Enabled || f.BaseURL == "" {
		return nil
	}
	opts := forum.NewClientOptions(UpstreamOptions(cfg, 2), f.APIKey, f.APIUsername)
	// A retried post can open a second thread.
	opts.Policy.MaxAttempts = 1
	return forum.NewDiscourse(upstream.NewClient("forum", opts), f.BaseURL)
}

// NewMirror returns the poster mirror, or nil when no media dir is set.
func NewMirror(cfg *config.Config) jobs.ImageMirror {
	m := cfg.Media
	if m.Dir == "" {
		return nil
	}
	client := upstream.NewClient("media", UpstreamOptions(cfg, 4))
	return media.NewMirror(client, m.Dir, m.BaseURL, m.MaxBytes)
}
