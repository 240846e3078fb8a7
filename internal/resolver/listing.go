package resolver

import (
	"context"
	"fmt"
	"sort"

	"github.com/vrsandeep/anime-sync/internal/logging"
	"github.com/vrsandeep/anime-sync/internal/models"
	"github.com/vrsandeep/anime-sync/internal/upstream"
	"github.com/vrsandeep/anime-sync/internal/util"
)

// List answers a search, top or season listing. Invalid queries fail with
// a *ValidationError before any provider is called.
func (r *Resolver) List(ctx context.Context, q models.ListQuery) (*models.ListResult, error) {
	if q.Page == 0 {
		q.Page = 1
	}
	if err := ValidateQuery(q); err != nil {
		return nil, err
	}
	if cached, ok := r.pages.GetList(q); ok {
		return cached, nil
	}

	var errs []error
	for _, l := range r.chain.Listers {
		provider := l.GetInfo().ID
		res, err := l.List(ctx, q)
		if err != nil {
			logging.Debug().Err(err).Str("provider", provider).Str("kind", string(q.Kind)).Msg("Lister failed, trying next")
			errs = append(errs, fmt.Errorf("%s: %w", provider, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if res.Provider == "" {
			res.Provider = provider
		}
		if res.Items == nil {
			res.Items = []models.AnimeSummary{}
		}
		r.pages.SetList(q, res)
		return res, nil
	}
	return nil, upstream.Exhausted(errs)
}

// Calendar returns this week's airing schedule grouped by weekday.
func (r *Resolver) Calendar(ctx context.Context) (*models.Calendar, error) {
	if cached, ok := r.pages.GetCalendar(); ok {
		return cached, nil
	}

	var errs []error
	for _, s := range r.chain.Schedules {
		provider := s.GetInfo().ID
		entries, err := s.FetchSchedule(ctx)
		if err == nil && len(entries) == 0 {
			err = upstream.ErrPartialData
		}
		if err != nil {
			logging.Debug().Err(err).Str("provider", provider).Msg("Schedule provider failed, trying next")
			errs = append(errs, fmt.Errorf("%s: %w", provider, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		cal := r.groupByDay(entries)
		cal.Provider = provider
		r.pages.SetCalendar(cal)
		return cal, nil
	}
	return nil, upstream.Exhausted(errs)
}

func (r *Resolver) groupByDay(entries []models.ScheduleEntry) *models.Calendar {
	cal := &models.Calendar{Days: make(map[string][]models.ScheduleEntry, 7), GeneratedAt: r.now().UTC()}
	for _, day := range models.Weekdays {
		cal.Days[day] = []models.ScheduleEntry{}
	}
	for _, e := range entries {
		if _, ok := cal.Days[e.Day]; !ok {
			continue
		}
		if e.AnimeID == "" {
			// Schedule-only providers know titles, not ids.
			if id, err := r.store.FindAnimeIDByMatchKey(util.MatchKey(e.Title)); err == nil {
				e.AnimeID = id
			}
		}
		cal.Days[e.Day] = append(cal.Days[e.Day], e)
	}
	for _, day := range cal.Days {
		sort.SliceStable(day, func(i, j int) bool {
			if day[i].Time != day[j].Time {
				return day[i].Time < day[j].Time
			}
			return day[i].Title < day[j].Title
		})
	}
	return cal
}
