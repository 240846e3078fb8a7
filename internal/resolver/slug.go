package resolver

import (
	"context"
	"errors"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/vrsandeep/anime-sync/internal/logging"
	"github.com/vrsandeep/anime-sync/internal/models"
	"github.com/vrsandeep/anime-sync/internal/store"
	"github.com/vrsandeep/anime-sync/internal/util"
)

// Strategy names the step that resolved an identifier.
type Strategy string

const (
	StrategyID         Strategy = "id"
	StrategyCache      Strategy = "cache"
	StrategySearch     Strategy = "search"
	StrategyUnresolved Strategy = "unresolved"
)

// Resolution is the outcome of ResolveID.
type Resolution struct {
	Input    string   `json:"input"`
	ID       string   `json:"id"`
	Strategy Strategy `json:"strategy"`
}

// Resolved reports whether the input was mapped to a canonical id.
func (r Resolution) Resolved() bool {
	return r.Strategy != StrategyUnresolved
}

// ResolveID maps a canonical id, slug or title to a canonical id. The
// strategies run in a fixed order and the first that answers wins. A
// search hit is saved as an alias so the next call resolves from cache.
func (r *Resolver) ResolveID(ctx context.Context, input string) (Resolution, error) {
	input = strings.TrimSpace(input)

	if id, ok := resolveByID(input); ok {
		return Resolution{Input: input, ID: id, Strategy: StrategyID}, nil
	}

	id, ok, err := r.resolveByCache(input)
	if err != nil {
		return Resolution{}, err
	}
	if ok {
		return Resolution{Input: input, ID: id, Strategy: StrategyCache}, nil
	}

	id, ok = r.resolveBySearch(ctx, input)
	if ok {
		return Resolution{Input: input, ID: id, Strategy: StrategySearch}, nil
	}

	return Resolution{Input: input, ID: input, Strategy: StrategyUnresolved}, nil
}

// resolveByID accepts inputs that already are canonical ids.
func resolveByID(input string) (string, bool) {
	if models.IsCanonicalID(input) {
		return input, true
	}
	return "", false
}

func (r *Resolver) resolveByCache(input string) (string, bool, error) {
	key := util.MatchKey(input)
	if key == "" {
		return "", false, nil
	}
	id, err := r.store.FindAnimeIDByMatchKey(key)
	if errors.Is(err, store.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

// resolveBySearch searches providers by title. Provider failures fall
// through to the unresolved strategy.
func (r *Resolver) resolveBySearch(ctx context.Context, input string) (string, bool) {
	query := util.SlugToQuery(input)
	if query == "" {
		return "", false
	}
	res, err := r.List(ctx, models.ListQuery{Kind: models.ListSearch, Query: query, Page: 1})
	if err != nil {
		logging.Debug().Err(err).Str("input", input).Msg("Slug search failed")
		return "", false
	}
	best, ok := BestMatch(input, res.Items)
	if !ok {
		return "", false
	}
	if err := r.store.SaveSlugAlias(util.MatchKey(input), best.ID); err != nil {
		logging.Warn().Err(err).Str("input", input).Msg("Failed to save slug alias")
	}
	return best.ID, true
}

// BestMatch picks the search result whose title is closest to input by
// edit distance on match keys. Ties keep the earlier result, so a
// provider's own ranking breaks them.
func BestMatch(input string, items []models.AnimeSummary) (models.AnimeSummary, bool) {
	key := util.MatchKey(input)
	bestIdx, bestDist := -1, 0
	for i, item := range items {
		if item.ID == "" {
			continue
		}
		d := levenshtein.ComputeDistance(key, util.MatchKey(item.Title))
		if item.TitleEnglish != "" {
			d = min(d, levenshtein.ComputeDistance(key, util.MatchKey(item.TitleEnglish)))
		}
		if bestIdx < 0 || d < bestDist {
			bestIdx, bestDist = i, d
		}
	}
	if bestIdx < 0 {
		return models.AnimeSummary{}, false
	}
	return items[bestIdx], true
}
