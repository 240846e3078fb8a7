package providers

import "github.com/vrsandeep/anime-sync/internal/models"

// Chain holds providers per capability in the order they are tried.
type Chain struct {
	Details   []DetailFetcher
	Episodes  []EpisodeFetcher
	Counters  []EpisodeCounter
	Listers   []Lister
	Schedules []ScheduleFetcher
	Enrichers []Enricher
}

// BuildChain builds a chain from the registry. order governs details,
// listings, schedules and enrichment; episodeOrder governs episode lists
// and counts. Unknown ids are skipped.
func BuildChain(order, episodeOrder []string) *Chain {
	return NewChain(order, episodeOrder, Get)
}

// NewChain is BuildChain with an explicit lookup.
func NewChain(order, episodeOrder []string, lookup func(id string) (Provider, bool)) *Chain {
	c := &Chain{}
	for _, id := range order {
		p, ok := lookup(id)
		if !ok {
			continue
		}
		if f, ok := p.(DetailFetcher); ok {
			c.Details = append(c.Details, f)
		}
		if l, ok := p.(Lister); ok {
			c.Listers = append(c.Listers, l)
		}
		if s, ok := p.(ScheduleFetcher); ok {
			c.Schedules = append(c.Schedules, s)
		}
		if e, ok := p.(Enricher); ok {
			c.Enrichers = append(c.Enrichers, e)
		}
	}
	for _, id := range episodeOrder {
		p, ok := lookup(id)
		if !ok {
			continue
		}
		if f, ok := p.(EpisodeFetcher); ok {
			c.Episodes = append(c.Episodes, f)
		}
		if n, ok := p.(EpisodeCounter); ok {
			c.Counters = append(c.Counters, n)
		}
	}
	return c
}

// Infos lists the providers taking part in the chain, without duplicates.
func (c *Chain) Infos() []models.ProviderInfo {
	seen := map[string]bool{}
	var out []models.ProviderInfo
	add := func(p Provider) {
		info := p.GetInfo()
		if seen[info.ID] {
			return
		}
		seen[info.ID] = true
		out = append(out, info)
	}
	for _, p := range c.Details {
		add(p)
	}
	for _, p := range c.Listers {
		add(p)
	}
	for _, p := range c.Schedules {
		add(p)
	}
	for _, p := range c.Episodes {
		add(p)
	}
	for _, p := range c.Enrichers {
		add(p)
	}
	return out
}
