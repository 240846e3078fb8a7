// Package pagecache caches listing pages and the weekly calendar in memory
// under structured, version-stamped keys.
package pagecache

import (
	"encoding/hex"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/vrsandeep/anime-sync/internal/models"
)

// KeyVersion is bumped whenever the cached value shape changes so old
// entries are never read back.
const KeyVersion = 2

// Key identifies one cached value. Params are fingerprinted, not embedded,
// so keys have a fixed length regardless of the query.
type Key struct {
	Kind   string
	ID     string
	Params map[string]string
}

// String renders v<version>:<kind>:<id>:<fingerprint>.
func (k Key) String() string {
	return fmt.Sprintf("v%d:%s:%s:%s", KeyVersion, k.Kind, k.ID, k.fingerprint())
}

func (k Key) fingerprint() string {
	names := make([]string, 0, len(k.Params))
	for name, v := range k.Params {
		if v != "" {
			names = append(names, name)
		}
	}
	slices.Sort(names)

	h, _ := blake2b.New(16, nil)
	for _, name := range names {
		h.Write([]byte(name))
		h.Write([]byte{0})
		h.Write([]byte(k.Params[name]))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// ListKey builds the key for a listing query. Equivalent queries (case,
// spacing, genre order) share a key.
func ListKey(q models.ListQuery) Key {
	genres := slices.Clone(q.Genres)
	slices.Sort(genres)
	genres = slices.Compact(genres)
	gs := make([]string, len(genres))
	for i, g := range genres {
		gs[i] = strconv.Itoa(g)
	}

	params := map[string]string{
		"q":        normalizeText(q.Query),
		"genres":   strings.Join(gs, ","),
		"status":   strings.ToLower(q.Status),
		"type":     strings.ToLower(q.Type),
		"order_by": strings.ToLower(q.OrderBy),
		"sort":     strings.ToLower(q.Sort),
		"page":     strconv.Itoa(max(q.Page, 1)),
	}
	if q.Kind == models.ListSeason {
		params["year"] = strconv.Itoa(q.Year)
		params["season"] = strings.ToLower(q.Season)
	}
	return Key{Kind: "list", ID: string(q.Kind), Params: params}
}

// CalendarKey is the key of the weekly schedule.
func CalendarKey() Key {
	return Key{Kind: "calendar", ID: "week"}
}
