// Package knowledge implements the tier-gated knowledge-entry registry:
// register/get/listForTier/search over KnowledgeEntry records, with
// access decisions purely a function of the stored entry's accessTier and
// the caller's tier.
package knowledge

import (
	"strings"
	"sync"

	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/coreerr"
)

// Entry is a knowledge-base article. Content is a free-form structured
// map, so the core stays agnostic to the shape any given prompt or scorecard wants.
type Entry struct {
	ID          string
	Title       string
	Content     map[string]any
	AccessTier  int
	Tags        []string
	Owner       string
	ReviewCycle string
	Version     int
	LastUpdated int64 // unix millis
}

// View annotates an Entry with the caller-tier-derived edit/approve flags.
// It never carries more information than the tier already grants.
type View struct {
	Entry
	CanEdit    bool
	CanApprove bool
}

func newView(e Entry, callerTier int) View {
	return View{
		Entry:      e,
		CanEdit:    callerTier >= 3,
		CanApprove: callerTier >= 4,
	}
}

// Registry is the thread-safe in-memory knowledge-entry store.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Register adds or replaces an entry. It validates AccessTier is within
// the defined 0-4 tier range.
func (r *Registry) Register(e Entry) error {
	if e.ID == "" {
		return coreerr.NewValidationError("id", "must not be empty")
	}
	if e.AccessTier < 0 || e.AccessTier > 4 {
		return coreerr.NewValidationError("accessTier", "must be in [0,4]")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[e.ID] = e
	return nil
}

// Get returns the entry by id, regardless of tier — Get is used
// internally by components (e.g. the agent directory's knowledgeAccess
// snapshot) that already know they're authorized; tier gating happens in
// ListForTier/Search.
func (r *Registry) Get(id string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return Entry{}, coreerr.NewNotFoundError("knowledge_entry", id)
	}
	return e, nil
}

// ListForTier returns every entry with AccessTier <= tier, annotated with
// the caller's edit/approve rights. Entries above tier are never returned.
func (r *Registry) ListForTier(tier int) []View {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]View, 0, len(r.entries))
	for _, e := range r.entries {
		if e.AccessTier <= tier {
			out = append(out, newView(e, tier))
		}
	}
	return out
}

// Search performs a case-insensitive substring match over title and tags,
// filtered by tier; it never returns entries above the caller's tier.
func (r *Registry) Search(query string, tier int) []View {
	q := strings.ToLower(query)
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]View, 0)
	for _, e := range r.entries {
		if e.AccessTier > tier {
			continue
		}
		if strings.Contains(strings.ToLower(e.Title), q) || tagsContain(e.Tags, q) {
			out = append(out, newView(e, tier))
		}
	}
	return out
}

func tagsContain(tags []string, q string) bool {
	for _, tg := range tags {
		if strings.Contains(strings.ToLower(tg), q) {
			return true
		}
	}
	return false
}
