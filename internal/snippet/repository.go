package snippet

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Persister is the durable backing for a Repository.
type Persister interface {
	LoadAll() ([]Snippet, error)
	SaveAll([]Snippet) error
}

// Repository is the in-memory snippet collection. All access goes through
// one RWMutex; every read returns copies. Persistence happens after the lock
// is released.
type Repository struct {
	mu       sync.RWMutex
	snippets []Snippet
	store    Persister
	gen      uint64
	saveMu   sync.Mutex
	saved    uint64
	now      func() time.Time
	log      *slog.Logger
}

// NewRepository creates an empty repository backed by p. A nil p keeps
// everything in memory.
func NewRepository(p Persister, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		store: p,
		now:   time.Now,
		log:   logger.With("component", "snippets"),
	}
}

// Load replaces the in-memory collection with the persisted one.
func (r *Repository) Load() error {
	if r.store == nil {
		return nil
	}
	loaded, err := r.store.LoadAll()
	if err != nil {
		return fmt.Errorf("load snippets: %w", err)
	}
	for i := range loaded {
		if loaded[i].ID == "" {
			loaded[i].ID = uuid.NewString()
		}
	}
	r.mu.Lock()
	r.snippets = loaded
	r.mu.Unlock()
	r.checkIntegrity()
	r.log.Info("snippets loaded", "count", len(loaded))
	return nil
}

// checkIntegrity logs shortcuts that collide case-insensitively. The
// repository refuses to create them, but an edited store can still hold them.
func (r *Repository) checkIntegrity() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]string, len(r.snippets))
	for _, s := range r.snippets {
		key := strings.ToLower(s.Shortcut)
		if other, ok := seen[key]; ok {
			r.log.Warn("duplicate shortcut in store", "shortcut", s.Shortcut, "id", s.ID, "other_id", other)
			continue
		}
		seen[key] = s.ID
	}
}

// Lookup finds a snippet by exact shortcut. Comparison ignores case unless
// caseSensitive is set. Disabled snippets are included.
func (r *Repository) Lookup(shortcut string, caseSensitive bool) (Snippet, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.snippets {
		if caseSensitive && s.Shortcut == shortcut || !caseSensitive && strings.EqualFold(s.Shortcut, shortcut) {
			return s.Clone(), true
		}
	}
	return Snippet{}, false
}

// Match returns the first enabled snippet whose shortcut equals buffer,
// honouring each snippet's case-sensitivity flag.
func (r *Repository) Match(buffer string) (Snippet, bool) {
	if buffer == "" {
		return Snippet{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	found := -1
	for i := range r.snippets {
		s := &r.snippets[i]
		if !s.Enabled || !s.Matches(buffer) {
			continue
		}
		if found >= 0 {
			r.log.Warn("multiple snippets match buffer",
				"shortcut", buffer, "used", r.snippets[found].ID, "ignored", s.ID)
			continue
		}
		found = i
	}
	if found < 0 {
		return Snippet{}, false
	}
	return r.snippets[found].Clone(), true
}

// Get returns the snippet with the given id.
func (r *Repository) Get(id string) (Snippet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.indexOf(id); i >= 0 {
		return r.snippets[i].Clone(), nil
	}
	return Snippet{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// All returns a copy of every snippet.
func (r *Repository) All() []Snippet {
	return r.filter(func(*Snippet) bool { return true })
}

// Enabled returns the snippets eligible for expansion.
func (r *Repository) Enabled() []Snippet {
	return r.filter(func(s *Snippet) bool { return s.Enabled })
}

// Favorites returns the snippets marked as favourite.
func (r *Repository) Favorites() []Snippet {
	return r.filter(func(s *Snippet) bool { return s.Favorite })
}

// WithHotkeys returns enabled snippets bound to a hotkey.
func (r *Repository) WithHotkeys() []Snippet {
	return r.filter(func(s *Snippet) bool { return s.Enabled && s.Hotkey != "" })
}

// ByCategory returns the snippets filed under category.
func (r *Repository) ByCategory(category string) []Snippet {
	return r.filter(func(s *Snippet) bool {
		for _, c := range s.Categories {
			if c == category {
				return true
			}
		}
		return false
	})
}

// Search matches term case-insensitively against shortcut, text,
// description and tags. An empty term returns everything.
func (r *Repository) Search(term string) []Snippet {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return r.All()
	}
	return r.filter(func(s *Snippet) bool {
		if containsFold(s.Shortcut, term) || containsFold(s.Text, term) || containsFold(s.Description, term) {
			return true
		}
		for _, t := range s.Tags {
			if containsFold(t, term) {
				return true
			}
		}
		return false
	})
}

// Categories returns the sorted set of categories in use.
func (r *Repository) Categories() []string {
	r.mu.RLock()
	set := make(map[string]struct{})
	for _, s := range r.snippets {
		for _, c := range s.Categories {
			set[c] = struct{}{}
		}
	}
	r.mu.RUnlock()

	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of snippets.
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.snippets)
}

func (r *Repository) filter(keep func(*Snippet) bool) []Snippet {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Snippet, 0, len(r.snippets))
	for i := range r.snippets {
		if keep(&r.snippets[i]) {
			out = append(out, r.snippets[i].Clone())
		}
	}
	return out
}

// Add inserts s, assigning an id when it has none, and returns the stored
// copy.
func (r *Repository) Add(s Snippet) (Snippet, error) {
	if err := s.Validate(); err != nil {
		return Snippet{}, err
	}
	s = s.Clone()
	now := r.now()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.Created = now
	s.Modified = now

	r.mu.Lock()
	if r.indexOf(s.ID) >= 0 {
		r.mu.Unlock()
		return Snippet{}, fmt.Errorf("%w: id %s already exists", ErrInvalid, s.ID)
	}
	if other := r.shortcutOwner(s.Shortcut, ""); other != "" {
		r.mu.Unlock()
		return Snippet{}, fmt.Errorf("%w: %q", ErrDuplicateShortcut, s.Shortcut)
	}
	r.snippets = append(r.snippets, s)
	snap := r.snapshotLocked()
	r.mu.Unlock()

	r.log.Debug("snippet added", "id", s.ID, "shortcut", s.Shortcut)
	return s.Clone(), r.persist("add", snap)
}

// Update replaces the snippet with the same id. Created and usage data are
// kept from the stored copy.
func (r *Repository) Update(s Snippet) error {
	if err := s.Validate(); err != nil {
		return err
	}
	s = s.Clone()

	r.mu.Lock()
	i := r.indexOf(s.ID)
	if i < 0 {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, s.ID)
	}
	if other := r.shortcutOwner(s.Shortcut, s.ID); other != "" {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrDuplicateShortcut, s.Shortcut)
	}
	old := r.snippets[i]
	s.Created = old.Created
	s.Stats = old.Stats
	s.LastUsed = old.LastUsed
	s.Modified = r.now()
	r.snippets[i] = s
	snap := r.snapshotLocked()
	r.mu.Unlock()

	return r.persist("update", snap)
}

// Delete removes the snippet with the given id.
func (r *Repository) Delete(id string) error {
	r.mu.Lock()
	i := r.indexOf(id)
	if i < 0 {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	r.snippets = append(r.snippets[:i], r.snippets[i+1:]...)
	snap := r.snapshotLocked()
	r.mu.Unlock()

	return r.persist("delete", snap)
}

// Duplicate copies a snippet under a fresh id with "_copy" appended to the
// shortcut, adding a numeric suffix if that is taken too. Usage statistics
// are not copied.
func (r *Repository) Duplicate(id string) (Snippet, error) {
	src, err := r.Get(id)
	if err != nil {
		return Snippet{}, err
	}
	dup := src.Clone()
	dup.ID = ""
	dup.Stats = Statistics{}
	dup.LastUsed = time.Time{}

	base := src.Shortcut + "_copy"
	dup.Shortcut = base
	r.mu.RLock()
	for n := 2; r.shortcutOwner(dup.Shortcut, "") != ""; n++ {
		dup.Shortcut = base + strconv.Itoa(n)
	}
	r.mu.RUnlock()
	return r.Add(dup)
}

// RecordUsage bumps the usage statistics of id.
func (r *Repository) RecordUsage(id string) error {
	now := r.now()
	r.mu.Lock()
	i := r.indexOf(id)
	if i < 0 {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s := &r.snippets[i]
	s.Stats.UseCount++
	if s.Stats.FirstUsed.IsZero() {
		s.Stats.FirstUsed = now
	}
	s.Stats.LastUsed = now
	s.LastUsed = now
	snap := r.snapshotLocked()
	r.mu.Unlock()

	return r.persist("record usage", snap)
}

// Import adds snippets under new ids. Snippets whose shortcut is already
// taken, or that fail validation, are skipped; the returned error joins the
// reasons.
func (r *Repository) Import(in []Snippet) (int, error) {
	now := r.now()
	var errs []error
	added := 0

	r.mu.Lock()
	for _, s := range in {
		if err := s.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if r.shortcutOwner(s.Shortcut, "") != "" {
			errs = append(errs, fmt.Errorf("%w: %q", ErrDuplicateShortcut, s.Shortcut))
			continue
		}
		s = s.Clone()
		s.ID = uuid.NewString()
		s.Created = now
		s.Modified = now
		r.snippets = append(r.snippets, s)
		added++
	}
	var snap snapshot
	if added > 0 {
		snap = r.snapshotLocked()
	}
	r.mu.Unlock()

	if added > 0 {
		if err := r.persist("import", snap); err != nil {
			errs = append(errs, err)
		}
	}
	r.log.Info("snippets imported", "added", added, "skipped", len(in)-added)
	return added, errors.Join(errs...)
}

func (r *Repository) indexOf(id string) int {
	for i := range r.snippets {
		if r.snippets[i].ID == id {
			return i
		}
	}
	return -1
}

// shortcutOwner returns the id of a snippet other than exclude whose
// shortcut equals shortcut ignoring case.
func (r *Repository) shortcutOwner(shortcut, exclude string) string {
	for _, s := range r.snippets {
		if s.ID != exclude && strings.EqualFold(s.Shortcut, shortcut) {
			return s.ID
		}
	}
	return ""
}

type snapshot struct {
	gen      uint64
	snippets []Snippet
}

func (r *Repository) snapshotLocked() snapshot {
	r.gen++
	out := make([]Snippet, len(r.snippets))
	for i := range r.snippets {
		out[i] = r.snippets[i].Clone()
	}
	return snapshot{gen: r.gen, snippets: out}
}

// persist writes snap outside the repository lock. A snapshot older than
// one already written is dropped so a slow save never overwrites newer data.
func (r *Repository) persist(op string, snap snapshot) error {
	if r.store == nil {
		return nil
	}
	r.saveMu.Lock()
	defer r.saveMu.Unlock()
	if snap.gen <= r.saved {
		return nil
	}
	if err := r.store.SaveAll(snap.snippets); err != nil {
		r.log.Error("persist snippets failed", "op", op, "error", err)
		return &PersistError{Op: op, Err: err}
	}
	r.saved = snap.gen
	return nil
}

// MemoryPersister keeps the persisted snapshot in memory.
type MemoryPersister struct {
	mu       sync.Mutex
	snippets []Snippet
	Saves    int
	Err      error
}

// NewMemoryPersister returns a persister preloaded with snippets.
func NewMemoryPersister(snippets ...Snippet) *MemoryPersister {
	return &MemoryPersister{snippets: snippets}
}

func (m *MemoryPersister) LoadAll() ([]Snippet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Snippet, len(m.snippets))
	for i := range m.snippets {
		out[i] = m.snippets[i].Clone()
	}
	return out, nil
}

func (m *MemoryPersister) SaveAll(snippets []Snippet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.snippets = snippets
	m.Saves++
	return nil
}
