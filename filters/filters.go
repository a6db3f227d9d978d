// Package filters maintains the role-scoped, persisted filter selection
// for the dashboard. Each role gets its own persisted bucket (plus a
// guest bucket when nobody is logged in), so switching roles never
// leaks another role's selection. For the division role the division
// dimension is locked to the identity's division and cannot be edited.
package filters

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"taleemtrack.com/client/auth"
	"taleemtrack.com/client/storage"
)

// GuestKey is the bucket key used while no role is active.
const GuestKey = "guest"

// State is one filter selection. Geographic fields form a hierarchy:
// division > district > tehsil > school; changing a field clears its
// descendants.
type State struct {
	Division  string `json:"division,omitempty"`
	District  string `json:"district,omitempty"`
	Tehsil    string `json:"tehsil,omitempty"`
	School    string `json:"school,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	StartDate string `json:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty"`
}

// BucketStore persists one State per role key, decoupling the naming
// scheme from call sites.
type BucketStore interface {
	Load(ctx context.Context, roleKey string) (State, bool, error)
	Save(ctx context.Context, roleKey string, state State) error
	Clear(ctx context.Context, roleKey string) error
}

// Store owns the active filter selection for the current role.
//
// Updates are write-through: every successful Set/Reset persists the
// resulting bucket immediately. Persistence failures degrade to
// in-memory state, logged at debug level, mirroring the token store's
// storage contract.
type Store struct {
	buckets BucketStore
	log     *slog.Logger

	mu             sync.Mutex
	roleKey        string
	lockedDivision string
	current        State
}

// New creates a store bound to the guest bucket. Call BindRole once the
// identity (or the previously stored role) is known.
func New(buckets BucketStore, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	s := &Store{
		buckets: buckets,
		log:     log,
		roleKey: GuestKey,
	}
	s.loadCurrent(context.Background())
	return s
}

// BindRole switches to the given role's bucket. For the division role
// with a known division id, the division dimension is locked to it from
// this point on; this is also how cold-start hydration seeds the
// division from stored state before the identity has resolved, so the
// UI never shows an unfiltered flash. An empty or unknown role binds
// the guest bucket.
func (s *Store) BindRole(role auth.Role, divisionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.roleKey = bucketKey(role)
	if role == auth.RoleDivision && divisionID != "" {
		s.lockedDivision = divisionID
	} else {
		s.lockedDivision = ""
	}
	s.loadCurrent(context.Background())
}

// Get returns the current filter selection.
func (s *Store) Get() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Set applies an updater to the current selection. The locked division
// is re-imposed on whatever the updater produced, then ancestor changes
// cascade: a division change clears district, tehsil, school and
// sessionId; a district change clears tehsil and school; a tehsil
// change clears school. The result is persisted and returned.
func (s *Store) Set(update func(State) State) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.current
	next := update(old)
	if s.lockedDivision != "" {
		next.Division = s.lockedDivision
	}
	next = cascade(old, next)

	s.current = next
	s.persist(context.Background())
	return next
}

// Reset empties the selection, except that a locked division survives.
// The result is persisted and returned.
func (s *Store) Reset() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = State{Division: s.lockedDivision}
	s.persist(context.Background())
	return s.current
}

// ClearAll wipes every role's bucket and the guest bucket, and rebinds
// the store to an empty guest state. Called on logout so no stale
// filters survive into the next login.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := context.Background()
	for _, role := range auth.AllRoles {
		if err := s.buckets.Clear(ctx, string(role)); err != nil {
			s.log.Debug("filter bucket clear failed", "role", role, "error", err)
		}
	}
	if err := s.buckets.Clear(ctx, GuestKey); err != nil {
		s.log.Debug("filter bucket clear failed", "role", GuestKey, "error", err)
	}

	s.roleKey = GuestKey
	s.lockedDivision = ""
	s.current = State{}
}

// loadCurrent hydrates the in-memory selection from the active bucket.
// Caller holds mu.
func (s *Store) loadCurrent(ctx context.Context) {
	loaded, ok, err := s.buckets.Load(ctx, s.roleKey)
	if err != nil {
		s.log.Debug("filter bucket load failed", "role", s.roleKey, "error", err)
	}
	if !ok || err != nil {
		loaded = State{}
	}

	if s.lockedDivision != "" && loaded.Division != s.lockedDivision {
		loaded.Division = s.lockedDivision
	}
	s.current = loaded
}

// persist writes the active bucket through. Caller holds mu.
func (s *Store) persist(ctx context.Context) {
	if err := s.buckets.Save(ctx, s.roleKey, s.current); err != nil {
		s.log.Debug("filter bucket save failed", "role", s.roleKey, "error", err)
	}
}

// cascade clears descendants of whichever ancestor changed between old
// and next.
func cascade(old, next State) State {
	switch {
	case next.Division != old.Division:
		next.District, next.Tehsil, next.School, next.SessionID = "", "", "", ""
	case next.District != old.District:
		next.Tehsil, next.School = "", ""
	case next.Tehsil != old.Tehsil:
		next.School = ""
	}
	return next
}

// bucketKey maps a role to its bucket key; unknown or absent roles use
// the guest bucket.
func bucketKey(role auth.Role) string {
	if !role.Valid() {
		return GuestKey
	}
	return string(role)
}

// KVBucketStore stores buckets as JSON values in an opaque key-value
// provider, one key per role.
type KVBucketStore struct {
	provider storage.Provider
}

// NewKVBucketStore creates a bucket store over the given provider.
func NewKVBucketStore(provider storage.Provider) *KVBucketStore {
	return &KVBucketStore{provider: provider}
}

func filterKey(roleKey string) string {
	return "filters:" + roleKey
}

// Load reads a role's bucket. The second return is false when no bucket
// is stored.
func (b *KVBucketStore) Load(ctx context.Context, roleKey string) (State, bool, error) {
	raw, err := b.provider.Get(ctx, filterKey(roleKey))
	if errors.Is(err, storage.ErrNotFound) {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, err
	}

	var state State
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return State{}, false, err
	}
	return state, true, nil
}

// Save writes a role's bucket.
func (b *KVBucketStore) Save(ctx context.Context, roleKey string, state State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return b.provider.Set(ctx, filterKey(roleKey), string(raw))
}

// Clear removes a role's bucket.
func (b *KVBucketStore) Clear(ctx context.Context, roleKey string) error {
	return b.provider.Delete(ctx, filterKey(roleKey))
}
