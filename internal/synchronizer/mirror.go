// Package synchronizer keeps an in-memory mirror of one owner's avatars and
// profile current with the document store.
//
// Every change tick re-reads the owner's documents and replaces the mirror
// wholesale. Writes go straight to the store; the mirror reflects them on
// the next tick rather than optimistically. SetDefault is the exception: it
// adjusts the local copies first so the caller sees one default at once.
package synchronizer

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ryosuke1832/remind/internal/apperr"
	"github.com/ryosuke1832/remind/internal/events"
	"github.com/ryosuke1832/remind/internal/model"
	"github.com/ryosuke1832/remind/internal/store"
)

// Snapshot is a consistent copy of the mirror at one refresh.
type Snapshot struct {
	OwnerID string         `json:"owner_id"`
	Version uint64         `json:"version"`
	User    *model.User    `json:"user"`
	Avatars []model.Avatar `json:"avatars"`
}

// Default returns the default avatar, if any.
func (s Snapshot) Default() *model.Avatar {
	for i := range s.Avatars {
		if s.Avatars[i].IsDefault {
			a := s.Avatars[i].Clone()
			return &a
		}
	}
	return nil
}

// Mirror is the synchronized view of one owner.
type Mirror struct {
	ownerID string
	store   store.Store
	bus     *events.Bus
	log     zerolog.Logger

	mu      sync.RWMutex
	user    *model.User
	avatars []model.Avatar
	version uint64

	// refreshMu orders whole refreshes so an older read never lands last
	refreshMu sync.Mutex

	subMu   sync.Mutex
	subs    map[int]chan Snapshot
	nextSub int

	feed    *events.Subscription
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// New creates a stopped mirror. st should publish its writes on bus.
func New(ownerID string, st store.Store, bus *events.Bus, log zerolog.Logger) *Mirror {
	return &Mirror{
		ownerID: ownerID,
		store:   st,
		bus:     bus,
		log:     log.With().Str("owner_id", ownerID).Logger(),
		subs:    make(map[int]chan Snapshot),
	}
}

// OwnerID returns the owner this mirror follows.
func (m *Mirror) OwnerID() string { return m.ownerID }

// Start installs the standing subscription and loads the first snapshot.
// The subscription is installed before the load so no write is missed.
func (m *Mirror) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.feed = m.bus.Subscribe(events.ForOwner(m.ownerID))
	loopCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.run(loopCtx, m.feed, m.done)
	m.mu.Unlock()

	if err := m.Refresh(ctx); err != nil {
		m.Stop()
		return err
	}
	m.log.Debug().Msg("mirror started")
	return nil
}

func (m *Mirror) run(ctx context.Context, feed *events.Subscription, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-feed.C:
			if !ok {
				return
			}
			// one re-read covers every tick already queued
			for drained := false; !drained; {
				select {
				case _, ok := <-feed.C:
					if !ok {
						return
					}
				default:
					drained = true
				}
			}
			if err := m.Refresh(ctx); err != nil && ctx.Err() == nil {
				m.log.Error().Err(err).Msg("mirror refresh failed")
			}
		}
	}
}

// Stop releases the standing subscription and ends every observer channel.
func (m *Mirror) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	feed, cancel, done := m.feed, m.cancel, m.done
	m.mu.Unlock()

	feed.Close()
	cancel()
	<-done

	m.subMu.Lock()
	for id, ch := range m.subs {
		delete(m.subs, id)
		close(ch)
	}
	m.subMu.Unlock()
	m.log.Debug().Msg("mirror stopped")
}

// Refresh re-reads the owner's documents and replaces the mirror. Documents
// that fail to decode are skipped with a warning.
func (m *Mirror) Refresh(ctx context.Context) error {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	docs, err := m.store.Avatars().Query(ctx, m.ownerID)
	if err != nil {
		return err
	}
	avatars, bad := store.DecodeAll(docs)
	for _, b := range bad {
		m.log.Warn().Str("avatar_id", b.ID).Err(b.Err).Msg("skipping malformed avatar document")
	}

	var user *model.User
	raw, err := m.store.Users().GetRaw(ctx, m.ownerID)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return err
	default:
		if user, err = model.DecodeUser(raw); err != nil {
			m.log.Warn().Err(err).Msg("skipping malformed user document")
			user = nil
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.avatars = avatars
	m.user = user
	m.version++
	m.broadcast(m.snapshotLocked())
	return nil
}

// Snapshot returns a deep copy of the current mirror.
func (m *Mirror) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

func (m *Mirror) snapshotLocked() Snapshot {
	s := Snapshot{OwnerID: m.ownerID, Version: m.version, Avatars: make([]model.Avatar, len(m.avatars))}
	for i, a := range m.avatars {
		s.Avatars[i] = a.Clone()
	}
	if m.user != nil {
		u := *m.user
		s.User = &u
	}
	return s
}

// Subscribe returns a channel carrying each new snapshot, starting with the
// current one. Slow readers skip to the newest snapshot.
func (m *Mirror) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	m.mu.RLock()
	ch <- m.snapshotLocked()
	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	m.subMu.Unlock()
	m.mu.RUnlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.subMu.Lock()
			defer m.subMu.Unlock()
			if _, ok := m.subs[id]; ok {
				delete(m.subs, id)
				close(ch)
			}
		})
	}
}

// broadcast replaces any undelivered snapshot with s. Caller holds mu so
// snapshots reach observers in version order.
func (m *Mirror) broadcast(s Snapshot) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for _, ch := range m.subs {
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}

// --- queries ---

// Avatars returns the mirrored avatars in list order.
func (m *Mirror) Avatars() []model.Avatar { return m.Snapshot().Avatars }

// User returns the mirrored profile, nil when the document is missing.
func (m *Mirror) User() *model.User { return m.Snapshot().User }

// Default returns the default avatar, nil when there is none.
func (m *Mirror) Default() *model.Avatar { return m.Snapshot().Default() }

// Get returns one mirrored avatar.
func (m *Mirror) Get(id string) (*model.Avatar, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.avatars {
		if a.ID == id {
			c := a.Clone()
			return &c, true
		}
	}
	return nil, false
}

// ByLanguage returns avatars whose language matches exactly.
func (m *Mirror) ByLanguage(lang string) []model.Avatar {
	return m.filter(func(a model.Avatar) bool { return a.Language == lang })
}

// ByTheme returns avatars whose theme matches exactly.
func (m *Mirror) ByTheme(theme string) []model.Avatar {
	return m.filter(func(a model.Avatar) bool { return a.Theme == theme })
}

// NameExists reports a case-insensitive name clash, ignoring excludingID.
func (m *Mirror) NameExists(name, excludingID string) bool {
	name = strings.TrimSpace(name)
	return len(m.filter(func(a model.Avatar) bool {
		return a.ID != excludingID && strings.EqualFold(strings.TrimSpace(a.Name), name)
	})) > 0
}

func (m *Mirror) filter(keep func(model.Avatar) bool) []model.Avatar {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Avatar
	for _, a := range m.avatars {
		if keep(a) {
			out = append(out, a.Clone())
		}
	}
	return out
}

// --- writes ---

// Save replaces an existing avatar document of the owner. The default flag
// is only ever raised: a document saved as default becomes the owner's only
// default, and saving the current default never leaves the owner without one.
func (m *Mirror) Save(ctx context.Context, a model.Avatar) error {
	cur, err := m.store.Avatars().Get(ctx, a.ID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && cur.OwnerID != m.ownerID) {
		return apperr.NewNotFoundError("avatar", a.ID)
	}
	if err != nil {
		return err
	}
	a.OwnerID = m.ownerID
	wantDefault := a.IsDefault
	a.IsDefault = cur.IsDefault
	if _, err := m.store.Avatars().Put(ctx, &a); err != nil {
		return err
	}
	if wantDefault && !cur.IsDefault {
		return m.store.Avatars().SetDefault(ctx, m.ownerID, a.ID)
	}
	return nil
}

// Update applies a partial update. is_default is routed through SetDefault.
func (m *Mirror) Update(ctx context.Context, id string, p model.AvatarPatch) error {
	if err := m.owns(ctx, id); err != nil {
		return err
	}
	makeDefault := p.IsDefault != nil && *p.IsDefault
	p.IsDefault = nil
	if _, err := m.store.Avatars().Update(ctx, id, p); err != nil {
		return err
	}
	if makeDefault {
		return m.store.Avatars().SetDefault(ctx, m.ownerID, id)
	}
	return nil
}

// Add creates an avatar for the owner. The owner's first avatar becomes
// default; adding one flagged default demotes the rest.
func (m *Mirror) Add(ctx context.Context, a model.Avatar) (*model.Avatar, error) {
	a.OwnerID = m.ownerID
	existing, err := m.read(ctx)
	if err != nil {
		return nil, err
	}
	makeDefault := a.IsDefault || len(existing) == 0
	// flagged as default by SetDefault so there is never a second default in between
	a.IsDefault = len(existing) == 0
	created, err := m.store.Avatars().Create(ctx, &a)
	if err != nil {
		return nil, err
	}
	if makeDefault && len(existing) > 0 {
		if err := m.store.Avatars().SetDefault(ctx, m.ownerID, created.ID); err != nil {
			return nil, err
		}
		created.IsDefault = true
	}
	return created, nil
}

// Delete removes an avatar. Deleting the default promotes the first
// remaining avatar in list order.
func (m *Mirror) Delete(ctx context.Context, id string) error {
	list, err := m.read(ctx)
	if err != nil {
		return err
	}
	var target *model.Avatar
	var remaining []model.Avatar
	for i := range list {
		if list[i].ID == id {
			target = &list[i]
			continue
		}
		remaining = append(remaining, list[i])
	}
	if target == nil {
		return apperr.NewNotFoundError("avatar", id)
	}
	if err := m.store.Avatars().Delete(ctx, id); err != nil {
		return err
	}
	if target.IsDefault && len(remaining) > 0 {
		next := remaining[0].ID
		if err := m.store.Avatars().SetDefault(ctx, m.ownerID, next); err != nil {
			return err
		}
		m.log.Info().Str("deleted", id).Str("promoted", next).Msg("default avatar reassigned")
	}
	return nil
}

// SetDefault demotes every local copy, promotes the target, then persists
// the change in one conditional write. A target the mirror has not seen yet
// is looked up in the store first. A failed write restores the mirror from
// the store.
func (m *Mirror) SetDefault(ctx context.Context, id string) error {
	if _, ok := m.Get(id); !ok {
		if err := m.owns(ctx, id); err != nil {
			return err
		}
		if err := m.Refresh(ctx); err != nil {
			return err
		}
	}

	m.mu.Lock()
	idx := m.indexLocked(id)
	if idx < 0 {
		m.mu.Unlock()
		return apperr.NewNotFoundError("avatar", id)
	}
	for i := range m.avatars {
		m.avatars[i].IsDefault = false
	}
	m.avatars[idx].IsDefault = true
	m.version++
	m.broadcast(m.snapshotLocked())
	m.mu.Unlock()

	if err := m.store.Avatars().SetDefault(ctx, m.ownerID, id); err != nil {
		if rerr := m.Refresh(ctx); rerr != nil {
			m.log.Error().Err(rerr).Msg("mirror restore failed")
		}
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NewNotFoundError("avatar", id)
		}
		return err
	}
	return nil
}

func (m *Mirror) indexLocked(id string) int {
	for i := range m.avatars {
		if m.avatars[i].ID == id {
			return i
		}
	}
	return -1
}

// read returns the owner's current avatars straight from the store.
func (m *Mirror) read(ctx context.Context) ([]model.Avatar, error) {
	docs, err := m.store.Avatars().Query(ctx, m.ownerID)
	if err != nil {
		return nil, err
	}
	list, _ := store.DecodeAll(docs)
	return list, nil
}

func (m *Mirror) owns(ctx context.Context, id string) error {
	a, err := m.store.Avatars().Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) || (err == nil && a.OwnerID != m.ownerID) {
		return apperr.NewNotFoundError("avatar", id)
	}
	return err
}
