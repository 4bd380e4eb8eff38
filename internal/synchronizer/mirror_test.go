package synchronizer

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryosuke1832/remind/internal/apperr"
	"github.com/ryosuke1832/remind/internal/events"
	"github.com/ryosuke1832/remind/internal/model"
	"github.com/ryosuke1832/remind/internal/store"
	"github.com/ryosuke1832/remind/internal/store/sqlite"
)

type fixture struct {
	store store.Store
	bus   *events.Bus
	raw   func(id, doc string, at time.Time)
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	inner, db, err := sqlite.New(sqlite.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	bus := events.NewBus(8, "test")
	return fixture{
		store: store.WithNotifications(inner, bus),
		bus:   bus,
		raw: func(id, doc string, at time.Time) {
			require.NoError(t, sqlite.InsertRawAvatar(context.Background(), db, id, "u1", at, doc))
		},
	}
}

func startMirror(t *testing.T, f fixture) *Mirror {
	t.Helper()
	m := New("u1", f.store, f.bus, zerolog.Nop())
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(m.Stop)
	return m
}

// waitFor polls the mirror until cond holds.
func waitFor(t *testing.T, m *Mirror, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	var s Snapshot
	require.Eventually(t, func() bool {
		s = m.Snapshot()
		return cond(s)
	}, 2*time.Second, 5*time.Millisecond)
	return s
}

func defaults(s Snapshot) []string {
	var out []string
	for _, a := range s.Avatars {
		if a.IsDefault {
			out = append(out, a.ID)
		}
	}
	return out
}

func addN(t *testing.T, m *Mirror, names ...string) []*model.Avatar {
	t.Helper()
	var out []*model.Avatar
	for _, n := range names {
		a, err := m.Add(context.Background(), model.Avatar{ID: "avatar_" + n, Name: n, Status: model.StatusNotReady})
		require.NoError(t, err)
		out = append(out, a)
		time.Sleep(2 * time.Millisecond)
	}
	return out
}

func TestMirror_StartLoadsSnapshotAndUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.store.Users().Create(ctx, &model.User{ID: "u1", Name: "Ryo"})
	require.NoError(t, err)
	_, err = f.store.Avatars().Create(ctx, &model.Avatar{ID: "avatar_a", OwnerID: "u1", Name: "Mum"})
	require.NoError(t, err)
	_, err = f.store.Avatars().Create(ctx, &model.Avatar{ID: "other", OwnerID: "u2", Name: "Theirs"})
	require.NoError(t, err)

	m := startMirror(t, f)
	s := m.Snapshot()
	require.Len(t, s.Avatars, 1)
	assert.Equal(t, "Mum", s.Avatars[0].Name)
	require.NotNil(t, s.User)
	assert.Equal(t, "Ryo", s.User.DisplayName())
}

func TestMirror_WritesAppearOnNextTick(t *testing.T) {
	f := newFixture(t)
	m := startMirror(t, f)
	addN(t, m, "Mum")

	s := waitFor(t, m, func(s Snapshot) bool { return len(s.Avatars) == 1 })
	got := s.Avatars[0]
	assert.Equal(t, "Mum", got.Name)
	assert.True(t, got.IsDefault, "first avatar becomes default")
	assert.False(t, got.CreatedAt.IsZero())

	theme := "Animal"
	require.NoError(t, m.Update(context.Background(), got.ID, model.AvatarPatch{Theme: &theme}))
	waitFor(t, m, func(s Snapshot) bool { return s.Avatars[0].Theme == "Animal" })
	assert.Len(t, m.ByTheme("Animal"), 1)
	assert.Empty(t, m.ByLanguage("Japanese"))
}

func TestMirror_SaveKeepsOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := startMirror(t, f)
	addN(t, m, "A", "B")
	_, err := f.store.Avatars().Create(ctx, &model.Avatar{ID: "theirs", OwnerID: "u2", Name: "Theirs"})
	require.NoError(t, err)
	waitFor(t, m, func(s Snapshot) bool { return len(s.Avatars) == 2 })

	a, ok := m.Get("avatar_B")
	require.True(t, ok)
	a.AudioURL = "https://cdn.test/audio"
	a.VoiceTone = "Cheerful"
	a.IsDefault = true
	require.NoError(t, m.Save(ctx, *a))
	s := waitFor(t, m, func(s Snapshot) bool { return len(defaults(s)) == 1 && defaults(s)[0] == "avatar_B" })
	assert.Equal(t, "Cheerful", s.Avatars[1].VoiceTone)

	// clearing the flag on the default does not leave the owner without one
	a.IsDefault = false
	require.NoError(t, m.Save(ctx, *a))
	got, err := f.store.Avatars().Get(ctx, "avatar_B")
	require.NoError(t, err)
	assert.True(t, got.IsDefault)

	theirs := model.Avatar{ID: "theirs", Name: "Taken"}
	assert.True(t, apperr.IsNotFoundError(m.Save(ctx, theirs)))
	other, err := f.store.Avatars().Get(ctx, "theirs")
	require.NoError(t, err)
	assert.Equal(t, "u2", other.OwnerID)
	assert.Equal(t, "Theirs", other.Name)

	assert.True(t, apperr.IsNotFoundError(m.Save(ctx, model.Avatar{ID: "missing", Name: "X"})))
}

func TestMirror_SetDefaultBeforeTick(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	// never refreshed: the mirror has seen none of these
	m := New("u1", f.store, f.bus, zerolog.Nop())
	addN(t, m, "A", "B")
	_, err := f.store.Avatars().Create(ctx, &model.Avatar{ID: "theirs", OwnerID: "u2", Name: "Theirs"})
	require.NoError(t, err)

	require.NoError(t, m.SetDefault(ctx, "avatar_B"))
	assert.Equal(t, []string{"avatar_B"}, defaults(m.Snapshot()))

	assert.True(t, apperr.IsNotFoundError(m.SetDefault(ctx, "theirs")))
	require.NoError(t, m.Refresh(ctx))
	assert.Equal(t, []string{"avatar_B"}, defaults(m.Snapshot()))
}

func TestMirror_RefreshesApplyInOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gs := newGatedStore(f.store)
	m := New("u1", gs, f.bus, zerolog.Nop())
	addN(t, m, "A")

	entered, release := gs.hold("u1")
	defer release()
	first := make(chan error, 1)
	go func() { first <- m.Refresh(ctx) }()
	<-entered

	// written after the first refresh read
	_, err := f.store.Avatars().Create(ctx, &model.Avatar{ID: "avatar_B", OwnerID: "u1", Name: "B"})
	require.NoError(t, err)
	second := make(chan error, 1)
	go func() { second <- m.Refresh(ctx) }()
	time.Sleep(20 * time.Millisecond)

	release()
	require.NoError(t, <-first)
	require.NoError(t, <-second)
	assert.Len(t, m.Snapshot().Avatars, 2)
}

func TestMirror_SetDefaultLeavesExactlyOne(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	// not started: refreshes happen only when the test asks for them
	m := New("u1", f.store, f.bus, zerolog.Nop())
	addN(t, m, "A", "B", "C")
	require.NoError(t, m.Refresh(ctx))
	assert.Equal(t, "avatar_A", m.Default().ID)

	require.NoError(t, m.SetDefault(ctx, "avatar_B"))
	assert.Equal(t, []string{"avatar_B"}, defaults(m.Snapshot()))

	require.NoError(t, m.Refresh(ctx))
	assert.Equal(t, []string{"avatar_B"}, defaults(m.Snapshot()))

	require.NoError(t, m.SetDefault(ctx, "avatar_C"))
	require.NoError(t, m.Refresh(ctx))
	assert.Equal(t, []string{"avatar_C"}, defaults(m.Snapshot()))

	err := m.SetDefault(ctx, "missing")
	assert.True(t, apperr.IsNotFoundError(err))
	assert.Equal(t, []string{"avatar_C"}, defaults(m.Snapshot()))
}

func TestMirror_SetDefaultFailureRestoresMirror(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := New("u1", f.store, f.bus, zerolog.Nop())
	addN(t, m, "A", "B")
	require.NoError(t, m.Refresh(ctx))

	// removed behind the mirror's back
	require.NoError(t, f.store.Avatars().Delete(ctx, "avatar_B"))
	err := m.SetDefault(ctx, "avatar_B")
	assert.True(t, apperr.IsNotFoundError(err))

	s := m.Snapshot()
	require.Len(t, s.Avatars, 1)
	assert.Equal(t, []string{"avatar_A"}, defaults(s))
}

func TestMirror_AddFlaggedDefaultDemotesOthers(t *testing.T) {
	f := newFixture(t)
	m := startMirror(t, f)
	addN(t, m, "A")
	_, err := m.Add(context.Background(), model.Avatar{ID: "avatar_B", Name: "B", IsDefault: true})
	require.NoError(t, err)

	s := waitFor(t, m, func(s Snapshot) bool { return len(s.Avatars) == 2 && len(defaults(s)) == 1 && defaults(s)[0] == "avatar_B" })
	assert.Equal(t, []string{"avatar_B"}, defaults(s))
}

func TestMirror_DeleteDefaultPromotesFirstRemaining(t *testing.T) {
	f := newFixture(t)
	m := startMirror(t, f)
	addN(t, m, "A", "B", "C")
	require.NoError(t, f.store.Avatars().SetDefault(context.Background(), "u1", "avatar_B"))
	waitFor(t, m, func(s Snapshot) bool {
		d := defaults(s)
		return len(s.Avatars) == 3 && len(d) == 1 && d[0] == "avatar_B"
	})

	require.NoError(t, m.Delete(context.Background(), "avatar_B"))
	s := waitFor(t, m, func(s Snapshot) bool { return len(s.Avatars) == 2 && len(defaults(s)) == 1 })
	assert.Equal(t, []string{"avatar_A"}, defaults(s))

	// deleting a non-default leaves the default alone
	require.NoError(t, m.Delete(context.Background(), "avatar_C"))
	s = waitFor(t, m, func(s Snapshot) bool { return len(s.Avatars) == 1 })
	assert.Equal(t, []string{"avatar_A"}, defaults(s))

	// the last avatar can go without a successor
	require.NoError(t, m.Delete(context.Background(), "avatar_A"))
	waitFor(t, m, func(s Snapshot) bool { return len(s.Avatars) == 0 })
	assert.Nil(t, m.Default())

	assert.True(t, apperr.IsNotFoundError(m.Delete(context.Background(), "avatar_A")))
}

func TestMirror_MalformedDocumentsSkipped(t *testing.T) {
	f := newFixture(t)
	now := time.Now().UTC()
	f.raw("avatar_good", `{"id":"avatar_good","owner_id":"u1","name":"Mum"}`, now)
	f.raw("avatar_bad", `{"id":"avatar_bad","status":42}`, now.Add(time.Millisecond))

	m := startMirror(t, f)
	s := m.Snapshot()
	require.Len(t, s.Avatars, 1)
	assert.Equal(t, "avatar_good", s.Avatars[0].ID)
	assert.Equal(t, model.StatusNotReady, s.Avatars[0].Status)
}

func TestMirror_NameExists(t *testing.T) {
	f := newFixture(t)
	m := startMirror(t, f)
	addN(t, m, "Mum")
	waitFor(t, m, func(s Snapshot) bool { return len(s.Avatars) == 1 })

	assert.True(t, m.NameExists("mum", ""))
	assert.True(t, m.NameExists("  MUM ", ""))
	assert.False(t, m.NameExists("Mum", "avatar_Mum"))
	assert.False(t, m.NameExists("Dad", ""))
}

func TestMirror_SubscribersSeeEveryReplacement(t *testing.T) {
	f := newFixture(t)
	m := startMirror(t, f)

	ch1, cancel1 := m.Subscribe()
	defer cancel1()
	ch2, cancel2 := m.Subscribe()
	defer cancel2()
	assert.Empty(t, (<-ch1).Avatars)
	assert.Empty(t, (<-ch2).Avatars)

	addN(t, m, "Mum")
	for _, ch := range []<-chan Snapshot{ch1, ch2} {
		select {
		case s := <-ch:
			assert.Len(t, s.Avatars, 1)
		case <-time.After(2 * time.Second):
			t.Fatal("no snapshot delivered")
		}
	}
}

func TestMirror_StopReleasesSubscription(t *testing.T) {
	f := newFixture(t)
	m := New("u1", f.store, f.bus, zerolog.Nop())
	require.NoError(t, m.Start(context.Background()))
	assert.Equal(t, 1, f.bus.Subscribers())

	ch, _ := m.Subscribe()
	<-ch
	m.Stop()
	m.Stop()
	assert.Equal(t, 0, f.bus.Subscribers())
	_, open := <-ch
	assert.False(t, open)
}
