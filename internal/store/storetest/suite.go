package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryosuke1832/remind/internal/model"
	"github.com/ryosuke1832/remind/internal/store"
)

// Run exercises a compliance suite against a store.Store implementation.
// Implementations should provide a clean, isolated store and return it from makeStore.
func Run(t *testing.T, makeStore func(t *testing.T) store.Store) {
	t.Helper()

	s := makeStore(t)
	ctx := context.Background()

	ownerID := "u-" + uuid.New().String()
	avatarID := func(n string) string { return ownerID + "-" + n }

	t.Run("users", func(t *testing.T) {
		u, err := s.Users().Create(ctx, &model.User{ID: ownerID, Name: "Ryo", Email: "ryo@example.test"})
		require.NoError(t, err)
		assert.Equal(t, model.DefaultProfileImage, u.ProfileImg)
		assert.False(t, u.CreatedAt.IsZero())

		_, err = s.Users().Create(ctx, &model.User{ID: ownerID})
		assert.ErrorIs(t, err, store.ErrConflict)

		name := "Ryosuke"
		got, err := s.Users().Update(ctx, ownerID, model.UserPatch{Name: &name})
		require.NoError(t, err)
		assert.Equal(t, "Ryosuke", got.Name)
		assert.Equal(t, "ryo@example.test", got.Email)

		got, err = s.Users().Get(ctx, ownerID)
		require.NoError(t, err)
		assert.Equal(t, "Ryosuke", got.Name)

		_, err = s.Users().Get(ctx, "missing-"+ownerID)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("avatars", func(t *testing.T) {
		for i, n := range []string{"a", "b", "c"} {
			_, err := s.Avatars().Create(ctx, &model.Avatar{
				ID: avatarID(n), OwnerID: ownerID, Name: "Avatar " + n,
				IsDefault: i == 0, Status: model.StatusNotReady,
			})
			require.NoError(t, err)
			// created_at drives list order
			time.Sleep(2 * time.Millisecond)
		}
		_, err := s.Avatars().Create(ctx, &model.Avatar{ID: avatarID("a"), OwnerID: ownerID})
		assert.ErrorIs(t, err, store.ErrConflict)

		docs, err := s.Avatars().Query(ctx, ownerID)
		require.NoError(t, err)
		list, bad := store.DecodeAll(docs)
		assert.Empty(t, bad)
		require.Len(t, list, 3)
		assert.Equal(t, []string{avatarID("a"), avatarID("b"), avatarID("c")}, ids(list))

		ready := model.StatusReady
		urls := []string{"https://cdn.test/1.jpg"}
		updated, err := s.Avatars().Update(ctx, avatarID("b"), model.AvatarPatch{Status: &ready, ImageURLs: &urls})
		require.NoError(t, err)
		assert.Equal(t, model.StatusReady, updated.Status)
		assert.Equal(t, urls, updated.ImageURLs)
		assert.Equal(t, "Avatar b", updated.Name)

		_, err = s.Avatars().Update(ctx, avatarID("zz"), model.AvatarPatch{Status: &ready})
		assert.ErrorIs(t, err, store.ErrNotFound)

		got, err := s.Avatars().Get(ctx, avatarID("c"))
		require.NoError(t, err)
		got.Theme = "Animal"
		put, err := s.Avatars().Put(ctx, got)
		require.NoError(t, err)
		assert.Equal(t, "Animal", put.Theme)
		// Put keeps the original position in the list
		docs, err = s.Avatars().Query(ctx, ownerID)
		require.NoError(t, err)
		list, _ = store.DecodeAll(docs)
		assert.Equal(t, avatarID("c"), list[2].ID)
	})

	t.Run("set default is exclusive", func(t *testing.T) {
		require.NoError(t, s.Avatars().SetDefault(ctx, ownerID, avatarID("c")))
		assertDefaults(t, s, ownerID, avatarID("c"))

		require.NoError(t, s.Avatars().SetDefault(ctx, ownerID, avatarID("b")))
		assertDefaults(t, s, ownerID, avatarID("b"))

		err := s.Avatars().SetDefault(ctx, ownerID, "not-"+ownerID)
		assert.ErrorIs(t, err, store.ErrNotFound)
		err = s.Avatars().SetDefault(ctx, "other-"+ownerID, avatarID("a"))
		assert.ErrorIs(t, err, store.ErrNotFound)
		assertDefaults(t, s, ownerID, avatarID("b"))

		got, err := s.Avatars().Get(ctx, avatarID("b"))
		require.NoError(t, err)
		assert.True(t, got.IsDefault)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, s.Avatars().Delete(ctx, avatarID("a")))
		err := s.Avatars().Delete(ctx, avatarID("a"))
		assert.True(t, errors.Is(err, store.ErrNotFound))
		_, err = s.Avatars().Get(ctx, avatarID("a"))
		assert.ErrorIs(t, err, store.ErrNotFound)

		docs, err := s.Avatars().Query(ctx, ownerID)
		require.NoError(t, err)
		assert.Len(t, docs, 2)
	})

	require.NoError(t, s.HealthPing(ctx))
}

func ids(list []model.Avatar) []string {
	out := make([]string, len(list))
	for i, a := range list {
		out[i] = a.ID
	}
	return out
}

func assertDefaults(t *testing.T, s store.Store, ownerID, want string) {
	t.Helper()
	docs, err := s.Avatars().Query(context.Background(), ownerID)
	require.NoError(t, err)
	list, _ := store.DecodeAll(docs)
	var defaults []string
	for _, a := range list {
		if a.IsDefault {
			defaults = append(defaults, a.ID)
		}
	}
	assert.Equal(t, []string{want}, defaults)
}
