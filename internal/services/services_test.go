package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryosuke1832/remind/internal/apperr"
	"github.com/ryosuke1832/remind/internal/blobstore"
	"github.com/ryosuke1832/remind/internal/events"
	"github.com/ryosuke1832/remind/internal/model"
	"github.com/ryosuke1832/remind/internal/store"
	"github.com/ryosuke1832/remind/internal/store/sqlite"
	"github.com/ryosuke1832/remind/internal/synchronizer"
	"github.com/ryosuke1832/remind/internal/upload"
)

// --- Fakes ---

type fakeUploader struct {
	mu      sync.Mutex
	calls   []upload.Request
	err     error
	block   chan struct{}
	entered chan struct{}
}

func (f *fakeUploader) Provider() string { return "cloudinary" }

func (f *fakeUploader) Upload(ctx context.Context, req upload.Request) (*upload.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.entered != nil {
		close(f.entered)
	}
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	res := &upload.Result{AudioURL: "https://cdn.test/" + req.RecordID + "_audio", AudioSize: int64(len(req.Audio.Data))}
	for i := range req.Images {
		res.ImageURLs = append(res.ImageURLs, "https://cdn.test/"+req.RecordID+"_image_"+string(rune('0'+i)))
	}
	return res, nil
}

type fakeVerifier struct{ got []string }

func (f *fakeVerifier) Verify(ctx context.Context, urls []string) []upload.Check {
	f.got = urls
	out := make([]upload.Check, len(urls))
	for i, u := range urls {
		out[i] = upload.Check{URL: u, OK: true, StatusCode: 200}
	}
	return out
}

type env struct {
	avatars  *AvatarService
	users    *UserService
	store    store.Store
	uploader *fakeUploader
	verifier *fakeVerifier
}

func newEnv(t *testing.T) env {
	t.Helper()
	inner, db, err := sqlite.New(sqlite.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	bus := events.NewBus(8, "test")
	st := store.WithNotifications(inner, bus)
	reg := synchronizer.NewRegistry(st, bus, zerolog.Nop())
	t.Cleanup(reg.Close)

	up := &fakeUploader{}
	ver := &fakeVerifier{}
	e := env{
		avatars:  NewAvatarService(st, reg, up, ver, "https://remind-f54ef.web.app", zerolog.Nop()),
		users:    NewUserService(st),
		store:    st,
		uploader: up,
		verifier: ver,
	}
	_, err = e.users.Register(context.Background(), RegisterRequest{ID: "u1", Name: "Ryo", Email: "ryo@example.com"})
	require.NoError(t, err)
	return e
}

func mb(n int) []byte { return make([]byte, n*1024*1024) }

func TestCreateInvite_ShellAndLink(t *testing.T) {
	e := newEnv(t)
	e.avatars.now = func() time.Time { return time.Unix(1700000000, 0) }

	a, err := e.avatars.CreateInvite(context.Background(), "u1", InviteRequest{RecipientName: "Sumi"})
	require.NoError(t, err)
	assert.Regexp(t, `^avatar_1700000000_[1-9]\d{3}$`, a.ID)
	assert.Equal(t, "https://remind-f54ef.web.app/?avatarId="+a.ID, a.CreateURL)
	assert.Equal(t, "Sumi", a.Name)
	assert.Equal(t, "Ryo", a.CreatorName)
	assert.Equal(t, model.StatusNotReady, a.Status)
	assert.Equal(t, "English", a.Language)
	assert.Equal(t, "Human", a.Theme)
	assert.Equal(t, "Gentle", a.VoiceTone)
	assert.Equal(t, "sample_avatar", a.ProfileImg)
	assert.Equal(t, "cloudinary", a.StorageProvider)
	assert.True(t, a.IsDefault)

	_, err = e.avatars.CreateInvite(context.Background(), "u1", InviteRequest{RecipientName: "sumi"})
	var ve apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "An avatar with this name already exists", ve.Message)

	_, err = e.avatars.CreateInvite(context.Background(), "nobody", InviteRequest{RecipientName: "X"})
	assert.True(t, apperr.IsNotFoundError(err))
}

func TestSubmitMedia_WritesOnceAndMarksReady(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a, err := e.avatars.CreateInvite(ctx, "u1", InviteRequest{RecipientName: "Sumi"})
	require.NoError(t, err)

	images := []upload.Media{{Filename: "1.jpg", Data: mb(3)}, {Filename: "2.jpg", Data: mb(4)}}
	got, err := e.avatars.SubmitMedia(ctx, a.ID, images, upload.Media{Filename: "v.webm", Data: mb(2)}, nil)
	require.NoError(t, err)

	assert.Equal(t, model.StatusReady, got.Status)
	assert.Len(t, got.ImageURLs, 2)
	assert.Equal(t, 2, got.ImageCount)
	assert.Equal(t, "https://cdn.test/"+a.ID+"_audio", got.AudioURL)
	assert.Equal(t, "2.00", got.AudioSizeMB)
	assert.Equal(t, "Sumi", got.Name)

	stored, err := e.store.Avatars().Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, got.ImageURLs, stored.ImageURLs)
	assert.Equal(t, model.StatusReady, stored.Status)
}

func TestSubmitMedia_FailureWritesNothing(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a, err := e.avatars.CreateInvite(ctx, "u1", InviteRequest{RecipientName: "Sumi"})
	require.NoError(t, err)

	e.uploader.err = &upload.UploadFailedError{PublicID: a.ID + "_audio", Kind: blobstore.KindAudio, Index: -1, Attempts: 4}
	_, err = e.avatars.SubmitMedia(ctx, a.ID, []upload.Media{{Data: []byte("x")}}, upload.Media{Data: []byte("y")}, nil)
	assert.ErrorIs(t, err, upload.ErrUploadFailed)

	stored, err := e.store.Avatars().Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusNotReady, stored.Status)
	assert.Empty(t, stored.ImageURLs)
	assert.Empty(t, stored.AudioURL)
}

func TestSubmitMedia_GuardsConcurrentSubmission(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a, err := e.avatars.CreateInvite(ctx, "u1", InviteRequest{RecipientName: "Sumi"})
	require.NoError(t, err)

	e.uploader.block = make(chan struct{})
	e.uploader.entered = make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := e.avatars.SubmitMedia(ctx, a.ID, []upload.Media{{Data: []byte("x")}}, upload.Media{Data: []byte("y")}, nil)
		done <- err
	}()
	<-e.uploader.entered

	_, err = e.avatars.SubmitMedia(ctx, a.ID, []upload.Media{{Data: []byte("x")}}, upload.Media{Data: []byte("y")}, nil)
	assert.True(t, apperr.IsConflictError(err))

	close(e.uploader.block)
	require.NoError(t, <-done)
}

func TestSubmitMedia_UnknownAvatar(t *testing.T) {
	e := newEnv(t)
	_, err := e.avatars.SubmitMedia(context.Background(), "avatar_missing", nil, upload.Media{}, nil)
	assert.True(t, apperr.IsNotFoundError(err))
	assert.Empty(t, e.uploader.calls)
}

func TestAvatarService_DefaultAndDelete(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	first, err := e.avatars.CreateInvite(ctx, "u1", InviteRequest{RecipientName: "A"})
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := e.avatars.CreateInvite(ctx, "u1", InviteRequest{RecipientName: "B"})
	require.NoError(t, err)
	assert.False(t, second.IsDefault)

	require.NoError(t, e.avatars.SetDefault(ctx, "u1", second.ID))
	got, err := e.avatars.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDefault)

	require.NoError(t, e.avatars.Delete(ctx, "u1", second.ID))
	got, err = e.avatars.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDefault)

	assert.True(t, apperr.IsNotFoundError(e.avatars.Delete(ctx, "u1", second.ID)))
}

func TestAvatarService_SaveChecksOwnerAndName(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a, err := e.avatars.CreateInvite(ctx, "u1", InviteRequest{RecipientName: "A"})
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	b, err := e.avatars.CreateInvite(ctx, "u1", InviteRequest{RecipientName: "B"})
	require.NoError(t, err)

	doc := *b
	doc.Name = " Bee "
	doc.Theme = "Animal"
	saved, err := e.avatars.Save(ctx, "u1", b.ID, doc)
	require.NoError(t, err)
	assert.Equal(t, "Bee", saved.Name)
	assert.Equal(t, "Animal", saved.Theme)
	assert.Equal(t, "u1", saved.OwnerID)

	doc.Name = "a"
	_, err = e.avatars.Save(ctx, "u1", b.ID, doc)
	assert.True(t, apperr.IsValidationError(err))

	doc.Name = "Elsewhere"
	_, err = e.avatars.Save(ctx, "u2", a.ID, doc)
	assert.True(t, apperr.IsNotFoundError(err))
	got, err := e.avatars.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.OwnerID)
}

func TestAvatarService_UpdateValidatesName(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a, err := e.avatars.CreateInvite(ctx, "u1", InviteRequest{RecipientName: "A"})
	require.NoError(t, err)
	_, err = e.avatars.CreateInvite(ctx, "u1", InviteRequest{RecipientName: "B"})
	require.NoError(t, err)

	dup := "b"
	_, err = e.avatars.Update(ctx, a.ID, model.AvatarPatch{Name: &dup})
	assert.True(t, apperr.IsValidationError(err))

	same := " A "
	lang := "Japanese"
	got, err := e.avatars.Update(ctx, a.ID, model.AvatarPatch{Name: &same, Language: &lang})
	require.NoError(t, err)
	assert.Equal(t, "A", got.Name)
	assert.Equal(t, "Japanese", got.Language)

	res, err := e.avatars.ValidateName(ctx, "u1", "", "")
	require.NoError(t, err)
	assert.Equal(t, "Avatar name cannot be empty", res.Message)
}

func TestAvatarService_Verify(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a, err := e.avatars.CreateInvite(ctx, "u1", InviteRequest{RecipientName: "A"})
	require.NoError(t, err)

	_, err = e.avatars.Verify(ctx, a.ID)
	assert.True(t, apperr.IsValidationError(err))

	_, err = e.avatars.SubmitMedia(ctx, a.ID, []upload.Media{{Data: []byte("x")}}, upload.Media{Data: []byte("y")}, nil)
	require.NoError(t, err)
	checks, err := e.avatars.Verify(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, checks, 2)
	assert.Equal(t, "https://cdn.test/"+a.ID+"_audio", e.verifier.got[1])
	assert.Equal(t, "https://remind-f54ef.web.app/view/"+a.ID, e.avatars.ViewURL(a.ID))
}

func TestAvatarService_WatchStreamsSnapshots(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ch, stop, err := e.avatars.Watch(ctx, "u1")
	require.NoError(t, err)
	defer stop()

	first := <-ch
	assert.Empty(t, first.Avatars)
	assert.Equal(t, "Ryo", first.User.Name)

	_, err = e.avatars.CreateInvite(ctx, "u1", InviteRequest{RecipientName: "A"})
	require.NoError(t, err)
	select {
	case s := <-ch:
		assert.Len(t, s.Avatars, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot after invite")
	}
}

func TestAvatarService_SetDefaultRightAfterInviteWhileWatched(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	var tick int64
	e.avatars.now = func() time.Time {
		tick++
		return time.Unix(1700000000+tick, 0)
	}
	_, stop, err := e.avatars.Watch(ctx, "u1")
	require.NoError(t, err)
	defer stop()

	for i := 0; i < 50; i++ {
		a, err := e.avatars.CreateInvite(ctx, "u1", InviteRequest{RecipientName: fmt.Sprintf("Friend %d", i)})
		require.NoError(t, err)
		require.NoError(t, e.avatars.SetDefault(ctx, "u1", a.ID), "invite %d", i)

		got, err := e.avatars.Get(ctx, a.ID)
		require.NoError(t, err)
		require.True(t, got.IsDefault)
	}

	list, err := e.avatars.List(ctx, "u1")
	require.NoError(t, err)
	var defaults int
	for _, a := range list {
		if a.IsDefault {
			defaults++
		}
	}
	assert.Equal(t, 1, defaults)
}

func TestUserService_ProfileRules(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.users.Register(ctx, RegisterRequest{Name: "", Email: "x@example.com"})
	assert.True(t, apperr.IsValidationError(err))
	_, err = e.users.Register(ctx, RegisterRequest{ID: "u1", Name: "Dup", Email: "dup@example.com"})
	assert.True(t, apperr.IsConflictError(err))

	u, err := e.users.Register(ctx, RegisterRequest{Name: "Kai", Email: "kai@example.com"})
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, model.DefaultProfileImage, u.ProfileImg)

	bad := "nope"
	_, err = e.users.UpdateProfile(ctx, u.ID, model.UserPatch{Email: &bad})
	assert.True(t, apperr.IsValidationError(err))

	name, img := " Kai M ", ""
	got, err := e.users.UpdateProfile(ctx, u.ID, model.UserPatch{Name: &name, ProfileImg: &img})
	require.NoError(t, err)
	assert.Equal(t, "Kai M", got.Name)
	assert.Equal(t, model.DefaultProfileImage, got.ProfileImg)

	_, err = e.users.Get(ctx, "ghost")
	assert.True(t, apperr.IsNotFoundError(err))
}
