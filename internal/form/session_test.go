package form

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryosuke1832/remind/internal/apperr"
	"github.com/ryosuke1832/remind/internal/upload"
)

func newSession() *Session {
	return NewSession(Limits{MaxImages: 3, MaxImageSize: 10 * 1024 * 1024})
}

func readySession(t *testing.T) *Session {
	t.Helper()
	s := newSession()
	_, err := s.AddImage("a.jpg", "image/jpeg", []byte("img"))
	require.NoError(t, err)
	require.NoError(t, s.SetAudio(upload.Media{Filename: "v.webm", Data: []byte("voice")}))
	s.SetConsent(true)
	return s
}

func TestSession_AddImageLimits(t *testing.T) {
	s := newSession()

	_, err := s.AddImage("big.jpg", "image/jpeg", make([]byte, 10*1024*1024+1))
	assert.True(t, apperr.IsValidationError(err))

	_, err = s.AddImage("doc.pdf", "application/pdf", []byte("pdf"))
	assert.True(t, apperr.IsValidationError(err))

	for i := 0; i < 3; i++ {
		_, err := s.AddImage("ok.jpg", "image/jpeg", []byte("img"))
		require.NoError(t, err)
	}
	_, err = s.AddImage("fourth.jpg", "image/jpeg", []byte("img"))
	assert.True(t, apperr.IsValidationError(err))
	assert.Len(t, s.State().Images, 3)
}

func TestSession_RemoveImage(t *testing.T) {
	s := newSession()
	first, _ := s.AddImage("1.jpg", "image/jpeg", []byte("1"))
	second, _ := s.AddImage("2.jpg", "image/jpeg", []byte("2"))

	assert.True(t, s.RemoveImage(first.ID))
	assert.False(t, s.RemoveImage(first.ID))
	st := s.State()
	require.Len(t, st.Images, 1)
	assert.Equal(t, second.ID, st.Images[0].ID)
}

func TestSession_CanSubmitNeedsEverything(t *testing.T) {
	s := newSession()
	assert.False(t, s.CanSubmit())

	_, _ = s.AddImage("a.jpg", "image/jpeg", []byte("img"))
	assert.False(t, s.CanSubmit())

	require.NoError(t, s.SetAudio(upload.Media{Data: []byte("voice")}))
	assert.False(t, s.CanSubmit())

	s.SetConsent(true)
	assert.True(t, s.CanSubmit())

	s.ClearAudio()
	assert.False(t, s.CanSubmit())
	err := s.Submit(context.Background(), func(context.Context, []upload.Media, upload.Media) error { return nil })
	var ve apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "audio", ve.Field)
}

func TestSession_RecordingFlow(t *testing.T) {
	s := newSession()
	require.NoError(t, s.StartRecording())
	assert.Equal(t, PhaseRecording, s.State().Phase)

	_, err := s.StopRecording(upload.Media{Filename: "rec.webm", Data: []byte("voice")})
	require.NoError(t, err)
	st := s.State()
	assert.Equal(t, PhaseIdle, st.Phase)
	assert.True(t, st.HasAudio)
	assert.Equal(t, int64(5), st.AudioSize)

	_, err = s.StopRecording(upload.Media{})
	assert.True(t, apperr.IsConflictError(err))
}

func TestSession_RecordingDenied(t *testing.T) {
	s := newSession()
	require.NoError(t, s.StartRecording())
	err := s.RecordingDenied()

	var pe apperr.PermissionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, MsgMicDenied, pe.Message)
	st := s.State()
	assert.Equal(t, PhaseIdle, st.Phase)
	assert.Equal(t, MsgMicDenied, st.Error)
	assert.False(t, st.HasAudio)
}

func TestSession_SubmitSuccessReleasesMedia(t *testing.T) {
	s := readySession(t)

	var gotImages int
	err := s.Submit(context.Background(), func(_ context.Context, images []upload.Media, audio upload.Media) error {
		gotImages = len(images)
		assert.Equal(t, []byte("voice"), audio.Data)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, gotImages)

	st := s.State()
	assert.Equal(t, PhaseDone, st.Phase)
	assert.Empty(t, st.Images)
	assert.False(t, st.HasAudio)
	assert.False(t, st.CanSubmit)
}

func TestSession_SubmitFailureAllowsRetry(t *testing.T) {
	s := readySession(t)

	boom := errors.New("upload of audio failed")
	err := s.Submit(context.Background(), func(context.Context, []upload.Media, upload.Media) error { return boom })
	assert.ErrorIs(t, err, boom)

	st := s.State()
	assert.Equal(t, PhaseFailed, st.Phase)
	assert.Equal(t, boom.Error(), st.Error)
	assert.True(t, st.CanSubmit)

	require.NoError(t, s.Submit(context.Background(), func(context.Context, []upload.Media, upload.Media) error { return nil }))
}

func TestSession_RejectsDoubleSubmit(t *testing.T) {
	s := readySession(t)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.Submit(context.Background(), func(context.Context, []upload.Media, upload.Media) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	assert.Equal(t, PhaseUploading, s.State().Phase)
	assert.False(t, s.CanSubmit())
	err := s.Submit(context.Background(), func(context.Context, []upload.Media, upload.Media) error {
		t.Fatal("second submission must not run")
		return nil
	})
	assert.True(t, apperr.IsConflictError(err))
	_, err = s.AddImage("late.jpg", "image/jpeg", []byte("x"))
	assert.True(t, apperr.IsConflictError(err))

	close(release)
	require.NoError(t, <-done)
}

func TestSession_ResetWhileUploadingKeepsSubmitGuard(t *testing.T) {
	s := readySession(t)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.Submit(context.Background(), func(context.Context, []upload.Media, upload.Media) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	assert.True(t, apperr.IsConflictError(s.Reset()))
	st := s.State()
	assert.Equal(t, PhaseUploading, st.Phase)
	assert.Len(t, st.Images, 1)

	err := s.Submit(context.Background(), func(context.Context, []upload.Media, upload.Media) error {
		t.Fatal("second submission must not run")
		return nil
	})
	assert.True(t, apperr.IsConflictError(err))

	close(release)
	require.NoError(t, <-done)
	require.NoError(t, s.Reset())
	assert.Equal(t, PhaseIdle, s.State().Phase)
}

func TestSession_SubscribeSeesLatestState(t *testing.T) {
	s := newSession()
	ch, cancel := s.Subscribe()
	defer cancel()

	initial := <-ch
	assert.Equal(t, PhaseIdle, initial.Phase)

	_, _ = s.AddImage("a.jpg", "image/jpeg", []byte("1"))
	_, _ = s.AddImage("b.jpg", "image/jpeg", []byte("2"))
	s.SetConsent(true)

	select {
	case st := <-ch:
		assert.Len(t, st.Images, 2)
		assert.True(t, st.Consent)
	case <-time.After(time.Second):
		t.Fatal("no state delivered")
	}

	require.NoError(t, s.Reset())
	st := <-ch
	assert.Empty(t, st.Images)
	assert.False(t, st.Consent)

	cancel()
	_, open := <-ch
	assert.False(t, open)
}
