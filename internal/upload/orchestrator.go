// Package upload moves captured media for one avatar into the blob store.
//
// Images upload one after another in list order while the audio clip
// uploads concurrently. Each asset is retried with exponential backoff and
// a per-attempt deadline. The combined result is produced only after both
// branches finish.
package upload

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ryosuke1832/remind/internal/apperr"
	"github.com/ryosuke1832/remind/internal/blobstore"
)

// Config bounds inputs and controls retry behaviour.
type Config struct {
	Folder       string
	MaxImages    int
	MaxImageSize int64
	MaxAudioSize int64
	MaxRetries   int           // retries after the first attempt
	BaseDelay    time.Duration // delay before retry n is BaseDelay * 2^n
	ImageTimeout time.Duration
	AudioTimeout time.Duration
}

// DefaultConfig mirrors the limits of the companion uploader.
func DefaultConfig() Config {
	return Config{
		Folder:       "remind_avatars",
		MaxImages:    3,
		MaxImageSize: 10 * 1024 * 1024,
		MaxAudioSize: 50 * 1024 * 1024,
		MaxRetries:   3,
		BaseDelay:    time.Second,
		ImageTimeout: 30 * time.Second,
		AudioTimeout: 60 * time.Second,
	}
}

// Media is one captured file.
type Media struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Progress is delivered after each asset lands.
type Progress struct {
	Kind  blobstore.Kind `json:"kind"`
	Index int            `json:"index"` // image position; -1 for audio
	Total int            `json:"total"` // images in the request; 1 for audio
	URL   string         `json:"url"`
}

// Request is one avatar's media batch.
type Request struct {
	RecordID string
	Images   []Media
	Audio    *Media
	// Progress is optional. Calls are serialized.
	Progress func(Progress)
}

// Result holds delivered URLs, images in input order.
type Result struct {
	ImageURLs []string
	AudioURL  string
	AudioSize int64
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Orchestrator uploads media batches to a blob store.
type Orchestrator struct {
	cfg   Config
	blobs blobstore.Store
	log   zerolog.Logger
	sleep SleepFunc
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSleep replaces the backoff wait, letting tests observe delays.
func WithSleep(fn SleepFunc) Option { return func(o *Orchestrator) { o.sleep = fn } }

func New(cfg Config, blobs blobstore.Store, log zerolog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{cfg: cfg, blobs: blobs, log: log, sleep: sleepCtx}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Provider names the blob store results are written to.
func (o *Orchestrator) Provider() string { return o.blobs.Provider() }

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Validate checks a request without touching the network.
func (o *Orchestrator) Validate(req Request) error {
	if req.RecordID == "" {
		return apperr.NewValidationError("avatarId", "Avatar ID is required")
	}
	if len(req.Images) == 0 {
		return apperr.NewValidationError("images", "Please add at least one image")
	}
	if len(req.Images) > o.cfg.MaxImages {
		return apperr.NewValidationError("images", fmt.Sprintf("You can upload up to %d images", o.cfg.MaxImages))
	}
	for i, img := range req.Images {
		if len(img.Data) == 0 {
			return apperr.NewValidationError("images", fmt.Sprintf("Image %d is empty", i+1))
		}
		if int64(len(img.Data)) > o.cfg.MaxImageSize {
			return apperr.NewValidationError("images", fmt.Sprintf("Image %d exceeds %dMB", i+1, o.cfg.MaxImageSize/1024/1024))
		}
	}
	if req.Audio == nil || len(req.Audio.Data) == 0 {
		return apperr.NewValidationError("audio", "Please record a voice message")
	}
	if o.cfg.MaxAudioSize > 0 && int64(len(req.Audio.Data)) > o.cfg.MaxAudioSize {
		return apperr.NewValidationError("audio", fmt.Sprintf("Audio exceeds %dMB", o.cfg.MaxAudioSize/1024/1024))
	}
	return nil
}

// Upload validates req and uploads every asset. On failure it returns one
// *UploadFailedError; assets that did land are logged as orphans and left
// in place.
func (o *Orchestrator) Upload(ctx context.Context, req Request) (*Result, error) {
	if err := o.Validate(req); err != nil {
		return nil, err
	}

	var mu sync.Mutex
	report := func(p Progress) {
		if req.Progress == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		req.Progress(p)
	}

	imageURLs := make([]string, 0, len(req.Images))
	var audioURL string

	// The branches share no cancellation: a failed branch never aborts the other.
	var g errgroup.Group
	g.Go(func() error {
		for i, img := range req.Images {
			asset := blobstore.Asset{
				PublicID:    req.RecordID + "_image_" + strconv.Itoa(i),
				Folder:      o.cfg.Folder,
				Kind:        blobstore.KindImage,
				Filename:    img.Filename,
				ContentType: img.ContentType,
				Data:        img.Data,
			}
			url, err := o.uploadWithRetry(ctx, asset, i, o.cfg.ImageTimeout)
			if err != nil {
				return err
			}
			imageURLs = append(imageURLs, url)
			report(Progress{Kind: blobstore.KindImage, Index: i, Total: len(req.Images), URL: url})
		}
		return nil
	})
	g.Go(func() error {
		asset := blobstore.Asset{
			PublicID:    req.RecordID + "_audio",
			Folder:      o.cfg.Folder,
			Kind:        blobstore.KindAudio,
			Filename:    req.Audio.Filename,
			ContentType: req.Audio.ContentType,
			Data:        req.Audio.Data,
		}
		url, err := o.uploadWithRetry(ctx, asset, -1, o.cfg.AudioTimeout)
		if err != nil {
			return err
		}
		audioURL = url
		report(Progress{Kind: blobstore.KindAudio, Index: -1, Total: 1, URL: url})
		return nil
	})

	if err := g.Wait(); err != nil {
		orphans := append([]string(nil), imageURLs...)
		if audioURL != "" {
			orphans = append(orphans, audioURL)
		}
		if len(orphans) > 0 {
			orphanedAssetsTotal.Add(float64(len(orphans)))
			o.log.Warn().
				Str("avatar_id", req.RecordID).
				Strs("orphans", orphans).
				Msg("uploaded assets left unreferenced")
		}
		return nil, err
	}

	return &Result{ImageURLs: imageURLs, AudioURL: audioURL, AudioSize: int64(len(req.Audio.Data))}, nil
}

// uploadWithRetry makes 1 + MaxRetries attempts, each under its own deadline.
func (o *Orchestrator) uploadWithRetry(ctx context.Context, asset blobstore.Asset, index int, timeout time.Duration) (string, error) {
	kind := string(asset.Kind)

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = o.cfg.BaseDelay
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxInterval = o.cfg.BaseDelay << o.cfg.MaxRetries
	exp.MaxElapsedTime = 0
	exp.Reset()

	fail := func(attempts int, err error) (string, error) {
		outcomesTotal.WithLabelValues(kind, "failed").Inc()
		o.log.Error().
			Str("public_id", asset.PublicID).
			Int("attempts", attempts).
			Err(err).
			Msg("asset upload failed")
		return "", &UploadFailedError{PublicID: asset.PublicID, Kind: asset.Kind, Index: index, Attempts: attempts, Err: err}
	}

	attempts := 0
	for {
		attempts++
		attemptsTotal.WithLabelValues(kind).Inc()

		start := time.Now()
		url, err := o.attempt(ctx, asset, timeout)
		attemptDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
		if err == nil {
			outcomesTotal.WithLabelValues(kind, "succeeded").Inc()
			o.log.Debug().Str("public_id", asset.PublicID).Int("attempts", attempts).Msg("asset uploaded")
			return url, nil
		}

		// parent cancellation stops retrying; a per-attempt timeout does not
		if ctx.Err() != nil {
			return fail(attempts, ctx.Err())
		}
		if attempts > o.cfg.MaxRetries {
			return fail(attempts, err)
		}

		wait := exp.NextBackOff()
		o.log.Warn().
			Str("public_id", asset.PublicID).
			Int("attempt", attempts).
			Dur("retry_in", wait).
			Err(err).
			Msg("asset upload attempt failed")
		if serr := o.sleep(ctx, wait); serr != nil {
			return fail(attempts, serr)
		}
	}
}

func (o *Orchestrator) attempt(ctx context.Context, asset blobstore.Asset, timeout time.Duration) (string, error) {
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url, err := o.blobs.Upload(actx, asset)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		err = &apperr.TransientError{Op: "upload " + asset.PublicID, Err: fmt.Errorf("attempt timed out after %s", timeout)}
	}
	return url, err
}
