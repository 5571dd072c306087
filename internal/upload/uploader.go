// Package upload はプロフィール画像のアップロードとひとことの保存を提供する。
//
// 画像はまずプレビューとして即座に返し、保存は非同期に行う。
// 保存に失敗してもプレビューは残るが、結果のDurableがfalseになり
// どの段階で失敗したかが分かる。
package upload

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/zemong/internal/blob"
	"github.com/hitoshi/zemong/internal/model"
	"github.com/hitoshi/zemong/internal/security"
)

// Stage はアップロードの進行段階。
type Stage string

const (
	StageDecode Stage = "decode"
	StageStore  Stage = "store"
	StageURL    Stage = "url"
	StageWrite  Stage = "write"
	StageDone   Stage = "done"
)

const defaultPersistTimeout = 30 * time.Second

// Writer はリアルタイムDBへの書き込み。
type Writer interface {
	Set(ctx context.Context, path string, value any) error
}

// CacheInvalidator はプロフィールキャッシュの破棄。
type CacheInvalidator interface {
	InvalidateProfile(uid string)
}

// MetricsRecorder はアップロード結果の記録インターフェース。
type MetricsRecorder interface {
	RecordUpload(stage string, durable bool)
}

// Result は非同期保存の結果。
type Result struct {
	UID     string
	Preview string
	// Stage は完了した場合StageDone、失敗した場合は失敗した段階。
	Stage   Stage
	Durable bool
	URL     string
	Err     error
}

// Uploader はプロフィール画像とひとことを保存する。
type Uploader struct {
	blobs     blob.Store
	db        Writer
	cache     CacheInvalidator
	sanitizer security.TextSanitizerService
	logger    *slog.Logger
	metrics   MetricsRecorder

	maxSize int64
	timeout time.Duration

	wg sync.WaitGroup
}

// Options はUploaderの生成オプション。
type Options struct {
	MaxSize int64
	// Timeout は非同期保存全体の制限時間。
	Timeout time.Duration
	Cache   CacheInvalidator
	Metrics MetricsRecorder
}

// NewUploader はUploaderを生成する。
func NewUploader(blobs blob.Store, db Writer, sanitizer security.TextSanitizerService, logger *slog.Logger, opts Options) *Uploader {
	u := &Uploader{
		blobs:     blobs,
		db:        db,
		cache:     opts.Cache,
		sanitizer: sanitizer,
		logger:    logger,
		metrics:   opts.Metrics,
		maxSize:   opts.MaxSize,
		timeout:   opts.Timeout,
	}
	if u.timeout <= 0 {
		u.timeout = defaultPersistTimeout
	}
	return u
}

// Upload は画像をデコードしてプレビューを返し、保存を非同期に開始する。
// デコードに失敗した場合はエラーを返し、保存は行わない。
// 保存の結果はonDoneに渡される。onDoneはnilでもよい。
func (u *Uploader) Upload(ctx context.Context, uid string, input []byte, onDone func(Result)) (string, error) {
	if uid == "" {
		return "", model.NewUnauthorizedError()
	}
	img, err := DecodeImage(input, u.maxSize)
	if err != nil {
		u.record(StageDecode, false)
		return "", err
	}
	preview := img.Preview()

	// リクエストの終了で保存が中断されないようキャンセルを切り離す
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), u.timeout)

	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		defer cancel()

		r := u.persist(persistCtx, uid, img)
		r.Preview = preview
		u.record(r.Stage, r.Durable)
		if onDone != nil {
			onDone(r)
		}
	}()

	return preview, nil
}

func (u *Uploader) persist(ctx context.Context, uid string, img Image) Result {
	r := Result{UID: uid}
	fail := func(stage Stage, err error) Result {
		r.Stage = stage
		r.Err = model.NewUploadFailedError(string(stage), err)
		u.logger.Error("failed to persist profile image",
			slog.String("user_id", uid),
			slog.String("stage", string(stage)),
			slog.String("error", err.Error()),
		)
		return r
	}

	blobPath := model.ProfileBlobPath(uid)
	if err := u.blobs.Put(ctx, blobPath, img.Data, img.ContentType); err != nil {
		return fail(StageStore, err)
	}

	url, err := u.blobs.URL(ctx, blobPath)
	if err != nil {
		return fail(StageURL, err)
	}
	r.URL = url

	if err := u.db.Set(ctx, model.ProfileImagePath(uid), url); err != nil {
		return fail(StageWrite, err)
	}
	if u.cache != nil {
		u.cache.InvalidateProfile(uid)
	}

	u.logger.Info("profile image uploaded",
		slog.String("user_id", uid),
		slog.Int("size", len(img.Data)),
		slog.String("content_type", img.ContentType),
	)
	r.Stage = StageDone
	r.Durable = true
	return r
}

// SubmitQuote はひとことをサニタイズして保存し、保存したテキストを返す。
func (u *Uploader) SubmitQuote(ctx context.Context, uid, quote string) (string, error) {
	if uid == "" {
		return "", model.NewUnauthorizedError()
	}
	text := u.sanitizer.Sanitize(quote)
	if text == "" {
		return "", model.NewEmptyQuoteError()
	}

	if err := u.db.Set(ctx, model.ProfileQuotePath(uid), text); err != nil {
		u.logger.Error("failed to save quote",
			slog.String("user_id", uid),
			slog.String("error", err.Error()),
		)
		return "", model.NewBackendUnavailableError("quote", err)
	}
	if u.cache != nil {
		u.cache.InvalidateProfile(uid)
	}

	u.logger.Info("quote updated", slog.String("user_id", uid))
	return text, nil
}

// Wait は進行中の非同期保存が終わるまで待つ。ctxが先に終了した場合はそのエラーを返す。
func (u *Uploader) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		u.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (u *Uploader) record(stage Stage, durable bool) {
	if u.metrics != nil {
		u.metrics.RecordUpload(string(stage), durable)
	}
}
