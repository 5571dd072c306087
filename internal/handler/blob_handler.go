package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/zemong/internal/blob"
	"github.com/hitoshi/zemong/internal/middleware"
	"github.com/hitoshi/zemong/internal/model"
)

// BlobReader は保存済みバイナリの取得インターフェース。
type BlobReader interface {
	Get(ctx context.Context, path, token string) (*blob.Object, error)
}

// BlobHandler はアップロード済みの画像を配信する。
type BlobHandler struct {
	blobs  BlobReader
	logger *slog.Logger
}

// NewBlobHandler はBlobHandlerを生成する。
func NewBlobHandler(blobs BlobReader, logger *slog.Logger) *BlobHandler {
	return &BlobHandler{blobs: blobs, logger: logger}
}

// Get はトークンを検証してバイナリを返す。
// GET /blobs/*?token=...
func (h *BlobHandler) Get(w http.ResponseWriter, r *http.Request) {
	p := chi.URLParam(r, "*")
	obj, err := h.blobs.Get(r.Context(), p, r.URL.Query().Get("token"))
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewNotFoundError(p))
			return
		}
		middleware.WriteError(w, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", obj.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(obj.Data)))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Header().Set("Last-Modified", obj.UpdatedAt.UTC().Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)
	w.Write(obj.Data)
}
