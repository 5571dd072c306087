package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/zemong/internal/middleware"
	"github.com/hitoshi/zemong/internal/model"
	"github.com/hitoshi/zemong/internal/state"
)

// StateReader はアプリケーション状態の読み取りインターフェース。
type StateReader interface {
	State() state.State
}

// CollectionHandler はライブ購読で同期中のコレクションを返す。
type CollectionHandler struct {
	store  StateReader
	logger *slog.Logger
}

// NewCollectionHandler はCollectionHandlerを生成する。
func NewCollectionHandler(store StateReader, logger *slog.Logger) *CollectionHandler {
	return &CollectionHandler{store: store, logger: logger}
}

// collectionResponse はコレクションのAPIレスポンス。
// 未取得の場合loadedがfalseでitemsはnull、空の場合は[]になる。
type collectionResponse struct {
	Collection model.Collection `json:"collection"`
	Loaded     bool             `json:"loaded"`
	Items      any              `json:"items"`
	Version    uint64           `json:"version"`
}

// Get はURLパラメータnameのコレクションを返す。
// GET /api/collections/{name}
func (h *CollectionHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := model.ParseCollection(chi.URLParam(r, "name"))
	if err != nil {
		middleware.WriteError(w, h.logger, err)
		return
	}
	h.write(w, c)
}

// For は固定のコレクションを返すハンドラーを返す。
func (h *CollectionHandler) For(c model.Collection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.write(w, c)
	}
}

func (h *CollectionHandler) write(w http.ResponseWriter, c model.Collection) {
	st := h.store.State()
	writeJSON(w, http.StatusOK, collectionResponse{
		Collection: c,
		Loaded:     st.Loaded(c),
		Items:      st.Collection(c),
		Version:    st.Version,
	})
}
