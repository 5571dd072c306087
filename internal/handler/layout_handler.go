package handler

import (
	"encoding/json"
	"net/http"
	"path"
	"strings"

	"github.com/hitoshi/zemong/internal/middleware"
	"github.com/hitoshi/zemong/internal/model"
	"github.com/hitoshi/zemong/internal/state"
)

// StateStore はアプリケーション状態の読み書きインターフェース。state.Storeが実装する。
type StateStore interface {
	State() state.State
	Dispatch(a state.Action)
	Subscribe(l state.Listener) func()
}

// Page は画面の種類。
type Page string

const (
	PageLogin   Page = "login"
	PageJoin    Page = "join"
	PageFeed    Page = "feed"
	PageProfile Page = "profile"
)

// Route はURLパスから決まる表示内容。
type Route struct {
	Page Page
	// UID はプロフィール画面のルートパラメータ。空の場合は自分のプロフィール。
	UID string
}

// ResolveRoute はURLパスを画面に対応付ける。対応する画面がない場合はokがfalse。
func ResolveRoute(p string) (Route, bool) {
	if p == "" {
		p = "/"
	}
	p = path.Clean("/" + p)

	switch p {
	case "/":
		return Route{Page: PageLogin}, true
	case "/join":
		return Route{Page: PageJoin}, true
	case "/feed":
		return Route{Page: PageFeed}, true
	case "/profile":
		return Route{Page: PageProfile}, true
	}

	if uid, ok := strings.CutPrefix(p, "/profile/"); ok && uid != "" && !strings.Contains(uid, "/") {
		return Route{Page: PageProfile, UID: uid}, true
	}
	return Route{}, false
}

// LayoutHandler はヘッダー・詳細オーバーレイの表示状態と画面遷移を扱う。
type LayoutHandler struct {
	store StateStore
}

// NewLayoutHandler はLayoutHandlerを生成する。
func NewLayoutHandler(store StateStore) *LayoutHandler {
	return &LayoutHandler{store: store}
}

type updateLayoutRequest struct {
	DetailOpen *bool `json:"detail_open"`
}

// routeResponse は画面遷移のAPIレスポンス。
type routeResponse struct {
	Page       Page   `json:"page"`
	UID        string `json:"uid,omitempty"`
	OwnProfile bool   `json:"own_profile"`
	SignedIn   bool   `json:"signed_in"`
	HeaderOpen bool   `json:"header_open"`
	DetailOpen bool   `json:"detail_open"`
}

// GetLayout は現在の表示状態を返す。
// GET /api/layout
func (h *LayoutHandler) GetLayout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.State().Layout)
}

// UpdateLayout は詳細オーバーレイの表示を切り替える。
// ヘッダーの表示は認証状態に従うため変更できない。
// PUT /api/layout
func (h *LayoutHandler) UpdateLayout(w http.ResponseWriter, r *http.Request) {
	var req updateLayoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DetailOpen == nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("detail_openを指定してください"))
		return
	}

	h.store.Dispatch(state.DetailStateUpdated(*req.DetailOpen))
	writeJSON(w, http.StatusOK, h.store.State().Layout)
}

// ResolveRoute はパスに対応する画面と重ねて表示する要素を返す。
// GET /api/route?path=/profile/u2
func (h *LayoutHandler) ResolveRoute(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Query().Get("path")
	route, ok := ResolveRoute(p)
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewNotFoundError(p))
		return
	}

	st := h.store.State()
	writeJSON(w, http.StatusOK, routeResponse{
		Page:       route.Page,
		UID:        route.UID,
		OwnProfile: route.Page == PageProfile && route.UID == "",
		SignedIn:   st.Session != nil,
		HeaderOpen: st.Layout.HeaderOpen,
		DetailOpen: st.Layout.DetailOpen,
	})
}
