// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/zemong/internal/middleware"
	"github.com/hitoshi/zemong/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	SignIn(token string) (*model.Identity, error)
	SignOut()
}

// AuthHandler はサインイン/サインアウトのHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	session middleware.IdentitySource
	logger  *slog.Logger
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, session middleware.IdentitySource, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		service: service,
		session: session,
		logger:  logger,
	}
}

type signInRequest struct {
	Token string `json:"token"`
}

// sessionResponse は現在の認証状態のAPIレスポンス。
type sessionResponse struct {
	SignedIn bool            `json:"signed_in"`
	Identity *model.Identity `json:"identity"`
}

// SignIn はIDトークンを検証してサインインする。
// トークンはJSONボディまたはAuthorization: Bearerヘッダーで受け付ける。
// POST /api/session
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		var req signInRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
			return
		}
		token = req.Token
	}

	id, err := h.service.SignIn(token)
	if err != nil {
		middleware.WriteError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, sessionResponse{SignedIn: true, Identity: id})
}

// SignOut はサインアウトする。未ログインでも成功する。
// DELETE /api/session
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	h.service.SignOut()
	w.WriteHeader(http.StatusNoContent)
}

// Me は現在の認証状態を返す。
// GET /api/session
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	id := h.session.Current()
	writeJSON(w, http.StatusOK, sessionResponse{SignedIn: id != nil, Identity: id})
}

func bearerToken(r *http.Request) string {
	v := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(v, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}
