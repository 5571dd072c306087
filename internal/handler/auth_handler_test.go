package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/zemong/internal/model"
)

// mockAuthService はAuthServiceInterfaceのモック実装。
type mockAuthService struct {
	signInFn  func(token string) (*model.Identity, error)
	signedOut bool
}

func (m *mockAuthService) SignIn(token string) (*model.Identity, error) {
	if m.signInFn != nil {
		return m.signInFn(token)
	}
	return nil, model.NewInvalidTokenError(nil)
}

func (m *mockAuthService) SignOut() {
	m.signedOut = true
}

// mockIdentitySource はmiddleware.IdentitySourceのモック実装。
type mockIdentitySource struct {
	current *model.Identity
}

func (m *mockIdentitySource) Current() *model.Identity {
	return m.current
}

func acceptToken(want string) func(token string) (*model.Identity, error) {
	return func(token string) (*model.Identity, error) {
		if token != want {
			return nil, model.NewInvalidTokenError(nil)
		}
		return alice, nil
	}
}

func TestAuthHandler_SignIn(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		header   string
		wantCode int
		wantErr  string
	}{
		{name: "ボディのトークン", body: `{"token":"good"}`, wantCode: http.StatusCreated},
		{name: "Bearerヘッダー", header: "Bearer good", wantCode: http.StatusCreated},
		{name: "ヘッダーを優先", body: `{"token":"bad"}`, header: "Bearer good", wantCode: http.StatusCreated},
		{name: "不正なトークン", body: `{"token":"bad"}`, wantCode: http.StatusUnauthorized, wantErr: model.ErrCodeInvalidToken},
		{name: "JSON不正", body: `{`, wantCode: http.StatusBadRequest, wantErr: model.ErrCodeInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewAuthHandler(&mockAuthService{signInFn: acceptToken("good")}, &mockIdentitySource{}, newTestLogger())

			req := httptest.NewRequest(http.MethodPost, "/api/session", strings.NewReader(tt.body))
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.SignIn(w, req)

			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if tt.wantErr != "" {
				if body := parseAPIErrorResponse(t, w); body.Code != tt.wantErr {
					t.Errorf("code = %s, want %s", body.Code, tt.wantErr)
				}
				return
			}
			var body sessionResponse
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !body.SignedIn || body.Identity == nil || body.Identity.ID != "u1" {
				t.Errorf("body = %+v", body)
			}
		})
	}
}

func TestAuthHandler_SignOut(t *testing.T) {
	svc := &mockAuthService{}
	h := NewAuthHandler(svc, &mockIdentitySource{}, newTestLogger())

	w := httptest.NewRecorder()
	h.SignOut(w, httptest.NewRequest(http.MethodDelete, "/api/session", nil))

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if !svc.signedOut {
		t.Error("SignOutが呼ばれていない")
	}
}

func TestAuthHandler_Me(t *testing.T) {
	tests := []struct {
		name     string
		current  *model.Identity
		signedIn bool
	}{
		{name: "サインイン中", current: alice, signedIn: true},
		{name: "未ログイン", current: nil, signedIn: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewAuthHandler(&mockAuthService{}, &mockIdentitySource{current: tt.current}, newTestLogger())

			w := httptest.NewRecorder()
			h.Me(w, httptest.NewRequest(http.MethodGet, "/api/session", nil))

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d", w.Code)
			}
			var body sessionResponse
			json.NewDecoder(w.Body).Decode(&body)
			if body.SignedIn != tt.signedIn {
				t.Errorf("signed_in = %v, want %v", body.SignedIn, tt.signedIn)
			}
			if (body.Identity != nil) != tt.signedIn {
				t.Errorf("identity = %+v", body.Identity)
			}
		})
	}
}
