// Package auth はIDトークンの検証とサインイン/サインアウトを提供する。
package auth

import (
	"log/slog"

	"github.com/hitoshi/zemong/internal/model"
)

// Observer は認証状態の遷移を受け取る。session.Storeが実装する。
type Observer interface {
	Observe(id *model.Identity)
}

// TokenVerifier はIDトークンの検証インターフェース。
type TokenVerifier interface {
	Verify(token string) (*model.Identity, error)
}

// Service はサインイン/サインアウトを認証状態の遷移として通知する。
type Service struct {
	verifier TokenVerifier
	observer Observer
	logger   *slog.Logger
}

// NewService はServiceを生成する。
func NewService(verifier TokenVerifier, observer Observer, logger *slog.Logger) *Service {
	return &Service{
		verifier: verifier,
		observer: observer,
		logger:   logger,
	}
}

// SignIn はトークンを検証し、成功した場合はサインイン状態へ遷移する。
// 検証に失敗した場合、現在の認証状態は変更しない。
func (s *Service) SignIn(token string) (*model.Identity, error) {
	if token == "" {
		return nil, model.NewInvalidRequestError("token is required")
	}
	id, err := s.verifier.Verify(token)
	if err != nil {
		s.logger.Warn("id token rejected", slog.String("error", err.Error()))
		return nil, model.NewInvalidTokenError(err)
	}
	s.observer.Observe(id)
	return id, nil
}

// SignOut はサインアウト状態へ遷移する。
func (s *Service) SignOut() {
	s.observer.Observe(nil)
}
