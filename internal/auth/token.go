package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hitoshi/zemong/internal/model"
)

// ErrMissingSubject はトークンにユーザーIDが含まれない場合に返る。
var ErrMissingSubject = errors.New("auth: token has no subject")

// Claims はIDトークンのクレーム。subがユーザーIDになる。
type Claims struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Verifier はHS256で署名されたIDトークンを検証する。
type Verifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewVerifier はVerifierを生成する。issuerが空の場合issクレームは検証しない。
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		issuer: issuer,
		now:    time.Now,
	}
}

// Verify はトークンを検証し、認証済みユーザーを返す。
func (v *Verifier) Verify(token string) (*model.Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims Claims
	if _, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...); err != nil {
		return nil, fmt.Errorf("failed to verify id token: %w", err)
	}
	if claims.Subject == "" {
		return nil, ErrMissingSubject
	}

	return &model.Identity{
		ID:          claims.Subject,
		DisplayName: claims.Name,
		Email:       claims.Email,
	}, nil
}

// Issue はユーザーのIDトークンを発行する。
func (v *Verifier) Issue(id *model.Identity, ttl time.Duration) (string, error) {
	if id == nil || id.ID == "" {
		return "", ErrMissingSubject
	}
	now := v.now()
	claims := Claims{
		Name:  id.DisplayName,
		Email: id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign id token: %w", err)
	}
	return signed, nil
}
