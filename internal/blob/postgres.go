package blob

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// PostgresStore はblobsテーブルにbyteaで保存するStore実装。
type PostgresStore struct {
	db      *sql.DB
	baseURL string
}

// NewPostgresStore はPostgresStoreを生成する。
func NewPostgresStore(db *sql.DB, baseURL string) *PostgresStore {
	return &PostgresStore{db: db, baseURL: baseURL}
}

// Put はデータを保存する。既存の行はトークンごと置き換える。
func (s *PostgresStore) Put(ctx context.Context, path string, data []byte, contentType string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO blobs (path, data, content_type, token, updated_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 ON CONFLICT (path) DO UPDATE
		 SET data = EXCLUDED.data, content_type = EXCLUDED.content_type,
		     token = EXCLUDED.token, updated_at = NOW()`,
		path, data, contentType, uuid.NewString(),
	)
	if err != nil {
		return fmt.Errorf("failed to store blob %q: %w", path, err)
	}
	return nil
}

// URL は現在のトークン付きの取得用URLを返す。
func (s *PostgresStore) URL(ctx context.Context, path string) (string, error) {
	var token string
	err := s.db.QueryRowContext(ctx, `SELECT token FROM blobs WHERE path = $1`, path).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up blob %q: %w", path, err)
	}
	return downloadURL(s.baseURL, path, token), nil
}

// Get はトークンが一致する場合にオブジェクトを返す。
func (s *PostgresStore) Get(ctx context.Context, path, token string) (*Object, error) {
	obj := &Object{Path: path}
	err := s.db.QueryRowContext(ctx,
		`SELECT data, content_type, updated_at FROM blobs WHERE path = $1 AND token = $2`,
		path, token,
	).Scan(&obj.Data, &obj.ContentType, &obj.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %q: %w", path, err)
	}
	return obj, nil
}
