package realtime

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/zemong/internal/model"
)

// notifyChannel はパス変更を通知するPostgreSQLのNOTIFYチャネル名。
const notifyChannel = "realtime_changes"

const (
	listenerMinReconnect = 10 * time.Second
	listenerMaxReconnect = time.Minute
	listenerPingInterval = 90 * time.Second
	refreshTimeout       = 10 * time.Second
)

// PostgresDB はrealtime_nodesテーブルに葉を保存し、
// LISTEN/NOTIFYで変更を配信するDatabase実装。
type PostgresDB struct {
	db       *sql.DB
	listener *pq.Listener
	logger   *slog.Logger

	mu       sync.Mutex
	channels map[*channel]struct{}
	closed   bool

	// fetchMu はOpen時の初回読み取りと通知による再読み取りを直列化する。
	fetchMu sync.Mutex

	done chan struct{}
	wg   sync.WaitGroup
}

// NewPostgresDB はPostgresDBを生成し、変更通知の受信を開始する。
// dbはスキーマ適用済みであること。
func NewPostgresDB(db *sql.DB, databaseURL string, logger *slog.Logger) (*PostgresDB, error) {
	p := &PostgresDB{
		db:       db,
		logger:   logger,
		channels: make(map[*channel]struct{}),
		done:     make(chan struct{}),
	}

	p.listener = pq.NewListener(databaseURL, listenerMinReconnect, listenerMaxReconnect, p.onListenerEvent)
	if err := p.listener.Listen(notifyChannel); err != nil {
		p.listener.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", notifyChannel, err)
	}

	p.wg.Add(1)
	go p.run()
	return p, nil
}

func (p *PostgresDB) onListenerEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventDisconnected:
		p.logger.Warn("realtime listener disconnected", slog.String("error", errString(err)))
	case pq.ListenerEventReconnected:
		p.logger.Info("realtime listener reconnected")
	case pq.ListenerEventConnectionAttemptFailed:
		p.logger.Error("realtime listener connection attempt failed", slog.String("error", errString(err)))
	}
}

func (p *PostgresDB) run() {
	defer p.wg.Done()
	ticker := time.NewTicker(listenerPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.done:
			return
		case n, ok := <-p.listener.Notify:
			if !ok {
				return
			}
			// 再接続時はnilが届く。取りこぼした通知があり得るため全チャネルを読み直す
			if n == nil {
				p.refresh(func(string) bool { return true })
				continue
			}
			written := cleanPath(n.Extra)
			p.refresh(func(subscribed string) bool { return related(subscribed, written) })
		case <-ticker.C:
			go func() {
				if err := p.listener.Ping(); err != nil {
					p.logger.Warn("realtime listener ping failed", slog.String("error", err.Error()))
				}
			}()
		}
	}
}

func (p *PostgresDB) refresh(match func(subscribed string) bool) {
	p.fetchMu.Lock()
	defer p.fetchMu.Unlock()

	p.mu.Lock()
	targets := make([]*channel, 0, len(p.channels))
	for ch := range p.channels {
		if match(ch.path) {
			targets = append(targets, ch)
		}
	}
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	for _, ch := range targets {
		snap, err := p.Get(ctx, ch.path)
		if err != nil {
			p.logger.Error("failed to refresh realtime channel",
				slog.String("path", ch.path),
				slog.String("error", err.Error()),
			)
			continue
		}
		ch.push(snap)
	}
}

// Open はパスを購読し、現在値を最初のイベントとして配信する。
func (p *PostgresDB) Open(ctx context.Context, path string) (Channel, error) {
	path = cleanPath(path)

	p.fetchMu.Lock()
	defer p.fetchMu.Unlock()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	ch := newChannel(path, p.remove)
	p.channels[ch] = struct{}{}
	p.mu.Unlock()

	snap, err := p.Get(ctx, path)
	if err != nil {
		p.remove(ch)
		return nil, err
	}
	ch.push(snap)
	return ch, nil
}

// Get はパス自身とその子孫の行から現在値を組み立てる。
func (p *PostgresDB) Get(ctx context.Context, path string) (model.Snapshot, error) {
	path = cleanPath(path)

	rows, err := p.db.QueryContext(ctx,
		`SELECT path, value FROM realtime_nodes
		 WHERE path = $1 OR path LIKE $2 ESCAPE '\'`,
		path, descendantPattern(path),
	)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("failed to query realtime nodes at %q: %w", path, err)
	}
	defer rows.Close()

	leaves := make(map[string]json.RawMessage)
	for rows.Next() {
		var k string
		var v []byte
		if err := rows.Scan(&k, &v); err != nil {
			return model.Snapshot{}, fmt.Errorf("failed to scan realtime node: %w", err)
		}
		leaves[k] = v
	}
	if err := rows.Err(); err != nil {
		return model.Snapshot{}, fmt.Errorf("failed to iterate realtime nodes: %w", err)
	}

	return build(path, leaves)
}

// Set はパスの部分木を1トランザクションで置き換え、コミット時に変更を通知する。
func (p *PostgresDB) Set(ctx context.Context, path string, value any) error {
	path = cleanPath(path)

	leaves, err := flatten(path, value)
	if err != nil {
		return err
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 自身・子孫・祖先の葉を削除する。祖先が葉だった場合は部分木で置き換わる。
	// 同じ葉への並行書き込みでは削除後に相手のINSERTがコミットされ得るため、INSERTはupsertにする
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM realtime_nodes
		 WHERE path = $1 OR path LIKE $2 ESCAPE '\' OR path = ANY($3)`,
		path, descendantPattern(path), pq.Array(ancestors(path)),
	); err != nil {
		return fmt.Errorf("failed to delete realtime nodes at %q: %w", path, err)
	}

	for k, v := range leaves {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO realtime_nodes (path, value, updated_at) VALUES ($1, $2::jsonb, NOW())
			 ON CONFLICT (path) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
			k, string(v),
		); err != nil {
			return fmt.Errorf("failed to insert realtime node %q: %w", k, err)
		}
	}

	// pg_notifyはトランザクションのコミット時に配信される
	if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, path); err != nil {
		return fmt.Errorf("failed to notify change at %q: %w", path, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit realtime write: %w", err)
	}
	return nil
}

// Close は通知の受信を停止し、全チャネルを閉じる。*sql.DBは閉じない。
func (p *PostgresDB) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	channels := make([]*channel, 0, len(p.channels))
	for ch := range p.channels {
		channels = append(channels, ch)
	}
	p.mu.Unlock()

	close(p.done)
	err := p.listener.Close()
	p.wg.Wait()

	for _, ch := range channels {
		ch.Close()
	}
	if err != nil {
		return fmt.Errorf("failed to close realtime listener: %w", err)
	}
	return nil
}

func (p *PostgresDB) remove(ch *channel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.channels, ch)
}

// descendantPattern はpathの子孫に一致するLIKEパターンを返す。
func descendantPattern(path string) string {
	if path == "" {
		return "%"
	}
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(path) + "/%"
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
