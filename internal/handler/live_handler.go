package handler

import (
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hitoshi/zemong/internal/state"
)

const (
	liveWriteWait  = 10 * time.Second
	livePongWait   = 60 * time.Second
	livePingPeriod = livePongWait * 9 / 10
)

// liveMessage はWebSocketで送る状態通知。
type liveMessage struct {
	Type   string      `json:"type"`
	Action string      `json:"action,omitempty"`
	State  state.State `json:"state"`
}

// liveRequest はクライアントから届くメッセージ。
type liveRequest struct {
	Type string `json:"type"`
}

// LiveHandler はアプリケーション状態の遷移をWebSocketで配信する。
type LiveHandler struct {
	store    StateStore
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewLiveHandler はLiveHandlerを生成する。allowedOriginが空の場合は同一オリジンのみ許可する。
func NewLiveHandler(store StateStore, allowedOrigin string, logger *slog.Logger) *LiveHandler {
	return &LiveHandler{
		store:  store,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return checkOrigin(r, allowedOrigin)
			},
		},
	}
}

func checkOrigin(r *http.Request, allowedOrigin string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if allowedOrigin != "" && origin == allowedOrigin {
		return true
	}
	u, err := url.Parse(origin)
	return err == nil && u.Host == r.Host
}

// Stream は接続直後に現在の状態を送り、以降は遷移のたびに最新の状態を送る。
// 送信が追いつかない場合、途中の状態は省略され最新の状態だけが届く。
// GET /api/live
func (h *LiveHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("failed to upgrade websocket",
			slog.String("error", err.Error()),
			slog.String("module", "live"),
		)
		return
	}
	defer ws.Close()

	// Listenerはdispatch中に呼ばれるためブロックしない
	notify := make(chan string, 1)
	unsubscribe := h.store.Subscribe(func(prev, next state.State, a state.Action) {
		select {
		case notify <- string(a.Type):
		default:
			select {
			case <-notify:
			default:
			}
			select {
			case notify <- string(a.Type):
			default:
			}
		}
	})
	defer unsubscribe()

	quit := make(chan struct{})
	go h.readLoop(ws, quit)

	if err := h.send(ws, liveMessage{Type: "snapshot", State: h.store.State()}); err != nil {
		return
	}

	ticker := time.NewTicker(livePingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-quit:
			return
		case <-r.Context().Done():
			return
		case action := <-notify:
			if err := h.send(ws, liveMessage{Type: "state", Action: action, State: h.store.State()}); err != nil {
				return
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *LiveHandler) send(ws *websocket.Conn, msg liveMessage) error {
	ws.SetWriteDeadline(time.Now().Add(liveWriteWait))
	if err := ws.WriteJSON(msg); err != nil {
		h.logger.Error("failed to write live message",
			slog.String("error", err.Error()),
			slog.String("module", "live"),
		)
		return err
	}
	return nil
}

// readLoop はクライアントからのメッセージを読み、切断されたらquitを閉じる。
func (h *LiveHandler) readLoop(ws *websocket.Conn, quit chan<- struct{}) {
	defer close(quit)

	ws.SetReadLimit(4096)
	ws.SetReadDeadline(time.Now().Add(livePongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(livePongWait))
	})

	for {
		var req liveRequest
		if err := ws.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("websocket closed",
					slog.String("error", err.Error()),
					slog.String("module", "live"),
				)
			}
			return
		}

		switch req.Type {
		case "h": // heartbeat
			ws.SetReadDeadline(time.Now().Add(livePongWait))
		default:
			h.logger.Info("unknown live request type",
				slog.String("type", req.Type),
				slog.String("module", "live"),
			)
		}
	}
}
