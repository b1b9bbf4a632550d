package channel

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/soochol/flowdeck/internal/flowdeck"
	"github.com/soochol/flowdeck/internal/flowdeck/ports"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS streams the events of the flow named by the flowId query
// parameter to a WebSocket client until either side goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	flowID := r.URL.Query().Get("flowId")
	if flowID == "" {
		http.Error(w, "flowId is required", http.StatusBadRequest)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "flow_id", flowID, "err", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	sub, err := h.Subscribe(ctx, flowID)
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, err.Error()), time.Now().Add(writeWait))
		return
	}
	defer sub.Close()

	// The client never sends data; reading only tracks pongs and close frames.
	go func() {
		defer cancel()
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// WSSource subscribes to a remote live log channel over WebSocket.
type WSSource struct {
	URL    string // e.g. ws://executor:8081/ws
	Dialer *websocket.Dialer
}

var _ ports.LiveSource = (*WSSource)(nil)

func NewWSSource(rawURL string) *WSSource {
	return &WSSource{URL: rawURL, Dialer: websocket.DefaultDialer}
}

type wsSubscription struct {
	conn *websocket.Conn
	ch   chan flowdeck.LiveEvent
	once sync.Once
}

func (s *wsSubscription) Events() <-chan flowdeck.LiveEvent { return s.ch }

func (s *wsSubscription) Close() {
	s.once.Do(func() {
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		s.conn.Close()
	})
}

// Subscribe dials the remote channel. Events that belong to other flows are
// dropped. The event channel closes when the connection ends for any reason,
// which the consumer treats as a channel drop unless it closed it itself.
func (s *WSSource) Subscribe(ctx context.Context, flowID string) (ports.Subscription, error) {
	u, err := url.Parse(s.URL)
	if err != nil {
		return nil, fmt.Errorf("parse live channel url: %w", err)
	}
	q := u.Query()
	q.Set("flowId", flowID)
	u.RawQuery = q.Encode()

	dialer := s.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", flowdeck.ErrChannelDrop, u.Redacted(), err)
	}

	sub := &wsSubscription{conn: conn, ch: make(chan flowdeck.LiveEvent, defaultBuffer)}
	context.AfterFunc(ctx, sub.Close)
	go func() {
		defer close(sub.ch)
		for {
			var ev flowdeck.LiveEvent
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			if ev.FlowID != "" && ev.FlowID != flowID {
				continue
			}
			ev.FlowID = flowID
			select {
			case sub.ch <- ev:
			default:
			}
		}
	}()
	return sub, nil
}
