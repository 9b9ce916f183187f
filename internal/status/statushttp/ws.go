package statushttp

import (
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sebastienamafou-glitch/Agri-Lien-sub000/internal/status"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     localOrigin,
}

// localOrigin admits same-host clients only. The listener is bound to
// loopback; this keeps browser pages served from elsewhere out too.
func localOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return true
	}
	return false
}

// wsHandler streams the current snapshot and then every subsequent change
// until the client goes away.
func wsHandler(bus *status.Bus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("status ws upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		snapshots := make(chan status.Snapshot, 16)
		unsubscribe := bus.Subscribe(func(s status.Snapshot) {
			offerLatest(snapshots, s)
		})
		defer unsubscribe()

		// Reader exists to observe the close handshake.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		if err := writeSnapshot(conn, bus.Snapshot()); err != nil {
			return
		}
		for {
			select {
			case snap := <-snapshots:
				if err := writeSnapshot(conn, snap); err != nil {
					return
				}
			case <-done:
				return
			case <-r.Context().Done():
				return
			}
		}
	}
}

// offerLatest enqueues a snapshot, evicting the oldest buffered one if the
// client is slow. A stalled reader still sees the latest state on resume.
func offerLatest(ch chan status.Snapshot, s status.Snapshot) {
	for {
		select {
		case ch <- s:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}

func writeSnapshot(conn *websocket.Conn, snap status.Snapshot) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(snap)
}
