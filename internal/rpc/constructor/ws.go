package constructor

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/josedcape/codestorm-preeliminar/internal/build"
	"github.com/josedcape/codestorm-preeliminar/internal/rpc"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The daemon binds to localhost by default; the CLI and the web UI share it.
	CheckOrigin: func(*http.Request) bool { return true },
}

// watch pushes a job snapshot after every change until the job ends or the
// client goes away.
func (h *Handler) watch(w http.ResponseWriter, r *http.Request) {
	if !h.websocket {
		rpc.WriteError(w, http.StatusNotFound, msgWebsocketsOff)
		return
	}
	id := r.PathValue("id")
	updates, unsubscribe := h.builder.Subscribe(id)
	defer unsubscribe()

	job, err := h.builder.Get(r.Context(), id)
	if errors.Is(err, build.ErrNotFound) {
		rpc.WriteError(w, http.StatusNotFound, msgNotFound)
		return
	}
	if err != nil {
		h.internal(w, "get project", err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.metrics.RecordTransportError("websocket", "upgrade")
		h.logger.Debug("websocket upgrade failed", zap.String("project_id", id), zap.Error(err))
		return
	}
	defer conn.Close()
	h.metrics.IncActiveSessions("websocket")
	defer h.metrics.DecActiveSessions("websocket")

	closed := make(chan struct{})
	go readPump(conn, closed)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		if err := writeJob(conn, job); err != nil {
			h.metrics.RecordTransportError("websocket", "send")
			return
		}
		if job.Terminal() {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, job.Status))
			return
		}

	wait:
		for {
			select {
			case next, ok := <-updates:
				if !ok {
					return
				}
				job = next
				break wait
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-closed:
				return
			case <-r.Context().Done():
				return
			}
		}
	}
}

func writeJob(conn *websocket.Conn, job build.Job) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(job)
}

// readPump drains client frames so pongs and close frames are processed.
func readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
