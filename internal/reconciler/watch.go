package reconciler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/josedcape/codestorm-preeliminar/internal/build"
)

// WatchSource receives job snapshots pushed over the daemon's websocket
// instead of polling for them.
type WatchSource struct {
	// URL is the websocket endpoint for one project, see WatchURL.
	URL    string
	Dialer *websocket.Dialer
}

// WatchURL returns the websocket endpoint for projectID on the daemon at baseURL.
func WatchURL(baseURL, projectID string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path += "/api/constructor/ws/" + url.PathEscape(projectID)
	return u.String(), nil
}

// Run feeds every pushed snapshot to r.Apply until the job is terminal, the
// server closes the connection or ctx ends. The caller resets r first.
func (w WatchSource) Run(ctx context.Context, r *Reconciler) error {
	dialer := w.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, w.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", w.URL, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		var snap Snapshot
		if err := conn.ReadJSON(&snap); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code == websocket.CloseNormalClosure {
				return nil
			}
			return fmt.Errorf("read snapshot: %w", err)
		}
		r.Apply(snap)
		switch snap.StatusValue() {
		case build.StatusCompleted, build.StatusError:
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil
		}
	}
}
