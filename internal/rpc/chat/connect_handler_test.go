package chat

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bufbuild/connect-go"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/josedcape/codestorm-preeliminar/internal/rpc"
	"github.com/josedcape/codestorm-preeliminar/internal/rpc/connectjson"
)

func newConnectClient(t *testing.T, runner Runner) *connect.Client[rpc.ChatStreamRequest, rpc.ChatEvent] {
	t.Helper()
	path, handler := NewConnectHandler(runner, nil)
	mux := http.NewServeMux()
	mux.Handle(path, handler)

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("cannot open listener in sandbox: %v", err)
	}

	server := httptest.NewUnstartedServer(h2c.NewHandler(mux, &http2.Server{}))
	server.Listener = ln
	server.Start()
	t.Cleanup(server.Close)

	return connect.NewClient[rpc.ChatStreamRequest, rpc.ChatEvent](
		&http.Client{
			Transport: &http2.Transport{
				AllowHTTP: true,
				DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, network, addr)
				},
			},
		},
		server.URL+path,
		connect.WithCodec(connectjson.Codec{}),
	)
}

func TestConnectHandlerStreamsEvents(t *testing.T) {
	client := newConnectClient(t, NewAgentRunner(newTestAgent(t, reply("listo")), nil))

	stream := client.CallBidiStream(context.Background())
	require.NoError(t, stream.Send(&rpc.ChatStreamRequest{
		Chat: &rpc.ChatRequest{SessionID: "conn-1", Message: "diseña la arquitectura del sistema"},
	}))
	require.NoError(t, stream.CloseRequest())

	var messageSeen, doneSeen bool
	for {
		evt, err := stream.Receive()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		require.Equal(t, "conn-1", evt.SessionID)
		switch evt.Type {
		case rpc.EventMessage:
			messageSeen = true
			require.Equal(t, "listo", evt.Message)
		case rpc.EventDone:
			doneSeen = true
		}
	}
	require.NoError(t, stream.CloseResponse())
	require.True(t, messageSeen)
	require.True(t, doneSeen)
}

func TestConnectHandlerRequiresChatPayload(t *testing.T) {
	client := newConnectClient(t, NewAgentRunner(newTestAgent(t, reply("x")), nil))

	stream := client.CallBidiStream(context.Background())
	require.NoError(t, stream.Send(&rpc.ChatStreamRequest{Cancel: true}))
	require.NoError(t, stream.CloseRequest())

	_, err := stream.Receive()
	require.Error(t, err)
	require.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
	_ = stream.CloseResponse()
}
