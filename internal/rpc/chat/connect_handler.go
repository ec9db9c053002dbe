package chat

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/bufbuild/connect-go"

	"github.com/josedcape/codestorm-preeliminar/internal/agent"
	"github.com/josedcape/codestorm-preeliminar/internal/observability"
	"github.com/josedcape/codestorm-preeliminar/internal/rpc"
	"github.com/josedcape/codestorm-preeliminar/internal/rpc/connectjson"
)

const ConnectChatProcedure = "/codestorm.chat.v1.ChatService/Chat"

// NewConnectHandler builds a Connect bidi stream handler for chat turns.
func NewConnectHandler(runner Runner, metrics *observability.Metrics) (string, http.Handler) {
	h := &connectChatHandler{runner: runner, metrics: metrics}
	return ConnectChatProcedure, connect.NewBidiStreamHandler(ConnectChatProcedure, h.handle, connect.WithCodec(connectjson.Codec{}))
}

type connectChatHandler struct {
	runner  Runner
	metrics *observability.Metrics
}

func (h *connectChatHandler) handle(ctx context.Context, stream *connect.BidiStream[rpc.ChatStreamRequest, rpc.ChatEvent]) error {
	h.metrics.IncActiveSessions("connect")
	defer h.metrics.DecActiveSessions("connect")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	first, err := stream.Receive()
	if err != nil {
		h.metrics.RecordTransportError("connect", "receive_first")
		return err
	}
	if first == nil || first.Chat == nil {
		h.metrics.RecordTransportError("connect", "missing_chat")
		return connect.NewError(connect.CodeInvalidArgument, errors.New("first message must include chat payload"))
	}

	req := *first.Chat
	fillIDs(&req)

	// A closed request side is not a cancel; the client may still read.
	go func() {
		for {
			msg, recvErr := stream.Receive()
			if errors.Is(recvErr, io.EOF) {
				return
			}
			if recvErr != nil {
				cancel()
				return
			}
			if msg != nil && msg.Cancel {
				cancel()
				return
			}
		}
	}()

	events, runErr := h.runner.Run(ctx, req)
	if runErr != nil {
		h.metrics.RecordTransportError("connect", "runner_error")
		if errors.Is(runErr, agent.ErrEmptyMessage) {
			return connect.NewError(connect.CodeInvalidArgument, runErr)
		}
		return connect.NewError(connect.CodeInternal, runErr)
	}

	for ev := range events {
		if err := stream.Send(&ev); err != nil {
			h.metrics.RecordTransportError("connect", "send")
			cancel()
			for range events {
			}
			return err
		}
	}
	return nil
}
