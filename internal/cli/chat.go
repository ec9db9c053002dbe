package cli

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/bufbuild/connect-go"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/net/http2"

	"github.com/josedcape/codestorm-preeliminar/internal/rpc"
	chatrpc "github.com/josedcape/codestorm-preeliminar/internal/rpc/chat"
	"github.com/josedcape/codestorm-preeliminar/internal/rpc/connectjson"
)

// NewChatCmd sends a message through the agent router and streams the reply.
func NewChatCmd(opts *Options) *cobra.Command {
	var sessionID string
	var agentID string
	var modelOverride string
	var collaborative bool

	cmd := &cobra.Command{
		Use:   "chat \"<message>\"",
		Short: "Send a message to the daemon and stream the agent's reply",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message := args[0]
			if strings.TrimSpace(message) == "" {
				return fmt.Errorf("message cannot be empty")
			}
			baseURL, transport, err := daemonTarget(opts)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			if sessionID == "" {
				sessionID = "cli-" + uuid.NewString()
			}
			req := rpc.ChatRequest{
				SessionID:     sessionID,
				CorrelationID: sessionID + "-" + uuid.NewString(),
				Message:       message,
				AgentID:       agentID,
				Model:         modelOverride,
				Collaborative: collaborative,
			}

			r := &chatRenderer{out: cmd.OutOrStdout()}
			switch strings.ToLower(strings.TrimSpace(transport)) {
			case "ndjson":
				return chatNDJSON(ctx, baseURL+"/api/chat/stream", req, r)
			default:
				return chatConnect(ctx, baseURL+chatrpc.ConnectChatProcedure, req, r)
			}
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session id to continue (default: a new session)")
	cmd.Flags().StringVar(&agentID, "agent", "", "Force an agent instead of routing (developer, architect, advanced)")
	cmd.Flags().StringVar(&modelOverride, "model", "", "Override the model for this message")
	cmd.Flags().BoolVar(&collaborative, "collaborative", false, "Ask secondary agents for their perspective")
	return cmd
}

func chatNDJSON(ctx context.Context, url string, reqBody rpc.ChatRequest, r *chatRenderer) error {
	data, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var body rpc.ErrorBody
		if json.NewDecoder(resp.Body).Decode(&body) == nil && body.Error != "" {
			return fmt.Errorf("daemon returned status %d: %s", resp.StatusCode, body.Error)
		}
		return fmt.Errorf("daemon returned status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var evt rpc.ChatEvent
		if err := json.Unmarshal(scanner.Bytes(), &evt); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		if err := r.render(evt); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func chatConnect(ctx context.Context, url string, reqBody rpc.ChatRequest, r *chatRenderer) error {
	client := connect.NewClient[rpc.ChatStreamRequest, rpc.ChatEvent](buildH2CClient(), url, connect.WithCodec(connectjson.Codec{}))
	stream := client.CallBidiStream(ctx)

	if err := stream.Send(&rpc.ChatStreamRequest{Chat: &reqBody}); err != nil {
		return err
	}

	// propagate cancellation to the daemon.
	stop := context.AfterFunc(ctx, func() {
		_ = stream.Send(&rpc.ChatStreamRequest{Cancel: true, SessionID: reqBody.SessionID, CorrelationID: reqBody.CorrelationID})
		_ = stream.CloseRequest()
	})
	defer stop()

	for {
		evt, err := stream.Receive()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if err := r.render(*evt); err != nil {
			return err
		}
	}
	_ = stream.CloseRequest()
	return stream.CloseResponse()
}

// chatRenderer prints chat events. Streamed tokens already carry the reply,
// so the final message event only ends the line.
type chatRenderer struct {
	out      io.Writer
	streamed bool
}

func (c *chatRenderer) render(evt rpc.ChatEvent) error {
	switch evt.Type {
	case rpc.EventRoute:
		name := evt.AgentName
		if name == "" {
			name = evt.AgentID
		}
		line := fmt.Sprintf("%s (%d%%)", name, evt.Confidence)
		if evt.Switched {
			line += " ⇄"
		}
		fmt.Fprintln(c.out, agentStyle.Render(line))
		if evt.Perspectives != "" {
			fmt.Fprintln(c.out, mutedStyle.Render(evt.Perspectives))
		}
	case rpc.EventToken:
		c.streamed = true
		fmt.Fprint(c.out, evt.Token)
	case rpc.EventMessage:
		if c.streamed {
			fmt.Fprintln(c.out)
		} else {
			fmt.Fprintln(c.out, evt.Message)
		}
	case rpc.EventCommand:
		style := successStyle
		if evt.ExitCode != 0 {
			style = errorStyle
		}
		fmt.Fprintln(c.out, style.Render(fmt.Sprintf("[command exit=%d]", evt.ExitCode)))
		fmt.Fprintln(c.out, evt.Message)
	case rpc.EventDone:
		if evt.TaskCompleted {
			fmt.Fprintln(c.out, successStyle.Render("[task completed]"))
		}
	case rpc.EventError:
		return fmt.Errorf("daemon error: %s", evt.Error)
	}
	return nil
}

func buildH2CClient() *http.Client {
	return &http.Client{
		Transport: &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, network, addr)
			},
		},
	}
}
