// internal/gateway/gateway.go

// Package gateway maintains the websocket session with the chat
// platform: it reads inbound message events, hands them to the command
// dispatcher, and writes replies and role changes back. One connection
// serves both directions, so writes are serialized.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	stdsync "sync"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/giziti/beltbot/internal/commands"
)

// Handler consumes one chat event and returns the reply text, empty
// for no reply.
type Handler interface {
	Dispatch(ctx context.Context, ev commands.Event) string
}

// inboundFrame is one event from the chat gateway.
type inboundFrame struct {
	Type      string `json:"type"`
	Identity  string `json:"identity"`
	Channel   string `json:"channel"`
	Content   string `json:"content"`
	Moderator bool   `json:"moderator"`
}

// outboundFrame is anything the bot sends: chat replies and role
// mutations.
type outboundFrame struct {
	Type     string   `json:"type"`
	Channel  string   `json:"channel,omitempty"`
	Content  string   `json:"content,omitempty"`
	Identity string   `json:"identity,omitempty"`
	Role     string   `json:"role,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

// Client is a connected gateway session.
type Client struct {
	conn    *websocket.Conn
	logger  *logrus.Logger
	writeMu stdsync.Mutex
}

// Dial connects and authenticates to the chat gateway.
func Dial(ctx context.Context, url, token string, logger *logrus.Logger) (*Client, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bot "+token)
	}
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: header,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to dial gateway %s: %w", url, err)
	}
	logger.Infof("Connected to chat gateway at %s", url)
	return &Client{conn: conn, logger: logger}, nil
}

// Close ends the session.
func (c *Client) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "shutting down")
}

// Listen reads events until the context ends or the connection drops.
// Each command runs to completion before the next event is read; the
// core holds no cross-request state, so that is the only ordering the
// bot needs. Reconnection is left to the process supervisor.
func (c *Client) Listen(ctx context.Context, handler Handler) error {
	for {
		msgType, data, err := c.conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("gateway read error: %w", err)
		}
		if msgType != websocket.MessageText {
			continue
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logger.Warnf("skipping malformed gateway frame: %v", err)
			continue
		}
		if frame.Type != "message" || frame.Identity == "" {
			continue
		}

		reply := handler.Dispatch(ctx, commands.Event{
			Identity:  frame.Identity,
			Channel:   frame.Channel,
			Content:   frame.Content,
			Moderator: frame.Moderator,
		})
		if reply == "" {
			continue
		}
		if err := c.send(ctx, outboundFrame{
			Type:    "reply",
			Channel: frame.Channel,
			Content: reply,
		}); err != nil {
			return err
		}
	}
}

func (c *Client) send(ctx context.Context, frame outboundFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to marshal gateway frame: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("gateway write error: %w", err)
	}
	return nil
}
