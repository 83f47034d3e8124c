// Package ipc carries write commands from short-lived processes to a
// running daemon over the account's unix socket. The framing is one JSON
// object per line in each direction; a connection may serve any number of
// request/response pairs.
package ipc

import (
	"context"
	"fmt"
)

// Request actions.
const (
	ActionPing     = "ping"
	ActionSendText = "send_text"
	ActionMarkRead = "mark_read"
)

// Request is one command line sent to the daemon.
type Request struct {
	Action     string  `json:"action"`
	To         int64   `json:"to,omitempty"`
	Message    string  `json:"message,omitempty"`
	Chat       int64   `json:"chat,omitempty"`
	MessageIDs []int64 `json:"message_ids,omitempty"`
}

// Validate checks the action-specific required fields.
func (r *Request) Validate() error {
	switch r.Action {
	case ActionPing:
		return nil
	case ActionSendText:
		if r.To == 0 {
			return fmt.Errorf("send_text: missing to")
		}
		if r.Message == "" {
			return fmt.Errorf("send_text: missing message")
		}
		return nil
	case ActionMarkRead:
		if r.Chat == 0 {
			return fmt.Errorf("mark_read: missing chat")
		}
		if len(r.MessageIDs) == 0 {
			return fmt.Errorf("mark_read: missing message_ids")
		}
		return nil
	case "":
		return fmt.Errorf("missing action")
	default:
		return fmt.Errorf("unknown action %q", r.Action)
	}
}

// Response is one result line sent back to the client.
type Response struct {
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	MessageID int64  `json:"message_id,omitempty"`
}

// Handler executes requests inside the daemon's single writer context.
type Handler interface {
	Ping(ctx context.Context) error
	SendText(ctx context.Context, chatID int64, text string) (int64, error)
	MarkRead(ctx context.Context, chatID int64, msgIDs []int64) error
}
