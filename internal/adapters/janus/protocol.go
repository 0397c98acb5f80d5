package janus

import (
	"fmt"

	"github.com/mivora/roomcast/internal/core"
)

const videoroomPlugin = "janus.plugin.videoroom"

// wireMsg is the websocket envelope shared by requests and replies.
type wireMsg struct {
	Janus       string          `json:"janus"`
	Transaction string          `json:"transaction,omitempty"`
	SessionID   int64           `json:"session_id,omitempty"`
	HandleID    int64           `json:"handle_id,omitempty"`
	Sender      int64           `json:"sender,omitempty"`
	Plugin      string          `json:"plugin,omitempty"`
	Body        map[string]any  `json:"body,omitempty"`
	Jsep        *core.JSEP      `json:"jsep,omitempty"`
	Data        *wireData       `json:"data,omitempty"`
	Plugindata  *wirePluginData `json:"plugindata,omitempty"`
	Error       *wireError      `json:"error,omitempty"`
}

type wireData struct {
	ID int64 `json:"id"`
}

type wirePluginData struct {
	Plugin string         `json:"plugin"`
	Data   map[string]any `json:"data"`
}

type wireError struct {
	Code   int    `json:"code"`
	Reason string `json:"reason"`
}

func (e *wireError) Err() error {
	return fmt.Errorf("janus error %d: %s", e.Code, e.Reason)
}
