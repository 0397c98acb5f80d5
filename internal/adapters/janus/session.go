package janus

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mivora/roomcast/internal/core"
)

// Janus expires idle sessions after 60s; ping well inside that window.
const keepaliveInterval = 25 * time.Second

// Session is one server-side signaling session. Destroyed with server
// notification through Destroy; the keepalive pump stops with it.
type Session struct {
	client *Client
	id     int64

	mu        sync.Mutex
	destroyed bool
	stop      chan struct{}
	stopOnce  sync.Once
}

func (s *Session) ID() int64 { return s.id }

func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.destroyed
}

func (s *Session) keepalive() {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-s.client.done:
			return
		case <-ticker.C:
			s.client.fire(wireMsg{Janus: "keepalive", SessionID: s.id})
		}
	}
}

func (s *Session) Attach(ctx context.Context, role core.Role) (core.PluginHandle, error) {
	resp, err := s.client.request(ctx, wireMsg{
		Janus:     "attach",
		Plugin:    videoroomPlugin,
		SessionID: s.id,
	}, false)
	if err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, errors.New("attach: no handle id in reply")
	}
	h := newHandle(s, resp.Data.ID, role)
	s.client.register(h)
	log.Info().Str("module", "adapters.janus").Int64("session", s.id).Int64("handle", h.id).Str("role", string(role)).Msg("attached")
	return h, nil
}

func (s *Session) Destroy(ctx context.Context, opts core.DestroyOptions) error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return nil
	}
	s.destroyed = true
	s.mu.Unlock()
	s.stopOnce.Do(func() { close(s.stop) })

	if !opts.Notify {
		return nil
	}
	_, err := s.client.request(ctx, wireMsg{Janus: "destroy", SessionID: s.id}, false)
	if err != nil {
		return err
	}
	log.Info().Str("module", "adapters.janus").Int64("session", s.id).Msg("session destroyed")
	return nil
}
