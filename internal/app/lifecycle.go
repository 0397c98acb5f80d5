package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mivora/roomcast/internal/core"
)

// DefaultServer is used when Init is given an empty address.
const DefaultServer = "wss://janus1.januscaler.com/janus/ws"

// DialFunc constructs the transport-level signaling client.
type DialFunc func(ctx context.Context, server string) (core.SignalClient, error)

// Lifecycle owns the signaling client, session and plugin handle for exactly
// one local role at a time. It enforces the teardown ordering: detach first,
// then destroy, then reset, with reset guaranteed even under partial failure.
type Lifecycle struct {
	mu      sync.Mutex
	dial    DialFunc
	server  string
	client  core.SignalClient
	session core.Session
	handle  core.PluginHandle
}

func NewLifecycle(dial DialFunc) *Lifecycle {
	return &Lifecycle{dial: dial}
}

// Init establishes the transport-level client. Calling it twice without a
// full teardown is rejected.
func (l *Lifecycle) Init(ctx context.Context, server string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.client != nil {
		return core.ErrAlreadyInitialized
	}
	if server == "" {
		server = DefaultServer
	}
	client, err := l.dial(ctx, server)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrInitialization, err)
	}
	l.server = server
	l.client = client
	log.Info().Str("module", "app.lifecycle").Str("server", server).Msg("signaling client ready")
	return nil
}

func (l *Lifecycle) Initialized() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.client != nil
}

func (l *Lifecycle) Session() core.Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session
}

func (l *Lifecycle) Handle() core.PluginHandle {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.handle
}

// Attach creates exactly one plugin handle for the given role, creating the
// session first if none exists yet.
func (l *Lifecycle) Attach(ctx context.Context, role core.Role) (core.PluginHandle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.client == nil {
		return nil, core.ErrNotInitialized
	}
	if l.handle != nil {
		return nil, fmt.Errorf("%w: %s handle already attached", core.ErrAttach, l.handle.Role())
	}
	if l.session == nil {
		s, err := l.client.CreateSession(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: create session: %v", core.ErrAttach, err)
		}
		l.session = s
		log.Info().Str("module", "app.lifecycle").Int64("session", s.ID()).Msg("session created")
	}
	h, err := l.session.Attach(ctx, role)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrAttach, err)
	}
	l.handle = h
	log.Info().Str("module", "app.lifecycle").Str("role", string(role)).Int64("handle", h.ID()).Msg("plugin attached")
	return h, nil
}

// Teardown detaches the handle (best-effort), optionally destroys the session
// with server notification, and always resets in-memory state. A failure in
// one step never skips the next.
func (l *Lifecycle) Teardown(ctx context.Context, destroySession bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	defer l.resetLocked(destroySession)

	var firstErr error
	if l.handle != nil {
		if err := l.handle.Detach(ctx); err != nil {
			firstErr = fmt.Errorf("%w: %v", core.ErrAttachDetach, err)
			log.Warn().Err(err).Str("module", "app.lifecycle").Msg("detach failed")
		}
	}
	if destroySession && l.session != nil {
		if err := l.session.Destroy(ctx, core.DestroyOptions{Notify: true}); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			log.Warn().Err(err).Str("module", "app.lifecycle").Msg("session destroy failed")
		}
	}
	return firstErr
}

func (l *Lifecycle) resetLocked(destroy bool) {
	l.handle = nil
	if !destroy {
		return
	}
	l.session = nil
	if l.client != nil {
		if err := l.client.Close(); err != nil {
			log.Warn().Err(err).Str("module", "app.lifecycle").Msg("client close failed")
		}
	}
	l.client = nil
}
