package core

import "errors"

var (
	ErrInitialization      = errors.New("signaling client initialization failed")
	ErrAlreadyInitialized  = errors.New("already initialized")
	ErrNotInitialized      = errors.New("not initialized")
	ErrAttach              = errors.New("plugin attach rejected")
	ErrAttachDetach        = errors.New("plugin detach rejected")
	ErrNoParticipants      = errors.New("No participants found in the room")
	ErrNegotiation         = errors.New("negotiation failed")
	ErrRegistry            = errors.New("mountpoint registry request failed")
	ErrOperationInProgress = errors.New("operation already in progress")
)
