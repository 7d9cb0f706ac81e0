package call

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownPeer     = errors.New("unknown peer")
	ErrScreenShareBusy = errors.New("another participant is already sharing their screen")
	ErrSessionClosed   = errors.New("session closed")
	ErrTransportLost   = errors.New("signaling transport lost")
	ErrNoTrack         = errors.New("no local track")
	ErrNoCapturer      = errors.New("no media capturer configured")
	ErrEmptyMessage    = errors.New("empty chat message")
	ErrChatClosed      = errors.New("chat channel closed")
)

// Error describes a failed call operation, optionally scoped to one peer.
type Error struct {
	Op      string
	Peer    string
	Err     error
	Details string
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Peer != "" {
		msg = fmt.Sprintf("%s (peer %s)", msg, e.Peer)
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", msg, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}

func wrapError(op string, err error, details string) *Error {
	return &Error{Op: op, Err: err, Details: details}
}
