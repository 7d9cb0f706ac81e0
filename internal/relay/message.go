package relay

import (
	"errors"
	"fmt"

	"github.com/serozhenka/shary/internal/signaling"
)

var (
	// ErrNotRelayed marks messages clients may not send, such as init.
	ErrNotRelayed = errors.New("message type is not relayed")
	ErrNoTarget   = errors.New("message has no target peer")
)

// inbound is a message read from a client, tagged with its sender.
type inbound struct {
	msg    *signaling.Message
	client *Client
}

// route rewrites msg as received from source. Per-peer messages come back
// with their target and clientId swapped to the source; broadcasts come back
// with an empty target and the source stamped.
func route(msg *signaling.Message, source string) (target string, out *signaling.Message, err error) {
	if !msg.Type.IsPeerTargeted() && !msg.Type.IsBroadcast() {
		if _, err := msg.Decode(); errors.Is(err, signaling.ErrUnknownType) {
			return "", nil, err
		}
		return "", nil, fmt.Errorf("%w: %s", ErrNotRelayed, msg.Type)
	}

	v, err := msg.Decode()
	if err != nil {
		return "", nil, err
	}

	var payload any
	switch p := v.(type) {
	case signaling.DescriptionPayload:
		target, p.ClientID = p.ClientID, source
		payload = p
	case signaling.CandidatePayload:
		target, p.ClientID = p.ClientID, source
		payload = p
	case signaling.OfferTurnPayload:
		target, p.ClientID = p.ClientID, source
		payload = p
	case signaling.StreamMetadataPayload:
		p.ClientID = source
		payload = p
	case signaling.TrackStatePayload:
		p.ClientID = source
		payload = p
	case signaling.ScreenSharePayload:
		p.ClientID = source
		payload = p
	default:
		return "", nil, fmt.Errorf("%w: %s", ErrNotRelayed, msg.Type)
	}
	if msg.Type.IsPeerTargeted() && target == "" {
		return "", nil, ErrNoTarget
	}

	out, err = signaling.Encode(msg.Type, payload)
	if err != nil {
		return "", nil, err
	}
	return target, out, nil
}

func errorMessage(err error) *signaling.Message {
	msg, encErr := signaling.Encode(signaling.MessageTypeError, signaling.ErrorPayload{Error: err.Error()})
	if encErr != nil {
		return &signaling.Message{Type: signaling.MessageTypeError}
	}
	return msg
}
