package signaling

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/ksuid"
)

// MessageType tags every envelope on the signaling channel.
type MessageType string

// Message type constants.
const (
	MessageTypeInit         MessageType = "init"
	MessageTypeClientJoined MessageType = "client_joined"
	MessageTypeClientLeft   MessageType = "client_left"

	MessageTypeOffer        MessageType = "offer"
	MessageTypeAnswer       MessageType = "answer"
	MessageTypeICECandidate MessageType = "iceCandidate"

	// Offer turns serialize renegotiation between two clients that cannot
	// roll back a local offer. Clients that do not know them ignore them.
	MessageTypeOfferRequest MessageType = "offerRequest"
	MessageTypeOfferGrant   MessageType = "offerGrant"

	MessageTypeStreamMetadata     MessageType = "streamMetadata"
	MessageTypeTrackMuted         MessageType = "trackMuted"
	MessageTypeTrackUnmuted       MessageType = "trackUnmuted"
	MessageTypeScreenShareStarted MessageType = "screenShareStarted"
	MessageTypeScreenShareStopped MessageType = "screenShareStopped"

	MessageTypeError MessageType = "error"
)

var (
	ErrUnknownType    = errors.New("unknown message type")
	ErrInvalidPayload = errors.New("invalid payload")
	ErrClosed         = errors.New("signaling channel closed")
)

// Message is the envelope for all signaling traffic, one per text frame.
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// IsPeerTargeted reports whether messages of type t are addressed to a single
// peer through payload.clientId.
func (t MessageType) IsPeerTargeted() bool {
	switch t {
	case MessageTypeOffer, MessageTypeAnswer, MessageTypeICECandidate,
		MessageTypeOfferRequest, MessageTypeOfferGrant:
		return true
	}
	return false
}

// IsBroadcast reports whether messages of type t fan out to the whole room
// with the sender stamped by the relay.
func (t MessageType) IsBroadcast() bool {
	switch t {
	case MessageTypeStreamMetadata, MessageTypeTrackMuted, MessageTypeTrackUnmuted,
		MessageTypeScreenShareStarted, MessageTypeScreenShareStopped:
		return true
	}
	return false
}

// NewMessageID returns a sortable unique token for negotiation messages.
func NewMessageID() string {
	return ksuid.New().String()
}

// Encode builds an envelope around payload.
func Encode(t MessageType, payload any) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", t, err)
	}
	return &Message{Type: t, Payload: data}, nil
}

func mustEncode(t MessageType, payload any) *Message {
	msg, err := Encode(t, payload)
	if err != nil {
		panic(err)
	}
	return msg
}

// Decode parses the payload according to the message type. The returned value
// is one of the payload structs in this package. Unknown types yield
// ErrUnknownType; malformed or out-of-range payloads yield ErrInvalidPayload.
func (m *Message) Decode() (any, error) {
	switch m.Type {
	case MessageTypeInit:
		var p InitPayload
		if err := m.unmarshal(&p); err != nil {
			return nil, err
		}
		for _, c := range p.Clients {
			if c.ID == "" {
				return nil, m.invalid("client without id")
			}
		}
		return p, nil

	case MessageTypeClientJoined:
		var p ClientJoinedPayload
		if err := m.unmarshal(&p); err != nil {
			return nil, err
		}
		if p.ClientID == "" {
			return nil, m.invalid("missing clientId")
		}
		return p, nil

	case MessageTypeClientLeft:
		var p ClientLeftPayload
		if err := m.unmarshal(&p); err != nil {
			return nil, err
		}
		if p.ClientID == "" {
			return nil, m.invalid("missing clientId")
		}
		return p, nil

	case MessageTypeOffer, MessageTypeAnswer:
		var p DescriptionPayload
		if err := m.unmarshal(&p); err != nil {
			return nil, err
		}
		if p.ClientID == "" {
			return nil, m.invalid("missing clientId")
		}
		if string(m.Type) != p.Value.Type {
			return nil, m.invalid(fmt.Sprintf("description type %q", p.Value.Type))
		}
		return p, nil

	case MessageTypeICECandidate:
		var p CandidatePayload
		if err := m.unmarshal(&p); err != nil {
			return nil, err
		}
		if p.ClientID == "" {
			return nil, m.invalid("missing clientId")
		}
		return p, nil

	case MessageTypeOfferRequest, MessageTypeOfferGrant:
		var p OfferTurnPayload
		if err := m.unmarshal(&p); err != nil {
			return nil, err
		}
		if p.ClientID == "" {
			return nil, m.invalid("missing clientId")
		}
		return p, nil

	case MessageTypeStreamMetadata:
		var p StreamMetadataPayload
		if err := m.unmarshal(&p); err != nil {
			return nil, err
		}
		if p.StreamID == "" || !p.StreamType.Valid() {
			return nil, m.invalid(fmt.Sprintf("stream %q type %q", p.StreamID, p.StreamType))
		}
		return p, nil

	case MessageTypeTrackMuted, MessageTypeTrackUnmuted:
		var p TrackStatePayload
		if err := m.unmarshal(&p); err != nil {
			return nil, err
		}
		if !p.TrackKind.Valid() {
			return nil, m.invalid(fmt.Sprintf("track kind %q", p.TrackKind))
		}
		return p, nil

	case MessageTypeScreenShareStarted, MessageTypeScreenShareStopped:
		var p ScreenSharePayload
		if err := m.unmarshal(&p); err != nil {
			return nil, err
		}
		return p, nil

	case MessageTypeError:
		var p ErrorPayload
		if err := m.unmarshal(&p); err != nil {
			return nil, err
		}
		return p, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
}

func (m *Message) unmarshal(v any) error {
	if len(m.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidPayload, m.Type, err)
	}
	return nil
}

func (m *Message) invalid(detail string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidPayload, m.Type, detail)
}
