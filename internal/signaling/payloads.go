package signaling

import (
	"github.com/pion/webrtc/v4"
	"github.com/serozhenka/shary/internal/media"
)

// ClientInfo describes one room member.
type ClientInfo struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	ClientType string `json:"clientType,omitempty"`
}

// InitPayload lists every member already present when we joined.
type InitPayload struct {
	Clients []ClientInfo `json:"clients"`
}

type ClientJoinedPayload struct {
	ClientID   string `json:"clientId"`
	Username   string `json:"username"`
	ClientType string `json:"clientType,omitempty"`
}

type ClientLeftPayload struct {
	ClientID string `json:"clientId"`
}

// SessionDescription is the browser-shaped {type, sdp} pair.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// NewSessionDescription converts a pion description to its wire shape.
func NewSessionDescription(d webrtc.SessionDescription) SessionDescription {
	return SessionDescription{Type: d.Type.String(), SDP: d.SDP}
}

// Pion converts the wire description back to pion's type.
func (d SessionDescription) Pion() webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.NewSDPType(d.Type), SDP: d.SDP}
}

// DescriptionPayload carries an offer or an answer. ClientID names the target
// peer on the way out and the source peer on the way in.
type DescriptionPayload struct {
	MessageID string             `json:"messageId"`
	Value     SessionDescription `json:"value"`
	ClientID  string             `json:"clientId"`
}

// CandidatePayload carries one trickled ICE candidate.
type CandidatePayload struct {
	MessageID string                  `json:"messageId"`
	Value     webrtc.ICECandidateInit `json:"value"`
	ClientID  string                  `json:"clientId"`
}

// OfferTurnPayload is the body of offerRequest and offerGrant.
type OfferTurnPayload struct {
	MessageID string `json:"messageId"`
	ClientID  string `json:"clientId"`
}

// StreamMetadataPayload maps a transport stream id to its logical role.
type StreamMetadataPayload struct {
	ClientID   string     `json:"clientId,omitempty"`
	StreamID   string     `json:"streamId"`
	StreamType media.Role `json:"streamType"`
}

// TrackStatePayload is the body of trackMuted and trackUnmuted.
type TrackStatePayload struct {
	ClientID  string     `json:"clientId,omitempty"`
	TrackKind media.Kind `json:"trackKind"`
}

// ScreenSharePayload is the body of screenShareStarted and screenShareStopped.
type ScreenSharePayload struct {
	ClientID string `json:"clientId,omitempty"`
}

// ErrorPayload is sent by the relay when it refuses a message.
type ErrorPayload struct {
	Error string `json:"error"`
}

// Offer builds an offer addressed to peer.
func Offer(peer string, d webrtc.SessionDescription) *Message {
	return mustEncode(MessageTypeOffer, DescriptionPayload{
		MessageID: NewMessageID(),
		Value:     NewSessionDescription(d),
		ClientID:  peer,
	})
}

// Answer builds an answer addressed to peer.
func Answer(peer string, d webrtc.SessionDescription) *Message {
	return mustEncode(MessageTypeAnswer, DescriptionPayload{
		MessageID: NewMessageID(),
		Value:     NewSessionDescription(d),
		ClientID:  peer,
	})
}

// Candidate builds an iceCandidate message addressed to peer.
func Candidate(peer string, c webrtc.ICECandidateInit) *Message {
	return mustEncode(MessageTypeICECandidate, CandidatePayload{
		MessageID: NewMessageID(),
		Value:     c,
		ClientID:  peer,
	})
}

// OfferRequest asks peer for permission to send the next offer.
func OfferRequest(peer string) *Message {
	return mustEncode(MessageTypeOfferRequest, OfferTurnPayload{MessageID: NewMessageID(), ClientID: peer})
}

// OfferGrant lets peer send the next offer.
func OfferGrant(peer string) *Message {
	return mustEncode(MessageTypeOfferGrant, OfferTurnPayload{MessageID: NewMessageID(), ClientID: peer})
}

func StreamMetadata(streamID string, role media.Role) *Message {
	return mustEncode(MessageTypeStreamMetadata, StreamMetadataPayload{StreamID: streamID, StreamType: role})
}

func TrackMuted(kind media.Kind) *Message {
	return mustEncode(MessageTypeTrackMuted, TrackStatePayload{TrackKind: kind})
}

func TrackUnmuted(kind media.Kind) *Message {
	return mustEncode(MessageTypeTrackUnmuted, TrackStatePayload{TrackKind: kind})
}

func ScreenShareStarted() *Message {
	return mustEncode(MessageTypeScreenShareStarted, ScreenSharePayload{})
}

func ScreenShareStopped() *Message {
	return mustEncode(MessageTypeScreenShareStopped, ScreenSharePayload{})
}
