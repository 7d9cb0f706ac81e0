package media

import "github.com/pion/webrtc/v4"

// Kind is the media kind of a track as carried on the wire ("audio" or "video").
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	return k == KindAudio || k == KindVideo
}

// KindOf maps a pion codec type to a wire kind. Unknown codec types map to "".
func KindOf(t webrtc.RTPCodecType) Kind {
	switch t {
	case webrtc.RTPCodecTypeAudio:
		return KindAudio
	case webrtc.RTPCodecTypeVideo:
		return KindVideo
	}
	return ""
}

// Role is the logical role of a remote stream ("media" for camera and
// microphone, "screen" for screen capture).
type Role string

const (
	RoleMedia  Role = "media"
	RoleScreen Role = "screen"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleMedia || r == RoleScreen
}
