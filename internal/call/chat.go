package call

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"
	"github.com/serozhenka/shary/internal/rtc"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	chatLabel = "chat"

	// Data channel protocols. Browsers open the channel without a protocol,
	// which is treated as JSON.
	protocolJSON    = "json"
	protocolMsgpack = "msgpack"

	clientTypeCLI = "cli"
)

// ChatMessage is one chat line. Own and From are local annotations and never
// cross the wire.
type ChatMessage struct {
	ID        string `json:"id" msgpack:"id"`
	Text      string `json:"text" msgpack:"text"`
	Username  string `json:"username" msgpack:"username"`
	Timestamp int64  `json:"timestamp" msgpack:"timestamp"`

	From string `json:"-" msgpack:"-"`
	Own  bool   `json:"-" msgpack:"-"`
}

// ChatState is the lifecycle of a peer's chat channel.
type ChatState int

const (
	ChatNone ChatState = iota
	ChatPending
	ChatOpen
	ChatClosed
)

func (s ChatState) String() string {
	switch s {
	case ChatNone:
		return "none"
	case ChatPending:
		return "pending"
	case ChatOpen:
		return "open"
	case ChatClosed:
		return "closed"
	}
	return "unknown"
}

// chatProtocol picks the wire codec for a channel the local side opens.
func chatProtocol(localType, remoteType string) string {
	if localType == clientTypeCLI && remoteType == clientTypeCLI {
		return protocolMsgpack
	}
	return protocolJSON
}

type chatCodec interface {
	Marshal(msg ChatMessage) ([]byte, error)
	Unmarshal(data []byte, msg *ChatMessage) error
}

type jsonCodec struct{}

func (jsonCodec) Marshal(msg ChatMessage) ([]byte, error)       { return json.Marshal(msg) }
func (jsonCodec) Unmarshal(data []byte, msg *ChatMessage) error { return json.Unmarshal(data, msg) }

type msgpackCodec struct{}

func (msgpackCodec) Marshal(msg ChatMessage) ([]byte, error) { return msgpack.Marshal(msg) }
func (msgpackCodec) Unmarshal(data []byte, msg *ChatMessage) error {
	return msgpack.Unmarshal(data, msg)
}

func codecFor(protocol string) chatCodec {
	if protocol == protocolMsgpack {
		return msgpackCodec{}
	}
	return jsonCodec{}
}

// chatChannel holds one peer's chat channel and the messages queued until it
// opens.
type chatChannel struct {
	state  ChatState
	dc     rtc.DataChannel
	codec  chatCodec
	outbox []ChatMessage
}

func (c *chatChannel) bind(dc rtc.DataChannel) {
	c.dc = dc
	c.codec = codecFor(dc.Protocol())
	c.state = ChatPending
	if dc.ReadyState() == webrtc.DataChannelStateOpen {
		c.state = ChatOpen
	}
}

// send writes msg when the channel is open and queues it otherwise. A
// message never overtakes one that is still queued.
func (c *chatChannel) send(msg ChatMessage) error {
	switch c.state {
	case ChatNone, ChatPending:
		c.outbox = append(c.outbox, msg)
		return nil
	case ChatClosed:
		return ErrChatClosed
	}
	if len(c.outbox) > 0 {
		c.outbox = append(c.outbox, msg)
		_, err := c.flush()
		return err
	}
	return c.write(msg)
}

func (c *chatChannel) write(msg ChatMessage) error {
	data, err := c.codec.Marshal(msg)
	if err != nil {
		return err
	}
	return c.dc.Send(data)
}

// flush writes the outbox in order. Whatever could not be written stays
// queued for the next send.
func (c *chatChannel) flush() (int, error) {
	for i, msg := range c.outbox {
		if err := c.write(msg); err != nil {
			c.outbox = c.outbox[i:]
			return i, err
		}
	}
	n := len(c.outbox)
	c.outbox = nil
	return n, nil
}

// open marks the channel open and flushes the outbox. It returns the number
// of queued messages delivered.
func (c *chatChannel) open() (int, error) {
	if c.state == ChatClosed {
		return 0, ErrChatClosed
	}
	c.state = ChatOpen
	return c.flush()
}

func (c *chatChannel) decode(data []byte) (ChatMessage, error) {
	codec := c.codec
	if codec == nil {
		codec = jsonCodec{}
	}
	var msg ChatMessage
	err := codec.Unmarshal(data, &msg)
	return msg, err
}

func (c *chatChannel) close() {
	if c.dc != nil {
		c.dc.Close()
	}
	c.state = ChatClosed
	c.outbox = nil
}
