package rtctest

import (
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/serozhenka/shary/internal/rtc"
)

var ErrNotOpen = errors.New("data channel not open")

// DataChannel is a fake rtc.DataChannel. Linked channels deliver each other's
// sends synchronously.
type DataChannel struct {
	label    string
	protocol string

	mu        sync.Mutex
	state     webrtc.DataChannelState
	onOpen    func()
	onMessage func(webrtc.DataChannelMessage)
	onClose   func()
	sent      [][]byte
	remote    *DataChannel

	// SendErr, when set, runs before every send and fails it with the
	// returned error.
	SendErr func() error
}

// NewDataChannel returns a channel in the connecting state.
func NewDataChannel(label, protocol string) *DataChannel {
	return &DataChannel{label: label, protocol: protocol, state: webrtc.DataChannelStateConnecting}
}

// Link wires a and b so that a send on one is delivered to the other.
func Link(a, b *DataChannel) {
	a.mu.Lock()
	a.remote = b
	a.mu.Unlock()
	b.mu.Lock()
	b.remote = a
	b.mu.Unlock()
}

func (d *DataChannel) Label() string    { return d.label }
func (d *DataChannel) Protocol() string { return d.protocol }

func (d *DataChannel) ReadyState() webrtc.DataChannelState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *DataChannel) OnOpen(f func()) {
	d.mu.Lock()
	d.onOpen = f
	d.mu.Unlock()
}

func (d *DataChannel) OnMessage(f func(webrtc.DataChannelMessage)) {
	d.mu.Lock()
	d.onMessage = f
	d.mu.Unlock()
}

func (d *DataChannel) OnClose(f func()) {
	d.mu.Lock()
	d.onClose = f
	d.mu.Unlock()
}

// Open moves the channel to open and fires the open handler once.
func (d *DataChannel) Open() {
	d.mu.Lock()
	if d.state != webrtc.DataChannelStateConnecting {
		d.mu.Unlock()
		return
	}
	d.state = webrtc.DataChannelStateOpen
	h := d.onOpen
	d.mu.Unlock()
	if h != nil {
		h()
	}
}

func (d *DataChannel) Send(data []byte) error {
	d.mu.Lock()
	if d.state != webrtc.DataChannelStateOpen {
		d.mu.Unlock()
		return ErrNotOpen
	}
	if d.SendErr != nil {
		if err := d.SendErr(); err != nil {
			d.mu.Unlock()
			return err
		}
	}
	d.sent = append(d.sent, append([]byte(nil), data...))
	remote := d.remote
	d.mu.Unlock()
	if remote != nil {
		remote.Deliver(data)
	}
	return nil
}

// Deliver hands data to the message handler as if it came from the far end.
func (d *DataChannel) Deliver(data []byte) {
	d.mu.Lock()
	h := d.onMessage
	d.mu.Unlock()
	if h != nil {
		h(webrtc.DataChannelMessage{IsString: true, Data: data})
	}
}

func (d *DataChannel) Close() error {
	d.mu.Lock()
	if d.state == webrtc.DataChannelStateClosed {
		d.mu.Unlock()
		return nil
	}
	d.state = webrtc.DataChannelStateClosed
	h := d.onClose
	d.mu.Unlock()
	if h != nil {
		h()
	}
	return nil
}

// Sent returns copies of every payload sent on this end.
func (d *DataChannel) Sent() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]byte, len(d.sent))
	copy(out, d.sent)
	return out
}

var _ rtc.DataChannel = (*DataChannel)(nil)
