package signaling

import "sync"

// Transport is an ordered, reliable, duplex message channel scoped to one
// room and one participant. Loss of the channel is terminal: Done is closed
// and Err reports why. Implementations never retry.
type Transport interface {
	Send(msg *Message) error
	Incoming() <-chan *Message
	Done() <-chan struct{}
	Err() error
	Close() error
}

// Pipe is one end of an in-memory Transport pair. Closing either end closes
// both.
type Pipe struct {
	in    chan *Message
	peer  *Pipe
	state *pipeState
}

type pipeState struct {
	once sync.Once
	done chan struct{}
}

// NewPipe returns two connected ends. Messages sent on one end arrive on the
// other in order. buffer is the per-direction queue length; Send blocks when
// the queue is full.
func NewPipe(buffer int) (*Pipe, *Pipe) {
	state := &pipeState{done: make(chan struct{})}
	a := &Pipe{in: make(chan *Message, buffer), state: state}
	b := &Pipe{in: make(chan *Message, buffer), state: state}
	a.peer, b.peer = b, a
	return a, b
}

func (p *Pipe) Send(msg *Message) error {
	select {
	case <-p.state.done:
		return ErrClosed
	default:
	}
	select {
	case p.peer.in <- msg:
		return nil
	case <-p.state.done:
		return ErrClosed
	}
}

func (p *Pipe) Incoming() <-chan *Message { return p.in }
func (p *Pipe) Done() <-chan struct{}     { return p.state.done }

func (p *Pipe) Err() error {
	select {
	case <-p.state.done:
		return ErrClosed
	default:
		return nil
	}
}

func (p *Pipe) Close() error {
	p.state.once.Do(func() { close(p.state.done) })
	return nil
}
