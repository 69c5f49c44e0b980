// Package pipetransport provides an in-memory, in-process pair of
// rpc.Transport implementations wired directly to each other, the way
// the upstream rpc_test.go's pipetransport helper wires two transports
// together over a net.Pipe. Since this core's Transport already speaks
// decoded Message values rather than bytes (the codec is an external
// collaborator — see rpc.Transport's doc comment), New shuttles
// Message values over channels instead of framing bytes.
package pipetransport

import (
	"errors"
	"sync"

	"golang.org/x/net/context"

	"zenhive.dev/capnrpc/rpc"
)

var errClosed = errors.New("pipetransport: closed")

// New returns two Transports, each of which delivers what is sent on
// the other via SendMessage to its own RecvMessage, for wiring two
// rpc.Conns together in a test without a real network connection.
func New() (rpc.Transport, rpc.Transport) {
	ab := make(chan rpc.Message, 16)
	ba := make(chan rpc.Message, 16)
	closed := make(chan struct{})
	var once sync.Once
	closeFn := func() { once.Do(func() { close(closed) }) }

	p := &pipe{send: ab, recv: ba, closed: closed, closeFn: closeFn}
	q := &pipe{send: ba, recv: ab, closed: closed, closeFn: closeFn}
	return p, q
}

type pipe struct {
	send    chan<- rpc.Message
	recv    <-chan rpc.Message
	closed  chan struct{}
	closeFn func()
}

func (p *pipe) SendMessage(ctx context.Context, m rpc.Message) error {
	select {
	case p.send <- m:
		return nil
	case <-p.closed:
		return errClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipe) RecvMessage(ctx context.Context) (rpc.Message, error) {
	select {
	case m := <-p.recv:
		return m, nil
	case <-p.closed:
		return rpc.Message{}, errClosed
	case <-ctx.Done():
		return rpc.Message{}, ctx.Err()
	}
}

func (p *pipe) Close() error {
	p.closeFn()
	return nil
}
