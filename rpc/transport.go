package rpc

import "golang.org/x/net/context"

// Transport is the external, schema-driven byte-stream collaborator
// (spec §1, §6).  Framing and per-message encode/decode happen on the
// other side of this interface; the core only ever sees decoded
// Message values.
type Transport interface {
	RecvMessage(ctx context.Context) (Message, error)
	SendMessage(ctx context.Context, m Message) error
	Close() error
}
