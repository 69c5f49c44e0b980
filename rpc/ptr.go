package rpc

import "fmt"

// Ptr stands in for capnp's AnyPointer.  The schema-driven encoder and
// decoder that would normally produce and consume these values is an
// external collaborator (spec §1/§6); this core only needs a
// pointer-shaped value it can walk with PipelineOps and that can name a
// capability slot, so Ptr keeps exactly that much structure: an opaque
// leaf value, indexed pointer fields for getPointerField transforms,
// and (if IsCap) an index into the owning Payload's resolved Caps
// table — the in-memory mirror of a capnp interface pointer holding a
// capability index into Message.CapTable.
type Ptr struct {
	Value    interface{}
	Fields   []Ptr
	IsCap    bool
	CapIndex int
}

// StructPtr builds a Ptr with the given pointer fields, field i
// reachable by PipelineOp{Kind: PipelineOpGetPointerField, Field: i}.
func StructPtr(fields ...Ptr) Ptr {
	return Ptr{Fields: fields}
}

// ValuePtr builds a Ptr carrying an opaque leaf value (e.g. decoded
// struct data this core does not interpret).
func ValuePtr(v interface{}) Ptr {
	return Ptr{Value: v}
}

// PipelineOpKind distinguishes the two transform steps the protocol
// defines (GLOSSARY: PipelineOps).
type PipelineOpKind int

const (
	PipelineOpNoop PipelineOpKind = iota
	PipelineOpGetPointerField
)

// PipelineOp is one step of a transform walking into a results payload
// to reach a nested capability.
type PipelineOp struct {
	Kind  PipelineOpKind
	Field uint16
}

func (op PipelineOp) String() string {
	switch op.Kind {
	case PipelineOpNoop:
		return "noop"
	case PipelineOpGetPointerField:
		return fmt.Sprintf("getPointerField(%d)", op.Field)
	default:
		return "unknown"
	}
}

// TransformPtr walks p according to ops, as a receiverAnswer descriptor
// or a pipelined Call's target does.  It does not resolve the final
// capability; call Payload.CapAt on the result for that.
func TransformPtr(p Ptr, ops []PipelineOp) (Ptr, error) {
	cur := p
	for _, op := range ops {
		switch op.Kind {
		case PipelineOpNoop:
			continue
		case PipelineOpGetPointerField:
			if int(op.Field) >= len(cur.Fields) {
				return Ptr{}, fmt.Errorf("rpc: pipeline transform: field %d out of range (have %d)", op.Field, len(cur.Fields))
			}
			cur = cur.Fields[op.Field]
		default:
			return Ptr{}, fmt.Errorf("rpc: pipeline transform: unknown op kind %d", op.Kind)
		}
	}
	return cur, nil
}

// capFromResolution applies transform to obj (resolved against
// payload's cap table) and extracts the capability it names, mirroring
// the teacher's clientFromResolution.
func capFromResolution(payload Payload, obj Ptr, err error, transform []PipelineOp) ClientHook {
	if err != nil {
		return ErrorClient(err)
	}
	out, err := TransformPtr(obj, transform)
	if err != nil {
		return ErrorClient(err)
	}
	hook := payload.CapAt(out)
	if hook == nil {
		return ErrorClient(ErrNullClient)
	}
	return hook
}
