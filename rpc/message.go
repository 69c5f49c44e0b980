package rpc

// Package-level Go stand-ins for the wire message kinds in spec §6.
// The schema-driven encoder/decoder that produces and consumes these
// on the wire is an external collaborator (§1); what lives here is the
// decoded shape the Dispatcher and Transport exchange.

// QuestionID keys a connection's own Question table; mirrored on the
// peer as AnswerID.
type QuestionID uint32

// AnswerID keys a connection's own Answer table; it is the peer's
// QuestionID for the same call.
type AnswerID = QuestionID

// ExportID keys a connection's own Export table; mirrored on the peer
// as ImportID.
type ExportID uint32

// ImportID keys a connection's own Import table; it is the peer's
// ExportID for the same capability.
type ImportID = ExportID

// MessageWhich tags the branch of a Message in use.
type MessageWhich int

const (
	MessageUnknown MessageWhich = iota
	MessageUnimplemented
	MessageAbort
	MessageCall
	MessageReturn
	MessageFinish
	MessageResolve
	MessageRelease
	MessageDisembargo
	MessageSave
	MessageRestore
	MessageDelete
	MessageProvide
	MessageAccept
	MessageJoin
)

func (w MessageWhich) String() string {
	switch w {
	case MessageUnimplemented:
		return "unimplemented"
	case MessageAbort:
		return "abort"
	case MessageCall:
		return "call"
	case MessageReturn:
		return "return"
	case MessageFinish:
		return "finish"
	case MessageResolve:
		return "resolve"
	case MessageRelease:
		return "release"
	case MessageDisembargo:
		return "disembargo"
	case MessageSave:
		return "save"
	case MessageRestore:
		return "restore"
	case MessageDelete:
		return "delete"
	case MessageProvide:
		return "provide"
	case MessageAccept:
		return "accept"
	case MessageJoin:
		return "join"
	default:
		return "unknown"
	}
}

// MessageTargetWhich tags the branch of a MessageTarget.
type MessageTargetWhich int

const (
	TargetNone MessageTargetWhich = iota
	TargetImportedCap
	TargetPromisedAnswer
)

// MessageTarget names the receiver of a Call.
type MessageTarget struct {
	Which          MessageTargetWhich
	ImportedCap    ExportID
	PromisedAnswer PromisedAnswer
}

// PromisedAnswer names a not-yet-returned Answer plus a transform
// reaching into its eventual result.
type PromisedAnswer struct {
	QuestionID QuestionID
	Transform  []PipelineOp
}

// Payload carries a content pointer, the wire-level capability table
// describing every capability reachable from it, and (once populated
// by the descriptor translator in descriptor.go) the resolved in-
// process capabilities those descriptors name.  Caps is index-aligned
// with CapTable: a Ptr field with IsCap set names a slot in Caps, the
// in-memory mirror of a capnp interface pointer's capability index.
type Payload struct {
	Content  Ptr
	CapTable []CapDescriptor
	Caps     []ClientHook
}

// CapAt resolves a Ptr produced by TransformPtr against this payload's
// resolved cap table.  It returns nil if ptr does not name a capability
// or names one out of range.
func (p Payload) CapAt(ptr Ptr) ClientHook {
	if !ptr.IsCap || ptr.CapIndex < 0 || ptr.CapIndex >= len(p.Caps) {
		return nil
	}
	return p.Caps[ptr.CapIndex]
}

// NewCap appends hook to the payload's resolved cap table and returns a
// Ptr naming it, for building outgoing content.
func (p *Payload) NewCap(hook ClientHook) Ptr {
	idx := len(p.Caps)
	p.Caps = append(p.Caps, hook)
	return Ptr{IsCap: true, CapIndex: idx}
}

// CapDescriptorWhich tags the branch of a CapDescriptor.
type CapDescriptorWhich int

const (
	DescNone CapDescriptorWhich = iota
	DescSenderHosted
	DescSenderPromise
	DescReceiverHosted
	DescReceiverAnswer
	DescThirdPartyHosted
)

// CapDescriptor is one entry of a Payload's capability table.
type CapDescriptor struct {
	Which          CapDescriptorWhich
	SenderHosted   ExportID
	SenderPromise  ExportID
	ReceiverHosted ImportID
	ReceiverAnswer PromisedAnswer
}

// Call is an outgoing or incoming method invocation.
type Call struct {
	QuestionID  QuestionID
	Target      MessageTarget
	InterfaceID uint64
	MethodID    uint16
	Params      Payload
}

// ReturnWhich tags the branch of a Return.
type ReturnWhich int

const (
	ReturnResults ReturnWhich = iota
	ReturnException
	ReturnCanceled
	ReturnResultsSentElsewhere
	ReturnTakeFromOtherQuestion
	ReturnAcceptFromThirdParty
)

// Exception is the wire shape of a Return.exception / Abort reason.
type Exception struct {
	Reason string
}

func (e Exception) Error() string { return e.Reason }

// Return answers a previously issued Call or Restore.
type Return struct {
	AnswerID          AnswerID
	Which             ReturnWhich
	Results           Payload
	Exception         Exception
	ReleaseParamCaps  bool
	ReleaseResultCaps bool
}

// Restore requests a bootstrap capability by sturdy-ref object id.
type Restore struct {
	QuestionID QuestionID
	ObjectID   Ptr
}

// Release drops the sender's reference(s) to a hosted export.
type Release struct {
	ID             ExportID
	ReferenceCount uint32
}

// Finish tells the callee it may drop the named Answer.  Not acted
// upon by this core (spec §9, known gap).
type Finish struct {
	QuestionID        QuestionID
	ReleaseResultCaps bool
}

// Message is the tagged union exchanged between peers.  Branches this
// core treats as inert non-goals (Resolve, Disembargo, Save, Delete,
// Provide, Accept, Join) carry no decoded payload beyond their Which:
// they are parsed far enough to be routed here, logged, and dropped.
type Message struct {
	Which   MessageWhich
	Call    *Call
	Return  *Return
	Restore *Restore
	Release *Release
	Finish  *Finish
	Abort   *Exception
}

// NewUnimplementedMessage wraps m as the payload of an Unimplemented
// reply, as required whenever this core receives a message kind or
// cap-descriptor kind it does not handle.
func NewUnimplementedMessage(m Message) Message {
	return Message{Which: MessageUnimplemented}
}

func newReturnMessage(id AnswerID) Message {
	return Message{
		Which: MessageReturn,
		Return: &Return{
			AnswerID:         id,
			ReleaseParamCaps: false,
		},
	}
}

func newExceptionReturn(id AnswerID, reason string) Message {
	m := newReturnMessage(id)
	m.Return.Which = ReturnException
	m.Return.Exception = Exception{Reason: reason}
	return m
}

func newAbortMessage(reason string) Message {
	return Message{Which: MessageAbort, Abort: &Exception{Reason: reason}}
}

func newFinishMessage(id QuestionID, release bool) Message {
	return Message{
		Which: MessageFinish,
		Finish: &Finish{
			QuestionID:        id,
			ReleaseResultCaps: release,
		},
	}
}
