package rpc

// populateCapTable is the inbound half of the cap-descriptor
// translator (spec §4.3): it walks payload.CapTable and builds the
// parallel, resolved payload.Caps.  An unsupported descriptor kind
// does not abort the connection; it is surfaced to the caller so the
// message it belongs to can be answered Unimplemented instead (spec
// §9, and rpc.rs's handling of cap-table population failures).
func populateCapTable(conn *Conn, payload *Payload) error {
	caps := make([]ClientHook, len(payload.CapTable))
	for i, d := range payload.CapTable {
		switch d.Which {
		case DescNone:
			caps[i] = nil
		case DescSenderHosted:
			caps[i] = conn.importFor(d.SenderHosted)
		case DescSenderPromise:
			// Unimplemented; the capability resolves to absent rather
			// than failing the whole message (spec §4.3, §9).
			caps[i] = nil
		case DescReceiverAnswer:
			caps[i] = newPromisedAnswerClient(conn, AnswerID(d.ReceiverAnswer.QuestionID), d.ReceiverAnswer.Transform)
		case DescReceiverHosted, DescThirdPartyHosted:
			return errUnimplemented
		default:
			return errUnimplemented
		}
	}
	payload.Caps = caps
	return nil
}

// makeCapTable is the outbound half of the translator: it walks
// payload.Caps (populated by application code via Payload.NewCap) and
// writes the parallel wire CapTable.  Every ClientHook flavor this
// core hands out already knows its own wire shape via Descriptor().
// Per spec §4.1 this core does not keep a generalized reference count
// for an Export: however many times a localClient is placed into an
// outgoing cap table, it is freed by a single valid Release(id, 1)
// (handleIncomingRelease), so there is nothing to bump here.
func makeCapTable(payload *Payload) {
	table := make([]CapDescriptor, len(payload.Caps))
	for i, h := range payload.Caps {
		if h == nil {
			table[i] = CapDescriptor{Which: DescNone}
			continue
		}
		table[i] = h.Descriptor()
	}
	payload.CapTable = table
}
