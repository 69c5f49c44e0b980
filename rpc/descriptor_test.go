package rpc

import "testing"

func newTestConn() *Conn {
	return &Conn{
		exports: NewExportTable[exportEntry](),
		imports: NewImportTable[importEntry](),
	}
}

func TestPopulateCapTableSenderHosted(t *testing.T) {
	conn := newTestConn()
	payload := &Payload{CapTable: []CapDescriptor{{Which: DescSenderHosted, SenderHosted: 9}}}

	if err := populateCapTable(conn, payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(payload.Caps) != 1 {
		t.Fatalf("want 1 resolved cap, got %d", len(payload.Caps))
	}
	ic, ok := payload.Caps[0].(*importClient)
	if !ok || ic.id != 9 {
		t.Fatalf("want importClient(9), got %+v", payload.Caps[0])
	}
	if conn.imports.Len() != 1 {
		t.Fatalf("want one import table entry installed, got %d", conn.imports.Len())
	}
}

func TestPopulateCapTableRejectsReceiverHosted(t *testing.T) {
	conn := newTestConn()
	payload := &Payload{CapTable: []CapDescriptor{{Which: DescReceiverHosted}}}

	if err := populateCapTable(conn, payload); err != errUnimplemented {
		t.Fatalf("want errUnimplemented, got %v", err)
	}
}

func TestPopulateCapTableSenderPromiseResolvesAbsent(t *testing.T) {
	conn := newTestConn()
	payload := &Payload{CapTable: []CapDescriptor{{Which: DescSenderPromise}}}

	if err := populateCapTable(conn, payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload.Caps[0] != nil {
		t.Fatalf("want nil/absent capability, got %v", payload.Caps[0])
	}
}

func TestMakeCapTableWritesSenderHostedDescriptor(t *testing.T) {
	conn := newTestConn()
	id := conn.exports.Allocate(&exportEntry{server: LocalServerFunc(nil)})
	lc := newLocalClient(conn, ExportID(id), LocalServerFunc(nil))

	payload := &Payload{}
	payload.Content = payload.NewCap(lc)
	makeCapTable(payload)

	if len(payload.CapTable) != 1 || payload.CapTable[0].Which != DescSenderHosted {
		t.Fatalf("want one senderHosted descriptor, got %+v", payload.CapTable)
	}
	if payload.CapTable[0].SenderHosted != ExportID(id) {
		t.Fatalf("want senderHosted(%d), got %+v", id, payload.CapTable[0])
	}
	// The export survives being placed into as many outgoing cap tables
	// as the application cares to; it is freed by a single valid Release,
	// not decremented per-send (spec §4.1's n=1 simplification).
	if conn.exports.Get(id) == nil {
		t.Fatal("export must still be live after being sent")
	}
}

func TestMakeCapTableNilCapWritesDescNone(t *testing.T) {
	payload := &Payload{Caps: []ClientHook{nil}}
	makeCapTable(payload)
	if payload.CapTable[0].Which != DescNone {
		t.Fatalf("want DescNone for a nil cap, got %+v", payload.CapTable[0])
	}
}
