package domain

import "testing"

func TestStateFlagImplications(t *testing.T) {
	for _, s := range []StateFlag{StateClose, StateImport, StateRestore} {
		if !s.Has(StateBatchProcess) {
			t.Fatalf("%s must imply batch processing", s)
		}
	}
	for _, s := range []StateFlag{StateSave, StateUndo, StateRedo} {
		if s.Has(StateBatchProcess) {
			t.Fatalf("%s must not imply batch processing", s)
		}
	}
	if StateImport.Has(StateClose) {
		t.Fatalf("import must not read as close")
	}
	if StateImport.Has(0) {
		t.Fatalf("the empty flag is never held")
	}
}

func TestStateFlagString(t *testing.T) {
	cases := map[StateFlag]string{
		0:                             "idle",
		StateBatchProcess:             "batch-process",
		StateImport:                   "import",
		StateImport | StateUndo:       "import|undo",
		StateClose | StateRestore:     "close|restore",
		StateSave:                     "save",
		StateBatchProcess | StateRedo: "batch-process|redo",
	}
	for flag, want := range cases {
		if got := flag.String(); got != want {
			t.Fatalf("StateFlag(%#x).String() = %q, want %q", uint32(flag), got, want)
		}
	}
}

func TestEventTypeString(t *testing.T) {
	if EventNodeAdded.String() != "node_added" || EventStateProgress.String() != "state_progress" {
		t.Fatalf("unexpected event names")
	}
	if EventType(0).String() != "unknown" {
		t.Fatalf("zero event type must be unknown")
	}
}
