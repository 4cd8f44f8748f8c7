package domain

import "strings"

// StateFlag is a lifecycle state bit set. Close, Import and Restore imply
// BatchProcess.
type StateFlag uint32

const (
	StateBatchProcess StateFlag = 0x0001
	StateClose        StateFlag = 0x0002 | StateBatchProcess
	StateImport       StateFlag = 0x0004 | StateBatchProcess
	StateRestore      StateFlag = 0x0008 | StateBatchProcess
	StateSave         StateFlag = 0x0010
	StateUndo         StateFlag = 0x0020
	StateRedo         StateFlag = 0x0040
)

// Has reports whether every bit of other is set.
func (s StateFlag) Has(other StateFlag) bool {
	return other != 0 && s&other == other
}

var stateNames = []struct {
	flag StateFlag
	name string
}{
	{StateClose, "close"},
	{StateImport, "import"},
	{StateRestore, "restore"},
	{StateSave, "save"},
	{StateUndo, "undo"},
	{StateRedo, "redo"},
}

func (s StateFlag) String() string {
	if s == 0 {
		return "idle"
	}
	if s == StateBatchProcess {
		return "batch-process"
	}
	var parts []string
	covered := StateFlag(0)
	for _, n := range stateNames {
		if s.Has(n.flag) {
			parts = append(parts, n.name)
			covered |= n.flag
		}
	}
	if s.Has(StateBatchProcess) && covered&StateBatchProcess == 0 {
		parts = append([]string{"batch-process"}, parts...)
	}
	return strings.Join(parts, "|")
}
