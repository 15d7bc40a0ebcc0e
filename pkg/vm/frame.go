package vm

import "github.com/vigilvm/vigil/pkg/value"

// Frame slot offsets within a register window (spec.md §3/§4.4):
// slot 0 is the return value landing site, 1 the packed retInfo, 2 the
// saved pc, 3 the saved frame base; arguments and locals follow.
const (
	slotRetVal = 0
	slotRetInfo = 1
	slotRetPC   = 2
	slotRetFP   = 3
	firstArgSlot = 4
)

// retInfo packs (numRetVals, retFlag, callInstOffset) into one int32,
// matching the bitfield spec.md §3 describes for the frame's slot 1.
type retInfo struct {
	numRetVals     uint8
	retFlag        uint8
	callInstOffset uint8
}

func packRetInfo(ri retInfo) value.Value {
	n := int32(ri.numRetVals) | int32(ri.retFlag)<<8 | int32(ri.callInstOffset)<<16
	return value.Integer(n)
}

func unpackRetInfo(v value.Value) retInfo {
	n := value.AsInteger(v)
	return retInfo{
		numRetVals:     uint8(n),
		retFlag:        uint8(n >> 8),
		callInstOffset: uint8(n >> 16),
	}
}
