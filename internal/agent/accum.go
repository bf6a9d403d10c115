package agent

import (
	"sort"

	"github.com/sgtlim/aether/internal/llm"
)

// toolCallAccum assembles tool-call fragments streamed by the model.
// Fragments are keyed by slot index: the id arrives at most once per
// slot while name and argument text accrete across chunks.
type toolCallAccum struct {
	slots map[int]*toolCallSlot
}

type toolCallSlot struct {
	id   string
	name string
	args string
}

func newToolCallAccum() *toolCallAccum {
	return &toolCallAccum{slots: make(map[int]*toolCallSlot)}
}

func (a *toolCallAccum) add(deltas []llm.ToolCallDelta) {
	for _, d := range deltas {
		slot, ok := a.slots[d.Index]
		if !ok {
			slot = &toolCallSlot{}
			a.slots[d.Index] = slot
		}
		if d.ID != "" {
			slot.id = d.ID
		}
		slot.name += d.Function.Name
		slot.args += d.Function.Arguments
	}
}

func (a *toolCallAccum) empty() bool {
	return len(a.slots) == 0
}

// finalize returns the completed calls in slot-index order.
func (a *toolCallAccum) finalize() []llm.ToolCall {
	indexes := make([]int, 0, len(a.slots))
	for i := range a.slots {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	calls := make([]llm.ToolCall, 0, len(indexes))
	for _, i := range indexes {
		slot := a.slots[i]
		calls = append(calls, llm.ToolCall{
			ID:   slot.id,
			Type: "function",
			Function: llm.FunctionCall{
				Name:      slot.name,
				Arguments: slot.args,
			},
		})
	}
	return calls
}
