package netadapter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"swarmcore.ai/internal/protocol"
)

func move(id uint32) protocol.InputCommand {
	return protocol.InputCommand{EntityID: id, Action: protocol.ActionMove, TargetX: 1, TargetY: 1}
}

func TestRelay_FlushInOrder(t *testing.T) {
	r := NewRelay(5)
	assert.Equal(t, uint64(6), r.Submit(6, []protocol.InputCommand{move(1)}))

	b := r.Flush()
	assert.Equal(t, uint64(5), b.Tick)
	assert.NotNil(t, b.Commands)
	assert.Empty(t, b.Commands)

	b = r.Flush()
	assert.Equal(t, uint64(6), b.Tick)
	assert.Equal(t, []protocol.InputCommand{move(1)}, b.Commands)
	assert.Equal(t, uint64(7), r.NextTick())
}

func TestRelay_LateInputRescheduled(t *testing.T) {
	r := NewRelay(0)
	r.Flush()
	r.Flush()
	assert.Equal(t, uint64(2), r.Submit(1, []protocol.InputCommand{move(3)}))
	assert.Equal(t, uint64(1), r.Late())
	assert.Equal(t, []protocol.InputCommand{move(3)}, r.Flush().Commands)
}

func TestRelay_ConcatenatesSameTick(t *testing.T) {
	r := NewRelay(0)
	r.Submit(0, []protocol.InputCommand{move(1)})
	r.Submit(0, []protocol.InputCommand{move(2)})
	assert.Equal(t, []protocol.InputCommand{move(1), move(2)}, r.Flush().Commands)
}
