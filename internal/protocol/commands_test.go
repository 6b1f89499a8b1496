package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInputCommand_Validate(t *testing.T) {
	ok := []InputCommand{
		{EntityID: 1, Action: ActionMove, TargetX: 1, TargetY: 2},
		{EntityID: 1, Action: ActionMove, Mode: ModeFlow},
		{EntityID: 1, Action: ActionAttack, Mode: ModeDirect},
		{EntityID: 1, Action: ActionStop},
	}
	for _, c := range ok {
		assert.NoError(t, c.Validate(), "%+v", c)
	}
	assert.Error(t, InputCommand{Action: "JUMP"}.Validate())
	assert.Error(t, InputCommand{Action: ActionMove, Mode: "TELEPORT"}.Validate())
}

func TestBundleMsg_EmptyCommandsEncodeAsArray(t *testing.T) {
	b, err := json.Marshal(NewBundleMsg(TickBundle{Tick: 9}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"BUNDLE","protocol_version":"1.0","tick":9,"commands":[]}`, string(b))

	var m BundleMsg
	require.NoError(t, json.Unmarshal(b, &m))
	got := m.Bundle()
	assert.Equal(t, uint64(9), got.Tick)
	assert.NotNil(t, got.Commands)
	assert.Empty(t, got.Commands)
}

func TestTickBundle_CloneDoesNotAlias(t *testing.T) {
	b := TickBundle{Tick: 1, Commands: []InputCommand{{EntityID: 1, Action: ActionMove}}}
	c := b.Clone()
	c.Commands[0].EntityID = 99
	assert.Equal(t, uint32(1), b.Commands[0].EntityID)
}
