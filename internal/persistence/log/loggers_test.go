package log

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swarmcore.ai/internal/protocol"
)

func TestTickLogger_RoundTripAcrossRotation(t *testing.T) {
	dir := t.TempDir()
	l := NewTickLogger(dir)
	clock := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	l.w.now = func() time.Time { return clock }

	cmd := protocol.InputCommand{EntityID: 7, Action: protocol.ActionMove, TargetX: 50, TargetY: 50}
	require.NoError(t, l.WriteTick(TickEntry{Tick: 0, Commands: []protocol.InputCommand{}, Digest: "a"}))
	require.NoError(t, l.WriteTick(TickEntry{Tick: 1, Commands: []protocol.InputCommand{cmd}, Digest: "b"}))
	clock = clock.Add(2 * time.Minute)
	require.NoError(t, l.WriteTick(TickEntry{Tick: 2, Digest: "c"}))
	require.NoError(t, l.Close())

	files, err := filepath.Glob(filepath.Join(TickDir(dir), "ticks-*.jsonl.zst"))
	require.NoError(t, err)
	assert.Len(t, files, 2)

	var got []TickEntry
	require.NoError(t, ScanTicks(dir, func(e TickEntry) error {
		got = append(got, e)
		return nil
	}))
	require.Len(t, got, 3)
	assert.Equal(t, []uint64{0, 1, 2}, []uint64{got[0].Tick, got[1].Tick, got[2].Tick})
	assert.Equal(t, []protocol.InputCommand{cmd}, got[1].Commands)
	assert.Equal(t, "c", got[2].Digest)
}

func TestJSONLZstdWriter_AppendsNewFrame(t *testing.T) {
	dir := t.TempDir()
	fixed := func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }
	for i := 0; i < 2; i++ {
		w := NewJSONLZstdWriter(dir, "x")
		w.now = fixed
		require.NoError(t, w.Write(map[string]int{"i": i}))
		require.NoError(t, w.Close())
	}
	var lines []map[string]int
	require.NoError(t, ScanJSONL(dir, "x", func(b []byte) error {
		var m map[string]int
		if err := json.Unmarshal(b, &m); err != nil {
			return err
		}
		lines = append(lines, m)
		return nil
	}))
	assert.Equal(t, []map[string]int{{"i": 0}, {"i": 1}}, lines)
}

func TestScan_StopsOnCallbackError(t *testing.T) {
	dir := t.TempDir()
	l := NewTickLogger(dir)
	require.NoError(t, l.WriteTick(TickEntry{Tick: 0}))
	require.NoError(t, l.WriteTick(TickEntry{Tick: 1}))
	require.NoError(t, l.Close())

	stop := errors.New("stop")
	n := 0
	err := ScanTicks(dir, func(TickEntry) error { n++; return stop })
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, n)
}

func TestScan_EmptyDir(t *testing.T) {
	assert.NoError(t, ScanTicks(t.TempDir(), func(TickEntry) error { return nil }))
}

func TestAuditLogger(t *testing.T) {
	dir := t.TempDir()
	a := NewAuditLogger(dir)
	require.NoError(t, a.WriteSession(SessionEntry{SessionID: "s", Client: "c", Event: "join"}))
	require.NoError(t, a.Close())
	entries, err := os.ReadDir(filepath.Join(dir, "audit"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
