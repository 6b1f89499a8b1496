package indexdb

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	tlog "swarmcore.ai/internal/persistence/log"
	"swarmcore.ai/internal/persistence/snapshot"
	"swarmcore.ai/internal/protocol"
	"swarmcore.ai/internal/sim/tuning"
)

func TestSQLiteIndex_WriteTick(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	_ = idx.WriteTick(tlog.TickEntry{Tick: 0, Commands: []protocol.InputCommand{}, Digest: "d0", Agents: 2})
	_ = idx.WriteTick(tlog.TickEntry{
		Tick:   1,
		Digest: "d1",
		Agents: 2,
		Commands: []protocol.InputCommand{
			{EntityID: 7, Action: protocol.ActionMove, TargetX: 50, TargetY: 50, Mode: protocol.ModeFlow},
			{EntityID: 8, Action: protocol.ActionStop},
		},
	})
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM ticks`).Scan(&n); err != nil || n != 2 {
		t.Fatalf("ticks count=%d err=%v", n, err)
	}
	var (
		digest   string
		commands int
	)
	if err := db.QueryRow(`SELECT digest,commands FROM ticks WHERE tick=1`).Scan(&digest, &commands); err != nil {
		t.Fatalf("scan tick: %v", err)
	}
	if digest != "d1" || commands != 2 {
		t.Fatalf("tick mismatch: digest=%q commands=%d", digest, commands)
	}
	var (
		action string
		x      float64
		mode   string
	)
	if err := db.QueryRow(`SELECT action,target_x,mode FROM commands WHERE entity_id=7`).Scan(&action, &x, &mode); err != nil {
		t.Fatalf("scan command: %v", err)
	}
	if action != "MOVE" || x != 50 || mode != "FLOW" {
		t.Fatalf("command mismatch: action=%q x=%v mode=%q", action, x, mode)
	}
}

func TestSQLiteIndex_SnapshotsAndSessions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := idx.UpsertTuning(tuning.Defaults()); err != nil {
		t.Fatalf("UpsertTuning: %v", err)
	}
	for _, tick := range []uint64{600, 1200} {
		idx.RecordSnapshot("/runs/a/snapshots/x.snap.zst", snapshot.GameSnapshot{
			Header:     snapshot.Header{Version: snapshot.Version, Tick: tick},
			Timestamp:  int64(tick),
			EngineBlob: make([]byte, 10),
			Entities:   make([]snapshot.EntitySnapshot, 3),
		})
	}
	_ = idx.WriteSession(tlog.SessionEntry{SessionID: "s1", Client: "bot", Event: "join", Tick: 4})
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	rec, err := LatestSnapshot(context.Background(), path, 1199)
	if err != nil {
		t.Fatalf("LatestSnapshot: %v", err)
	}
	if rec.Tick != 600 || rec.Entities != 3 || rec.EngineBytes != 10 {
		t.Fatalf("snapshot mismatch: %+v", rec)
	}
	if _, err := LatestSnapshot(context.Background(), path, 10); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("expected ErrNoSnapshot, got %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()
	var client string
	if err := db.QueryRow(`SELECT client FROM sessions WHERE session_id='s1' AND event='join'`).Scan(&client); err != nil || client != "bot" {
		t.Fatalf("session client=%q err=%v", client, err)
	}
	var digest string
	if err := db.QueryRow(`SELECT digest FROM config WHERE name='tuning'`).Scan(&digest); err != nil || len(digest) != 64 {
		t.Fatalf("tuning digest=%q err=%v", digest, err)
	}
}

func TestSQLiteIndex_WritesAfterCloseAreIgnored(t *testing.T) {
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := idx.WriteTick(tlog.TickEntry{Tick: 1}); err != nil {
		t.Fatalf("WriteTick after close: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
