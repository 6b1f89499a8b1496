package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	tlog "swarmcore.ai/internal/persistence/log"
	"swarmcore.ai/internal/persistence/snapshot"
	"swarmcore.ai/internal/sim/tuning"
)

// SQLiteIndex is a queryable secondary copy of the tick log, snapshot
// history and relay sessions. The JSONL logs remain the source of truth;
// writes are queued and dropped if the indexer falls behind.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	dropped atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqSnapshot
	reqSession
)

type req struct {
	kind reqKind

	tick     tlog.TickEntry
	snapshot SnapshotRecord
	session  tlog.SessionEntry
}

type SnapshotRecord struct {
	Tick        uint64
	Path        string
	Entities    int
	EngineBytes int
	TakenAtMs   int64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS config (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			digest TEXT NOT NULL,
			agents INTEGER NOT NULL,
			commands INTEGER NOT NULL,
			unix_ms INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS commands (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			entity_id INTEGER NOT NULL,
			action TEXT NOT NULL,
			target_x REAL NOT NULL,
			target_y REAL NOT NULL,
			mode TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_commands_entity_tick ON commands(entity_id, tick);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			entities INTEGER NOT NULL,
			engine_bytes INTEGER NOT NULL,
			taken_at_ms INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT NOT NULL,
			event TEXT NOT NULL,
			client TEXT NOT NULL,
			tick INTEGER NOT NULL,
			unix_ms INTEGER NOT NULL,
			reason TEXT,
			PRIMARY KEY (session_id, event)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// Dropped counts writes discarded because the queue was full.
func (s *SQLiteIndex) Dropped() uint64 { return s.dropped.Load() }

func (s *SQLiteIndex) enqueue(r req) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		s.dropped.Add(1)
	}
}

func (s *SQLiteIndex) WriteTick(entry tlog.TickEntry) error {
	s.enqueue(req{kind: reqTick, tick: entry})
	return nil
}

func (s *SQLiteIndex) WriteSession(entry tlog.SessionEntry) error {
	s.enqueue(req{kind: reqSession, session: entry})
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.GameSnapshot) {
	s.enqueue(req{kind: reqSnapshot, snapshot: SnapshotRecord{
		Tick:        snap.Header.Tick,
		Path:        path,
		Entities:    len(snap.Entities),
		EngineBytes: len(snap.EngineBlob),
		TakenAtMs:   snap.Timestamp,
	}})
}

// UpsertTuning stores the tuning actually applied, keyed by its digest.
func (s *SQLiteIndex) UpsertTuning(tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(tune)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO config(name,digest,json,updated_at) VALUES(?,?,?,?)`,
		"tuning", hex.EncodeToString(sum[:]), string(b), now); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(tick,digest,agents,commands,unix_ms,raw_json) VALUES(?,?,?,?,?,?)`)
	insertCommand, _ := s.db.Prepare(`INSERT OR REPLACE INTO commands(tick,seq,entity_id,action,target_x,target_y,mode) VALUES(?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(tick,path,entities,engine_bytes,taken_at_ms) VALUES(?,?,?,?,?)`)
	insertSession, _ := s.db.Prepare(`INSERT OR REPLACE INTO sessions(session_id,event,client,tick,unix_ms,reason) VALUES(?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertTick, insertCommand, insertSnapshot, insertSession} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil || tx == nil {
			return false
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			t := r.tick
			raw, _ := json.Marshal(t)
			if !exec(insertTick, int64(t.Tick), t.Digest, t.Agents, len(t.Commands), t.UnixMs, string(raw)) {
				continue
			}
			for i, c := range t.Commands {
				if !exec(insertCommand, int64(t.Tick), i, int64(c.EntityID), string(c.Action), c.TargetX, c.TargetY, string(c.Mode)) {
					break
				}
			}

		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot, int64(sn.Tick), sn.Path, sn.Entities, sn.EngineBytes, sn.TakenAtMs)

		case reqSession:
			se := r.session
			exec(insertSession, se.SessionID, se.Event, se.Client, int64(se.Tick), se.UnixMs, se.Reason)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}

var ErrNoSnapshot = errors.New("indexdb: no snapshot at or before tick")

// LatestSnapshot finds the newest indexed snapshot with tick <= atOrBefore.
func LatestSnapshot(ctx context.Context, path string, atOrBefore uint64) (SnapshotRecord, error) {
	db, err := openDB(path)
	if err != nil {
		return SnapshotRecord{}, err
	}
	defer db.Close()

	var (
		rec  SnapshotRecord
		tick int64
	)
	err = db.QueryRowContext(ctx,
		`SELECT tick,path,entities,engine_bytes,taken_at_ms FROM snapshots WHERE tick <= ? ORDER BY tick DESC LIMIT 1`,
		int64(atOrBefore),
	).Scan(&tick, &rec.Path, &rec.Entities, &rec.EngineBytes, &rec.TakenAtMs)
	if errors.Is(err, sql.ErrNoRows) {
		return SnapshotRecord{}, ErrNoSnapshot
	}
	if err != nil {
		return SnapshotRecord{}, err
	}
	rec.Tick = uint64(tick)
	return rec, nil
}
