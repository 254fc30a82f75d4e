// Package indexdb maintains a queryable sqlite index of sessions, chat and
// tick load samples. It is a secondary index over the JSONL event logs:
// writes are async and may be dropped under pressure without losing data.
package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"voxelsync.gg/internal/persistence/eventlog"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropSessions atomic.Uint64
	dropChat     atomic.Uint64
	dropTicks    atomic.Uint64
}

type reqKind int

const (
	reqSession reqKind = iota + 1
	reqChat
	reqTick
)

type req struct {
	kind    reqKind
	session eventlog.SessionEntry
	chat    eventlog.ChatEntry
	tick    eventlog.TickEntry
}

// Stats exposes writer-queue health for the admin endpoint.
type Stats struct {
	QueueDepth    int
	QueueCapacity int

	DropSessionTotal uint64
	DropChatTotal    uint64
	DropTickTotal    uint64
}

func Open(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

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
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 16384),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
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
		`CREATE TABLE IF NOT EXISTS sessions (
			client_id INTEGER NOT NULL,
			connect_tick INTEGER NOT NULL,
			disconnect_tick INTEGER,
			score INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (client_id, connect_tick)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_client ON sessions(client_id);`,
		`CREATE TABLE IF NOT EXISTS chat (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			client_id INTEGER NOT NULL,
			text TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chat_client_tick ON chat(client_id, tick);`,
		`CREATE TABLE IF NOT EXISTS tick_stats (
			tick INTEGER PRIMARY KEY,
			players INTEGER NOT NULL,
			resident_chunks INTEGER NOT NULL,
			queued_gen INTEGER NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	if _, err := db.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	return nil
}

// Close drains the queue, commits, and closes the database.
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

func (s *SQLiteIndex) WriteSession(e eventlog.SessionEntry) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqSession, session: e}:
	default:
		// Drop under pressure; the JSONL log is the source of truth.
		s.dropSessions.Add(1)
	}
}

func (s *SQLiteIndex) WriteChat(e eventlog.ChatEntry) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqChat, chat: e}:
	default:
		s.dropChat.Add(1)
	}
}

func (s *SQLiteIndex) WriteTick(e eventlog.TickEntry) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqTick, tick: e}:
	default:
		s.dropTicks.Add(1)
	}
}

func (s *SQLiteIndex) Stats() Stats {
	st := Stats{
		DropSessionTotal: s.dropSessions.Load(),
		DropChatTotal:    s.dropChat.Load(),
		DropTickTotal:    s.dropTicks.Load(),
	}
	if s.ch != nil {
		st.QueueDepth = len(s.ch)
		st.QueueCapacity = cap(s.ch)
	}
	return st
}

// ScoreRow is one row of the score leaderboard.
type ScoreRow struct {
	ClientID uint64
	Score    int
}

// TopScores returns the highest session scores, best first.
func (s *SQLiteIndex) TopScores(ctx context.Context, limit int) ([]ScoreRow, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT client_id, MAX(score) FROM sessions GROUP BY client_id ORDER BY MAX(score) DESC, client_id ASC LIMIT ?`,
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScoreRow
	for rows.Next() {
		var r ScoreRow
		if err := rows.Scan(&r.ClientID, &r.Score); err != nil {
			return out, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) ChatCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chat`).Scan(&n)
	return n, err
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertSession, _ := s.db.Prepare(`INSERT OR REPLACE INTO sessions(client_id,connect_tick) VALUES(?,?)`)
	closeSession, _ := s.db.Prepare(`UPDATE sessions SET disconnect_tick=?, score=? WHERE client_id=? AND disconnect_tick IS NULL`)
	insertChat, _ := s.db.Prepare(`INSERT OR REPLACE INTO chat(tick,seq,client_id,text) VALUES(?,?,?,?)`)
	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO tick_stats(tick,players,resident_chunks,queued_gen) VALUES(?,?,?,?)`)
	defer func() {
		if insertSession != nil {
			_ = insertSession.Close()
		}
		if closeSession != nil {
			_ = closeSession.Close()
		}
		if insertChat != nil {
			_ = insertChat.Close()
		}
		if insertTick != nil {
			_ = insertTick.Close()
		}
	}()

	var (
		tx          *sql.Tx
		opCount     int
		lastCommit  = time.Now()
		commitEvery = 512
		commitWait  = time.Second

		lastChatTick uint64
		chatSeq      int
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

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqSession:
			e := r.session
			switch e.Event {
			case "connect":
				if insertSession != nil {
					if _, err := tx.Stmt(insertSession).Exec(int64(e.ClientID), int64(e.Tick)); err != nil {
						rollback()
						continue
					}
					opCount++
				}
			case "disconnect":
				if closeSession != nil {
					if _, err := tx.Stmt(closeSession).Exec(int64(e.Tick), e.Score, int64(e.ClientID)); err != nil {
						rollback()
						continue
					}
					opCount++
				}
			}

		case reqChat:
			e := r.chat
			if e.Tick != lastChatTick {
				lastChatTick = e.Tick
				chatSeq = 0
			}
			seq := chatSeq
			chatSeq++
			if insertChat != nil {
				if _, err := tx.Stmt(insertChat).Exec(int64(e.Tick), seq, int64(e.ClientID), e.Text); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqTick:
			e := r.tick
			if insertTick != nil {
				if _, err := tx.Stmt(insertTick).Exec(int64(e.Tick), e.Players, e.ResidentChunks, e.QueuedGen); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		}

		if opCount >= commitEvery || time.Since(lastCommit) >= commitWait {
			commit()
		}
	}
	commit()
}
