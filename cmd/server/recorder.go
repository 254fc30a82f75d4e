package main

import (
	"log"

	"voxelsync.gg/internal/persistence/eventlog"
	"voxelsync.gg/internal/persistence/indexdb"
	"voxelsync.gg/internal/protocol"
)

// recorder fans replication lifecycle events out to the JSONL event log and
// the sqlite index. It runs on the tick goroutine; tick is advanced by the
// main loop before the engine fires callbacks.
type recorder struct {
	log  *log.Logger
	el   *eventlog.Logger
	idx  *indexdb.SQLiteIndex
	tick uint64
}

func (r *recorder) setTick(t uint64) { r.tick = t }

func (r *recorder) PlayerConnected(id protocol.ClientID, spawn protocol.Vec3) {
	e := eventlog.SessionEntry{Tick: r.tick, ClientID: uint64(id), Event: "connect"}
	if r.el != nil {
		if err := r.el.WriteSession(e); err != nil {
			r.log.Printf("eventlog session: %v", err)
		}
	}
	r.idx.WriteSession(e)
}

func (r *recorder) PlayerDisconnected(id protocol.ClientID, score int) {
	e := eventlog.SessionEntry{Tick: r.tick, ClientID: uint64(id), Event: "disconnect", Score: score}
	if r.el != nil {
		if err := r.el.WriteSession(e); err != nil {
			r.log.Printf("eventlog session: %v", err)
		}
	}
	r.idx.WriteSession(e)
}

func (r *recorder) ChatReceived(id protocol.ClientID, text string) {
	e := eventlog.ChatEntry{Tick: r.tick, ClientID: uint64(id), Text: text}
	if r.el != nil {
		if err := r.el.WriteChat(e); err != nil {
			r.log.Printf("eventlog chat: %v", err)
		}
	}
	r.idx.WriteChat(e)
}

func (r *recorder) tickStats(players, chunks, queued int) {
	e := eventlog.TickEntry{Tick: r.tick, Players: players, ResidentChunks: chunks, QueuedGen: queued}
	if r.el != nil {
		if err := r.el.WriteTick(e); err != nil {
			r.log.Printf("eventlog tick: %v", err)
		}
	}
	r.idx.WriteTick(e)
}
