// Command replay inspects the compressed event logs and can rebuild the
// sqlite index from them.
package main

import (
	"flag"
	"fmt"
	"os"

	"voxelsync.gg/internal/persistence/eventlog"
	"voxelsync.gg/internal/persistence/indexdb"
)

func main() {
	var (
		dir      = flag.String("events", "./data/events", "event log directory")
		fromTick = flag.Uint64("from_tick", 0, "skip entries before this tick")
		toTick   = flag.Uint64("to_tick", 0, "stop after this tick (0 = no limit)")
		rebuild  = flag.String("rebuild_index", "", "rebuild a sqlite index at this path from the logs")
		quiet    = flag.Bool("quiet", false, "suppress per-entry output")
	)
	flag.Parse()

	inRange := func(tick uint64) bool {
		if tick < *fromTick {
			return false
		}
		if *toTick > 0 && tick > *toTick {
			return false
		}
		return true
	}

	var idx *indexdb.SQLiteIndex
	if *rebuild != "" {
		var err error
		idx, err = indexdb.Open(*rebuild)
		if err != nil {
			fmt.Fprintln(os.Stderr, "open index:", err)
			os.Exit(1)
		}
		defer idx.Close()
	}

	var sessions, chat, ticks int

	sessionFiles, err := eventlog.Files(*dir, "sessions")
	if err != nil {
		fmt.Fprintln(os.Stderr, "list sessions:", err)
		os.Exit(1)
	}
	for _, path := range sessionFiles {
		entries, err := eventlog.ReadAll[eventlog.SessionEntry](path)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read", path, ":", err)
			os.Exit(1)
		}
		for _, e := range entries {
			if !inRange(e.Tick) {
				continue
			}
			sessions++
			if !*quiet {
				fmt.Printf("tick=%d session client=%d %s score=%d\n", e.Tick, e.ClientID, e.Event, e.Score)
			}
			idx.WriteSession(e)
		}
	}

	chatFiles, err := eventlog.Files(*dir, "chat")
	if err != nil {
		fmt.Fprintln(os.Stderr, "list chat:", err)
		os.Exit(1)
	}
	for _, path := range chatFiles {
		entries, err := eventlog.ReadAll[eventlog.ChatEntry](path)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read", path, ":", err)
			os.Exit(1)
		}
		for _, e := range entries {
			if !inRange(e.Tick) {
				continue
			}
			chat++
			if !*quiet {
				fmt.Printf("tick=%d chat client=%d %q\n", e.Tick, e.ClientID, e.Text)
			}
			idx.WriteChat(e)
		}
	}

	tickFiles, err := eventlog.Files(*dir, "ticks")
	if err != nil {
		fmt.Fprintln(os.Stderr, "list ticks:", err)
		os.Exit(1)
	}
	for _, path := range tickFiles {
		entries, err := eventlog.ReadAll[eventlog.TickEntry](path)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read", path, ":", err)
			os.Exit(1)
		}
		for _, e := range entries {
			if !inRange(e.Tick) {
				continue
			}
			ticks++
			idx.WriteTick(e)
		}
	}

	fmt.Printf("sessions=%d chat=%d tick_samples=%d\n", sessions, chat, ticks)
	if idx != nil {
		fmt.Printf("index rebuilt at %s\n", *rebuild)
	}
}
