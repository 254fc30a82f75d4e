package eventlog

import (
	"testing"
)

func TestLogger_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	l := NewLogger(dir)

	if err := l.WriteSession(SessionEntry{Tick: 1, ClientID: 7, Event: "connect"}); err != nil {
		t.Fatalf("write session: %v", err)
	}
	if err := l.WriteSession(SessionEntry{Tick: 90, ClientID: 7, Event: "disconnect", Score: 3}); err != nil {
		t.Fatalf("write session: %v", err)
	}
	if err := l.WriteChat(ChatEntry{Tick: 40, ClientID: 7, Text: "hello"}); err != nil {
		t.Fatalf("write chat: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := Files(dir, "sessions")
	if err != nil || len(files) != 1 {
		t.Fatalf("session files = %v err=%v", files, err)
	}
	sessions, err := ReadAll[SessionEntry](files[0])
	if err != nil {
		t.Fatalf("read sessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("sessions = %d, want 2", len(sessions))
	}
	if sessions[1].Event != "disconnect" || sessions[1].Score != 3 {
		t.Fatalf("second session = %+v", sessions[1])
	}

	chatFiles, err := Files(dir, "chat")
	if err != nil || len(chatFiles) != 1 {
		t.Fatalf("chat files = %v err=%v", chatFiles, err)
	}
	chat, err := ReadAll[ChatEntry](chatFiles[0])
	if err != nil {
		t.Fatalf("read chat: %v", err)
	}
	if len(chat) != 1 || chat[0].Text != "hello" {
		t.Fatalf("chat = %+v", chat)
	}
}

func TestWriter_AppendAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	w := NewWriter(dir, "ticks")
	if err := w.Write(TickEntry{Tick: 1, Players: 2}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// A restart within the same hour appends a second zstd frame to the
	// same file; the reader must see both.
	w = NewWriter(dir, "ticks")
	if err := w.Write(TickEntry{Tick: 2, Players: 3}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := Files(dir, "ticks")
	if err != nil || len(files) != 1 {
		t.Fatalf("files = %v err=%v", files, err)
	}
	ticks, err := ReadAll[TickEntry](files[0])
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(ticks) != 2 || ticks[1].Tick != 2 {
		t.Fatalf("ticks = %+v", ticks)
	}
}
