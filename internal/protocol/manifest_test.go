package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"voxelsync.gg/internal/protocol"
)

func TestManifest_ValidatesAgainstSchema(t *testing.T) {
	p := filepath.Join("..", "..", "schemas", "manifest.schema.json")
	s, err := jsonschema.Compile(p)
	if err != nil {
		t.Fatalf("compile schema: %v", err)
	}

	raw, err := json.Marshal(protocol.BuildManifest())
	if err != nil {
		t.Fatalf("marshal manifest: %v", err)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("unmarshal manifest: %v", err)
	}
	if err := s.Validate(v); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestManifest_CoversEveryChannel(t *testing.T) {
	m := protocol.BuildManifest()
	if m.ProtocolID != protocol.ProtocolID {
		t.Fatalf("manifest protocol id mismatch")
	}
	if len(m.Channels) != len(protocol.Channels()) {
		t.Fatalf("manifest channels=%d want %d", len(m.Channels), len(protocol.Channels()))
	}
	seen := map[string]bool{}
	for _, c := range m.Channels {
		if seen[c.Name] {
			t.Fatalf("duplicate channel name %q", c.Name)
		}
		seen[c.Name] = true
	}
}
