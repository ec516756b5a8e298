package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/samcharles93/smolchat/internal/version"
)

func TestWriteVersion(t *testing.T) {
	t.Parallel()

	info := version.Info{
		Version:   "v0.3.0",
		Commit:    "0123456789ab",
		GoVersion: "go1.26.0",
		Modified:  true,
	}

	var out bytes.Buffer
	if err := writeVersion(&out, info, false); err != nil {
		t.Fatalf("writeVersion: %v", err)
	}
	got := out.String()
	for _, want := range []string{"smolchat v0.3.0\n", "commit: 0123456789ab (modified)", "go:     go1.26.0"} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "built:") {
		t.Fatalf("empty build time printed:\n%s", got)
	}

	out.Reset()
	if err := writeVersion(&out, info, true); err != nil {
		t.Fatalf("writeVersion json: %v", err)
	}
	var decoded version.Info
	if err := json.Unmarshal(out.Bytes(), &decoded); err != nil {
		t.Fatalf("decode %q: %v", out.String(), err)
	}
	if decoded != info {
		t.Fatalf("got %+v, want %+v", decoded, info)
	}
}
