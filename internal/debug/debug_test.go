package debug

import (
	"bytes"
	"os"
	"testing"
)

func TestLogf(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	prev := Enabled()
	t.Cleanup(func() {
		SetEnabled(prev)
		SetOutput(os.Stderr)
	})

	SetEnabled(false)
	Logf("hidden %d", 1)
	if buf.Len() != 0 {
		t.Fatalf("disabled Logf wrote %q", buf.String())
	}

	SetEnabled(true)
	Logf("shown %d", 2)
	if got := buf.String(); got != "[debug] shown 2\n" {
		t.Errorf("Logf wrote %q", got)
	}
}
