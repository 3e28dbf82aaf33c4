package config

import (
	"bytes"
	"testing"
)

func TestExitfWritesMessageAndExitsWithCode1(t *testing.T) {
	var out bytes.Buffer
	var code int
	prevWriter, prevExit := exitWriter, exitFunc
	exitWriter = &out
	exitFunc = func(c int) { code = c }
	t.Cleanup(func() {
		exitWriter, exitFunc = prevWriter, prevExit
	})

	Exitf("fatal: %s", "something broke")

	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if out.String() != "fatal: something broke\n" {
		t.Fatalf("unexpected output %q", out.String())
	}
}
