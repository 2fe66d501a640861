package gdbconsole

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

const fakeDebugger = `#!/bin/sh
printf '(gdb) '
while IFS= read -r line; do
	case "$line" in
	hello)
		printf 'world\n(gdb) '
		;;
	q)
		exit 0
		;;
	*)
		printf '(gdb) '
		;;
	esac
done
`

func writeFake(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fakegdb")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func collectFrames(t *testing.T, conn *Conn, n int) []string {
	t.Helper()
	split := NewSplitter(conn.Prompt())
	var frames []string
	deadline := time.After(10 * time.Second)
	for len(frames) < n {
		select {
		case chunk, ok := <-conn.Chunks():
			if !ok {
				t.Fatalf("output ended after %d frames, want %d", len(frames), n)
			}
			frames = append(frames, split.Feed(chunk)...)
		case <-deadline:
			t.Fatalf("timed out after %d frames, want %d", len(frames), n)
		}
	}
	return frames
}

func TestLaunchExchange(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake debugger is a shell script")
	}
	fake := writeFake(t, fakeDebugger)

	conn, err := Launch(Config{Path: fake}, fake)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	frames := collectFrames(t, conn, 1)
	if frames[0] != DefaultPrompt {
		t.Errorf("banner frame %q, want %q", frames[0], DefaultPrompt)
	}

	if err := conn.Send("hello"); err != nil {
		t.Fatal(err)
	}
	frames = collectFrames(t, conn, 1)
	if frames[0] != "world\n(gdb) " {
		t.Errorf("reply frame %q", frames[0])
	}

	if err := conn.Send("q"); err != nil {
		t.Fatal(err)
	}
	for range conn.Chunks() {
	}
	if err := conn.Wait(); err != nil {
		t.Errorf("exit error %v", err)
	}
}

func TestLaunchMissingDebugger(t *testing.T) {
	_, err := Launch(Config{Path: "/nonexistent/really-not-a-debugger"}, "target")
	if err == nil {
		t.Fatal("expected an error")
	}
	if _, ok := err.(*ErrDebuggerUnavailable); !ok {
		t.Errorf("error %T %v, want *ErrDebuggerUnavailable", err, err)
	}
}

func TestKillClosesChunks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake debugger is a shell script")
	}
	fake := writeFake(t, fakeDebugger)

	conn, err := Launch(Config{Path: fake}, fake)
	if err != nil {
		t.Fatal(err)
	}
	collectFrames(t, conn, 1)
	conn.Kill()

	done := make(chan struct{})
	go func() {
		for range conn.Chunks() {
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("chunks channel did not close after Kill")
	}
	conn.Wait()
}
