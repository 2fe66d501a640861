package extract

import (
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"testing"
	"time"

	"github.com/varscout/varscout/pkg/primtype"
)

// The tests drive a session against a shell script that answers like a
// debugger: it frames every reply with the ready prompt and replays
// canned output per command.

const scanScript = `#!/bin/sh
printf 'Reading symbols from target...\n(gdb) '
while IFS= read -r line; do
	case "$line" in
	"set print type methods off") printf '(gdb) ' ;;
	"set print type typedefs off") printf '(gdb) ' ;;
	"info variables") printf 'All defined variables:\n\nFile app/main.c:\n12:\tstatic int counter;\n34:\tstruct config cfg;\n56:\tstatic char tag[4];\n78:\textern int mystery;\n\nNon-debugging symbols:\n0x0000000000001000  _init\n(gdb) ' ;;
	"ptype counter") printf 'type = int\n(gdb) ' ;;
	"ptype cfg") printf 'type = struct config {\n    unsigned char mode;\n    short limit;\n}\n(gdb) ' ;;
	"ptype tag[0]") printf 'type = char\n(gdb) ' ;;
	"ptype mystery") printf 'No symbol "mystery" in current context.\n(gdb) ' ;;
	"ptype cfg.mode") printf 'type = unsigned char\n(gdb) ' ;;
	"ptype cfg.limit") printf 'type = short\n(gdb) ' ;;
	"print sizeof(counter)") printf '$1 = 4\n(gdb) ' ;;
	"print sizeof(tag[0])") printf '$2 = 1\n(gdb) ' ;;
	"print sizeof(mystery)") printf 'No symbol "mystery" in current context.\n(gdb) ' ;;
	"print sizeof(cfg.mode)") printf '$3 = 1\n(gdb) ' ;;
	"print sizeof(cfg.limit)") printf '$4 = 2\n(gdb) ' ;;
	"print &counter") printf '$5 = (int *) 0x20000010 <counter>\n(gdb) ' ;;
	"print &tag[0]") printf '$6 = 0x20000020 <tag> ""\n(gdb) ' ;;
	"print &mystery") printf 'No symbol "mystery" in current context.\n(gdb) ' ;;
	"print &cfg.mode") printf '$7 = (unsigned char *) 0x20000030 <cfg>\n(gdb) ' ;;
	"print &cfg.limit") printf '$8 = (short *) 0x20000032 <cfg+2>\n(gdb) ' ;;
	"echo :types-done:"*) printf ':types-done:\n(gdb) ' ;;
	"echo :sizes-done:"*) printf ':sizes-done:\n(gdb) ' ;;
	"echo :addrs-done:"*) printf ':addrs-done:\n(gdb) ' ;;
	"q") exit 0 ;;
	*) printf '(gdb) ' ;;
	esac
done
`

const arrayScript = `#!/bin/sh
printf '(gdb) '
while IFS= read -r line; do
	case "$line" in
	"info variables") printf 'File bench.c:\n7:\tstatic short grid[3];\n9:\tstruct pair duo[2];\n(gdb) ' ;;
	"ptype grid[2]") printf 'type = short\n(gdb) ' ;;
	"ptype grid[0]") printf 'type = short\n(gdb) ' ;;
	"ptype duo[1]") printf 'type = struct pair {\n    int a;\n    int b;\n}\n(gdb) ' ;;
	"ptype duo[1].a") printf 'type = int\n(gdb) ' ;;
	"ptype duo[1].b") printf 'type = int\n(gdb) ' ;;
	"print sizeof(grid["*) printf '$1 = 2\n(gdb) ' ;;
	"print sizeof(duo["*) printf '$2 = 4\n(gdb) ' ;;
	"print &grid["*) printf '$3 = (short *) 0x20000100 <grid>\n(gdb) ' ;;
	"print &duo["*) printf '$4 = (int *) 0x20000200 <duo>\n(gdb) ' ;;
	"echo "*) printf 'done\n(gdb) ' ;;
	"q") exit 0 ;;
	*) printf '(gdb) ' ;;
	esac
done
`

const cycleScript = `#!/bin/sh
printf '(gdb) '
while IFS= read -r line; do
	case "$line" in
	"info variables") printf 'File robots.cc:\n3:\tDerived obj;\n(gdb) ' ;;
	"ptype obj") printf 'type = class Derived : public Base {\n  public:\n    int d;\n}\n(gdb) ' ;;
	"ptype Base") printf 'type = class Base : public Derived {\n  public:\n    int b;\n}\n(gdb) ' ;;
	"ptype Derived") printf 'type = class Derived : public Base {\n  public:\n    int d;\n}\n(gdb) ' ;;
	"ptype obj.d") printf 'type = int\n(gdb) ' ;;
	"ptype obj.b") printf 'type = int\n(gdb) ' ;;
	"print sizeof(obj)") printf '$1 = 8\n(gdb) ' ;;
	"print sizeof(obj."*) printf '$2 = 4\n(gdb) ' ;;
	"print &obj.d") printf '$4 = (int *) 0x20000300 <obj>\n(gdb) ' ;;
	"print &obj.b") printf '$5 = (int *) 0x20000304 <obj+4>\n(gdb) ' ;;
	"print &obj") printf '$6 = (Derived *) 0x20000300 <obj>\n(gdb) ' ;;
	"echo "*) printf 'done\n(gdb) ' ;;
	"q") exit 0 ;;
	*) printf '(gdb) ' ;;
	esac
done
`

// blockScript answers the setup commands and then hangs on the listing,
// for exercising abort and busy handling.
const blockScript = `#!/bin/sh
printf '(gdb) '
while IFS= read -r line; do
	case "$line" in
	"info variables") IFS= read -r ignored ;;
	"q") exit 0 ;;
	*) printf '(gdb) ' ;;
	esac
done
`

func writeFakeGdb(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake debugger is a shell script")
	}
	path := filepath.Join(t.TempDir(), "fakegdb")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func runScan(t *testing.T, script string, expandArrays bool) ([]Entry, []int) {
	t.Helper()
	fake := writeFakeGdb(t, script)
	x := New(Config{GdbPath: fake})

	resultCh := make(chan []Entry, 1)
	var progress []int
	status := x.Start(fake, expandArrays,
		func(entries []Entry) { resultCh <- entries },
		func(pct int) { progress = append(progress, pct) })
	if status != StatusOK {
		t.Fatalf("Start = %v, want %v", status, StatusOK)
	}

	select {
	case entries := <-resultCh:
		return entries, progress
	case <-time.After(10 * time.Second):
		t.Fatal("extraction did not complete")
		return nil, nil
	}
}

func TestExtractScan(t *testing.T) {
	entries, progress := runScan(t, scanScript, false)

	want := []Entry{
		{Name: "cfg.limit", Address: "0x20000032", Kind: primtype.KindInt16},
		{Name: "cfg.mode", Address: "0x20000030", Kind: primtype.KindUint8},
		{Name: "counter", Address: "0x20000010", Kind: primtype.KindInt32},
		{Name: "tag[0]", Address: "0x20000020", Kind: primtype.KindInt8},
	}
	if !reflect.DeepEqual(entries, want) {
		t.Errorf("entries = %v, want %v", entries, want)
	}

	if len(progress) == 0 {
		t.Fatal("no progress reported")
	}
	for i := 1; i < len(progress); i++ {
		if progress[i] <= progress[i-1] {
			t.Errorf("progress not increasing: %v", progress)
			break
		}
	}
	if last := progress[len(progress)-1]; last != 100 {
		t.Errorf("final progress = %d, want 100", last)
	}
}

func TestExtractExpandArrays(t *testing.T) {
	entries, _ := runScan(t, arrayScript, true)

	want := []Entry{
		{Name: "duo[0].a", Address: "0x20000200", Kind: primtype.KindInt32},
		{Name: "duo[0].b", Address: "0x20000200", Kind: primtype.KindInt32},
		{Name: "duo[1].a", Address: "0x20000200", Kind: primtype.KindInt32},
		{Name: "duo[1].b", Address: "0x20000200", Kind: primtype.KindInt32},
		{Name: "grid[0]", Address: "0x20000100", Kind: primtype.KindInt16},
		{Name: "grid[1]", Address: "0x20000100", Kind: primtype.KindInt16},
		{Name: "grid[2]", Address: "0x20000100", Kind: primtype.KindInt16},
	}
	if !reflect.DeepEqual(entries, want) {
		t.Errorf("entries = %v, want %v", entries, want)
	}
}

func TestExtractCollapsedArrays(t *testing.T) {
	entries, _ := runScan(t, arrayScript, false)

	// With expansion off only element zero of each array is queried. The
	// script answers ptype duo[0] with the fallthrough reply, which leaves
	// it unclassified and dropped.
	want := []Entry{
		{Name: "grid[0]", Address: "0x20000100", Kind: primtype.KindInt16},
	}
	if !reflect.DeepEqual(entries, want) {
		t.Errorf("entries = %v, want %v", entries, want)
	}
}

func TestExtractInheritanceCycle(t *testing.T) {
	entries, _ := runScan(t, cycleScript, false)

	want := []Entry{
		{Name: "obj.b", Address: "0x20000304", Kind: primtype.KindInt32},
		{Name: "obj.d", Address: "0x20000300", Kind: primtype.KindInt32},
	}
	if !reflect.DeepEqual(entries, want) {
		t.Errorf("entries = %v, want %v", entries, want)
	}
}

func TestExtractBusy(t *testing.T) {
	fake := writeFakeGdb(t, blockScript)
	x := New(Config{GdbPath: fake})

	resultCh := make(chan []Entry, 1)
	status := x.Start(fake, false, func(entries []Entry) { resultCh <- entries }, nil)
	if status != StatusOK {
		t.Fatalf("Start = %v, want %v", status, StatusOK)
	}
	if !x.Busy() {
		t.Error("Busy = false with a session in flight")
	}

	var second []Entry
	secondSet := false
	status = x.Start(fake, false, func(entries []Entry) { second, secondSet = entries, true }, nil)
	if status != StatusAlreadyRunning {
		t.Fatalf("second Start = %v, want %v", status, StatusAlreadyRunning)
	}
	if !secondSet || len(second) != 0 {
		t.Errorf("second result = %v (delivered %v), want immediate empty", second, secondSet)
	}

	x.Abort()
	select {
	case entries := <-resultCh:
		if len(entries) != 0 {
			t.Errorf("aborted result = %v, want empty", entries)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("aborted session did not complete")
	}
	if x.Busy() {
		t.Error("Busy = true after the session completed")
	}
}

func TestExtractMissingTarget(t *testing.T) {
	fake := writeFakeGdb(t, scanScript)
	x := New(Config{GdbPath: fake})

	delivered := false
	status := x.Start(filepath.Join(t.TempDir(), "no-such-binary"), false,
		func(entries []Entry) {
			delivered = true
			if len(entries) != 0 {
				t.Errorf("result = %v, want empty", entries)
			}
		}, nil)
	if status != StatusFileNotFound {
		t.Fatalf("Start = %v, want %v", status, StatusFileNotFound)
	}
	if !delivered {
		t.Error("empty result not delivered on failure")
	}
}

func TestExtractSequentialRuns(t *testing.T) {
	fake := writeFakeGdb(t, scanScript)
	x := New(Config{GdbPath: fake})

	for run := 0; run < 2; run++ {
		resultCh := make(chan []Entry, 1)
		status := x.Start(fake, false, func(entries []Entry) { resultCh <- entries }, nil)
		if status != StatusOK {
			t.Fatalf("run %d: Start = %v, want %v", run, status, StatusOK)
		}
		select {
		case entries := <-resultCh:
			if len(entries) != 4 {
				t.Errorf("run %d: got %d entries, want 4", run, len(entries))
			}
		case <-time.After(10 * time.Second):
			t.Fatalf("run %d did not complete", run)
		}
	}
}
