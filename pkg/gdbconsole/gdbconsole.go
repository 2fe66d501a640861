// Package gdbconsole spawns a debugger subprocess and exchanges commands
// with it over its line-oriented console protocol. Output is delivered as
// raw chunks, in whatever sizes the operating system hands them over, and
// framed on the debugger's ready prompt by Splitter.
package gdbconsole

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/varscout/varscout/pkg/logflags"
)

// DefaultPrompt is the sentinel GDB prints when it is ready for the next
// command.
const DefaultPrompt = "(gdb) "

const wireMaxLen = 120

// ErrDebuggerUnavailable is returned when the debugger executable cannot
// be found in the path.
type ErrDebuggerUnavailable struct {
	path string
}

func (err *ErrDebuggerUnavailable) Error() string {
	return fmt.Sprintf("debugger executable not found: %s", err.path)
}

// Config describes how to spawn the debugger subprocess.
type Config struct {
	// Path of the debugger executable, "gdb" when empty.
	Path string
	// Args are extra arguments placed before the target path.
	Args []string
	// Prompt is the ready sentinel, DefaultPrompt when empty.
	Prompt string
	// UsePty drives the subprocess through a pseudo terminal instead of
	// pipes. Some debugger builds only behave interactively on a terminal.
	UsePty bool
}

// Conn is a live connection to a debugger subprocess.
type Conn struct {
	cfg Config

	cmd   *exec.Cmd
	stdin io.Writer
	ptmx  *os.File

	chunks  chan []byte
	drained sync.WaitGroup

	wmu     sync.Mutex
	wcond   *sync.Cond
	wqueue  []byte
	wclosed bool

	waitCh   chan error
	waitOnce sync.Once
	waitErr  error

	log logflags.Logger
}

// Launch spawns the debugger with the given target executable attached.
// The subprocess is started quiet and without init files. Everything it
// writes to stdout is delivered on Chunks until it terminates, its stderr
// is drained to the gdbout log layer.
func Launch(cfg Config, target string) (*Conn, error) {
	if cfg.Path == "" {
		cfg.Path = "gdb"
	}
	if cfg.Prompt == "" {
		cfg.Prompt = DefaultPrompt
	}
	gdbPath, err := exec.LookPath(cfg.Path)
	if err != nil {
		return nil, &ErrDebuggerUnavailable{path: cfg.Path}
	}

	args := make([]string, 0, len(cfg.Args)+3)
	args = append(args, cfg.Args...)
	args = append(args, "-q", "-nx", target)
	cmd := exec.Command(gdbPath, args...)

	c := &Conn{
		cfg:    cfg,
		cmd:    cmd,
		chunks: make(chan []byte),
		waitCh: make(chan error, 1),
		log:    logflags.GdbWireLogger(),
	}
	c.wcond = sync.NewCond(&c.wmu)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}

	var out io.Reader
	if cfg.UsePty {
		ptmx, err := startPty(cmd)
		if err != nil {
			return nil, err
		}
		c.ptmx = ptmx
		c.stdin = ptmx
		out = ptmx
	} else {
		cmd.SysProcAttr = backgroundSysProcAttr()
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, err
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, err
		}
		c.stdin = stdin
		out = stdout
		if err := cmd.Start(); err != nil {
			return nil, err
		}
	}

	c.drained.Add(2)
	go c.drainStderr(stderr)
	go c.readOutput(out)
	go c.writeLoop()
	go func() {
		// Wait must not run before the pipes are drained or trailing
		// output is lost.
		c.drained.Wait()
		err := cmd.Wait()
		c.closeWrites()
		c.waitCh <- err
	}()

	return c, nil
}

// Prompt returns the ready sentinel frames split on.
func (c *Conn) Prompt() string {
	return c.cfg.Prompt
}

// Chunks returns the channel raw debugger output is delivered on. It is
// closed when the subprocess stops producing output.
func (c *Conn) Chunks() <-chan []byte {
	return c.chunks
}

// Send queues one command line for delivery to the debugger. Sending
// never blocks, so a caller may queue a whole batch of commands while it
// is still consuming the replies to the previous one.
func (c *Conn) Send(line string) error {
	if logflags.GdbWire() {
		c.logWire("<-", line)
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.wclosed {
		return errors.New("debugger connection closed")
	}
	c.wqueue = append(c.wqueue, line...)
	c.wqueue = append(c.wqueue, '\n')
	c.wcond.Signal()
	return nil
}

func (c *Conn) writeLoop() {
	for {
		c.wmu.Lock()
		for len(c.wqueue) == 0 && !c.wclosed {
			c.wcond.Wait()
		}
		if len(c.wqueue) == 0 {
			c.wmu.Unlock()
			return
		}
		buf := c.wqueue
		c.wqueue = nil
		c.wmu.Unlock()
		if _, err := c.stdin.Write(buf); err != nil {
			c.log.Debugf("write: %v", err)
			c.closeWrites()
			return
		}
	}
}

func (c *Conn) closeWrites() {
	c.wmu.Lock()
	c.wclosed = true
	c.wmu.Unlock()
	c.wcond.Broadcast()
}

// Wait returns after the subprocess has terminated and all of its output
// has been delivered, reporting the exit error if any.
func (c *Conn) Wait() error {
	c.waitOnce.Do(func() { c.waitErr = <-c.waitCh })
	return c.waitErr
}

// Kill forcibly terminates the debugger subprocess.
func (c *Conn) Kill() {
	if c.cmd.Process != nil {
		c.cmd.Process.Kill()
	}
	if c.ptmx != nil {
		c.ptmx.Close()
	}
}

// Close kills the subprocess and waits for its termination.
func (c *Conn) Close() error {
	c.Kill()
	return c.Wait()
}

func (c *Conn) readOutput(r io.Reader) {
	defer c.drained.Done()
	defer close(c.chunks)
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if logflags.GdbWire() {
				c.logWire("->", string(chunk))
			}
			c.chunks <- chunk
		}
		if err != nil {
			// A pty master errors instead of returning io.EOF when the
			// child exits, both mean the stream is done.
			return
		}
	}
}

func (c *Conn) drainStderr(r io.Reader) {
	defer c.drained.Done()
	logger := logflags.GdbOutputLogger()
	scan := bufio.NewScanner(r)
	for scan.Scan() {
		logger.Debugf("%s", scan.Text())
	}
}

func (c *Conn) logWire(dir, s string) {
	partial := false
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
		partial = true
	}
	if len(s) > wireMaxLen {
		s = s[:wireMaxLen]
		partial = true
	}
	if partial {
		c.log.Debugf("%s %s...", dir, s)
	} else {
		c.log.Debugf("%s %s", dir, s)
	}
}
