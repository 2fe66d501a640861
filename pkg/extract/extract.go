// Package extract discovers the global and static variables of a compiled
// executable by driving a debugger subprocess over its console protocol.
//
// A session walks the debugger through a fixed sequence: list variables,
// resolve every identifier's type (expanding aggregate members pass by
// pass until only leaf types remain), then measure each identifier's size
// and address. The result is a flat list of scalar entries, each with its
// full member path, its address and its primitive storage kind.
package extract

import (
	"fmt"
	"os"
	"sync"

	"github.com/varscout/varscout/pkg/logflags"
	"github.com/varscout/varscout/pkg/primtype"
)

// Status reports the outcome of a Start request.
type Status int

const (
	// StatusOK means the session was accepted and is running.
	StatusOK Status = iota
	// StatusFileNotFound means the target executable does not exist.
	StatusFileNotFound
	// StatusAlreadyRunning means another session is still in flight.
	StatusAlreadyRunning
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusFileNotFound:
		return "file not found"
	case StatusAlreadyRunning:
		return "already running"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Entry is one extracted variable.
type Entry struct {
	// Name is the full identifier, including member path and array index.
	Name string `json:"name"`
	// Address is the variable's address on the target, rendered as a
	// fixed-width lowercase hexadecimal literal.
	Address string `json:"address"`
	// Kind is the primitive storage kind of the variable.
	Kind primtype.Kind `json:"kind"`
}

// Config configures how an Extractor spawns and talks to the debugger.
type Config struct {
	// GdbPath is the debugger executable, "gdb" when empty.
	GdbPath string
	// GdbArgs are extra arguments placed before the target path.
	GdbArgs []string
	// Prompt is the ready sentinel, "(gdb) " when empty.
	Prompt string
	// UsePty drives the debugger through a pseudo terminal.
	UsePty bool
}

// Extractor runs extraction sessions against target executables. At most
// one session is in flight at a time.
type Extractor struct {
	cfg Config

	mu   sync.Mutex
	sess *session

	log logflags.Logger
}

// New returns an Extractor with the given configuration.
func New(cfg Config) *Extractor {
	return &Extractor{cfg: cfg, log: logflags.SessionLogger()}
}

// Start begins extracting variables from the executable at path and
// returns without waiting for the session. The result is delivered exactly
// once through onResult when the session completes, progress percentages
// are delivered through onProgress as the session advances. When
// expandArrays is set fixed-size arrays are listed element by element,
// otherwise only element zero of each array is reported.
//
// An in-flight session or a missing target fails immediately with an
// empty result and no subprocess is spawned.
func (x *Extractor) Start(path string, expandArrays bool, onResult func([]Entry), onProgress func(int)) Status {
	if onResult == nil {
		onResult = func([]Entry) {}
	}

	x.mu.Lock()
	if x.sess != nil {
		x.mu.Unlock()
		x.log.Errorf("extraction already in progress")
		onResult([]Entry{})
		return StatusAlreadyRunning
	}
	if _, err := os.Stat(path); err != nil {
		x.mu.Unlock()
		x.log.Errorf("target executable not found: %s", path)
		onResult([]Entry{})
		return StatusFileNotFound
	}
	s := newSession(x, path, expandArrays, onResult, onProgress)
	x.sess = s
	x.mu.Unlock()

	go s.run()
	return StatusOK
}

// Abort kills the in-flight session's debugger subprocess, if any. The
// session still completes through the normal path and delivers whatever it
// had resolved.
func (x *Extractor) Abort() {
	x.mu.Lock()
	s := x.sess
	x.mu.Unlock()
	if s != nil {
		s.abort()
	}
}

// Busy reports whether a session is in flight.
func (x *Extractor) Busy() bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.sess != nil
}

func (x *Extractor) endSession(s *session) {
	x.mu.Lock()
	if x.sess == s {
		x.sess = nil
	}
	x.mu.Unlock()
}
