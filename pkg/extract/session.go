package extract

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	lru "github.com/hashicorp/golang-lru"

	"github.com/varscout/varscout/pkg/gdbconsole"
	"github.com/varscout/varscout/pkg/logflags"
	"github.com/varscout/varscout/pkg/primtype"
)

type sessionState int

const (
	stateStarting sessionState = iota
	stateDisablePaging
	stateDisableMethods
	stateDisableTypedefs
	stateListVariables
	stateResolveTypes
	stateResolveSizes
	stateResolveAddresses
	stateDone
)

const (
	cmdDisablePaging   = "set pagination off"
	cmdDisableMethods  = "set print type methods off"
	cmdDisableTypedefs = "set print type typedefs off"
	cmdListVariables   = "info variables"
	cmdQuit            = "q"

	endTypesMark = ":types-done:"
	endSizesMark = ":sizes-done:"
	endAddrsMark = ":addrs-done:"
)

// aggregateCacheSize bounds the cache of parsed aggregate bodies. The same
// struct type tends to recur across many variables of one image.
const aggregateCacheSize = 128

// session drives one extraction run. All fields except conn and aborted
// are owned by the run goroutine.
type session struct {
	owner *Extractor

	target       string
	expandArrays bool

	onResult   func([]Entry)
	onProgress func(int)

	mu      sync.Mutex
	conn    *gdbconsole.Conn
	aborted bool

	prompt string
	state  sessionState

	groups  []*fileGroup
	pending map[int][]*Variable

	// cursor matches reply frames back to the identifiers they were
	// queried for, positionally. A frame with no identifier left to match
	// is the batch terminator.
	cursor struct{ file, idx int }

	// discovered is set when a type pass stages new member entries,
	// forcing another pass.
	discovered bool

	total, done int

	bodyCache *lru.Cache

	decodeErrs *multierror.Error

	lastProgress int

	id        string
	log       logflags.Logger
	decodeLog logflags.Logger
}

func newSession(owner *Extractor, target string, expandArrays bool, onResult func([]Entry), onProgress func(int)) *session {
	cache, _ := lru.New(aggregateCacheSize)
	id := uuid.New().String()
	return &session{
		owner:        owner,
		target:       target,
		expandArrays: expandArrays,
		onResult:     onResult,
		onProgress:   onProgress,
		pending:      make(map[int][]*Variable),
		bodyCache:    cache,
		id:           id,
		log:          logflags.SessionLogger().WithField("session", id),
		decodeLog:    logflags.DecodeLogger().WithField("session", id),
	}
}

func (s *session) run() {
	conn, err := gdbconsole.Launch(gdbconsole.Config{
		Path:   s.owner.cfg.GdbPath,
		Args:   s.owner.cfg.GdbArgs,
		Prompt: s.owner.cfg.Prompt,
		UsePty: s.owner.cfg.UsePty,
	}, s.target)
	if err != nil {
		s.log.Errorf("could not launch debugger: %v", err)
		s.finish()
		return
	}
	s.prompt = conn.Prompt()

	s.mu.Lock()
	s.conn = conn
	aborted := s.aborted
	s.mu.Unlock()
	if aborted {
		conn.Kill()
	}

	s.log.Debugf("extracting variables from %s", s.target)

	split := gdbconsole.NewSplitter(s.prompt)
	for chunk := range conn.Chunks() {
		for _, frame := range split.Feed(chunk) {
			s.handleFrame(frame)
		}
	}
	if err := conn.Wait(); err != nil && s.state != stateDone {
		s.log.Debugf("debugger exited early: %v", err)
	}
	s.finish()
}

func (s *session) abort() {
	s.mu.Lock()
	s.aborted = true
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		conn.Kill()
	}
}

func (s *session) send(cmd string) {
	if err := s.conn.Send(cmd); err != nil {
		s.log.Errorf("could not send %q: %v", cmd, err)
	}
}

// handleFrame advances the state machine by one reply frame. Every command
// produces exactly one frame, so replies correlate to commands by position
// alone.
func (s *session) handleFrame(frame string) {
	payload := strings.TrimSuffix(frame, s.prompt)
	payload = strings.ReplaceAll(payload, "\r", "")

	switch s.state {
	case stateStarting:
		s.progress(2)
		if s.owner.cfg.UsePty {
			// A debugger on a terminal pages long output, which would
			// stall the prompt.
			s.send(cmdDisablePaging)
			s.state = stateDisablePaging
		} else {
			s.send(cmdDisableMethods)
			s.state = stateDisableMethods
		}
	case stateDisablePaging:
		s.send(cmdDisableMethods)
		s.state = stateDisableMethods
	case stateDisableMethods:
		s.progress(4)
		s.send(cmdDisableTypedefs)
		s.state = stateDisableTypedefs
	case stateDisableTypedefs:
		s.progress(6)
		s.send(cmdListVariables)
		s.state = stateListVariables
	case stateListVariables:
		var skipped []string
		s.groups, skipped = parseListing(payload, s.expandArrays)
		s.noteSkipped(skipped)
		s.log.Debugf("listing: %d files, %d variables", len(s.groups), s.countVars())
		s.progress(10)
		s.beginTypePass()
	case stateResolveTypes:
		s.typeFrame(payload)
	case stateResolveSizes:
		s.sizeFrame(payload)
	case stateResolveAddresses:
		s.addrFrame(payload)
	case stateDone:
	}
}

// beginTypePass queries the type of every identifier that does not have a
// leaf type yet and arms the cursor. The trailing echo guarantees one
// closing frame after the last reply of the pass.
func (s *session) beginTypePass() {
	s.state = stateResolveTypes
	s.discovered = false
	s.cursor.file, s.cursor.idx = 0, 0
	n := 0
	for _, g := range s.groups {
		for _, v := range g.vars {
			if v.needsType() {
				s.send("ptype " + v.queryExpr())
				n++
			}
		}
	}
	s.send("echo " + endTypesMark + `\n`)
	s.log.Debugf("type pass: %d queries", n)
	s.progress(15)
}

func (s *session) typeFrame(payload string) {
	v, fileIdx := s.advance((*Variable).needsType)
	if v == nil {
		s.mergePending()
		if s.discovered {
			s.beginTypePass()
			return
		}
		s.beginSizePass()
		return
	}
	s.resolveTypeReply(payload, v, fileIdx)
}

// mergePending folds the member entries staged during a type pass into
// their file groups, dropping the aggregate entries they replace. Staging
// keeps the groups stable while reply frames are still being correlated.
func (s *session) mergePending() {
	for i, g := range s.groups {
		keep := g.vars[:0]
		for _, v := range g.vars {
			if !v.expanded {
				keep = append(keep, v)
			}
		}
		g.vars = append(keep, s.pending[i]...)
	}
	s.pending = make(map[int][]*Variable)
}

func (s *session) beginSizePass() {
	if s.expandArrays {
		expandArrayEntries(s.groups)
	}
	s.state = stateResolveSizes
	s.cursor.file, s.cursor.idx = 0, 0
	s.total, s.done = 0, 0
	for _, g := range s.groups {
		for _, v := range g.vars {
			if v.needsSize() {
				s.send("print sizeof(" + v.Name + ")")
				s.total++
			}
		}
	}
	s.send("echo " + endSizesMark + `\n`)
	s.log.Debugf("size pass: %d queries", s.total)
	s.progress(25)
}

func (s *session) sizeFrame(payload string) {
	v, _ := s.advance((*Variable).needsSize)
	if v == nil {
		s.beginAddressPass()
		return
	}
	v.sizeDone = true
	size, ok := parseSizeReply(payload)
	if ok {
		v.Kind = primtype.Classify(v.typeText(), size)
		if v.Kind == primtype.KindUnknown {
			s.decodeLog.Debugf("unclassifiable type %q (size %d) for %s", v.typeText(), size, v.Name)
		}
	} else {
		s.decodeFailure("size", v.Name, payload)
	}
	s.done++
	s.progress(25 + 35*s.done/s.total)
}

func (s *session) beginAddressPass() {
	s.state = stateResolveAddresses
	s.cursor.file, s.cursor.idx = 0, 0
	s.total, s.done = 0, 0
	for _, g := range s.groups {
		for _, v := range g.vars {
			if v.needsAddr() {
				s.send("print &" + v.Name)
				s.total++
			}
		}
	}
	s.send("echo " + endAddrsMark + `\n`)
	s.log.Debugf("address pass: %d queries", s.total)
}

func (s *session) addrFrame(payload string) {
	v, _ := s.advance((*Variable).needsAddr)
	if v == nil {
		s.state = stateDone
		s.send(cmdQuit)
		return
	}
	v.addrDone = true
	addr, ok := parseAddrReply(payload)
	if ok {
		v.Addr = addr
		v.addrSet = true
	} else {
		s.decodeFailure("address", v.Name, payload)
	}
	s.done++
	s.progress(60 + 40*s.done/s.total)
}

// advance returns the next variable at or after the cursor for which pred
// holds, along with its file index, moving the cursor just past it. A nil
// return means the current frame is the batch terminator.
func (s *session) advance(pred func(*Variable) bool) (*Variable, int) {
	for s.cursor.file < len(s.groups) {
		g := s.groups[s.cursor.file]
		for s.cursor.idx < len(g.vars) {
			v := g.vars[s.cursor.idx]
			s.cursor.idx++
			if pred(v) {
				return v, s.cursor.file
			}
		}
		s.cursor.file++
		s.cursor.idx = 0
	}
	return nil, 0
}

// finish delivers the result exactly once, with whatever was resolved by
// the time the debugger terminated.
func (s *session) finish() {
	entries := s.collect()
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	if err := s.decodeErrs.ErrorOrNil(); err != nil {
		s.log.Debugf("%d declarations or replies could not be decoded", len(s.decodeErrs.Errors))
		s.decodeLog.Debugf("decode failures: %v", err)
	}
	s.log.Debugf("extracted %d variables from %s", len(entries), s.target)

	s.progress(100)
	s.owner.endSession(s)
	s.onResult(entries)
}

func (s *session) collect() []Entry {
	entries := make([]Entry, 0, s.countVars())
	for _, g := range s.groups {
		for _, v := range g.vars {
			if v.expanded || !v.addrSet || v.Kind == primtype.KindUnknown {
				continue
			}
			entries = append(entries, Entry{
				Name:    v.Name,
				Address: fmt.Sprintf("0x%08x", v.Addr),
				Kind:    v.Kind,
			})
		}
	}
	return entries
}

func (s *session) countVars() int {
	n := 0
	for _, g := range s.groups {
		n += len(g.vars)
	}
	return n
}

// progress reports pct through the callback, strictly increasing and at
// most once per value.
func (s *session) progress(pct int) {
	if s.onProgress == nil || pct <= s.lastProgress {
		return
	}
	s.lastProgress = pct
	s.onProgress(pct)
}

func (s *session) noteSkipped(skipped []string) {
	for _, sk := range skipped {
		s.decodeErrs = multierror.Append(s.decodeErrs, fmt.Errorf("declaration skipped: %s", sk))
		s.decodeLog.Debugf("declaration skipped: %s", sk)
	}
}

func (s *session) decodeFailure(what, ident, payload string) {
	s.decodeErrs = multierror.Append(s.decodeErrs,
		fmt.Errorf("%s reply for %s: %q", what, ident, truncPayload(payload)))
	s.decodeLog.Debugf("could not decode %s reply for %s", what, ident)
}

func truncPayload(payload string) string {
	payload = strings.TrimSpace(payload)
	if len(payload) > 60 {
		return payload[:60] + "..."
	}
	return payload
}

// parseSizeReply extracts the measured byte count from a sizeof reply such
// as "$3 = 4", the decimal after the last equals sign.
func parseSizeReply(payload string) (int, bool) {
	i := strings.LastIndex(payload, "= ")
	if i < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(payload[i+2:]))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// parseAddrReply extracts the first hexadecimal token from an address
// reply such as "$4 = (int *) 0x20000010 <counter>".
func parseAddrReply(payload string) (uint64, bool) {
	i := strings.Index(payload, "0x")
	if i < 0 {
		return 0, false
	}
	rest := payload[i+2:]
	end := 0
	for end < len(rest) && isHexDigit(rest[end]) {
		end++
	}
	if end == 0 {
		return 0, false
	}
	addr, err := strconv.ParseUint(rest[:end], 16, 64)
	if err != nil {
		return 0, false
	}
	return addr, true
}

func isHexDigit(b byte) bool {
	return b >= '0' && b <= '9' || b >= 'a' && b <= 'f' || b >= 'A' && b <= 'F'
}

// typePayload extracts the rendered type from a ptype reply, the text
// after the first "type = " marker.
func typePayload(payload string) (string, bool) {
	const marker = "type = "
	i := strings.Index(payload, marker)
	if i < 0 {
		return "", false
	}
	return payload[i+len(marker):], true
}
