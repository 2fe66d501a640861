// Package terminal implements the interactive console: it reads commands,
// dispatches them and renders extraction results.
package terminal

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/derekparker/trie"
	"github.com/go-delve/liner"
	"github.com/mattn/go-colorable"

	"github.com/varscout/varscout/pkg/config"
	"github.com/varscout/varscout/pkg/extract"
)

const (
	historyFile                 string = ".varscout_history"
	terminalHighlightEscapeCode string = "\033[%2dm"
	terminalResetEscapeCode     string = "\033[0m"
)

const (
	ansiBlack   = 30
	ansiRed     = 31
	ansiGreen   = 32
	ansiYellow  = 33
	ansiBlue    = 34
	ansiMagenta = 35
	ansiCyan    = 36
	ansiWhite   = 37
	ansiBrWhite = 97
)

// Term represents the terminal running varscout.
type Term struct {
	extractor *extract.Extractor
	target    string
	conf      *config.Config
	prompt    string
	line      *liner.State
	cmds      *Commands
	dumb      bool
	stdout    *pagingWriter
	InitFile  string

	// last holds the entries of the most recent scan, after any filter
	// command has been applied.
	last    []extract.Entry
	varTrie *trie.Trie

	quittingMutex sync.Mutex
	quitting      bool
}

// New returns a new Term attached to an extractor and a target executable.
func New(extractor *extract.Extractor, target string, conf *config.Config) *Term {
	cmds := ExtractCommands()
	if conf != nil && conf.Aliases != nil {
		cmds.Merge(conf.Aliases)
	}

	if conf == nil {
		conf = &config.Config{}
	}

	var w io.Writer

	dumb := strings.ToLower(os.Getenv("TERM")) == "dumb"
	if dumb {
		w = os.Stdout
	} else {
		// Translates ANSI escapes for the Windows console, a plain
		// passthrough elsewhere.
		w = colorable.NewColorableStdout()
	}

	return &Term{
		extractor: extractor,
		target:    target,
		conf:      conf,
		prompt:    "(varscout) ",
		line:      liner.NewLiner(),
		cmds:      cmds,
		dumb:      dumb,
		stdout:    &pagingWriter{w: w},
	}
}

// Close returns the terminal to its previous mode.
func (t *Term) Close() {
	t.line.Close()
}

func (t *Term) sigintGuard(ch <-chan os.Signal) {
	for range ch {
		if t.extractor.Busy() {
			fmt.Printf("received SIGINT, aborting scan\n")
			t.extractor.Abort()
			continue
		}
		fmt.Printf("received SIGINT\n")
	}
}

// Run begins running varscout in the terminal.
func (t *Term) Run() (int, error) {
	defer t.Close()

	// Abort an in-flight scan on SIGINT instead of dying.
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT)
	go t.sigintGuard(ch)

	t.line.SetCompleter(func(line string) (c []string) {
		if idx := strings.LastIndex(line, " "); idx >= 0 {
			// Complete the argument with known variable names.
			if t.varTrie == nil {
				return nil
			}
			prefix, word := line[:idx+1], line[idx+1:]
			if word == "" {
				return nil
			}
			for _, name := range t.varTrie.PrefixSearch(word) {
				c = append(c, prefix+name)
			}
			return
		}
		for _, cmd := range t.cmds.cmds {
			for _, alias := range cmd.aliases {
				if strings.HasPrefix(alias, strings.ToLower(line)) {
					c = append(c, alias)
				}
			}
		}
		return
	})

	fullHistoryFile, err := config.GetConfigFilePath(historyFile)
	if err != nil {
		fmt.Printf("Unable to load history file: %v.", err)
	}

	f, err := os.Open(fullHistoryFile)
	if err != nil {
		f, err = os.Create(fullHistoryFile)
		if err != nil {
			fmt.Printf("Unable to open history file: %v. History will not be saved for this session.", err)
		}
	}

	t.line.ReadHistory(f)
	f.Close()
	fmt.Println("Type 'help' for list of commands.")

	if t.InitFile != "" {
		err := t.cmds.executeFile(t, t.InitFile)
		if err != nil {
			if _, ok := err.(ExitRequestError); ok {
				return t.handleExit()
			}
			fmt.Fprintf(os.Stderr, "Error executing init file: %s\n", err)
		}
	}

	for {
		cmdstr, err := t.promptForInput()
		if err != nil {
			if err == io.EOF {
				fmt.Println("exit")
				return t.handleExit()
			}
			return 1, fmt.Errorf("Prompt for input failed.\n")
		}

		if err := t.cmds.Call(cmdstr, t); err != nil {
			if _, ok := err.(ExitRequestError); ok {
				return t.handleExit()
			}
			t.quittingMutex.Lock()
			quitting := t.quitting
			t.quittingMutex.Unlock()
			if quitting {
				return t.handleExit()
			}
			fmt.Fprintf(os.Stderr, "Command failed: %s\n", err)
		}
		t.stdout.Reset()
	}
}

// Println prints a line to the terminal with a highlighted prefix.
func (t *Term) Println(prefix, str string) {
	if !t.dumb {
		terminalColorEscapeCode := fmt.Sprintf(terminalHighlightEscapeCode, ansiBlue)
		prefix = fmt.Sprintf("%s%s%s", terminalColorEscapeCode, prefix, terminalResetEscapeCode)
	}
	fmt.Fprintf(t.stdout, "%s%s\n", prefix, str)
}

// setResult installs a fresh scan result and rebuilds name completion.
func (t *Term) setResult(entries []extract.Entry) {
	t.last = entries
	t.varTrie = trie.New()
	for _, e := range entries {
		t.varTrie.Add(e.Name, nil)
	}
}

func (t *Term) promptForInput() (string, error) {
	l, err := t.line.Prompt(t.prompt)
	if err != nil {
		return "", err
	}

	l = strings.TrimSuffix(l, "\n")
	if l != "" {
		t.line.AppendHistory(l)
	}

	return l, nil
}

func (t *Term) handleExit() (int, error) {
	fullHistoryFile, err := config.GetConfigFilePath(historyFile)
	if err != nil {
		fmt.Println("Error saving history file:", err)
	} else {
		if f, err := os.OpenFile(fullHistoryFile, os.O_RDWR, 0666); err == nil {
			_, err = t.line.WriteHistory(f)
			if err != nil {
				fmt.Println("readline history error:", err)
			}
			f.Close()
		}
	}

	if t.extractor.Busy() {
		t.extractor.Abort()
	}
	return 0, nil
}
