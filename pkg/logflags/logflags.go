package logflags

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

var session = false
var gdbWire = false
var gdbOutput = false
var decode = false
var script = false

var logOut io.WriteCloser

func makeLogger(level logrus.Level, fields Fields) Logger {
	if loggerFactory != nil {
		return loggerFactory(level, fields, logOut)
	}
	logger := logrus.New()
	logger.Formatter = textFormatterInstance
	if logOut != nil {
		logger.Out = logOut
	}
	logger.Level = level
	entry := logger.WithFields(logrus.Fields(fields))
	return &logrusLogger{entry}
}

func makeFlaggableLogger(flag bool, fields Fields) Logger {
	level := logrus.ErrorLevel
	if flag {
		level = logrus.DebugLevel
	}
	return makeLogger(level, fields)
}

// Any returns true if any logging layer is enabled.
func Any() bool {
	return session || gdbWire || gdbOutput || decode || script
}

// Session returns true if the extraction session lifecycle should be logged.
func Session() bool {
	return session
}

// SessionLogger returns a logger for the extraction session lifecycle.
func SessionLogger() Logger {
	return makeFlaggableLogger(session, Fields{"layer": "session"})
}

// GdbWire returns true if every line exchanged with the debugger console
// should be logged.
func GdbWire() bool {
	return gdbWire
}

// GdbWireLogger returns a configured logger for the debugger console protocol.
func GdbWireLogger() Logger {
	return makeFlaggableLogger(gdbWire, Fields{"layer": "gdbconn"})
}

// GdbOutput returns true if the debugger's stderr stream should be logged
// instead of suppressed.
func GdbOutput() bool {
	return gdbOutput
}

// GdbOutputLogger returns a logger for the debugger's stderr stream.
func GdbOutputLogger() Logger {
	return makeFlaggableLogger(gdbOutput, Fields{"layer": "gdbout"})
}

// Decode returns true if declaration and reply decode failures should be
// logged.
func Decode() bool {
	return decode
}

// DecodeLogger returns a logger for declaration and reply decode failures.
func DecodeLogger() Logger {
	return makeFlaggableLogger(decode, Fields{"layer": "decode"})
}

// Script returns true if filter script evaluation should be logged.
func Script() bool {
	return script
}

// ScriptLogger returns a logger for filter script evaluation.
func ScriptLogger() Logger {
	return makeFlaggableLogger(script, Fields{"layer": "script"})
}

var errLogstrWithoutLog = errors.New("--log-output specified without --log")
var errLogDestWithoutLog = errors.New("--log-dest specified without --log")

// Setup sets the logging layer flags based on the contents of logstr and
// redirects output to logDest if non-empty.
func Setup(logFlag bool, logstr, logDest string) error {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	if !logFlag {
		log.SetOutput(io.Discard)
		if logstr != "" {
			return errLogstrWithoutLog
		}
		if logDest != "" {
			return errLogDestWithoutLog
		}
		return nil
	}
	if logDest != "" {
		n, err := strconv.Atoi(logDest)
		if err == nil {
			logOut = os.NewFile(uintptr(n), "varscout-log-dest")
		} else {
			fh, err := os.Create(logDest)
			if err != nil {
				return fmt.Errorf("could not create log destination: %v", err)
			}
			logOut = fh
		}
	}
	if logstr == "" {
		logstr = "session"
	}
	v := strings.Split(logstr, ",")
	for _, logcmd := range v {
		switch logcmd {
		case "session":
			session = true
		case "gdbwire":
			gdbWire = true
		case "gdbout":
			gdbOutput = true
		case "decode":
			decode = true
		case "script":
			script = true
		}
	}
	return nil
}

// Close closes the logger output redirection file, if any.
func Close() {
	if logOut != nil {
		logOut.Close()
	}
}
