package main

import (
	"os"

	"github.com/varscout/varscout/cmd/varscout/cmds"
	"github.com/varscout/varscout/pkg/version"
)

// Build is the git sha of this binaries build.
var Build string

func main() {
	if Build != "" {
		version.VarscoutVersion.Build = Build
	}
	if err := cmds.New(false).Execute(); err != nil {
		os.Exit(1)
	}
}
