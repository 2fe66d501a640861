package cmds

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/cosiner/argv"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/varscout/varscout/pkg/config"
	"github.com/varscout/varscout/pkg/extract"
	"github.com/varscout/varscout/pkg/filterscript"
	"github.com/varscout/varscout/pkg/logflags"
	"github.com/varscout/varscout/pkg/terminal"
	"github.com/varscout/varscout/pkg/tui"
	"github.com/varscout/varscout/pkg/version"
)

var (
	// log is whether to log debug statements.
	log bool
	// logOutput is a comma separated list of components that should produce debug output.
	logOutput string
	// logDest is the file path or file descriptor where logs should go.
	logDest string
	// gdbPath is the debugger executable used to inspect targets.
	gdbPath string
	// gdbArgs is extra debugger arguments, quoted like a shell command line.
	gdbArgs string
	// usePty is whether to drive the debugger through a pseudo terminal.
	usePty bool
	// expandArrays is whether to list every element of fixed-size arrays.
	expandArrays bool
	// initFile is the path to the initialization file.
	initFile string
	// quiet suppresses the scan progress display.
	quiet bool
	// versionVerbose makes the version command print the module dependency list.
	versionVerbose bool

	// rootCommand is the root of the command tree.
	rootCommand *cobra.Command

	conf *config.Config
)

const varscoutCommandLongDesc = `Varscout lists the global and static variables of compiled executables.

Varscout drives a debugger subprocess over its console protocol to discover
every global identifier in the target, resolve aggregate types down to their
scalar members, and report each member's address and primitive storage kind.

The target executable must carry debug information.`

// New returns an initialized command tree.
func New(docCall bool) *cobra.Command {
	// Config setup and load.
	conf = config.LoadConfig()

	// Main varscout root command.
	rootCommand = &cobra.Command{
		Use:   "varscout",
		Short: "Varscout lists the global variables of compiled executables.",
		Long:  varscoutCommandLongDesc,
	}

	rootCommand.PersistentFlags().BoolVarP(&log, "log", "", false, "Enable debug logging.")
	rootCommand.PersistentFlags().StringVarP(&logOutput, "log-output", "", "", `Comma separated list of components that should produce debug output (see 'varscout help log')`)
	rootCommand.PersistentFlags().StringVarP(&logDest, "log-dest", "", "", "Writes logs to the specified file or file descriptor (see 'varscout help log').")
	rootCommand.PersistentFlags().StringVar(&gdbPath, "gdb", "", "Debugger executable used to inspect targets.")
	rootCommand.PersistentFlags().StringVar(&gdbArgs, "gdb-args", "", "Extra debugger arguments, quoted like a shell command line.")
	rootCommand.PersistentFlags().BoolVarP(&usePty, "use-pty", "", false, "Drive the debugger through a pseudo terminal instead of plain pipes.")
	rootCommand.PersistentFlags().BoolVarP(&expandArrays, "expand-arrays", "a", false, "List every element of fixed-size arrays instead of only element zero.")

	// 'scan' subcommand.
	scanCommand := &cobra.Command{
		Use:   "scan <path/to/binary>",
		Short: "Scan an executable and print its global variables.",
		Long: `Scan an executable and print its global variables.

Every identifier is reported with its full member path, its address and its
primitive storage kind. Variables whose type does not classify to a scalar
kind are skipped.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errors.New("you must provide a path to a binary")
			}
			return nil
		},
		Run: scanCmd,
	}
	scanCommand.Flags().StringP("format", "f", "table", "Output format, one of table, json or csv.")
	scanCommand.Flags().StringP("output", "o", "", "Write the result to the given file instead of standard output.")
	scanCommand.Flags().String("script", "", "Filter the result through the given Starlark script (see 'varscout help script').")
	scanCommand.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress the progress display.")
	rootCommand.AddCommand(scanCommand)

	// 'browse' subcommand.
	browseCommand := &cobra.Command{
		Use:   "browse <path/to/binary>",
		Short: "Inspect an executable's variables from a line oriented prompt.",
		Long: `Inspect an executable's variables from a line oriented prompt.

The prompt supports scanning, listing, filtering and saving results. Type
'help' at the prompt for the available commands.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errors.New("you must provide a path to a binary")
			}
			return nil
		},
		Run: browseCmd,
	}
	browseCommand.Flags().StringVar(&initFile, "init", "", "Init file, executed by the terminal client.")
	rootCommand.AddCommand(browseCommand)

	// 'tui' subcommand.
	tuiCommand := &cobra.Command{
		Use:   "tui <path/to/binary>",
		Short: "Inspect an executable's variables in a full-screen browser.",
		Long: `Inspect an executable's variables in a full-screen browser.

The browser scans the target immediately and presents the result as a
filterable, sortable table.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errors.New("you must provide a path to a binary")
			}
			return nil
		},
		Run: tuiCmd,
	}
	rootCommand.AddCommand(tuiCommand)

	// 'doctor' subcommand.
	doctorCommand := &cobra.Command{
		Use:   "doctor",
		Short: "Check that the configured debugger is usable.",
		Long: `Check that the configured debugger is usable.

Looks up the debugger executable and asks it for its version. A target
scan needs nothing beyond a debugger that passes this check.`,
		Run: doctorCmd,
	}
	rootCommand.AddCommand(doctorCommand)

	// 'version' subcommand.
	versionCommand := &cobra.Command{
		Use:   "version",
		Short: "Prints version.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Varscout Variable Scanner\n%s\n", version.VarscoutVersion)
			if versionVerbose {
				fmt.Printf("Build Details: %s\n", version.BuildInfo())
			}
		},
	}
	versionCommand.Flags().BoolVarP(&versionVerbose, "verbose", "v", false, "print verbose version info")
	rootCommand.AddCommand(versionCommand)

	rootCommand.AddCommand(&cobra.Command{
		Use:   "log",
		Short: "Help about logging flags.",
		Long: `Logging can be enabled by specifying the --log flag and using the
--log-output flag to select which components should produce logs.

The argument of --log-output must be a comma separated list of component
names selected from this list:


	session		Log session state transitions
	gdbwire		Log every line sent to the debugger
	gdbout		Log every line received from the debugger
	decode		Log declaration parsing and type classification
	script		Log filter script output

Additionally --log-dest can be used to specify where the logs should be
written.
If the argument is a number it will be interpreted as a file descriptor,
otherwise as a file path.

`,
	})

	rootCommand.AddCommand(&cobra.Command{
		Use:   "script",
		Short: "Help about filter scripts.",
		Long: `The scan --script flag and the terminal's filter command run each scanned
variable through a Starlark script. The script must define a function

	def keep(v):
	    return ...

which is called once per variable and drops the variable when it returns a
false value. The argument has the fields name, address, kind and size, for
example:

	def keep(v):
	    return v.kind != "uint8" and v.name.startswith("cfg")

A script that fails at runtime keeps every variable.

`,
	})

	rootCommand.AddCommand(&cobra.Command{
		Use:   "kinds",
		Short: "Help about storage kinds.",
		Long: `Every reported variable carries one of these storage kinds:

	uint8, int8	8 bit integers, bool and plain char
	uint16, int16	16 bit integers, enums and near pointers
	uint32, int32	32 bit integers and far pointers
	uint64, int64	64 bit integers
	float		32 bit floating point
	double		64 bit floating point

Aggregates never appear themselves, their scalar members are listed one
per entry under dotted names, array elements under bracketed names.
Variables whose type does not classify are logged and skipped.

`,
	})

	rootCommand.DisableAutoGenTag = true

	return rootCommand
}

func scanCmd(cmd *cobra.Command, args []string) {
	status := func() int {
		if err := logflags.Setup(log, logOutput, logDest); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 1
		}
		defer logflags.Close()

		var filter *filterscript.Filter
		if path := cmd.Flag("script").Value.String(); path != "" {
			var err error
			filter, err = filterscript.Load(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%v\n", err)
				return 1
			}
		}

		cfg, err := extractorConfig(conf)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 1
		}

		target := args[0]
		showProgress := !quiet && isatty.IsTerminal(os.Stderr.Fd())
		start := time.Now()

		done := make(chan []extract.Entry, 1)
		st := extract.New(cfg).Start(target, conf.ExpandArrays || expandArrays,
			func(entries []extract.Entry) { done <- entries },
			func(pct int) {
				if showProgress {
					fmt.Fprintf(os.Stderr, "\rscanning %s... %3d%%", target, pct)
				}
			})
		if st != extract.StatusOK {
			<-done
			fmt.Fprintf(os.Stderr, "cannot scan %s: %s\n", target, st)
			return 1
		}
		entries := <-done
		if showProgress {
			fmt.Fprintf(os.Stderr, "\n")
		}

		if filter != nil {
			entries = filter.Apply(entries)
		}

		buf, err := formatEntries(entries, cmd.Flag("format").Value.String())
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 1
		}

		if out := cmd.Flag("output").Value.String(); out != "" {
			if err := os.WriteFile(out, buf, 0644); err != nil {
				fmt.Fprintf(os.Stderr, "%v\n", err)
				return 1
			}
			fmt.Printf("wrote %d variables to %s\n", len(entries), out)
		} else {
			os.Stdout.Write(buf)
		}
		if !quiet {
			if fi, err := os.Stat(target); err == nil {
				fmt.Fprintf(os.Stderr, "scanned %d variables from %s (%s) in %s\n",
					len(entries), target, humanize.Bytes(uint64(fi.Size())),
					time.Since(start).Round(time.Millisecond))
			}
		}
		return 0
	}()
	os.Exit(status)
}

func browseCmd(cmd *cobra.Command, args []string) {
	status := func() int {
		if err := logflags.Setup(log, logOutput, logDest); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 1
		}
		defer logflags.Close()

		cfg, err := extractorConfig(conf)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 1
		}
		if _, err := os.Stat(args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 1
		}
		conf.ExpandArrays = conf.ExpandArrays || expandArrays

		term := terminal.New(extract.New(cfg), args[0], conf)
		term.InitFile = initFile
		status, err := term.Run()
		if err != nil {
			fmt.Println(err)
		}
		return status
	}()
	os.Exit(status)
}

func tuiCmd(cmd *cobra.Command, args []string) {
	status := func() int {
		if err := logflags.Setup(log, logOutput, logDest); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 1
		}
		defer logflags.Close()

		cfg, err := extractorConfig(conf)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 1
		}
		if _, err := os.Stat(args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 1
		}
		if err := tui.Run(extract.New(cfg), args[0], conf.ExpandArrays || expandArrays); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		return 0
	}()
	os.Exit(status)
}

func doctorCmd(cmd *cobra.Command, args []string) {
	status := func() int {
		cfg, err := extractorConfig(conf)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 1
		}
		gdb := cfg.GdbPath
		if gdb == "" {
			gdb = "gdb"
		}
		path, err := exec.LookPath(gdb)
		if err != nil {
			fmt.Printf("debugger %q not found in PATH\n", gdb)
			return 1
		}
		fmt.Printf("debugger: %s\n", path)
		out, err := exec.Command(path, "--version").Output()
		if err != nil {
			fmt.Printf("%s --version failed: %v\n", path, err)
			return 1
		}
		if i := bytes.IndexByte(out, '\n'); i >= 0 {
			out = out[:i]
		}
		fmt.Printf("version: %s\n", out)
		return 0
	}()
	os.Exit(status)
}

// extractorConfig merges the configuration file with the command line
// flags, flags win.
func extractorConfig(conf *config.Config) (extract.Config, error) {
	cfg := extract.Config{
		GdbPath: conf.GdbPath,
		Prompt:  conf.Prompt,
		UsePty:  conf.UsePty || usePty,
	}
	if gdbPath != "" {
		cfg.GdbPath = gdbPath
	}
	argstr := conf.GdbArgs
	if gdbArgs != "" {
		argstr = gdbArgs
	}
	if argstr != "" {
		extra, err := splitGdbArgs(argstr)
		if err != nil {
			return extract.Config{}, err
		}
		cfg.GdbArgs = extra
	}
	return cfg, nil
}

// splitGdbArgs splits a shell-quoted argument string into fields.
func splitGdbArgs(args string) ([]string, error) {
	v, err := argv.Argv(args,
		func(s string) (string, error) {
			return "", fmt.Errorf("backtick not supported in '%s'", s)
		},
		nil)
	if err != nil {
		return nil, err
	}
	if len(v) != 1 {
		return nil, fmt.Errorf("illegal debugger arguments '%s'", args)
	}
	return v[0], nil
}

func formatEntries(entries []extract.Entry, format string) ([]byte, error) {
	switch format {
	case "json":
		buf, err := json.MarshalIndent(entries, "", "\t")
		if err != nil {
			return nil, err
		}
		return append(buf, '\n'), nil
	case "csv":
		var sb strings.Builder
		w := csv.NewWriter(&sb)
		w.Write([]string{"name", "address", "kind", "size"})
		for _, e := range entries {
			w.Write([]string{e.Name, e.Address, e.Kind.String(), strconv.Itoa(e.Kind.Size())})
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, err
		}
		return []byte(sb.String()), nil
	case "table":
		var sb strings.Builder
		tw := tabwriter.NewWriter(&sb, 0, 8, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tADDRESS\tKIND\tSIZE")
		for _, e := range entries {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", e.Name, e.Address, e.Kind, e.Kind.Size())
		}
		tw.Flush()
		return []byte(sb.String()), nil
	}
	return nil, fmt.Errorf("unknown format %q", format)
}
