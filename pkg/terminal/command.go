package terminal

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/varscout/varscout/pkg/extract"
	"github.com/varscout/varscout/pkg/filterscript"
)

type cmdfunc func(t *Term, args string) error

type command struct {
	aliases        []string
	builtinAliases []string
	group          commandGroup
	helpMsg        string
	cmdFn          cmdfunc
}

// Returns true if the command string matches one of the aliases for this command
func (c command) match(cmdstr string) bool {
	for _, v := range c.aliases {
		if v == cmdstr {
			return true
		}
	}
	return false
}

// Commands represents the commands for the varscout terminal process.
type Commands struct {
	cmds []command
}

// byFirstAlias will sort by the first
// alias of a command.
type byFirstAlias []command

func (a byFirstAlias) Len() int           { return len(a) }
func (a byFirstAlias) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a byFirstAlias) Less(i, j int) bool { return a[i].aliases[0] < a[j].aliases[0] }

// ExtractCommands returns a Commands struct with default commands defined.
func ExtractCommands() *Commands {
	c := &Commands{}

	c.cmds = []command{
		{aliases: []string{"help", "h"}, cmdFn: c.help, helpMsg: `Prints the help message.

	help [command]

Type "help" followed by the name of a command for more information about it.`},
		{aliases: []string{"scan", "s"}, group: scanCmds, cmdFn: scan, helpMsg: `Extracts the variables of the target executable.

	scan [path]

Runs the debugger against the target, resolving every global and static
variable down to its primitive members. Without an argument the target
given on the command line is scanned again. The result replaces the
current variable list.`},
		{aliases: []string{"vars", "v"}, group: dataCmds, cmdFn: vars, helpMsg: `Lists the extracted variables.

	vars [substring]

Prints name, address, kind and size of every extracted variable. With an
argument only variables whose name contains the substring are listed.`},
		{aliases: []string{"info", "i"}, group: dataCmds, cmdFn: info, helpMsg: `Prints one variable.

	info <name>

Prints the address, kind and size of the named variable.`},
		{aliases: []string{"filter"}, group: dataCmds, cmdFn: filter, helpMsg: `Filters the variable list through a script.

	filter <path>

Loads a Starlark script defining keep(v) and drops every variable the
script rejects from the current list. Scan again to restore the full
list.`},
		{aliases: []string{"save"}, group: dataCmds, cmdFn: save, helpMsg: `Writes the variable list to a file.

	save <path>

The format follows the file extension, .csv for comma-separated values
and JSON otherwise.`},
		{aliases: []string{"config"}, cmdFn: configureCmd, helpMsg: `Changes configuration parameters.

	config -list

Show all configuration parameters.

	config -save

Saves the configuration file to disk, overwriting the current configuration file.

	config <parameter> <value>

Changes the value of a configuration parameter.`},
		{aliases: []string{"exit", "quit", "q"}, cmdFn: exitCommand, helpMsg: `Exit the program.`},
	}

	sort.Sort(byFirstAlias(c.cmds))
	return c
}

var errNoCmd = errors.New("command not available")

func noCmdAvailable(t *Term, args string) error {
	return errNoCmd
}

func nullCommand(t *Term, args string) error {
	return nil
}

// Register custom commands. Expects cf to be a func of type cmdfunc,
// returning only an error.
func (c *Commands) Register(cmdstr string, cf cmdfunc, helpMsg string) {
	for _, v := range c.cmds {
		if v.match(cmdstr) {
			v.cmdFn = cf
			return
		}
	}

	c.cmds = append(c.cmds, command{aliases: []string{cmdstr}, cmdFn: cf, helpMsg: helpMsg})
}

// Find will look up the command function for the given command input.
// If it cannot find the command it will default to noCmdAvailable().
// If the command is an empty string it will replay the last command.
func (c *Commands) Find(cmdstr string) cmdfunc {
	// If <enter> use last command, if there was one.
	if cmdstr == "" {
		return nullCommand
	}

	for _, v := range c.cmds {
		if v.match(cmdstr) {
			return v.cmdFn
		}
	}

	return noCmdAvailable
}

// Call takes a command and executes it.
func (c *Commands) Call(cmdstr string, t *Term) error {
	vals := strings.SplitN(strings.TrimSpace(cmdstr), " ", 2)
	cmdname := vals[0]
	var args string
	if len(vals) > 1 {
		args = strings.TrimSpace(vals[1])
	}
	return c.Find(cmdname)(t, args)
}

// Merge takes aliases defined in the config struct and merges them with the default
// aliases.
func (c *Commands) Merge(allAliases map[string][]string) {
	for i := range c.cmds {
		if c.cmds[i].builtinAliases != nil {
			c.cmds[i].aliases = append(c.cmds[i].aliases[:0], c.cmds[i].builtinAliases...)
		}
	}
	for i := range c.cmds {
		if aliases, ok := allAliases[c.cmds[i].aliases[0]]; ok {
			if c.cmds[i].builtinAliases == nil {
				c.cmds[i].builtinAliases = make([]string, len(c.cmds[i].aliases))
				copy(c.cmds[i].builtinAliases, c.cmds[i].aliases)
			}
			c.cmds[i].aliases = append(c.cmds[i].aliases, aliases...)
		}
	}
}

func (c *Commands) help(t *Term, args string) error {
	if args != "" {
		for _, cmd := range c.cmds {
			for _, alias := range cmd.aliases {
				if alias == args {
					fmt.Println(cmd.helpMsg)
					return nil
				}
			}
		}
		return errNoCmd
	}

	fmt.Println("The following commands are available:")

	for _, cgd := range commandGroupDescriptions {
		fmt.Printf("\n%s:\n", cgd.description)
		w := new(tabwriter.Writer)
		w.Init(os.Stdout, 0, 8, 0, '-', 0)
		for _, cmd := range c.cmds {
			if cmd.group != cgd.group {
				continue
			}
			h := cmd.helpMsg
			if idx := strings.Index(h, "\n"); idx >= 0 {
				h = h[:idx]
			}
			if len(cmd.aliases) > 1 {
				fmt.Fprintf(w, "    %s (alias: %s) \t %s\n", cmd.aliases[0], strings.Join(cmd.aliases[1:], " | "), h)
			} else {
				fmt.Fprintf(w, "    %s \t %s\n", cmd.aliases[0], h)
			}
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	fmt.Println()
	fmt.Println("Type help followed by a command for full documentation.")
	return nil
}

func scan(t *Term, args string) error {
	target := t.target
	if args != "" {
		target = args
	}

	done := make(chan []extract.Entry, 1)
	status := t.extractor.Start(target, t.conf.ExpandArrays,
		func(entries []extract.Entry) { done <- entries },
		func(pct int) {
			if !t.dumb {
				fmt.Printf("\rscanning %s... %3d%%", target, pct)
			}
		})
	if status != extract.StatusOK {
		return fmt.Errorf("cannot scan %s: %s", target, status)
	}

	entries := <-done
	if !t.dumb {
		fmt.Printf("\r\033[K")
	}
	t.target = target
	t.setResult(entries)
	fmt.Printf("scanned %s: %d variables\n", target, len(entries))
	return nil
}

func vars(t *Term, args string) error {
	if t.last == nil {
		return errors.New("no scan results, run scan first")
	}
	t.stdout.PageMaybe(nil)

	w := new(tabwriter.Writer)
	w.Init(t.stdout, 0, 8, 2, ' ', 0)
	matched := 0
	for _, e := range t.last {
		if args != "" && !strings.Contains(e.Name, args) {
			continue
		}
		matched++
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", e.Name, e.Address, e.Kind, e.Kind.Size())
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if args != "" {
		fmt.Fprintf(t.stdout, "%d of %d variables\n", matched, len(t.last))
	}
	return nil
}

func info(t *Term, args string) error {
	if args == "" {
		return errors.New("wrong number of arguments: info <name>")
	}
	if t.last == nil {
		return errors.New("no scan results, run scan first")
	}
	for _, e := range t.last {
		if e.Name != args {
			continue
		}
		t.Println("name: ", e.Name)
		t.Println("address: ", e.Address)
		t.Println("kind: ", e.Kind.String())
		t.Println("size: ", fmt.Sprintf("%d", e.Kind.Size()))
		return nil
	}
	return fmt.Errorf("no variable named %q", args)
}

func filter(t *Term, args string) error {
	if args == "" {
		return errors.New("wrong number of arguments: filter <path>")
	}
	if t.last == nil {
		return errors.New("no scan results, run scan first")
	}
	f, err := filterscript.Load(args)
	if err != nil {
		return err
	}
	before := len(t.last)
	t.setResult(f.Apply(t.last))
	fmt.Printf("kept %d of %d variables\n", len(t.last), before)
	return nil
}

func save(t *Term, args string) error {
	if args == "" {
		return errors.New("wrong number of arguments: save <path>")
	}
	if t.last == nil {
		return errors.New("no scan results, run scan first")
	}

	var buf []byte
	var err error
	if strings.EqualFold(filepath.Ext(args), ".csv") {
		buf, err = marshalCSV(t.last)
	} else {
		buf, err = json.MarshalIndent(t.last, "", "\t")
	}
	if err != nil {
		return err
	}
	if err := os.WriteFile(args, buf, 0644); err != nil {
		return err
	}
	fmt.Printf("wrote %s to %s\n", humanize.Bytes(uint64(len(buf))), args)
	return nil
}

func marshalCSV(entries []extract.Entry) ([]byte, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	w.Write([]string{"name", "address", "kind", "size"})
	for _, e := range entries {
		w.Write([]string{e.Name, e.Address, e.Kind.String(), fmt.Sprintf("%d", e.Kind.Size())})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return []byte(sb.String()), nil
}

func exitCommand(t *Term, args string) error {
	return ExitRequestError{}
}

// ExitRequestError is returned when the user
// exits varscout.
type ExitRequestError struct{}

func (ere ExitRequestError) Error() string {
	return ""
}

func (c *Commands) executeFile(t *Term, name string) error {
	fh, err := os.Open(name)
	if err != nil {
		return err
	}
	defer fh.Close()

	scanner := bufio.NewScanner(fh)
	lineno := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lineno++

		if line == "" || line[0] == '#' {
			continue
		}

		if err := c.Call(line, t); err != nil {
			if _, isExitRequest := err.(ExitRequestError); isExitRequest {
				return err
			}
			fmt.Printf("%s:%d: %v\n", name, lineno, err)
		}
	}

	return scanner.Err()
}
