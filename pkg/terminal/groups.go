package terminal

type commandGroup uint8

const (
	otherCmds commandGroup = iota
	scanCmds
	dataCmds
)

type commandGroupDescription struct {
	description string
	group       commandGroup
}

var commandGroupDescriptions = []commandGroupDescription{
	{"Running scans", scanCmds},
	{"Viewing extracted variables", dataCmds},
	{"Other commands", otherCmds},
}
