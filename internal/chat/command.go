package chat

import "strings"

type CmdKind int

const (
	CmdChat CmdKind = iota
	CmdNick
	CmdRooms
	CmdJoin
	CmdMyRoom
	CmdPersonal
	CmdHelp
	CmdQuit
	CmdInvalid
)

// Command is the parsed form of one client input line. Name carries the
// argument of /nick and /join and the recipient of /personal; Text carries
// chat and personal payloads.
type Command struct {
	Kind CmdKind
	Name string
	Text string
}

// HelpLines is the static /help response, one directive per line.
var HelpLines = []string{
	"/nick <nickname> to change nickname",
	"/rooms to see list of rooms",
	"/join <room> to join room",
	"/myroom to see your room",
	"/personal <nick> <message> to send personal message",
}

// verbs maps a slash command verb to its argument parser. A parser returns a
// CmdInvalid command on wrong argument count; the unknown-verb fallthrough is
// the single default case in ParseLine.
var verbs = map[string]func(args []string) Command{
	"/nick": func(args []string) Command {
		if len(args) < 1 {
			return Command{Kind: CmdInvalid}
		}
		return Command{Kind: CmdNick, Name: args[0]}
	},
	"/rooms": func([]string) Command {
		return Command{Kind: CmdRooms}
	},
	"/join": func(args []string) Command {
		if len(args) != 1 {
			return Command{Kind: CmdInvalid}
		}
		return Command{Kind: CmdJoin, Name: args[0]}
	},
	"/myroom": func([]string) Command {
		return Command{Kind: CmdMyRoom}
	},
	"/personal": func(args []string) Command {
		if len(args) < 2 {
			return Command{Kind: CmdInvalid}
		}
		return Command{Kind: CmdPersonal, Name: args[0], Text: strings.Join(args[1:], " ")}
	},
	"/help": func([]string) Command {
		return Command{Kind: CmdHelp}
	},
}

// ParseLine classifies one decoded input line. Verbs are matched
// case-sensitively; anything not starting with "/" is chat text, except the
// exact line "quit" which ends the session.
func ParseLine(line string) Command {
	line = strings.TrimRight(line, "\r\n")

	if line == "quit" {
		return Command{Kind: CmdQuit}
	}
	if !strings.HasPrefix(line, "/") {
		return Command{Kind: CmdChat, Text: line}
	}

	fields := strings.Fields(line)
	parse, ok := verbs[fields[0]]
	if !ok {
		return Command{Kind: CmdInvalid}
	}
	return parse(fields[1:])
}
