package proto

import (
	"strings"
	"unicode"
)

// Commands exchanged between server and client. Command tokens are case
// sensitive; the lower-case exit is what clients send on disconnect.
const (
	CmdExit      = "EXIT"
	CmdExitLower = "exit"
	CmdList      = "LIST"
	CmdMsg       = "MSG"
	CmdJoin      = "JOIN"

	CmdWaitFor = "WAIT_FOR"
	CmdOK      = "OK"
	CmdHist    = "HIST"
	CmdRefused = "REFUSED"
	CmdEnd     = "END"
	CmdEndAll  = "END."
)

const (
	// AliasPrompt is sent to every new connection before admission.
	AliasPrompt = CmdWaitFor + " alias"

	// JoinPrompt answers JOIN; invitations are not implemented beyond it.
	JoinPrompt = "Enter the alias of the person to invite"

	aliasSeparator   = ":"
	broadcastMarker  = " >> "
	historySeparator = "\n"
)

// Decode splits raw text on its first whitespace run. The argument is
// everything after that run, verbatim, and is "" when there is none.
func Decode(raw string) (command, argument string) {
	i := strings.IndexFunc(raw, unicode.IsSpace)
	if i < 0 {
		return raw, ""
	}
	return raw[:i], strings.TrimLeftFunc(raw[i:], unicode.IsSpace)
}

// List builds "LIST a:b:c:" with a trailing separator after every alias.
func List(aliases []string) string {
	var b strings.Builder
	b.WriteString(CmdList)
	b.WriteByte(' ')
	for _, alias := range aliases {
		b.WriteString(alias)
		b.WriteString(aliasSeparator)
	}
	return b.String()
}

// Broadcast formats a chat line relayed on behalf of from.
func Broadcast(from, text string) string {
	return from + broadcastMarker + text
}

// Echo is the reply to a command the server does not know.
func Echo(command, argument string) string {
	return strings.ToUpper(command + " " + argument)
}

// Hist wraps backlog lines for a newly admitted client.
func Hist(lines []string) string {
	return CmdHist + " " + strings.Join(lines, historySeparator)
}

// Refused tells a pending client why its alias was not accepted.
func Refused(reason string) string {
	return CmdRefused + " " + reason
}

// SplitList parses the argument of a LIST reply back into aliases.
func SplitList(argument string) []string {
	parts := strings.Split(argument, aliasSeparator)
	aliases := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			aliases = append(aliases, p)
		}
	}
	return aliases
}
