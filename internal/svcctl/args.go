package svcctl

import "strings"

// Verbs understood by the control utility.
const (
	VerbCreate  = "create"
	VerbStart   = "start"
	VerbStop    = "stop"
	VerbDelete  = "delete"
	VerbQueryEx = "queryex"
)

// LocalSystem is the account a service runs under when no credential is given.
const LocalSystem = "LocalSystem"

const (
	passwordKey = "password="
	redacted    = "[REDACTED]"
)

// CreateArgs builds `create <id> binPath= "<path>" start= auto obj= <account> [password= <secret>]`.
// The binary path is quoted so paths with spaces survive the utility's own
// parsing.
func CreateArgs(id, binPath string, acct *Account) []string {
	args := []string{
		VerbCreate, id,
		"binPath=", `"` + binPath + `"`,
		"start=", "auto",
		"obj=", acct.principal(),
	}
	if acct.hasSecret() {
		args = append(args, passwordKey, acct.Secret.Reveal())
	}
	return args
}

// StartArgs builds `start <id>`.
func StartArgs(id string) []string { return []string{VerbStart, id} }

// StopArgs builds `stop <id>`.
func StopArgs(id string) []string { return []string{VerbStop, id} }

// DeleteArgs builds `delete <id>`.
func DeleteArgs(id string) []string { return []string{VerbDelete, id} }

// QueryArgs builds `queryex <id>`.
func QueryArgs(id string) []string { return []string{VerbQueryEx, id} }

// RedactArgs returns a copy of args that is safe to log: the value after a
// password= token, or joined to it, is replaced.
func RedactArgs(args []string) []string {
	out := make([]string, len(args))
	copy(out, args)
	for i := 0; i < len(out); i++ {
		a := out[i]
		switch {
		case strings.EqualFold(a, passwordKey):
			if i+1 < len(out) {
				out[i+1] = redacted
				i++
			}
		case len(a) > len(passwordKey) && strings.EqualFold(a[:len(passwordKey)], passwordKey):
			out[i] = a[:len(passwordKey)] + redacted
		}
	}
	return out
}

func verbAndService(args []string) (verb, service string) {
	if len(args) > 0 {
		verb = args[0]
	}
	if len(args) > 1 {
		service = args[1]
	}
	return verb, service
}
