package bot

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/roselinebot/roseline/internal/vndb"
)

const (
	helpText     = "Available commands: .ping, .help, .vn, .hook, .set_hook, .del_hook, .del_vn, .ignore, .ignore_list"
	setHookUsage = "Usage: <title> <version> <code>"
	delHookUsage = "Usage: <title> <version>"
	ignoreUsage  = "Usage: <name>"

	// maxRefs caps how many embedded references one message may expand.
	maxRefs = 5
)

// The boundary class includes \p{Zs} because RE2's \s is ASCII-only and
// Japanese chat routinely separates words with U+3000.
var (
	extractCmd = regexp.MustCompile(`^\s*\.(\S+)(\s+(.+))?`)
	extractRef = regexp.MustCompile(`(^|vndb\.org/|[\s\p{Zs}])([vcrpu])(\d+)`)
)

// Command is one parsed chat message. The concrete type says what the
// dispatcher should do with it.
type Command interface {
	isCommand()
}

// Text is an immediate reply needing no workflow.
type Text struct{ Text string }

// GetVN resolves a title against the remote service.
type GetVN struct{ Title string }

// GetHook looks up stored hooks for a reference or title.
type GetHook struct{ Target string }

// SetHook stores a hook code for one version of a VN.
type SetHook struct{ Target, Version, Code string }

// DelHook removes the hook for one version of a VN.
type DelHook struct{ Target, Version string }

// DelVN removes a VN and all of its hooks.
type DelVN struct{ Target string }

// Ignore toggles a speaker on the ignore list.
type Ignore struct{ Name string }

// IgnoreList prints the current ignore list.
type IgnoreList struct{}

// Ref is one embedded remote object reference. AddURL is false when the
// reference was already part of a vndb.org URL in the message.
type Ref struct {
	Kind   vndb.RefKind
	ID     uint64
	AddURL bool
}

// Refs expands embedded references, in message order.
type Refs struct{ Refs []Ref }

func (Text) isCommand()       {}
func (GetVN) isCommand()      {}
func (GetHook) isCommand()    {}
func (SetHook) isCommand()    {}
func (DelHook) isCommand()    {}
func (DelVN) isCommand()      {}
func (Ignore) isCommand()     {}
func (IgnoreList) isCommand() {}
func (Refs) isCommand()       {}

// ParseCommand turns a raw message into a Command. The second return is
// false when the message is neither a known dot-command nor contains any
// reference, in which case it is silently ignored. Verbs are
// case-sensitive.
func ParseCommand(text string) (Command, bool) {
	if m := extractCmd.FindStringSubmatch(text); m != nil {
		return parseVerb(m[1], m[3])
	}
	return parseRefs(text)
}

func parseVerb(verb, arg string) (Command, bool) {
	arg = strings.TrimSpace(arg)
	switch verb {
	case "ping":
		return Text{Text: "pong"}, true
	case "help":
		return Text{Text: helpText}, true
	case "vn":
		if arg == "" {
			return Text{Text: "Which VN...?"}, true
		}
		return GetVN{Title: arg}, true
	case "hook":
		if arg == "" {
			return Text{Text: "For which VN...?"}, true
		}
		return GetHook{Target: arg}, true
	case "del_vn":
		if arg == "" {
			return Text{Text: "For which VN...?"}, true
		}
		return DelVN{Target: arg}, true
	case "set_hook":
		if arg == "" {
			return Text{Text: setHookUsage}, true
		}
		args, err := shellSplit(arg)
		if err != nil {
			return Text{Text: fmt.Sprintf("ごめんなさい、エラー: %s", err)}, true
		}
		if len(args) != 3 {
			return Text{Text: fmt.Sprintf("Invalid number of arguments %d. Expected 3", len(args))}, true
		}
		return SetHook{Target: args[0], Version: args[1], Code: args[2]}, true
	case "del_hook":
		if arg == "" {
			return Text{Text: delHookUsage}, true
		}
		args, err := shellSplit(arg)
		if err != nil {
			return Text{Text: fmt.Sprintf("ごめんなさい、エラー: %s", err)}, true
		}
		if len(args) != 2 {
			return Text{Text: fmt.Sprintf("Invalid number of arguments %d. Expected 2", len(args))}, true
		}
		return DelHook{Target: args[0], Version: args[1]}, true
	case "ignore":
		if arg == "" {
			return Text{Text: ignoreUsage}, true
		}
		return Ignore{Name: arg}, true
	case "ignore_list":
		return IgnoreList{}, true
	default:
		return nil, false
	}
}

// parseRefs scans free text for references anchored at start of string,
// whitespace, or a vndb.org/ URL, capped at maxRefs.
func parseRefs(text string) (Command, bool) {
	matches := extractRef.FindAllStringSubmatch(text, -1)
	if matches == nil {
		return nil, false
	}

	var refs []Ref
	for _, m := range matches {
		kind, ok := vndb.ParseRefKind(m[2][0])
		if !ok {
			continue
		}
		id, err := strconv.ParseUint(m[3], 10, 64)
		if err != nil || id == 0 {
			continue
		}
		refs = append(refs, Ref{
			Kind:   kind,
			ID:     id,
			AddURL: strings.TrimSpace(m[1]) == "",
		})
		if len(refs) == maxRefs {
			break
		}
	}
	if len(refs) == 0 {
		return nil, false
	}
	return Refs{Refs: refs}, true
}
