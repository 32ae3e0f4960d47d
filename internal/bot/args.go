package bot

import (
	"fmt"
	"regexp"
	"strings"
)

// Tokens are whitespace-separated except that balanced single or double
// quotes group one argument. No escape processing inside quotes.
var splitPattern = regexp.MustCompile(`"[^"]+"|'[^']+'|\S+`)

const quoteChars = `'"`

// shellSplit splits a command tail into arguments. Unbalanced quotes are
// an error reported back to the user.
func shellSplit(text string) ([]string, error) {
	var args []string
	for _, loc := range splitPattern.FindAllStringIndex(text, -1) {
		match := text[loc[0]:loc[1]]
		arg := strings.Trim(match, quoteChars)

		removed := len(match) - len(arg)
		if removed != 0 && removed != 2 {
			return nil, fmt.Errorf("Badly quoted arguments after position %d", loc[0])
		}
		args = append(args, arg)
	}
	return args, nil
}
