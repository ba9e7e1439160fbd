package server

import (
	"fmt"
	"strings"
)

// Command is a parsed command line (spec §4.8 parse_command): a verb word
// plus direct-object phrase, preposition, and indirect-object phrase, in
// the classic MOO shape "verb dobj prep iobj".
type Command struct {
	Raw   string
	Verb  string
	DObj  string
	Prep  string
	IObj  string
	Args  []string // every word after Verb, unparsed
}

// prepositions is the closed set of recognized prepositions a command line
// can split on, ordered longest-first so "in front of" matches before "in".
var prepositions = []string{
	"in front of", "on top of", "with", "using", "at", "to", "in", "inside", "into",
	"on", "onto", "from", "out of", "through", "over", "under", "behind",
	"beside", "for", "about", "is", "as", "off of", "off",
}

// ParseCommand splits a raw line into verb/dobj/prep/iobj per spec §4.8
// (adapted from the teacher's command parser; quoting is not honored here,
// matching the plain-split behavior of the load-bearing parse_command).
func ParseCommand(line string) (Command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Command{}, fmt.Errorf("empty command")
	}
	words := strings.Fields(line)
	cmd := Command{Raw: line, Verb: words[0], Args: words[1:]}

	rest := strings.Join(words[1:], " ")
	for _, p := range prepositions {
		idx := indexWord(rest, p)
		if idx < 0 {
			continue
		}
		cmd.DObj = strings.TrimSpace(rest[:idx])
		cmd.Prep = p
		cmd.IObj = strings.TrimSpace(rest[idx+len(p):])
		return cmd, nil
	}
	cmd.DObj = rest
	return cmd, nil
}

// indexWord finds p as a whole-word substring of s, or -1.
func indexWord(s, p string) int {
	for i := 0; i+len(p) <= len(s); i++ {
		if s[i:i+len(p)] != p {
			continue
		}
		leftOK := i == 0 || s[i-1] == ' '
		rightOK := i+len(p) == len(s) || s[i+len(p)] == ' '
		if leftOK && rightOK {
			return i
		}
	}
	return -1
}
