// Package command turns typed input into session commands and session
// events into user-facing lines.
package command

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/procodeeu/MyAffirms-sub000/internal/logger"
)

// Kind classifies what the user wants to do.
type Kind int

const (
	Unknown Kind = iota
	Play
	Pause
	Resume
	Next
	Stop
	Status
	List
	Select
	Ambience
	Volume
	Generate
	Help
	Quit
)

// String returns a human-readable command kind.
func (k Kind) String() string {
	switch k {
	case Play:
		return "play"
	case Pause:
		return "pause"
	case Resume:
		return "resume"
	case Next:
		return "next"
	case Stop:
		return "stop"
	case Status:
		return "status"
	case List:
		return "list"
	case Select:
		return "select"
	case Ambience:
		return "ambience"
	case Volume:
		return "volume"
	case Generate:
		return "generate"
	case Help:
		return "help"
	case Quit:
		return "quit"
	default:
		return "unknown"
	}
}

// Command is one parsed input line. Arg carries the argument for Select,
// Ambience and Volume, and the raw input for Unknown.
type Command struct {
	Kind Kind
	Arg  string
}

// Number parses Arg as a number.
func (c Command) Number() (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSuffix(c.Arg, "%"), 64)
	return v, err == nil
}

type rule struct {
	regex *regexp.Regexp
	kind  Kind
}

// Parser matches input against keyword patterns.
type Parser struct {
	log   *logger.Logger
	rules []rule
}

// NewParser creates a keyword parser.
func NewParser(log *logger.Logger) *Parser {
	p := &Parser{log: log}
	p.rules = []rule{
		{regexp.MustCompile(`(?i)^(play|start|begin|go)$`), Play},
		{regexp.MustCompile(`(?i)^(pause|wait|p)$`), Pause},
		{regexp.MustCompile(`(?i)^(resume|continue|unpause|r)$`), Resume},
		{regexp.MustCompile(`(?i)^(next|skip|n|s)$`), Next},
		{regexp.MustCompile(`(?i)^(stop|end|x)$`), Stop},
		{regexp.MustCompile(`(?i)^(status|where|progress|info)$`), Status},
		{regexp.MustCompile(`(?i)^(list|projects|ls)$`), List},
		{regexp.MustCompile(`(?i)^(generate|gen|render)$`), Generate},
		{regexp.MustCompile(`(?i)^(help|h|\?)$`), Help},
		{regexp.MustCompile(`(?i)^(quit|exit|q)$`), Quit},
	}
	return p
}

var (
	ambienceRe = regexp.MustCompile(`(?i)^(?:ambience|ambient|music|bg)\s+(\S+)$`)
	volumeRe   = regexp.MustCompile(`(?i)^(?:volume|vol|v)\s+(\d+(?:\.\d+)?%?)$`)
	selectRe   = regexp.MustCompile(`(?i)^(?:select|pick|open)\s+(.+)$`)
)

// Parse converts input into a command. Unrecognized input yields Unknown
// with the input as Arg.
func (p *Parser) Parse(input string) Command {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return Command{Kind: Unknown}
	}
	p.log.Debug("command: parsing %q", trimmed)

	if len(trimmed) <= 2 && isDigits(trimmed) {
		return Command{Kind: Select, Arg: trimmed}
	}

	for _, r := range p.rules {
		if r.regex.MatchString(trimmed) {
			return Command{Kind: r.kind}
		}
	}

	if m := ambienceRe.FindStringSubmatch(trimmed); m != nil {
		return Command{Kind: Ambience, Arg: strings.ToLower(m[1])}
	}
	if m := volumeRe.FindStringSubmatch(trimmed); m != nil {
		return Command{Kind: Volume, Arg: m[1]}
	}
	if m := selectRe.FindStringSubmatch(trimmed); m != nil {
		return Command{Kind: Select, Arg: strings.TrimSpace(m[1])}
	}

	p.log.Debug("command: no match for %q", trimmed)
	return Command{Kind: Unknown, Arg: trimmed}
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}
