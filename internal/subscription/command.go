// Package subscription turns inbound text messages into subscribe/unsubscribe
// transitions against the subscriber store.
package subscription

import (
	"strings"
)

// Command is the classified intent of one inbound message.
type Command int

const (
	// CommandHelp covers the help vocabulary and any unrecognized text.
	CommandHelp Command = iota
	CommandSubscribe
	CommandUnsubscribe
)

func (c Command) String() string {
	switch c {
	case CommandSubscribe:
		return "subscribe"
	case CommandUnsubscribe:
		return "unsubscribe"
	case CommandHelp:
		return "help"
	}
	return "unknown"
}

// Keywords is the vocabulary used by Classify. Matching is exact after
// trimming and lowercasing.
type Keywords struct {
	Subscribe string
	OptOut    []string
	Help      []string
}

// DefaultKeywords mirrors the carrier-standard opt-out words.
func DefaultKeywords() Keywords {
	return Keywords{
		Subscribe: "dad",
		OptOut:    []string{"stop", "stopall", "unsubscribe", "cancel", "end", "quit"},
		Help:      []string{"help", "info"},
	}
}

// Normalize trims surrounding whitespace and lowercases text.
func Normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// Classify maps already-normalized text to a command.
func (k Keywords) Classify(normalized string) Command {
	if normalized != "" && normalized == Normalize(k.Subscribe) {
		return CommandSubscribe
	}
	for _, w := range k.OptOut {
		if normalized == Normalize(w) {
			return CommandUnsubscribe
		}
	}
	return CommandHelp
}

// IsHelp reports whether normalized text is an explicit help keyword rather than
// unrecognized text. Both classify as CommandHelp.
func (k Keywords) IsHelp(normalized string) bool {
	for _, w := range k.Help {
		if normalized == Normalize(w) {
			return true
		}
	}
	return false
}

// AddressFormat is the accepted sender format: a fixed length starting with a
// country prefix (e.g. "+1" and 12 characters for US numbers).
type AddressFormat struct {
	Prefix string
	Length int
}

func (f AddressFormat) Valid(address string) bool {
	return len(address) == f.Length && strings.HasPrefix(address, f.Prefix)
}
