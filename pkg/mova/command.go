package mova

import (
	"context"
	"fmt"
	"strings"
)

// CommandPrefix introduces a command in message text.
const CommandPrefix = "/"

// CommandSpec declares one module command registration.
type CommandSpec struct {
	// Name is the command name without prefix and mention suffix.
	Name string
	// Description is shown by help listings.
	Description string
}

// Validate checks command specification coherence.
func (s CommandSpec) Validate() error {
	name := NormalizeCommandName(s.Name)
	if name == "" {
		return fmt.Errorf("validate command spec: missing name")
	}
	if strings.ContainsAny(name, " \t\r\n@/") {
		return fmt.Errorf("validate command spec: invalid name %q", s.Name)
	}

	return nil
}

// CommandInvocation carries one validated command event payload.
type CommandInvocation struct {
	// Name is the normalized command name.
	Name string
	// Mention is the optional `@botname` suffix without the `@`.
	Mention string
	// Value stores the remaining tail text joined by spaces.
	Value string
	// SourceEventID identifies the inbound event that produced this command.
	SourceEventID string
	// RawInput stores the original inbound text.
	RawInput string
}

// CommandCandidate is a command-looking message before it is matched against
// a registered spec.
type CommandCandidate struct {
	Name    string
	Mention string
	Tokens  []string
}

// ParseCommandCandidate parses text of the form `/name[@mention] [tail...]`.
//
// matched is false when text does not start with the command prefix or the
// name is empty.
func ParseCommandCandidate(text string) (candidate CommandCandidate, matched bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], CommandPrefix) {
		return CommandCandidate{}, false
	}

	header := strings.TrimPrefix(fields[0], CommandPrefix)
	name, mention, _ := strings.Cut(header, "@")
	candidate.Name = NormalizeCommandName(name)
	candidate.Mention = strings.TrimSpace(mention)
	if candidate.Name == "" {
		return CommandCandidate{}, false
	}
	if len(fields) > 1 {
		candidate.Tokens = append([]string(nil), fields[1:]...)
	}

	return candidate, true
}

// Bind turns a candidate into an invocation for the given source event.
func (c CommandCandidate) Bind(sourceEvent *Event) (CommandInvocation, error) {
	if sourceEvent == nil {
		return CommandInvocation{}, fmt.Errorf("bind command %s: nil source event", c.Name)
	}
	invocation := CommandInvocation{
		Name:          c.Name,
		Mention:       c.Mention,
		Value:         strings.Join(c.Tokens, " "),
		SourceEventID: sourceEvent.ID,
	}
	if sourceEvent.Message != nil {
		invocation.RawInput = sourceEvent.Message.Text
	}

	return invocation, nil
}

// NormalizeCommandName lowercases and trims a command name.
func NormalizeCommandName(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// RegisteredCommand describes one runtime command registration entry.
type RegisteredCommand struct {
	// ModuleName identifies which module registered this command.
	ModuleName string
	// Command is the registered command specification.
	Command CommandSpec
}

// CommandCatalog provides read access to registered command specifications.
//
// Implementations must be concurrency-safe and return defensive copies.
type CommandCatalog interface {
	ListCommands(ctx context.Context) ([]RegisteredCommand, error)
}
