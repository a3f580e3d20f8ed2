package mova

import (
	"slices"
	"strings"
)

// Capability is one thing a module declares it handles, with the services it
// needs to do so. The kernel refuses subscriptions outside the declared
// interests.
type Capability struct {
	Name             string
	Description      string
	Interest         InterestSet
	RequiredServices []string
}

// InterestSet filters events. Each non-empty field must match; empty fields
// match anything.
type InterestSet struct {
	Kinds []EventKind
	// CommandNames match case-insensitively.
	CommandNames     []string
	CallbackPrefixes []string
	// Sources match on the non-empty fields of each entry.
	Sources []EventSource
}

// Matches reports whether event passes every filter in i.
func (i InterestSet) Matches(event *Event) bool {
	if event == nil {
		return false
	}

	switch {
	case len(i.Kinds) > 0 && !slices.Contains(i.Kinds, event.Kind):
		return false
	case len(i.CommandNames) > 0 && (event.Command == nil || !slices.ContainsFunc(i.CommandNames, equalFold(event.Command.Name))):
		return false
	case len(i.CallbackPrefixes) > 0 && (event.Callback == nil || !prefixedByAny(event.Callback.Data, i.CallbackPrefixes)):
		return false
	case len(i.Sources) > 0 && !slices.ContainsFunc(i.Sources, sourceMatches(event.Source)):
		return false
	default:
		return true
	}
}

// Allows reports whether filter is at least as narrow as i, so a
// subscription using filter cannot see events outside i.
func (i InterestSet) Allows(filter InterestSet) bool {
	if len(i.Kinds) > 0 && !narrower(filter.Kinds, i.Kinds) {
		return false
	}
	if len(i.CommandNames) > 0 && !narrower(filter.CommandNames, i.CommandNames) {
		return false
	}
	if len(i.CallbackPrefixes) > 0 {
		if len(filter.CallbackPrefixes) == 0 {
			return false
		}
		for _, prefix := range filter.CallbackPrefixes {
			if !prefixedByAny(prefix, i.CallbackPrefixes) {
				return false
			}
		}
	}

	return true
}

// narrower reports whether filter is non-empty and drawn entirely from allowed.
func narrower[T comparable](filter, allowed []T) bool {
	if len(filter) == 0 {
		return false
	}

	return !slices.ContainsFunc(filter, func(item T) bool { return !slices.Contains(allowed, item) })
}

func equalFold(target string) func(string) bool {
	return func(candidate string) bool { return strings.EqualFold(candidate, target) }
}

func sourceMatches(target EventSource) func(EventSource) bool {
	return func(candidate EventSource) bool {
		return (candidate.Platform == "" || candidate.Platform == target.Platform) &&
			(candidate.ID == "" || candidate.ID == target.ID)
	}
}

func prefixedByAny(value string, prefixes []string) bool {
	return slices.ContainsFunc(prefixes, func(prefix string) bool { return strings.HasPrefix(value, prefix) })
}
