package model

import (
	openai2 "github.com/sashabaranov/go-openai"
)

// IsTerminal reports whether a run in status s will not change any more.
func IsTerminal(s openai2.RunStatus) bool {
	switch s {
	case openai2.RunStatusCompleted,
		openai2.RunStatusFailed,
		openai2.RunStatusCancelled,
		openai2.RunStatusExpired:
		return true
	}
	return false
}

// IsFailure reports whether s ends the turn without a reply. requires_action counts
// as a failure because the assistant is created without tools.
func IsFailure(s openai2.RunStatus) bool {
	switch s {
	case openai2.RunStatusFailed,
		openai2.RunStatusCancelled,
		openai2.RunStatusExpired,
		openai2.RunStatusRequiresAction:
		return true
	}
	return false
}
