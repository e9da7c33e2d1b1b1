// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import (
	"strings"
	"time"
)

// MatchMode selects how observed application identifiers are compared
// against configured target entries.
type MatchMode string

const (
	// MatchExact requires a byte-for-byte, case-sensitive match.
	MatchExact MatchMode = "exact"
	// MatchSubstring matches when the lower-cased entry occurs anywhere
	// in the lower-cased observed identifier.
	MatchSubstring MatchMode = "substring"
)

// TargetSet is an immutable snapshot of the protected application entries
// plus the matching mode. It is replaced wholesale on config reload and
// never mutated in place, so concurrent readers never see a partial set.
type TargetSet struct {
	Entries []string
	Mode    MatchMode
}

// Match reports whether the observed identifier denotes a protected target,
// returning the configured entry that matched. Sessions are keyed by the
// configured entry, so "Notes - iCloud" and "Notes" collapse onto the same
// entry under substring mode.
func (s TargetSet) Match(identifier string) (string, bool) {
	switch s.Mode {
	case MatchExact:
		for _, e := range s.Entries {
			if e == identifier {
				return e, true
			}
		}
	default:
		lower := strings.ToLower(identifier)
		for _, e := range s.Entries {
			if e == "" {
				continue
			}
			if strings.Contains(lower, strings.ToLower(e)) {
				return e, true
			}
		}
	}
	return "", false
}

// Matches reports whether the identifier denotes a protected target.
func (s TargetSet) Matches(identifier string) bool {
	_, ok := s.Match(identifier)
	return ok
}

// EventKind identifies an application lifecycle transition.
type EventKind string

const (
	EventLaunched   EventKind = "launched"
	EventActivated  EventKind = "activated"
	EventTerminated EventKind = "terminated"
)

// WatchEvent is one lifecycle transition observed by a Detector.
// Identifier is the application display name or process name as the OS
// reports it, unfiltered; matching against the target set belongs to the
// lock controller.
type WatchEvent struct {
	Kind       EventKind
	Identifier string
	PID        int
	Handle     AppHandle
}

// ChallengeVerdict is the outcome class of one authentication challenge.
type ChallengeVerdict string

const (
	// ChallengeSuccess means the user proved ownership.
	ChallengeSuccess ChallengeVerdict = "success"
	// ChallengeFailure means the user failed or declined the challenge.
	ChallengeFailure ChallengeVerdict = "failure"
	// ChallengeUnavailable means no backend could evaluate the challenge.
	// The controller treats this like a failure - never fail open.
	ChallengeUnavailable ChallengeVerdict = "unavailable"
)

// ChallengeResult carries the verdict of one challenge plus a
// human-readable cause for failure/unavailable outcomes.
type ChallengeResult struct {
	Verdict ChallengeVerdict
	Cause   string
}

// Recovery policy names, shared by config and the policy implementations.
const (
	// RecoveryRestore hides the instance during the challenge and brings
	// it back on success.
	RecoveryRestore = "restore"
	// RecoveryRelaunch kills the instance up front and starts a fresh
	// one on success.
	RecoveryRelaunch = "relaunch"
)

// Succeeded reports whether the challenge passed.
func (r ChallengeResult) Succeeded() bool {
	return r.Verdict == ChallengeSuccess
}

// Daemon represents the running applockd daemon process.
type Daemon struct {
	PID        int
	StartedAt  time.Time
	AppVersion string
	Strategy   string
}

// RegistryEntry stores daemon state for CLI discovery (status/stop/reload).
// Persisted as a JSON file.
type RegistryEntry struct {
	Version       int    `json:"version"`
	PID           int    `json:"pid"`
	StartedAt     int64  `json:"started_at"`
	LastHeartbeat int64  `json:"last_heartbeat"`
	Mode          string `json:"mode,omitempty"`
	Strategy      string `json:"strategy,omitempty"`
	AppVersion    string `json:"app_version,omitempty"`
}
