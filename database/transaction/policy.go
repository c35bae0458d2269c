// Package transaction runs units of work on a borrowed connection under a
// commit policy and releases the connection exactly once on every path.
package transaction

import (
	"fmt"
	"strings"
)

// Policy selects when work performed by a unit of work is committed.
type Policy int

const (
	// AutoCommit commits every statement as it runs.
	AutoCommit Policy = iota
	// SingleTransaction commits once on completion and rolls back on error or
	// cancellation.
	SingleTransaction
	// PerEventCommit commits after each emitted item has been delivered.
	PerEventCommit
)

func (p Policy) String() string {
	switch p {
	case AutoCommit:
		return "autocommit"
	case SingleTransaction:
		return "single"
	case PerEventCommit:
		return "perevent"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// manual reports whether the policy runs the connection in manual-commit mode.
func (p Policy) manual() bool {
	return p == SingleTransaction || p == PerEventCommit
}

// ParsePolicy resolves the configuration spelling of a policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "autocommit", "auto":
		return AutoCommit, nil
	case "single", "transaction", "singletransaction":
		return SingleTransaction, nil
	case "perevent", "per-event", "pereventcommit":
		return PerEventCommit, nil
	}
	return AutoCommit, fmt.Errorf("unknown transaction policy %q", s)
}

// State is the lifecycle position of one execution.
type State int32

const (
	Idle State = iota
	ConnectionAcquired
	ModeSet
	Running
	Committed
	RolledBack
	Closed
)

var stateNames = [...]string{"idle", "connection-acquired", "mode-set", "running", "committed", "rolled-back", "closed"}

func (s State) String() string {
	if int(s) >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}
