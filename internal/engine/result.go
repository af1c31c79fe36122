package engine

import (
	"fmt"
	"strings"

	"updock/internal/image"
	"updock/internal/ledger"
)

// Result is the outcome for one target. It carries its own target identity
// so the caller never needs shared "current target" state to report it.
type Result struct {
	// Name is the logical name the target is filed under in the ledger:
	// the container name on the manual path, the service name on the
	// compose path.
	Name  string
	Image string

	// Identity is the identity the decision compared against or deployed.
	// PriorIdentity is what was running before a recreate was attempted;
	// it is the recovery handle when the recreate fails.
	Identity      image.Identity
	PriorIdentity image.Identity

	Action ledger.Action
	Phase  Phase
	Err    error
}

// Failed reports whether this target ended in a failure outcome.
func (r Result) Failed() bool { return r.Action.Failed() }

// Summary aggregates one invocation's per-target results. Targets run
// sequentially and fail independently; the summary only collects.
type Summary struct {
	Results []Result
}

// Err returns nil when no target failed, otherwise an error naming every
// failed target. Individual outcomes stay inspectable through the ledger
// regardless.
func (s Summary) Err() error {
	var failed []string
	for _, r := range s.Results {
		if r.Failed() {
			failed = append(failed, fmt.Sprintf("%s (%s)", r.Name, r.Action))
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d targets failed: %s", len(failed), len(s.Results), strings.Join(failed, ", "))
}
