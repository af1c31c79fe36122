package engine

import (
	"updock/internal/image"
	"updock/internal/ledger"
)

// Decide chooses what to do with one target.
//
// The rules apply in strict priority order and compare content identities,
// never tag strings:
//
//  1. The pulled reference resolved to no identity: pull-fail.
//  2. The running identity equals the pulled identity: skip-pinned. The
//     target is already correct and nothing may recreate it, explicit
//     override or not.
//  3. The running identity has drifted from what the managing declaration
//     specifies and no explicit override was requested: skip-mismatch.
//     Someone changed the target out of band; silently clobbering that
//     change is worse than doing nothing.
//  4. Otherwise: update. An explicit override beats drift protection but
//     never rule 2.
func Decide(pulled, current image.Identity, override, drift bool) ledger.Action {
	if pulled == "" {
		return ledger.ActionPullFail
	}
	if current != "" && current == pulled {
		return ledger.ActionSkipPinned
	}
	if drift && !override {
		return ledger.ActionSkipMismatch
	}
	return ledger.ActionUpdate
}
