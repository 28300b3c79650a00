package vat

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"cdpvault/native/cdp/fixed"
)

type IlkEntry struct {
	Name string
	Ilk  Ilk
}

type UrnEntry struct {
	Ilk   string
	Owner common.Address
	Urn   Urn
}

type GemEntry struct {
	Ilk    string
	Owner  common.Address
	Amount *uint256.Int
}

type BalanceEntry struct {
	Owner  common.Address
	Amount *uint256.Int
}

type Delegation struct {
	Owner    common.Address
	Delegate common.Address
}

// Snapshot is the complete, deterministically ordered ledger state.
type Snapshot struct {
	Wards  []common.Address
	Live   bool
	Debt   *uint256.Int
	Vice   *uint256.Int
	Line   *uint256.Int
	Ilks   []IlkEntry
	Urns   []UrnEntry
	Gems   []GemEntry
	Stable []BalanceEntry
	Sin    []BalanceEntry
	Can    []Delegation
}

// Export captures the ledger state.
func (v *Vat) Export() Snapshot {
	snap := Snapshot{
		Wards: v.wards.List(),
		Live:  v.live,
		Debt:  fixed.Value(v.debt),
		Vice:  fixed.Value(v.vice),
		Line:  fixed.Value(v.line),
	}
	for _, name := range v.Ilks() {
		snap.Ilks = append(snap.Ilks, IlkEntry{Name: name, Ilk: v.ilks[name].Clone()})
		for _, owner := range v.Urns(name) {
			snap.Urns = append(snap.Urns, UrnEntry{Ilk: name, Owner: owner, Urn: v.urns[name][owner].Clone()})
		}
	}
	gemIlks := make([]string, 0, len(v.gem))
	for name := range v.gem {
		gemIlks = append(gemIlks, name)
	}
	sort.Strings(gemIlks)
	for _, name := range gemIlks {
		for _, entry := range balances(v.gem[name]) {
			snap.Gems = append(snap.Gems, GemEntry{Ilk: name, Owner: entry.Owner, Amount: entry.Amount})
		}
	}
	snap.Stable = balances(v.stable)
	snap.Sin = balances(v.sin)
	owners := make([]common.Address, 0, len(v.can))
	for owner := range v.can {
		owners = append(owners, owner)
	}
	sortAddresses(owners)
	for _, owner := range owners {
		delegates := make([]common.Address, 0, len(v.can[owner]))
		for usr, ok := range v.can[owner] {
			if ok {
				delegates = append(delegates, usr)
			}
		}
		sortAddresses(delegates)
		for _, usr := range delegates {
			snap.Can = append(snap.Can, Delegation{Owner: owner, Delegate: usr})
		}
	}
	return snap
}

// Restore replaces the ledger state with snap. Any pending journal entries
// are unaffected; callers restore outside of an operation.
func (v *Vat) Restore(snap Snapshot) {
	v.wards.Restore(snap.Wards)
	v.live = snap.Live
	v.debt = fixed.Value(snap.Debt)
	v.vice = fixed.Value(snap.Vice)
	v.line = fixed.Value(snap.Line)
	v.ilks = make(map[string]Ilk, len(snap.Ilks))
	for _, entry := range snap.Ilks {
		v.ilks[entry.Name] = entry.Ilk.Clone()
	}
	v.urns = make(map[string]map[common.Address]Urn)
	for _, entry := range snap.Urns {
		if v.urns[entry.Ilk] == nil {
			v.urns[entry.Ilk] = make(map[common.Address]Urn)
		}
		v.urns[entry.Ilk][entry.Owner] = entry.Urn.Clone()
	}
	v.gem = make(map[string]map[common.Address]*uint256.Int)
	for _, entry := range snap.Gems {
		if v.gem[entry.Ilk] == nil {
			v.gem[entry.Ilk] = make(map[common.Address]*uint256.Int)
		}
		v.gem[entry.Ilk][entry.Owner] = fixed.Value(entry.Amount)
	}
	v.stable = restoreBalances(snap.Stable)
	v.sin = restoreBalances(snap.Sin)
	v.can = make(map[common.Address]map[common.Address]bool)
	for _, d := range snap.Can {
		if v.can[d.Owner] == nil {
			v.can[d.Owner] = make(map[common.Address]bool)
		}
		v.can[d.Owner][d.Delegate] = true
	}
}

func balances(m map[common.Address]*uint256.Int) []BalanceEntry {
	owners := make([]common.Address, 0, len(m))
	for owner := range m {
		owners = append(owners, owner)
	}
	sortAddresses(owners)
	out := make([]BalanceEntry, 0, len(owners))
	for _, owner := range owners {
		out = append(out, BalanceEntry{Owner: owner, Amount: fixed.Value(m[owner])})
	}
	return out
}

func restoreBalances(entries []BalanceEntry) map[common.Address]*uint256.Int {
	out := make(map[common.Address]*uint256.Int, len(entries))
	for _, entry := range entries {
		out[entry.Owner] = fixed.Value(entry.Amount)
	}
	return out
}
