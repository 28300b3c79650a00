package common

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"

	cdperrors "cdpvault/core/errors"
	"cdpvault/core/events"
)

// Wards is the allow-list of addresses permitted to call the privileged
// operations of a component.
type Wards struct {
	module  string
	members map[common.Address]bool
}

// NewWards returns an allow-list for module with the given initial members.
func NewWards(module string, initial ...common.Address) *Wards {
	w := &Wards{module: module, members: make(map[common.Address]bool)}
	for _, addr := range initial {
		w.members[addr] = true
	}
	return w
}

// Require fails with ErrNotAuthorized unless caller is a ward.
func (w *Wards) Require(caller common.Address) error {
	if w == nil || !w.members[caller] {
		return cdperrors.ErrNotAuthorized
	}
	return nil
}

// IsWard reports membership.
func (w *Wards) IsWard(addr common.Address) bool {
	return w != nil && w.members[addr]
}

// Rely adds usr on behalf of caller. A ward may deny itself, after which the
// slot can only be restored by another ward.
func (w *Wards) Rely(j *Journal, caller, usr common.Address) error {
	return w.set(j, caller, usr, true)
}

// Deny removes usr on behalf of caller.
func (w *Wards) Deny(j *Journal, caller, usr common.Address) error {
	return w.set(j, caller, usr, false)
}

func (w *Wards) set(j *Journal, caller, usr common.Address, member bool) error {
	if err := w.Require(caller); err != nil {
		return err
	}
	if member {
		AssignKey(j, w.members, usr, true)
	} else {
		DeleteKey(j, w.members, usr)
	}
	j.Emit(events.WardUpdated{Module: w.module, Usr: usr, Authorized: member})
	return nil
}

// List returns the members in address order.
func (w *Wards) List() []common.Address {
	if w == nil {
		return nil
	}
	out := make([]common.Address, 0, len(w.members))
	for addr := range w.members {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Cmp(out[k]) < 0 })
	return out
}

// Restore replaces the members, used when loading a snapshot.
func (w *Wards) Restore(members []common.Address) {
	w.members = make(map[common.Address]bool, len(members))
	for _, addr := range members {
		w.members[addr] = true
	}
}
