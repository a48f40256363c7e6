package support

import (
	"bytes"
	"sort"
)

type stakeKey struct {
	pool  uint64
	owner [20]byte
}

// StakeLedger stores stake records keyed by (owner, pool). Records are never
// removed; a fully withdrawn stake stays behind as an inactive entry.
type StakeLedger struct {
	stakes map[stakeKey]*Stake
}

// NewStakeLedger constructs an empty ledger.
func NewStakeLedger() *StakeLedger {
	return &StakeLedger{stakes: make(map[stakeKey]*Stake)}
}

// Get returns a copy of the stake for owner in poolID.
func (l *StakeLedger) Get(owner [20]byte, poolID uint64) (*Stake, bool) {
	stake, ok := l.stakes[stakeKey{pool: poolID, owner: owner}]
	if !ok {
		return nil, false
	}
	return stake.Clone(), true
}

// Put stores a copy of stake.
func (l *StakeLedger) Put(stake *Stake) {
	if stake == nil {
		return
	}
	l.stakes[stakeKey{pool: stake.PoolID, owner: stake.Owner}] = stake.Clone()
}

// Len returns the number of records, active or not.
func (l *StakeLedger) Len() int { return len(l.stakes) }

// All returns copies of every record ordered by pool then owner.
func (l *StakeLedger) All() []*Stake {
	keys := make([]stakeKey, 0, len(l.stakes))
	for key := range l.stakes {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].pool != keys[j].pool {
			return keys[i].pool < keys[j].pool
		}
		return bytes.Compare(keys[i].owner[:], keys[j].owner[:]) < 0
	})
	out := make([]*Stake, 0, len(keys))
	for _, key := range keys {
		out = append(out, l.stakes[key].Clone())
	}
	return out
}
