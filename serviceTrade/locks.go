package serviceTrade

import (
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
)

const defaultLockStripes = 256

// Locks serializes operations touching the same entities. Keys hash onto a
// fixed set of mutex stripes; a caller locks all its stripes at once in
// ascending order, so two operations can never wait on each other in a cycle.
type Locks struct {
	stripes []sync.Mutex
}

func NewLocks(stripes int) *Locks {
	if stripes <= 0 {
		stripes = defaultLockStripes
	}
	return &Locks{stripes: make([]sync.Mutex, stripes)}
}

// Acquire blocks until every key is held and returns the release func.
func (l *Locks) Acquire(keys ...string) (release func()) {
	idx := l.stripesFor(keys)
	for _, i := range idx {
		l.stripes[i].Lock()
	}

	return func() {
		for j := len(idx) - 1; j >= 0; j-- {
			l.stripes[idx[j]].Unlock()
		}
	}
}

func (l *Locks) stripesFor(keys []string) []int {
	seen := make(map[int]struct{}, len(keys))
	idx := make([]int, 0, len(keys))
	for _, k := range keys {
		i := int(xxhash.Sum64String(k) % uint64(len(l.stripes)))
		if _, ok := seen[i]; ok {
			continue
		}
		seen[i] = struct{}{}
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx
}

func assetLock(symbol string) string {
	return "asset/" + symbol
}

func accountLock(address string) string {
	return "account/" + address
}

const (
	assetIndexLock = "index/assets"
	operatorsLock  = "operators"
)
