package kvstore

import (
	"math/rand"
	"os"
	"time"
)

// nodeRand is a persistent, per-node random source used to jitter periodic
// full-sync scheduling: peers are synced with on a jittered interval to
// avoid thundering-herd sync storms.
//
// A fixed interval with no jitter is fine for a single ticker but becomes
// a synchronization bug once many peers' tickers start in lockstep.
// Seeding a single *rand.Rand once per node from wall-clock time and pid,
// rather than reseeding (or calling the global rand.Float64 from multiple
// goroutines), keeps the source both unsynchronized across nodes and safe
// under this core's single-actor event loop.
type nodeRand struct {
	r *rand.Rand
}

func newNodeRand() *nodeRand {
	seed := time.Now().UnixNano() ^ int64(os.Getpid())
	return &nodeRand{r: rand.New(rand.NewSource(seed))}
}

// jitter returns base scaled by a random factor in [1-frac, 1+frac].
func (n *nodeRand) jitter(base time.Duration, frac float64) time.Duration {
	if frac <= 0 {
		return base
	}
	delta := (n.r.Float64()*2 - 1) * frac
	return time.Duration(float64(base) * (1 + delta))
}
