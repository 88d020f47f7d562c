package engine

import (
	"math"

	"github.com/bits-and-blooms/bitset"
)

// maxGraphLevel caps the level drawn for a node so link slices stay
// bounded even for degenerate random draws.
const maxGraphLevel = 31

// node is one vertex of the layered proximity graph. links[l] holds the
// neighbor slots at level l; a node participates in levels 0..len(links)-1.
type node struct {
	key   uint64
	links [][]uint32
}

func (n *node) level() int { return len(n.links) - 1 }

// searchCtx carries the decoded query and per-operation scratch buffers
// so traversal does not allocate per distance evaluation.
type searchCtx struct {
	query  []float32
	qwords []uint64

	kern  distanceFunc
	bkern bitDistanceFunc

	sa, sb []float32
	wa, wb []uint64
}

func (x *index) newSearchCtx(query []float32) *searchCtx {
	ctx := &searchCtx{
		query: query,
		sa:    make([]float32, x.dims),
		sb:    make([]float32, x.dims),
	}
	if isBitMetric(x.metric) {
		ctx.bkern = bitKernel(x.metric)
		ctx.qwords = packBits(query, x.vs.words)
		ctx.wa = make([]uint64, x.vs.words)
		ctx.wb = make([]uint64, x.vs.words)
	} else {
		ctx.kern = scalarKernel(x.metric)
	}
	return ctx
}

// distTo computes the distance from the context query to a stored slot.
func (x *index) distTo(ctx *searchCtx, slot uint32) float32 {
	if ctx.bkern != nil {
		return ctx.bkern(ctx.qwords, x.vs.wordsAt(int(slot), ctx.sa, ctx.wa))
	}
	return ctx.kern(ctx.query, x.vs.at(int(slot), ctx.sa))
}

// distBetween computes the distance between two stored slots.
func (x *index) distBetween(ctx *searchCtx, a, b uint32) float32 {
	if ctx.bkern != nil {
		return ctx.bkern(x.vs.wordsAt(int(a), ctx.sa, ctx.wa), x.vs.wordsAt(int(b), ctx.sb, ctx.wb))
	}
	return ctx.kern(x.vs.at(int(a), ctx.sa), x.vs.at(int(b), ctx.sb))
}

// randomLevel draws a node level from the standard exponential
// distribution parameterized by 1/ln(connectivity).
func (x *index) randomLevel() int {
	lvl := int(math.Floor(-math.Log(x.rng.Float64()) * x.ml))
	if lvl > maxGraphLevel {
		lvl = maxGraphLevel
	}
	return lvl
}

// descend greedily walks from the entry point down to toLevel+1,
// returning the best candidate found for the layer below.
func (x *index) descend(ctx *searchCtx, ep candidate, fromLevel, toLevel int) candidate {
	for l := fromLevel; l > toLevel; l-- {
		for improved := true; improved; {
			improved = false
			for _, nb := range x.nodes[ep.slot].links[l] {
				if d := x.distTo(ctx, nb); d < ep.dist {
					ep = candidate{slot: nb, dist: d}
					improved = true
				}
			}
		}
	}
	return ep
}

// searchLayer runs the beam search at one level. allow gates which slots
// may enter the result set; every reachable slot still participates in
// routing so filtered searches terminate on the visited set. The
// returned heap orders worst-first and holds at most ef candidates.
func (x *index) searchLayer(ctx *searchCtx, ep candidate, ef, level int, allow func(uint32) bool) *candidateHeap {
	visited := bitset.New(uint(len(x.nodes)))
	visited.Set(uint(ep.slot))

	candidates := newCandidateHeap(false)
	candidates.push(ep)

	results := newCandidateHeap(true)
	if allow == nil || allow(ep.slot) {
		results.push(ep)
	}

	for candidates.len() > 0 {
		c, _ := candidates.pop()
		if worst, ok := results.top(); ok && results.len() >= ef && c.dist > worst.dist {
			break
		}
		for _, nb := range x.nodes[c.slot].links[level] {
			if visited.Test(uint(nb)) {
				continue
			}
			visited.Set(uint(nb))
			d := x.distTo(ctx, nb)
			worst, full := results.top()
			if results.len() >= ef && full && d >= worst.dist {
				continue
			}
			candidates.push(candidate{slot: nb, dist: d})
			if allow == nil || allow(nb) {
				results.pushBounded(candidate{slot: nb, dist: d}, ef)
			}
		}
	}
	return results
}

// selectNeighbors prunes a worst-first candidate heap down to at most m
// diverse neighbors. A candidate is kept only when it is closer to the
// query than to every neighbor already kept, which spreads links across
// directions instead of clustering them.
func (x *index) selectNeighbors(ctx *searchCtx, results *candidateHeap, m int) []uint32 {
	asc := results.drainAscending()
	selected := make([]uint32, 0, m)
	for _, c := range asc {
		if len(selected) >= m {
			break
		}
		keep := true
		for _, s := range selected {
			if x.distBetween(ctx, c.slot, s) < c.dist {
				keep = false
				break
			}
		}
		if keep {
			selected = append(selected, c.slot)
		}
	}
	return selected
}

// linkAt wires slot and nb bidirectionally at level l, pruning either
// side back to the level budget when it overflows.
func (x *index) linkAt(ctx *searchCtx, slot, nb uint32, l int) {
	x.nodes[slot].links[l] = append(x.nodes[slot].links[l], nb)
	x.nodes[nb].links[l] = append(x.nodes[nb].links[l], slot)
	if budget := x.levelBudget(l); len(x.nodes[nb].links[l]) > budget {
		x.pruneLinks(ctx, nb, l, budget)
	}
}

func (x *index) levelBudget(l int) int {
	if l == 0 {
		return int(x.conn) * 2
	}
	return int(x.conn)
}

// pruneLinks re-selects the neighbor list of slot at level l using the
// slot's own vector as the query.
func (x *index) pruneLinks(ctx *searchCtx, slot uint32, l, budget int) {
	own := x.ownQueryCtx(slot)
	heap := newCandidateHeap(true)
	for _, nb := range x.nodes[slot].links[l] {
		heap.push(candidate{slot: nb, dist: x.distTo(own, nb)})
	}
	x.nodes[slot].links[l] = x.selectNeighbors(own, heap, budget)
}

// ownQueryCtx builds a context whose query is the stored vector of slot.
// The decoded copy is materialized so later scratch reuse cannot alias it.
func (x *index) ownQueryCtx(slot uint32) *searchCtx {
	tmp := make([]float32, x.dims)
	v := x.vs.at(int(slot), tmp)
	if len(tmp) > 0 && &v[0] != &tmp[0] {
		copy(tmp, v)
	}
	return x.newSearchCtx(tmp)
}
