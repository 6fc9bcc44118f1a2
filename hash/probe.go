package hash

import (
	"container/heap"
	"sort"
)

// Query directed probing after Lv, Josephson, Wang, Charikar and Li,
// "Multi-Probe LSH: Efficient Indexing for High-Dimensional Similarity
// Search" (VLDB 2007). Perturbation sets are enumerated in increasing
// sum-of-scores order by a min-heap whose pop generates a shift and an
// expand successor, visiting each set exactly once.

// perturbState is one perturbation set: a selection of positions into the
// sorted score vector z. A selected position whose score index z[pos] is at
// or past switchpoint (an xiPlus entry) perturbs its symbol by +1, the rest
// (xiMin entries) by -1.
type perturbState[N Float] struct {
	z           []int // argsort of scores, shared
	scores      []N   // xiMin ++ xiPlus, shared
	selection   []int
	switchpoint int
	sig         []int64 // primary signature, shared
}

func (p *perturbState[N]) score() N {
	var s N
	for _, idx := range p.selection {
		s += p.scores[p.z[idx]]
	}
	return s
}

func (p *perturbState[N]) clone() *perturbState[N] {
	sel := make([]int, len(p.selection))
	copy(sel, p.selection)
	return &perturbState[N]{
		z:           p.z,
		scores:      p.scores,
		selection:   sel,
		switchpoint: p.switchpoint,
		sig:         p.sig,
	}
}

func (p *perturbState[N]) checkBounds(max int) bool {
	if max == len(p.z)-1 {
		return false
	}
	p.selection = append(p.selection, max+1)
	return true
}

// shift replaces the largest selected position with its successor.
func (p *perturbState[N]) shift() bool {
	max := p.selection[len(p.selection)-1]
	p.selection = p.selection[:len(p.selection)-1]
	return p.checkBounds(max)
}

// expand additionally selects the successor of the largest position.
func (p *perturbState[N]) expand() bool {
	return p.checkBounds(p.selection[len(p.selection)-1])
}

// genHash applies the perturbation deltas to a copy of the signature.
func (p *perturbState[N]) genHash() []int64 {
	sig := make([]int64, len(p.sig))
	copy(sig, p.sig)
	for _, idx := range p.selection {
		zj := p.z[idx]
		if zj >= p.switchpoint {
			sig[zj-p.switchpoint]++
		} else {
			sig[zj]--
		}
	}
	return sig
}

type perturbHeap[N Float] []*perturbState[N]

func (h perturbHeap[N]) Len() int           { return len(h) }
func (h perturbHeap[N]) Less(i, j int) bool { return h[i].score() < h[j].score() }
func (h perturbHeap[N]) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *perturbHeap[N]) Push(x any)        { *h = append(*h, x.(*perturbState[N])) }
func (h *perturbHeap[N]) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// queryDirectedProbe runs Algorithm 1 from the paper: the primary signature
// first, then budget perturbed signatures popped from the heap.
func queryDirectedProbe[N Float](sig []int64, xiMin, xiPlus []N, budget int) ([][]int64, error) {
	k := len(sig)
	scores := make([]N, 0, 2*k)
	scores = append(scores, xiMin...)
	scores = append(scores, xiPlus...)

	z := make([]int, len(scores))
	for i := range z {
		z[i] = i
	}
	sort.SliceStable(z, func(i, j int) bool { return scores[z[i]] < scores[z[j]] })

	out := make([][]int64, 0, budget+1)
	out = append(out, sig)

	h := &perturbHeap[N]{{
		z:           z,
		scores:      scores,
		selection:   []int{0},
		switchpoint: k,
		sig:         sig,
	}}
	heap.Init(h)

	for emitted := 0; emitted < budget; {
		if h.Len() == 0 {
			return nil, ErrProbesDepleted
		}
		ai := heap.Pop(h).(*perturbState[N])
		if as := ai.clone(); as.shift() {
			heap.Push(h, as)
		}
		if ae := ai.clone(); ae.expand() {
			heap.Push(h, ae)
		}
		// A set that moves one symbol both down and up is not a valid
		// perturbation: it is skipped, but its successors stay enumerated.
		valid := true
		moved := make(map[int]bool, len(ai.selection))
		for _, idx := range ai.selection {
			sym := ai.z[idx] % k
			if moved[sym] {
				valid = false
				break
			}
			moved[sym] = true
		}
		if valid {
			out = append(out, ai.genHash())
			emitted++
		}
	}
	return out, nil
}
