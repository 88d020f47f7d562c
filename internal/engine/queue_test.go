package engine

import (
	"math/rand"
	"sort"
	"testing"
)

func TestCandidateHeap(t *testing.T) {
	t.Run("MinOrder", func(t *testing.T) {
		h := newCandidateHeap(false)
		h.push(candidate{slot: 1, dist: 10})
		h.push(candidate{slot: 2, dist: 5})
		h.push(candidate{slot: 3, dist: 20})

		if h.len() != 3 {
			t.Fatalf("expected len 3, got %d", h.len())
		}
		top, ok := h.top()
		if !ok || top.dist != 5 {
			t.Errorf("expected top 5, got %v", top.dist)
		}

		want := []float32{5, 10, 20}
		for i, w := range want {
			c, ok := h.pop()
			if !ok || c.dist != w {
				t.Errorf("pop %d: expected %v, got %v", i, w, c.dist)
			}
		}
		if _, ok := h.pop(); ok {
			t.Error("pop on empty heap should report false")
		}
	})

	t.Run("MaxOrder", func(t *testing.T) {
		h := newCandidateHeap(true)
		h.push(candidate{slot: 1, dist: 10})
		h.push(candidate{slot: 2, dist: 5})
		h.push(candidate{slot: 3, dist: 20})

		top, ok := h.top()
		if !ok || top.dist != 20 {
			t.Errorf("expected top 20, got %v", top.dist)
		}
	})

	t.Run("PushBounded", func(t *testing.T) {
		h := newCandidateHeap(true)
		for i, d := range []float32{9, 7, 5, 3, 1} {
			h.pushBounded(candidate{slot: uint32(i), dist: d}, 3)
		}
		if h.len() != 3 {
			t.Fatalf("expected len 3, got %d", h.len())
		}
		// The three smallest survive.
		asc := h.drainAscending()
		want := []float32{1, 3, 5}
		for i, w := range want {
			if asc[i].dist != w {
				t.Errorf("slot %d: expected %v, got %v", i, w, asc[i].dist)
			}
		}
	})

	t.Run("DrainAscendingRandom", func(t *testing.T) {
		rng := rand.New(rand.NewSource(7))
		h := newCandidateHeap(true)
		var dists []float32
		for i := 0; i < 100; i++ {
			d := rng.Float32()
			dists = append(dists, d)
			h.push(candidate{slot: uint32(i), dist: d})
		}
		sort.Slice(dists, func(i, j int) bool { return dists[i] < dists[j] })

		asc := h.drainAscending()
		if len(asc) != 100 {
			t.Fatalf("expected 100 results, got %d", len(asc))
		}
		for i := range asc {
			if asc[i].dist != dists[i] {
				t.Fatalf("position %d: expected %v, got %v", i, dists[i], asc[i].dist)
			}
		}
	})

	t.Run("Reset", func(t *testing.T) {
		h := newCandidateHeap(false)
		h.push(candidate{slot: 1, dist: 1})
		h.reset()
		if h.len() != 0 {
			t.Errorf("expected empty heap after reset, got %d", h.len())
		}
	})
}
