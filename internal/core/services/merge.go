package services

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/custodia-labs/strata/internal/core/domain"
)

// rrfK is the reciprocal-rank fusion constant.
const rrfK = 60

// fuseRanked merges ranked hit lists by reciprocal-rank fusion.
// Entries keep the first list's copy; ties follow first appearance.
func fuseRanked(limit int, lists ...[]domain.SearchHit) []domain.SearchHit {
	type fused struct {
		hit   domain.SearchHit
		score float64
		first int
	}
	byID := make(map[string]*fused)
	var order []*fused
	for _, list := range lists {
		for rank, h := range list {
			f, ok := byID[h.Entry.ChunkID]
			if !ok {
				f = &fused{hit: h, first: len(order)}
				byID[h.Entry.ChunkID] = f
				order = append(order, f)
			}
			f.score += 1 / float64(rrfK+rank+1)
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		if order[i].score != order[j].score {
			return order[i].score > order[j].score
		}
		return order[i].first < order[j].first
	})

	out := make([]domain.SearchHit, 0, min(limit, len(order)))
	for _, f := range order {
		if len(out) == limit {
			break
		}
		f.hit.Score = f.score
		out = append(out, f.hit)
	}
	return out
}

// allocateSlots splits budget across weights by the largest remainder
// method. Zero total weight splits evenly. Ties go to the earlier entry.
func allocateSlots(weights []float64, budget int) []int {
	slots := make([]int, len(weights))
	if len(weights) == 0 || budget <= 0 {
		return slots
	}

	var total float64
	for _, w := range weights {
		total += math.Max(w, 0)
	}
	shares := make([]float64, len(weights))
	for i, w := range weights {
		if total == 0 {
			shares[i] = float64(budget) / float64(len(weights))
		} else {
			shares[i] = float64(budget) * math.Max(w, 0) / total
		}
	}

	given := 0
	for i, s := range shares {
		slots[i] = int(math.Floor(s))
		given += slots[i]
	}
	order := make([]int, len(weights))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ra := shares[order[a]] - math.Floor(shares[order[a]])
		rb := shares[order[b]] - math.Floor(shares[order[b]])
		return ra > rb
	})
	for k := 0; given < budget; k++ {
		slots[order[k%len(order)]]++
		given++
	}
	return slots
}

// estimateTokens approximates the token count of text.
func estimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// contextMerger interleaves per-agent ranked lists into one context.
type contextMerger struct {
	budget      int
	tokenBudget int

	items  []domain.ContextItem
	seen   map[string]bool
	tokens int
	full   bool
}

// mergeContext assembles the shared context. Agents get slots in proportion
// to their confidence and are interleaved round-robin in selection order.
// Duplicates are skipped, and leftover budget is backfilled round-robin
// from agents that still have hits.
func mergeContext(retrieved []domain.AgentRetrieval, confidence map[string]float64, budget, tokenBudget int) []domain.ContextItem {
	var lists []domain.AgentRetrieval
	var weights []float64
	for _, r := range retrieved {
		if r.Err != nil || len(r.Hits) == 0 {
			continue
		}
		lists = append(lists, r)
		weights = append(weights, confidence[r.AgentID])
	}
	if len(lists) == 0 || budget <= 0 {
		return nil
	}

	m := &contextMerger{budget: budget, tokenBudget: tokenBudget, seen: make(map[string]bool)}
	cursors := make([]int, len(lists))

	quota := allocateSlots(weights, budget)
	taken := make([]int, len(lists))
	m.roundRobin(lists, cursors, func(i int) bool { return taken[i] < quota[i] }, func(i int) { taken[i]++ })
	m.roundRobin(lists, cursors, func(int) bool { return true }, func(int) {})
	return m.items
}

// roundRobin takes one hit per eligible agent per round until nobody can take.
func (m *contextMerger) roundRobin(lists []domain.AgentRetrieval, cursors []int, eligible func(int) bool, took func(int)) {
	for !m.full {
		progressed := false
		for i, l := range lists {
			if m.full || !eligible(i) {
				continue
			}
			for cursors[i] < len(l.Hits) {
				h := l.Hits[cursors[i]]
				cursors[i]++
				if m.seen[h.Entry.ChunkID] {
					continue
				}
				if !m.add(l.AgentID, h) {
					break
				}
				took(i)
				progressed = true
				break
			}
		}
		if !progressed {
			return
		}
	}
}

// add appends an item unless a budget would be exceeded.
func (m *contextMerger) add(agentID string, h domain.SearchHit) bool {
	if len(m.items) >= m.budget {
		m.full = true
		return false
	}
	cost := estimateTokens(h.Entry.Text)
	if m.tokenBudget > 0 && m.tokens+cost > m.tokenBudget {
		m.full = true
		return false
	}
	m.seen[h.Entry.ChunkID] = true
	m.items = append(m.items, domain.ContextItem{AgentID: agentID, Hit: h})
	m.tokens += cost
	if len(m.items) == m.budget {
		m.full = true
	}
	return true
}

// renderContext numbers context items for a prompt.
func renderContext(items []domain.ContextItem, number map[string]int) string {
	var sb strings.Builder
	for _, it := range items {
		e := it.Hit.Entry
		md := e.Metadata
		fmt.Fprintf(&sb, "[%d] %s", number[e.ChunkID], md.Title)
		if md.PageRange.Start == md.PageRange.End {
			fmt.Fprintf(&sb, " (page %d, %s)", md.PageRange.Start+1, md.Modality)
		} else {
			fmt.Fprintf(&sb, " (pages %d-%d, %s)", md.PageRange.Start+1, md.PageRange.End+1, md.Modality)
		}
		sb.WriteString("\n")
		sb.WriteString(strings.TrimSpace(e.Text))
		sb.WriteString("\n\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
