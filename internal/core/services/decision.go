package services

import (
	"github.com/custodia-labs/strata/internal/core/domain"
)

// Decide routes one block to an extraction path. It is pure: the same
// block and policy always give the same decision.
//
// Text blocks never escalate. Tables escalate when the cheap parse fails,
// images when their text layer is not convincing enough. ForceVision
// escalates every table and image. Confidence exactly at the threshold
// stays text_only.
func Decide(block domain.ContentBlock, policy domain.RoutingPolicy) domain.ExtractionDecision {
	d := domain.ExtractionDecision{BlockID: block.ID}

	switch block.Type {
	case domain.BlockTable:
		tp := parseTable(block, policy)
		if tp.ok {
			d.CheapText = renderRows(tp.rows)
			d.Confidence = 1 - tp.ragged
		} else if tp.reason != domain.RationaleTableBinary {
			d.CheapText = block.Text()
		}
		d.Rationale = []domain.RationaleTag{tp.reason}
		d.Path = domain.PathTextOnly
		if !tp.ok {
			d.Path = domain.PathVision
		}

	case domain.BlockImage:
		pc := precheckImage(block, policy)
		d.CheapText = pc.text
		d.Confidence = pc.confidence
		d.Rationale = []domain.RationaleTag{pc.reason}
		if pc.template {
			d.Rationale = append(d.Rationale, domain.RationaleImageTemplate)
		}
		d.Path = domain.PathVision
		if pc.reason == domain.RationaleImageTextLayer {
			d.Path = domain.PathTextOnly
		}

	default:
		d.Path = domain.PathTextOnly
		d.Confidence = 1
		d.CheapText = block.Text()
		d.Rationale = []domain.RationaleTag{domain.RationaleTextBlock}
		return d
	}

	if policy.ForceVision {
		d.Path = domain.PathVision
		d.Rationale = append(d.Rationale, domain.RationaleForcedVision)
	}
	return d
}
