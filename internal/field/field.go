// Package field turns raw organ readings into weighted semantic fields.
// This is a pure transformation stage: it scales, it never gates. Rejection
// of weak signal belongs to the nexus composer.
package field

import (
	"sort"

	"github.com/axo-lotto/dae-gov-sub013/internal/types"
)

// weight scales a raw match similarity by how much the organ wants to speak
// and how settled its reading is. A neutral organ (coherence 0) contributes
// nothing no matter what its keywords hit.
func weight(lure, coherence float64) float64 {
	return (0.5 + 0.5*lure) * coherence
}

// Extract derives the weighted semantic field from one organ result:
//
//	strength[atom] = activation × (0.5 + 0.5×lure) × coherence
//
// Zero strengths are dropped so the field stays sparse. An organ with no
// effective signal yields an empty field, never a nil one.
func Extract(res *types.OrganResult) *types.SemanticField {
	f := &types.SemanticField{
		Organ:     res.Organ,
		Lure:      res.Lure,
		Coherence: res.Coherence,
		Strengths: make(map[string]float64, len(res.Activations)),
	}

	w := weight(res.Lure, res.Coherence)
	if w <= 0 {
		return f
	}

	atoms := make([]string, 0, len(res.Activations))
	for atom := range res.Activations {
		atoms = append(atoms, atom)
	}
	sort.Strings(atoms)

	for _, atom := range atoms {
		if s := res.Activations[atom] * w; s > 0 {
			f.Strengths[atom] = s
		}
	}
	return f
}

// ExtractAll maps a cycle's organ results to their fields, preserving order.
func ExtractAll(results []*types.OrganResult) []*types.SemanticField {
	fields := make([]*types.SemanticField, 0, len(results))
	for _, res := range results {
		fields = append(fields, Extract(res))
	}
	return fields
}
