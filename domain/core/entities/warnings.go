package entities

import "conceptgraph/domain/core/valueobjects"

// WarningCode identifies a non-fatal finding
type WarningCode string

const (
	WarningDepthLimitExceeded  WarningCode = "depth_limit_exceeded"
	WarningDifficultyInversion WarningCode = "difficulty_inversion"
	WarningUnclassifiedEdge    WarningCode = "unclassified_edge"
	WarningUnresolvedParent    WarningCode = "unresolved_parent"
	WarningAmbiguousParent     WarningCode = "ambiguous_parent"
	WarningCycleRemaining      WarningCode = "cycle_remaining"
	WarningMasteryUnavailable  WarningCode = "mastery_unavailable"
	WarningUnknownSeed         WarningCode = "unknown_seed"
)

// Warning is returned alongside results, never as an error
type Warning struct {
	Code    WarningCode            `json:"code"`
	Message string                 `json:"message"`
	NodeID  valueobjects.ConceptID `json:"node_id,omitempty"`
}
