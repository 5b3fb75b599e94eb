package rag

const DefaultRelevanceThreshold = 0.2

// RelevanceGate decides whether retrieved passages are relevant enough to
// ground an answer.
type RelevanceGate struct {
	Threshold float64
}

func NewRelevanceGate(threshold float64) RelevanceGate {
	return RelevanceGate{Threshold: threshold}
}

// Filter keeps passages scoring at or above the threshold, in their original
// order. hasContext is true when at least one passage is kept.
func (g RelevanceGate) Filter(passages []RetrievedPassage) (hasContext bool, grounded []RetrievedPassage) {
	for _, p := range passages {
		if p.Score >= g.Threshold {
			grounded = append(grounded, p)
		}
	}
	return len(grounded) > 0, grounded
}
