package domain

import "sort"

type Source string

const (
	SourceCatalog   Source = "catalog"
	SourceEmergency Source = "emergency"
	SourceArtifact  Source = "artifact"
)

// Recovered is the payload still available for an undelivered session,
// covering FirstSequence..LastSequence.
type Recovered struct {
	FirstSequence int
	LastSequence  int
	// Sequences lists the held sequences when the payload skips some inside
	// its range. Nil means the range is contiguous.
	Sequences []int
	Data      []byte
	Source    Source
}

func (r Recovered) holds(seq int) bool {
	if r.Sequences == nil {
		return seq >= r.FirstSequence && seq <= r.LastSequence
	}
	i := sort.SearchInts(r.Sequences, seq)
	return i < len(r.Sequences) && r.Sequences[i] == seq
}

// HasGaps reports whether sequences are missing between FirstSequence and
// LastSequence.
func (r Recovered) HasGaps() bool {
	return r.Sequences != nil
}

// MissingSequences lists sequences of a chunkCount-long session that the
// recovered payload does not hold.
func (r Recovered) MissingSequences(chunkCount int) []int {
	var missing []int
	for seq := 0; seq < chunkCount; seq++ {
		if !r.holds(seq) {
			missing = append(missing, seq)
		}
	}
	return missing
}

// Merge joins pieces of one session in sequence order. A piece overlapping
// one already taken is skipped. Mixed sources report SourceArtifact.
func Merge(pieces []Recovered) Recovered {
	sorted := append([]Recovered(nil), pieces...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].FirstSequence < sorted[j].FirstSequence })

	var (
		out   Recovered
		held  []int
		taken bool
	)
	for _, p := range sorted {
		if len(p.Data) == 0 {
			continue
		}
		if !taken {
			out.FirstSequence = p.FirstSequence
			out.Source = p.Source
			taken = true
		} else {
			if p.FirstSequence <= out.LastSequence {
				continue
			}
			if p.Source != out.Source {
				out.Source = SourceArtifact
			}
		}
		out.LastSequence = p.LastSequence
		out.Data = append(out.Data, p.Data...)
		for seq := p.FirstSequence; seq <= p.LastSequence; seq++ {
			if p.Sequences == nil || p.holds(seq) {
				held = append(held, seq)
			}
		}
	}
	if taken && len(held) != out.LastSequence-out.FirstSequence+1 {
		out.Sequences = held
	}
	return out
}
