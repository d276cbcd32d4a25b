package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMissingSequences(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		recovered  Recovered
		chunkCount int
		want       []int
	}{
		{name: "complete", recovered: Recovered{FirstSequence: 0, LastSequence: 2}, chunkCount: 3},
		{name: "tail lost", recovered: Recovered{FirstSequence: 0, LastSequence: 1}, chunkCount: 4, want: []int{2, 3}},
		{name: "single chunk", recovered: Recovered{FirstSequence: 2, LastSequence: 2}, chunkCount: 4, want: []int{0, 1, 3}},
		{name: "empty session", recovered: Recovered{}, chunkCount: 0},
		{name: "gap inside range", recovered: Recovered{FirstSequence: 0, LastSequence: 3, Sequences: []int{0, 3}}, chunkCount: 4, want: []int{1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.recovered.MissingSequences(tt.chunkCount))
		})
	}
}

func TestMergeJoinsPiecesInOrder(t *testing.T) {
	t.Parallel()
	got := Merge([]Recovered{
		{FirstSequence: 3, LastSequence: 3, Data: []byte("d"), Source: SourceEmergency},
		{FirstSequence: 1, LastSequence: 1, Data: []byte("b"), Source: SourceArtifact},
		{FirstSequence: 1, LastSequence: 1, Data: []byte("b"), Source: SourceArtifact},
	})

	assert.Equal(t, []byte("bd"), got.Data)
	assert.Equal(t, 1, got.FirstSequence)
	assert.Equal(t, 3, got.LastSequence)
	assert.True(t, got.HasGaps())
	assert.Equal(t, SourceArtifact, got.Source)
	assert.Equal(t, []int{0, 2, 4}, got.MissingSequences(5))
}

func TestMergeOfContiguousPiecesHasNoGaps(t *testing.T) {
	t.Parallel()
	got := Merge([]Recovered{
		{FirstSequence: 2, LastSequence: 2, Data: []byte("c"), Source: SourceEmergency},
		{FirstSequence: 0, LastSequence: 1, Data: []byte("ab"), Source: SourceEmergency},
	})

	assert.Equal(t, []byte("abc"), got.Data)
	assert.False(t, got.HasGaps())
	assert.Equal(t, SourceEmergency, got.Source)
	assert.Empty(t, got.MissingSequences(3))
}
