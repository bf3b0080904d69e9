package sequence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		counts SeverityCounts
		want   Segment
	}{
		{"two criticals hits immediate", SeverityCounts{Critical: 2}, SegmentImmediate},
		{"many criticals stays immediate", SeverityCounts{Critical: 5, High: 1}, SegmentImmediate},
		{"one critical is priority", SeverityCounts{Critical: 1}, SegmentPriority},
		{"three highs is priority", SeverityCounts{High: 3}, SegmentPriority},
		{"one critical beats low high count", SeverityCounts{Critical: 1, High: 1}, SegmentPriority},
		{"two highs is nurture", SeverityCounts{High: 2}, SegmentNurture},
		{"all zero is nurture", SeverityCounts{}, SegmentNurture},
		{"medium and low never escalate", SeverityCounts{Medium: 9, Low: 9}, SegmentNurture},
		// Boundary: critical threshold is >= 2, so exactly 2 and exactly 1
		// land on different sides.
		{"critical at threshold", SeverityCounts{Critical: 2, High: 3}, SegmentImmediate},
		{"critical below threshold with highs", SeverityCounts{Critical: 0, High: 3}, SegmentPriority},
		{"high below threshold", SeverityCounts{Critical: 0, High: 2, Medium: 4}, SegmentNurture},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.counts))
		})
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	counts := SeverityCounts{Critical: 1, High: 3, Medium: 2, Low: 7}
	first := Classify(counts)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, Classify(counts))
	}
}
