package sequence

// Segment is the priority classification assigned to a lead from its
// assessment severity counts.
type Segment string

const (
	SegmentImmediate Segment = "immediate" // business is bleeding, call them now
	SegmentPriority  Segment = "priority"
	SegmentNurture   Segment = "nurture"
)

// SeverityCounts are the per-bucket finding counts from a completed
// assessment.
type SeverityCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
}

// classifierRules is evaluated top to bottom; the first matching rule wins.
// Keeping the rules in one ordered table means a new segment is a new row
// here, not a new conditional at every call site.
var classifierRules = []struct {
	segment Segment
	match   func(c SeverityCounts) bool
}{
	{SegmentImmediate, func(c SeverityCounts) bool { return c.Critical >= 2 }},
	{SegmentPriority, func(c SeverityCounts) bool { return c.Critical == 1 || c.High >= 3 }},
}

// Classify maps severity counts to a segment. Pure and deterministic.
func Classify(counts SeverityCounts) Segment {
	for _, rule := range classifierRules {
		if rule.match(counts) {
			return rule.segment
		}
	}
	return SegmentNurture
}
