package metrics

import (
	"slices"
	"time"
)

// Snapshot is an immutable, point-in-time copy of a Registry.
type Snapshot struct {
	TakenAt  time.Time
	Families []FamilySnapshot
}

// FamilySnapshot holds the samples of one family.
type FamilySnapshot struct {
	Desc    Desc
	Samples []Sample
}

// Sample is one label set and its value.
type Sample struct {
	LabelValues []string
	Value       float64
}

// Family returns the named family.
func (s Snapshot) Family(name string) (FamilySnapshot, bool) {
	for _, f := range s.Families {
		if f.Desc.Name == name {
			return f, true
		}
	}
	return FamilySnapshot{}, false
}

// Value returns the value of the sample with the given label values.
func (s Snapshot) Value(name string, labelValues ...string) (float64, bool) {
	f, ok := s.Family(name)
	if !ok {
		return 0, false
	}
	for _, sm := range f.Samples {
		if slices.Equal(sm.LabelValues, labelValues) {
			return sm.Value, true
		}
	}
	return 0, false
}
