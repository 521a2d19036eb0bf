// Package monitor collects service records from every configured source and
// reduces them to the single weighted activity metric the controller acts on.
package monitor

import (
	"github.com/s0up4200/seedbrake/filter"
)

// SourceInput is one source's contribution to the aggregate.
type SourceInput struct {
	Name      string
	Weight    float64
	Enabled   bool
	Decisions []filter.Decision
}

// Weighted returns the source's contribution: enabled connections times the
// source weight, or 0 for a disabled source.
func (in SourceInput) Weighted() float64 {
	if !in.Enabled {
		return 0
	}
	return float64(filter.EnabledConnections(in.Decisions)) * in.Weight
}

// Aggregate sums the weighted contributions of all sources.
func Aggregate(inputs []SourceInput) float64 {
	var total float64
	for _, in := range inputs {
		total += in.Weighted()
	}
	return total
}
