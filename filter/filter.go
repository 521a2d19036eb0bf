// Package filter decides which observed services count toward the activity
// metric. Services are enabled explicitly by operators; anything without an
// entry in the service control state is treated as disabled and is registered
// as such the first time it is seen.
package filter

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/s0up4200/seedbrake/lucky"
)

// Store is the persisted service control state.
type Store interface {
	Snapshot() (map[string]bool, error)
	RegisterDisabled(ids ...string) ([]string, error)
}

// Decision is the outcome for one record.
type Decision struct {
	Record lucky.ServiceRecord
	// Enabled is true when the record counts toward the metric.
	Enabled bool
	// Matched is the identifier whose entry enabled the record.
	Matched string
	// Excluded is true when a source rule dropped the record.
	Excluded bool
}

// Decide walks the record's candidates in priority order and returns true on
// the first one enabled in state. A candidate explicitly set to false does not
// stop the walk. Matching is exact and case-sensitive.
func Decide(rec lucky.ServiceRecord, state map[string]bool) (bool, string) {
	for _, id := range rec.Candidates() {
		if state[id] {
			return true, id
		}
	}
	return false, ""
}

// known reports whether any candidate has an entry in state.
func known(rec lucky.ServiceRecord, state map[string]bool) bool {
	for _, id := range rec.Candidates() {
		if _, ok := state[id]; ok {
			return true
		}
	}
	return false
}

// Filter applies the service control state to collected records.
type Filter struct {
	store  Store
	logger zerolog.Logger
}

// New creates a filter backed by store.
func New(store Store, logger zerolog.Logger) *Filter {
	return &Filter{
		store:  store,
		logger: logger.With().Str("component", "filter").Logger(),
	}
}

// Apply decides every record of one source. Records with no known identifier
// are registered as disabled under their preferred identifier, whether or not
// they currently have connections or are dropped by an exclusion rule. If the state cannot be read, every record
// is treated as disabled and the read error is returned with the decisions.
func (f *Filter) Apply(source string, records []lucky.ServiceRecord, rules *Rules) ([]Decision, error) {
	state, err := f.store.Snapshot()
	if err != nil {
		f.logger.Warn().Err(err).Str("source", source).Msg("Failed to read service control state, treating all services as disabled")
		state = map[string]bool{}
	}
	readErr := err

	decisions := make([]Decision, 0, len(records))
	var unseen []string

	for _, rec := range records {
		d := Decision{Record: rec}

		if readErr == nil && !known(rec, state) {
			if name := rec.Name(); name != "" {
				unseen = append(unseen, name)
			}
		}

		excluded, err := rules.Exclude(source, rec)
		if err != nil {
			f.logger.Debug().Err(err).Str("source", source).Msg("Exclusion rule failed, keeping service")
		}
		if excluded {
			d.Excluded = true
			decisions = append(decisions, d)
			continue
		}

		d.Enabled, d.Matched = Decide(rec, state)
		decisions = append(decisions, d)
	}

	if len(unseen) > 0 {
		added, err := f.store.RegisterDisabled(unseen...)
		if err != nil {
			f.logger.Warn().Err(err).Str("source", source).Msg("Failed to register new services")
		} else if len(added) > 0 {
			f.logger.Info().
				Str("source", source).
				Strs("services", added).
				Msg("Discovered new services, registered as disabled")
		}
	}

	if readErr != nil {
		return decisions, errors.Join(ErrStateUnavailable, readErr)
	}
	return decisions, nil
}

// EnabledConnections sums connections over enabled decisions.
func EnabledConnections(decisions []Decision) int64 {
	var total int64
	for _, d := range decisions {
		if d.Enabled {
			total += d.Record.Connections
		}
	}
	return total
}
