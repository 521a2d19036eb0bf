package lucky

// ServiceRecord is one service observed in a single poll.
type ServiceRecord struct {
	// Key is the technical key reported by the device.
	Key string
	// Label is the human-readable name (Lucky "Remark").
	Label string
	// Rule is the name of the rule the service belongs to, if any.
	Rule string
	// Alternates are further identifiers tried after Label and Key.
	Alternates  []string
	Connections int64
	TrafficIn   int64
	TrafficOut  int64
	ServiceType string
	// DeviceEnabled is the enable flag as reported by the device.
	DeviceEnabled bool
}

// Active reports whether the service currently has connections.
func (r ServiceRecord) Active() bool {
	return r.Connections > 0
}

// Name returns the most human-meaningful identifier.
func (r ServiceRecord) Name() string {
	if c := r.Candidates(); len(c) > 0 {
		return c[0]
	}
	return ""
}

// Candidates returns identifiers in matching priority: Label, Key, then
// alternates. Empty and repeated values are skipped.
func (r ServiceRecord) Candidates() []string {
	out := make([]string, 0, 2+len(r.Alternates))
	seen := make(map[string]struct{}, cap(out))

	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}

	add(r.Label)
	add(r.Key)
	for _, alt := range r.Alternates {
		add(alt)
	}
	return out
}

// TotalConnections sums connections over records.
func TotalConnections(records []ServiceRecord) int64 {
	var total int64
	for _, r := range records {
		total += r.Connections
	}
	return total
}
