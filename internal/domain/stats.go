package domain

// Counts is the pair of player counts reported for a region or globally.
type Counts struct {
	AllPlayers    int64 `json:"all_players"`
	MaliciousBots int64 `json:"malicious_bots"`
}

// Add returns the element-wise sum.
func (c Counts) Add(o Counts) Counts {
	return Counts{
		AllPlayers:    c.AllPlayers + o.AllPlayers,
		MaliciousBots: c.MaliciousBots + o.MaliciousBots,
	}
}

// Stats is one response of the statistics endpoint.
// Regions is keyed by the human-readable region descriptor and is empty
// when the upstream does not report per-region counts.
type Stats struct {
	Totals  Counts
	Regions map[string]Counts
}

// RegionMeta maps a region identifier to its descriptor.
type RegionMeta map[string]string
