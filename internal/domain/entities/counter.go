package entities

// CounterScope separates community-wide tallies from per-user ones.
type CounterScope string

const (
	ScopeGlobal CounterScope = "global"
	ScopeUser   CounterScope = "user"
)

// Global counter keys.
const (
	CounterTotalRecords    = "total_records"
	CounterTotalComplaints = "total_complaints"
)

// CounterDelta is one signed change to a single counter.
type CounterDelta struct {
	Scope CounterScope `json:"scope"`
	Key   string       `json:"key"`
	Delta int64        `json:"delta"`
}

// UserCounterKey is the per-owner per-kind counter key, "<owner>/<kind>".
func UserCounterKey(ownerID string, kind Kind) string {
	return ownerID + "/" + string(kind)
}

// CommunityStats is the display snapshot of the global counters. The values
// are maintained best-effort and may drift from the record set.
type CommunityStats struct {
	TotalRecords    int64 `json:"total_records"`
	TotalComplaints int64 `json:"total_complaints"`
}

// UserStats is the display snapshot of one owner's per-kind counters.
type UserStats struct {
	OwnerID string         `json:"owner_id"`
	ByKind  map[Kind]int64 `json:"by_kind"`
	Total   int64          `json:"total"`
}
