package saga

import (
	"time"

	"github.com/ADovhal/TeIpsum-Store-sub001/internal/correlation"
	"github.com/ADovhal/TeIpsum-Store-sub001/internal/events"
)

// Status tags an InfoResult.
type Status int

const (
	StatusUnknown Status = iota
	StatusKnown
	StatusTimedOut
)

func (s Status) String() string {
	switch s {
	case StatusKnown:
		return "known"
	case StatusTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Summary is what the order service knows about a user's orders.
type Summary struct {
	OrderCount      int  `json:"order_count"`
	HasOrders       bool `json:"has_orders"`
	HasActiveOrders bool `json:"has_active_orders"`
}

func summaryFrom(resp events.OrderInfoResponse) Summary {
	return Summary{OrderCount: resp.OrderCount, HasOrders: resp.HasOrders, HasActiveOrders: resp.HasActiveOrders}
}

// InfoResult answers "what do we know about this user's orders". When Status is TimedOut,
// Summary and UpdatedAt carry the last known value, if any (Cached says whether there is one).
type InfoResult struct {
	Status    Status     `json:"status"`
	Summary   Summary    `json:"summary"`
	Cached    bool       `json:"cached"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

func fromFact(f correlation.Fact[Summary]) InfoResult {
	if !f.Known {
		return InfoResult{Status: StatusUnknown}
	}
	at := f.UpdatedAt
	return InfoResult{Status: StatusKnown, Summary: f.Value, Cached: true, UpdatedAt: &at}
}
