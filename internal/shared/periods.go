package shared

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidPeriod indicates period bounds are not usable.
var ErrInvalidPeriod = errors.New("period bounds invalid")

// Period bounds a reconciliation run. Start is inclusive, End exclusive.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewPeriod validates and constructs a period.
func NewPeriod(start, end time.Time) (Period, error) {
	if start.IsZero() || end.IsZero() {
		return Period{}, ErrInvalidPeriod
	}
	if !end.After(start) {
		return Period{}, ErrInvalidPeriod
	}
	return Period{Start: start.UTC(), End: end.UTC()}, nil
}

// Contains reports whether ts falls within the period.
func (p Period) Contains(ts time.Time) bool {
	ts = ts.UTC()
	return !ts.Before(p.Start) && ts.Before(p.End)
}

// String renders the period for logs and hash input.
func (p Period) String() string {
	return fmt.Sprintf("%s/%s", p.Start.Format(time.RFC3339), p.End.Format(time.RFC3339))
}
