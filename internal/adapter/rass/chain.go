package rass

import (
	"context"

	"github.com/couchcryptid/sb-lapse-etl/internal/domain"
)

// Outcome classifies one link of the retrieval chain.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeNetworkError
	OutcomeParseError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeNetworkError:
		return "network_error"
	case OutcomeParseError:
		return "parse_error"
	default:
		return "unknown"
	}
}

// AttemptResult is what one link of the chain produced.
type AttemptResult struct {
	Label   string
	Outcome Outcome
	Source  domain.ProfileSource
	Profile domain.RassProfile
	Err     error
}

// Attempt is one link of the retrieval chain.
type Attempt func(ctx context.Context) AttemptResult

// Chain is an ordered list of attempts evaluated until one succeeds.
type Chain []Attempt

// Run evaluates attempts in order. It returns the first successful result and
// every failed result seen before it. ok is false when nothing succeeded.
func (c Chain) Run(ctx context.Context) (result AttemptResult, failures []AttemptResult, ok bool) {
	for _, attempt := range c {
		res := attempt(ctx)
		if res.Outcome == OutcomeOK {
			return res, failures, true
		}
		failures = append(failures, res)
	}
	return AttemptResult{}, failures, false
}
