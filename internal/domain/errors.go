package domain

import "errors"

// Ledger error taxonomy. Any of these returned from a trade batch rolls
// back the entire batch for that agent; other agents are unaffected.
var (
	// ErrUnknownAsset - order references a symbol with no enabled asset
	ErrUnknownAsset = errors.New("unknown asset")

	// ErrNoPriceAvailable - no positive limit price and no candle history
	ErrNoPriceAvailable = errors.New("no price available")

	// ErrInsufficientCash - buy notional exceeds available cash
	ErrInsufficientCash = errors.New("insufficient cash")

	// ErrInsufficientHoldings - sell quantity exceeds held quantity
	ErrInsufficientHoldings = errors.New("insufficient holdings")

	// ErrInvalidOrder - non-positive quantity or unrecognized side
	ErrInvalidOrder = errors.New("invalid order")
)

// ErrAgentNotFound - agent id does not exist in the registry
var ErrAgentNotFound = errors.New("agent not found")

// ErrInstanceExists - an orchestration instance with this key is already pending or running
var ErrInstanceExists = errors.New("orchestration instance already exists")
