/*
Package game
File: economy.go
Description:
    The economy engine. Three operations move a State forward:
    1. ApplyManualAction: a discrete player-triggered balance bump.
    2. ApplyElapsedTime: integrates production over an elapsed interval.
    3. Purchase: buys one generator unit at its current, compounding price.

    Each operation validates everything before touching the State, so a
    failed call leaves it exactly as it was. The engine never reads a clock
    and never performs I/O; time and triggers are pushed in by the driver.
*/

package game

import (
	"errors"
	"fmt"
	"math"
)

const (
	// PriceGrowth multiplies a kind's current price after every purchase of it.
	PriceGrowth = 1.15

	// ManualActionAmount is the balance gained from a single default manual action.
	ManualActionAmount = 1.0
)

var (
	// ErrInvalidInput reports a non-positive manual amount or a negative/non-finite elapsed time.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnknownKind reports a purchase for a kind absent from the catalog.
	ErrUnknownKind = errors.New("unknown generator kind")

	// ErrInsufficientFunds reports a purchase the balance cannot cover.
	// This is the routine rejection path, not a defect.
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// EventType tells the presentation layer what changed.
type EventType string

const (
	EventBalanceChanged EventType = "balance_changed"
	EventPurchased      EventType = "purchased"
)

// Event describes the outcome of a successful engine call.
type Event struct {
	Type    EventType `json:"type"`
	KindID  string    `json:"kind_id,omitempty"` // Set for purchases
	Delta   float64   `json:"delta"`             // Signed balance change
	Balance float64   `json:"balance"`           // Balance after the call
}

// ApplyManualAction adds amount to the balance and counts the action.
// amount must be positive, finite and must not overflow the balance;
// use ManualActionAmount for a plain click.
func ApplyManualAction(st *State, amount float64) (Event, error) {
	if !(amount > 0) || math.IsInf(amount, 1) {
		return Event{}, fmt.Errorf("%w: manual action amount %v must be positive", ErrInvalidInput, amount)
	}

	next := st.balance + amount
	if math.IsInf(next, 0) {
		return Event{}, fmt.Errorf("%w: manual action amount %v overflows balance %v", ErrInvalidInput, amount, st.balance)
	}

	st.balance = next
	st.clicks++

	return Event{Type: EventBalanceChanged, Delta: amount, Balance: st.balance}, nil
}

// ApplyElapsedTime integrates the current production rate over deltaSeconds.
//
// The integration is linear and the rate only changes on purchase, so N calls
// whose deltas sum to T produce the same growth as a single call with T.
// There is no upper bound on deltaSeconds; a long pause integrates in one step.
// A zero delta is a no-op. A negative or non-finite delta is rejected, as is
// any delta whose production would overflow the balance.
func ApplyElapsedTime(st *State, deltaSeconds float64) (Event, error) {
	if deltaSeconds < 0 || math.IsNaN(deltaSeconds) || math.IsInf(deltaSeconds, 0) {
		return Event{}, fmt.Errorf("%w: elapsed time %v must be a finite non-negative number of seconds", ErrInvalidInput, deltaSeconds)
	}

	gain := st.rate * deltaSeconds
	next := st.balance + gain
	if math.IsInf(gain, 0) || math.IsInf(next, 0) {
		return Event{}, fmt.Errorf("%w: %v seconds at %v/s overflows balance %v", ErrInvalidInput, deltaSeconds, st.rate, st.balance)
	}
	st.balance = next

	return Event{Type: EventBalanceChanged, Delta: gain, Balance: st.balance}, nil
}

// Purchase buys one unit of kindID.
//
// On success the balance drops by exactly the pre-call price, ownership grows
// by one, the price compounds by PriceGrowth and the production rate is
// recomputed. On failure nothing changes.
func Purchase(st *State, kindID string) (Event, error) {
	if _, ok := st.catalog.Lookup(kindID); !ok {
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownKind, kindID)
	}

	price := st.price[kindID]
	if st.balance < price {
		return Event{}, fmt.Errorf("%w: %q costs %v, balance is %v", ErrInsufficientFunds, kindID, price, st.balance)
	}

	st.balance -= price
	st.owned[kindID]++
	st.price[kindID] = price * PriceGrowth
	st.recomputeRate()

	return Event{Type: EventPurchased, KindID: kindID, Delta: -price, Balance: st.balance}, nil
}
