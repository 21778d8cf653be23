/*
Copyright Crubn. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package connection

import (
	"errors"
	"fmt"
	"time"
)

// Connection states, in protocol order.
const (
	StateNameNull      = "null"
	StateNameInvited   = "invited"
	StateNameRequested = "requested"
	StateNameResponded = "responded"
	StateNameCompleted = "completed"
)

// ErrConnectionNotFound is returned when a connection record cannot be resolved.
var ErrConnectionNotFound = errors.New("connection not found")

// stateTransitions lists the states reachable from each state.
var stateTransitions = map[string][]string{
	StateNameNull:      {StateNameInvited, StateNameRequested},
	StateNameInvited:   {StateNameRequested},
	StateNameRequested: {StateNameResponded},
	StateNameResponded: {StateNameCompleted},
}

// Record contains information about a pairwise connection.
type Record struct {
	ConnectionID    string
	State           string
	TenantID        string
	MyKey           string
	TheirKey        string
	RecipientKeys   []string
	ServiceEndpoint string
	RoutingKeys     []string
	CreatedTime     time.Time
}

// IsReady returns true when the connection has progressed far enough to carry
// protocol messages.
func (r *Record) IsReady() bool {
	return r.State == StateNameResponded || r.State == StateNameCompleted
}

// UpdateState moves the record to a new state, validating the transition.
func (r *Record) UpdateState(state string) error {
	current := r.State
	if current == "" {
		current = StateNameNull
	}

	for _, next := range stateTransitions[current] {
		if next == state {
			r.State = state
			return nil
		}
	}

	return fmt.Errorf("invalid state transition: %s -> %s", current, state)
}
