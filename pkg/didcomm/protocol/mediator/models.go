/*
Copyright Crubn. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mediator

// Request is the mediate-request message asking this agent to act as a mediator.
// https://github.com/hyperledger/aries-rfcs/tree/master/features/0211-route-coordination
type Request struct {
	Type string `json:"@type,omitempty"`
	ID   string `json:"@id,omitempty"`
}

// Grant is the mediate-grant message communicating the endpoint and routing keys the
// recipient should publish.
type Grant struct {
	Type        string   `json:"@type,omitempty"`
	ID          string   `json:"@id,omitempty"`
	Endpoint    string   `json:"endpoint,omitempty"`
	RoutingKeys []string `json:"routing_keys,omitempty"`
}

// Deny is the mediate-deny message rejecting a mediation request.
type Deny struct {
	Type string `json:"@type,omitempty"`
	ID   string `json:"@id,omitempty"`
}

// KeylistUpdate is the keylist update message registering or removing recipient keys.
type KeylistUpdate struct {
	Type    string   `json:"@type,omitempty"`
	ID      string   `json:"@id,omitempty"`
	Updates []Update `json:"updates,omitempty"`
}

// Update is one key update item.
type Update struct {
	RecipientKey string `json:"recipient_key,omitempty"`
	Action       string `json:"action,omitempty"`
}

// KeylistUpdateResponse is the keylist update response message.
type KeylistUpdateResponse struct {
	Type    string           `json:"@type,omitempty"`
	ID      string           `json:"@id,omitempty"`
	Updated []UpdateResponse `json:"updated,omitempty"`
}

// UpdateResponse is the result of one key update item.
type UpdateResponse struct {
	RecipientKey string `json:"recipient_key,omitempty"`
	Action       string `json:"action,omitempty"`
	Result       string `json:"result,omitempty"`
}
