/*
Copyright Crubn. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package service

// ForwardMsgType is the type of the routing protocol forward message.
const ForwardMsgType = "https://didcomm.org/routing/2.0/forward"

// Destination provides the recipientKeys, routingKeys, and serviceEndpoint for an
// outbound message.
type Destination struct {
	RecipientKeys        []string
	ServiceEndpoint      string
	RoutingKeys          []string
	TransportReturnRoute string
}
