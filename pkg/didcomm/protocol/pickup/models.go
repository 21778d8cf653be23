/*
Copyright Crubn. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package pickup

import (
	"github.com/crubn/aries-agent-go/pkg/didcomm/protocol/decorator"
)

const (
	// PickupSpec defines the protocol spec of the pickup coordination messages.
	PickupSpec = "https://didcomm.org/messagepickup/2.0/"

	// StatusRequestMsgType asks the mediator how many messages are waiting.
	StatusRequestMsgType = PickupSpec + "status-request"

	// StatusMsgType reports the number of waiting messages.
	StatusMsgType = PickupSpec + "status"

	// DeliveryRequestMsgType asks the mediator to deliver waiting messages.
	DeliveryRequestMsgType = PickupSpec + "delivery-request"

	// DeliveryMsgType carries waiting messages as attachments.
	DeliveryMsgType = PickupSpec + "delivery"

	// MessagesReceivedMsgType acknowledges delivered messages so the mediator can drop them.
	MessagesReceivedMsgType = PickupSpec + "messages-received"

	// ForwardV3MsgType announces a newly queued message to a live recipient session.
	ForwardV3MsgType = "https://didcomm.org/messagepickup/3.0/forward"
)

// StatusRequest is the status-request message.
type StatusRequest struct {
	Type         string            `json:"@type,omitempty"`
	ID           string            `json:"@id,omitempty"`
	RecipientKey string            `json:"recipient_key,omitempty"`
	Thread       *decorator.Thread `json:"~thread,omitempty"`
}

// Status is the status message reporting the queue state.
type Status struct {
	Type         string            `json:"@type,omitempty"`
	ID           string            `json:"@id,omitempty"`
	MessageCount int               `json:"message_count"`
	RecipientKey string            `json:"recipient_key,omitempty"`
	Thread       *decorator.Thread `json:"~thread,omitempty"`
}

// DeliveryRequest is the delivery-request message. A limit <= 0 asks for everything.
type DeliveryRequest struct {
	Type         string            `json:"@type,omitempty"`
	ID           string            `json:"@id,omitempty"`
	Limit        int               `json:"limit,omitempty"`
	RecipientKey string            `json:"recipient_key,omitempty"`
	Thread       *decorator.Thread `json:"~thread,omitempty"`
}

// MessageDelivery is the delivery message. Each attachment holds one queued envelope,
// base64 encoded, with the queued message id as attachment id.
type MessageDelivery struct {
	Type        string                 `json:"@type,omitempty"`
	ID          string                 `json:"@id,omitempty"`
	Attachments []decorator.Attachment `json:"~attach,omitempty"`
	Thread      *decorator.Thread      `json:"~thread,omitempty"`
}

// MessagesReceived is the messages-received acknowledgement.
type MessagesReceived struct {
	Type          string            `json:"@type,omitempty"`
	ID            string            `json:"@id,omitempty"`
	MessageIDList []string          `json:"message_id_list,omitempty"`
	Thread        *decorator.Thread `json:"~thread,omitempty"`
}

// Forward is the live-mode notification that a message with the given id was queued.
type Forward struct {
	Type      string `json:"@type,omitempty"`
	ID        string `json:"@id,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}
