/*
Copyright Crubn. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package pickup implements both sides of the message pickup protocol. The mediator side
// answers status and delivery requests out of the mailbox queue, the recipient side
// drains its mediator's queue back into the receive pipeline.
package pickup

import (
	"encoding/base64"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hyperledger/aries-framework-go/component/log"
	"github.com/pkg/errors"

	"github.com/crubn/aries-agent-go/pkg/didcomm/common/model"
	"github.com/crubn/aries-agent-go/pkg/didcomm/common/service"
	"github.com/crubn/aries-agent-go/pkg/didcomm/dispatcher"
	"github.com/crubn/aries-agent-go/pkg/didcomm/protocol/decorator"
	"github.com/crubn/aries-agent-go/pkg/didcomm/transport"
	agentctx "github.com/crubn/aries-agent-go/pkg/framework/context"
	"github.com/crubn/aries-agent-go/pkg/store/messagequeue"
)

var logger = log.New("aries-agent/pickup")

// ErrNotSupported is returned for pickup requests scoped to a single recipient key. The
// mailbox is kept per connection, not per key.
var ErrNotSupported = errors.New("recipient key filtering not supported")

type provider interface {
	Outbound() dispatcher.Outbound
	InboundMessageHandler() transport.InboundMessageHandler
}

// Service handles the pickup coordination messages.
type Service struct {
	outbound   dispatcher.Outbound
	msgHandler transport.InboundMessageHandler
}

// New returns a new pickup service.
func New(prov provider) *Service {
	return &Service{
		outbound:   prov.Outbound(),
		msgHandler: prov.InboundMessageHandler(),
	}
}

// RegisterHandlers registers the pickup handlers for both protocol roles.
func (s *Service) RegisterHandlers(d *dispatcher.Dispatcher) error {
	handlers := map[string]dispatcher.Handler{
		StatusRequestMsgType:    dispatcher.HandlerFunc(s.handleStatusRequest),
		DeliveryRequestMsgType:  dispatcher.HandlerFunc(s.handleDeliveryRequest),
		MessagesReceivedMsgType: dispatcher.HandlerFunc(s.handleMessagesReceived),
		StatusMsgType:           dispatcher.HandlerFunc(s.handleStatus),
		DeliveryMsgType:         dispatcher.HandlerFunc(s.handleDelivery),
		ForwardV3MsgType:        dispatcher.HandlerFunc(s.handleForwardNotice),
	}

	for msgType, handler := range handlers {
		if err := d.RegisterHandler(msgType, handler); err != nil {
			return errors.Wrap(err, "register pickup handlers")
		}
	}

	return nil
}

// QueueMessage stores an envelope on the connection's mailbox.
func (s *Service) QueueMessage(agent *agentctx.Provider, connectionID string, env *model.Envelope) (string, error) {
	repo, err := repository(agent)
	if err != nil {
		return "", err
	}

	return repo.Add(connectionID, env)
}

// handleStatusRequest reports how many messages wait on the sender's mailbox.
func (s *Service) handleStatusRequest(ictx *service.InboundMessageContext) (*service.OutboundMessageContext, error) {
	conn, err := ictx.AssertReadyConnection()
	if err != nil {
		return nil, err
	}

	request := &StatusRequest{}
	if err := ictx.Message.Decode(request); err != nil {
		return nil, errors.Wrap(err, "decode status request")
	}

	if request.RecipientKey != "" {
		return nil, ErrNotSupported
	}

	repo, err := repository(ictx.Agent)
	if err != nil {
		return nil, err
	}

	count, err := repo.AvailableCount(conn.ConnectionID)
	if err != nil {
		return nil, errors.Wrap(err, "count queued messages")
	}

	return statusReply(count, ictx.Message.ThreadID()), nil
}

// handleDeliveryRequest returns queued messages as attachments. The messages stay queued
// until the recipient acknowledges them with messages-received.
func (s *Service) handleDeliveryRequest(ictx *service.InboundMessageContext) (*service.OutboundMessageContext, error) {
	conn, err := ictx.AssertReadyConnection()
	if err != nil {
		return nil, err
	}

	request := &DeliveryRequest{}
	if err := ictx.Message.Decode(request); err != nil {
		return nil, errors.Wrap(err, "decode delivery request")
	}

	if request.RecipientKey != "" {
		return nil, ErrNotSupported
	}

	repo, err := repository(ictx.Agent)
	if err != nil {
		return nil, err
	}

	queued, err := repo.TakeFromQueue(conn.ConnectionID, request.Limit, true)
	if err != nil {
		return nil, errors.Wrap(err, "take queued messages")
	}

	if len(queued) == 0 {
		return statusReply(0, ictx.Message.ThreadID()), nil
	}

	attachments := make([]decorator.Attachment, 0, len(queued))

	for _, m := range queued {
		raw, err := json.Marshal(m.Message)
		if err != nil {
			return nil, errors.Wrap(err, "marshal queued envelope")
		}

		attachments = append(attachments, decorator.Attachment{
			ID:       m.ID,
			MimeType: "application/json",
			Data:     decorator.AttachmentData{Base64: base64.StdEncoding.EncodeToString(raw)},
		})
	}

	delivery := &MessageDelivery{
		Type:        DeliveryMsgType,
		ID:          uuid.New().String(),
		Attachments: attachments,
		Thread:      &decorator.Thread{ID: ictx.Message.ThreadID()},
	}

	return &service.OutboundMessageContext{Message: service.NewDIDCommMsgMap(delivery)}, nil
}

// handleMessagesReceived drops acknowledged messages and reports the remaining count.
// Delivery preserves arrival order, so the acknowledged messages are the oldest ones.
// An absent id list acknowledges everything that was delivered.
func (s *Service) handleMessagesReceived(ictx *service.InboundMessageContext) (*service.OutboundMessageContext, error) {
	conn, err := ictx.AssertReadyConnection()
	if err != nil {
		return nil, err
	}

	received := &MessagesReceived{}
	if err := ictx.Message.Decode(received); err != nil {
		return nil, errors.Wrap(err, "decode messages received")
	}

	repo, err := repository(ictx.Agent)
	if err != nil {
		return nil, err
	}

	// limit 0 takes the whole queue
	if _, err := repo.TakeFromQueue(conn.ConnectionID, len(received.MessageIDList), false); err != nil {
		return nil, errors.Wrap(err, "remove acknowledged messages")
	}

	count, err := repo.AvailableCount(conn.ConnectionID)
	if err != nil {
		return nil, errors.Wrap(err, "count queued messages")
	}

	return statusReply(count, ictx.Message.ThreadID()), nil
}

// handleStatus reacts to a mediator's status report by requesting delivery of whatever
// is waiting.
func (s *Service) handleStatus(ictx *service.InboundMessageContext) (*service.OutboundMessageContext, error) {
	if _, err := ictx.AssertReadyConnection(); err != nil {
		return nil, err
	}

	status := &Status{}
	if err := ictx.Message.Decode(status); err != nil {
		return nil, errors.Wrap(err, "decode status")
	}

	if status.MessageCount == 0 {
		return nil, nil
	}

	request := &DeliveryRequest{
		Type:   DeliveryRequestMsgType,
		ID:     uuid.New().String(),
		Limit:  status.MessageCount,
		Thread: &decorator.Thread{ID: ictx.Message.ThreadID()},
	}

	return &service.OutboundMessageContext{Message: service.NewDIDCommMsgMap(request)}, nil
}

// handleDelivery feeds the delivered envelopes back into the receive pipeline and
// acknowledges the ones that were accepted. Rejected envelopes stay queued on the
// mediator.
func (s *Service) handleDelivery(ictx *service.InboundMessageContext) (*service.OutboundMessageContext, error) {
	if _, err := ictx.AssertReadyConnection(); err != nil {
		return nil, err
	}

	delivery := &MessageDelivery{}
	if err := ictx.Message.Decode(delivery); err != nil {
		return nil, errors.Wrap(err, "decode delivery")
	}

	accepted := make([]string, 0, len(delivery.Attachments))

	for _, attachment := range delivery.Attachments {
		raw, err := base64.StdEncoding.DecodeString(attachment.Data.Base64)
		if err != nil {
			logger.Warnf("attachment %s not decodable: %v", attachment.ID, err)
			continue
		}

		if err := s.msgHandler(raw, nil); err != nil {
			logger.Warnf("delivered message %s not processed: %v", attachment.ID, err)
			continue
		}

		accepted = append(accepted, attachment.ID)
	}

	if len(accepted) == 0 {
		return nil, nil
	}

	received := &MessagesReceived{
		Type:          MessagesReceivedMsgType,
		ID:            uuid.New().String(),
		MessageIDList: accepted,
		Thread:        &decorator.Thread{ID: ictx.Message.ThreadID()},
	}

	return &service.OutboundMessageContext{Message: service.NewDIDCommMsgMap(received)}, nil
}

// handleForwardNotice reacts to a pushed queue notification by requesting delivery.
func (s *Service) handleForwardNotice(ictx *service.InboundMessageContext) (*service.OutboundMessageContext, error) {
	if _, err := ictx.AssertReadyConnection(); err != nil {
		return nil, err
	}

	request := &DeliveryRequest{
		Type:   DeliveryRequestMsgType,
		ID:     uuid.New().String(),
		Thread: &decorator.Thread{ID: ictx.Message.ThreadID()},
	}

	return &service.OutboundMessageContext{Message: service.NewDIDCommMsgMap(request)}, nil
}

func statusReply(count int, thid string) *service.OutboundMessageContext {
	status := &Status{
		Type:         StatusMsgType,
		ID:           uuid.New().String(),
		MessageCount: count,
		Thread:       &decorator.Thread{ID: thid},
	}

	return &service.OutboundMessageContext{Message: service.NewDIDCommMsgMap(status)}
}

func repository(agent *agentctx.Provider) (messagequeue.Repository, error) {
	repo := agent.MessageRepository()
	if repo == nil {
		return nil, errors.New("no message repository configured")
	}

	return repo, nil
}
