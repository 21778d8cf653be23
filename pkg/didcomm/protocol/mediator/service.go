/*
Copyright Crubn. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package mediator implements the mediator side of RFC0211 coordinate-mediation and the
// forward relay built on it. Granted connections get their forwarded envelopes pushed
// over a live session, delivered directly, or queued for pickup.
package mediator

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hyperledger/aries-framework-go/component/log"

	"github.com/crubn/aries-agent-go/pkg/didcomm/common/model"
	"github.com/crubn/aries-agent-go/pkg/didcomm/common/service"
	"github.com/crubn/aries-agent-go/pkg/didcomm/dispatcher"
	"github.com/crubn/aries-agent-go/pkg/didcomm/protocol/pickup"
	agentctx "github.com/crubn/aries-agent-go/pkg/framework/context"
	"github.com/crubn/aries-agent-go/pkg/store/connection"
	"github.com/crubn/aries-agent-go/pkg/store/messagequeue"
)

var logger = log.New("aries-agent/mediator")

const (
	// CoordinationSpec defines the protocol spec of the coordinate mediation messages.
	CoordinationSpec = "https://didcomm.org/coordinatemediation/1.0/"

	// RequestMsgType asks this agent to mediate for the sender.
	RequestMsgType = CoordinationSpec + "mediate-request"

	// GrantMsgType accepts a mediation request.
	GrantMsgType = CoordinationSpec + "mediate-grant"

	// DenyMsgType rejects a mediation request.
	DenyMsgType = CoordinationSpec + "mediate-deny"

	// KeylistUpdateMsgType registers or removes recipient keys.
	KeylistUpdateMsgType = CoordinationSpec + "keylist_update"

	// KeylistUpdateResponseMsgType reports the result of a keylist update.
	KeylistUpdateResponseMsgType = CoordinationSpec + "keylist_update_response"
)

const (
	// UpdateActionAdd registers a recipient key.
	UpdateActionAdd = "add"

	// UpdateActionRemove removes a recipient key.
	UpdateActionRemove = "remove"

	// UpdateResultSuccess means the update was applied.
	UpdateResultSuccess = "success"

	// UpdateResultServerError means the update failed on the mediator.
	UpdateResultServerError = "server_error"
)

// ErrMediationNotGranted is returned when a forward or keylist update arrives for a
// connection without a granted mediation.
var ErrMediationNotGranted = errors.New("mediation not granted")

type provider interface {
	Outbound() dispatcher.Outbound
}

// Service handles mediation requests, keylist updates and forwarded envelopes.
type Service struct {
	outbound dispatcher.Outbound

	storeLock sync.Mutex
	stores    map[*agentctx.Provider]*Store
}

// New returns a new mediation service.
func New(prov provider) *Service {
	return &Service{
		outbound: prov.Outbound(),
		stores:   make(map[*agentctx.Provider]*Store),
	}
}

// RegisterHandlers registers the coordinate mediation and forward handlers.
func (s *Service) RegisterHandlers(d *dispatcher.Dispatcher) error {
	handlers := map[string]dispatcher.Handler{
		RequestMsgType:         dispatcher.HandlerFunc(s.handleMediationRequest),
		KeylistUpdateMsgType:   dispatcher.HandlerFunc(s.handleKeylistUpdate),
		service.ForwardMsgType: dispatcher.HandlerFunc(s.handleForward),
	}

	for msgType, handler := range handlers {
		if err := d.RegisterHandler(msgType, handler); err != nil {
			return fmt.Errorf("register mediator handlers: %w", err)
		}
	}

	return nil
}

// handleMediationRequest grants mediation to the requesting connection. The grant
// carries this tenant's endpoint and a routing key created for the connection.
func (s *Service) handleMediationRequest(ictx *service.InboundMessageContext) (*service.OutboundMessageContext, error) {
	conn, err := ictx.AssertReadyConnection()
	if err != nil {
		return nil, err
	}

	store, err := s.mediationStore(ictx.Agent)
	if err != nil {
		return nil, err
	}

	record, err := store.GetMediationRecord(conn.ConnectionID)
	if err != nil {
		if !errors.Is(err, ErrMediationNotFound) {
			return nil, err
		}

		record = &MediationRecord{
			ID:           uuid.New().String(),
			ConnectionID: conn.ConnectionID,
			State:        StateNameRequested,
			CreatedTime:  time.Now(),
		}
	}

	if record.State != StateNameGranted {
		if err := record.UpdateState(StateNameGranted); err != nil {
			return nil, err
		}
	}

	if len(record.RoutingKeys) == 0 {
		routingKey, err := ictx.Agent.KMS().CreateKeySet()
		if err != nil {
			return nil, fmt.Errorf("create routing key: %w", err)
		}

		record.RoutingKeys = []string{routingKey}
	}

	if err := store.SaveMediationRecord(record); err != nil {
		return nil, err
	}

	grant := &Grant{
		Type:        GrantMsgType,
		ID:          uuid.New().String(),
		Endpoint:    ictx.Agent.ServiceEndpoint(),
		RoutingKeys: record.RoutingKeys,
	}

	return &service.OutboundMessageContext{Message: service.NewDIDCommMsgMap(grant)}, nil
}

// handleKeylistUpdate applies the requested key updates and reports a per-key result.
func (s *Service) handleKeylistUpdate(ictx *service.InboundMessageContext) (*service.OutboundMessageContext, error) {
	conn, err := ictx.AssertReadyConnection()
	if err != nil {
		return nil, err
	}

	store, err := s.mediationStore(ictx.Agent)
	if err != nil {
		return nil, err
	}

	record, err := store.GetMediationRecord(conn.ConnectionID)
	if err != nil {
		if errors.Is(err, ErrMediationNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrMediationNotGranted, conn.ConnectionID)
		}

		return nil, err
	}

	if record.State != StateNameGranted {
		return nil, fmt.Errorf("%w: %s", ErrMediationNotGranted, conn.ConnectionID)
	}

	update := &KeylistUpdate{}
	if err := ictx.Message.Decode(update); err != nil {
		return nil, fmt.Errorf("decode keylist update: %w", err)
	}

	updated := make([]UpdateResponse, 0, len(update.Updates))

	for _, u := range update.Updates {
		updated = append(updated, UpdateResponse{
			RecipientKey: u.RecipientKey,
			Action:       u.Action,
			Result:       s.applyUpdate(store, record, u),
		})
	}

	if err := store.SaveMediationRecord(record); err != nil {
		return nil, err
	}

	response := &KeylistUpdateResponse{
		Type:    KeylistUpdateResponseMsgType,
		ID:      uuid.New().String(),
		Updated: updated,
	}

	return &service.OutboundMessageContext{Message: service.NewDIDCommMsgMap(response)}, nil
}

func (s *Service) applyUpdate(store *Store, record *MediationRecord, u Update) string {
	switch u.Action {
	case UpdateActionAdd:
		if err := store.SaveRoute(u.RecipientKey, record.ConnectionID); err != nil {
			logger.Warnf("keylist add for %s failed: %v", u.RecipientKey, err)
			return UpdateResultServerError
		}

		record.RecipientKeys = appendKey(record.RecipientKeys, u.RecipientKey)

		return UpdateResultSuccess
	case UpdateActionRemove:
		if err := store.DeleteRoute(u.RecipientKey); err != nil {
			logger.Warnf("keylist remove for %s failed: %v", u.RecipientKey, err)
			return UpdateResultServerError
		}

		record.RecipientKeys = removeKey(record.RecipientKeys, u.RecipientKey)

		return UpdateResultSuccess
	default:
		return UpdateResultServerError
	}
}

// handleForward relays a forwarded envelope to the mediated recipient.
func (s *Service) handleForward(ictx *service.InboundMessageContext) (*service.OutboundMessageContext, error) {
	env, record, err := s.ProcessForward(ictx)
	if err != nil {
		return nil, err
	}

	return nil, s.deliver(ictx.Agent, record, env)
}

// ProcessForward validates a forward message against the routes of a granted mediation
// and returns the carried envelope untouched.
func (s *Service) ProcessForward(ictx *service.InboundMessageContext) (*model.Envelope, *MediationRecord, error) {
	forward := &model.Forward{}
	if err := ictx.Message.Decode(forward); err != nil {
		return nil, nil, fmt.Errorf("decode forward: %w", err)
	}

	if forward.To == "" {
		return nil, nil, errors.New("forward message missing to")
	}

	if forward.Msg == nil {
		return nil, nil, errors.New("forward message missing payload")
	}

	store, err := s.mediationStore(ictx.Agent)
	if err != nil {
		return nil, nil, err
	}

	connectionID, err := store.GetConnectionIDByRecipientKey(forward.To)
	if err != nil {
		if errors.Is(err, ErrMediationNotFound) {
			return nil, nil, fmt.Errorf("%w: no route for %s", ErrMediationNotGranted, forward.To)
		}

		return nil, nil, err
	}

	record, err := store.GetMediationRecord(connectionID)
	if err != nil {
		if errors.Is(err, ErrMediationNotFound) {
			return nil, nil, fmt.Errorf("%w: %s", ErrMediationNotGranted, connectionID)
		}

		return nil, nil, err
	}

	if record.State != StateNameGranted {
		return nil, nil, fmt.Errorf("%w: %s", ErrMediationNotGranted, connectionID)
	}

	return forward.Msg, record, nil
}

// deliver hands the envelope to the recipient. Queues announcing forwarded messages get
// the envelope stored and its id pushed; otherwise direct delivery is attempted with the
// queue as fallback.
func (s *Service) deliver(agent *agentctx.Provider, record *MediationRecord, env *model.Envelope) error {
	repo := agent.MessageRepository()
	if repo == nil {
		return errors.New("no message repository configured")
	}

	conn := s.recipientConnection(agent, record.ConnectionID)

	if fwdStore, ok := repo.(messagequeue.ForwardMessageStore); ok {
		id, err := fwdStore.AddForwardMessage(record.ConnectionID, env)
		if err != nil {
			return fmt.Errorf("queue forwarded message: %w", err)
		}

		s.pushForwardNotice(agent, conn, id)

		return nil
	}

	if conn != nil {
		err := s.outbound.SendPackage(agent, conn, env)
		if err == nil {
			return nil
		}

		logger.Debugf("direct delivery for %s failed, queueing: %v", record.ConnectionID, err)
	}

	if _, err := repo.Add(record.ConnectionID, env); err != nil {
		return fmt.Errorf("queue forwarded message: %w", err)
	}

	return nil
}

// AddMessage queues an envelope for a mediated connection.
func (s *Service) AddMessage(agent *agentctx.Provider, connectionID string, env *model.Envelope) (string, error) {
	if err := s.assertGranted(agent, connectionID); err != nil {
		return "", err
	}

	repo := agent.MessageRepository()
	if repo == nil {
		return "", errors.New("no message repository configured")
	}

	return repo.Add(connectionID, env)
}

// GetAvailableMessageCount returns the number of envelopes queued for a mediated
// connection.
func (s *Service) GetAvailableMessageCount(agent *agentctx.Provider, connectionID string) (int, error) {
	if err := s.assertGranted(agent, connectionID); err != nil {
		return 0, err
	}

	repo := agent.MessageRepository()
	if repo == nil {
		return 0, errors.New("no message repository configured")
	}

	return repo.AvailableCount(connectionID)
}

func (s *Service) assertGranted(agent *agentctx.Provider, connectionID string) error {
	store, err := s.mediationStore(agent)
	if err != nil {
		return err
	}

	record, err := store.GetMediationRecord(connectionID)
	if err != nil {
		if errors.Is(err, ErrMediationNotFound) {
			return fmt.Errorf("%w: %s", ErrMediationNotGranted, connectionID)
		}

		return err
	}

	if record.State != StateNameGranted {
		return fmt.Errorf("%w: %s", ErrMediationNotGranted, connectionID)
	}

	return nil
}

// pushForwardNotice tells a reachable recipient that a message is waiting. The envelope
// is already queued, delivery of the notice is best effort.
func (s *Service) pushForwardNotice(agent *agentctx.Provider, conn *connection.Record, messageID string) {
	if conn == nil {
		return
	}

	notice := &pickup.Forward{
		Type:      pickup.ForwardV3MsgType,
		ID:        uuid.New().String(),
		MessageID: messageID,
	}

	err := s.outbound.SendMessage(&service.OutboundMessageContext{
		Message:    service.NewDIDCommMsgMap(notice),
		Agent:      agent,
		Connection: conn,
	})
	if err != nil {
		logger.Debugf("forward notice for %s not delivered: %v", conn.ConnectionID, err)
	}
}

func (s *Service) recipientConnection(agent *agentctx.Provider, connectionID string) *connection.Record {
	lookup := agent.ConnectionLookup()
	if lookup == nil {
		return nil
	}

	conn, err := lookup.GetConnectionRecord(connectionID)
	if err != nil {
		logger.Debugf("connection %s not resolvable: %v", connectionID, err)
		return nil
	}

	return conn
}

func (s *Service) mediationStore(agent *agentctx.Provider) (*Store, error) {
	s.storeLock.Lock()
	defer s.storeLock.Unlock()

	if store, ok := s.stores[agent]; ok {
		return store, nil
	}

	store, err := NewStore(agent)
	if err != nil {
		return nil, err
	}

	s.stores[agent] = store

	return store, nil
}

func appendKey(keys []string, key string) []string {
	for _, k := range keys {
		if k == key {
			return keys
		}
	}

	return append(keys, key)
}

func removeKey(keys []string, key string) []string {
	out := keys[:0]

	for _, k := range keys {
		if k != key {
			out = append(out, k)
		}
	}

	return out
}
