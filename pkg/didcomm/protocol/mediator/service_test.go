/*
Copyright Crubn. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mediator

import (
	"errors"
	"testing"

	"github.com/hyperledger/aries-framework-go/component/storageutil/mem"
	"github.com/hyperledger/aries-framework-go/spi/storage"
	"github.com/stretchr/testify/require"

	"github.com/crubn/aries-agent-go/pkg/didcomm/common/model"
	"github.com/crubn/aries-agent-go/pkg/didcomm/common/service"
	"github.com/crubn/aries-agent-go/pkg/didcomm/dispatcher"
	"github.com/crubn/aries-agent-go/pkg/didcomm/protocol/pickup"
	agentctx "github.com/crubn/aries-agent-go/pkg/framework/context"
	"github.com/crubn/aries-agent-go/pkg/kms"
	"github.com/crubn/aries-agent-go/pkg/store/connection"
	"github.com/crubn/aries-agent-go/pkg/store/messagequeue"
)

const testEndpoint = "ws://mediator.example.com"

type testStoreProvider struct {
	sp storage.Provider
}

func (p *testStoreProvider) StorageProvider() storage.Provider { return p.sp }

type mockOutbound struct {
	sent       []*service.OutboundMessageContext
	packages   []*model.Envelope
	sendErr    error
	packageErr error
}

func (m *mockOutbound) SendMessage(octx *service.OutboundMessageContext) error {
	if m.sendErr != nil {
		return m.sendErr
	}

	m.sent = append(m.sent, octx)

	return nil
}

func (m *mockOutbound) SendPackage(_ *agentctx.Provider, _ *connection.Record, env *model.Envelope) error {
	if m.packageErr != nil {
		return m.packageErr
	}

	m.packages = append(m.packages, env)

	return nil
}

type outboundProvider struct {
	outbound dispatcher.Outbound
}

func (p *outboundProvider) Outbound() dispatcher.Outbound { return p.outbound }

func newTestService(t *testing.T, repo messagequeue.Repository) (*Service, *dispatcher.Dispatcher, *mockOutbound, *agentctx.Provider) {
	t.Helper()

	sp := mem.NewProvider()

	keyManager, err := kms.New(&testStoreProvider{sp: sp})
	require.NoError(t, err)

	agent, err := agentctx.New(
		agentctx.WithLabel("mediator"),
		agentctx.WithStorageProvider(sp),
		agentctx.WithKMS(keyManager),
		agentctx.WithServiceEndpoint(testEndpoint),
		agentctx.WithMessageRepository(repo),
	)
	require.NoError(t, err)

	outbound := &mockOutbound{}
	svc := New(&outboundProvider{outbound: outbound})

	d := dispatcher.New()
	require.NoError(t, svc.RegisterHandlers(d))

	return svc, d, outbound, agent
}

func readyConnection(t *testing.T, agent *agentctx.Provider) *connection.Record {
	t.Helper()

	conn := &connection.Record{
		ConnectionID: "conn-1",
		State:        connection.StateNameCompleted,
		MyKey:        "2tUZVoBBtLz9LV6JHQKHP4TauhkBvkMGYkVjEyuapV4o",
		TheirKey:     "5dgABB6nUqpQTLwUfz16ZnZdGyLY6S4dM3KsAvNYbGTY",
	}

	require.NoError(t, agent.ConnectionRecorder().SaveConnectionRecord(conn))

	return conn
}

func grantMediation(t *testing.T, d *dispatcher.Dispatcher, agent *agentctx.Provider, conn *connection.Record) *Grant {
	t.Helper()

	octx, err := d.Dispatch(&service.InboundMessageContext{
		Message:    service.NewDIDCommMsgMap(&Request{Type: RequestMsgType, ID: "req-1"}),
		Agent:      agent,
		Connection: conn,
	})
	require.NoError(t, err)
	require.NotNil(t, octx)

	grant := &Grant{}
	require.NoError(t, octx.Message.Decode(grant))

	return grant
}

func forwardMsg(to string) service.DIDCommMsgMap {
	return service.NewDIDCommMsgMap(&model.Forward{
		Type: service.ForwardMsgType,
		ID:   "fwd-1",
		To:   to,
		Msg:  &model.Envelope{Protected: "p", CipherText: "c"},
	})
}

func TestMediationRequestGrant(t *testing.T) {
	svc, d, _, agent := newTestService(t, nil)
	conn := readyConnection(t, agent)

	grant := grantMediation(t, d, agent, conn)

	require.Equal(t, GrantMsgType, grant.Type)
	require.Equal(t, testEndpoint, grant.Endpoint)
	require.Len(t, grant.RoutingKeys, 1)
	require.NotEmpty(t, grant.RoutingKeys[0])

	store, err := svc.mediationStore(agent)
	require.NoError(t, err)

	record, err := store.GetMediationRecord(conn.ConnectionID)
	require.NoError(t, err)
	require.Equal(t, StateNameGranted, record.State)
}

func TestMediationRequestRequiresReadyConnection(t *testing.T) {
	_, d, _, agent := newTestService(t, nil)

	_, err := d.Dispatch(&service.InboundMessageContext{
		Message: service.NewDIDCommMsgMap(&Request{Type: RequestMsgType, ID: "req-1"}),
		Agent:   agent,
	})
	require.ErrorIs(t, err, service.ErrConnectionNotReady)
}

func TestMediationRequestIdempotent(t *testing.T) {
	_, d, _, agent := newTestService(t, nil)
	conn := readyConnection(t, agent)

	first := grantMediation(t, d, agent, conn)
	second := grantMediation(t, d, agent, conn)

	require.Equal(t, first.RoutingKeys, second.RoutingKeys)
}

func TestKeylistUpdate(t *testing.T) {
	svc, d, _, agent := newTestService(t, nil)
	conn := readyConnection(t, agent)
	grantMediation(t, d, agent, conn)

	update := &KeylistUpdate{
		Type: KeylistUpdateMsgType,
		ID:   "upd-1",
		Updates: []Update{
			{RecipientKey: "key-1", Action: UpdateActionAdd},
			{RecipientKey: "key-2", Action: UpdateActionAdd},
		},
	}

	octx, err := d.Dispatch(&service.InboundMessageContext{
		Message:    service.NewDIDCommMsgMap(update),
		Agent:      agent,
		Connection: conn,
	})
	require.NoError(t, err)

	response := &KeylistUpdateResponse{}
	require.NoError(t, octx.Message.Decode(response))
	require.Equal(t, KeylistUpdateResponseMsgType, response.Type)
	require.Len(t, response.Updated, 2)

	for _, u := range response.Updated {
		require.Equal(t, UpdateResultSuccess, u.Result)
	}

	store, err := svc.mediationStore(agent)
	require.NoError(t, err)

	connID, err := store.GetConnectionIDByRecipientKey("key-1")
	require.NoError(t, err)
	require.Equal(t, conn.ConnectionID, connID)

	record, err := store.GetMediationRecord(conn.ConnectionID)
	require.NoError(t, err)
	require.Equal(t, []string{"key-1", "key-2"}, record.RecipientKeys)

	// remove one key again
	octx, err = d.Dispatch(&service.InboundMessageContext{
		Message: service.NewDIDCommMsgMap(&KeylistUpdate{
			Type:    KeylistUpdateMsgType,
			ID:      "upd-2",
			Updates: []Update{{RecipientKey: "key-1", Action: UpdateActionRemove}},
		}),
		Agent:      agent,
		Connection: conn,
	})
	require.NoError(t, err)

	response = &KeylistUpdateResponse{}
	require.NoError(t, octx.Message.Decode(response))
	require.Equal(t, UpdateResultSuccess, response.Updated[0].Result)

	_, err = store.GetConnectionIDByRecipientKey("key-1")
	require.ErrorIs(t, err, ErrMediationNotFound)

	record, err = store.GetMediationRecord(conn.ConnectionID)
	require.NoError(t, err)
	require.Equal(t, []string{"key-2"}, record.RecipientKeys)
}

func TestKeylistUpdateUnknownAction(t *testing.T) {
	_, d, _, agent := newTestService(t, nil)
	conn := readyConnection(t, agent)
	grantMediation(t, d, agent, conn)

	octx, err := d.Dispatch(&service.InboundMessageContext{
		Message: service.NewDIDCommMsgMap(&KeylistUpdate{
			Type:    KeylistUpdateMsgType,
			ID:      "upd-1",
			Updates: []Update{{RecipientKey: "key-1", Action: "rotate"}},
		}),
		Agent:      agent,
		Connection: conn,
	})
	require.NoError(t, err)

	response := &KeylistUpdateResponse{}
	require.NoError(t, octx.Message.Decode(response))
	require.Equal(t, UpdateResultServerError, response.Updated[0].Result)
}

func TestKeylistUpdateWithoutGrant(t *testing.T) {
	_, d, _, agent := newTestService(t, nil)
	conn := readyConnection(t, agent)

	_, err := d.Dispatch(&service.InboundMessageContext{
		Message: service.NewDIDCommMsgMap(&KeylistUpdate{
			Type:    KeylistUpdateMsgType,
			ID:      "upd-1",
			Updates: []Update{{RecipientKey: "key-1", Action: UpdateActionAdd}},
		}),
		Agent:      agent,
		Connection: conn,
	})
	require.ErrorIs(t, err, ErrMediationNotGranted)
}

func registerRoute(t *testing.T, d *dispatcher.Dispatcher, agent *agentctx.Provider, conn *connection.Record, key string) {
	t.Helper()

	grantMediation(t, d, agent, conn)

	_, err := d.Dispatch(&service.InboundMessageContext{
		Message: service.NewDIDCommMsgMap(&KeylistUpdate{
			Type:    KeylistUpdateMsgType,
			ID:      "upd-1",
			Updates: []Update{{RecipientKey: key, Action: UpdateActionAdd}},
		}),
		Agent:      agent,
		Connection: conn,
	})
	require.NoError(t, err)
}

func TestForwardQueuesForOfflineRecipient(t *testing.T) {
	sp := mem.NewProvider()

	repo, err := messagequeue.NewStore(&testStoreProvider{sp: sp})
	require.NoError(t, err)

	_, d, outbound, agent := newTestService(t, repo)
	conn := readyConnection(t, agent)
	registerRoute(t, d, agent, conn, "recipient-key-1")

	// direct delivery fails, the envelope must land on the queue
	outbound.packageErr = errors.New("recipient unreachable")

	_, err = d.Dispatch(&service.InboundMessageContext{
		Message: forwardMsg("recipient-key-1"),
		Agent:   agent,
	})
	require.NoError(t, err)

	count, err := repo.AvailableCount(conn.ConnectionID)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestForwardDirectDelivery(t *testing.T) {
	sp := mem.NewProvider()

	repo, err := messagequeue.NewStore(&testStoreProvider{sp: sp})
	require.NoError(t, err)

	_, d, outbound, agent := newTestService(t, repo)
	conn := readyConnection(t, agent)
	registerRoute(t, d, agent, conn, "recipient-key-1")

	_, err = d.Dispatch(&service.InboundMessageContext{
		Message: forwardMsg("recipient-key-1"),
		Agent:   agent,
	})
	require.NoError(t, err)

	require.Len(t, outbound.packages, 1)
	require.Equal(t, "p", outbound.packages[0].Protected)

	count, err := repo.AvailableCount(conn.ConnectionID)
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

func TestForwardPushMode(t *testing.T) {
	sp := mem.NewProvider()

	repo, err := messagequeue.NewForwardStore(&testStoreProvider{sp: sp})
	require.NoError(t, err)

	_, d, outbound, agent := newTestService(t, repo)
	conn := readyConnection(t, agent)
	registerRoute(t, d, agent, conn, "recipient-key-1")

	_, err = d.Dispatch(&service.InboundMessageContext{
		Message: forwardMsg("recipient-key-1"),
		Agent:   agent,
	})
	require.NoError(t, err)

	// queued and announced by id
	count, err := repo.AvailableCount(conn.ConnectionID)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	require.Len(t, outbound.sent, 1)
	require.Equal(t, pickup.ForwardV3MsgType, outbound.sent[0].Message.Type())

	notice := &pickup.Forward{}
	require.NoError(t, outbound.sent[0].Message.Decode(notice))
	require.NotEmpty(t, notice.MessageID)

	queued, err := repo.TakeFromQueue(conn.ConnectionID, 0, true)
	require.NoError(t, err)
	require.Equal(t, queued[0].ID, notice.MessageID)
}

func TestForwardUnknownKey(t *testing.T) {
	_, d, _, agent := newTestService(t, nil)
	conn := readyConnection(t, agent)
	registerRoute(t, d, agent, conn, "recipient-key-1")

	_, err := d.Dispatch(&service.InboundMessageContext{
		Message: forwardMsg("unknown-key"),
		Agent:   agent,
	})
	require.ErrorIs(t, err, ErrMediationNotGranted)
}

func TestAddMessageAndCount(t *testing.T) {
	sp := mem.NewProvider()

	repo, err := messagequeue.NewStore(&testStoreProvider{sp: sp})
	require.NoError(t, err)

	svc, d, _, agent := newTestService(t, repo)
	conn := readyConnection(t, agent)

	// before grant nothing is accepted
	_, err = svc.AddMessage(agent, conn.ConnectionID, &model.Envelope{Protected: "p"})
	require.ErrorIs(t, err, ErrMediationNotGranted)

	grantMediation(t, d, agent, conn)

	id, err := svc.AddMessage(agent, conn.ConnectionID, &model.Envelope{Protected: "p"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	count, err := svc.GetAvailableMessageCount(agent, conn.ConnectionID)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestMediationRecordStateMachine(t *testing.T) {
	record := &MediationRecord{State: StateNameRequested}

	require.NoError(t, record.UpdateState(StateNameGranted))
	require.Equal(t, StateNameGranted, record.State)

	// granted is final
	require.Error(t, record.UpdateState(StateNameDenied))

	record = &MediationRecord{State: StateNameRequested}
	require.NoError(t, record.UpdateState(StateNameDenied))
	require.Error(t, record.UpdateState(StateNameGranted))
}

func TestMediationStoreRoundTrip(t *testing.T) {
	store, err := NewStore(&testStoreProvider{sp: mem.NewProvider()})
	require.NoError(t, err)

	_, err = store.GetMediationRecord("missing")
	require.ErrorIs(t, err, ErrMediationNotFound)

	record := &MediationRecord{
		ID:           "med-1",
		ConnectionID: "conn-1",
		State:        StateNameGranted,
		RoutingKeys:  []string{"routing-key"},
	}
	require.NoError(t, store.SaveMediationRecord(record))

	got, err := store.GetMediationRecord("conn-1")
	require.NoError(t, err)
	require.Equal(t, record, got)

	require.Error(t, store.SaveMediationRecord(&MediationRecord{}))
}
