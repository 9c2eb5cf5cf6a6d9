package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"mission-dispatch/internal/common/logger"
	"mission-dispatch/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/asaskevich/EventBus"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mocks
// ==========================

type recordingSink struct {
	mu     sync.Mutex
	events []models.DispatchEvent
	err    error
}

func (r *recordingSink) Publish(ctx context.Context, evt models.DispatchEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return r.err
}

func (r *recordingSink) received() []models.DispatchEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.DispatchEvent(nil), r.events...)
}

type MockBroker struct {
	RoutingKey string
	MessageID  string
	Body       []byte
	Err        error
}

func (m *MockBroker) PublishWithRetry(ctx context.Context, routingKey, messageID string, body []byte) error {
	m.RoutingKey, m.MessageID, m.Body = routingKey, messageID, body
	return m.Err
}

type MockMessagePublisher struct {
	Calls []map[string]interface{}
}

func (m *MockMessagePublisher) PublishMessage(ctx context.Context, name, correlationKey, messageID string, ttl time.Duration, vars map[string]interface{}) error {
	m.Calls = append(m.Calls, map[string]interface{}{
		"name": name, "correlationKey": correlationKey, "messageId": messageID, "ttl": ttl, "vars": vars,
	})
	return nil
}

func sampleEvent(t models.EventType) models.DispatchEvent {
	evt := New(t, "m-1", time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC))
	evt.CandidateID = "w-1"
	return evt
}

// ==========================
// Bus
// ==========================

func TestBus_FansOutToAllSinks(t *testing.T) {
	bus := NewBus(EventBus.New(), logger.NewTestLogger(t))
	first, second := &recordingSink{}, &recordingSink{err: errors.New("sink down")}
	require.NoError(t, bus.Attach("first", first))
	require.NoError(t, bus.Attach("second", second))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, bus.Publish(ctx, sampleEvent(models.EventOfferClaimed)))
	cancel()
	require.NoError(t, bus.Publish(context.Background(), sampleEvent(models.EventMissionCancelled)))
	bus.Drain()

	assert.Len(t, first.received(), 2)
	assert.Len(t, second.received(), 2)
}

func TestBus_RejectsUnknownEventType(t *testing.T) {
	bus := NewBus(EventBus.New(), logger.NewNoOpLogger())
	err := bus.Publish(context.Background(), models.DispatchEvent{Type: "mission.exploded"})
	assert.Error(t, err)
}

// ==========================
// AMQP sink
// ==========================

func TestAMQPSink_RoutesByEventType(t *testing.T) {
	broker := &MockBroker{}
	evt := sampleEvent(models.EventOfferPublished)
	evt.Recipients = []string{"w-1", "w-2"}

	require.NoError(t, NewAMQPSink(broker).Publish(context.Background(), evt))

	assert.Equal(t, "offer.published", broker.RoutingKey)
	assert.Equal(t, evt.ID, broker.MessageID)

	decoded, err := Decode(broker.Body)
	require.NoError(t, err)
	assert.Equal(t, evt.Recipients, decoded.Recipients)
	assert.Equal(t, evt.MissionID, decoded.MissionID)
}

func TestDecode_RejectsInvalidEvents(t *testing.T) {
	_, err := Decode([]byte(`{not json`))
	assert.Error(t, err)

	_, err = Decode([]byte(`{"id":"e1","type":"mission.exploded","missionId":"m-1"}`))
	assert.Error(t, err)

	_, err = Decode([]byte(`{"id":"e1","type":"offer.claimed"}`))
	assert.Error(t, err)
}

// ==========================
// Zeebe sink
// ==========================

func TestZeebeSink_PublishesCorrelatedMessages(t *testing.T) {
	pub := &MockMessagePublisher{}
	sink := NewZeebeSink(pub, time.Minute)

	require.NoError(t, sink.Publish(context.Background(), sampleEvent(models.EventOfferClaimed)))
	require.NoError(t, sink.Publish(context.Background(), sampleEvent(models.EventOfferPublished)))

	require.Len(t, pub.Calls, 1)
	call := pub.Calls[0]
	assert.Equal(t, "mission-claimed", call["name"])
	assert.Equal(t, "m-1", call["correlationKey"])
	assert.Equal(t, time.Minute, call["ttl"])
	vars := call["vars"].(map[string]interface{})
	assert.Equal(t, "w-1", vars["assignedWorkerId"])
}

// ==========================
// Hub
// ==========================

func newHub(t *testing.T) *Hub {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewHub(rdb, logger.NewTestLogger(t))
}

func receive(t *testing.T, sub *Subscription) Message {
	t.Helper()
	select {
	case msg, ok := <-sub.C:
		require.True(t, ok, "subscription closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}
	}
}

func TestHub_DeliversToMissionAndWorkerTopics(t *testing.T) {
	hub := newHub(t)
	ctx := context.Background()

	missionSub, err := hub.Open(ctx, MissionTopic("m-1"))
	require.NoError(t, err)
	defer missionSub.Close()

	workerSub, err := hub.Open(ctx, WorkerTopic("w-2"))
	require.NoError(t, err)
	defer workerSub.Close()

	evt := sampleEvent(models.EventOfferPublished)
	evt.Recipients = []string{"w-1", "w-2"}
	require.NoError(t, hub.Publish(ctx, evt))

	msg := receive(t, missionSub)
	assert.Equal(t, MissionTopic("m-1"), msg.Topic)
	var got models.DispatchEvent
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	assert.Equal(t, evt.ID, got.ID)

	assert.Equal(t, []string{"w-1", "w-2"}, got.Recipients)

	msg = receive(t, workerSub)
	assert.Equal(t, WorkerTopic("w-2"), msg.Topic)
	var scoped models.DispatchEvent
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &scoped))
	assert.Equal(t, evt.ID, scoped.ID)
	assert.Empty(t, scoped.Recipients)
}

func TestHub_CloseEndsSubscription(t *testing.T) {
	hub := newHub(t)
	ctx := context.Background()

	sub, err := hub.Open(ctx, InboxTopic("w-1"))
	require.NoError(t, err)

	require.NoError(t, hub.PublishJSON(ctx, InboxTopic("w-1"), map[string]string{"title": "hello"}))
	msg := receive(t, sub)
	assert.JSONEq(t, `{"title":"hello"}`, msg.Payload)

	require.NoError(t, sub.Close())
	assert.NoError(t, sub.Close())

	_, ok := <-sub.C
	assert.False(t, ok)
}

func TestHub_OpenRequiresTopics(t *testing.T) {
	_, err := newHub(t).Open(context.Background())
	assert.Error(t, err)
}

func TestHub_PublishDeduplicatesWorkerTopics(t *testing.T) {
	db, mock := redismock.NewClientMock()
	hub := NewHub(db, logger.NewTestLogger(t))

	evt := sampleEvent(models.EventOfferClaimed)
	evt.CandidateID = "w-1"
	evt.Recipients = []string{"w-1", "", "w-2"}
	payload, err := json.Marshal(evt)
	require.NoError(t, err)
	scoped := evt
	scoped.Recipients = nil
	workerPayload, err := json.Marshal(scoped)
	require.NoError(t, err)

	mock.ExpectPublish(MissionTopic(evt.MissionID), payload).SetVal(1)
	mock.ExpectPublish(WorkerTopic("w-1"), workerPayload).SetVal(1)
	mock.ExpectPublish(WorkerTopic("w-2"), workerPayload).SetVal(0)

	require.NoError(t, hub.Publish(context.Background(), evt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHub_PublishJSONReportsRedisErrors(t *testing.T) {
	db, mock := redismock.NewClientMock()
	hub := NewHub(db, logger.NewTestLogger(t))

	mock.ExpectPublish(InboxTopic("w-1"), []byte(`{"id":"n-1"}`)).SetErr(errors.New("READONLY You can't write against a read only replica"))

	err := hub.PublishJSON(context.Background(), InboxTopic("w-1"), map[string]string{"id": "n-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "READONLY")
	assert.NoError(t, mock.ExpectationsWereMet())
}
