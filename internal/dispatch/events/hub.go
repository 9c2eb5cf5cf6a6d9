package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"mission-dispatch/internal/common/logger"
	"mission-dispatch/internal/models"

	"github.com/redis/go-redis/v9"
)

const topicPrefix = "dispatch:"

// MissionTopic carries every event about one mission.
func MissionTopic(missionID string) string {
	return topicPrefix + "mission:" + missionID
}

// WorkerTopic carries events addressed to one worker.
func WorkerTopic(workerID string) string {
	return topicPrefix + "worker:" + workerID
}

// InboxTopic carries in-app notifications for one recipient.
func InboxTopic(recipientID string) string {
	return topicPrefix + "inbox:" + recipientID
}

// Message is one payload received on a topic.
type Message struct {
	Topic   string
	Payload string
}

// Hub is the change stream over Redis pub/sub. Consumers Open a subscription
// for a set of topics and must Close it when done.
type Hub struct {
	rdb    *redis.Client
	logger logger.Logger
}

func NewHub(rdb *redis.Client, log logger.Logger) *Hub {
	return &Hub{rdb: rdb, logger: log}
}

// Publish implements Publisher: the event goes to its mission topic and to the
// topic of every worker it concerns. Worker topics get a copy without the
// recipient list so one worker never learns who else was addressed.
func (h *Hub) Publish(ctx context.Context, evt models.DispatchEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	var workerTopics []string
	seen := map[string]bool{}
	for _, id := range append([]string{evt.CandidateID}, evt.Recipients...) {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		workerTopics = append(workerTopics, WorkerTopic(id))
	}

	pipe := h.rdb.Pipeline()
	pipe.Publish(ctx, MissionTopic(evt.MissionID), payload)
	if len(workerTopics) > 0 {
		scoped := evt
		scoped.Recipients = nil
		workerPayload, err := json.Marshal(scoped)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		for _, topic := range workerTopics {
			pipe.Publish(ctx, topic, workerPayload)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish event %s: %w", evt.ID, err)
	}
	return nil
}

// PublishJSON sends v to a single topic.
func (h *Hub) PublishJSON(ctx context.Context, topic string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return h.rdb.Publish(ctx, topic, payload).Err()
}

// Subscription is an open set of topics. Messages arrive on C until Close.
type Subscription struct {
	C <-chan Message

	ps     *redis.PubSub
	done   chan struct{}
	once   sync.Once
	closed sync.WaitGroup
}

// Open subscribes to topics and returns once Redis has confirmed the subscription.
func (h *Hub) Open(ctx context.Context, topics ...string) (*Subscription, error) {
	if len(topics) == 0 {
		return nil, fmt.Errorf("open subscription: no topics")
	}

	ps := h.rdb.Subscribe(ctx, topics...)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("open subscription: %w", err)
	}

	out := make(chan Message, 16)
	sub := &Subscription{C: out, ps: ps, done: make(chan struct{})}
	sub.closed.Add(1)

	go func() {
		defer sub.closed.Done()
		defer close(out)
		in := ps.Channel()
		for {
			select {
			case <-sub.done:
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- Message{Topic: msg.Channel, Payload: msg.Payload}:
				case <-sub.done:
					return
				}
			}
		}
	}()

	h.logger.Debug("Change stream opened", map[string]interface{}{"topics": topics})
	return sub, nil
}

// Close releases the Redis subscription. It is safe to call more than once.
func (s *Subscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
		s.closed.Wait()
	})
	return err
}
