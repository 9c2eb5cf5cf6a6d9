// Package inbox mirrors notifications into Elasticsearch for operator search.
// Postgres stays the source of truth; the index may lag it.
package inbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	commonerrors "mission-dispatch/internal/common/errors"
	"mission-dispatch/internal/common/logger"
	"mission-dispatch/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

var ErrDocumentNotFound = errors.New("INBOX_DOCUMENT_NOT_FOUND")

// Mapping is the index definition used when the inbox index is created.
const Mapping = `{
  "mappings": {
    "properties": {
      "id":              {"type": "keyword"},
      "recipientId":     {"type": "keyword"},
      "eventType":       {"type": "keyword"},
      "relatedEntityId": {"type": "keyword"},
      "title":           {"type": "text"},
      "message":         {"type": "text"},
      "priority":        {"type": "integer"},
      "channels":        {"type": "keyword"},
      "status":          {"type": "keyword"},
      "skipReason":      {"type": "keyword"},
      "createdAt":       {"type": "date"},
      "updatedAt":       {"type": "date"},
      "deliveries": {
        "properties": {
          "in_app": {"properties": {"status": {"type": "keyword"}, "retryCount": {"type": "integer"}, "error": {"type": "text"}}},
          "email":  {"properties": {"status": {"type": "keyword"}, "retryCount": {"type": "integer"}, "error": {"type": "text"}}},
          "sms":    {"properties": {"status": {"type": "keyword"}, "retryCount": {"type": "integer"}, "error": {"type": "text"}}},
          "push":   {"properties": {"status": {"type": "keyword"}, "retryCount": {"type": "integer"}, "error": {"type": "text"}}}
        }
      }
    }
  }
}`

// Document is the indexed shape of a notification.
type Document struct {
	ID              string                      `json:"id"`
	RecipientID     string                      `json:"recipientId"`
	EventType       models.EventType            `json:"eventType"`
	RelatedEntityID string                      `json:"relatedEntityId,omitempty"`
	Title           string                      `json:"title"`
	Message         string                      `json:"message"`
	Priority        models.Priority             `json:"priority"`
	Channels        []models.Channel            `json:"channels"`
	Status          models.NotificationStatus   `json:"status"`
	SkipReason      string                      `json:"skipReason,omitempty"`
	CreatedAt       time.Time                   `json:"createdAt"`
	UpdatedAt       time.Time                   `json:"updatedAt"`
	Deliveries      map[string]DeliveryDocument `json:"deliveries,omitempty"`
}

type DeliveryDocument struct {
	Status     models.DeliveryStatus `json:"status"`
	RetryCount int                   `json:"retryCount"`
	Error      string                `json:"error,omitempty"`
	SentAt     *time.Time            `json:"sentAt,omitempty"`
	UpdatedAt  time.Time             `json:"updatedAt"`
}

func deliveryDocument(d models.Delivery) DeliveryDocument {
	return DeliveryDocument{
		Status:     d.Status,
		RetryCount: d.RetryCount,
		Error:      d.Error,
		SentAt:     d.SentAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

// Index implements notifications.Index on top of Elasticsearch.
type Index struct {
	client *elasticsearch.Client
	name   string
	logger logger.Logger
}

func New(client *elasticsearch.Client, name string, log logger.Logger) *Index {
	return &Index{
		client: client,
		name:   name,
		logger: log.WithFields(map[string]interface{}{"index": name}),
	}
}

func (x *Index) IndexNotification(ctx context.Context, n models.Notification) error {
	doc := Document{
		ID:              n.ID,
		RecipientID:     n.RecipientID,
		EventType:       n.EventType,
		RelatedEntityID: n.RelatedEntityID,
		Title:           n.Title,
		Message:         n.Message,
		Priority:        n.Priority,
		Channels:        n.Channels,
		Status:          n.Status,
		SkipReason:      n.SkipReason,
		CreatedAt:       n.CreatedAt,
		UpdatedAt:       n.CreatedAt,
		Deliveries:      make(map[string]DeliveryDocument, len(n.Deliveries)),
	}
	for _, d := range n.Deliveries {
		doc.Deliveries[string(d.Channel)] = deliveryDocument(d)
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal inbox document: %w", err)
	}
	req := esapi.IndexRequest{
		Index:      x.name,
		DocumentID: n.ID,
		Body:       bytes.NewReader(body),
	}
	return x.do(ctx, req, "index notification")
}

// UpdateDelivery merges one channel's delivery state into the document.
func (x *Index) UpdateDelivery(ctx context.Context, notificationID string, d models.Delivery) error {
	body, err := json.Marshal(map[string]interface{}{
		"doc": map[string]interface{}{
			"updatedAt":  d.UpdatedAt,
			"deliveries": map[string]DeliveryDocument{string(d.Channel): deliveryDocument(d)},
		},
	})
	if err != nil {
		return fmt.Errorf("marshal delivery update: %w", err)
	}
	req := esapi.UpdateRequest{
		Index:           x.name,
		DocumentID:      notificationID,
		Body:            bytes.NewReader(body),
		RetryOnConflict: esapi.IntPtr(3),
	}
	return x.do(ctx, req, "update delivery")
}

type request interface {
	Do(ctx context.Context, transport esapi.Transport) (*esapi.Response, error)
}

func (x *Index) do(ctx context.Context, req request, op string) error {
	res, err := req.Do(ctx, x.client)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer res.Body.Close()

	if res.StatusCode == 404 {
		return fmt.Errorf("%s: %w", op, ErrDocumentNotFound)
	}
	if res.IsError() {
		return fmt.Errorf("%s: %s", op, res.String())
	}
	return nil
}

// Query filters operator searches. Zero values match everything.
type Query struct {
	RecipientID string
	Channel     models.Channel
	Status      models.DeliveryStatus
	EventType   models.EventType
	Limit       int
	Offset      int
}

type Result struct {
	Total     int64      `json:"total"`
	Documents []Document `json:"documents"`
}

func buildQuery(q Query) map[string]interface{} {
	var filters []interface{}
	term := func(field, value string) {
		filters = append(filters, map[string]interface{}{"term": map[string]interface{}{field: value}})
	}

	if q.RecipientID != "" {
		term("recipientId", q.RecipientID)
	}
	if q.EventType != "" {
		term("eventType", string(q.EventType))
	}
	switch {
	case q.Channel != "" && q.Status != "":
		term("deliveries."+string(q.Channel)+".status", string(q.Status))
	case q.Channel != "":
		term("channels", string(q.Channel))
	case q.Status != "":
		var should []interface{}
		for _, c := range models.AllChannels {
			should = append(should, map[string]interface{}{
				"term": map[string]interface{}{"deliveries." + string(c) + ".status": string(q.Status)},
			})
		}
		filters = append(filters, map[string]interface{}{
			"bool": map[string]interface{}{"should": should, "minimum_should_match": 1},
		})
	}

	query := map[string]interface{}{"match_all": map[string]interface{}{}}
	if len(filters) > 0 {
		query = map[string]interface{}{"bool": map[string]interface{}{"filter": filters}}
	}
	return map[string]interface{}{
		"query": query,
		"sort":  []interface{}{map[string]interface{}{"createdAt": map[string]string{"order": "desc"}}},
	}
}

func (q Query) validate() error {
	if q.Channel != "" {
		if _, err := models.ParseChannel(string(q.Channel)); err != nil {
			return commonerrors.NewValidationError(err.Error())
		}
	}
	if q.Status != "" {
		if _, err := models.ParseDeliveryStatus(string(q.Status)); err != nil {
			return commonerrors.NewValidationError(err.Error())
		}
	}
	if q.EventType != "" {
		if _, err := models.ParseEventType(string(q.EventType)); err != nil {
			return commonerrors.NewValidationError(err.Error())
		}
	}
	if q.Offset < 0 {
		return commonerrors.NewValidationError("offset must not be negative")
	}
	return nil
}

// Search runs an operator query, newest first.
func (x *Index) Search(ctx context.Context, q Query) (*Result, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	size := q.Limit
	if size <= 0 {
		size = defaultLimit
	}
	if size > maxLimit {
		size = maxLimit
	}

	body, err := json.Marshal(buildQuery(q))
	if err != nil {
		return nil, fmt.Errorf("marshal search: %w", err)
	}
	req := esapi.SearchRequest{
		Index: []string{x.name},
		Body:  bytes.NewReader(body),
		Size:  esapi.IntPtr(size),
		From:  esapi.IntPtr(q.Offset),
	}

	start := time.Now()
	res, err := req.Do(ctx, x.client)
	if err != nil {
		return nil, commonerrors.NewSearchQueryFailedError(err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, commonerrors.NewSearchQueryFailedError(fmt.Errorf("search: %s", strings.TrimSpace(res.String())))
	}

	var r struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source Document `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, commonerrors.NewSearchQueryFailedError(fmt.Errorf("decode search response: %w", err))
	}

	out := &Result{Total: r.Hits.Total.Value, Documents: make([]Document, 0, len(r.Hits.Hits))}
	for _, h := range r.Hits.Hits {
		out.Documents = append(out.Documents, h.Source)
	}
	x.logger.Debug("Inbox search", map[string]interface{}{
		"total":    out.Total,
		"returned": len(out.Documents),
		"tookMs":   time.Since(start).Milliseconds(),
	})
	return out, nil
}
