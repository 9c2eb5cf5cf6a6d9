package inbox

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	commonerrors "mission-dispatch/internal/common/errors"
	"mission-dispatch/internal/common/logger"
	"mission-dispatch/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Fake transport
// ==========================

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   map[string]interface{}
}

type fakeTransport struct {
	mu       sync.Mutex
	status   int
	response string
	requests []recordedRequest
}

func (f *fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	rec := recordedRequest{Method: req.Method, Path: req.URL.Path, Query: req.URL.RawQuery}
	if req.Body != nil {
		raw, _ := io.ReadAll(req.Body)
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &rec.Body)
		}
	}
	f.mu.Lock()
	f.requests = append(f.requests, rec)
	status, body := f.status, f.response
	f.mu.Unlock()

	if status == 0 {
		status = http.StatusOK
	}
	if body == "" {
		body = `{}`
	}
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("X-Elastic-Product", "Elasticsearch")
	return &http.Response{
		StatusCode: status,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    req,
	}, nil
}

func (f *fakeTransport) last() recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func newIndex(t *testing.T, tr *fakeTransport) *Index {
	t.Helper()
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{"http://es.test:9200"},
		Transport: tr,
	})
	require.NoError(t, err)
	return New(client, "notification-inbox", logger.NewTestLogger(t))
}

var created = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

// ==========================
// Writes
// ==========================

func TestIndexNotification(t *testing.T) {
	tr := &fakeTransport{status: http.StatusCreated, response: `{"result":"created"}`}
	x := newIndex(t, tr)

	err := x.IndexNotification(context.Background(), models.Notification{
		ID:          "n-1",
		RecipientID: "w1",
		EventType:   models.EventOfferPublished,
		Title:       "New mission available",
		Channels:    []models.Channel{models.ChannelInApp, models.ChannelSMS},
		Status:      models.NotificationQueued,
		CreatedAt:   created,
		Deliveries: []models.Delivery{
			{Channel: models.ChannelInApp, Status: models.DeliveryPending},
			{Channel: models.ChannelSMS, Status: models.DeliveryPending},
		},
	})
	require.NoError(t, err)

	req := tr.last()
	assert.Equal(t, http.MethodPut, req.Method)
	assert.Equal(t, "/notification-inbox/_doc/n-1", req.Path)
	assert.Equal(t, "w1", req.Body["recipientId"])
	deliveries := req.Body["deliveries"].(map[string]interface{})
	assert.Contains(t, deliveries, "in_app")
	assert.Contains(t, deliveries, "sms")
}

func TestUpdateDelivery_MergesChannel(t *testing.T) {
	tr := &fakeTransport{response: `{"result":"updated"}`}
	x := newIndex(t, tr)
	sent := created.Add(time.Minute)

	err := x.UpdateDelivery(context.Background(), "n-1", models.Delivery{
		Channel: models.ChannelEmail, Status: models.DeliverySent, RetryCount: 2, SentAt: &sent, UpdatedAt: sent,
	})
	require.NoError(t, err)

	req := tr.last()
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/notification-inbox/_update/n-1", req.Path)
	assert.Contains(t, req.Query, "retry_on_conflict=3")
	doc := req.Body["doc"].(map[string]interface{})
	email := doc["deliveries"].(map[string]interface{})["email"].(map[string]interface{})
	assert.Equal(t, "sent", email["status"])
	assert.Equal(t, float64(2), email["retryCount"])
}

func TestUpdateDelivery_MissingDocument(t *testing.T) {
	tr := &fakeTransport{status: http.StatusNotFound, response: `{"error":{"type":"document_missing_exception"}}`}
	err := newIndex(t, tr).UpdateDelivery(context.Background(), "n-404", models.Delivery{Channel: models.ChannelSMS})
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

// ==========================
// Search
// ==========================

const searchResponse = `{
  "took": 3,
  "hits": {
    "total": {"value": 2, "relation": "eq"},
    "hits": [
      {"_source": {"id": "n-2", "recipientId": "w1", "eventType": "offer.claimed", "status": "queued",
                   "deliveries": {"sms": {"status": "failed", "retryCount": 5, "error": "carrier rejected"}}}},
      {"_source": {"id": "n-1", "recipientId": "w1", "eventType": "offer.published", "status": "queued"}}
    ]
  }
}`

func TestSearch_ChannelAndStatus(t *testing.T) {
	tr := &fakeTransport{response: searchResponse}
	x := newIndex(t, tr)

	res, err := x.Search(context.Background(), Query{
		RecipientID: "w1", Channel: models.ChannelSMS, Status: models.DeliveryFailed, Limit: 1000,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(2), res.Total)
	require.Len(t, res.Documents, 2)
	assert.Equal(t, "n-2", res.Documents[0].ID)
	assert.Equal(t, models.DeliveryFailed, res.Documents[0].Deliveries["sms"].Status)

	req := tr.last()
	assert.Equal(t, "/notification-inbox/_search", req.Path)
	assert.Contains(t, req.Query, "size=200")
	filters := req.Body["query"].(map[string]interface{})["bool"].(map[string]interface{})["filter"].([]interface{})
	require.Len(t, filters, 2)
	assert.Equal(t, map[string]interface{}{"term": map[string]interface{}{"deliveries.sms.status": "failed"}}, filters[1])
}

func TestBuildQuery(t *testing.T) {
	all := buildQuery(Query{})
	assert.Contains(t, all["query"], "match_all")

	byStatus := buildQuery(Query{Status: models.DeliveryFailed})
	filter := byStatus["query"].(map[string]interface{})["bool"].(map[string]interface{})["filter"].([]interface{})
	require.Len(t, filter, 1)
	should := filter[0].(map[string]interface{})["bool"].(map[string]interface{})["should"].([]interface{})
	assert.Len(t, should, len(models.AllChannels))

	byChannel := buildQuery(Query{Channel: models.ChannelPush})
	filter = byChannel["query"].(map[string]interface{})["bool"].(map[string]interface{})["filter"].([]interface{})
	assert.Equal(t, map[string]interface{}{"term": map[string]interface{}{"channels": "push"}}, filter[0])
}

func TestSearch_RejectsUnknownFilters(t *testing.T) {
	x := newIndex(t, &fakeTransport{})

	_, err := x.Search(context.Background(), Query{Channel: "fax"})
	assert.Equal(t, commonerrors.ErrCodeValidationFailed, commonerrors.AsStandard(err).Code)

	_, err = x.Search(context.Background(), Query{Status: "lost"})
	assert.Equal(t, commonerrors.ErrCodeValidationFailed, commonerrors.AsStandard(err).Code)
}

func TestSearch_BackendError(t *testing.T) {
	tr := &fakeTransport{status: http.StatusInternalServerError, response: `{"error":"boom"}`}
	_, err := newIndex(t, tr).Search(context.Background(), Query{})
	require.Error(t, err)
	assert.Equal(t, commonerrors.ErrCodeSearchQueryFailed, commonerrors.AsStandard(err).Code)
}

func TestMappingIsValidJSON(t *testing.T) {
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(Mapping), &m))
	assert.Contains(t, m, "mappings")
}
