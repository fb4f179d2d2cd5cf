package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"signalcast/api_scheduler/internal/delivery"
	"signalcast/api_scheduler/internal/store"
)

func setupWebhookTest(t *testing.T) sqlmock.Sqlmock {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { mockDB.Close() })

	db = mockDB
	logger = logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	regStore = store.NewRegistrationStore(mockDB)
	deliveryStore = store.NewDeliveryStore(mockDB)
	regCache = delivery.NewCache(regStore)
	t.Cleanup(func() {
		db = nil
		regStore = nil
		deliveryStore = nil
		regCache = nil
	})

	return mock
}

func postJSON(handler gin.HandlerFunc, path string, body interface{}) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	w := httptest.NewRecorder()
	_, router := gin.CreateTestContext(w)
	router.POST(path, handler)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func TestCreateWebhookRejectsInvalidURL(t *testing.T) {
	setupWebhookTest(t)

	w := postJSON(CreateWebhook, "/webhooks", WebhookRequest{
		URL:    "not-a-url",
		Events: []string{"publish.succeeded"},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (%s)", w.Code, w.Body.String())
	}
}

func TestCreateWebhookRejectsMissingEvents(t *testing.T) {
	setupWebhookTest(t)

	w := postJSON(CreateWebhook, "/webhooks", map[string]interface{}{
		"url": "https://consumer.example.com/hooks",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (%s)", w.Code, w.Body.String())
	}
}

func TestCreateWebhookGeneratesSecret(t *testing.T) {
	mock := setupWebhookTest(t)

	now := time.Now()
	mock.ExpectQuery("INSERT INTO helmsman.webhook_registrations").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow("reg-1", now, now))

	w := postJSON(CreateWebhook, "/webhooks", WebhookRequest{
		URL:    "https://consumer.example.com/hooks",
		Events: []string{"publish.succeeded"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", w.Code, w.Body.String())
	}

	var resp struct {
		Secret string `json:"secret"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Secret) != 64 {
		t.Fatalf("expected 32-byte hex secret in create response, got %q", resp.Secret)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetSlotsRequiresChannel(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	_, router := gin.CreateTestContext(w)
	router.GET("/schedule/slots", GetSlots)
	req := httptest.NewRequest(http.MethodGet, "/schedule/slots", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without channel, got %d", w.Code)
	}
}

func TestBulkScheduleRejectsEmptyBatch(t *testing.T) {
	setupWebhookTest(t)

	w := postJSON(BulkSchedule, "/schedule/bulk", map[string]interface{}{
		"item_ids": []string{},
		"channels": []string{"twitter"},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty batch, got %d (%s)", w.Code, w.Body.String())
	}
}
