package handlers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"carparter/internal/notify"
)

func TestSubscribeNotificationsUnauthorizedProblemBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/notifications/subscribe", nil)

	nd := notify.NewDispatcher(nil)
	defer nd.Close()

	SubscribeNotifications(nd, time.Minute)(c)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without principal, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "\"timestamp\"") {
		t.Fatalf("expected problem body with timestamp, got %s", rec.Body.String())
	}
}

func TestSubscribeNotificationsStreamsAndCleansUp(t *testing.T) {
	gin.SetMode(gin.TestMode)

	nd := notify.NewDispatcher(nil)
	defer nd.Close()

	principalID := primitive.NewObjectID()

	r := gin.New()
	r.GET("/api/notifications/subscribe", func(c *gin.Context) {
		c.Set("principalId", principalID)
		c.Set("role", "USER")
	}, SubscribeNotifications(nd, 300*time.Millisecond))

	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/notifications/subscribe")
	if err != nil {
		t.Fatalf("subscribe request failed: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected event-stream content type, got %q", ct)
	}

	deadline := time.Now().Add(time.Second)
	for !nd.Connected(principalID.Hex()) {
		if time.Now().After(deadline) {
			t.Fatal("stream never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	nd.Dispatch(context.Background(), notify.Event{
		ReceiverID: principalID.Hex(),
		Message:    "새로운 견적이 도착했습니다.",
	})

	// Read until the server closes the stream at its TTL.
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading stream failed: %v", err)
	}
	if !strings.Contains(string(body), "connect") {
		t.Fatalf("expected handshake event, got %s", body)
	}
	if !strings.Contains(string(body), "새로운 견적이 도착했습니다.") {
		t.Fatalf("expected dispatched event in stream, got %s", body)
	}

	deadline = time.Now().Add(time.Second)
	for nd.Connected(principalID.Hex()) {
		if time.Now().After(deadline) {
			t.Fatal("expected registry entry removed after stream timeout")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
