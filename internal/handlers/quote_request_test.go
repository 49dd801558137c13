package handlers

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"carparter/internal/middleware"
	"carparter/internal/models"
)

type stubImageStore struct {
	presigned []string
}

func (s *stubImageStore) Upload(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) (string, error) {
	return "", nil
}

func (s *stubImageStore) Delete(ctx context.Context, objectKey string) error {
	return nil
}

func (s *stubImageStore) PresignedURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error) {
	s.presigned = append(s.presigned, objectKey)
	return "https://minio.local/signed/" + objectKey, nil
}

func TestQuoteRequestViewErrorBlocksOtherUsers(t *testing.T) {
	owner := primitive.NewObjectID()
	stranger := primitive.NewObjectID()
	request := models.QuoteRequest{UserID: owner}

	status, _ := quoteRequestViewError(request, stranger, middleware.RoleUser)
	if status != http.StatusForbidden {
		t.Fatalf("expected 403 for another user's request, got %d", status)
	}
}

func TestQuoteRequestViewErrorAllowsOwner(t *testing.T) {
	owner := primitive.NewObjectID()
	request := models.QuoteRequest{UserID: owner}

	if status, msg := quoteRequestViewError(request, owner, middleware.RoleUser); status != 0 {
		t.Fatalf("expected owner to be allowed, got %d %s", status, msg)
	}
}

func TestQuoteRequestViewErrorAllowsAnyCenter(t *testing.T) {
	request := models.QuoteRequest{UserID: primitive.NewObjectID()}

	if status, msg := quoteRequestViewError(request, primitive.NewObjectID(), middleware.RoleCarCenter); status != 0 {
		t.Fatalf("expected any center to be allowed, got %d %s", status, msg)
	}
}

func TestQuoteRequestViewErrorBlocksUnknownRole(t *testing.T) {
	request := models.QuoteRequest{UserID: primitive.NewObjectID()}

	status, _ := quoteRequestViewError(request, primitive.NewObjectID(), "")
	if status != http.StatusForbidden {
		t.Fatalf("expected 403 for unknown role, got %d", status)
	}
}

func TestWithFreshImageURLsSignsOnlyEmptyLinks(t *testing.T) {
	store := &stubImageStore{}
	images := []models.RequestImage{
		{ObjectKey: "requests/a.jpg", URL: "https://cdn.example.com/requests/a.jpg"},
		{ObjectKey: "requests/b.jpg"},
	}

	out := withFreshImageURLs(context.Background(), store, images)

	if out[0].URL != "https://cdn.example.com/requests/a.jpg" {
		t.Fatalf("expected public url untouched, got %q", out[0].URL)
	}
	if out[1].URL != "https://minio.local/signed/requests/b.jpg" {
		t.Fatalf("expected presigned url, got %q", out[1].URL)
	}
	if len(store.presigned) != 1 || store.presigned[0] != "requests/b.jpg" {
		t.Fatalf("expected one presign call for the empty link, got %v", store.presigned)
	}
	if images[1].URL != "" {
		t.Fatal("expected input slice to stay unmodified")
	}
}

func TestWithFreshImageURLsNilStorePassthrough(t *testing.T) {
	images := []models.RequestImage{{ObjectKey: "requests/a.jpg"}}
	out := withFreshImageURLs(context.Background(), nil, images)
	if out[0].URL != "" {
		t.Fatalf("expected no url without a store, got %q", out[0].URL)
	}
}
