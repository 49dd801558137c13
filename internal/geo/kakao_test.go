package geo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestKakaoGeocodeParsesCoordinates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "KakaoAK test-key" {
			t.Errorf("unexpected auth header: %q", got)
		}
		if got := r.URL.Query().Get("query"); got != "서울 강남구" {
			t.Errorf("unexpected query: %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"documents":[{"x":"127.0276","y":"37.4979"}]}`))
	}))
	defer server.Close()

	client := NewKakaoClient("test-key", server.URL)
	coords, err := client.Geocode(context.Background(), "서울 강남구")
	if err != nil {
		t.Fatalf("Geocode returned error: %v", err)
	}
	if coords.Latitude != 37.4979 || coords.Longitude != 127.0276 {
		t.Fatalf("unexpected coordinates: %+v", coords)
	}
}

func TestKakaoGeocodeNoResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"documents":[]}`))
	}))
	defer server.Close()

	client := NewKakaoClient("test-key", server.URL)
	_, err := client.Geocode(context.Background(), "없는 주소")
	if !errors.Is(err, ErrNoResult) {
		t.Fatalf("expected ErrNoResult, got %v", err)
	}
}

func TestKakaoGeocodeUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewKakaoClient("bad-key", server.URL)
	if _, err := client.Geocode(context.Background(), "서울"); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}
