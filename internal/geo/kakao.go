package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Coordinates resolved from a street address.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Geocoder resolves addresses to coordinates. Geocoding is an enrichment:
// callers log failures and proceed without coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (Coordinates, error)
}

// ErrNoResult means the provider recognized the request but found no match
// for the address.
var ErrNoResult = errors.New("geo: no result for address")

// KakaoClient calls the Kakao local address-search API.
type KakaoClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewKakaoClient(apiKey, baseURL string) *KakaoClient {
	return &KakaoClient{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

type kakaoAddressResponse struct {
	Documents []struct {
		X string `json:"x"` // longitude
		Y string `json:"y"` // latitude
	} `json:"documents"`
}

func (k *KakaoClient) Geocode(ctx context.Context, address string) (Coordinates, error) {
	endpoint := fmt.Sprintf("%s/v2/local/search/address.json?query=%s",
		k.baseURL, url.QueryEscape(address))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Coordinates{}, err
	}
	req.Header.Set("Authorization", "KakaoAK "+k.apiKey)

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return Coordinates{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Coordinates{}, fmt.Errorf("geo: kakao returned status %d", resp.StatusCode)
	}

	var parsed kakaoAddressResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Coordinates{}, err
	}
	if len(parsed.Documents) == 0 {
		return Coordinates{}, ErrNoResult
	}

	lng, err := strconv.ParseFloat(parsed.Documents[0].X, 64)
	if err != nil {
		return Coordinates{}, fmt.Errorf("geo: bad longitude: %w", err)
	}
	lat, err := strconv.ParseFloat(parsed.Documents[0].Y, 64)
	if err != nil {
		return Coordinates{}, fmt.Errorf("geo: bad latitude: %w", err)
	}

	return Coordinates{Latitude: lat, Longitude: lng}, nil
}
