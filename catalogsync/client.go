// Package catalogsync pulls the external POS catalog into the outlet product
// cache (models.Product). The POS owns product master data and stock truth;
// this side only caches it and stamps each completed sync with a new cache
// version.
package catalogsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type catalogClient struct {
	baseURL   string
	apiKey    string
	apiKeyHdr string
	http      *http.Client
	limiter   <-chan time.Time
}

func newCatalogClient() (*catalogClient, error) {
	baseURL := strings.TrimSpace(os.Getenv("CATALOG_API_BASE_URL"))
	if baseURL == "" {
		return nil, errors.New("CATALOG_API_BASE_URL is not set")
	}
	apiKey := strings.TrimSpace(os.Getenv("CATALOG_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("CATALOG_API_KEY is not set")
	}
	apiKeyHeader := strings.TrimSpace(os.Getenv("CATALOG_API_KEY_HEADER"))
	if apiKeyHeader == "" {
		apiKeyHeader = "X-API-Key"
	}
	rateLimitPerMin := int64(30)
	if v := strings.TrimSpace(os.Getenv("CATALOG_RATE_LIMIT_PER_MIN")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			rateLimitPerMin = n
		}
	}
	interval := time.Minute / time.Duration(rateLimitPerMin)

	return &catalogClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		apiKeyHdr: apiKeyHeader,
		http:      &http.Client{Timeout: 30 * time.Second},
		limiter:   time.Tick(interval),
	}, nil
}

// catalogItem is the POS wire shape for one product at one outlet.
type catalogItem struct {
	ID            string      `json:"id"`
	Sku           string      `json:"sku"`
	Name          string      `json:"name"`
	Department    string      `json:"department"`
	VendorId      int         `json:"vendor_id"`
	VendorName    string      `json:"vendor_name"`
	CostPrice     json.Number `json:"cost_price"`
	SellingPrice  json.Number `json:"selling_price"`
	OnHand        json.Number `json:"on_hand"`
	OnOrder       json.Number `json:"on_order"`
	QtySoldPeriod json.Number `json:"qty_sold_period"`
	AvgDailySales json.Number `json:"avg_daily_sales"`
	Active        bool        `json:"active"`
	UpdatedAt     string      `json:"updated_at"`
}

type catalogListResponse struct {
	Items      []catalogItem `json:"items"`
	NextCursor string        `json:"next_cursor"`
	HasMore    *bool         `json:"has_more"`
}

func (c *catalogClient) listItems(ctx context.Context, outletExternalId string, cursor string, updatedSince string) (catalogListResponse, error) {
	<-c.limiter

	params := url.Values{}
	params.Set("outlet_id", outletExternalId)
	if cursor != "" {
		params.Set("cursor", cursor)
	}
	if updatedSince != "" {
		params.Set("updated_since", updatedSince)
	}

	endpoint := c.baseURL + "/v1/catalog/items?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return catalogListResponse{}, err
	}
	req.Header.Set(c.apiKeyHdr, c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return catalogListResponse{}, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return catalogListResponse{}, fmt.Errorf("catalog api error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed catalogListResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return catalogListResponse{}, err
	}
	return parsed, nil
}
