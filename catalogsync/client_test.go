package catalogsync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCatalogClientListItemsPagesWithCursor(t *testing.T) {
	var seenKeys []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenKeys = append(seenKeys, r.Header.Get("X-API-Key"))
		if r.URL.Query().Get("outlet_id") != "3" {
			t.Fatalf("expected outlet_id=3, got %q", r.URL.Query().Get("outlet_id"))
		}
		switch r.URL.Query().Get("cursor") {
		case "":
			json.NewEncoder(w).Encode(catalogListResponse{
				Items:      []catalogItem{{ID: "a", Name: "Stapler"}},
				NextCursor: "c2",
			})
		case "c2":
			json.NewEncoder(w).Encode(catalogListResponse{
				Items: []catalogItem{{ID: "b", Name: "Tape"}},
			})
		default:
			t.Fatalf("unexpected cursor %q", r.URL.Query().Get("cursor"))
		}
	}))
	defer server.Close()

	t.Setenv("CATALOG_API_BASE_URL", server.URL)
	t.Setenv("CATALOG_API_KEY", "secret")
	t.Setenv("CATALOG_API_KEY_HEADER", "")
	t.Setenv("CATALOG_RATE_LIMIT_PER_MIN", "60000")

	client, err := newCatalogClient()
	if err != nil {
		t.Fatalf("newCatalogClient: %v", err)
	}

	ctx := context.Background()
	page, err := client.listItems(ctx, "3", "", "")
	if err != nil {
		t.Fatalf("listItems: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != "a" || page.NextCursor != "c2" {
		t.Fatalf("unexpected first page: %+v", page)
	}

	page, err = client.listItems(ctx, "3", page.NextCursor, "")
	if err != nil {
		t.Fatalf("listItems page 2: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != "b" || page.NextCursor != "" {
		t.Fatalf("unexpected second page: %+v", page)
	}

	for _, k := range seenKeys {
		if k != "secret" {
			t.Fatalf("api key header missing, got %q", k)
		}
	}
}

func TestCatalogClientSurfacesApiErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	t.Setenv("CATALOG_API_BASE_URL", server.URL)
	t.Setenv("CATALOG_API_KEY", "secret")
	t.Setenv("CATALOG_RATE_LIMIT_PER_MIN", "60000")

	client, err := newCatalogClient()
	if err != nil {
		t.Fatalf("newCatalogClient: %v", err)
	}
	if _, err := client.listItems(context.Background(), "3", "", ""); err == nil {
		t.Fatalf("expected error for non-2xx response")
	}
}

func TestNewCatalogClientRequiresConfig(t *testing.T) {
	t.Setenv("CATALOG_API_BASE_URL", "")
	t.Setenv("CATALOG_API_KEY", "secret")
	if _, err := newCatalogClient(); err == nil {
		t.Fatalf("expected error without base url")
	}

	t.Setenv("CATALOG_API_BASE_URL", "https://pos.example.com")
	t.Setenv("CATALOG_API_KEY", "")
	if _, err := newCatalogClient(); err == nil {
		t.Fatalf("expected error without api key")
	}
}
