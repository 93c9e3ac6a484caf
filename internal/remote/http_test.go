package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shelfline/shelfline/internal/catalog"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPClient(srv.URL, "sk_test_123", 5*time.Second, 2)
}

func payload(id, name string) productPayload {
	return productPayload{
		ID:          id,
		Name:        name,
		Description: "Acme",
		Images:      []string{"https://img.example/" + id + ".png"},
		Active:      false,
		UnitLabel:   "50",
		Metadata:    map[string]string{"discount": "SAVE 10"},
	}
}

func TestListProducts_FirstPage(t *testing.T) {
	var gotQuery string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk_test_123" {
			t.Errorf("unexpected auth header %q", auth)
		}
		json.NewEncoder(w).Encode(listEnvelope{
			Object:  "list",
			Data:    []productPayload{payload("prod_2", "Desk"), payload("prod_1", "Chair")},
			HasMore: true,
		})
	})

	page, err := client.ListProducts(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}

	if gotQuery != "limit=2" {
		t.Errorf("expected only limit on first page, got %q", gotQuery)
	}
	if len(page.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(page.Records))
	}
	if !page.HasMore {
		t.Error("expected has_more")
	}
	if page.LastID() != "prod_1" {
		t.Errorf("expected cursor prod_1, got %q", page.LastID())
	}

	rec := page.Records[0]
	if rec.SyncState != catalog.StateSynced {
		t.Errorf("remote records must hydrate as synced, got %s", rec.SyncState)
	}
	if rec.BrandName == nil || *rec.BrandName != "Acme" {
		t.Errorf("expected brand from description, got %v", rec.BrandName)
	}
	if rec.Price == nil || *rec.Price != "50" {
		t.Errorf("expected price from unit label, got %v", rec.Price)
	}
	if rec.Discount == nil || *rec.Discount != "10" {
		t.Errorf("expected discount label stripped, got %v", rec.Discount)
	}
}

func TestListProducts_Cursor(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("starting_after"); got != "prod_1" {
			t.Errorf("expected starting_after=prod_1, got %q", got)
		}
		json.NewEncoder(w).Encode(listEnvelope{Object: "list"})
	})

	if _, err := client.ListProducts(context.Background(), "prod_1"); err != nil {
		t.Fatal(err)
	}
}

func TestSearchProducts(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/products/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("name"); got != "chair" {
			t.Errorf("expected name=chair, got %q", got)
		}
		json.NewEncoder(w).Encode(listEnvelope{
			Object: "list",
			Data:   []productPayload{payload("prod_1", "Chair")},
		})
	})

	page, err := client.SearchProducts(context.Background(), "chair", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(page.Records))
	}
}

func TestCreateProduct(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body productPayload
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if body.Description != "Acme" {
			t.Errorf("expected brand in description, got %q", body.Description)
		}
		if body.Metadata["discount"] != "SAVE 10" {
			t.Errorf("expected labelled discount descriptor, got %q", body.Metadata["discount"])
		}
		body.ID = "prod_9"
		json.NewEncoder(w).Encode(body)
	})

	brand := "Acme"
	price := "50"
	discount := "10"
	rec := catalog.ProductRecord{
		ID:        catalog.NewLocalID(),
		Name:      "Chair",
		BrandName: &brand,
		Price:     &price,
		Discount:  &discount,
		SyncState: catalog.StatePendingCreate,
	}

	confirmed, err := client.CreateProduct(context.Background(), rec)
	if err != nil {
		t.Fatal(err)
	}
	if confirmed.ID != "prod_9" {
		t.Errorf("expected server-assigned id, got %q", confirmed.ID)
	}
	if confirmed.SyncState != catalog.StateSynced {
		t.Errorf("confirmed record must be synced, got %s", confirmed.SyncState)
	}
}

func TestCreateProduct_InvalidSkipsNetwork(t *testing.T) {
	called := false
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	rec := catalog.ProductRecord{ID: catalog.NewLocalID(), Name: "  "}
	_, err := client.CreateProduct(context.Background(), rec)
	if !errors.Is(err, catalog.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if called {
		t.Error("invalid record must never consume a network round trip")
	}
}

func TestUpdateFavorite(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/products/prod_1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]bool
		json.NewDecoder(r.Body).Decode(&body)
		p := payload("prod_1", "Chair")
		p.Active = body["active"]
		json.NewEncoder(w).Encode(p)
	})

	rec, err := client.UpdateFavorite(context.Background(), "prod_1", true)
	if err != nil {
		t.Fatal(err)
	}
	if !rec.IsFavorite {
		t.Error("expected favorite flag set")
	}
}

func TestDeleteProduct(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("expected DELETE, got %s", r.Method)
		}
		json.NewEncoder(w).Encode(deleteResponse{ID: "prod_1", Deleted: true})
	})

	id, err := client.DeleteProduct(context.Background(), "prod_1")
	if err != nil {
		t.Fatal(err)
	}
	if id != "prod_1" {
		t.Errorf("expected deleted id prod_1, got %q", id)
	}
}

func TestDeleteProduct_NotDeleted(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(deleteResponse{ID: "prod_1", Deleted: false})
	})

	_, err := client.DeleteProduct(context.Background(), "prod_1")
	if !errors.Is(err, catalog.ErrDeleteFailed) {
		t.Errorf("expected ErrDeleteFailed, got %v", err)
	}
}

func TestClassify_NotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.DeleteProduct(context.Background(), "prod_404")
	if !errors.Is(err, catalog.ErrNotFoundRemote) {
		t.Errorf("expected ErrNotFoundRemote, got %v", err)
	}
}

func TestClassify_ServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.ListProducts(context.Background(), "")
	var srvErr *catalog.ServerError
	if !errors.As(err, &srvErr) {
		t.Fatalf("expected ServerError, got %v", err)
	}
	if srvErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", srvErr.StatusCode)
	}
}

func TestClassify_DecodingError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	})

	_, err := client.ListProducts(context.Background(), "")
	var decErr *catalog.DecodingError
	if !errors.As(err, &decErr) {
		t.Errorf("expected DecodingError, got %v", err)
	}
}

func TestClassify_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // Connection refused from here on.

	client := NewHTTPClient(srv.URL, "sk_test_123", time.Second, 2)
	_, err := client.ListProducts(context.Background(), "")
	var netErr *catalog.NetworkError
	if !errors.As(err, &netErr) {
		t.Errorf("expected NetworkError, got %v", err)
	}
}

func TestUploadAndLinkImage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/files":
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Fatalf("expected multipart upload: %v", err)
			}
			json.NewEncoder(w).Encode(fileResponse{ID: "file_123"})
		case "/v1/file_links":
			var req linkRequest
			json.NewDecoder(r.Body).Decode(&req)
			if req.File != "file_123" {
				t.Errorf("expected file_123, got %q", req.File)
			}
			json.NewEncoder(w).Encode(linkResponse{URL: "https://files.example/file_123"})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	handle, err := client.UploadImage(context.Background(), []byte{0x89, 0x50}, "chair.png")
	if err != nil {
		t.Fatal(err)
	}
	url, err := client.LinkImage(context.Background(), handle)
	if err != nil {
		t.Fatal(err)
	}
	if url != "https://files.example/file_123" {
		t.Errorf("unexpected url %q", url)
	}
}

func TestPing(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("limit"); got != "1" {
			t.Errorf("expected minimal probe, got limit=%q", got)
		}
		json.NewEncoder(w).Encode(listEnvelope{Object: "list"})
	})

	if err := client.Ping(context.Background()); err != nil {
		t.Fatal(err)
	}
}
