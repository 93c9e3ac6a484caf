package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shelfline/shelfline/internal/catalog"
)

// DiscountLabel is the fixed prefix the remote service expects on the
// discount descriptor string.
const DiscountLabel = "SAVE "

// DefaultPageSize is used when the caller does not configure one. The remote
// service caps page sizes at 100.
const DefaultPageSize = 20

// Compile-time interface check.
var _ Client = (*HTTPClient)(nil)

// HTTPClient talks to the product API over authenticated HTTPS JSON.
type HTTPClient struct {
	baseURL  string
	token    string
	pageSize int
	client   *http.Client
}

// NewHTTPClient creates a client for the product API at baseURL. The bearer
// token is supplied out-of-band via configuration; every call is bounded by
// timeout.
func NewHTTPClient(baseURL, token string, timeout time.Duration, pageSize int) *HTTPClient {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &HTTPClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		token:    token,
		pageSize: pageSize,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// productPayload is the remote wire shape of a product.
type productPayload struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Images      []string          `json:"images,omitempty"`
	Active      bool              `json:"active"`
	UnitLabel   string            `json:"unit_label,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// listEnvelope is the paginated list response.
type listEnvelope struct {
	Object  string           `json:"object"`
	Data    []productPayload `json:"data"`
	HasMore bool             `json:"has_more"`
}

type deleteResponse struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

type fileResponse struct {
	ID string `json:"id"`
}

type linkRequest struct {
	File string `json:"file"`
}

type linkResponse struct {
	URL string `json:"url"`
}

// fromRecord maps a local record onto the remote wire shape. The brand rides
// in description, the price in the unit label, and the discount as a
// labelled descriptor string in metadata.
func fromRecord(rec catalog.ProductRecord) productPayload {
	p := productPayload{
		Name:   rec.Name,
		Active: rec.IsFavorite,
	}
	if rec.BrandName != nil {
		p.Description = *rec.BrandName
	}
	if rec.ImageURL != nil {
		p.Images = []string{*rec.ImageURL}
	}
	if rec.Price != nil {
		p.UnitLabel = *rec.Price
	}
	if rec.Discount != nil {
		p.Metadata = map[string]string{"discount": DiscountLabel + *rec.Discount}
	}
	return p
}

// toRecord maps a remote payload to a synced local record.
func toRecord(p productPayload, now time.Time) catalog.ProductRecord {
	rec := catalog.ProductRecord{
		ID:         p.ID,
		Name:       p.Name,
		BrandName:  catalog.EmptyToNone(p.Description),
		IsFavorite: p.Active,
		Price:      catalog.EmptyToNone(p.UnitLabel),
		SyncState:  catalog.StateSynced,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if len(p.Images) > 0 {
		rec.ImageURL = catalog.EmptyToNone(p.Images[0])
	}
	if raw, ok := p.Metadata["discount"]; ok {
		rec.Discount = catalog.EmptyToNone(strings.TrimPrefix(raw, DiscountLabel))
	}
	return rec
}

// do sends one authenticated request. Transport failures, timeouts included,
// come back as catalog.NetworkError.
func (c *HTTPClient) do(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string) (*http.Response, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &catalog.NetworkError{Err: err}
	}
	return resp, nil
}

// doJSON marshals body (when non-nil), sends, checks the status, and decodes
// into out (when non-nil).
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var reader io.Reader
	contentType := ""
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
		contentType = "application/json"
	}

	resp, err := c.do(ctx, method, path, query, reader, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return err
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &catalog.DecodingError{Err: err}
		}
	}
	return nil
}

// classifyStatus maps a non-2xx status onto the closed error taxonomy.
// A 404 is surfaced as the distinct not-found-remotely condition.
func classifyStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound:
		return catalog.ErrNotFoundRemote
	default:
		return &catalog.ServerError{StatusCode: status}
	}
}

func (c *HTTPClient) listPage(ctx context.Context, path string, query url.Values) (*catalog.Page, error) {
	query.Set("limit", strconv.Itoa(c.pageSize))

	var envelope listEnvelope
	if err := c.doJSON(ctx, http.MethodGet, path, query, nil, &envelope); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	page := &catalog.Page{HasMore: envelope.HasMore}
	for _, p := range envelope.Data {
		page.Records = append(page.Records, toRecord(p, now))
	}
	return page, nil
}

// ListProducts fetches one page, using afterCursor as the last-seen id.
func (c *HTTPClient) ListProducts(ctx context.Context, afterCursor string) (*catalog.Page, error) {
	query := url.Values{}
	if afterCursor != "" {
		query.Set("starting_after", afterCursor)
	}
	return c.listPage(ctx, "/v1/products", query)
}

// SearchProducts fetches one page of name matches.
func (c *HTTPClient) SearchProducts(ctx context.Context, name, afterCursor string) (*catalog.Page, error) {
	query := url.Values{}
	query.Set("name", name)
	if afterCursor != "" {
		query.Set("starting_after", afterCursor)
	}
	return c.listPage(ctx, "/v1/products/search", query)
}

// CreateProduct validates locally, then submits. An invalid record never
// consumes a network round trip.
func (c *HTTPClient) CreateProduct(ctx context.Context, rec catalog.ProductRecord) (*catalog.ProductRecord, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	var created productPayload
	if err := c.doJSON(ctx, http.MethodPost, "/v1/products", nil, fromRecord(rec), &created); err != nil {
		return nil, err
	}

	confirmed := toRecord(created, time.Now().UTC())
	return &confirmed, nil
}

// UpdateFavorite flips the active flag on the remote product.
func (c *HTTPClient) UpdateFavorite(ctx context.Context, id string, favorite bool) (*catalog.ProductRecord, error) {
	body := map[string]bool{"active": favorite}

	var updated productPayload
	if err := c.doJSON(ctx, http.MethodPost, "/v1/products/"+url.PathEscape(id), nil, body, &updated); err != nil {
		return nil, err
	}

	confirmed := toRecord(updated, time.Now().UTC())
	return &confirmed, nil
}

// DeleteProduct removes the remote product.
func (c *HTTPClient) DeleteProduct(ctx context.Context, id string) (string, error) {
	var result deleteResponse
	if err := c.doJSON(ctx, http.MethodDelete, "/v1/products/"+url.PathEscape(id), nil, nil, &result); err != nil {
		return "", err
	}

	if !result.Deleted {
		return "", fmt.Errorf("delete product %q: %w", id, catalog.ErrDeleteFailed)
	}
	return result.ID, nil
}

// UploadImage uploads raw image bytes as a multipart file and returns the
// remote file handle.
func (c *HTTPClient) UploadImage(ctx context.Context, data []byte, filename string) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("build multipart body: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("write multipart body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart body: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/v1/files", nil, &buf, writer.FormDataContentType())
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return "", err
	}

	var file fileResponse
	if err := json.NewDecoder(resp.Body).Decode(&file); err != nil {
		return "", &catalog.DecodingError{Err: err}
	}
	return file.ID, nil
}

// LinkImage exchanges a file handle for a public URL. The two-step upload is
// only complete once this succeeds.
func (c *HTTPClient) LinkImage(ctx context.Context, fileHandle string) (string, error) {
	var link linkResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/file_links", nil, linkRequest{File: fileHandle}, &link); err != nil {
		return "", err
	}
	return link.URL, nil
}

// Ping checks reachability with a minimal list request.
func (c *HTTPClient) Ping(ctx context.Context) error {
	query := url.Values{}
	query.Set("limit", "1")

	resp, err := c.do(ctx, http.MethodGet, "/v1/products", query, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return classifyStatus(resp.StatusCode)
}
