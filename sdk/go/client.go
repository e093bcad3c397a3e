package herdlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is a minimal Herdline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Animal represents the API animal model (partial).
type Animal struct {
	ID            int64  `json:"id"`
	Tag           string `json:"tag"`
	Species       string `json:"species"`
	ProducerID    string `json:"producer_id"`
	Status        string `json:"status"`
	CarcassType   string `json:"carcass_type,omitempty"`
	TransferredTo *int64 `json:"transferred_to,omitempty"`
	ReceivedBy    string `json:"received_by,omitempty"`
}

// Part represents a carcass part.
type Part struct {
	ID            int64   `json:"id"`
	AnimalID      int64   `json:"animal_id"`
	PartType      string  `json:"part_type"`
	WeightKg      float64 `json:"weight_kg,omitempty"`
	TransferredTo *int64  `json:"transferred_to,omitempty"`
	ReceivedBy    string  `json:"received_by,omitempty"`
}

// Product represents a product batch row.
type Product struct {
	ID               int64  `json:"id"`
	BatchNumber      string `json:"batch_number"`
	Name             string `json:"name"`
	Quantity         int64  `json:"quantity"`
	ProcessingUnitID int64  `json:"processing_unit_id"`
	TransferredTo    *int64 `json:"transferred_to,omitempty"`
	ReceivedBy       string `json:"received_by,omitempty"`
}

// Appeal represents an appeal against a rejection.
type Appeal struct {
	ID         int64  `json:"id"`
	EntityKind string `json:"entity_kind"`
	EntityID   int64  `json:"entity_id"`
	OpenedBy   string `json:"opened_by"`
	Status     string `json:"status"`
	Notes      string `json:"notes,omitempty"`
	ResolvedBy string `json:"resolved_by,omitempty"`
}

// AuditRecord represents an audit log entry.
type AuditRecord struct {
	ID          int64  `json:"id"`
	TS          string `json:"ts"`
	Action      string `json:"action"`
	PerformedBy string `json:"performed_by"`
	EntityKind  string `json:"entity_kind,omitempty"`
	EntityID    *int64 `json:"entity_id,omitempty"`
	Description string `json:"description,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// RegisterAnimal registers a new animal for the authenticated farmer.
func (c *Client) RegisterAnimal(ctx context.Context, tag, species string) (Animal, error) {
	body := map[string]any{
		"tag":     tag,
		"species": species,
	}
	var resp Animal
	err := c.do(ctx, http.MethodPost, "v0/animals", body, &resp)
	return resp, err
}

// Slaughter records a slaughter. Parts maps part type to weight in kg;
// leave it nil for a whole carcass.
func (c *Client) Slaughter(ctx context.Context, animalID int64, carcassType string, parts map[string]float64) (Animal, error) {
	body := map[string]any{
		"carcass_type": carcassType,
	}
	if len(parts) > 0 {
		var list []map[string]any
		for partType, weight := range parts {
			list = append(list, map[string]any{"part_type": partType, "weight_kg": weight})
		}
		body["parts"] = list
	}
	var resp Animal
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/animals/%d/slaughter", animalID), body, &resp)
	return resp, err
}

// TransferResult reports how many entities a transfer moved.
type TransferResult struct {
	AnimalsTransferred int `json:"animals_transferred"`
	PartsTransferred   int `json:"parts_transferred"`
}

// ReceiveResult reports how many entities a receive accepted.
type ReceiveResult struct {
	AnimalsReceived int `json:"animals_received"`
	PartsReceived   int `json:"parts_received"`
}

// Transfer sends animals and parts to a processing unit.
func (c *Client) Transfer(ctx context.Context, processingUnitID int64, animalIDs, partIDs []int64) (TransferResult, error) {
	body := map[string]any{
		"processing_unit_id": processingUnitID,
		"animal_ids":         animalIDs,
		"part_ids":           partIDs,
	}
	var resp TransferResult
	err := c.do(ctx, http.MethodPost, "v0/transfer", body, &resp)
	return resp, err
}

// Receive confirms arrival of transferred animals and parts.
func (c *Client) Receive(ctx context.Context, animalIDs, partIDs []int64) (ReceiveResult, error) {
	body := map[string]any{
		"animal_ids": animalIDs,
		"part_ids":   partIDs,
	}
	var resp ReceiveResult
	err := c.do(ctx, http.MethodPost, "v0/receive", body, &resp)
	return resp, err
}

// CreateProduct creates a product batch from received material.
func (c *Client) CreateProduct(ctx context.Context, batchNumber, name string, quantity int64, animalID int64, partIDs []int64) (Product, error) {
	body := map[string]any{
		"batch_number": batchNumber,
		"name":         name,
		"quantity":     quantity,
	}
	if animalID != 0 {
		body["animal_id"] = animalID
	}
	if len(partIDs) > 0 {
		body["part_ids"] = partIDs
	}
	var resp Product
	err := c.do(ctx, http.MethodPost, "v0/products", body, &resp)
	return resp, err
}

// TransferProducts sends product quantities to a shop. A zero quantity
// transfers the whole row.
func (c *Client) TransferProducts(ctx context.Context, shopID int64, items map[int64]int64) error {
	var transfers []map[string]any
	for productID, qty := range items {
		t := map[string]any{"product_id": productID}
		if qty > 0 {
			t["quantity"] = qty
		}
		transfers = append(transfers, t)
	}
	body := map[string]any{
		"shop_id":   shopID,
		"transfers": transfers,
	}
	return c.do(ctx, http.MethodPost, "v0/products/transfer", body, nil)
}

// Reject rejects a delivered entity against the rejection catalog.
func (c *Client) Reject(ctx context.Context, entityKind string, entityID int64, category, reason, notes string) error {
	body := map[string]any{
		"entity_kind": entityKind,
		"entity_id":   entityID,
		"category":    category,
		"reason":      reason,
		"notes":       notes,
	}
	return c.do(ctx, http.MethodPost, "v0/rejections", body, nil)
}

// OpenAppeal opens an appeal against a rejection.
func (c *Client) OpenAppeal(ctx context.Context, entityKind string, entityID int64, notes string) (Appeal, error) {
	body := map[string]any{
		"entity_kind": entityKind,
		"entity_id":   entityID,
		"notes":       notes,
	}
	var resp Appeal
	err := c.do(ctx, http.MethodPost, "v0/appeals", body, &resp)
	return resp, err
}

// ResolveAppeal resolves a pending appeal.
func (c *Client) ResolveAppeal(ctx context.Context, appealID int64, approve bool, notes string) (Appeal, error) {
	body := map[string]any{
		"approve": approve,
		"notes":   notes,
	}
	var resp Appeal
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/appeals/%d/resolve", appealID), body, &resp)
	return resp, err
}

// Audit returns recent audit records.
func (c *Client) Audit(ctx context.Context, limit int) ([]AuditRecord, error) {
	endpoint := "v0/audit"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []AuditRecord
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
