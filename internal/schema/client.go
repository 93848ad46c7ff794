// Package schema resolves item display names to stable SKUs and back via
// the autobot.tf schema service.
package schema

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client talks to the schema service.
type Client struct {
	client *resty.Client
}

func NewClient(baseURL string) *Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second)
	return &Client{client: client}
}

type skuResponse struct {
	SKU string `json:"sku"`
}

type nameResponse struct {
	Name string `json:"name"`
}

type skuBulkResponse struct {
	SKUs []string `json:"skus"`
}

type nameBulkResponse struct {
	Names []string `json:"names"`
}

// ToSKU converts one display name to its SKU.
func (c *Client) ToSKU(ctx context.Context, name string) (string, error) {
	var out skuResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/getSku/fromName/" + url.PathEscape(name))
	if err != nil {
		return "", fmt.Errorf("failed to convert %s to SKU: %w", name, err)
	}
	if resp.StatusCode() != 200 {
		return "", fmt.Errorf("failed to convert %s to SKU: status %d", name, resp.StatusCode())
	}
	if out.SKU == "" {
		return "", fmt.Errorf("schema service returned no SKU for %s", name)
	}
	return out.SKU, nil
}

// ToName converts one SKU to its proper display name.
func (c *Client) ToName(ctx context.Context, sku string) (string, error) {
	var out nameResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("proper", "true").
		SetResult(&out).
		Get("/getName/fromSku/" + url.PathEscape(sku))
	if err != nil {
		return "", fmt.Errorf("failed to convert SKU %s to name: %w", sku, err)
	}
	if resp.StatusCode() != 200 {
		return "", fmt.Errorf("failed to convert SKU %s to name: status %d", sku, resp.StatusCode())
	}
	if out.Name == "" {
		return "", fmt.Errorf("schema service returned no name for %s", sku)
	}
	return out.Name, nil
}

// ToSKUBulk converts display names to SKUs in one request. The response
// preserves input order; unresolvable names come back empty.
func (c *Client) ToSKUBulk(ctx context.Context, names []string) ([]string, error) {
	var out skuBulkResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(names).
		SetResult(&out).
		Post("/getSku/fromNameBulk")
	if err != nil {
		return nil, fmt.Errorf("failed to convert names to SKUs: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("failed to convert names to SKUs: status %d", resp.StatusCode())
	}
	if len(out.SKUs) != len(names) {
		return nil, fmt.Errorf("schema service returned %d SKUs for %d names", len(out.SKUs), len(names))
	}
	return out.SKUs, nil
}

// ToNameBulk converts SKUs to proper display names in one request.
func (c *Client) ToNameBulk(ctx context.Context, skus []string) ([]string, error) {
	var out nameBulkResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("proper", "true").
		SetBody(skus).
		SetResult(&out).
		Post("/getName/fromSkuBulk")
	if err != nil {
		return nil, fmt.Errorf("failed to convert SKUs to names: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("failed to convert SKUs to names: status %d", resp.StatusCode())
	}
	if len(out.Names) != len(skus) {
		return nil, fmt.Errorf("schema service returned %d names for %d SKUs", len(out.Names), len(skus))
	}
	return out.Names, nil
}
