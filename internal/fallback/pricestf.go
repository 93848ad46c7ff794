package fallback

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/nekomatic-tf/nekopricer/internal/currency"
	"github.com/nekomatic-tf/nekopricer/internal/domain"

	"github.com/go-resty/resty/v2"
)

// PricesTFClient fetches per-item quotes from the prices.tf API. Access is
// gated by a short-lived bearer token obtained from the auth endpoint; the
// token is refreshed lazily on expiry or a 401.
type PricesTFClient struct {
	client *resty.Client

	mu          sync.Mutex
	accessToken string
	tokenUntil  time.Time
}

func NewPricesTFClient(baseURL string) *PricesTFClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second)
	return &PricesTFClient{client: client}
}

type authResponse struct {
	AccessToken string `json:"accessToken"`
}

type priceResponse struct {
	SKU              string `json:"sku"`
	BuyHalfScrap     int64  `json:"buyHalfScrap"`
	BuyKeys          int    `json:"buyKeys"`
	BuyKeyHalfScrap  *int64 `json:"buyKeyHalfScrap"`
	SellHalfScrap    int64  `json:"sellHalfScrap"`
	SellKeys         int    `json:"sellKeys"`
	SellKeyHalfScrap *int64 `json:"sellKeyHalfScrap"`
	UpdatedAt        string `json:"updatedAt"`
}

func (c *PricesTFClient) ensureToken(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenUntil) {
		return nil
	}

	var out authResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&out).
		Post("/auth/access")
	if err != nil {
		return fmt.Errorf("failed to request access token: %w", err)
	}
	if resp.StatusCode() != 200 || out.AccessToken == "" {
		return fmt.Errorf("failed to request access token: status %d", resp.StatusCode())
	}

	c.accessToken = out.AccessToken
	// Tokens last ten minutes; refresh a bit early.
	c.tokenUntil = time.Now().Add(9 * time.Minute)
	return nil
}

// GetPrice fetches and normalizes the quote for one SKU.
func (c *PricesTFClient) GetPrice(ctx context.Context, item domain.Item) (*domain.PriceRecord, error) {
	if err := c.ensureToken(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	token := c.accessToken
	c.mu.Unlock()

	var out priceResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetResult(&out).
		Get("/prices/" + url.PathEscape(item.SKU))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch prices.tf price for %s: %w", item.SKU, err)
	}
	if resp.StatusCode() == 401 {
		// Token went stale; drop it so the next call re-authenticates.
		c.mu.Lock()
		c.accessToken = ""
		c.mu.Unlock()
		return nil, fmt.Errorf("prices.tf rejected the access token")
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("failed to fetch prices.tf price for %s: status %d", item.SKU, resp.StatusCode())
	}

	return &domain.PriceRecord{
		Name:   item.Name,
		SKU:    item.SKU,
		Source: domain.SourcePricesTF,
		Time:   time.Now().Unix(),
		Buy:    formatPrice(out.BuyHalfScrap, out.BuyKeys, out.BuyKeyHalfScrap),
		Sell:   formatPrice(out.SellHalfScrap, out.SellKeys, out.SellKeyHalfScrap),
	}, nil
}

// formatPrice converts the prices.tf half-scrap encoding into a key/metal
// pair. The metal side is whatever half-scrap remains after the key
// component is taken out.
func formatPrice(totalHalfScrap int64, keys int, keyHalfScrap *int64) currency.Currencies {
	metalHalfScrap := totalHalfScrap
	if keys != 0 && keyHalfScrap != nil {
		metalHalfScrap = totalHalfScrap - int64(keys)*(*keyHalfScrap)
	} else if keys != 0 {
		metalHalfScrap = 0
	}
	if metalHalfScrap < 0 {
		metalHalfScrap = 0
	}
	return currency.Currencies{
		Keys:  keys,
		Metal: currency.HalfScrapToMetal(metalHalfScrap),
	}
}
