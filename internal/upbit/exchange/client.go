// Package exchange wraps the authenticated Upbit exchange API: account
// holdings and order submission. Every request carries a freshly signed
// JWT bearer token.
package exchange

import (
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sungminna/upbit-spike-trader/internal/domain/model"
	"github.com/sungminna/upbit-spike-trader/pkg/ratelimit"
)

// AuthError indicates the request could not be signed. It fails a single
// order or account call and never the surrounding cycle.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Client is the authenticated exchange API client.
type Client struct {
	baseURL     string
	accessKey   string
	secretKey   string
	httpClient  *http.Client
	rateLimiter *ratelimit.Limiter
}

// NewClient creates an exchange client with the given credentials.
func NewClient(baseURL, accessKey, secretKey string, limiter *ratelimit.Limiter) *Client {
	return &Client{
		baseURL:   baseURL,
		accessKey: accessKey,
		secretKey: secretKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		rateLimiter: limiter,
	}
}

// Account represents one account balance entry as returned by the API.
// Numeric fields arrive as strings.
type Account struct {
	Currency            string `json:"currency"`
	Balance             string `json:"balance"`
	Locked              string `json:"locked"`
	AvgBuyPrice         string `json:"avg_buy_price"`
	AvgBuyPriceModified bool   `json:"avg_buy_price_modified"`
	UnitCurrency        string `json:"unit_currency"`
}

// OrderRequest represents a request to place an order. Market buys use
// ord_type "price" with a total spend; market sells use ord_type "market"
// with a volume.
type OrderRequest struct {
	Market  string `json:"market"`
	Side    string `json:"side"`
	Volume  string `json:"volume,omitempty"`
	Price   string `json:"price,omitempty"`
	OrdType string `json:"ord_type"`
}

// OrderResponse is the order confirmation echoed by the API.
type OrderResponse struct {
	UUID            string `json:"uuid"`
	Side            string `json:"side"`
	OrdType         string `json:"ord_type"`
	Price           string `json:"price"`
	State           string `json:"state"`
	Market          string `json:"market"`
	CreatedAt       string `json:"created_at"`
	Volume          string `json:"volume"`
	RemainingVolume string `json:"remaining_volume"`
	ReservedFee     string `json:"reserved_fee"`
	Locked          string `json:"locked"`
	ExecutedVolume  string `json:"executed_volume"`
	TradesCount     int    `json:"trades_count"`
}

// GetHoldings retrieves account balances, excluding the settlement
// currency and any explicitly excluded assets.
func (c *Client) GetHoldings(ctx context.Context, quoteCurrency string, excluded []string) ([]model.Holding, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	token, err := c.generateToken(nil)
	if err != nil {
		return nil, &AuthError{Err: err}
	}

	resp, err := c.doRequest(ctx, http.MethodGet, "/v1/accounts", nil, token)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var accounts []Account
	if err := json.NewDecoder(resp.Body).Decode(&accounts); err != nil {
		return nil, fmt.Errorf("failed to decode accounts: %w", err)
	}

	skip := make(map[string]bool, len(excluded)+1)
	skip[quoteCurrency] = true
	for _, asset := range excluded {
		skip[asset] = true
	}

	holdings := make([]model.Holding, 0, len(accounts))
	for _, acc := range accounts {
		if skip[acc.Currency] {
			continue
		}
		balance, err := strconv.ParseFloat(acc.Balance, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed balance for %s: %w", acc.Currency, err)
		}
		avgBuyPrice, err := strconv.ParseFloat(acc.AvgBuyPrice, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed avg_buy_price for %s: %w", acc.Currency, err)
		}
		holdings = append(holdings, model.Holding{
			Currency:    acc.Currency,
			Balance:     balance,
			AvgBuyPrice: avgBuyPrice,
		})
	}

	return holdings, nil
}

// BuyMarket submits a market buy spending the given notional amount of
// the quote currency.
func (c *Client) BuyMarket(ctx context.Context, market string, notional float64) (*OrderResponse, error) {
	return c.placeOrder(ctx, OrderRequest{
		Market:  market,
		Side:    "bid",
		Price:   decimal.NewFromFloat(notional).String(),
		OrdType: "price",
	})
}

// SellMarket submits a market sell of the given volume of the base asset.
func (c *Client) SellMarket(ctx context.Context, market string, volume float64) (*OrderResponse, error) {
	return c.placeOrder(ctx, OrderRequest{
		Market:  market,
		Side:    "ask",
		Volume:  decimal.NewFromFloat(volume).String(),
		OrdType: "market",
	})
}

func (c *Client) placeOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Add("market", req.Market)
	params.Add("side", req.Side)
	params.Add("ord_type", req.OrdType)
	if req.Volume != "" {
		params.Add("volume", req.Volume)
	}
	if req.Price != "" {
		params.Add("price", req.Price)
	}

	token, err := c.generateToken(params)
	if err != nil {
		return nil, &AuthError{Err: err}
	}

	bodyBytes, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order: %w", err)
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/orders", bytes.NewReader(bodyBytes), token)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var orderResp OrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&orderResp); err != nil {
		return nil, fmt.Errorf("failed to decode order response: %w", err)
	}

	return &orderResp, nil
}

// generateToken signs a JWT for the request. Requests with query
// parameters additionally carry a SHA512 hash of the canonicalized query.
func (c *Client) generateToken(params url.Values) (string, error) {
	claims := jwt.MapClaims{
		"access_key": c.accessKey,
		"nonce":      uuid.New().String(),
	}

	if len(params) > 0 {
		hash := sha512.Sum512([]byte(params.Encode()))
		claims["query_hash"] = hex.EncodeToString(hash[:])
		claims["query_hash_alg"] = "SHA512"
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString([]byte(c.secretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signedToken, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader, token string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("API error: status=%d, body=%s", resp.StatusCode, string(bodyBytes))
	}

	return resp, nil
}
