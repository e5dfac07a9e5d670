package exchange

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sungminna/upbit-spike-trader/pkg/ratelimit"
)

const testSecret = "test-secret-key"

func testExchangeClient(serverURL string) *Client {
	return NewClient(serverURL, "test-access-key", testSecret, ratelimit.New(1000))
}

// parseBearer verifies the Authorization header and returns the claims.
func parseBearer(t *testing.T, r *http.Request) jwt.MapClaims {
	t.Helper()

	header := r.Header.Get("Authorization")
	require.True(t, strings.HasPrefix(header, "Bearer "))

	token, err := jwt.Parse(strings.TrimPrefix(header, "Bearer "), func(token *jwt.Token) (interface{}, error) {
		return []byte(testSecret), nil
	})
	require.NoError(t, err)
	require.True(t, token.Valid)

	claims, ok := token.Claims.(jwt.MapClaims)
	require.True(t, ok)
	return claims
}

func TestGetHoldings_SignsAndFilters(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/accounts", r.URL.Path)

		claims := parseBearer(t, r)
		assert.Equal(t, "test-access-key", claims["access_key"])
		assert.NotEmpty(t, claims["nonce"])
		// No query parameters, so no query hash.
		assert.Nil(t, claims["query_hash"])

		json.NewEncoder(w).Encode([]Account{
			{Currency: "KRW", Balance: "500000", AvgBuyPrice: "0"},
			{Currency: "BTC", Balance: "0.5", AvgBuyPrice: "80000000"},
			{Currency: "APENFT", Balance: "1000", AvgBuyPrice: "0.1"},
		})
	}))
	defer server.Close()

	holdings, err := testExchangeClient(server.URL).GetHoldings(context.Background(), "KRW", []string{"APENFT"})

	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.Equal(t, "BTC", holdings[0].Currency)
	assert.Equal(t, 0.5, holdings[0].Balance)
	assert.Equal(t, 80000000.0, holdings[0].AvgBuyPrice)
}

func TestGetHoldings_MalformedBalance(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]Account{
			{Currency: "BTC", Balance: "not-a-number", AvgBuyPrice: "1"},
		})
	}))
	defer server.Close()

	_, err := testExchangeClient(server.URL).GetHoldings(context.Background(), "KRW", nil)
	assert.Error(t, err)
}

func TestBuyMarket_RequestShape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/orders", r.URL.Path)

		var req OrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "KRW-BTC", req.Market)
		assert.Equal(t, "bid", req.Side)
		assert.Equal(t, "price", req.OrdType)
		assert.Equal(t, "10000", req.Price)
		assert.Empty(t, req.Volume)

		// The query hash must cover the canonicalized order parameters.
		claims := parseBearer(t, r)
		params := url.Values{}
		params.Add("market", req.Market)
		params.Add("side", req.Side)
		params.Add("ord_type", req.OrdType)
		params.Add("price", req.Price)
		hash := sha512.Sum512([]byte(params.Encode()))
		assert.Equal(t, hex.EncodeToString(hash[:]), claims["query_hash"])
		assert.Equal(t, "SHA512", claims["query_hash_alg"])

		json.NewEncoder(w).Encode(OrderResponse{UUID: "abc", State: "wait", Market: req.Market})
	}))
	defer server.Close()

	resp, err := testExchangeClient(server.URL).BuyMarket(context.Background(), "KRW-BTC", 10000)

	require.NoError(t, err)
	assert.Equal(t, "abc", resp.UUID)
}

func TestSellMarket_RequestShape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req OrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ask", req.Side)
		assert.Equal(t, "market", req.OrdType)
		assert.Equal(t, "2.5", req.Volume)
		assert.Empty(t, req.Price)

		json.NewEncoder(w).Encode(OrderResponse{UUID: "def", State: "wait", Market: req.Market})
	}))
	defer server.Close()

	resp, err := testExchangeClient(server.URL).SellMarket(context.Background(), "KRW-X", 2.5)

	require.NoError(t, err)
	assert.Equal(t, "def", resp.UUID)
}

func TestPlaceOrder_APIErrorSurfaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"name":"insufficient_funds"}}`, http.StatusBadRequest)
	}))
	defer server.Close()

	_, err := testExchangeClient(server.URL).BuyMarket(context.Background(), "KRW-BTC", 10000)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient_funds")
}
