package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient(Config{
		BaseURL:       srv.URL,
		ClientID:      "client-1",
		ClientSecret:  "secret-1",
		ClientVersion: "1",
		Timeout:       2 * time.Second,
	})
	return client, srv
}

func tokenHandler(tokenCalls *int32, expiresAt int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(tokenCalls, 1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-123",
			"token_type":   "O-Bearer",
			"expires_at":   expiresAt,
		})
	}
}

func TestGetAccessToken_CachedUntilExpiry(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	var tokenCalls int32

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth/token", tokenHandler(&tokenCalls, base.Add(30*time.Minute).Unix()))

	client, _ := newTestClient(t, mux)
	now := base
	client.now = func() time.Time { return now }

	tok, err := client.GetAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-123", tok)
	assert.EqualValues(t, 1, atomic.LoadInt32(&tokenCalls))

	// Still valid: served from cache.
	now = base.Add(10 * time.Minute)
	_, err = client.GetAccessToken(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&tokenCalls))

	// Past expiry: refreshed.
	now = base.Add(31 * time.Minute)
	_, err = client.GetAccessToken(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&tokenCalls))
}

func TestGetAccessToken_NeverReturnsExpiredToken(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	var tokenCalls int32

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth/token", tokenHandler(&tokenCalls, base.Add(5*time.Minute).Unix()))

	client, _ := newTestClient(t, mux)
	now := base
	client.now = func() time.Time { return now }

	_, err := client.GetAccessToken(context.Background())
	require.NoError(t, err)

	// Within the safety margin before expiry a fresh token is fetched.
	now = base.Add(4*time.Minute + 30*time.Second)
	_, err = client.GetAccessToken(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&tokenCalls))
}

func TestGetOrderStatus_NormalizesStates(t *testing.T) {
	cases := []struct {
		gatewayState string
		want         State
	}{
		{"COMPLETED", StateCompleted},
		{"FAILED", StateFailed},
		{"EXPIRED", StateFailed},
		{"PENDING", StatePending},
		{"CREATED", StatePending},
	}

	for _, tc := range cases {
		t.Run(tc.gatewayState, func(t *testing.T) {
			var tokenCalls int32
			mux := http.NewServeMux()
			mux.HandleFunc("/v1/oauth/token", tokenHandler(&tokenCalls, time.Now().Add(time.Hour).Unix()))
			mux.HandleFunc("/checkout/v2/order/AQP1001/status", func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "O-Bearer tok-123", r.Header.Get("Authorization"))
				_ = json.NewEncoder(w).Encode(map[string]any{
					"orderId": "OMO123",
					"state":   tc.gatewayState,
					"paymentDetails": []map[string]any{
						{"transactionId": "TXN1", "paymentMode": "UPI"},
					},
				})
			})

			client, _ := newTestClient(t, mux)
			status, err := client.GetOrderStatus(context.Background(), "AQP1001")
			require.NoError(t, err)
			assert.Equal(t, tc.want, status.State)
			assert.Equal(t, "OMO123", status.OrderID)
			assert.Equal(t, "TXN1", status.TransactionID)
			assert.Equal(t, "UPI", status.PaymentMode)
		})
	}
}

func TestGetOrderStatus_NotFound(t *testing.T) {
	var tokenCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth/token", tokenHandler(&tokenCalls, time.Now().Add(time.Hour).Unix()))
	mux.HandleFunc("/checkout/v2/order/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	client, _ := newTestClient(t, mux)
	_, err := client.GetOrderStatus(context.Background(), "NOSUCH")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestCreateOrder_Success(t *testing.T) {
	var tokenCalls int32
	var gotBody payRequest

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth/token", tokenHandler(&tokenCalls, time.Now().Add(time.Hour).Unix()))
	mux.HandleFunc("/checkout/v2/pay", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"orderId":     "OMO456",
			"state":       "PENDING",
			"redirectUrl": "https://pay.example.test/OMO456",
		})
	})

	client, _ := newTestClient(t, mux)
	order, err := client.CreateOrder(context.Background(), CreateOrderRequest{
		MerchantOrderID: "AQP1001",
		Amount:          50000,
		RedirectURL:     "https://park.example.test/return",
	})
	require.NoError(t, err)

	assert.Equal(t, "OMO456", order.OrderID)
	assert.Equal(t, "https://pay.example.test/OMO456", order.RedirectURL)
	assert.Equal(t, StatePending, order.State)
	assert.Equal(t, "AQP1001", gotBody.MerchantOrderID)
	assert.EqualValues(t, 50000, gotBody.Amount)
	assert.Equal(t, "PG_CHECKOUT", gotBody.PaymentFlow.Type)
}

func TestCreateOrder_GatewayRejection(t *testing.T) {
	var tokenCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth/token", tokenHandler(&tokenCalls, time.Now().Add(time.Hour).Unix()))
	mux.HandleFunc("/checkout/v2/pay", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"code":    "INVALID_AMOUNT",
			"message": "amount must be at least 100 paise",
		})
	})

	client, _ := newTestClient(t, mux)
	_, err := client.CreateOrder(context.Background(), CreateOrderRequest{
		MerchantOrderID: "AQP1001",
		Amount:          1,
	})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "INVALID_AMOUNT", apiErr.Code)
	assert.Contains(t, apiErr.Message, "100 paise")
	assert.False(t, apiErr.Transient())
}

func TestServerFaultIsTransient(t *testing.T) {
	var tokenCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth/token", tokenHandler(&tokenCalls, time.Now().Add(time.Hour).Unix()))
	mux.HandleFunc("/checkout/v2/order/AQP1001/status", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	client, _ := newTestClient(t, mux)
	_, err := client.GetOrderStatus(context.Background(), "AQP1001")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.Transient())
}

func TestSlowGatewayTimesOut(t *testing.T) {
	var tokenCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth/token", tokenHandler(&tokenCalls, time.Now().Add(time.Hour).Unix()))
	mux.HandleFunc("/checkout/v2/order/AQP1001/status", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	})

	client, _ := newTestClient(t, mux)
	client.httpClient.Timeout = 50 * time.Millisecond

	_, err := client.GetOrderStatus(context.Background(), "AQP1001")
	assert.ErrorIs(t, err, ErrTimeout)
}
