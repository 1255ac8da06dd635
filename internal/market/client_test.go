package market

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/stocks/NVDA", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.UserAgent(), "tickerdesk/") {
			http.Error(w, `{"detail":"missing user agent"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ticker":"NVDA","company_name":"NVIDIA CORP","m_score":-2.41,"z_score":8.7,"accruals_ratio":0.03,"composite_fraud_risk_score":21.5}`))
	})
	mux.HandleFunc("/health-score/NVDA", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ticker":"NVDA","sharpe":1.8,"sortino":2.4,"alpha":0.31,"beta":1.6,"var_95":0.041,"cvar_95":0.058,"max_drawdown":0.27,"volatility":0.49,"composite_stock_health_score":77.0}`))
	})
	mux.HandleFunc("/stocks/ZZZZ", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"Ticker 'ZZZZ' not found."}`))
	})
	mux.HandleFunc("/health-score/FAIL", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"detail":"Health score pipeline failed"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_FraudScores(t *testing.T) {
	srv := newTestServer(t)
	c := NewClient(srv.URL+"/", nil)

	scores, err := c.FraudScores(context.Background(), " nvda ")
	require.NoError(t, err)
	assert.Equal(t, "NVIDIA CORP", scores.CompanyName)
	require.NotNil(t, scores.MScore)
	assert.InDelta(t, -2.41, *scores.MScore, 1e-9)
	require.NotNil(t, scores.Composite)
	assert.InDelta(t, 21.5, *scores.Composite, 1e-9)
}

func TestClient_StockHealth(t *testing.T) {
	srv := newTestServer(t)
	c := NewClient(srv.URL, nil)

	health, err := c.StockHealth(context.Background(), "NVDA")
	require.NoError(t, err)
	require.NotNil(t, health.Sharpe)
	assert.InDelta(t, 1.8, *health.Sharpe, 1e-9)
	require.NotNil(t, health.Composite)
	assert.InDelta(t, 77.0, *health.Composite, 1e-9)
}

func TestClient_NotFound(t *testing.T) {
	srv := newTestServer(t)
	c := NewClient(srv.URL, nil)

	_, err := c.FraudScores(context.Background(), "ZZZZ")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTickerNotFound))
}

func TestClient_ServerErrorCarriesDetail(t *testing.T) {
	srv := newTestServer(t)
	c := NewClient(srv.URL, nil)

	_, err := c.StockHealth(context.Background(), "FAIL")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
	assert.Contains(t, err.Error(), "Health score pipeline failed")
}

func TestClient_Unconfigured(t *testing.T) {
	c := NewClient("", nil)
	_, err := c.FraudScores(context.Background(), "NVDA")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}
