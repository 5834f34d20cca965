package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNoonesGetTradeDetails_JSONBodyAndMapping(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok", "expires_in": 3600})
	})
	mux.HandleFunc("/trade/get", func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Fatalf("content type=%q", ct)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["trade_hash"] != "NnX1" {
			t.Fatalf("trade_hash=%v", body["trade_hash"])
		}
		_, _ = w.Write([]byte(`{
			"status": "success",
			"data": {
				"trade": {
					"trade_hash": "NnX1",
					"trade_status": "Dispute open",
					"crypto_amount_total": 50000000,
					"fiat_price_per_crypto": "68000",
					"crypto_rate_usd": 66500
				}
			}
		}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := newNoonesClient(Credentials{APIKey: "key", APISecret: "secret"}, Config{
		NoonesBaseURL:  srv.URL,
		NoonesTokenURL: srv.URL + "/oauth2/token",
	})

	trade, err := client.GetTradeDetails(context.Background(), "NnX1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if trade.TradeStatus != "Dispute open" {
		t.Fatalf("status=%q", trade.TradeStatus)
	}
	if trade.CryptoAmountTotal != 50000000 {
		t.Fatalf("total=%d", trade.CryptoAmountTotal)
	}
	if trade.FiatPricePerCrypto != "68000" {
		t.Fatalf("fiat price=%q", trade.FiatPricePerCrypto)
	}
	// No live rate in the payload: the fallback field carries the snapshot.
	if trade.CryptoCurrentRateUSD != "" || trade.CryptoRateUSD != "66500" {
		t.Fatalf("rates=%q/%q", trade.CryptoCurrentRateUSD, trade.CryptoRateUSD)
	}
}
