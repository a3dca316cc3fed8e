package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	checkout "github.com/payelement/checkout/go"
	checkoutgin "github.com/payelement/checkout/go/pkg/gin"
)

// HeaderCartFingerprint selects the cart priced by the store
const HeaderCartFingerprint = "X-Cart-Fingerprint"

// storeTotals is the totals object of a Store API cart or order
type storeTotals struct {
	Totals struct {
		TotalPrice   string `json:"total_price"`
		CurrencyCode string `json:"currency_code"`
	} `json:"totals"`
}

// storePricer reads cart and order totals from the store's Store API
type storePricer struct {
	rest *resty.Client
}

func newStorePricer(storeURL string, timeout time.Duration) *storePricer {
	rest := resty.New().
		SetBaseURL(strings.TrimRight(storeURL, "/") + checkoutgin.StoreAPIBase).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &storePricer{rest: rest}
}

// Price implements stripe.Pricer
func (p *storePricer) Price(ctx context.Context, fingerprint checkout.Fingerprint, orderID string) (int64, string, error) {
	req := p.rest.R().SetContext(ctx)
	path := "/cart"
	if orderID != "" {
		path = "/order/" + orderID
	} else {
		req.SetHeader(HeaderCartFingerprint, string(fingerprint))
	}

	resp, err := req.Get(path)
	if err != nil {
		return 0, "", fmt.Errorf("failed to read store totals: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return 0, "", fmt.Errorf("store totals returned %d", resp.StatusCode())
	}

	var totals storeTotals
	if err := json.Unmarshal(resp.Body(), &totals); err != nil {
		return 0, "", fmt.Errorf("failed to decode store totals: %w", err)
	}
	amount, err := strconv.ParseInt(totals.Totals.TotalPrice, 10, 64)
	if err != nil || amount < 0 {
		return 0, "", fmt.Errorf("invalid store total %q", totals.Totals.TotalPrice)
	}
	if totals.Totals.CurrencyCode == "" {
		return 0, "", fmt.Errorf("store totals carry no currency")
	}
	return amount, strings.ToLower(totals.Totals.CurrencyCode), nil
}
