// Package currency converts listing prices to US dollars. The real exchange
// pipeline lives in an external service; this converter keeps a small rate
// table the service refreshes, and reports unavailability for anything else.
package currency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ErrUnavailable indicates no rate is known for the requested currency.
var ErrUnavailable = errors.New("exchange rate unavailable")

// defaultRates seed the table so a fresh deployment converts the common
// currencies before the first refresh arrives.
var defaultRates = map[string]float64{
	"USD": 1.0,
	"EUR": 1.08,
	"GBP": 1.27,
	"CAD": 0.73,
	"AUD": 0.66,
	"JPY": 0.0067,
	"CHF": 1.13,
}

// Converter implements service.Converter from an in-memory rate table.
type Converter struct {
	rates map[string]float64
	mu    sync.RWMutex
}

// NewConverter creates a converter seeded with the default rate table.
func NewConverter() *Converter {
	rates := make(map[string]float64, len(defaultRates))
	for code, rate := range defaultRates {
		rates[code] = rate
	}
	return &Converter{rates: rates}
}

// SetRate installs or replaces the USD rate for a currency.
func (c *Converter) SetRate(currency string, rate float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rates[normalizeCode(currency)] = rate
}

// ToUSD converts an amount into US dollars, returning the USD amount and
// the rate applied. The date parameter is accepted for interface parity
// with the external service, which quotes historical rates.
func (c *Converter) ToUSD(_ context.Context, amount float64, currency string, _ time.Time) (float64, float64, error) {
	code := normalizeCode(currency)
	if code == "" {
		return 0, 0, fmt.Errorf("%w: missing currency code", ErrUnavailable)
	}

	c.mu.RLock()
	rate, ok := c.rates[code]
	c.mu.RUnlock()
	if !ok {
		return 0, 0, fmt.Errorf("%w: %s", ErrUnavailable, code)
	}

	return amount * rate, rate, nil
}

func normalizeCode(currency string) string {
	return strings.ToUpper(strings.TrimSpace(currency))
}
