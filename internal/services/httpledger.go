package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPLedger is a Ledger backed by the user-management service.
type HTTPLedger struct {
	baseURL string
	client  *http.Client
}

func NewHTTPLedger(baseURL string) *HTTPLedger {
	return &HTTPLedger{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

type userDataResponse struct {
	Coins float64 `json:"coins"`
}

type updateCoinsRequest struct {
	UserID string  `json:"userId"`
	Coins  float64 `json:"coins"`
}

type debitCoinsRequest struct {
	UserID string  `json:"userId"`
	Amount float64 `json:"amount"`
}

type updateCoinsResponse struct {
	Success bool    `json:"success"`
	Coins   float64 `json:"coins"`
}

func (l *HTTPLedger) Get(ctx context.Context, userID string) (float64, error) {
	coins, found, err := l.Lookup(ctx, userID)
	if err != nil {
		return 0, err
	}
	if found {
		return coins, nil
	}

	// a zero credit makes the service create the account with its default balance
	return l.Credit(ctx, userID, 0)
}

// Ensure defers to the service, which owns the default balance.
func (l *HTTPLedger) Ensure(ctx context.Context, userID string, _ float64) (float64, error) {
	return l.Get(ctx, userID)
}

func (l *HTTPLedger) Lookup(ctx context.Context, userID string) (float64, bool, error) {
	endpoint := l.baseURL + "/userData?userId=" + url.QueryEscape(userID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, false, err
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return 0, false, nil
	default:
		return 0, false, fmt.Errorf("%w: userData returned %d", ErrUpstreamUnavailable, resp.StatusCode)
	}

	var data userDataResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return 0, false, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	return data.Coins, true, nil
}

func (l *HTTPLedger) Credit(ctx context.Context, userID string, delta float64) (float64, error) {
	body, err := json.Marshal(updateCoinsRequest{UserID: userID, Coins: delta})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/updateUserCoins", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: updateUserCoins returned %d", ErrUpstreamUnavailable, resp.StatusCode)
	}

	var data updateCoinsResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	if !data.Success {
		return 0, fmt.Errorf("%w: updateUserCoins rejected the update", ErrUpstreamUnavailable)
	}

	return data.Coins, nil
}

// Debit asks the service to take amount. The service answers 409 when the balance does
// not cover it.
func (l *HTTPLedger) Debit(ctx context.Context, userID string, amount float64) (float64, error) {
	body, err := json.Marshal(debitCoinsRequest{UserID: userID, Amount: amount})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/debitUserCoins", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusConflict {
		return 0, fmt.Errorf("%w: debitUserCoins returned %d", ErrUpstreamUnavailable, resp.StatusCode)
	}

	var data updateCoinsResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	if resp.StatusCode == http.StatusConflict {
		return data.Coins, fmt.Errorf("%w: have %.2f, need %.2f", ErrInsufficientFunds, data.Coins, amount)
	}

	return data.Coins, nil
}

func (l *HTTPLedger) Close() error {
	l.client.CloseIdleConnections()
	return nil
}
