package exchange

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func serve(t *testing.T, status int, body string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, srv.Client())
}

func TestFetchRate(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    string
		wantErr bool
	}{
		{"numeric price", 200, `{"monitors":{"usd":{"price":36.52}}}`, "36.52", false},
		{"string price", 200, `{"monitors":{"usd":{"price":"36.52"}}}`, "36.52", false},
		{"extra fields", 200, `{"datetime":{"date":"x"},"monitors":{"eur":{"price":40},"usd":{"price":1,"title":"Dólar"}}}`, "1", false},
		{"zero price", 200, `{"monitors":{"usd":{"price":0}}}`, "", true},
		{"negative price", 200, `{"monitors":{"usd":{"price":-3}}}`, "", true},
		{"missing price", 200, `{"monitors":{}}`, "", true},
		{"malformed", 200, `{"monitors":`, "", true},
		{"server error", 503, `{"monitors":{"usd":{"price":36.52}}}`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := serve(t, tt.status, tt.body)
			got, err := c.FetchRate(context.Background())
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %s", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient("", nil)
	if c.url != DefaultURL {
		t.Errorf("expected default url, got %q", c.url)
	}
	if c.httpClient == nil || c.httpClient.Timeout == 0 {
		t.Error("expected a client with a timeout")
	}
}

type scriptedFetcher struct {
	calls   atomic.Int32
	results []error
	rate    decimal.Decimal
}

func (f *scriptedFetcher) FetchRate(context.Context) (decimal.Decimal, error) {
	i := int(f.calls.Add(1)) - 1
	if i < len(f.results) && f.results[i] != nil {
		return decimal.Zero, f.results[i]
	}
	return f.rate, nil
}

func TestPollerFailureMakesRateUnknown(t *testing.T) {
	f := &scriptedFetcher{rate: decimal.RequireFromString("36.5"), results: []error{nil, errors.New("timeout"), nil}}
	p := NewPoller(f, time.Hour)
	ctx := context.Background()

	if _, known := p.Rate(); known {
		t.Fatal("rate should be unknown before the first fetch")
	}

	p.Refresh(ctx)
	rate, known := p.Rate()
	if !known || !rate.Equal(f.rate) {
		t.Fatalf("expected known rate 36.5, got %s %v", rate, known)
	}

	p.Refresh(ctx)
	if rate, known := p.Rate(); known || !rate.IsZero() {
		t.Fatalf("a failed fetch must make the rate unknown, got %s %v", rate, known)
	}

	p.Refresh(ctx)
	if _, known := p.Rate(); !known {
		t.Fatal("rate should recover after a successful fetch")
	}
}

func TestPollerRunStopsWithContext(t *testing.T) {
	f := &scriptedFetcher{rate: decimal.NewFromInt(40)}
	p := NewPoller(f, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for f.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	if f.calls.Load() != 1 {
		t.Errorf("expected one immediate fetch, got %d", f.calls.Load())
	}
}

func TestNewPollerDefaultInterval(t *testing.T) {
	if p := NewPoller(&scriptedFetcher{}, 0); p.interval != DefaultInterval {
		t.Errorf("expected default interval, got %v", p.interval)
	}
}
