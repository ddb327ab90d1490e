package pos

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"shiftrecon/backend/internal/domain"
)

func bangkok(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Bangkok")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	return loc
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient(ClientConfig{
		BaseURL:         baseURL,
		Token:           "secret-token",
		Timeout:         2 * time.Second,
		RateLimitPerMin: 600000,
	}, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func testWindow(t *testing.T) ShiftWindow {
	t.Helper()
	w, err := WindowFor("2025-01-05", time.UTC, 18, 3)
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	return w
}

func TestWindowForCrossesMidnight(t *testing.T) {
	loc := bangkok(t)
	w, err := WindowFor("2025-01-05", loc, 18, 3)
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if got := w.From.UTC().Format(time.RFC3339); got != "2025-01-05T11:00:00Z" {
		t.Fatalf("unexpected start %s", got)
	}
	if got := w.To.UTC().Format(time.RFC3339); got != "2025-01-05T20:00:00Z" {
		t.Fatalf("unexpected end %s", got)
	}
	if !w.Contains(time.Date(2025, 1, 6, 2, 59, 0, 0, loc)) {
		t.Fatalf("02:59 next day should belong to the shift")
	}
	if w.Contains(time.Date(2025, 1, 6, 3, 0, 0, 0, loc)) {
		t.Fatalf("03:00 next day should be outside the shift")
	}
}

func TestWindowForRejectsBadDate(t *testing.T) {
	if _, err := WindowFor("05/01/2025", time.UTC, 18, 3); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestShiftDateFor(t *testing.T) {
	loc := bangkok(t)
	cases := map[string]time.Time{
		"2025-01-05": time.Date(2025, 1, 5, 19, 0, 0, 0, loc),
		"2025-01-04": time.Date(2025, 1, 5, 2, 0, 0, 0, loc),
		"2024-12-31": time.Date(2025, 1, 1, 1, 30, 0, 0, loc),
	}
	for want, ts := range cases {
		if got := ShiftDateFor(ts, loc, 18); got != want {
			t.Fatalf("%s: expected %s, got %s", ts, want, got)
		}
	}
}

func TestNewClientRequiresToken(t *testing.T) {
	if _, err := NewClient(ClientConfig{}, nil); err == nil {
		t.Fatalf("expected error for empty token")
	}
}

func TestReceiptsPaginatesAndSkipsRefunds(t *testing.T) {
	var pages int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Path != "/receipts" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.URL.Query().Get("created_at_min") != "2025-01-05T18:00:00Z" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		atomic.AddInt32(&pages, 1)
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("cursor") {
		case "":
			fmt.Fprint(w, `{"receipts":[
				{"receipt_number":"1-1001","receipt_date":"2025-01-05T19:00:00Z","receipt_type":"SALE","line_items":[{"item_name":"Classic Smash Burger","quantity":2}]},
				{"receipt_number":"1-1002","receipt_date":"2025-01-05T19:05:00Z","receipt_type":"REFUND","line_items":[{"item_name":"Classic Smash Burger","quantity":1}]}
			],"cursor":"page-2"}`)
		case "page-2":
			fmt.Fprint(w, `{"receipts":[
				{"receipt_number":"1-1003","receipt_date":"2025-01-05T20:00:00Z","receipt_type":"SALE","line_items":[{"item_name":"Coke","quantity":3}]},
				{"receipt_number":"1-1004","receipt_date":"2025-01-05T20:10:00Z","receipt_type":"SALE","cancelled_at":"2025-01-05T20:11:00Z","line_items":[{"item_name":"Coke","quantity":1}]}
			]}`)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	receipts, err := client.Receipts(context.Background(), testWindow(t), "")
	if err != nil {
		t.Fatalf("receipts: %v", err)
	}
	if atomic.LoadInt32(&pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", pages)
	}
	if len(receipts) != 2 {
		t.Fatalf("expected 2 sale receipts, got %d", len(receipts))
	}
	if receipts[1].LineItems[0].ItemName != "Coke" || receipts[1].LineItems[0].Quantity != 3 {
		t.Fatalf("unexpected line %+v", receipts[1].LineItems[0])
	}
}

func TestReceiptsStopsAtPageCap(t *testing.T) {
	var pages int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&pages, 1)
		fmt.Fprintf(w, `{"receipts":[{"receipt_number":"r-%d","receipt_type":"SALE","line_items":[]}],"cursor":"next-%d"}`, n, n)
	}))
	defer srv.Close()

	client, err := NewClient(ClientConfig{BaseURL: srv.URL, Token: "t", RateLimitPerMin: 600000, PageCap: 3}, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer client.Close()

	receipts, err := client.Receipts(context.Background(), testWindow(t), "")
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected ErrTruncated at the page cap, got %v", err)
	}
	if len(receipts) != 3 {
		t.Fatalf("expected the 3 receipts fetched before the cap, got %d", len(receipts))
	}
	if got := atomic.LoadInt32(&pages); got != 3 {
		t.Fatalf("expected pagination to stop at 3 pages, got %d", got)
	}
}

func TestReceiptsOutsideWindowAreSkipped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"receipts":[
			{"receipt_number":"1-2001","receipt_date":"2025-01-05T17:59:00Z","receipt_type":"SALE","line_items":[{"item_name":"Coke","quantity":1}]},
			{"receipt_number":"1-2002","receipt_date":"2025-01-05T23:30:00Z","receipt_type":"SALE","line_items":[{"item_name":"Coke","quantity":1}]},
			{"receipt_number":"1-2003","receipt_date":"2025-01-06T03:00:00Z","receipt_type":"SALE","line_items":[{"item_name":"Coke","quantity":1}]}
		]}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	receipts, err := client.Receipts(context.Background(), testWindow(t), "")
	if err != nil {
		t.Fatalf("receipts: %v", err)
	}
	if len(receipts) != 1 || receipts[0].ReceiptNumber != "1-2002" {
		t.Fatalf("expected only the in-window receipt, got %+v", receipts)
	}
}

func TestShiftReportSumsOverlappingShifts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"shifts":[
			{"store_id":"store-1","gross_sales":1200.50,"net_sales":1100,"cash_payments":500,"discounts":10,"refunds":0,"paid_out":20,
			 "payments":[{"name":"QR PromptPay","money_amount":400},{"name":"Grab","money_amount":{"amount":200.5}}]},
			{"store_id":"store-1","gross_sales":300,"net_sales":300,"cash_payments":300},
			{"store_id":"store-2","gross_sales":9999,"net_sales":9999,"cash_payments":9999}
		]}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	report, err := client.ShiftReport(context.Background(), testWindow(t), "store-1")
	if err != nil {
		t.Fatalf("shift report: %v", err)
	}

	checks := map[string][2]decimal.Decimal{
		"gross": {report.GrossSales, decimal.RequireFromString("1500.5")},
		"net":   {report.NetSales, decimal.NewFromInt(1400)},
		"cash":  {report.CashSales, decimal.NewFromInt(800)},
		"qr":    {report.QRSales, decimal.NewFromInt(400)},
		"grab":  {report.GrabSales, decimal.RequireFromString("200.5")},
		"paid":  {report.PaidOut, decimal.NewFromInt(20)},
	}
	for name, pair := range checks {
		if !pair[0].Equal(pair[1]) {
			t.Fatalf("%s: expected %s, got %s", name, pair[1], pair[0])
		}
	}
}

func TestClientSurfacesAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	if _, err := client.ShiftReport(context.Background(), testWindow(t), ""); err == nil {
		t.Fatalf("expected api error")
	}
}

func TestCircuitBreakerOpensAfterRepeatedFailures(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	for i := 0; i < 5; i++ {
		_, _ = client.Receipts(context.Background(), testWindow(t), "")
	}
	_, err := client.Receipts(context.Background(), testWindow(t), "")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable once the breaker opens, got %v", err)
	}
	if got := atomic.LoadInt32(&hits); got != 5 {
		t.Fatalf("expected open breaker to stop upstream calls, got %d hits", got)
	}
}

func TestStaticSource(t *testing.T) {
	src := NewStatic()
	w := testWindow(t)
	src.SetShift(w.ShiftDate, domain.POSShiftReport{CashSales: decimal.NewFromInt(10)}, []domain.Receipt{{ReceiptNumber: "r1"}})

	report, err := src.ShiftReport(context.Background(), w, "")
	if err != nil || !report.CashSales.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("unexpected report %+v err=%v", report, err)
	}
	receipts, err := src.Receipts(context.Background(), w, "")
	if err != nil || len(receipts) != 1 {
		t.Fatalf("unexpected receipts %+v err=%v", receipts, err)
	}

	src.Fail(errors.New("offline"))
	if _, err := src.Receipts(context.Background(), w, ""); err == nil {
		t.Fatalf("expected injected failure")
	}
	if src.Calls() != 3 {
		t.Fatalf("expected 3 calls, got %d", src.Calls())
	}
}

func TestStaticSourceFiltersByWindowAndTruncates(t *testing.T) {
	src := NewStatic()
	w := testWindow(t)
	src.SetShift(w.ShiftDate, domain.POSShiftReport{}, []domain.Receipt{
		{ReceiptNumber: "undated"},
		{ReceiptNumber: "inside", ReceiptDate: w.From.Add(time.Hour)},
		{ReceiptNumber: "after", ReceiptDate: w.To},
	})

	receipts, err := src.Receipts(context.Background(), w, "")
	if err != nil || len(receipts) != 2 {
		t.Fatalf("expected undated and in-window receipts, got %+v err=%v", receipts, err)
	}

	src.Truncate(true)
	receipts, err = src.Receipts(context.Background(), w, "")
	if !errors.Is(err, ErrTruncated) || len(receipts) != 2 {
		t.Fatalf("expected partial data with ErrTruncated, got %d receipts err=%v", len(receipts), err)
	}
}
