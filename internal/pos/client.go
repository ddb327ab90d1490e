package pos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"shiftrecon/backend/internal/domain"
	"shiftrecon/backend/internal/logging"
	"shiftrecon/backend/internal/metrics"
)

const (
	DefaultBaseURL  = "https://api.loyverse.com/v1.0"
	DefaultPageCap  = 500
	breakerName     = "pos"
	receiptTypeSale = "SALE"
)

var (
	ErrUnavailable = errors.New("pos unavailable")
	// ErrTruncated accompanies partial results when pagination hit the page cap.
	ErrTruncated = errors.New("pos results truncated at page cap")
)

type ClientConfig struct {
	BaseURL         string
	Token           string
	Timeout         time.Duration
	RateLimitPerMin int
	PageCap         int
}

// Client talks to a Loyverse-style REST API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	ticker  *time.Ticker
	breaker *gobreaker.CircuitBreaker
	pageCap int
	metrics *metrics.Metrics
	log     *logrus.Entry
}

func NewClient(cfg ClientConfig, m *metrics.Metrics) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("pos api token is empty")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	perMin := cfg.RateLimitPerMin
	if perMin <= 0 {
		perMin = 60
	}
	pageCap := cfg.PageCap
	if pageCap <= 0 {
		pageCap = DefaultPageCap
	}

	log := logging.For("pos")
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   cfg.Token,
		http:    &http.Client{Timeout: timeout},
		ticker:  time.NewTicker(time.Minute / time.Duration(perMin)),
		pageCap: pageCap,
		metrics: m,
		log:     log,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.WithFields(logrus.Fields{"breaker": name, "from": from.String(), "to": to.String()}).Warn("circuit breaker state changed")
			m.SetCircuitBreakerState(name, int(to))
		},
	})
	return c, nil
}

func (c *Client) Close() error {
	c.ticker.Stop()
	return nil
}

type money struct {
	Amount decimal.Decimal
}

// UnmarshalJSON accepts a bare number or {"amount": n}.
func (m *money) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '{' {
		var wrapped struct {
			Amount decimal.Decimal `json:"amount"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return err
		}
		m.Amount = wrapped.Amount
		return nil
	}
	if string(data) == "null" {
		m.Amount = decimal.Zero
		return nil
	}
	return json.Unmarshal(data, &m.Amount)
}

type shiftPayment struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	MoneyAmount money  `json:"money_amount"`
}

type shiftDTO struct {
	StoreID      string         `json:"store_id"`
	GrossSales   money          `json:"gross_sales"`
	NetSales     money          `json:"net_sales"`
	Discounts    money          `json:"discounts"`
	Refunds      money          `json:"refunds"`
	PaidOut      money          `json:"paid_out"`
	CashPayments money          `json:"cash_payments"`
	Payments     []shiftPayment `json:"payments"`
}

func (s shiftDTO) report() domain.POSShiftReport {
	r := domain.POSShiftReport{
		GrossSales: s.GrossSales.Amount,
		NetSales:   s.NetSales.Amount,
		CashSales:  s.CashPayments.Amount,
		Discounts:  s.Discounts.Amount,
		Refunds:    s.Refunds.Amount,
		PaidOut:    s.PaidOut.Amount,
	}
	for _, p := range s.Payments {
		label := strings.ToLower(p.Name + " " + p.Type)
		switch {
		case strings.Contains(label, "grab"):
			r.GrabSales = r.GrabSales.Add(p.MoneyAmount.Amount)
		case strings.Contains(label, "qr"), strings.Contains(label, "promptpay"):
			r.QRSales = r.QRSales.Add(p.MoneyAmount.Amount)
		}
	}
	return r
}

type lineItemDTO struct {
	ItemName string  `json:"item_name"`
	SKU      string  `json:"sku"`
	Quantity float64 `json:"quantity"`
	Category string  `json:"category_name"`
}

type receiptDTO struct {
	ReceiptNumber string        `json:"receipt_number"`
	ReceiptDate   time.Time     `json:"receipt_date"`
	ReceiptType   string        `json:"receipt_type"`
	CancelledAt   *time.Time    `json:"cancelled_at"`
	StoreID       string        `json:"store_id"`
	LineItems     []lineItemDTO `json:"line_items"`
}

// ShiftReport sums every POS shift opened inside the window.
func (c *Client) ShiftReport(ctx context.Context, window ShiftWindow, storeID string) (domain.POSShiftReport, error) {
	params := windowParams(window, "created_at_min", "created_at_max", storeID)

	var total domain.POSShiftReport
	err := c.paginate(ctx, "/shifts", params, func(body []byte) (string, error) {
		var page struct {
			Shifts []shiftDTO `json:"shifts"`
			Cursor string     `json:"cursor"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return "", fmt.Errorf("decode shifts: %w", err)
		}
		for _, s := range page.Shifts {
			if storeID != "" && s.StoreID != "" && s.StoreID != storeID {
				continue
			}
			total = total.Add(s.report())
		}
		return page.Cursor, nil
	})
	if errors.Is(err, ErrTruncated) {
		return total, err
	}
	if err != nil {
		return domain.POSShiftReport{}, err
	}
	return total, nil
}

// Receipts returns completed sale receipts; refunds and cancelled receipts are skipped.
func (c *Client) Receipts(ctx context.Context, window ShiftWindow, storeID string) ([]domain.Receipt, error) {
	params := windowParams(window, "created_at_min", "created_at_max", storeID)

	receipts := make([]domain.Receipt, 0, 64)
	err := c.paginate(ctx, "/receipts", params, func(body []byte) (string, error) {
		var page struct {
			Receipts []receiptDTO `json:"receipts"`
			Cursor   string       `json:"cursor"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return "", fmt.Errorf("decode receipts: %w", err)
		}
		for _, r := range page.Receipts {
			if r.CancelledAt != nil {
				continue
			}
			if r.ReceiptType != "" && !strings.EqualFold(r.ReceiptType, receiptTypeSale) {
				continue
			}
			// Receipts synced late can be created inside the window yet dated outside it.
			if !r.ReceiptDate.IsZero() && !window.Contains(r.ReceiptDate) {
				continue
			}
			lines := make([]domain.ReceiptLine, 0, len(r.LineItems))
			for _, li := range r.LineItems {
				lines = append(lines, domain.ReceiptLine{
					ItemName: li.ItemName,
					SKU:      li.SKU,
					Quantity: li.Quantity,
					Category: li.Category,
				})
			}
			receipts = append(receipts, domain.Receipt{
				ReceiptNumber: r.ReceiptNumber,
				ReceiptDate:   r.ReceiptDate,
				StoreID:       r.StoreID,
				LineItems:     lines,
			})
		}
		return page.Cursor, nil
	})
	if errors.Is(err, ErrTruncated) {
		return receipts, err
	}
	if err != nil {
		return nil, err
	}
	return receipts, nil
}

func windowParams(window ShiftWindow, minKey string, maxKey string, storeID string) url.Values {
	params := url.Values{}
	params.Set(minKey, window.From.UTC().Format(time.RFC3339))
	params.Set(maxKey, window.To.UTC().Format(time.RFC3339))
	params.Set("limit", "250")
	if storeID != "" {
		params.Set("store_id", storeID)
	}
	return params
}

func (c *Client) paginate(ctx context.Context, path string, params url.Values, page func([]byte) (string, error)) error {
	cursor := ""
	for pages := 0; ; pages++ {
		if pages >= c.pageCap {
			c.log.WithFields(logrus.Fields{"path": path, "pages": pages}).Warn("page cap reached, stopping pagination")
			return fmt.Errorf("%w: %s after %d pages", ErrTruncated, path, pages)
		}
		if cursor != "" {
			params.Set("cursor", cursor)
		}
		body, err := c.get(ctx, path, params)
		if err != nil {
			return err
		}
		next, err := page(body)
		if err != nil {
			return err
		}
		if next == "" {
			return nil
		}
		cursor = next
	}
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	select {
	case <-c.ticker.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.do(ctx, path, params)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		c.metrics.RecordPOSRequest(path, "breaker_open")
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, err)
	}
	if err != nil {
		return nil, err
	}
	return out.([]byte), nil
}

func (c *Client) do(ctx context.Context, path string, params url.Values) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint = endpoint + "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.RecordPOSRequest(path, "error")
		return nil, fmt.Errorf("pos request %s: %w", path, err)
	}
	defer resp.Body.Close()

	c.metrics.RecordPOSRequest(path, strconv.Itoa(resp.StatusCode))
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read pos response %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("pos api error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
