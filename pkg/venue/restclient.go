package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"marketfeed/internal/market"

	"golang.org/x/time/rate"
)

type RESTClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewRESTClient creates a client for the venue's public REST API. rps <= 0 disables rate limiting.
func NewRESTClient(baseURL string, timeout time.Duration, rps float64, burst int) *RESTClient {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst < 1 {
		burst = 1
	}
	return &RESTClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, burst),
	}
}

// CandleQuery narrows a candle request. Zero values are omitted.
type CandleQuery struct {
	From  time.Time
	To    time.Time
	Limit int
}

// GetOrderBook fetches a depth snapshot. Levels that cannot be parsed are
// dropped and returned in skipped so the caller can log them.
func (c *RESTClient) GetOrderBook(ctx context.Context, pair string, depth int) (snap market.OrderBookSnapshot, skipped []error, err error) {
	q := url.Values{}
	q.Set("pairSymbol", pair)
	if depth > 0 {
		q.Set("limit", strconv.Itoa(depth))
	}

	var result OrderBookResponse
	if err := c.get(ctx, "/api/v2/orderbook", q, &result); err != nil {
		return market.OrderBookSnapshot{}, nil, err
	}

	bids, bidErrs := ParseLevels(result.Bids)
	asks, askErrs := ParseLevels(result.Asks)

	return market.OrderBookSnapshot{
		Pair:     pair,
		UpdateID: result.UpdateID,
		Bids:     bids,
		Asks:     asks,
	}, append(bidErrs, askErrs...), nil
}

// GetCandles fetches candles ordered oldest first. Unparsable rows are dropped
// and returned in skipped.
func (c *RESTClient) GetCandles(ctx context.Context, pair string, res market.Resolution,
	query CandleQuery) (candles []market.Candle, skipped []error, err error) {
	meta, err := LookupResolution(res)
	if err != nil {
		return nil, nil, err
	}

	q := url.Values{}
	q.Set("pairSymbol", pair)
	q.Set("resolution", meta.APIValue)
	if !query.From.IsZero() {
		q.Set("from", strconv.FormatInt(query.From.Unix(), 10))
	}
	if !query.To.IsZero() {
		q.Set("to", strconv.FormatInt(query.To.Unix(), 10))
	}
	if query.Limit > 0 {
		q.Set("limit", strconv.Itoa(query.Limit))
	}

	var rows [][]json.RawMessage
	if err := c.get(ctx, "/api/v2/klines", q, &rows); err != nil {
		return nil, nil, err
	}

	candles, skipped = ParseCandleList(rows)
	return candles, skipped, nil
}

// GetPairs lists the symbols currently open for trading.
func (c *RESTClient) GetPairs(ctx context.Context) ([]string, error) {
	var result PairListResponse
	if err := c.get(ctx, "/api/v2/server/exchangeinfo", nil, &result); err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var pairs []string
	for _, s := range result.Symbols {
		if s.Status == "TRADING" && !seen[s.Name] {
			pairs = append(pairs, s.Name)
			seen[s.Name] = true
		}
	}
	return pairs, nil
}

// get performs a GET request and decodes the envelope's data into out.
func (c *RESTClient) get(ctx context.Context, path string, q url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	endpoint := c.baseURL + path
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	// Construct the GET request with context for timeout/cancel support
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("venue error: status %d: %s", resp.StatusCode, body)
	}

	var rawResp Response
	if err := json.NewDecoder(resp.Body).Decode(&rawResp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if rawResp.Code != 0 {
		return fmt.Errorf("venue error: code %d: %s", rawResp.Code, rawResp.Message)
	}

	if err := json.Unmarshal(rawResp.Data, out); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}
