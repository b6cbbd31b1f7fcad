package bybitclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	bybit_api "github.com/bybit-exchange/bybit.go.api"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"perpRiskBot/internal/domain"
	"perpRiskBot/internal/ports"
)

const (
	categoryLinear = "linear"
	accountUnified = "UNIFIED"

	retCodeLeverageNotModified = 110043
	orderHistoryLimit          = 50
)

// Client implements ports.Exchange against the Bybit v5 unified API for
// USDT linear perpetuals.
type Client struct {
	httpClient *bybit_api.Client
	logger     ports.Logger
	quoteAsset string
}

// Config holds configuration specific to the Bybit client adapter.
type Config struct {
	APIKey     string
	APISecret  string
	UseTestnet bool
	QuoteAsset string // balance currency, USDT when empty
	Logger     ports.Logger
}

// New creates a new Bybit client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Bybit client")
	}
	if cfg.APIKey == "" || cfg.APISecret == "" {
		cfg.Logger.Warn(context.Background(), "APIKey or APISecret is empty. Client will only work for public endpoints.")
	}

	baseURL := bybit_api.MAINNET
	if cfg.UseTestnet {
		baseURL = bybit_api.TESTNET
	}
	quote := cfg.QuoteAsset
	if quote == "" {
		quote = "USDT"
	}

	cfg.Logger.Info(context.Background(), "Bybit client configured", map[string]interface{}{"baseURL": baseURL, "quote": quote})
	return &Client{
		httpClient: bybit_api.NewBybitHttpClient(cfg.APIKey, cfg.APISecret, bybit_api.WithBaseURL(baseURL)),
		logger:     cfg.Logger,
		quoteAsset: quote,
	}, nil
}

// apiError is a non-zero retCode returned inside an otherwise successful response.
type apiError struct {
	Code int
	Msg  string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("bybit API error: %s (code: %d)", e.Msg, e.Code)
}

// handleError translates Bybit errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}
	fields := map[string]interface{}{"operation": operation}

	var mapped error
	var apiErr *apiError
	switch {
	case errors.As(err, &apiErr):
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Msg
		mapped = mapRetCode(apiErr.Code)
	case errors.Is(err, context.DeadlineExceeded):
		mapped = ports.ErrTimeout
	case errors.Is(err, context.Canceled):
		mapped = ports.ErrContextCanceled
	case strings.Contains(err.Error(), "connection refused"),
		strings.Contains(err.Error(), "connection reset by peer"),
		strings.Contains(err.Error(), "no such host"):
		mapped = ports.ErrConnectionFailed
	default:
		mapped = ports.ErrUnknown
	}

	c.logger.Error(ctx, err, operation+" failed", fields)
	return fmt.Errorf("%s failed: %w: %w", operation, mapped, err)
}

func mapRetCode(code int) error {
	switch code {
	case 10001:
		return ports.ErrInvalidRequest
	case 10002:
		return ports.ErrTimeout
	case 10003, 10004, 10005, 10009, 10010:
		return ports.ErrAuthenticationFailed
	case 10006, 10018:
		return ports.ErrRateLimited
	case 10016:
		return ports.ErrExchangeUnavailable
	case 110001:
		return ports.ErrOrderNotFound
	case 110004, 110006, 110007, 110012, 110044, 110045:
		return ports.ErrInsufficientFunds
	default:
		return ports.ErrUnknown
	}
}

// decodeResult checks the envelope and unmarshals its result into out.
func decodeResult(response interface{}, out interface{}) error {
	resp, ok := response.(*bybit_api.ServerResponse)
	if !ok || resp == nil {
		return fmt.Errorf("invalid response type %T", response)
	}
	if resp.RetCode != 0 {
		return &apiError{Code: resp.RetCode, Msg: resp.RetMsg}
	}
	if out == nil {
		return nil
	}
	raw, err := json.Marshal(resp.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return nil
}

// Ticker returns best bid, best ask and last price.
func (c *Client) Ticker(ctx context.Context, symbol string) (*domain.Ticker, error) {
	op := "Ticker"
	resp, err := c.httpClient.NewUtaBybitServiceWithParams(map[string]interface{}{
		"category": categoryLinear,
		"symbol":   symbol,
	}).GetMarketTickers(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	t, err := parseTicker(resp, symbol)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	return t, nil
}

// OHLCV returns up to limit candles, oldest first.
func (c *Client) OHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]*domain.Kline, error) {
	op := "OHLCV"
	interval, err := toInterval(timeframe)
	if err != nil {
		return nil, c.handleError(ctx, fmt.Errorf("%w: %v", ports.ErrInvalidRequest, err), op)
	}
	resp, err := c.httpClient.NewUtaBybitServiceWithParams(map[string]interface{}{
		"category": categoryLinear,
		"symbol":   symbol,
		"interval": interval,
		"limit":    limit,
	}).GetMarketKline(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	klines, err := parseKlines(resp, symbol, timeframe)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	return klines, nil
}

// BalanceQuote returns the wallet balance of the quote coin.
func (c *Client) BalanceQuote(ctx context.Context) (float64, error) {
	op := "BalanceQuote"
	resp, err := c.httpClient.NewUtaBybitServiceWithParams(map[string]interface{}{
		"accountType": accountUnified,
		"coin":        c.quoteAsset,
	}).GetAccountWallet(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}
	bal, err := parseBalance(resp, c.quoteAsset)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}
	return bal, nil
}

// SetLeverage sets buy and sell leverage for symbol.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) (ports.LeverageResult, error) {
	op := "SetLeverage"
	lev := strconv.Itoa(leverage)
	resp, err := c.httpClient.NewUtaBybitServiceWithParams(map[string]interface{}{
		"category":     categoryLinear,
		"symbol":       symbol,
		"buyLeverage":  lev,
		"sellLeverage": lev,
	}).SetPositionLeverage(ctx)
	if err != nil {
		return ports.LeverageApplied, c.handleError(ctx, err, op)
	}
	res, err := classifyLeverage(resp)
	if err != nil {
		return ports.LeverageApplied, c.handleError(ctx, err, op)
	}
	c.logger.Debug(ctx, op+" done", map[string]interface{}{"symbol": symbol, "leverage": leverage, "result": res.String()})
	return res, nil
}

// CreateMarket places a market order and reads back its fill.
func (c *Client) CreateMarket(ctx context.Context, symbol string, side domain.OrderSide, qty float64, reduceOnly bool) (*domain.OrderFill, error) {
	params := map[string]interface{}{
		"category":  categoryLinear,
		"symbol":    symbol,
		"side":      toSide(side),
		"orderType": "Market",
		"qty":       formatNumber(qty),
	}
	if reduceOnly {
		params["reduceOnly"] = true
	}
	fill, err := c.placeOrder(ctx, "CreateMarket", params, side)
	if err != nil {
		return nil, err
	}

	// Market orders fill immediately; the create response carries ids only.
	if got, err := c.FindOrderStatus(ctx, symbol, fill.OrderID); err == nil && got != nil {
		return got, nil
	}
	return fill, nil
}

// CreateLimit places a GTC or post-only limit order.
func (c *Client) CreateLimit(ctx context.Context, symbol string, side domain.OrderSide, qty, price float64, postOnly bool) (*domain.OrderFill, error) {
	tif := "GTC"
	if postOnly {
		tif = "PostOnly"
	}
	fill, err := c.placeOrder(ctx, "CreateLimit", map[string]interface{}{
		"category":    categoryLinear,
		"symbol":      symbol,
		"side":        toSide(side),
		"orderType":   "Limit",
		"qty":         formatNumber(qty),
		"price":       formatNumber(price),
		"timeInForce": tif,
	}, side)
	if err != nil {
		return nil, err
	}
	fill.Price = price
	return fill, nil
}

func (c *Client) placeOrder(ctx context.Context, op string, params map[string]interface{}, side domain.OrderSide) (*domain.OrderFill, error) {
	params["orderLinkId"] = newClientOrderID()
	resp, err := c.httpClient.NewUtaBybitServiceWithParams(params).PlaceOrder(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	var res struct {
		OrderID     string `json:"orderId"`
		OrderLinkID string `json:"orderLinkId"`
	}
	if err := decodeResult(resp, &res); err != nil {
		return nil, c.handleError(ctx, fmt.Errorf("%w: %w", ports.ErrOrderPlacementFailed, err), op)
	}
	if res.OrderID == "" {
		return nil, c.handleError(ctx, fmt.Errorf("%w: empty order id", ports.ErrOrderPlacementFailed), op)
	}

	c.logger.Info(ctx, op+" successful", map[string]interface{}{
		"symbol": params["symbol"], "side": side, "qty": params["qty"], "orderID": res.OrderID,
	})
	return &domain.OrderFill{
		OrderID:       res.OrderID,
		ClientOrderID: res.OrderLinkID,
		Symbol:        params["symbol"].(string),
		Side:          side,
		Status:        domain.OrderStateOpen,
		Timestamp:     time.Now().UTC(),
	}, nil
}

// CancelOrder cancels an open order.
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	op := "CancelOrder"
	resp, err := c.httpClient.NewUtaBybitServiceWithParams(map[string]interface{}{
		"category": categoryLinear,
		"symbol":   symbol,
		"orderId":  orderID,
	}).CancelOrder(ctx)
	if err == nil {
		err = decodeResult(resp, nil)
	}
	if err != nil {
		return c.handleError(ctx, err, op)
	}
	return nil
}

// FindOrderStatus scans open orders, then recent order history.
func (c *Client) FindOrderStatus(ctx context.Context, symbol, orderID string) (*domain.OrderFill, error) {
	op := "FindOrderStatus"
	params := map[string]interface{}{"category": categoryLinear, "symbol": symbol}

	resp, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetOpenOrders(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	fill, err := findOrder(resp, orderID)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	if fill != nil {
		return fill, nil
	}

	params = map[string]interface{}{"category": categoryLinear, "symbol": symbol, "limit": orderHistoryLimit}
	resp, err = c.httpClient.NewUtaBybitServiceWithParams(params).GetOrderHistory(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	fill, err = findOrder(resp, orderID)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	return fill, nil
}

// SetNativeStopLossTakeProfit attaches position-level stop loss and take
// profit on the exchange.
func (c *Client) SetNativeStopLossTakeProfit(ctx context.Context, symbol string, side domain.Side, qty float64, stopLoss, takeProfit *float64) error {
	op := "SetNativeStopLossTakeProfit"
	if stopLoss == nil && takeProfit == nil {
		return nil
	}
	params := map[string]interface{}{
		"category":    categoryLinear,
		"symbol":      symbol,
		"tpslMode":    "Full",
		"positionIdx": 0,
	}
	if stopLoss != nil {
		params["stopLoss"] = formatNumber(*stopLoss)
		params["slTriggerBy"] = "LastPrice"
	}
	if takeProfit != nil {
		params["takeProfit"] = formatNumber(*takeProfit)
		params["tpTriggerBy"] = "LastPrice"
	}

	resp, err := c.httpClient.NewUtaBybitServiceWithParams(params).SetPositionTradingStop(ctx)
	if err == nil {
		err = decodeResult(resp, nil)
	}
	if err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "side": side, "sl": params["stopLoss"], "tp": params["takeProfit"]})
	return nil
}

// --- Translation Helpers ---

func parseTicker(resp interface{}, symbol string) (*domain.Ticker, error) {
	var res struct {
		List []struct {
			Symbol    string `json:"symbol"`
			Bid1Price string `json:"bid1Price"`
			Ask1Price string `json:"ask1Price"`
			LastPrice string `json:"lastPrice"`
		} `json:"list"`
	}
	if err := decodeResult(resp, &res); err != nil {
		return nil, err
	}
	if len(res.List) == 0 {
		return nil, fmt.Errorf("%w: no ticker data returned for symbol %s", ports.ErrNotFound, symbol)
	}
	item := res.List[0]
	return &domain.Ticker{
		Symbol:    symbol,
		Bid:       parseFloat(item.Bid1Price),
		Ask:       parseFloat(item.Ask1Price),
		Last:      parseFloat(item.LastPrice),
		Timestamp: time.Now().UTC(),
	}, nil
}

// parseKlines converts the newest-first kline list into oldest-first candles.
func parseKlines(resp interface{}, symbol, timeframe string) ([]*domain.Kline, error) {
	var res struct {
		List [][]string `json:"list"`
	}
	if err := decodeResult(resp, &res); err != nil {
		return nil, err
	}
	out := make([]*domain.Kline, 0, len(res.List))
	for i := len(res.List) - 1; i >= 0; i-- {
		item := res.List[i]
		if len(item) < 6 {
			continue
		}
		start, err := strconv.ParseInt(item[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing start time '%s': %w", item[0], err)
		}
		out = append(out, &domain.Kline{
			OpenTime: time.UnixMilli(start).UTC(),
			Symbol:   symbol,
			Interval: timeframe,
			Open:     parseFloat(item[1]),
			High:     parseFloat(item[2]),
			Low:      parseFloat(item[3]),
			Close:    parseFloat(item[4]),
			Volume:   parseFloat(item[5]),
		})
	}
	return out, nil
}

// parseBalance returns walletBalance, falling back to availableToWithdraw.
func parseBalance(resp interface{}, coin string) (float64, error) {
	var res struct {
		List []struct {
			Coin []struct {
				Coin                string `json:"coin"`
				WalletBalance       string `json:"walletBalance"`
				AvailableToWithdraw string `json:"availableToWithdraw"`
			} `json:"coin"`
		} `json:"list"`
	}
	if err := decodeResult(resp, &res); err != nil {
		return 0, err
	}
	for _, acct := range res.List {
		for _, cb := range acct.Coin {
			if !strings.EqualFold(cb.Coin, coin) {
				continue
			}
			if total := parseFloat(cb.WalletBalance); total > 0 {
				return total, nil
			}
			return parseFloat(cb.AvailableToWithdraw), nil
		}
	}
	return 0, nil
}

func classifyLeverage(resp interface{}) (ports.LeverageResult, error) {
	err := decodeResult(resp, nil)
	var apiErr *apiError
	if errors.As(err, &apiErr) &&
		(apiErr.Code == retCodeLeverageNotModified || strings.Contains(strings.ToLower(apiErr.Msg), "leverage not modified")) {
		return ports.LeverageUnchanged, nil
	}
	if err != nil {
		return ports.LeverageApplied, err
	}
	return ports.LeverageApplied, nil
}

type orderRecord struct {
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	OrderStatus string `json:"orderStatus"`
	Price       string `json:"price"`
	AvgPrice    string `json:"avgPrice"`
	CumExecQty  string `json:"cumExecQty"`
	CumExecFee  string `json:"cumExecFee"`
	UpdatedTime string `json:"updatedTime"`
}

func findOrder(resp interface{}, orderID string) (*domain.OrderFill, error) {
	var res struct {
		List []orderRecord `json:"list"`
	}
	if err := decodeResult(resp, &res); err != nil {
		return nil, err
	}
	for _, o := range res.List {
		if o.OrderID == orderID {
			return translateOrder(o), nil
		}
	}
	return nil, nil
}

func translateOrder(o orderRecord) *domain.OrderFill {
	fill := &domain.OrderFill{
		OrderID:       o.OrderID,
		ClientOrderID: o.OrderLinkID,
		Symbol:        o.Symbol,
		Side:          domain.OrderSide(strings.ToUpper(o.Side)),
		Status:        domain.ParseOrderState(o.OrderStatus),
		Price:         parseFloat(o.Price),
		AvgPrice:      parseFloat(o.AvgPrice),
		FilledQty:     parseFloat(o.CumExecQty),
	}
	if o.CumExecFee != "" {
		if fee, err := strconv.ParseFloat(o.CumExecFee, 64); err == nil {
			fill.Fee = &fee
		}
	}
	if ms, err := strconv.ParseInt(o.UpdatedTime, 10, 64); err == nil {
		fill.Timestamp = time.UnixMilli(ms).UTC()
	}
	return fill
}

// toInterval maps a timeframe like "5m" onto the Bybit interval code.
func toInterval(timeframe string) (string, error) {
	switch timeframe {
	case "1m", "3m", "5m", "15m", "30m":
		return strings.TrimSuffix(timeframe, "m"), nil
	case "1h":
		return "60", nil
	case "2h":
		return "120", nil
	case "4h":
		return "240", nil
	case "6h":
		return "360", nil
	case "12h":
		return "720", nil
	case "1d":
		return "D", nil
	case "1w":
		return "W", nil
	default:
		return "", fmt.Errorf("unsupported timeframe %q", timeframe)
	}
}

func toSide(side domain.OrderSide) string {
	if side == domain.Sell {
		return "Sell"
	}
	return "Buy"
}

func formatNumber(v float64) string {
	return decimal.NewFromFloat(v).String()
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func newClientOrderID() string {
	return "pb" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
