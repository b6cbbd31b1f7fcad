package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"perpRiskBot/internal/domain"
	"perpRiskBot/internal/ports"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"

	orderHistoryLimit = 50
)

// Client implements ports.Exchange using the go-binance futures client.
type Client struct {
	futuresClient *futures.Client
	logger        ports.Logger
	quoteAsset    string
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	QuoteAsset string // balance asset, USDT when empty
	Logger     ports.Logger
	BaseURL    string // overrides the testnet/production URL when set
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Client will only work for public endpoints.")
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)
	switch {
	case cfg.BaseURL != "":
		client.BaseURL = cfg.BaseURL
	case cfg.UseTestnet:
		client.BaseURL = baseURLTestnet
	default:
		client.BaseURL = baseURLProduction
	}
	cfg.Logger.Info(context.Background(), "Binance client configured", map[string]interface{}{"baseURL": client.BaseURL})

	quote := cfg.QuoteAsset
	if quote == "" {
		quote = "USDT"
	}
	return &Client{futuresClient: client, logger: cfg.Logger, quoteAsset: quote}, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mapAPICode(apiErr.Code), err)
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	} else if strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer") {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	} else {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

func mapAPICode(code int64) error {
	switch code {
	case -1003: // Too many requests
		return ports.ErrRateLimited
	case -1021: // Timestamp outside of recvWindow
		return ports.ErrTimeout
	case -1022, -2014, -2015: // Bad signature, key format or permissions
		return ports.ErrAuthenticationFailed
	case -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1115, -1116, -1117, -1120, -1121, -1125, -1127, -1128, -1130,
		-4003, -4014, -4015: // Parameter, quantity, price or leverage out of range
		return ports.ErrInvalidRequest
	case -2010, -2022: // New order or reduce-only order rejected
		return ports.ErrOrderPlacementFailed
	case -2011: // Cancel order rejected
		return ports.ErrOrderCancelFailed
	case -2013: // Order does not exist
		return ports.ErrOrderNotFound
	case -2019, -3005, -3041, -4047: // Margin, balance or position limit
		return ports.ErrInsufficientFunds
	case -4044: // Position not found
		return ports.ErrNotFound
	default:
		return ports.ErrUnknown
	}
}

// Ticker returns best bid/ask from the book ticker and the 24h last price.
func (c *Client) Ticker(ctx context.Context, symbol string) (*domain.Ticker, error) {
	op := "Ticker"
	books, err := c.futuresClient.NewListBookTickersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	if len(books) == 0 {
		return nil, c.handleError(ctx, fmt.Errorf("%w: no book ticker for symbol %s", ports.ErrNotFound, symbol), op)
	}
	stats, err := c.futuresClient.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	t := &domain.Ticker{
		Symbol:    symbol,
		Bid:       parseFloat(books[0].BidPrice),
		Ask:       parseFloat(books[0].AskPrice),
		Timestamp: time.Now().UTC(),
	}
	if len(stats) > 0 {
		t.Last = parseFloat(stats[0].LastPrice)
	}
	return t, nil
}

// OHLCV retrieves historical klines, oldest first.
func (c *Client) OHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]*domain.Kline, error) {
	op := "OHLCV"
	binanceKlines, err := c.futuresClient.NewKlinesService().Symbol(symbol).Interval(timeframe).Limit(limit).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	domainKlines := make([]*domain.Kline, 0, len(binanceKlines))
	for _, bk := range binanceKlines {
		dk, err := translateBinanceKline(bk, symbol, timeframe)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("failed to translate historical kline: %w", err), op)
		}
		domainKlines = append(domainKlines, dk)
	}
	return domainKlines, nil
}

// BalanceQuote returns the wallet balance of the quote asset, falling back to
// the available balance.
func (c *Client) BalanceQuote(ctx context.Context) (float64, error) {
	op := "BalanceQuote"
	account, err := c.futuresClient.NewGetAccountService().Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}
	for _, bal := range account.Assets {
		if bal.Asset != c.quoteAsset {
			continue
		}
		if total := parseFloat(bal.WalletBalance); total > 0 {
			return total, nil
		}
		return parseFloat(bal.AvailableBalance), nil
	}
	return 0, nil
}

// SetLeverage changes leverage unless the position already uses it.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) (ports.LeverageResult, error) {
	op := "SetLeverage"
	positions, err := c.futuresClient.NewGetPositionRiskService().Symbol(symbol).Do(ctx)
	if err != nil {
		return ports.LeverageApplied, c.handleError(ctx, err, op)
	}
	for _, p := range positions {
		if current, convErr := strconv.Atoi(p.Leverage); convErr == nil && current == leverage {
			return ports.LeverageUnchanged, nil
		}
	}

	_, err = c.futuresClient.NewChangeLeverageService().
		Symbol(symbol).
		Leverage(leverage).
		Do(ctx)
	if err != nil {
		return ports.LeverageApplied, c.handleError(ctx, err, op)
	}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "leverage": leverage})
	return ports.LeverageApplied, nil
}

// CreateMarket places a market order and returns its result fill.
func (c *Client) CreateMarket(ctx context.Context, symbol string, side domain.OrderSide, qty float64, reduceOnly bool) (*domain.OrderFill, error) {
	op := "CreateMarket"
	svc := c.futuresClient.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(side)).
		Type(futures.OrderTypeMarket).
		Quantity(formatNumber(qty)).
		NewClientOrderID(newClientOrderID()).
		NewOrderResponseType(futures.NewOrderRespTypeRESULT)
	if reduceOnly {
		svc = svc.ReduceOnly(true)
	}
	order, err := svc.Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	fill := translateCreateOrder(order)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "side": side, "qty": qty, "orderID": fill.OrderID, "avgPrice": fill.AvgPrice})
	return fill, nil
}

// CreateLimit places a GTC limit order, or GTX when postOnly is set.
func (c *Client) CreateLimit(ctx context.Context, symbol string, side domain.OrderSide, qty, price float64, postOnly bool) (*domain.OrderFill, error) {
	op := "CreateLimit"
	tif := futures.TimeInForceTypeGTC
	if postOnly {
		tif = futures.TimeInForceTypeGTX
	}
	order, err := c.futuresClient.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(side)).
		Type(futures.OrderTypeLimit).
		TimeInForce(tif).
		Quantity(formatNumber(qty)).
		Price(formatNumber(price)).
		NewClientOrderID(newClientOrderID()).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	fill := translateCreateOrder(order)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "side": side, "qty": qty, "price": price, "orderID": fill.OrderID})
	return fill, nil
}

// CancelOrder cancels an open order on Binance.
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	op := "CancelOrder"
	id, err := parseOrderID(orderID)
	if err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Debug(ctx, "Attempting to cancel order", map[string]interface{}{"symbol": symbol, "orderID": orderID})
	if _, err := c.futuresClient.NewCancelOrderService().Symbol(symbol).OrderID(id).Do(ctx); err != nil {
		return c.handleError(ctx, err, op)
	}
	return nil
}

// FindOrderStatus scans open orders, then recent orders, for orderID.
func (c *Client) FindOrderStatus(ctx context.Context, symbol, orderID string) (*domain.OrderFill, error) {
	op := "FindOrderStatus"
	id, err := parseOrderID(orderID)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	open, err := c.futuresClient.NewListOpenOrdersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	if o := findOrder(open, id); o != nil {
		return translateOrder(o), nil
	}

	recent, err := c.futuresClient.NewListOrdersService().Symbol(symbol).Limit(orderHistoryLimit).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	if o := findOrder(recent, id); o != nil {
		return translateOrder(o), nil
	}
	return nil, nil
}

// SetNativeStopLossTakeProfit replaces close-position STOP_MARKET and
// TAKE_PROFIT_MARKET orders for symbol.
func (c *Client) SetNativeStopLossTakeProfit(ctx context.Context, symbol string, side domain.Side, qty float64, stopLoss, takeProfit *float64) error {
	op := "SetNativeStopLossTakeProfit"
	if stopLoss == nil && takeProfit == nil {
		return nil
	}

	open, err := c.futuresClient.NewListOpenOrdersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, op)
	}
	for _, o := range open {
		replace := (stopLoss != nil && o.Type == futures.OrderTypeStopMarket) ||
			(takeProfit != nil && o.Type == futures.OrderTypeTakeProfitMarket)
		if !replace {
			continue
		}
		if _, err := c.futuresClient.NewCancelOrderService().Symbol(symbol).OrderID(o.OrderID).Do(ctx); err != nil {
			return c.handleError(ctx, err, op)
		}
	}

	exit := futures.SideType(side.ExitSide())
	if stopLoss != nil {
		if err := c.placeCloseOrder(ctx, symbol, exit, futures.OrderTypeStopMarket, *stopLoss); err != nil {
			return c.handleError(ctx, err, op)
		}
	}
	if takeProfit != nil {
		if err := c.placeCloseOrder(ctx, symbol, exit, futures.OrderTypeTakeProfitMarket, *takeProfit); err != nil {
			return c.handleError(ctx, err, op)
		}
	}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "side": side, "qty": qty})
	return nil
}

func (c *Client) placeCloseOrder(ctx context.Context, symbol string, side futures.SideType, typ futures.OrderType, stopPrice float64) error {
	_, err := c.futuresClient.NewCreateOrderService().
		Symbol(symbol).
		Side(side).
		Type(typ).
		StopPrice(formatNumber(stopPrice)).
		ClosePosition(true).
		NewClientOrderID(newClientOrderID()).
		Do(ctx)
	return err
}

// --- Translation Helpers ---

func translateCreateOrder(order *futures.CreateOrderResponse) *domain.OrderFill {
	return &domain.OrderFill{
		OrderID:       strconv.FormatInt(order.OrderID, 10),
		ClientOrderID: order.ClientOrderID,
		Symbol:        order.Symbol,
		Side:          domain.OrderSide(order.Side),
		Status:        domain.ParseOrderState(string(order.Status)),
		Price:         parseFloat(order.Price),
		AvgPrice:      parseFloat(order.AvgPrice),
		FilledQty:     parseFloat(order.ExecutedQuantity),
		Timestamp:     time.UnixMilli(order.UpdateTime).UTC(),
	}
}

func translateOrder(o *futures.Order) *domain.OrderFill {
	return &domain.OrderFill{
		OrderID:       strconv.FormatInt(o.OrderID, 10),
		ClientOrderID: o.ClientOrderID,
		Symbol:        o.Symbol,
		Side:          domain.OrderSide(o.Side),
		Status:        domain.ParseOrderState(string(o.Status)),
		Price:         parseFloat(o.Price),
		AvgPrice:      parseFloat(o.AvgPrice),
		FilledQty:     parseFloat(o.ExecutedQuantity),
		Timestamp:     time.UnixMilli(o.UpdateTime).UTC(),
	}
}

func findOrder(orders []*futures.Order, id int64) *futures.Order {
	for _, o := range orders {
		if o != nil && o.OrderID == id {
			return o
		}
	}
	return nil
}

func translateBinanceKline(bk *futures.Kline, symbol, interval string) (*domain.Kline, error) {
	if bk == nil {
		return nil, errors.New("received nil historical kline")
	}
	open, err := strconv.ParseFloat(bk.Open, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing open price '%s': %w", bk.Open, err)
	}
	high, err := strconv.ParseFloat(bk.High, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing high price '%s': %w", bk.High, err)
	}
	low, err := strconv.ParseFloat(bk.Low, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing low price '%s': %w", bk.Low, err)
	}
	cls, err := strconv.ParseFloat(bk.Close, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing close price '%s': %w", bk.Close, err)
	}
	vol, err := strconv.ParseFloat(bk.Volume, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing volume '%s': %w", bk.Volume, err)
	}

	return &domain.Kline{
		OpenTime: time.UnixMilli(bk.OpenTime).UTC(),
		Symbol:   symbol,
		Interval: interval,
		Open:     open,
		High:     high,
		Low:      low,
		Close:    cls,
		Volume:   vol,
	}, nil
}

func parseOrderID(orderID string) (int64, error) {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: order id %q is not numeric", ports.ErrInvalidRequest, orderID)
	}
	return id, nil
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
