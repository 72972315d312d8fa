package gateway

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"go.uber.org/zap"

	"github.com/Varma0717/tradingbot/internal/models"
)

// Binance API error codes that mean the order itself was refused rather
// than the transport failing.
var rejectionCodes = map[int64]bool{
	-1013: true, // filter failure (price/lot size)
	-2010: true, // new order rejected (e.g. insufficient balance)
	-2011: true, // cancel rejected
}

// BinanceGateway 实现了 Gateway 接口，用于与真实的币安交易所进行交互。
type BinanceGateway struct {
	client *binance.Client
	logger *zap.SugaredLogger
}

// NewBinanceGateway creates a gateway backed by the Binance spot API.
// Testnet selection is process-wide, matching the go-binance client.
func NewBinanceGateway(creds *models.Credentials, testnet bool, logger *zap.SugaredLogger) *BinanceGateway {
	binance.UseTestnet = testnet
	return &BinanceGateway{
		client: binance.NewClient(creds.APIKey, creds.SecretKey),
		logger: logger,
	}
}

// SubmitOrder places a GTC limit order.
func (g *BinanceGateway) SubmitOrder(ctx context.Context, intent models.OrderIntent, clientOrderID string) (int64, error) {
	side := binance.SideTypeBuy
	if intent.Side == models.Sell {
		side = binance.SideTypeSell
	}

	res, err := g.client.NewCreateOrderService().
		Symbol(intent.Symbol).
		Side(side).
		Type(binance.OrderTypeLimit).
		TimeInForce(binance.TimeInForceTypeGTC).
		Quantity(formatFloat(intent.Quantity)).
		Price(formatFloat(intent.Price)).
		NewClientOrderID(clientOrderID).
		Do(ctx)
	if err != nil {
		return 0, g.wrapError("submit", err)
	}

	g.logger.Infow("order submitted",
		"symbol", intent.Symbol, "side", intent.Side,
		"price", intent.Price, "quantity", intent.Quantity,
		"exchange_id", res.OrderID, "client_id", clientOrderID)
	return res.OrderID, nil
}

// CancelOrder cancels an open order. An already-gone order (-2011) is
// treated as success.
func (g *BinanceGateway) CancelOrder(ctx context.Context, symbol string, exchangeID int64) error {
	_, err := g.client.NewCancelOrderService().
		Symbol(symbol).
		OrderID(exchangeID).
		Do(ctx)
	if err != nil {
		var apiErr *common.APIError
		if errors.As(err, &apiErr) && apiErr.Code == -2011 {
			return nil
		}
		return g.wrapError("cancel", err)
	}
	return nil
}

// PollFill queries the order status and converts a filled order into a
// fill event.
func (g *BinanceGateway) PollFill(ctx context.Context, symbol string, exchangeID int64) (*models.FillEvent, error) {
	order, err := g.client.NewGetOrderService().
		Symbol(symbol).
		OrderID(exchangeID).
		Do(ctx)
	if err != nil {
		return nil, g.wrapError("poll", err)
	}

	switch order.Status {
	case binance.OrderStatusTypeFilled:
		qty, _ := strconv.ParseFloat(order.ExecutedQuantity, 64)
		price, _ := strconv.ParseFloat(order.Price, 64)
		// Prefer the real average execution price when quantity is known.
		if quote, qerr := strconv.ParseFloat(order.CummulativeQuoteQuantity, 64); qerr == nil && qty > 0 && quote > 0 {
			price = quote / qty
		}
		return &models.FillEvent{
			OrderID:   order.ClientOrderID,
			Price:     price,
			Quantity:  qty,
			Timestamp: time.UnixMilli(order.UpdateTime),
		}, nil
	case binance.OrderStatusTypeCanceled, binance.OrderStatusTypeExpired:
		return nil, &models.RejectedError{Reason: "order " + string(order.Status) + " on exchange"}
	case binance.OrderStatusTypeRejected:
		return nil, &models.RejectedError{Reason: "order rejected on exchange"}
	default:
		// NEW or PARTIALLY_FILLED: still pending.
		return nil, nil
	}
}

// GetPrice returns the latest ticker price.
func (g *BinanceGateway) GetPrice(ctx context.Context, symbol string) (float64, error) {
	prices, err := g.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, g.wrapError("price", err)
	}
	if len(prices) == 0 {
		return 0, &models.GatewayError{Op: "price", Err: errors.New("no price returned for " + symbol)}
	}
	return parsePrice("price", prices[0].Price)
}

// parsePrice converts a ticker price string, folding malformed payloads
// into the gateway error taxonomy like every other exchange failure.
func parsePrice(op, s string) (float64, error) {
	p, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &models.GatewayError{Op: op, Err: err}
	}
	return p, nil
}

// GetSymbolInfo fetches tick size and lot size from exchange info.
func (g *BinanceGateway) GetSymbolInfo(ctx context.Context, symbol string) (*models.SymbolInfo, error) {
	info, err := g.client.NewExchangeInfoService().Symbols(symbol).Do(ctx)
	if err != nil {
		return nil, g.wrapError("exchange_info", err)
	}
	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		out := &models.SymbolInfo{Symbol: symbol}
		if pf := s.PriceFilter(); pf != nil {
			out.TickSize = pf.TickSize
		}
		if lf := s.LotSizeFilter(); lf != nil {
			out.LotSize = lf.StepSize
		}
		return out, nil
	}
	return nil, &models.GatewayError{Op: "exchange_info", Err: errors.New("symbol not found: " + symbol)}
}

// wrapError sorts exchange failures into terminal rejections and
// retryable gateway errors.
func (g *BinanceGateway) wrapError(op string, err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) && rejectionCodes[apiErr.Code] {
		return &models.RejectedError{Reason: apiErr.Message}
	}
	return &models.GatewayError{Op: op, Err: err}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
