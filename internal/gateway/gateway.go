package gateway

import (
	"context"

	"github.com/Varma0717/tradingbot/internal/models"
)

// Gateway 定义了所有交易所实现必须提供的通用方法。
// The engine only talks to the exchange through this interface, which
// keeps live trading and tests (mock gateways) interchangeable.
type Gateway interface {
	// SubmitOrder places a limit order and returns the exchange-assigned id.
	// Transient failures come back as *models.GatewayError, exchange-side
	// rejections as *models.RejectedError.
	SubmitOrder(ctx context.Context, intent models.OrderIntent, clientOrderID string) (int64, error)

	// CancelOrder cancels an open order. Cancelling an order that is
	// already gone is not an error.
	CancelOrder(ctx context.Context, symbol string, exchangeID int64) error

	// PollFill reports an execution for the order, or (nil, nil) while it
	// is still pending. A cancelled or rejected order returns a
	// *models.RejectedError.
	PollFill(ctx context.Context, symbol string, exchangeID int64) (*models.FillEvent, error)

	// GetPrice returns the latest traded price for the symbol.
	GetPrice(ctx context.Context, symbol string) (float64, error)

	// GetSymbolInfo fetches the symbol's trading rules.
	GetSymbolInfo(ctx context.Context, symbol string) (*models.SymbolInfo, error)
}
