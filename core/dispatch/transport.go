package dispatch

import (
	"context"
	"time"

	"github.com/prtline/sortation/core/model"
)

// The On* methods adapt the engine to the transport collaborator's surface.

// OnRequest answers a routing request.
func (e *Engine) OnRequest(ctx context.Context, sorterID, transactionID int, barcode string, at time.Time) (Response, error) {
	return e.HandleRequest(ctx, sorterID, transactionID, barcode, at)
}

// OnReport folds an outcome report.
func (e *Engine) OnReport(ctx context.Context, sorterID int, barcode string, flags model.ReportFlags, at time.Time) error {
	_, err := e.HandleReport(ctx, sorterID, barcode, flags, at)
	return err
}

// OnRemoval extracts a cart from circulation.
func (e *Engine) OnRemoval(ctx context.Context, barcode string, area int, at time.Time) error {
	_, err := e.HandleRemoval(ctx, barcode, area, at)
	return err
}
