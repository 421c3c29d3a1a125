package alert

import (
	"fmt"

	"github.com/georgemunganga/stockwatch/internal/modules/changefeed"
	"github.com/georgemunganga/stockwatch/internal/modules/product"
)

// Crossed reports whether stock moved down to or below the threshold.
// Restocks that stay at or below the threshold and unchanged stock do not count.
func Crossed(stockBefore, stockAfter, threshold int64) bool {
	return stockAfter <= threshold && stockAfter < stockBefore
}

// Detect returns the alert a change raises, or nil. Only modifications can
// raise alerts; the threshold is read from the after image.
func Detect(c changefeed.Change) (*Alert, error) {
	if c.Kind != changefeed.KindModify || c.Before == nil || c.After == nil {
		return nil, nil
	}
	before, err := product.FromImage(c.Before)
	if err != nil {
		return nil, fmt.Errorf("change %d/%d before image: %w", c.Shard, c.Seq, err)
	}
	after, err := product.FromImage(c.After)
	if err != nil {
		return nil, fmt.Errorf("change %d/%d after image: %w", c.Shard, c.Seq, err)
	}
	if !Crossed(before.Stock, after.Stock, after.Threshold) {
		return nil, nil
	}
	return &Alert{
		TenantID:         after.TenantID,
		ProductID:        after.ProductID,
		ProductName:      after.DisplayName(),
		StockBefore:      before.Stock,
		StockAtAlert:     after.Stock,
		ThresholdAtAlert: after.Threshold,
		Seq:              c.Seq,
		RaisedAt:         c.At,
		Message:          alertText(after.DisplayName(), after.Stock, after.Threshold),
	}, nil
}
