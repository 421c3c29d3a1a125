// Package alert turns product changes into low-stock notifications.
package alert

import (
	"fmt"
	"strconv"
	"time"

	"github.com/georgemunganga/stockwatch/internal/modules/notification"
)

// Alert is a detected downward crossing of a product's stock threshold.
type Alert struct {
	TenantID         string    `json:"tenantId"`
	ProductID        string    `json:"productId"`
	ProductName      string    `json:"productName"`
	StockBefore      int64     `json:"stockBefore"`
	StockAtAlert     int64     `json:"stockAtAlert"`
	ThresholdAtAlert int64     `json:"thresholdAtAlert"`
	Seq              uint64    `json:"seq"`
	RaisedAt         time.Time `json:"raisedAt"`
	Message          string    `json:"message"`
}

func alertText(name string, stock, threshold int64) string {
	return fmt.Sprintf("Low stock alert for %s: current stock %d (threshold %d).", name, stock, threshold)
}

// Notification builds the message published for a.
func (a Alert) Notification(subject string) notification.Message {
	return notification.Message{
		Subject: subject,
		Text:    a.Message,
		Attributes: map[string]string{
			notification.AttrTenant:    a.TenantID,
			notification.AttrProduct:   a.ProductID,
			notification.AttrStock:     strconv.FormatInt(a.StockAtAlert, 10),
			notification.AttrThreshold: strconv.FormatInt(a.ThresholdAtAlert, 10),
			notification.AttrRaisedAt:  a.RaisedAt.UTC().Format(time.RFC3339Nano),
		},
	}
}

func (a Alert) dedupKey() string {
	return fmt.Sprintf("%s|%s|%d|%d|%d", a.TenantID, a.ProductID, a.StockAtAlert, a.ThresholdAtAlert, a.Seq)
}
