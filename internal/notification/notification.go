// Package notification turns order events into customer notifications.
package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/nazeru/storefront-go/internal/storage/postgres"
	"github.com/nazeru/storefront-go/pkg/contracts"
)

type Notification struct {
	EventID     string
	OrderNumber string
	Recipient   string
	Subject     string
	Body        string
}

// Compose renders the notification for an event. ok is false for events
// that do not notify the customer.
func Compose(evt contracts.Event) (n Notification, ok bool) {
	p := evt.Payload
	if p.CustomerEmail == "" {
		return Notification{}, false
	}
	n = Notification{EventID: evt.EventID, OrderNumber: evt.OrderNumber, Recipient: p.CustomerEmail}

	switch evt.Type {
	case contracts.EventOrderPlaced:
		n.Subject = fmt.Sprintf("Order %s received", evt.OrderNumber)
		n.Body = fmt.Sprintf("Thank you for your order. Total: $%s.", p.Total)
	case contracts.EventOrderCancelled:
		n.Subject = fmt.Sprintf("Order %s cancelled", evt.OrderNumber)
		n.Body = "Your order has been cancelled."
		if p.Note != "" {
			n.Body += " Reason: " + p.Note + "."
		}
	case contracts.EventOrderStatusChanged:
		n.Subject = fmt.Sprintf("Order %s is %s", evt.OrderNumber, p.Status)
		var b strings.Builder
		fmt.Fprintf(&b, "Your order status changed from %s to %s.", p.PreviousStatus, p.Status)
		if p.TrackingNumber != "" {
			fmt.Fprintf(&b, " Tracking number: %s", p.TrackingNumber)
			if p.Carrier != "" {
				fmt.Fprintf(&b, " (%s)", p.Carrier)
			}
			b.WriteString(".")
		}
		n.Body = b.String()
	default:
		return Notification{}, false
	}
	return n, true
}

// Recorder stores notifications, processing each event id at most once.
type Recorder struct {
	db postgres.TxStarter
}

func NewRecorder(db postgres.TxStarter) *Recorder {
	return &Recorder{db: db}
}

// Record reports false when the event was already processed.
func (r *Recorder) Record(ctx context.Context, evt contracts.Event) (bool, error) {
	fresh := false
	err := postgres.InTx(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`INSERT INTO processed_events(event_id) VALUES ($1) ON CONFLICT (event_id) DO NOTHING`, evt.EventID)
		if err != nil {
			return fmt.Errorf("mark event processed: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}

		if n, ok := Compose(evt); ok {
			_, err = tx.Exec(ctx,
				`INSERT INTO notifications(event_id, order_number, recipient, subject, body) VALUES ($1, $2, $3, $4, $5)`,
				n.EventID, n.OrderNumber, n.Recipient, n.Subject, n.Body)
			if err != nil {
				return fmt.Errorf("insert notification: %w", err)
			}
		}
		fresh = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return fresh, nil
}
