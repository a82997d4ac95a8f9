package contracts

import (
	"encoding/json"
	"errors"
	"time"
)

// Event is the envelope every order event is published in. Consumers
// deduplicate on EventID.
type Event struct {
	EventID     string       `json:"event_id"`
	Type        string       `json:"type"`
	OrderID     string       `json:"order_id"`
	OrderNumber string       `json:"order_number"`
	CreatedAt   time.Time    `json:"created_at"`
	Payload     OrderPayload `json:"payload"`
}

type OrderPayload struct {
	CustomerID     string `json:"customer_id"`
	CustomerEmail  string `json:"customer_email"`
	Status         string `json:"status"`
	PreviousStatus string `json:"previous_status,omitempty"`
	Total          string `json:"total"`
	Note           string `json:"note,omitempty"`
	TrackingNumber string `json:"tracking_number,omitempty"`
	Carrier        string `json:"carrier,omitempty"`
}

const (
	EventOrderPlaced        = "order.placed"
	EventOrderStatusChanged = "order.status_changed"
	EventOrderCancelled     = "order.cancelled"
)

var ErrMalformedEvent = errors.New("malformed event")

// Key partitions events by order so one order's events stay ordered.
func (e Event) Key() string {
	return e.OrderNumber
}

func Decode(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, errors.Join(ErrMalformedEvent, err)
	}
	if e.EventID == "" || e.Type == "" {
		return Event{}, ErrMalformedEvent
	}
	return e, nil
}
