package outbox

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type memStore struct {
	recs []Record
	sent []int64
}

func (s *memStore) Pending(_ context.Context, limit int) ([]Record, error) {
	var out []Record
	for _, r := range s.recs {
		if r.SentAt == nil && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) MarkSent(_ context.Context, id int64) error {
	s.sent = append(s.sent, id)
	return nil
}

type fakePublisher struct {
	msgs   []kafka.Message
	failAt int
}

func (p *fakePublisher) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if p.failAt > 0 && len(p.msgs)+1 == p.failAt {
		return errors.New("broker unavailable")
	}
	p.msgs = append(p.msgs, msgs...)
	return nil
}

func records() []Record {
	return []Record{
		{ID: 1, EventID: "e1", Topic: "storefront.orders", Key: "ORD-20261017-0001", Payload: []byte(`{"type":"order.placed"}`)},
		{ID: 2, EventID: "e2", Topic: "storefront.orders", Key: "ORD-20261017-0001", Payload: []byte(`{"type":"order.cancelled"}`)},
		{ID: 3, EventID: "e3", Topic: "storefront.orders", Key: "ORD-20261017-0002", Payload: []byte(`{"type":"order.placed"}`)},
	}
}

func TestRelayFlushPublishesInOrder(t *testing.T) {
	store := &memStore{recs: records()}
	pub := &fakePublisher{}
	r := NewRelay(store, pub, zap.NewNop(), 0)

	n, err := r.Flush(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3 || len(pub.msgs) != 3 {
		t.Fatalf("expected 3 published, got %d/%d", n, len(pub.msgs))
	}
	if string(pub.msgs[1].Key) != "ORD-20261017-0001" || string(pub.msgs[1].Value) != `{"type":"order.cancelled"}` {
		t.Errorf("unexpected second message %+v", pub.msgs[1])
	}
	if len(store.sent) != 3 || store.sent[0] != 1 || store.sent[2] != 3 {
		t.Errorf("unexpected sent ids %v", store.sent)
	}
}

func TestRelayFlushStopsAtFirstFailure(t *testing.T) {
	store := &memStore{recs: records()}
	pub := &fakePublisher{failAt: 2}
	r := NewRelay(store, pub, zap.NewNop(), 0)

	n, err := r.Flush(context.Background())
	if err == nil {
		t.Fatal("expected publish error")
	}
	if n != 1 || len(store.sent) != 1 || store.sent[0] != 1 {
		t.Errorf("expected only the first record marked sent, got n=%d sent=%v", n, store.sent)
	}
}
