package webhooks

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	DeliveryStatusPending   = "pending"
	DeliveryStatusProcessed = "processed"
)

// DeliveryRecord tracks one webhook delivery through intake. The
// delivery id is the platform's envelope id; claiming it twice marks
// the second delivery a duplicate.
type DeliveryRecord struct {
	ID         string
	DeliveryID string
	Status     string
	Payload    []byte
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DeliveryLedger is the dedupe surface. Claim inserts the delivery id
// and reports whether it was already present. Release drops a pending
// claim so the platform's redelivery gets another run; it is
// idempotent and never touches a processed record.
type DeliveryLedger interface {
	Claim(ctx context.Context, deliveryID string, payload []byte) (DeliveryRecord, bool, error)
	Get(ctx context.Context, deliveryID string) (DeliveryRecord, error)
	MarkProcessed(ctx context.Context, deliveryID string) error
	Release(ctx context.Context, deliveryID string) error
}

// MemoryLedger keeps claims in process memory. Good for tests and
// single-instance deployments; the sql store backs everything else.
type MemoryLedger struct {
	mu      sync.Mutex
	records map[string]DeliveryRecord
	nextID  int

	Now func() time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		records: map[string]DeliveryRecord{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (l *MemoryLedger) Claim(_ context.Context, deliveryID string, payload []byte) (DeliveryRecord, bool, error) {
	deliveryID = strings.TrimSpace(deliveryID)
	if deliveryID == "" {
		return DeliveryRecord{}, false, deliveryIDRequiredError()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.records[deliveryID]; ok {
		return existing, true, nil
	}

	l.nextID++
	now := l.Now()
	record := DeliveryRecord{
		ID:         deliveryID + "#" + strconv.Itoa(l.nextID),
		DeliveryID: deliveryID,
		Status:     DeliveryStatusPending,
		Payload:    append([]byte(nil), payload...),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	l.records[deliveryID] = record
	return record, false, nil
}

func (l *MemoryLedger) Get(_ context.Context, deliveryID string) (DeliveryRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok := l.records[strings.TrimSpace(deliveryID)]
	if !ok {
		return DeliveryRecord{}, deliveryNotFoundError(deliveryID)
	}
	return record, nil
}

func (l *MemoryLedger) MarkProcessed(_ context.Context, deliveryID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok := l.records[strings.TrimSpace(deliveryID)]
	if !ok {
		return deliveryNotFoundError(deliveryID)
	}
	record.Status = DeliveryStatusProcessed
	record.UpdatedAt = l.Now()
	l.records[strings.TrimSpace(deliveryID)] = record
	return nil
}

func (l *MemoryLedger) Release(_ context.Context, deliveryID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := strings.TrimSpace(deliveryID)
	record, ok := l.records[key]
	if !ok || record.Status != DeliveryStatusPending {
		return nil
	}
	delete(l.records, key)
	return nil
}

var _ DeliveryLedger = (*MemoryLedger)(nil)
