package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/medbridge/satusehat-bridge/internal/domain"
)

// MockOrderRepository is a hand-written, in-memory implementation of
// OrderRepository used in unit tests. No mock-generation library needed.
type MockOrderRepository struct {
	mu      sync.RWMutex
	orders  map[string]domain.LabOrder
	logs    map[string]domain.BridgeLog
	details map[string][]domain.BridgeLogItem

	// Optional error overrides — set in tests to simulate failure paths.
	ListPendingErr   error
	FindPendingErr   error
	RecordBridgedErr error
}

func NewMockOrderRepository() *MockOrderRepository {
	return &MockOrderRepository{
		orders:  make(map[string]domain.LabOrder),
		logs:    make(map[string]domain.BridgeLog),
		details: make(map[string][]domain.BridgeLogItem),
	}
}

// AddOrder seeds one lab order.
func (m *MockOrderRepository) AddOrder(o domain.LabOrder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.OrderNo] = o
}

func (m *MockOrderRepository) ListPending(_ context.Context, since time.Time, limit int) ([]domain.LabOrder, error) {
	if m.ListPendingErr != nil {
		return nil, m.ListPendingErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []domain.LabOrder
	for no, o := range m.orders {
		if _, bridged := m.logs[no]; bridged {
			continue
		}
		if o.TransactionTime.Before(since) {
			continue
		}
		result = append(result, o)
		if len(result) == limit {
			break
		}
	}
	return result, nil
}

func (m *MockOrderRepository) FindPending(_ context.Context, orderNo string) (*domain.LabOrder, error) {
	if m.FindPendingErr != nil {
		return nil, m.FindPendingErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.orders[orderNo]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	if _, bridged := m.logs[orderNo]; bridged {
		return nil, domain.ErrOrderNotFound
	}
	clone := o
	return &clone, nil
}

func (m *MockOrderRepository) RecordBridged(_ context.Context, t domain.BridgeTransaction, serviceRequestID string) error {
	if m.RecordBridgedErr != nil {
		return m.RecordBridgedErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.logs[t.Order.OrderNo]; exists {
		return fmt.Errorf("%w: duplicate bridging log for %s", domain.ErrStore, t.Order.OrderNo)
	}

	now := time.Now().UTC()
	m.logs[t.Order.OrderNo] = domain.BridgeLog{
		OrderNo:          t.Order.OrderNo,
		ServiceRequestID: serviceRequestID,
		RegistrationNo:   t.Order.RegistrationNo,
		RecordNo:         t.Order.RecordNo,
		EncounterID:      t.Order.EncounterID,
		AuthoredOn:       t.Order.TransactionTime,
		CreatedAt:        now,
	}
	for _, item := range t.Items {
		m.details[t.Order.OrderNo] = append(m.details[t.Order.OrderNo], domain.BridgeLogItem{
			OrderNo:          t.Order.OrderNo,
			ServiceRequestID: serviceRequestID,
			LoincCode:        item.Coding.Code,
			LoincDisplay:     item.Coding.Display,
		})
	}
	return nil
}

// Log returns the marker written for orderNo, if any.
func (m *MockOrderRepository) Log(orderNo string) (domain.BridgeLog, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.logs[orderNo]
	return l, ok
}

// LogItems returns the detail rows written for orderNo.
func (m *MockOrderRepository) LogItems(orderNo string) []domain.BridgeLogItem {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.BridgeLogItem(nil), m.details[orderNo]...)
}
