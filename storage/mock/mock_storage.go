// Package mock provides mock implementations of storage interfaces for testing.
//
// Each mock keeps working in-memory defaults behind exported function fields,
// so a test overrides only the method it wants to fail or observe.
package mock

import (
	"context"
	"sync"

	"github.com/midodimori/mcp-test-kits/storage"
)

// callCounter counts calls per method name.
type callCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *callCounter) inc(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = make(map[string]int)
	}
	c.counts[name]++
}

// CallCount returns how often the named method was called.
func (c *callCounter) CallCount(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[name]
}

// ResetCallCounts resets all call counters
func (c *callCounter) ResetCallCounts() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts = nil
}

// ============================================================
// CodeStore
// ============================================================

// MockCodeStore is a mock implementation of CodeStore for testing.
// Its defaults ignore expiry.
type MockCodeStore struct {
	callCounter

	mu    sync.Mutex
	codes map[string]*storage.AuthorizationCode

	SaveAuthorizationCodeFunc   func(ctx context.Context, code *storage.AuthorizationCode) error
	GetAuthorizationCodeFunc    func(ctx context.Context, code string) (*storage.AuthorizationCode, error)
	DeleteAuthorizationCodeFunc func(ctx context.Context, code string) error
}

var _ storage.CodeStore = (*MockCodeStore)(nil)

// NewMockCodeStore creates a new mock code store
func NewMockCodeStore() *MockCodeStore {
	m := &MockCodeStore{codes: make(map[string]*storage.AuthorizationCode)}

	m.SaveAuthorizationCodeFunc = func(_ context.Context, code *storage.AuthorizationCode) error {
		if err := storage.ValidateAuthorizationCode(code); err != nil {
			return err
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		stored := *code
		m.codes[code.Code] = &stored
		return nil
	}

	m.GetAuthorizationCodeFunc = func(_ context.Context, code string) (*storage.AuthorizationCode, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		stored, ok := m.codes[code]
		if !ok {
			return nil, storage.ErrAuthorizationCodeNotFound
		}
		out := *stored
		return &out, nil
	}

	m.DeleteAuthorizationCodeFunc = func(_ context.Context, code string) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.codes[code]; !ok {
			return storage.ErrAuthorizationCodeNotFound
		}
		delete(m.codes, code)
		return nil
	}

	return m
}

// SaveAuthorizationCode calls SaveAuthorizationCodeFunc.
func (m *MockCodeStore) SaveAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) error {
	m.inc("SaveAuthorizationCode")
	return m.SaveAuthorizationCodeFunc(ctx, code)
}

// GetAuthorizationCode calls GetAuthorizationCodeFunc.
func (m *MockCodeStore) GetAuthorizationCode(ctx context.Context, code string) (*storage.AuthorizationCode, error) {
	m.inc("GetAuthorizationCode")
	return m.GetAuthorizationCodeFunc(ctx, code)
}

// DeleteAuthorizationCode calls DeleteAuthorizationCodeFunc.
func (m *MockCodeStore) DeleteAuthorizationCode(ctx context.Context, code string) error {
	m.inc("DeleteAuthorizationCode")
	return m.DeleteAuthorizationCodeFunc(ctx, code)
}

// ============================================================
// TokenStore
// ============================================================

// MockTokenStore is a mock implementation of TokenStore for testing
type MockTokenStore struct {
	callCounter

	mu      sync.Mutex
	records map[string]*storage.TokenRecord
	revoked map[string]bool

	SaveTokenRecordFunc func(ctx context.Context, record *storage.TokenRecord) error
	IsRevokedFunc       func(ctx context.Context, jti string) (bool, error)
	RevokeTokenFunc     func(ctx context.Context, jti string) error
}

var _ storage.TokenStore = (*MockTokenStore)(nil)

// NewMockTokenStore creates a new mock token store
func NewMockTokenStore() *MockTokenStore {
	m := &MockTokenStore{
		records: make(map[string]*storage.TokenRecord),
		revoked: make(map[string]bool),
	}

	m.SaveTokenRecordFunc = func(_ context.Context, record *storage.TokenRecord) error {
		if err := storage.ValidateTokenRecord(record); err != nil {
			return err
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		m.records[record.JTI] = record.Clone()
		return nil
	}

	m.IsRevokedFunc = func(_ context.Context, jti string) (bool, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.revoked[jti], nil
	}

	m.RevokeTokenFunc = func(_ context.Context, jti string) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.revoked[jti] = true
		return nil
	}

	return m
}

// Record returns a saved token record, or nil.
func (m *MockTokenStore) Record(jti string) *storage.TokenRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[jti].Clone()
}

// SaveTokenRecord calls SaveTokenRecordFunc.
func (m *MockTokenStore) SaveTokenRecord(ctx context.Context, record *storage.TokenRecord) error {
	m.inc("SaveTokenRecord")
	return m.SaveTokenRecordFunc(ctx, record)
}

// IsRevoked calls IsRevokedFunc.
func (m *MockTokenStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	m.inc("IsRevoked")
	return m.IsRevokedFunc(ctx, jti)
}

// RevokeToken calls RevokeTokenFunc.
func (m *MockTokenStore) RevokeToken(ctx context.Context, jti string) error {
	m.inc("RevokeToken")
	return m.RevokeTokenFunc(ctx, jti)
}

// ============================================================
// ClientStore
// ============================================================

// MockClientStore is a mock implementation of ClientStore for testing
type MockClientStore struct {
	callCounter

	mu      sync.Mutex
	clients map[string]*storage.Client

	SaveClientFunc func(ctx context.Context, client *storage.Client) error
	GetClientFunc  func(ctx context.Context, clientID string) (*storage.Client, error)
}

var _ storage.ClientStore = (*MockClientStore)(nil)

// NewMockClientStore creates a new mock client store
func NewMockClientStore() *MockClientStore {
	m := &MockClientStore{clients: make(map[string]*storage.Client)}

	m.SaveClientFunc = func(_ context.Context, client *storage.Client) error {
		if err := storage.ValidateClient(client); err != nil {
			return err
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		m.clients[client.ClientID] = client.Clone()
		return nil
	}

	m.GetClientFunc = func(_ context.Context, clientID string) (*storage.Client, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		client, ok := m.clients[clientID]
		if !ok {
			return nil, storage.ErrClientNotFound
		}
		return client.Clone(), nil
	}

	return m
}

// SaveClient calls SaveClientFunc.
func (m *MockClientStore) SaveClient(ctx context.Context, client *storage.Client) error {
	m.inc("SaveClient")
	return m.SaveClientFunc(ctx, client)
}

// GetClient calls GetClientFunc.
func (m *MockClientStore) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	m.inc("GetClient")
	return m.GetClientFunc(ctx, clientID)
}
