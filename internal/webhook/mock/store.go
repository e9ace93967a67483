package mock

import (
	context "context"
	reflect "reflect"
	time "time"

	agents "github.com/talgya/tycoon/internal/agents"
	persistence "github.com/talgya/tycoon/internal/persistence"
	gomock "go.uber.org/mock/gomock"
)

// MockStore is a mock of Store interface.
type MockStore struct {
	ctrl     *gomock.Controller
	recorder *MockStoreMockRecorder
	isgomock struct{}
}

// MockStoreMockRecorder is the mock recorder for MockStore.
type MockStoreMockRecorder struct {
	mock *MockStore
}

// NewMockStore creates a new mock instance.
func NewMockStore(ctrl *gomock.Controller) *MockStore {
	mock := &MockStore{ctrl: ctrl}
	mock.recorder = &MockStoreMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockStore) EXPECT() *MockStoreMockRecorder {
	return m.recorder
}

// GetAgent mocks base method.
func (m *MockStore) GetAgent(ctx context.Context, id string) (*agents.Agent, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "GetAgent", ctx, id)
	ret0, _ := ret[0].(*agents.Agent)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// GetAgent indicates an expected call of GetAgent.
func (mr *MockStoreMockRecorder) GetAgent(ctx, id any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "GetAgent", reflect.TypeOf((*MockStore)(nil).GetAgent), ctx, id)
}

// MarkDelivered mocks base method.
func (m *MockStore) MarkDelivered(ctx context.Context, ids []int64, at time.Time) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "MarkDelivered", ctx, ids, at)
	ret0, _ := ret[0].(error)
	return ret0
}

// MarkDelivered indicates an expected call of MarkDelivered.
func (mr *MockStoreMockRecorder) MarkDelivered(ctx, ids, at any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "MarkDelivered", reflect.TypeOf((*MockStore)(nil).MarkDelivered), ctx, ids, at)
}

// MarkFailed mocks base method.
func (m *MockStore) MarkFailed(ctx context.Context, ids []int64, cause string, permanent bool, maxAttempts int, retryAt time.Time) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "MarkFailed", ctx, ids, cause, permanent, maxAttempts, retryAt)
	ret0, _ := ret[0].(error)
	return ret0
}

// MarkFailed indicates an expected call of MarkFailed.
func (mr *MockStoreMockRecorder) MarkFailed(ctx, ids, cause, permanent, maxAttempts, retryAt any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "MarkFailed", reflect.TypeOf((*MockStore)(nil).MarkFailed), ctx, ids, cause, permanent, maxAttempts, retryAt)
}

// PendingEvents mocks base method.
func (m *MockStore) PendingEvents(ctx context.Context, limit int, now time.Time) ([]persistence.Event, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "PendingEvents", ctx, limit, now)
	ret0, _ := ret[0].([]persistence.Event)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// PendingEvents indicates an expected call of PendingEvents.
func (mr *MockStoreMockRecorder) PendingEvents(ctx, limit, now any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "PendingEvents", reflect.TypeOf((*MockStore)(nil).PendingEvents), ctx, limit, now)
}
