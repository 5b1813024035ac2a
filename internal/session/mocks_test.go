package session

import (
	"context"

	"github.com/p-arndt/flatkap/internal/proc"
	"github.com/p-arndt/flatkap/internal/store"
	"github.com/stretchr/testify/mock"
)

type MockProcess struct {
	mock.Mock
}

func (m *MockProcess) Pid() int {
	args := m.Called()
	return args.Int(0)
}

func (m *MockProcess) Wait() error {
	args := m.Called()
	return args.Error(0)
}

type MockLauncher struct {
	mock.Mock
}

func (m *MockLauncher) Launch(argv []string) (proc.Process, error) {
	args := m.Called(argv)
	if p := args.Get(0); p != nil {
		return p.(proc.Process), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockLocator struct {
	mock.Mock
}

func (m *MockLocator) Locate(launcherPID string) (int, error) {
	args := m.Called(launcherPID)
	return args.Int(0), args.Error(1)
}

type MockWaiter struct {
	mock.Mock
}

func (m *MockWaiter) WaitExit(ctx context.Context, pid int) error {
	args := m.Called(ctx, pid)
	return args.Error(0)
}

type MockReaper struct {
	mock.Mock
}

func (m *MockReaper) Reap(ctx context.Context, names []string) int {
	args := m.Called(ctx, names)
	return args.Int(0)
}

type MockHistoryStore struct {
	mock.Mock
}

func (m *MockHistoryStore) CreateSession(sess *store.Session) error {
	args := m.Called(sess)
	return args.Error(0)
}

func (m *MockHistoryStore) FinishSession(id string, out store.Outcome) error {
	args := m.Called(id, out)
	return args.Error(0)
}
