package reaper

import (
	"github.com/stretchr/testify/mock"
	"golang.org/x/sys/unix"
)

// MockProcessTable mocks the ProcessTable interface.
type MockProcessTable struct {
	mock.Mock
}

func (m *MockProcessTable) FindByName(name string) ([]int, error) {
	args := m.Called(name)
	if pids := args.Get(0); pids != nil {
		return pids.([]int), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockProcessTable) Signal(pid int, sig unix.Signal) error {
	args := m.Called(pid, sig)
	return args.Error(0)
}
