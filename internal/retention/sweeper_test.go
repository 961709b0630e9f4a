package retention

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockPurger struct {
	mock.Mock
}

func (m *MockPurger) PurgeExpired(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func TestNewSweeperRejectsBadCron(t *testing.T) {
	_, err := NewSweeper(&MockPurger{}, "every ten minutes")
	assert.Error(t, err)
}

func TestNextWait(t *testing.T) {
	s, err := NewSweeper(&MockPurger{}, "*/10 * * * *")
	require.NoError(t, err)

	now := time.Date(2024, 5, 1, 12, 3, 30, 0, time.UTC)
	wait, err := s.nextWait(now)
	require.NoError(t, err)
	assert.Equal(t, 6*time.Minute+30*time.Second, wait)
}

func TestRunOnce(t *testing.T) {
	purger := &MockPurger{}
	purger.On("PurgeExpired", mock.Anything).Return(int64(3), nil).Once()
	purger.On("PurgeExpired", mock.Anything).Return(int64(0), errors.New("db down")).Once()

	s, err := NewSweeper(purger, "0 * * * *")
	require.NoError(t, err)

	n, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	_, err = s.RunOnce(context.Background())
	assert.ErrorContains(t, err, "db down")
	purger.AssertExpectations(t)
}

func TestStartStopsWithContext(t *testing.T) {
	purger := &MockPurger{}
	s, err := NewSweeper(purger, "0 0 * * *")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	cancel()

	time.Sleep(20 * time.Millisecond)
	purger.AssertNotCalled(t, "PurgeExpired", mock.Anything)
}
