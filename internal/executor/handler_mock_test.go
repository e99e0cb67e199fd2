package executor_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/quire/internal/executor"
	"github.com/aretw0/quire/pkg/catalog"
	"github.com/aretw0/quire/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockHandler struct {
	mock.Mock
}

func (m *MockHandler) Invoke(ctx context.Context, inv domain.Invocation) (domain.Outcome, error) {
	args := m.Called(ctx, inv)
	return args.Get(0).(domain.Outcome), args.Error(1)
}

func attemptOf(n int) interface{} {
	return mock.MatchedBy(func(inv domain.Invocation) bool { return inv.Attempt == n })
}

func TestExecuteSingle_MockHandler(t *testing.T) {
	tests := []struct {
		name         string
		setup        func(m *MockHandler)
		wantStatus   domain.Status
		wantAttempts int
		wantOutline  bool
	}{
		{
			name: "Succeeds First Attempt",
			setup: func(m *MockHandler) {
				m.On("Invoke", mock.Anything, attemptOf(1)).Return(domain.Outcome{Output: "outline"}, nil).Once()
			},
			wantStatus:   domain.StatusSucceeded,
			wantAttempts: 1,
			wantOutline:  true,
		},
		{
			name: "Transient Then Success",
			setup: func(m *MockHandler) {
				m.On("Invoke", mock.Anything, attemptOf(1)).Return(domain.Outcome{}, domain.Transient(errors.New("rate limited"))).Once()
				m.On("Invoke", mock.Anything, attemptOf(2)).Return(domain.Outcome{Output: "outline"}, nil).Once()
			},
			wantStatus:   domain.StatusSucceeded,
			wantAttempts: 2,
			wantOutline:  true,
		},
		{
			name: "Terminal Is Not Retried",
			setup: func(m *MockHandler) {
				m.On("Invoke", mock.Anything, attemptOf(1)).Return(domain.Outcome{}, errors.New("bad prompt")).Once()
			},
			wantStatus:   domain.StatusFailed,
			wantAttempts: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := catalog.Default()
			m := new(MockHandler)
			tt.setup(m)

			h := catalog.NewHandlers()
			h.Register("create_outline", m)
			ex := executor.New(c, h, executor.WithRetryPolicy(fastRetry(2)))

			res, state := ex.ExecuteSingle(context.Background(), c.MustGet("create_outline"), domain.WorldState{})
			require.Equal(t, tt.wantStatus, res.Status)
			assert.Equal(t, tt.wantAttempts, res.Attempts)
			assert.Equal(t, tt.wantOutline, state.Bool(domain.HasOutline))
			m.AssertExpectations(t)
		})
	}
}
