package iotimeout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_ReturnsValue(t *testing.T) {
	v, err := Do(context.Background(), time.Second, func() (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestDo_NoTimeoutRunsInline(t *testing.T) {
	wantErr := errors.New("boom")
	_, err := Do(context.Background(), 0, func() (string, error) {
		return "", wantErr
	})
	assert.ErrorIs(t, err, wantErr)
}

func TestDo_TimesOut(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	_, err := Do(context.Background(), 20*time.Millisecond, func() (int, error) {
		<-release
		return 1, nil
	})
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestDo_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	_, err := Do(ctx, time.Second, func() (int, error) {
		called = true
		return 1, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestDoLimited_NilLimiter(t *testing.T) {
	v, err := DoLimited(context.Background(), nil, 0, func() (int, error) {
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestDoLimited_AbandonedCallKeepsSlot(t *testing.T) {
	l := NewLimiter(1)
	stalled := make(chan struct{})

	_, err := DoLimited(context.Background(), l, 20*time.Millisecond, func() (int, error) {
		<-stalled
		return 1, nil
	})
	require.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 1, l.InFlight(), "the stalled call still holds its slot")

	called := false
	_, err = DoLimited(context.Background(), l, 20*time.Millisecond, func() (int, error) {
		called = true
		return 2, nil
	})
	require.ErrorIs(t, err, ErrTimeout)
	assert.ErrorContains(t, err, "waiting for a free slot")
	assert.False(t, called)

	close(stalled)
	require.Eventually(t, func() bool { return l.InFlight() == 0 }, time.Second, 5*time.Millisecond)

	v, err := DoLimited(context.Background(), l, time.Second, func() (int, error) {
		return 3, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, v)
	assert.Zero(t, l.InFlight())
}

func TestDoLimited_ContextCanceledWhileWaiting(t *testing.T) {
	l := NewLimiter(1)
	stalled := make(chan struct{})
	defer close(stalled)

	go func() {
		_, _ = DoLimited(context.Background(), l, 0, func() (int, error) {
			<-stalled
			return 0, nil
		})
	}()
	require.Eventually(t, func() bool { return l.InFlight() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := DoLimited(ctx, l, 0, func() (int, error) {
		return 1, nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewLimiter_AtLeastOneSlot(t *testing.T) {
	l := NewLimiter(0)
	v, err := DoLimited(context.Background(), l, time.Second, func() (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}
