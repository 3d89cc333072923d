package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdd_Validates(t *testing.T) {
	s := NewScheduler()
	noop := func(context.Context) error { return nil }

	assert.Error(t, s.Add(Job{Name: "bad", Expr: "not cron", Run: noop}))
	assert.Error(t, s.Add(Job{Name: "", Expr: "* * * * *", Run: noop}))
	require.NoError(t, s.Add(Job{Name: "sweep", Expr: "*/5 * * * *", Run: noop}))
	assert.Error(t, s.Add(Job{Name: "sweep", Expr: "* * * * *", Run: noop}), "duplicate")
}

func TestRunNow_RecordsStatus(t *testing.T) {
	s := NewScheduler()
	calls := 0
	require.NoError(t, s.Add(Job{Name: "ok", Expr: "@hourly", Run: func(context.Context) error {
		calls++
		return nil
	}}))
	require.NoError(t, s.Add(Job{Name: "fail", Expr: "@daily", Run: func(context.Context) error {
		return errors.New("boom")
	}}))

	require.NoError(t, s.RunNow(context.Background(), "ok"))
	assert.Error(t, s.RunNow(context.Background(), "fail"))
	assert.Error(t, s.RunNow(context.Background(), "missing"))

	st := s.Status()
	require.Len(t, st, 2)
	assert.Equal(t, 1, st[0].Runs)
	assert.NoError(t, st[0].LastErr)
	assert.EqualError(t, st[1].LastErr, "boom")
	assert.Equal(t, 1, calls)
}

func TestStartComputesNextRunAndStops(t *testing.T) {
	s := NewScheduler()
	base := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Hour)
	fixed := base.Add(2*time.Minute + 30*time.Second)
	s.now = func() time.Time { return fixed }
	require.NoError(t, s.Add(Job{Name: "sweep", Expr: "*/5 * * * *", Run: func(context.Context) error { return nil }}))

	s.Start(context.Background())
	require.Eventually(t, func() bool {
		return !s.Status()[0].NextRun.IsZero()
	}, time.Second, 10*time.Millisecond)
	s.Stop()
	s.Stop()

	assert.True(t, base.Add(5*time.Minute).Equal(s.Status()[0].NextRun))
}
