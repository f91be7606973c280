// File: internal/scheduler/scheduler_test.go
package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRegisterAddsOneEntryPerSpec(t *testing.T) {
	s := New(func() {}, zap.NewNop())
	require.NoError(t, s.Register([]string{"0 11 * * *", "30 14 * * 1-5"}))
	assert.Equal(t, 2, s.EntryCount())
}

func TestRegisterRejectsInvalidSpec(t *testing.T) {
	s := New(func() {}, zap.NewNop())
	err := s.Register([]string{"not a cron spec"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a cron spec")
}

func TestRegisterRejectsEmptySpecList(t *testing.T) {
	s := New(func() {}, zap.NewNop())
	require.Error(t, s.Register(nil))
}

func TestRunNowFiresJob(t *testing.T) {
	fired := 0
	s := New(func() { fired++ }, zap.NewNop())
	s.RunNow()
	s.RunNow()
	assert.Equal(t, 2, fired)
}

func TestRunNowRecoversPanic(t *testing.T) {
	s := New(func() { panic("boom") }, zap.NewNop())
	assert.NotPanics(t, s.RunNow)
}

func TestStartStop(t *testing.T) {
	s := New(func() {}, zap.NewNop())
	require.NoError(t, s.Register([]string{"0 11 * * *"}))
	s.Start()
	s.Stop()
}
