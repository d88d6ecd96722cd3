package system

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingService struct {
	name     string
	log      *[]string
	startErr error
}

func (s recordingService) Name() string { return s.name }

func (s recordingService) Start(context.Context) error {
	*s.log = append(*s.log, "start "+s.name)
	return s.startErr
}

func (s recordingService) Stop(context.Context) error {
	*s.log = append(*s.log, "stop "+s.name)
	return nil
}

func TestManagerOrdersLifecycle(t *testing.T) {
	var events []string
	m := NewManager()
	require.NoError(t, m.Register(recordingService{name: "store", log: &events}))
	require.NoError(t, m.Register(recordingService{name: "jobs", log: &events}))
	require.Error(t, m.Register(recordingService{name: "jobs", log: &events}))

	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	require.Error(t, m.Register(NoopService{ServiceName: "late"}))
	require.NoError(t, m.Stop(ctx))

	assert.Equal(t, []string{"start store", "start jobs", "stop jobs", "stop store"}, events)
}

func TestManagerRollsBackOnStartFailure(t *testing.T) {
	var events []string
	m := NewManager()
	require.NoError(t, m.Register(recordingService{name: "store", log: &events}))
	require.NoError(t, m.Register(recordingService{name: "watcher", log: &events, startErr: errors.New("dial failed")}))
	require.NoError(t, m.Register(recordingService{name: "jobs", log: &events}))

	err := m.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start watcher")
	assert.Equal(t, []string{"start store", "start watcher", "stop store"}, events)
}
