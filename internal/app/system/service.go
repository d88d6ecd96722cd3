package system

import "context"

// Service is a component with a managed lifecycle. Start must return once
// the component is running; long work belongs in goroutines stopped by Stop.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// NoopService reserves a name in the manager for components without a
// background lifecycle.
type NoopService struct {
	ServiceName string
}

func (s NoopService) Name() string                { return s.ServiceName }
func (s NoopService) Start(context.Context) error { return nil }
func (s NoopService) Stop(context.Context) error  { return nil }
