package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/agency_layer/internal/config"
	"github.com/R3E-Network/agency_layer/pkg/logger"
	sbclient "github.com/R3E-Network/agency_layer/supabase/client"
)

func memoryConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Auth.JWTSecret = "secret"
	cfg.Server.CORSOrigins = "https://app.studio.test, https://*.studio.test"
	cfg.Jobs.Disabled = true
	cfg.ApplyDefaults()
	return cfg
}

func TestBuildMemoryBackend(t *testing.T) {
	cfg := memoryConfig()
	require.NoError(t, cfg.Validate())

	rt, err := Build(context.Background(), cfg, Options{}, logger.NewNop())
	require.NoError(t, err)
	defer rt.Close()

	assert.Nil(t, rt.Supabase)
	assert.Nil(t, rt.App.Jobs)

	opts := rt.HTTPOptions()
	assert.Equal(t, "secret", opts.Auth.Secret)
	assert.Equal(t, []string{"https://app.studio.test", "https://*.studio.test"}, opts.CORSOrigins)
	assert.Nil(t, opts.Identity)
	assert.NotNil(t, opts.Status)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, rt.App.Start(ctx))
	require.NoError(t, rt.App.Stop(ctx))
}

func TestBuildSchedulesJobsWhenEnabled(t *testing.T) {
	cfg := memoryConfig()
	cfg.Jobs.Disabled = false

	rt, err := Build(context.Background(), cfg, Options{}, logger.NewNop())
	require.NoError(t, err)
	defer rt.Close()
	assert.NotNil(t, rt.App.Jobs)

	rt, err = Build(context.Background(), cfg, Options{WithoutJobs: true}, logger.NewNop())
	require.NoError(t, err)
	assert.Nil(t, rt.App.Jobs)
}

func TestSupabaseConfigCarriesResilienceSettings(t *testing.T) {
	sc := config.SupabaseConfig{
		URL:              "https://project.supabase.co",
		ServiceKey:       "service",
		Resilience:       true,
		MaxRetries:       7,
		BreakerThreshold: 9,
		BreakerCooldown:  time.Minute,
	}
	ec := supabaseConfig(sc, logger.NewNop())
	assert.True(t, ec.EnableResilience)
	assert.Equal(t, 7, ec.RetryConfig.MaxRetries)
	assert.Equal(t, 9, ec.CircuitBreakerConfig.FailureThreshold)
	assert.Equal(t, time.Minute, ec.CircuitBreakerConfig.Timeout)
	assert.Equal(t, "service", ec.APIKey)
	require.NotNil(t, ec.CircuitBreakerConfig.OnStateChange)
	ec.CircuitBreakerConfig.OnStateChange(sbclient.CircuitClosed, sbclient.CircuitOpen)
}
