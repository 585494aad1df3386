package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/scene.cheap/internal/config"
	"github.com/abdul-hamid-achik/scene.cheap/internal/health"
	"github.com/abdul-hamid-achik/scene.cheap/internal/model"
	"github.com/abdul-hamid-achik/scene.cheap/internal/stream"
)

func fakeConfig() *config.Config {
	return &config.Config{
		Provider:         config.ProviderFake,
		CacheBackend:     config.BackendMemory,
		RetryMaxAttempts: 1,
		DefaultBatchSize: 5,
		MaxSceneCount:    50,
		JobTTL:           model.DefaultJobTTL,
	}
}

func TestNewLocalStack(t *testing.T) {
	a, err := New(context.Background(), fakeConfig(), Options{Role: "test"})
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Redis)
	assert.Nil(t, a.Archive)
	require.NotNil(t, a.Service)
	assert.Nil(t, a.EventReader())
	_, recorded := a.EventSink("job-1").(*stream.RedisSink)
	assert.False(t, recorded, "frames are not recorded without redis")

	rec := stream.NewRecorder()
	job, err := a.Service.Generate(context.Background(), model.Options{
		Source:     "dQw4w9WgXcQ",
		SceneCount: 5,
	}, rec)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, job.Status)
	assert.Len(t, job.Scenes, 5)

	resp := a.Health.CheckAll(context.Background())
	assert.Equal(t, health.StatusHealthy, resp.Status)
}

func TestNewSkipProvider(t *testing.T) {
	cfg := fakeConfig()
	cfg.Provider = "unknown"

	a, err := New(context.Background(), cfg, Options{SkipProvider: true})
	require.NoError(t, err)
	defer a.Close()
	assert.Nil(t, a.Service)
	assert.NotNil(t, a.Store)
}

func TestNewErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"redis backend without redis", func(c *config.Config) { c.CacheBackend = config.BackendRedis }},
		{"postgres backend without database", func(c *config.Config) { c.CacheBackend = config.BackendPostgres }},
		{"unknown backend", func(c *config.Config) { c.CacheBackend = "sqlite" }},
		{"unknown provider", func(c *config.Config) { c.Provider = "openai" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := fakeConfig()
			tt.mutate(cfg)
			a, err := New(context.Background(), cfg, Options{})
			assert.Error(t, err)
			assert.Nil(t, a)
		})
	}
}
