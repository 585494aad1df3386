package orchestrator

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/abdul-hamid-achik/scene.cheap/internal/logger"
)

// testContext carries a discarding logger so runs stay quiet under go test.
func testContext() context.Context {
	return logger.WithLogger(context.Background(), logger.NewTestLogger())
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	return data
}
