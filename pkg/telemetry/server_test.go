package telemetry_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ramiqadoumi/task-inbox/pkg/telemetry"
)

func TestReadyHandler(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("postgres: connection refused") }

	tests := []struct {
		name   string
		checks []telemetry.ReadyFunc
		want   int
	}{
		{"no checks", nil, http.StatusOK},
		{"all pass", []telemetry.ReadyFunc{ok, ok}, http.StatusOK},
		{"one fails", []telemetry.ReadyFunc{ok, down}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			telemetry.ReadyHandler(tt.checks...).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
