package square

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"testing"

	sqcore "github.com/square/square-go-sdk/core"

	"github.com/rileybruner/tenantgrid-backend/pkg/config"
	pkgerrors "github.com/rileybruner/tenantgrid-backend/pkg/errors"
	"github.com/rileybruner/tenantgrid-backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: &bytes.Buffer{}})
}

func TestNewClientRequiresAccessToken(t *testing.T) {
	_, err := NewClient(context.Background(), config.SquareConfig{Env: "sandbox"}, testLogger())
	if !errors.Is(err, errAccessTokenRequired) {
		t.Fatalf("expected access token error, got %v", err)
	}
}

func TestNewClientRejectsUnknownEnvironment(t *testing.T) {
	cfg := config.SquareConfig{AccessToken: "sq0atp-token", Env: "staging"}
	_, err := NewClient(context.Background(), cfg, testLogger())
	if !errors.Is(err, errInvalidSquareEnv) {
		t.Fatalf("expected environment error, got %v", err)
	}
}

func TestNewClientDefaultsToSandbox(t *testing.T) {
	cfg := config.SquareConfig{AccessToken: "sq0atp-token"}
	c, err := NewClient(context.Background(), cfg, testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Environment() != sandboxEnv {
		t.Fatalf("expected sandbox default, got %q", c.Environment())
	}
}

func TestDomainCodeForStatus(t *testing.T) {
	tests := []struct {
		status int
		code   pkgerrors.Code
	}{
		{http.StatusUnauthorized, pkgerrors.CodeUnauthorized},
		{http.StatusForbidden, pkgerrors.CodeUnauthorized},
		{http.StatusNotFound, pkgerrors.CodeNotFound},
		{http.StatusConflict, pkgerrors.CodeConflict},
		{http.StatusUnprocessableEntity, pkgerrors.CodeStateConflict},
		{http.StatusBadRequest, pkgerrors.CodeValidation},
		{http.StatusTooManyRequests, pkgerrors.CodeDependency},
		{http.StatusInternalServerError, pkgerrors.CodeDependency},
	}
	for _, tt := range tests {
		if got := domainCodeForStatus(tt.status); got != tt.code {
			t.Fatalf("status %d expected %s got %s", tt.status, tt.code, got)
		}
	}
}

func TestMapSquareError(t *testing.T) {
	c := &Client{}
	table := []struct {
		name     string
		status   int
		payload  string
		wantCode pkgerrors.Code
	}{
		{
			name:     "authentication error",
			status:   http.StatusUnauthorized,
			payload:  `{"errors":[{"category":"AUTHENTICATION_ERROR","code":"UNAUTHORIZED"}]}`,
			wantCode: pkgerrors.CodeUnauthorized,
		},
		{
			name:     "missing payment",
			status:   http.StatusNotFound,
			payload:  `{"errors":[{"category":"INVALID_REQUEST_ERROR","code":"NOT_FOUND"}]}`,
			wantCode: pkgerrors.CodeNotFound,
		},
		{
			name:     "provider outage",
			status:   http.StatusBadGateway,
			payload:  "",
			wantCode: pkgerrors.CodeDependency,
		},
	}
	for _, tt := range table {
		err := sqcore.NewAPIError(tt.status, errors.New(tt.payload))
		mapped := c.mapSquareError(err, "get payment")
		if mapped == nil {
			t.Fatalf("%s: expected error", tt.name)
		}
		typed := pkgerrors.As(mapped)
		if typed == nil {
			t.Fatalf("%s: result is not a typed error", tt.name)
		}
		if typed.Code() != tt.wantCode {
			t.Fatalf("%s: expected code %s, got %s", tt.name, tt.wantCode, typed.Code())
		}
	}
}
