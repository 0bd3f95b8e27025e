package command

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/rolewarden/rolewarden/internal/capability"
	"github.com/rolewarden/rolewarden/internal/host"
	"github.com/rolewarden/rolewarden/internal/platform/kv"
	"github.com/rolewarden/rolewarden/internal/webhook"
)

const testToken = "cli-token"

func newHandlerFixture(t *testing.T, limit int) (http.Handler, *webhook.LogStore) {
	t.Helper()
	ctx := context.Background()
	mem := kv.NewMemory()
	provider := host.NewKVProvider(mem)
	require.NoError(t, provider.EnsureDefaults(ctx))
	state := capability.NewState(mem)
	store := capability.NewStore(provider, state, nil, nil, nil)
	disablement := capability.NewDisablement(provider, state, nil)
	service := NewService(store, disablement, nil)

	hash, err := bcrypt.GenerateFromPassword([]byte(testToken), bcrypt.MinCost)
	require.NoError(t, err)

	logs := webhook.NewLogStore(mem, 0)
	limiter := NewMemoryRateLimiter(limit, time.Minute)
	handler := NewHandler(nil, service, limiter, logs, nil, string(hash))

	router := chi.NewRouter()
	router.Route("/api", handler.MountRoutes)
	return router, logs
}

func post(router http.Handler, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/command", strings.NewReader(body))
	req.RemoteAddr = "10.1.2.3:51000"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestCommandRequiresValidToken(t *testing.T) {
	router, _ := newHandlerFixture(t, 100)

	rr := post(router, "", `{"action":"create_role","params":{"slug":"ops"}}`)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = post(router, "wrong", `{"action":"create_role","params":{"slug":"ops"}}`)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = post(router, testToken, `{"action":"create_role","params":{"slug":"ops"}}`)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestCommandAuditsAuthFailures(t *testing.T) {
	router, logs := newHandlerFixture(t, 100)

	rr := post(router, "wrong", `{"action":"create_role","params":{"slug":"ops"}}`)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = post(router, "", `{"action":"create_role","params":{"slug":"ops"}}`)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	entries, err := logs.List(context.Background(), webhook.DirectionIncoming, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, entry := range entries {
		require.Equal(t, webhook.StatusFailed, entry.Status)
		require.Equal(t, "unauthenticated", entry.Message)
		require.Empty(t, entry.Action)
		require.Equal(t, "10.1.2.3", entry.RemoteAddr)
	}
}

func TestCommandDisabledWithoutConfiguredHash(t *testing.T) {
	mem := kv.NewMemory()
	service := NewService(nil, nil, nil)
	handler := NewHandler(nil, service, NewMemoryRateLimiter(10, time.Minute), webhook.NewLogStore(mem, 0), nil, "")
	router := chi.NewRouter()
	router.Route("/api", handler.MountRoutes)

	rr := post(router, testToken, `{"action":"create_role","params":{"slug":"ops"}}`)
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestCommandRejectsOversizedBody(t *testing.T) {
	router, logs := newHandlerFixture(t, 100)

	body := `{"action":"create_role","params":{"slug":"` + strings.Repeat("a", 70*1024) + `"}}`
	rr := post(router, testToken, body)
	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)

	entries, err := logs.List(context.Background(), webhook.DirectionIncoming, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, webhook.StatusFailed, entries[0].Status)
}

func TestCommandRejectsUnknownAction(t *testing.T) {
	router, _ := newHandlerFixture(t, 100)

	rr := post(router, testToken, `{"action":"drop_database"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCommandRateLimitBoundary(t *testing.T) {
	router, logs := newHandlerFixture(t, 2)

	require.Equal(t, http.StatusOK, post(router, testToken, `{"action":"create_role","params":{"slug":"ops_a"}}`).Code)
	require.Equal(t, http.StatusOK, post(router, testToken, `{"action":"create_role","params":{"slug":"ops_b"}}`).Code)
	require.Equal(t, http.StatusTooManyRequests, post(router, testToken, `{"action":"create_role","params":{"slug":"ops_c"}}`).Code)

	entries, err := logs.List(context.Background(), webhook.DirectionIncoming, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, "rate limited", entries[0].Message)
}

func TestCommandAuditsSuccessWithParams(t *testing.T) {
	router, logs := newHandlerFixture(t, 100)

	rr := post(router, testToken, `{"action":"create_role","params":{"slug":"ops"}}`)
	require.Equal(t, http.StatusOK, rr.Code)

	entries, err := logs.List(context.Background(), webhook.DirectionIncoming, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	entry := entries[0]
	require.Equal(t, webhook.StatusSuccess, entry.Status)
	require.Equal(t, "create_role", entry.Action)
	require.Equal(t, "10.1.2.3", entry.RemoteAddr)
	require.Equal(t, "ops", entry.Params["slug"])
	require.Equal(t, http.MethodPost, entry.Method)
}
