package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sentinel-reserve/sentinel/internal/auth"
	"github.com/sentinel-reserve/sentinel/internal/engine"
	"github.com/sentinel-reserve/sentinel/internal/feed"
	"github.com/sentinel-reserve/sentinel/internal/proofpack"
	"github.com/sentinel-reserve/sentinel/internal/server/handler"
	"github.com/sentinel-reserve/sentinel/internal/state"
	"github.com/sentinel-reserve/sentinel/internal/storage"
	"go.uber.org/zap"
)

var ctx = context.Background()

const testSecret = "handler-test-secret"

// testServer wires the full API surface over an in-memory store.
type testServer struct {
	router *gin.Engine
	store  *storage.Memory
	engine *engine.Engine
	sealer *proofpack.Sealer
	tokens *auth.TokenIssuer
}

// setup builds a test server. passwordHash may be empty to run with
// authentication disabled.
func setup(t *testing.T, passwordHash string) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	store := storage.NewMemory()
	broadcaster := feed.NewBroadcaster()
	eng := engine.New(store, engine.DefaultBaseline, nil, broadcaster, logger)
	sealer := proofpack.NewSealer(store, store, []byte(testSecret), logger)
	tokens := auth.NewTokenIssuer([]byte(testSecret), passwordHash, "http://test", time.Hour)
	authMW := handler.NewMiddleware(tokens, logger)

	r := gin.New()
	v1 := r.Group("/api/v1")
	handler.NewStateHandler(store, logger).Register(v1)
	handler.NewCrisisHandler(eng, authMW, logger).Register(v1)
	handler.NewLedgerHandler(store, logger).Register(v1)
	handler.NewProofPackHandler(sealer, authMW, logger).Register(v1)
	handler.NewAuthHandler(tokens, logger).Register(v1)

	return &testServer{router: r, store: store, engine: eng, sealer: sealer, tokens: tokens}
}

// seedBaseline commits the baseline state through the engine so the ledgers
// are populated too.
func (s *testServer) seedBaseline(t *testing.T) {
	t.Helper()
	if _, err := s.engine.Reset(ctx, "test-seed"); err != nil {
		t.Fatal(err)
	}
}

func (s *testServer) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	h, err := auth.HashPassword(password)
	if err != nil {
		t.Fatal(err)
	}
	return h
}

// crisisState puts the server into cyber mode.
func (s *testServer) enterCrisis(t *testing.T) state.SystemState {
	t.Helper()
	st, err := s.engine.Trigger(ctx, "cyber", "test")
	if err != nil {
		t.Fatal(err)
	}
	return st
}
