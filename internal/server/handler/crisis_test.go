package handler_test

import (
	"encoding/json"
	"net/http"
	"testing"
)

func TestScenarios_200(t *testing.T) {
	srv := setup(t, "")

	w := srv.do(http.MethodGet, "/api/v1/scenarios", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp struct {
		Scenarios []struct {
			ID string `json:"id"`
		} `json:"scenarios"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Scenarios) != 3 {
		t.Fatalf("got %d scenarios, want 3", len(resp.Scenarios))
	}
}

func TestTrigger_200(t *testing.T) {
	srv := setup(t, "")
	srv.seedBaseline(t)

	w := srv.do(http.MethodPost, "/api/v1/crisis/trigger", `{"scenario_id":"cyber"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Mode         string `json:"mode"`
		NAV          int64  `json:"nav"`
		LiquidityPct int    `json:"liquidity_pct"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Mode != "cyber" || resp.LiquidityPct != 15 {
		t.Errorf("triggered state = %+v", resp)
	}
}

func TestTrigger_400_missingScenario(t *testing.T) {
	srv := setup(t, "")
	srv.seedBaseline(t)

	w := srv.do(http.MethodPost, "/api/v1/crisis/trigger", `{}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestTrigger_404_unknownScenario(t *testing.T) {
	srv := setup(t, "")
	srv.seedBaseline(t)

	w := srv.do(http.MethodPost, "/api/v1/crisis/trigger", `{"scenario_id":"meteor-strike"}`, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
}

func TestTrigger_404_noState(t *testing.T) {
	srv := setup(t, "")

	w := srv.do(http.MethodPost, "/api/v1/crisis/trigger", `{"scenario_id":"cyber"}`, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
}

func TestTrigger_409_alreadyInCrisis(t *testing.T) {
	srv := setup(t, "")
	srv.seedBaseline(t)
	srv.enterCrisis(t)

	w := srv.do(http.MethodPost, "/api/v1/crisis/trigger", `{"scenario_id":"liquidity"}`, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
}

func TestReset_200_fromCrisis(t *testing.T) {
	srv := setup(t, "")
	srv.seedBaseline(t)
	srv.enterCrisis(t)

	w := srv.do(http.MethodPost, "/api/v1/crisis/reset", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Mode string `json:"mode"`
		NAV  int64  `json:"nav"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Mode != "normal" || resp.NAV != 1_001_325_059 {
		t.Errorf("reset state = %+v", resp)
	}
}

func TestTrigger_401_withAuthEnabled(t *testing.T) {
	srv := setup(t, mustHash(t, "op-password"))
	srv.seedBaseline(t)

	w := srv.do(http.MethodPost, "/api/v1/crisis/trigger", `{"scenario_id":"cyber"}`, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", w.Code, w.Body.String())
	}
}

func TestTrigger_200_withBearerToken(t *testing.T) {
	srv := setup(t, mustHash(t, "op-password"))
	srv.seedBaseline(t)

	token, err := srv.tokens.Login("alice", "op-password")
	if err != nil {
		t.Fatal(err)
	}

	w := srv.do(http.MethodPost, "/api/v1/crisis/trigger", `{"scenario_id":"cyber"}`,
		map[string]string{"Authorization": "Bearer " + token})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// The audit trail attributes the transition to the token's operator.
	audits, err := srv.store.AuditEntries(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(audits) != 1 || audits[0].Actor != "alice" {
		t.Errorf("audit actor = %+v, want alice", audits)
	}
}

func TestTrigger_401_garbageToken(t *testing.T) {
	srv := setup(t, mustHash(t, "op-password"))
	srv.seedBaseline(t)

	w := srv.do(http.MethodPost, "/api/v1/crisis/trigger", `{"scenario_id":"cyber"}`,
		map[string]string{"Authorization": "Bearer not.a.token"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}
