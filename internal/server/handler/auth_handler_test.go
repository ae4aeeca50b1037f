package handler_test

import (
	"encoding/json"
	"net/http"
	"testing"
)

func TestToken_200(t *testing.T) {
	srv := setup(t, mustHash(t, "op-password"))

	w := srv.do(http.MethodPost, "/api/v1/auth/token", `{"operator":"alice","password":"op-password"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Token == "" {
		t.Fatal("no token in response")
	}

	claims, err := srv.tokens.Verify(resp.Token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.Operator != "alice" {
		t.Errorf("token operator = %q", claims.Operator)
	}
}

func TestToken_200_defaultOperatorName(t *testing.T) {
	srv := setup(t, mustHash(t, "op-password"))

	w := srv.do(http.MethodPost, "/api/v1/auth/token", `{"password":"op-password"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	claims, err := srv.tokens.Verify(resp.Token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.Operator != "operator" {
		t.Errorf("default operator = %q", claims.Operator)
	}
}

func TestToken_401_wrongPassword(t *testing.T) {
	srv := setup(t, mustHash(t, "op-password"))

	w := srv.do(http.MethodPost, "/api/v1/auth/token", `{"password":"wrong"}`, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestToken_400_missingPassword(t *testing.T) {
	srv := setup(t, mustHash(t, "op-password"))

	w := srv.do(http.MethodPost, "/api/v1/auth/token", `{"operator":"alice"}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}
