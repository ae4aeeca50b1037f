package handler_test

import (
	"encoding/json"
	"net/http"
	"testing"
)

func TestLedgerAudit_200(t *testing.T) {
	srv := setup(t, "")
	srv.seedBaseline(t)
	srv.enterCrisis(t)

	w := srv.do(http.MethodGet, "/api/v1/ledger/audit", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp struct {
		Count   int `json:"count"`
		Entries []struct {
			Seq    int64  `json:"seq"`
			Action string `json:"action"`
		} `json:"entries"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 2 {
		t.Fatalf("count = %d, want 2 (reset + trigger)", resp.Count)
	}
	if resp.Entries[0].Action != "trigger_cyber" {
		t.Errorf("newest entry action = %q", resp.Entries[0].Action)
	}
	if resp.Entries[0].Seq != 2 || resp.Entries[1].Seq != 1 {
		t.Errorf("entries not newest first: %+v", resp.Entries)
	}
}

func TestLedgerGovernance_200(t *testing.T) {
	srv := setup(t, "")
	srv.seedBaseline(t)

	w := srv.do(http.MethodGet, "/api/v1/ledger/governance", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp struct {
		Entries []struct {
			Action       string `json:"action"`
			IntegrityTag string `json:"integrity_tag"`
			Multisig     struct {
				Required  int `json:"required"`
				Approvals int `json:"approvals"`
			} `json:"multisig"`
		} `json:"entries"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(resp.Entries))
	}
	e := resp.Entries[0]
	if e.Action != "reset_ack" {
		t.Errorf("action = %q", e.Action)
	}
	if len(e.IntegrityTag) != 64 {
		t.Errorf("integrity tag = %q", e.IntegrityTag)
	}
	if e.Multisig.Required != 3 || e.Multisig.Approvals != 3 {
		t.Errorf("multisig = %+v", e.Multisig)
	}
}

func TestLedgerVerify_valid(t *testing.T) {
	srv := setup(t, "")
	srv.seedBaseline(t)
	srv.enterCrisis(t)

	w := srv.do(http.MethodGet, "/api/v1/ledger/verify", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp struct {
		Valid bool   `json:"valid"`
		Root  string `json:"root"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Valid {
		t.Error("valid = false on an untampered ledger")
	}
	if len(resp.Root) != 64 {
		t.Errorf("root = %q", resp.Root)
	}
}

func TestLedgerVerify_emptyLedger(t *testing.T) {
	srv := setup(t, "")

	w := srv.do(http.MethodGet, "/api/v1/ledger/verify", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp struct {
		Valid bool `json:"valid"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Valid {
		t.Error("empty ledger should verify")
	}
}
