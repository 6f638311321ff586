package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"echeq/automation"
	"echeq/model"
	"echeq/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	t.Cleanup(m.Close)

	st := store.New(redis.NewClient(&redis.Options{Addr: m.Addr()}))
	svc := NewService(st, nil)
	svc.baseOptions = func() automation.Options { return automation.Options{} }
	return svc
}

// confirmedRunner simulates a run where the portal confirmed everything.
func confirmedRunner(checks []model.CheckEntry, opts automation.Options) *automation.BatchResult {
	results := make([]automation.ItemResult, 0, len(checks))
	for _, c := range checks {
		results = append(results, automation.ItemResult{ID: c.ID, Success: true})
	}
	return &automation.BatchResult{
		Results:     results,
		TotalSent:   len(results),
		ConfirmedAt: "2026-08-30T12:00:00Z",
		Logs:        []string{"ok"},
	}
}

func postJSON(t *testing.T, srv *httptest.Server, path string, body interface{}) *http.Response {
	t.Helper()
	data, _ := json.Marshal(body)
	resp, err := http.Post(srv.URL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func sampleUpload() map[string]interface{} {
	return map[string]interface{}{
		"fileName": "pagos.csv",
		"checks": []map[string]interface{}{
			{"payeeName": "Proveedor Uno", "cuitNumber": "20-12345678-3", "amount": 1000.50, "paymentDate": "3/25/2026", "email": "uno@example.com"},
			{"payeeName": "Proveedor Dos", "cuitNumber": "27-87654321-4", "amount": 500.25, "paymentDate": "5/3/2026", "email": "dos@example.com"},
		},
	}
}

func TestCreateBatchNormalizesDates(t *testing.T) {
	svc := newTestService(t)
	srv := httptest.NewServer(svc.Router())
	defer srv.Close()

	resp := postJSON(t, srv, "/api/batches", sampleUpload())
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	var batch model.Batch
	decode(t, resp, &batch)

	if batch.TotalAmount != 1500.75 {
		t.Errorf("total = %v, want 1500.75", batch.TotalAmount)
	}
	if batch.Checks[0].PaymentDate != "25/03/2026" {
		t.Errorf("month/day input not normalized: %q", batch.Checks[0].PaymentDate)
	}
	if batch.Checks[1].PaymentDate != "05/03/2026" {
		t.Errorf("day-first input not normalized: %q", batch.Checks[1].PaymentDate)
	}
	for _, c := range batch.Checks {
		if c.Status != model.StatusPending {
			t.Errorf("check %s status = %q, want pending", c.ID, c.Status)
		}
	}
}

func TestCreateBatchValidation(t *testing.T) {
	svc := newTestService(t)
	srv := httptest.NewServer(svc.Router())
	defer srv.Close()

	resp := postJSON(t, srv, "/api/batches", map[string]interface{}{"fileName": "x.csv"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty batch status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, srv, "/api/batches", map[string]interface{}{
		"fileName": "x.csv",
		"checks":   []map[string]interface{}{{"payeeName": "P", "cuitNumber": "20-1-1", "amount": -5}},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("negative amount status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestSendBatchLifecycle(t *testing.T) {
	svc := newTestService(t)
	svc.runChecks = confirmedRunner
	svc.Start()
	srv := httptest.NewServer(svc.Router())
	defer srv.Close()

	var batch model.Batch
	decode(t, postJSON(t, srv, "/api/batches", sampleUpload()), &batch)

	resp := postJSON(t, srv, "/api/batches/"+batch.ID+"/send", nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("send status = %d, want 202", resp.StatusCode)
	}
	var ack struct {
		RunID  string `json:"runId"`
		Queued int    `json:"queued"`
	}
	decode(t, resp, &ack)
	if ack.Queued != 2 {
		t.Errorf("queued = %d, want 2", ack.Queued)
	}

	run := waitForRun(t, svc, ack.RunID)
	if run.Status != RunStatusCompleted {
		t.Errorf("run status = %q, want completed", run.Status)
	}
	if run.Result == nil || run.Result.TotalSent != 2 {
		t.Errorf("run result missing or wrong: %+v", run.Result)
	}

	stored, err := svc.store.GetBatch(context.Background(), batch.ID)
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range stored.Checks {
		if c.Status != model.StatusSent {
			t.Errorf("check %s status = %q, want sent", c.ID, c.Status)
		}
		if c.SentAt != "2026-08-30T12:00:00Z" {
			t.Errorf("check %s sentAt = %q, want shared confirmation time", c.ID, c.SentAt)
		}
	}

	// Everything already sent: a second dispatch has nothing to do.
	resp = postJSON(t, srv, "/api/batches/"+batch.ID+"/send", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("re-send status = %d, want 409", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestSendBatchUnconfirmedMarksFailed(t *testing.T) {
	svc := newTestService(t)
	svc.runChecks = func(checks []model.CheckEntry, opts automation.Options) *automation.BatchResult {
		results := make([]automation.ItemResult, 0, len(checks))
		for _, c := range checks {
			results = append(results, automation.ItemResult{ID: c.ID, Success: false, Error: "portal did not confirm"})
		}
		return &automation.BatchResult{Results: results, TotalFailed: len(results)}
	}
	svc.Start()
	srv := httptest.NewServer(svc.Router())
	defer srv.Close()

	var batch model.Batch
	decode(t, postJSON(t, srv, "/api/batches", sampleUpload()), &batch)

	var ack struct {
		RunID string `json:"runId"`
	}
	decode(t, postJSON(t, srv, "/api/batches/"+batch.ID+"/send", nil), &ack)

	run := waitForRun(t, svc, ack.RunID)
	if run.Status != RunStatusFailed {
		t.Errorf("run status = %q, want failed", run.Status)
	}

	stored, _ := svc.store.GetBatch(context.Background(), batch.ID)
	for _, c := range stored.Checks {
		if c.Status != model.StatusFailed {
			t.Errorf("check %s status = %q, want failed", c.ID, c.Status)
		}
		if c.SentAt != "" {
			t.Errorf("unconfirmed check %s has sentAt %q", c.ID, c.SentAt)
		}
	}
}

func TestRunStageReporting(t *testing.T) {
	svc := newTestService(t)
	stages := make(chan string, 16)
	svc.runChecks = func(checks []model.CheckEntry, opts automation.Options) *automation.BatchResult {
		for _, st := range []string{"authenticated", "form_ready", "awaiting_challenge"} {
			opts.Notify(st)
			stages <- st
		}
		results := make([]automation.ItemResult, 0, len(checks))
		for _, c := range checks {
			results = append(results, automation.ItemResult{ID: c.ID, Success: true})
		}
		return &automation.BatchResult{Results: results, TotalSent: len(results), ConfirmedAt: "2026-08-30T12:00:00Z"}
	}
	svc.Start()
	srv := httptest.NewServer(svc.Router())
	defer srv.Close()

	var batch model.Batch
	decode(t, postJSON(t, srv, "/api/batches", sampleUpload()), &batch)
	var ack struct {
		RunID string `json:"runId"`
	}
	decode(t, postJSON(t, srv, "/api/batches/"+batch.ID+"/send", nil), &ack)

	// The suspended-on-challenge stage must be observable through the API.
	deadline := time.After(5 * time.Second)
	for {
		select {
		case st := <-stages:
			if st == "awaiting_challenge" {
				run, ok := svc.runs.Get(ack.RunID)
				if !ok {
					t.Fatal("run disappeared")
				}
				if run.Status != "awaiting_challenge" && run.Status != RunStatusCompleted {
					t.Errorf("run status = %q after challenge stage", run.Status)
				}
				waitForRun(t, svc, ack.RunID)
				return
			}
		case <-deadline:
			t.Fatal("challenge stage never reported")
		}
	}
}

func TestTransferBatchLifecycle(t *testing.T) {
	svc := newTestService(t)
	svc.runTransfers = func(transfers []model.TransferEntry, opts automation.Options) *automation.BatchResult {
		results := make([]automation.ItemResult, 0, len(transfers))
		for _, tr := range transfers {
			results = append(results, automation.ItemResult{ID: tr.ID, Success: true})
		}
		return &automation.BatchResult{Results: results, TotalSent: len(results), ConfirmedAt: "2026-08-30T13:00:00Z"}
	}
	svc.Start()
	srv := httptest.NewServer(svc.Router())
	defer srv.Close()

	upload := map[string]interface{}{
		"fileName": "transferencias.csv",
		"transfers": []map[string]interface{}{
			{"providerName": "Servicio SA", "cuitNumber": "30-11111111-2", "cbu": "0070999030000012345678", "amount": 9000.0, "paymentDate": "5/3/2026"},
		},
	}
	resp := postJSON(t, srv, "/api/transfers", upload)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}
	var batch model.TransferBatch
	decode(t, resp, &batch)

	var ack struct {
		RunID string `json:"runId"`
	}
	decode(t, postJSON(t, srv, "/api/transfers/"+batch.ID+"/send", nil), &ack)

	run := waitForRun(t, svc, ack.RunID)
	if run.Status != RunStatusCompleted {
		t.Errorf("run status = %q, want completed", run.Status)
	}

	stored, _ := svc.store.GetTransferBatch(context.Background(), batch.ID)
	if stored.Transfers[0].Status != model.StatusSent || stored.Transfers[0].SentAt != "2026-08-30T13:00:00Z" {
		t.Errorf("transfer not marked sent: %+v", stored.Transfers[0])
	}
}

func TestDeleteAndReset(t *testing.T) {
	svc := newTestService(t)
	srv := httptest.NewServer(svc.Router())
	defer srv.Close()

	var batch model.Batch
	decode(t, postJSON(t, srv, "/api/batches", sampleUpload()), &batch)

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/batches/"+batch.ID, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", resp.StatusCode)
	}

	resp, _ = http.Get(srv.URL + "/api/batches/" + batch.ID)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get deleted status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, srv, "/api/batches/reset", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("reset status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()
}

func waitForRun(t *testing.T, svc *Service, runID string) *Run {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		run, ok := svc.runs.Get(runID)
		if ok && run.CompletedAt != nil {
			return run
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("run %s never completed", runID)
	return nil
}
