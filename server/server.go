// Package server exposes the batch upload and dispatch API over HTTP and
// owns the run workers. Each portal flavor gets exactly one worker: a flavor
// pins a persistent browser profile, and two simultaneous runs of the same
// flavor would collide on it.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"echeq/automation"
	"echeq/events"
	"echeq/model"
	"echeq/store"
)

// Service wires the HTTP API to the store, the run workers and the event bus.
type Service struct {
	store *store.Store
	runs  *RunStore
	bus   *events.Bus // optional; nil disables event publishing

	checksQueue    chan checkDispatch
	transfersQueue chan transferDispatch

	// Runner seams; production uses the automation package directly.
	runChecks    func([]model.CheckEntry, automation.Options) *automation.BatchResult
	runTransfers func([]model.TransferEntry, automation.Options) *automation.BatchResult
	baseOptions  func() automation.Options
}

type checkDispatch struct {
	runID   string
	batchID string
	checks  []model.CheckEntry
}

type transferDispatch struct {
	runID     string
	batchID   string
	transfers []model.TransferEntry
}

func NewService(st *store.Store, bus *events.Bus) *Service {
	return &Service{
		store:          st,
		runs:           NewRunStore(),
		bus:            bus,
		checksQueue:    make(chan checkDispatch, 16),
		transfersQueue: make(chan transferDispatch, 16),
		runChecks:      automation.RunChecks,
		runTransfers:   automation.RunTransfers,
		baseOptions:    automation.OptionsFromEnv,
	}
}

// Start launches one worker per flavor plus the run-record janitor.
func (s *Service) Start() {
	go s.checksWorker()
	go s.transfersWorker()
	go s.cleanupWorker()
	log.Printf("✅ Started check and transfer workers")
}

func (s *Service) checksWorker() {
	log.Printf("🚀 Checks worker started")
	for d := range s.checksQueue {
		s.executeCheckRun(d)
	}
}

func (s *Service) transfersWorker() {
	log.Printf("🚀 Transfers worker started")
	for d := range s.transfersQueue {
		s.executeTransferRun(d)
	}
}

func (s *Service) cleanupWorker() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		s.runs.CleanupOld(24 * time.Hour)
	}
}

// runOptions builds the engine options for one run, wiring stage reporting
// into the run record and the event bus.
func (s *Service) runOptions(runID, flavor, batchID string) automation.Options {
	opts := s.baseOptions()
	opts.Notify = func(stage string) {
		s.runs.SetStage(runID, stage)
		s.publish(runID, flavor, batchID, stage)
	}
	return opts
}

func (s *Service) publish(runID, flavor, batchID, stage string) {
	if s.bus == nil {
		return
	}
	evt := events.RunEvent{RunID: runID, Flavor: flavor, BatchID: batchID, Stage: stage}
	if err := s.bus.Publish(context.Background(), evt); err != nil {
		log.Printf("⚠️ Event publish failed (run %s, stage %s): %v", runID, stage, err)
	}
}

func (s *Service) executeCheckRun(d checkDispatch) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ Checks worker PANIC on run %s: %v", d.runID, r)
			s.runs.Complete(d.runID, nil)
		}
	}()

	log.Printf("🔧 Processing check run %s (batch %s, %d checks)", d.runID, d.batchID, len(d.checks))
	result := s.runChecks(d.checks, s.runOptions(d.runID, "checks", d.batchID))
	s.finishRun(d.runID, "checks", d.batchID, result, func(ctx context.Context, outcomes map[string]bool, sentAt, now string) error {
		return s.store.UpdateCheckStatuses(ctx, d.batchID, outcomes, sentAt, now)
	})
}

func (s *Service) executeTransferRun(d transferDispatch) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ Transfers worker PANIC on run %s: %v", d.runID, r)
			s.runs.Complete(d.runID, nil)
		}
	}()

	log.Printf("🔧 Processing transfer run %s (batch %s, %d transfers)", d.runID, d.batchID, len(d.transfers))
	result := s.runTransfers(d.transfers, s.runOptions(d.runID, "transfers", d.batchID))
	s.finishRun(d.runID, "transfers", d.batchID, result, func(ctx context.Context, outcomes map[string]bool, sentAt, now string) error {
		return s.store.UpdateTransferStatuses(ctx, d.batchID, outcomes, sentAt, now)
	})
}

// finishRun persists instruction outcomes and closes out the run record.
// Successful instructions share the run's single confirmation timestamp.
func (s *Service) finishRun(runID, flavor, batchID string, result *automation.BatchResult,
	update func(ctx context.Context, outcomes map[string]bool, sentAt, now string) error) {

	outcomes := make(map[string]bool, len(result.Results))
	for _, r := range result.Results {
		outcomes[r.ID] = r.Success
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := update(ctx, outcomes, result.ConfirmedAt, nowISO()); err != nil {
		log.Printf("⚠️ Status update failed for batch %s: %v", batchID, err)
	}

	s.runs.Complete(runID, result)
	if result.ConfirmedAt != "" {
		log.Printf("✅ Run %s completed: %d sent, %d failed", runID, result.TotalSent, result.TotalFailed)
		s.publish(runID, flavor, batchID, RunStatusCompleted)
	} else {
		log.Printf("❌ Run %s unconfirmed: %d failed", runID, result.TotalFailed)
		s.publish(runID, flavor, batchID, RunStatusFailed)
	}
}

// Router builds the HTTP API.
func (s *Service) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/runs/{id}", s.handleGetRun).Methods(http.MethodGet)

	r.HandleFunc("/api/batches", s.handleCreateBatch).Methods(http.MethodPost)
	r.HandleFunc("/api/batches", s.handleListBatches).Methods(http.MethodGet)
	r.HandleFunc("/api/batches/reset", s.handleResetChecks).Methods(http.MethodPost)
	r.HandleFunc("/api/batches/{id}", s.handleGetBatch).Methods(http.MethodGet)
	r.HandleFunc("/api/batches/{id}", s.handleDeleteBatch).Methods(http.MethodDelete)
	r.HandleFunc("/api/batches/{id}/send", s.handleSendBatch).Methods(http.MethodPost)

	r.HandleFunc("/api/transfers", s.handleCreateTransferBatch).Methods(http.MethodPost)
	r.HandleFunc("/api/transfers", s.handleListTransferBatches).Methods(http.MethodGet)
	r.HandleFunc("/api/transfers/reset", s.handleResetTransfers).Methods(http.MethodPost)
	r.HandleFunc("/api/transfers/{id}", s.handleGetTransferBatch).Methods(http.MethodGet)
	r.HandleFunc("/api/transfers/{id}", s.handleDeleteTransferBatch).Methods(http.MethodDelete)
	r.HandleFunc("/api/transfers/{id}/send", s.handleSendTransferBatch).Methods(http.MethodPost)

	return r
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "echeq",
		"time":    nowISO(),
	})
}

func (s *Service) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.runs.Get(mux.Vars(r)["id"])
	if !ok {
		httpError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// --- check batches ---

type createBatchRequest struct {
	FileName string `json:"fileName"`
	Checks   []struct {
		PayeeName   string  `json:"payeeName"`
		CUIT        string  `json:"cuitNumber"`
		Amount      float64 `json:"amount"`
		PaymentDate string  `json:"paymentDate"`
		Email       string  `json:"email"`
	} `json:"checks"`
}

func (s *Service) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	var req createBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if len(req.Checks) == 0 {
		httpError(w, http.StatusBadRequest, "batch has no checks")
		return
	}

	checks := make([]model.CheckEntry, 0, len(req.Checks))
	for i, c := range req.Checks {
		if c.PayeeName == "" || c.CUIT == "" || c.Amount <= 0 {
			httpError(w, http.StatusBadRequest, fmt.Sprintf("check %d: payeeName, cuitNumber and a positive amount are required", i+1))
			return
		}
		checks = append(checks, model.CheckEntry{
			ID:          uuid.New().String(),
			PayeeName:   c.PayeeName,
			CUIT:        c.CUIT,
			Amount:      c.Amount,
			PaymentDate: automation.NormalizeDateDDMMYYYY(c.PaymentDate),
			Email:       c.Email,
			Status:      model.StatusPending,
		})
	}
	batch := &model.Batch{
		ID:          uuid.New().String(),
		FileName:    req.FileName,
		UploadedAt:  nowISO(),
		Checks:      checks,
		TotalAmount: model.SumCheckAmounts(checks),
	}
	if err := s.store.SaveBatch(r.Context(), batch); err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	log.Printf("📥 Batch %s uploaded: %d checks, total %.2f", batch.ID, len(checks), batch.TotalAmount)
	writeJSON(w, http.StatusCreated, batch)
}

func (s *Service) handleListBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := s.store.ListBatches(r.Context())
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, batches)
}

func (s *Service) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	batch, err := s.store.GetBatch(r.Context(), mux.Vars(r)["id"])
	if err == store.ErrNotFound {
		httpError(w, http.StatusNotFound, "batch not found")
		return
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func (s *Service) handleDeleteBatch(w http.ResponseWriter, r *http.Request) {
	err := s.store.DeleteBatch(r.Context(), mux.Vars(r)["id"])
	if err == store.ErrNotFound {
		httpError(w, http.StatusNotFound, "batch not found")
		return
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleSendBatch(w http.ResponseWriter, r *http.Request) {
	batchID := mux.Vars(r)["id"]
	batch, err := s.store.GetBatch(r.Context(), batchID)
	if err == store.ErrNotFound {
		httpError(w, http.StatusNotFound, "batch not found")
		return
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}

	pending := make([]model.CheckEntry, 0, len(batch.Checks))
	ids := make([]string, 0, len(batch.Checks))
	for _, c := range batch.Checks {
		if c.Status == model.StatusPending {
			pending = append(pending, c)
			ids = append(ids, c.ID)
		}
	}
	if len(pending) == 0 {
		httpError(w, http.StatusConflict, "batch has no pending checks")
		return
	}
	if err := s.store.MarkChecksProcessing(r.Context(), batchID, ids, nowISO()); err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}

	run := s.runs.Create("checks", batchID)
	s.checksQueue <- checkDispatch{runID: run.ID, batchID: batchID, checks: pending}
	log.Printf("📤 Queued check run %s for batch %s (%d pending)", run.ID, batchID, len(pending))
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"runId":   run.ID,
		"status":  run.Status,
		"queued":  len(pending),
		"batchId": batchID,
	})
}

func (s *Service) handleResetChecks(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.ResetCheckStatuses(r.Context(), nowISO())
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	log.Printf("♻️ Reset %d check statuses to pending", n)
	writeJSON(w, http.StatusOK, map[string]int{"reset": n})
}

// --- transfer batches ---

type createTransferBatchRequest struct {
	FileName  string `json:"fileName"`
	Transfers []struct {
		ProviderName string  `json:"providerName"`
		CUIT         string  `json:"cuitNumber"`
		CBU          string  `json:"cbu"`
		Amount       float64 `json:"amount"`
		PaymentDate  string  `json:"paymentDate"`
	} `json:"transfers"`
}

func (s *Service) handleCreateTransferBatch(w http.ResponseWriter, r *http.Request) {
	var req createTransferBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if len(req.Transfers) == 0 {
		httpError(w, http.StatusBadRequest, "batch has no transfers")
		return
	}

	transfers := make([]model.TransferEntry, 0, len(req.Transfers))
	for i, t := range req.Transfers {
		if t.ProviderName == "" || t.CBU == "" || t.Amount <= 0 {
			httpError(w, http.StatusBadRequest, fmt.Sprintf("transfer %d: providerName, cbu and a positive amount are required", i+1))
			return
		}
		transfers = append(transfers, model.TransferEntry{
			ID:           uuid.New().String(),
			ProviderName: t.ProviderName,
			CUIT:         t.CUIT,
			CBU:          t.CBU,
			Amount:       t.Amount,
			PaymentDate:  automation.NormalizeDateDDMMYYYY(t.PaymentDate),
			Status:       model.StatusPending,
		})
	}
	batch := &model.TransferBatch{
		ID:          uuid.New().String(),
		FileName:    req.FileName,
		UploadedAt:  nowISO(),
		Transfers:   transfers,
		TotalAmount: model.SumTransferAmounts(transfers),
	}
	if err := s.store.SaveTransferBatch(r.Context(), batch); err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	log.Printf("📥 Transfer batch %s uploaded: %d transfers, total %.2f", batch.ID, len(transfers), batch.TotalAmount)
	writeJSON(w, http.StatusCreated, batch)
}

func (s *Service) handleListTransferBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := s.store.ListTransferBatches(r.Context())
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, batches)
}

func (s *Service) handleGetTransferBatch(w http.ResponseWriter, r *http.Request) {
	batch, err := s.store.GetTransferBatch(r.Context(), mux.Vars(r)["id"])
	if err == store.ErrNotFound {
		httpError(w, http.StatusNotFound, "transfer batch not found")
		return
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func (s *Service) handleDeleteTransferBatch(w http.ResponseWriter, r *http.Request) {
	err := s.store.DeleteTransferBatch(r.Context(), mux.Vars(r)["id"])
	if err == store.ErrNotFound {
		httpError(w, http.StatusNotFound, "transfer batch not found")
		return
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleSendTransferBatch(w http.ResponseWriter, r *http.Request) {
	batchID := mux.Vars(r)["id"]
	batch, err := s.store.GetTransferBatch(r.Context(), batchID)
	if err == store.ErrNotFound {
		httpError(w, http.StatusNotFound, "transfer batch not found")
		return
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}

	pending := make([]model.TransferEntry, 0, len(batch.Transfers))
	ids := make([]string, 0, len(batch.Transfers))
	for _, t := range batch.Transfers {
		if t.Status == model.StatusPending {
			pending = append(pending, t)
			ids = append(ids, t.ID)
		}
	}
	if len(pending) == 0 {
		httpError(w, http.StatusConflict, "batch has no pending transfers")
		return
	}
	if err := s.store.MarkTransfersProcessing(r.Context(), batchID, ids, nowISO()); err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}

	run := s.runs.Create("transfers", batchID)
	s.transfersQueue <- transferDispatch{runID: run.ID, batchID: batchID, transfers: pending}
	log.Printf("📤 Queued transfer run %s for batch %s (%d pending)", run.ID, batchID, len(pending))
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"runId":   run.ID,
		"status":  run.Status,
		"queued":  len(pending),
		"batchId": batchID,
	})
}

func (s *Service) handleResetTransfers(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.ResetTransferStatuses(r.Context(), nowISO())
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	log.Printf("♻️ Reset %d transfer statuses to pending", n)
	writeJSON(w, http.StatusOK, map[string]int{"reset": n})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}
