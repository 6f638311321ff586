package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"echeq/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	t.Cleanup(m.Close)
	return New(redis.NewClient(&redis.Options{Addr: m.Addr()}))
}

func sampleBatch(id string) *model.Batch {
	checks := []model.CheckEntry{
		{ID: id + "-1", PayeeName: "Proveedor Uno", CUIT: "20-12345678-3", Amount: 1000.50, PaymentDate: "05/03/2026", Email: "uno@example.com", Status: model.StatusPending},
		{ID: id + "-2", PayeeName: "Proveedor Dos", CUIT: "27-87654321-4", Amount: 2500.25, PaymentDate: "10/03/2026", Email: "dos@example.com", Status: model.StatusPending},
	}
	return &model.Batch{
		ID:          id,
		FileName:    "pagos.csv",
		UploadedAt:  "2026-08-30T10:00:00Z",
		Checks:      checks,
		TotalAmount: model.SumCheckAmounts(checks),
	}
}

func TestBatchRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	b := sampleBatch("b1")
	if err := s.SaveBatch(ctx, b); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.GetBatch(ctx, "b1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.FileName != "pagos.csv" || len(got.Checks) != 2 {
		t.Errorf("round trip lost data: %+v", got)
	}
	if got.TotalAmount != 3500.75 {
		t.Errorf("total = %v, want 3500.75", got.TotalAmount)
	}

	if _, err := s.GetBatch(ctx, "nope"); err != ErrNotFound {
		t.Errorf("missing batch error = %v, want ErrNotFound", err)
	}
}

func TestListBatchesNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	older := sampleBatch("old")
	older.UploadedAt = "2026-08-29T10:00:00Z"
	newer := sampleBatch("new")
	newer.UploadedAt = "2026-08-30T10:00:00Z"
	if err := s.SaveBatch(ctx, older); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveBatch(ctx, newer); err != nil {
		t.Fatal(err)
	}

	batches, err := s.ListBatches(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(batches) != 2 || batches[0].ID != "new" || batches[1].ID != "old" {
		t.Errorf("order wrong: %v, %v", batches[0].ID, batches[1].ID)
	}
}

func TestDeleteBatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveBatch(ctx, sampleBatch("b1")); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteBatch(ctx, "b1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetBatch(ctx, "b1"); err != ErrNotFound {
		t.Errorf("batch still present after delete: %v", err)
	}
	if err := s.DeleteBatch(ctx, "b1"); err != ErrNotFound {
		t.Errorf("double delete error = %v, want ErrNotFound", err)
	}
}

func TestUpdateCheckStatuses(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveBatch(ctx, sampleBatch("b1")); err != nil {
		t.Fatal(err)
	}

	outcomes := map[string]bool{"b1-1": true, "b1-2": false}
	if err := s.UpdateCheckStatuses(ctx, "b1", outcomes, "2026-08-30T11:00:00Z", "2026-08-30T11:00:00Z"); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := s.GetBatch(ctx, "b1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Checks[0].Status != model.StatusSent || got.Checks[0].SentAt != "2026-08-30T11:00:00Z" {
		t.Errorf("sent check wrong: %+v", got.Checks[0])
	}
	if got.Checks[1].Status != model.StatusFailed || got.Checks[1].SentAt != "" {
		t.Errorf("failed check wrong: %+v", got.Checks[1])
	}
}

func TestMarkProcessingAndReset(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveBatch(ctx, sampleBatch("b1")); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkChecksProcessing(ctx, "b1", []string{"b1-1"}, "2026-08-30T11:00:00Z"); err != nil {
		t.Fatal(err)
	}

	got, _ := s.GetBatch(ctx, "b1")
	if got.Checks[0].Status != model.StatusProcessing {
		t.Errorf("status = %q, want processing", got.Checks[0].Status)
	}
	if got.Checks[1].Status != model.StatusPending {
		t.Errorf("untouched check changed: %q", got.Checks[1].Status)
	}

	n, err := s.ResetCheckStatuses(ctx, "2026-08-30T12:00:00Z")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if n != 1 {
		t.Errorf("reset count = %d, want 1", n)
	}
	got, _ = s.GetBatch(ctx, "b1")
	for _, c := range got.Checks {
		if c.Status != model.StatusPending {
			t.Errorf("check %s not reset: %q", c.ID, c.Status)
		}
	}
}

func TestTransferBatchRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	transfers := []model.TransferEntry{
		{ID: "t1-1", ProviderName: "Servicio SA", CUIT: "30-11111111-2", CBU: "0070999030000012345678", Amount: 9000, PaymentDate: "05/03/2026", Status: model.StatusPending},
	}
	b := &model.TransferBatch{
		ID:          "t1",
		FileName:    "transferencias.csv",
		UploadedAt:  "2026-08-30T10:00:00Z",
		Transfers:   transfers,
		TotalAmount: model.SumTransferAmounts(transfers),
	}
	if err := s.SaveTransferBatch(ctx, b); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.GetTransferBatch(ctx, "t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Transfers[0].CBU != "0070999030000012345678" {
		t.Errorf("round trip lost CBU: %+v", got.Transfers[0])
	}

	if err := s.UpdateTransferStatuses(ctx, "t1", map[string]bool{"t1-1": true}, "2026-08-30T11:00:00Z", "2026-08-30T11:00:00Z"); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetTransferBatch(ctx, "t1")
	if got.Transfers[0].Status != model.StatusSent {
		t.Errorf("transfer not marked sent: %+v", got.Transfers[0])
	}

	if err := s.DeleteTransferBatch(ctx, "t1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetTransferBatch(ctx, "t1"); err != ErrNotFound {
		t.Errorf("transfer batch still present: %v", err)
	}
}
