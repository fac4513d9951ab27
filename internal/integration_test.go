package internal_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"obligation_manager/internal/api"
	"obligation_manager/internal/domain"
	"obligation_manager/internal/processor"
	"obligation_manager/internal/repository/memory"
	"obligation_manager/pkg/crypto"
	"obligation_manager/pkg/metrics"

	"github.com/shopspring/decimal"
)

type testEnv struct {
	obligationRepo *memory.ObligationRepository
	txRepo         *memory.TransactionRepository

	processor *processor.ObligationProcessor
	handler   *api.APIHandler
	signer    *crypto.Signer
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	obligationRepo := memory.NewObligationRepository()
	txRepo := memory.NewTransactionRepository()

	logger := slog.Default()
	metricsCollector := metrics.NewMetricsCollector(nil)
	signer := crypto.NewSigner("test-secret", nil)

	proc := processor.NewObligationProcessor(obligationRepo, txRepo, metricsCollector, nil, logger)
	handler := api.NewAPIHandler(proc, metricsCollector, signer, logger)

	return &testEnv{
		obligationRepo: obligationRepo,
		txRepo:         txRepo,
		processor:      proc,
		handler:        handler,
		signer:         signer,
	}
}

func monthlyCreateRequest(workspaceID string) api.CreateObligationRequest {
	dom := 15
	return api.CreateObligationRequest{
		WorkspaceID: workspaceID,
		AccountID:   "acc1",
		CategoryID:  "cat1",
		Kind:        domain.KindExpense,
		Amount:      decimal.NewFromInt(100),
		Currency:    "USD",
		Schedule: domain.Schedule{
			Frequency:  domain.FrequencyMonthly,
			Interval:   1,
			DayOfMonth: &dom,
		},
		ValidFrom: "2024-01-15",
	}
}

func callCreate(t *testing.T, env *testEnv, req api.CreateObligationRequest) (*domain.Obligation, int) {
	t.Helper()
	b, _ := json.Marshal(req)
	r := httptest.NewRequest("POST", "/api/v1/obligations", bytes.NewReader(b))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	env.handler.CreateObligationHandler(w, r)
	code := w.Result().StatusCode

	if code >= 200 && code < 300 {
		var o domain.Obligation
		if err := json.NewDecoder(w.Body).Decode(&o); err != nil {
			t.Fatalf("decode success response failed: %v", err)
		}
		return &o, code
	}
	return nil, code
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) api.ErrorResponse {
	t.Helper()
	var er api.ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&er); err != nil {
		t.Fatalf("decode error response failed: %v", err)
	}
	return er
}

func TestIntegration_CreateObligation(t *testing.T) {
	env := setup(t)

	o, code := callCreate(t, env, monthlyCreateRequest("ws1"))
	if code != 201 {
		t.Fatalf("expected 201, got %d", code)
	}
	if o == nil || o.ID == "" {
		t.Fatal("expected created obligation with an id")
	}
	if !o.NextRunDate.Equal(time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected next run date 2024-01-15, got %v", o.NextRunDate)
	}

	stored, err := env.obligationRepo.GetByID(context.Background(), o.ID)
	if err != nil {
		t.Fatalf("obligation not persisted: %v", err)
	}
	if stored.Version != 1 {
		t.Fatalf("expected version 1, got %d", stored.Version)
	}
}

func TestIntegration_CreateTransferRejected(t *testing.T) {
	env := setup(t)

	req := monthlyCreateRequest("ws1")
	req.Kind = domain.KindTransfer

	b, _ := json.Marshal(req)
	r := httptest.NewRequest("POST", "/api/v1/obligations", bytes.NewReader(b))
	w := httptest.NewRecorder()
	env.handler.CreateObligationHandler(w, r)

	if w.Result().StatusCode != 400 {
		t.Fatalf("expected 400 for transfer kind, got %d", w.Result().StatusCode)
	}
	if er := decodeError(t, w); er.Code != "TRANSFER_NOT_ALLOWED" {
		t.Fatalf("expected TRANSFER_NOT_ALLOWED, got %s", er.Code)
	}
}

func TestIntegration_CreateInvalidSchedule(t *testing.T) {
	env := setup(t)

	req := monthlyCreateRequest("ws1")
	req.Schedule = domain.Schedule{Frequency: domain.FrequencyWeekly, Interval: 1}

	b, _ := json.Marshal(req)
	r := httptest.NewRequest("POST", "/api/v1/obligations", bytes.NewReader(b))
	w := httptest.NewRecorder()
	env.handler.CreateObligationHandler(w, r)

	if w.Result().StatusCode != 400 {
		t.Fatalf("expected 400 for missing anchor, got %d", w.Result().StatusCode)
	}
	if er := decodeError(t, w); er.Code != "INVALID_SCHEDULE" {
		t.Fatalf("expected INVALID_SCHEDULE, got %s", er.Code)
	}
}

func TestIntegration_PauseTwiceConflicts(t *testing.T) {
	env := setup(t)

	o, _ := callCreate(t, env, monthlyCreateRequest("ws1"))

	body, _ := json.Marshal(map[string]string{"id": o.ID})

	w := httptest.NewRecorder()
	env.handler.PauseObligationHandler(w, httptest.NewRequest("POST", "/api/v1/obligations/pause", bytes.NewReader(body)))
	if w.Result().StatusCode != 200 {
		t.Fatalf("expected 200 on first pause, got %d", w.Result().StatusCode)
	}

	w = httptest.NewRecorder()
	env.handler.PauseObligationHandler(w, httptest.NewRequest("POST", "/api/v1/obligations/pause", bytes.NewReader(body)))
	if w.Result().StatusCode != 409 {
		t.Fatalf("expected 409 on second pause, got %d", w.Result().StatusCode)
	}
	if er := decodeError(t, w); er.Code != "ALREADY_PAUSED" {
		t.Fatalf("expected ALREADY_PAUSED, got %s", er.Code)
	}
}

func TestIntegration_ResumeActiveConflicts(t *testing.T) {
	env := setup(t)

	o, _ := callCreate(t, env, monthlyCreateRequest("ws1"))
	body, _ := json.Marshal(map[string]string{"id": o.ID})

	w := httptest.NewRecorder()
	env.handler.ResumeObligationHandler(w, httptest.NewRequest("POST", "/api/v1/obligations/resume", bytes.NewReader(body)))
	if w.Result().StatusCode != 409 {
		t.Fatalf("expected 409 resuming an active obligation, got %d", w.Result().StatusCode)
	}
	if er := decodeError(t, w); er.Code != "ALREADY_ACTIVE" {
		t.Fatalf("expected ALREADY_ACTIVE, got %s", er.Code)
	}
}

func TestIntegration_ArchivedRejectsLifecycle(t *testing.T) {
	env := setup(t)

	o, _ := callCreate(t, env, monthlyCreateRequest("ws1"))
	body, _ := json.Marshal(map[string]string{"id": o.ID})

	w := httptest.NewRecorder()
	env.handler.ArchiveObligationHandler(w, httptest.NewRequest("POST", "/api/v1/obligations/archive", bytes.NewReader(body)))
	if w.Result().StatusCode != 200 {
		t.Fatalf("expected 200 on archive, got %d", w.Result().StatusCode)
	}

	w = httptest.NewRecorder()
	env.handler.PauseObligationHandler(w, httptest.NewRequest("POST", "/api/v1/obligations/pause", bytes.NewReader(body)))
	if w.Result().StatusCode != 409 {
		t.Fatalf("expected 409 pausing an archived obligation, got %d", w.Result().StatusCode)
	}
	if er := decodeError(t, w); er.Code != "ARCHIVED" {
		t.Fatalf("expected ARCHIVED, got %s", er.Code)
	}

	// Archiving again stays idempotent.
	w = httptest.NewRecorder()
	env.handler.ArchiveObligationHandler(w, httptest.NewRequest("POST", "/api/v1/obligations/archive", bytes.NewReader(body)))
	if w.Result().StatusCode != 200 {
		t.Fatalf("expected 200 on repeated archive, got %d", w.Result().StatusCode)
	}
}

func TestIntegration_UpdateObligation(t *testing.T) {
	env := setup(t)

	o, _ := callCreate(t, env, monthlyCreateRequest("ws1"))

	newAmount := decimal.NewFromInt(250)
	body, _ := json.Marshal(api.UpdateObligationRequest{ID: o.ID, Amount: &newAmount})

	w := httptest.NewRecorder()
	env.handler.UpdateObligationHandler(w, httptest.NewRequest("PATCH", "/api/v1/obligations", bytes.NewReader(body)))
	if w.Result().StatusCode != 200 {
		t.Fatalf("expected 200, got %d", w.Result().StatusCode)
	}

	var updated domain.Obligation
	if err := json.NewDecoder(w.Body).Decode(&updated); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !updated.Amount.Equal(newAmount) {
		t.Fatalf("expected amount 250, got %s", updated.Amount)
	}
	if !updated.NextRunDate.Equal(o.NextRunDate) {
		t.Fatalf("amount change must not move the next run date, got %v", updated.NextRunDate)
	}
}

func TestIntegration_GetObligationMissingID(t *testing.T) {
	env := setup(t)

	w := httptest.NewRecorder()
	env.handler.GetObligationHandler(w, httptest.NewRequest("GET", "/api/v1/obligations", nil))
	if w.Result().StatusCode != 400 {
		t.Fatalf("expected 400 for missing id, got %d", w.Result().StatusCode)
	}
}

func TestIntegration_GetObligationNotFound(t *testing.T) {
	env := setup(t)

	w := httptest.NewRecorder()
	env.handler.GetObligationHandler(w, httptest.NewRequest("GET", "/api/v1/obligations?id=missing", nil))
	if w.Result().StatusCode != 404 {
		t.Fatalf("expected 404, got %d", w.Result().StatusCode)
	}
}

func TestIntegration_ProcessDueEndpoint(t *testing.T) {
	env := setup(t)

	o, _ := callCreate(t, env, monthlyCreateRequest("ws1"))

	asOf := time.Date(2024, time.February, 20, 0, 0, 0, 0, time.UTC)
	body, _ := json.Marshal(api.ProcessRequest{
		WorkspaceID: "ws1",
		AsOf:        "2024-02-20",
		Signature:   env.signer.SignProcessingTrigger("ws1", asOf.Unix()),
	})
	w := httptest.NewRecorder()
	env.handler.ProcessDueHandler(w, httptest.NewRequest("POST", "/api/v1/process", bytes.NewReader(body)))
	if w.Result().StatusCode != 200 {
		t.Fatalf("expected 200, got %d", w.Result().StatusCode)
	}

	var report processor.ProcessingReport
	if err := json.NewDecoder(w.Body).Decode(&report); err != nil {
		t.Fatalf("decode report failed: %v", err)
	}
	if report.Processed != 1 || report.TotalDue != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}

	txs, _ := env.txRepo.GetByObligationID(context.Background(), o.ID)
	if len(txs) != 1 {
		t.Fatalf("expected 1 materialized transaction, got %d", len(txs))
	}

	stored, _ := env.obligationRepo.GetByID(context.Background(), o.ID)
	if want := time.Date(2024, time.February, 15, 0, 0, 0, 0, time.UTC); !stored.NextRunDate.Equal(want) {
		t.Fatalf("expected next run date %v, got %v", want, stored.NextRunDate)
	}
}

func TestIntegration_ProcessDueRequiresSignature(t *testing.T) {
	env := setup(t)

	callCreate(t, env, monthlyCreateRequest("ws1"))

	// With a signing secret configured, omitting the signature must not
	// bypass verification.
	body, _ := json.Marshal(api.ProcessRequest{WorkspaceID: "ws1", AsOf: "2024-02-20"})
	w := httptest.NewRecorder()
	env.handler.ProcessDueHandler(w, httptest.NewRequest("POST", "/api/v1/process", bytes.NewReader(body)))
	if w.Result().StatusCode != 401 {
		t.Fatalf("expected 401 for missing signature, got %d", w.Result().StatusCode)
	}
	if er := decodeError(t, w); er.Code != "MISSING_SIGNATURE" {
		t.Fatalf("expected MISSING_SIGNATURE, got %s", er.Code)
	}

	txs, _ := env.txRepo.GetByPeriod(context.Background(), "ws1",
		time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.December, 31, 0, 0, 0, 0, time.UTC))
	if len(txs) != 0 {
		t.Fatalf("unauthenticated trigger must not process, got %d transactions", len(txs))
	}
}

func TestIntegration_ProcessDueUnsignedWithoutSecret(t *testing.T) {
	obligationRepo := memory.NewObligationRepository()
	txRepo := memory.NewTransactionRepository()
	proc := processor.NewObligationProcessor(obligationRepo, txRepo, nil, nil, nil)
	handler := api.NewAPIHandler(proc, nil, crypto.NewSigner("", nil), nil)

	env := &testEnv{obligationRepo: obligationRepo, txRepo: txRepo, processor: proc, handler: handler}
	callCreate(t, env, monthlyCreateRequest("ws1"))

	body, _ := json.Marshal(api.ProcessRequest{WorkspaceID: "ws1", AsOf: "2024-02-20"})
	w := httptest.NewRecorder()
	handler.ProcessDueHandler(w, httptest.NewRequest("POST", "/api/v1/process", bytes.NewReader(body)))
	if w.Result().StatusCode != 200 {
		t.Fatalf("expected 200 without a configured secret, got %d", w.Result().StatusCode)
	}
}

func TestIntegration_ProcessDueRejectsBadSignature(t *testing.T) {
	env := setup(t)

	callCreate(t, env, monthlyCreateRequest("ws1"))

	body, _ := json.Marshal(api.ProcessRequest{
		WorkspaceID: "ws1",
		AsOf:        "2024-02-20",
		Signature:   "not-a-valid-signature",
	})
	w := httptest.NewRecorder()
	env.handler.ProcessDueHandler(w, httptest.NewRequest("POST", "/api/v1/process", bytes.NewReader(body)))
	if w.Result().StatusCode != 401 {
		t.Fatalf("expected 401 for bad signature, got %d", w.Result().StatusCode)
	}
}

func TestIntegration_ProcessDueAcceptsValidSignature(t *testing.T) {
	env := setup(t)

	callCreate(t, env, monthlyCreateRequest("ws1"))

	asOf := time.Date(2024, time.February, 20, 0, 0, 0, 0, time.UTC)
	signature := env.signer.SignProcessingTrigger("ws1", asOf.Unix())

	body, _ := json.Marshal(api.ProcessRequest{
		WorkspaceID: "ws1",
		AsOf:        "2024-02-20",
		Signature:   signature,
	})
	w := httptest.NewRecorder()
	env.handler.ProcessDueHandler(w, httptest.NewRequest("POST", "/api/v1/process", bytes.NewReader(body)))
	if w.Result().StatusCode != 200 {
		t.Fatalf("expected 200 for valid signature, got %d", w.Result().StatusCode)
	}
}

func TestIntegration_InvalidRequestValidation(t *testing.T) {
	env := setup(t)

	raw := []byte(`{"workspace_id":"ws1","currency":"usd"}`)
	w := httptest.NewRecorder()
	env.handler.CreateObligationHandler(w, httptest.NewRequest("POST", "/api/v1/obligations", bytes.NewReader(raw)))
	if w.Result().StatusCode != 400 {
		t.Fatalf("expected 400 for invalid request, got %d", w.Result().StatusCode)
	}
}
