package settlement

import (
	"context"
	"errors"
	"testing"

	"github.com/omni402/omnitab/store"
	"github.com/omni402/omnitab/types"
)

const (
	testInvoiceID = "0x1111111111111111111111111111111111111111111111111111111111111111"
	testGUID      = "0x2222222222222222222222222222222222222222222222222222222222222222"
	testEdgeTx    = "0xAAAA000000000000000000000000000000000000000000000000000000000000"
	testPayer     = "0xE4d365a5a8fC0DCEE9E3C5985D7FcBab8B4A0fE1"
	testMerchant  = "0x384Aa214be0B279cbf211e9b2C992d8633F77848"
)

type fakeVerifier struct {
	resp  *types.VerifyResponse
	calls int
}

func (f *fakeVerifier) Verify(_ context.Context, _ *types.VerifyRequest) *types.VerifyResponse {
	f.calls++
	return f.resp
}

type failingStore struct {
	store.Store
	findErr      error
	createErr    error
	missFirst    bool
	findAttempts int
}

func (f *failingStore) FindByEdgeTx(ctx context.Context, edgeTxHash string) (*types.Settlement, error) {
	f.findAttempts++
	if f.findErr != nil {
		return nil, f.findErr
	}
	if f.missFirst && f.findAttempts == 1 {
		return nil, nil
	}
	return f.Store.FindByEdgeTx(ctx, edgeTxHash)
}

func (f *failingStore) Create(ctx context.Context, s *types.Settlement) (*types.Settlement, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.Store.Create(ctx, s)
}

func settleRequest() *types.VerifyRequest {
	return &types.VerifyRequest{
		X402Version: types.X402Version,
		PaymentPayload: types.PaymentPayload{
			X402Version: types.X402Version,
			Scheme:      types.Scheme,
			Network:     "base",
			Payload: types.EdgePayload{
				EdgeTxHash:  testEdgeTx,
				LzMessageID: testGUID,
				InvoiceID:   testInvoiceID,
				SourceChain: 42161,
			},
		},
		PaymentRequirements: types.PaymentRequirements{
			Scheme:            types.Scheme,
			Network:           "base",
			MaxAmountRequired: "100000",
			PayTo:             testMerchant,
			Resource:          "https://merchant.example/api/premium",
		},
	}
}

func validVerifier() *fakeVerifier {
	return &fakeVerifier{resp: &types.VerifyResponse{IsValid: true, Payer: testPayer}}
}

func TestSettleRecordsVerifiedPayment(t *testing.T) {
	st := store.NewMemoryStore()
	svc := NewSettlementService(validVerifier(), st, nil, nil)

	resp := svc.Settle(context.Background(), settleRequest())
	if !resp.Success {
		t.Fatalf("expected success, got reason %q", resp.ErrorReason)
	}
	if resp.Transaction != "0xaaaa000000000000000000000000000000000000000000000000000000000000" {
		t.Errorf("transaction = %q, want lowercased edge tx hash", resp.Transaction)
	}
	if resp.Network != "base" {
		t.Errorf("network = %q, want base", resp.Network)
	}

	rec, err := st.FindByEdgeTx(context.Background(), testEdgeTx)
	if err != nil || rec == nil {
		t.Fatalf("settlement record not written: rec=%v err=%v", rec, err)
	}
	if rec.Status != types.SettlementPending {
		t.Errorf("status = %q, want pending", rec.Status)
	}
	if rec.Amount != "100000" {
		t.Errorf("amount = %q, want 100000", rec.Amount)
	}
	if rec.InvoiceID != testInvoiceID {
		t.Errorf("invoiceId = %q, want %q", rec.InvoiceID, testInvoiceID)
	}
	if rec.ID == "" {
		t.Error("record id must be assigned")
	}
}

func TestSettleInvalidPaymentWritesNothing(t *testing.T) {
	st := store.NewMemoryStore()
	verifier := &fakeVerifier{resp: &types.VerifyResponse{
		IsValid:       false,
		InvalidReason: types.ReasonAmountInsufficient,
		Payer:         testPayer,
	}}
	svc := NewSettlementService(verifier, st, nil, nil)

	resp := svc.Settle(context.Background(), settleRequest())
	if resp.Success {
		t.Fatal("invalid payment must not settle")
	}
	if resp.ErrorReason != types.ReasonAmountInsufficient {
		t.Errorf("errorReason = %q, want amount_insufficient", resp.ErrorReason)
	}
	if resp.Transaction != "" {
		t.Errorf("transaction = %q, want empty", resp.Transaction)
	}
	if resp.Payer != testPayer {
		t.Errorf("payer = %q, want %q", resp.Payer, testPayer)
	}

	rec, _ := st.FindByEdgeTx(context.Background(), testEdgeTx)
	if rec != nil {
		t.Errorf("store must stay untouched, found %+v", rec)
	}
}

func TestSettleReplayIsIdempotent(t *testing.T) {
	st := store.NewMemoryStore()
	svc := NewSettlementService(validVerifier(), st, nil, nil)

	first := svc.Settle(context.Background(), settleRequest())
	second := svc.Settle(context.Background(), settleRequest())

	if !first.Success || !second.Success {
		t.Fatalf("both settles must succeed: first=%+v second=%+v", first, second)
	}
	if first.Transaction != second.Transaction {
		t.Errorf("replay must return the same record: %q vs %q", first.Transaction, second.Transaction)
	}

	list, err := st.ListByMerchant(context.Background(), testMerchant, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected a single settlement record, got %d", len(list))
	}
}

func TestSettleReplayWithDifferentCasing(t *testing.T) {
	st := store.NewMemoryStore()
	svc := NewSettlementService(validVerifier(), st, nil, nil)

	svc.Settle(context.Background(), settleRequest())

	req := settleRequest()
	req.PaymentPayload.Payload.EdgeTxHash = "0xaAaA000000000000000000000000000000000000000000000000000000000000"
	resp := svc.Settle(context.Background(), req)
	if !resp.Success {
		t.Fatalf("replay with different casing must converge, got %q", resp.ErrorReason)
	}

	list, _ := st.ListByMerchant(context.Background(), testMerchant, 0)
	if len(list) != 1 {
		t.Fatalf("expected a single settlement record, got %d", len(list))
	}
}

func TestSettleConvergesOnDuplicateRace(t *testing.T) {
	st := store.NewMemoryStore()

	// Pre-seed the record the "concurrent winner" would have created, then
	// force Create to report the uniqueness violation.
	winner, err := st.Create(context.Background(), &types.Settlement{
		InvoiceID:       testInvoiceID,
		SourceChain:     42161,
		PayerAddress:    "0xe4d365a5a8fc0dcee9e3c5985d7fcbab8b4a0fe1",
		MerchantAddress: "0x384aa214be0b279cbf211e9b2c992d8633f77848",
		Amount:          "100000",
		EdgeTxHash:      "0xaaaa000000000000000000000000000000000000000000000000000000000000",
		LzMessageID:     testGUID,
		Status:          types.SettlementPending,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	// The first lookup misses, Create loses the race, and the re-read
	// finds the winner's record.
	st2 := &failingStore{Store: st, createErr: store.ErrDuplicateEdgeTx, missFirst: true}
	svc := NewSettlementService(validVerifier(), st2, nil, nil)

	resp := svc.Settle(context.Background(), settleRequest())
	if !resp.Success {
		t.Fatalf("expected convergence on the winner, got %q", resp.ErrorReason)
	}
	if resp.Transaction != winner.EdgeTxHash {
		t.Errorf("transaction = %q, want %q", resp.Transaction, winner.EdgeTxHash)
	}
	if resp.Payer != winner.PayerAddress {
		t.Errorf("payer = %q, want %q", resp.Payer, winner.PayerAddress)
	}
}

func TestSettleStoreErrorIsNetworkError(t *testing.T) {
	st := &failingStore{Store: store.NewMemoryStore(), findErr: errors.New("dynamodb unavailable")}
	svc := NewSettlementService(validVerifier(), st, nil, nil)

	resp := svc.Settle(context.Background(), settleRequest())
	if resp.Success {
		t.Fatal("store failure must not settle")
	}
	if resp.ErrorReason != types.ReasonNetworkError {
		t.Errorf("errorReason = %q, want network_error", resp.ErrorReason)
	}
}

func TestSettleCreateErrorIsNetworkError(t *testing.T) {
	st := &failingStore{Store: store.NewMemoryStore(), createErr: errors.New("write throttled")}
	svc := NewSettlementService(validVerifier(), st, nil, nil)

	resp := svc.Settle(context.Background(), settleRequest())
	if resp.Success {
		t.Fatal("store failure must not settle")
	}
	if resp.ErrorReason != types.ReasonNetworkError {
		t.Errorf("errorReason = %q, want network_error", resp.ErrorReason)
	}
}
