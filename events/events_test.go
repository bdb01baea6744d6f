package events

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

var (
	testPaymentID = common.HexToHash("0x1111111111111111111111111111111111111111111111111111111111111111")
	testGUID      = common.HexToHash("0x2222222222222222222222222222222222222222222222222222222222222222")
	testPayer     = common.HexToAddress("0xE4d365a5a8fC0DCEE9E3C5985D7FcBab8B4A0fE1")
	testMerchant  = common.HexToAddress("0x384Aa214be0B279cbf211e9b2C992d8633F77848")
)

func paymentLog(t *testing.T, paymentID common.Hash, payer common.Address, merchant common.Address, amount, fee *big.Int) *ethtypes.Log {
	t.Helper()

	data, err := EdgeABI.Events["PaymentProcessed"].Inputs.NonIndexed().Pack(merchant, amount, fee)
	if err != nil {
		t.Fatalf("pack PaymentProcessed: %v", err)
	}
	return &ethtypes.Log{
		Topics: []common.Hash{
			EdgeABI.Events["PaymentProcessed"].ID,
			paymentID,
			common.BytesToHash(payer.Bytes()),
		},
		Data: data,
	}
}

func messageLog(t *testing.T, paymentID, guid common.Hash) *ethtypes.Log {
	t.Helper()

	data, err := EdgeABI.Events["MessageSent"].Inputs.NonIndexed().Pack([32]byte(guid))
	if err != nil {
		t.Fatalf("pack MessageSent: %v", err)
	}
	return &ethtypes.Log{
		Topics: []common.Hash{
			EdgeABI.Events["MessageSent"].ID,
			paymentID,
		},
		Data: data,
	}
}

func transferLog() *ethtypes.Log {
	// An unrelated ERC20 Transfer emitted in the same transaction.
	return &ethtypes.Log{
		Topics: []common.Hash{
			common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"),
			common.BytesToHash(testPayer.Bytes()),
			common.BytesToHash(testMerchant.Bytes()),
		},
		Data: common.LeftPadBytes(big.NewInt(100000).Bytes(), 32),
	}
}

func TestDecodeReceiptLogs(t *testing.T) {
	amount := big.NewInt(100000)
	fee := big.NewInt(700)

	logs := []*ethtypes.Log{
		transferLog(),
		paymentLog(t, testPaymentID, testPayer, testMerchant, amount, fee),
		messageLog(t, testPaymentID, testGUID),
	}

	payment, message := DecodeReceiptLogs(logs)
	if payment == nil {
		t.Fatal("expected payment event")
	}
	if payment.PaymentID != testPaymentID.Hex() {
		t.Errorf("paymentId = %s, want %s", payment.PaymentID, testPaymentID.Hex())
	}
	if payment.Payer != testPayer.Hex() {
		t.Errorf("payer = %s, want %s", payment.Payer, testPayer.Hex())
	}
	if payment.Merchant != testMerchant.Hex() {
		t.Errorf("merchant = %s, want %s", payment.Merchant, testMerchant.Hex())
	}
	if payment.Amount.Cmp(amount) != 0 {
		t.Errorf("amount = %s, want %s", payment.Amount, amount)
	}
	if payment.Fee.Cmp(fee) != 0 {
		t.Errorf("fee = %s, want %s", payment.Fee, fee)
	}

	if message == nil {
		t.Fatal("expected message event")
	}
	if message.GUID != testGUID.Hex() {
		t.Errorf("guid = %s, want %s", message.GUID, testGUID.Hex())
	}
	if message.PaymentID != testPaymentID.Hex() {
		t.Errorf("message paymentId = %s, want %s", message.PaymentID, testPaymentID.Hex())
	}
}

func TestDecodeReceiptLogsNoMatch(t *testing.T) {
	payment, message := DecodeReceiptLogs([]*ethtypes.Log{transferLog(), nil, {}})
	if payment != nil {
		t.Errorf("expected no payment event, got %+v", payment)
	}
	if message != nil {
		t.Errorf("expected no message event, got %+v", message)
	}
}

func TestDecodeReceiptLogsFirstMatchWins(t *testing.T) {
	decoyID := common.HexToHash("0x9999999999999999999999999999999999999999999999999999999999999999")

	logs := []*ethtypes.Log{
		paymentLog(t, testPaymentID, testPayer, testMerchant, big.NewInt(100000), big.NewInt(0)),
		paymentLog(t, decoyID, testPayer, testMerchant, big.NewInt(1), big.NewInt(0)),
	}

	payment, _ := DecodeReceiptLogs(logs)
	if payment == nil {
		t.Fatal("expected payment event")
	}
	if payment.PaymentID != testPaymentID.Hex() {
		t.Errorf("decoy event displaced the first match: got %s", payment.PaymentID)
	}
}

func TestDecodeReceiptLogsMalformedData(t *testing.T) {
	// Right topic, truncated data. Must be skipped, not a fault.
	lg := paymentLog(t, testPaymentID, testPayer, testMerchant, big.NewInt(1), big.NewInt(1))
	lg.Data = lg.Data[:10]

	payment, _ := DecodeReceiptLogs([]*ethtypes.Log{lg})
	if payment != nil {
		t.Errorf("expected malformed log to be skipped, got %+v", payment)
	}
}

func TestDecodeReceiptLogsWrongTopicCount(t *testing.T) {
	lg := paymentLog(t, testPaymentID, testPayer, testMerchant, big.NewInt(1), big.NewInt(1))
	lg.Topics = lg.Topics[:2]

	payment, _ := DecodeReceiptLogs([]*ethtypes.Log{lg})
	if payment != nil {
		t.Errorf("expected log with missing topics to be skipped, got %+v", payment)
	}
}

func TestDecodeSettled(t *testing.T) {
	amount := big.NewInt(100000)
	data, err := HubABI.Events["PaymentSettled"].Inputs.NonIndexed().Pack(amount)
	if err != nil {
		t.Fatalf("pack PaymentSettled: %v", err)
	}

	lg := ethtypes.Log{
		Topics: []common.Hash{
			HubABI.Events["PaymentSettled"].ID,
			testPaymentID,
			common.BytesToHash(testMerchant.Bytes()),
		},
		Data: data,
	}

	ev, ok := DecodeSettled(lg)
	if !ok {
		t.Fatal("expected settled event to decode")
	}
	if ev.PaymentID != testPaymentID.Hex() {
		t.Errorf("paymentId = %s, want %s", ev.PaymentID, testPaymentID.Hex())
	}
	if ev.Merchant != testMerchant.Hex() {
		t.Errorf("merchant = %s, want %s", ev.Merchant, testMerchant.Hex())
	}
	if ev.Amount.Cmp(amount) != 0 {
		t.Errorf("amount = %s, want %s", ev.Amount, amount)
	}

	if _, ok := DecodeSettled(ethtypes.Log{}); ok {
		t.Error("expected empty log to not decode")
	}
}
