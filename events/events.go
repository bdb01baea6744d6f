// Package events decodes the on-chain events the omni402 protocol cares
// about from raw transaction logs: PaymentProcessed and MessageSent on the
// edge chains, and PaymentSettled on the hub chain. Logs emitted by other
// contracts in the same transaction (token transfers, router hops) are
// skipped; a malformed log is treated as "no match", never as a fault.
package events

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

const edgeABIJSON = `[
	{
		"type": "event",
		"name": "PaymentProcessed",
		"inputs": [
			{"name": "paymentId", "type": "bytes32", "indexed": true},
			{"name": "payer", "type": "address", "indexed": true},
			{"name": "merchant", "type": "address", "indexed": false},
			{"name": "amount", "type": "uint256", "indexed": false},
			{"name": "fee", "type": "uint256", "indexed": false}
		]
	},
	{
		"type": "event",
		"name": "MessageSent",
		"inputs": [
			{"name": "guid", "type": "bytes32", "indexed": false},
			{"name": "paymentId", "type": "bytes32", "indexed": true}
		]
	}
]`

const hubABIJSON = `[
	{
		"type": "event",
		"name": "PaymentSettled",
		"inputs": [
			{"name": "paymentId", "type": "bytes32", "indexed": true},
			{"name": "merchant", "type": "address", "indexed": true},
			{"name": "amount", "type": "uint256", "indexed": false}
		]
	}
]`

// EdgeABI and HubABI are the parsed contract ABIs. Exported so callers and
// tests can construct matching logs without duplicating signatures.
var (
	EdgeABI = mustParseABI(edgeABIJSON)
	HubABI  = mustParseABI(hubABIJSON)

	paymentProcessedID = EdgeABI.Events["PaymentProcessed"].ID
	messageSentID      = EdgeABI.Events["MessageSent"].ID
	paymentSettledID   = HubABI.Events["PaymentSettled"].ID
)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}

// PaymentEvent is a decoded PaymentProcessed event. Ephemeral, recomputed
// per verification.
type PaymentEvent struct {
	PaymentID string
	Payer     string
	Merchant  string
	Amount    *big.Int
	Fee       *big.Int
}

// MessageEvent is a decoded MessageSent event carrying the cross-chain
// message identifier.
type MessageEvent struct {
	PaymentID string
	GUID      string
}

// SettledEvent is a decoded hub-chain PaymentSettled event.
type SettledEvent struct {
	PaymentID string
	Merchant  string
	Amount    *big.Int
}

// PaymentSettledTopic returns the hub event signature hash, for building log
// filter queries.
func PaymentSettledTopic() common.Hash {
	return paymentSettledID
}

// DecodeReceiptLogs scans a receipt's logs for the two edge event shapes.
// If a receipt carries more than one matching event of a kind, the first in
// log order wins.
func DecodeReceiptLogs(logs []*ethtypes.Log) (*PaymentEvent, *MessageEvent) {
	var payment *PaymentEvent
	var message *MessageEvent

	for _, lg := range logs {
		if lg == nil || len(lg.Topics) == 0 {
			continue
		}
		if payment == nil {
			if ev, ok := decodePayment(lg); ok {
				payment = ev
				continue
			}
		}
		if message == nil {
			if ev, ok := decodeMessage(lg); ok {
				message = ev
			}
		}
	}

	return payment, message
}

func decodePayment(lg *ethtypes.Log) (*PaymentEvent, bool) {
	if lg.Topics[0] != paymentProcessedID || len(lg.Topics) != 3 {
		return nil, false
	}

	vals, err := EdgeABI.Unpack("PaymentProcessed", lg.Data)
	if err != nil || len(vals) != 3 {
		return nil, false
	}

	merchant, ok := vals[0].(common.Address)
	if !ok {
		return nil, false
	}
	amount, ok := vals[1].(*big.Int)
	if !ok {
		return nil, false
	}
	fee, ok := vals[2].(*big.Int)
	if !ok {
		return nil, false
	}

	return &PaymentEvent{
		PaymentID: lg.Topics[1].Hex(),
		Payer:     common.BytesToAddress(lg.Topics[2].Bytes()).Hex(),
		Merchant:  merchant.Hex(),
		Amount:    amount,
		Fee:       fee,
	}, true
}

func decodeMessage(lg *ethtypes.Log) (*MessageEvent, bool) {
	if lg.Topics[0] != messageSentID || len(lg.Topics) != 2 {
		return nil, false
	}

	vals, err := EdgeABI.Unpack("MessageSent", lg.Data)
	if err != nil || len(vals) != 1 {
		return nil, false
	}

	guid, ok := vals[0].([32]byte)
	if !ok {
		return nil, false
	}

	return &MessageEvent{
		PaymentID: lg.Topics[1].Hex(),
		GUID:      common.Hash(guid).Hex(),
	}, true
}

// DecodeSettled decodes a single hub-chain log as PaymentSettled.
func DecodeSettled(lg ethtypes.Log) (*SettledEvent, bool) {
	if len(lg.Topics) != 3 || lg.Topics[0] != paymentSettledID {
		return nil, false
	}

	vals, err := HubABI.Unpack("PaymentSettled", lg.Data)
	if err != nil || len(vals) != 1 {
		return nil, false
	}

	amount, ok := vals[0].(*big.Int)
	if !ok {
		return nil, false
	}

	return &SettledEvent{
		PaymentID: lg.Topics[1].Hex(),
		Merchant:  common.BytesToAddress(lg.Topics[2].Bytes()).Hex(),
		Amount:    amount,
	}, true
}
