package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Event is a decoded curve log. The concrete type is one of Purchased, Sold,
// Finalized or Unknown.
type Event interface {
	// Log returns the raw log the event was decoded from.
	Log() types.Log
	event()
}

type rawLog struct {
	raw types.Log
}

func (r rawLog) Log() types.Log { return r.raw }
func (rawLog) event()           {}

// Purchased is a TokensPurchased log.
type Purchased struct {
	rawLog
	User      common.Address
	EthAmount *big.Int
	TokensOut *big.Int
}

// Sold is a TokensSold log. EthOut is what the seller was paid, Fee the
// sell fee the curve kept.
type Sold struct {
	rawLog
	User     common.Address
	TokensIn *big.Int
	EthOut   *big.Int
	Fee      *big.Int
}

// Finalized is a CurveFinalized log.
type Finalized struct {
	rawLog
	Pool      common.Address
	LPTokenID *big.Int
}

// Unknown is any log whose topic0 is not a curve event, including ERC-20
// Transfer and Approval logs that share a receipt with a trade.
type Unknown struct {
	rawLog
}

type decodeFunc func(types.Log) (Event, error)

// Decoder dispatches logs to typed decoders by event signature.
type Decoder struct {
	byID map[common.Hash]decodeFunc
}

// NewDecoder builds a Decoder over the curve ABI.
func NewDecoder() *Decoder {
	d := &Decoder{byID: make(map[common.Hash]decodeFunc, 3)}
	d.byID[EventID(EventTokensPurchased)] = decodePurchased
	d.byID[EventID(EventTokensSold)] = decodeSold
	d.byID[EventID(EventCurveFinalized)] = decodeFinalized
	return d
}

// Decode converts lg into a typed Event. Logs without topics or with an
// unrecognised signature decode to Unknown. A recognised signature with a
// malformed payload is an error.
func (d *Decoder) Decode(lg types.Log) (Event, error) {
	if len(lg.Topics) == 0 {
		return Unknown{rawLog{lg}}, nil
	}
	fn, ok := d.byID[lg.Topics[0]]
	if !ok {
		return Unknown{rawLog{lg}}, nil
	}
	return fn(lg)
}

// ReceiptEvents decodes the logs in receipt emitted by curve, skipping
// Unknown ones.
func (d *Decoder) ReceiptEvents(receipt *types.Receipt, curve common.Address) ([]Event, error) {
	if receipt == nil {
		return nil, nil
	}
	var events []Event
	for _, lg := range receipt.Logs {
		if lg == nil || lg.Address != curve {
			continue
		}
		ev, err := d.Decode(*lg)
		if err != nil {
			return nil, err
		}
		if _, unknown := ev.(Unknown); unknown {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func decodePurchased(lg types.Log) (Event, error) {
	if len(lg.Topics) < 2 {
		return nil, fmt.Errorf("chain: %s: missing indexed user", EventTokensPurchased)
	}
	vals, err := curveABI.Events[EventTokensPurchased].Inputs.NonIndexed().Unpack(lg.Data)
	if err != nil {
		return nil, fmt.Errorf("chain: unpack %s: %w", EventTokensPurchased, err)
	}
	if len(vals) != 2 {
		return nil, fmt.Errorf("chain: %s: expected 2 values, got %d", EventTokensPurchased, len(vals))
	}
	return Purchased{
		rawLog:    rawLog{lg},
		User:      common.BytesToAddress(lg.Topics[1].Bytes()),
		EthAmount: vals[0].(*big.Int),
		TokensOut: vals[1].(*big.Int),
	}, nil
}

func decodeSold(lg types.Log) (Event, error) {
	if len(lg.Topics) < 2 {
		return nil, fmt.Errorf("chain: %s: missing indexed user", EventTokensSold)
	}
	vals, err := curveABI.Events[EventTokensSold].Inputs.NonIndexed().Unpack(lg.Data)
	if err != nil {
		return nil, fmt.Errorf("chain: unpack %s: %w", EventTokensSold, err)
	}
	if len(vals) != 3 {
		return nil, fmt.Errorf("chain: %s: expected 3 values, got %d", EventTokensSold, len(vals))
	}
	return Sold{
		rawLog:   rawLog{lg},
		User:     common.BytesToAddress(lg.Topics[1].Bytes()),
		TokensIn: vals[0].(*big.Int),
		EthOut:   vals[1].(*big.Int),
		Fee:      vals[2].(*big.Int),
	}, nil
}

func decodeFinalized(lg types.Log) (Event, error) {
	if len(lg.Topics) < 2 {
		return nil, fmt.Errorf("chain: %s: missing indexed pool", EventCurveFinalized)
	}
	vals, err := curveABI.Events[EventCurveFinalized].Inputs.NonIndexed().Unpack(lg.Data)
	if err != nil {
		return nil, fmt.Errorf("chain: unpack %s: %w", EventCurveFinalized, err)
	}
	if len(vals) != 1 {
		return nil, fmt.Errorf("chain: %s: expected 1 value, got %d", EventCurveFinalized, len(vals))
	}
	return Finalized{
		rawLog:    rawLog{lg},
		Pool:      common.BytesToAddress(lg.Topics[1].Bytes()),
		LPTokenID: vals[0].(*big.Int),
	}, nil
}
