package abi

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/tokenlytics/engine-go/events"
)

// Decode errors
var (
	// ErrUnknownSchema is returned for logs whose topic0 is not in the
	// schema table. Expected in normal operation - the feed carries
	// events this engine does not model (e.g. Approval).
	ErrUnknownSchema = errors.New("unknown event schema")

	// ErrMalformed is returned when a log matches a known schema but its
	// topics or data do not fit the declared layout. Suggests a schema
	// mismatch and is surfaced at error level, but only fails that entry.
	ErrMalformed = errors.New("malformed event data")
)

// DecodeError annotates a decode failure with the offending log's identity
type DecodeError struct {
	BlockNumber uint64
	TxHash      common.Hash
	LogIndex    uint
	Address     common.Address
	Topic0      common.Hash
	Err         error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode log %s[%d] (block %d, topic0 %s): %v",
		e.TxHash.Hex(), e.LogIndex, e.BlockNumber, e.Topic0.Hex(), e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode maps a raw log entry to a typed event. blockTime stamps the
// event with its block's timestamp (logs do not carry one).
//
// Decoding is a pure function of the log: the same entry always yields
// the same event. Unknown topic0 yields ErrUnknownSchema; a log whose
// payload does not fit its schema yields ErrMalformed. Both are wrapped
// in a *DecodeError.
func Decode(log *types.Log, blockTime time.Time) (events.ChainEvent, error) {
	if len(log.Topics) == 0 {
		return nil, decodeErr(log, common.Hash{}, ErrMalformed, "log has no topics")
	}

	topic0 := log.Topics[0]
	schema, ok := schemaTable[topic0]
	if !ok {
		return nil, decodeErr(log, topic0, ErrUnknownSchema, "")
	}

	ref := events.LogRef{
		TxHash:      log.TxHash,
		LogIndex:    log.Index,
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash,
		BlockTime:   blockTime,
	}

	event, err := schema.decode(log, ref)
	if err != nil {
		return nil, decodeErr(log, topic0, err, "")
	}

	return event, nil
}

func decodeErr(log *types.Log, topic0 common.Hash, err error, detail string) *DecodeError {
	if detail != "" {
		err = fmt.Errorf("%w: %s", err, detail)
	}
	return &DecodeError{
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
		LogIndex:    log.Index,
		Address:     log.Address,
		Topic0:      topic0,
		Err:         err,
	}
}

// topicAddress decodes an indexed address parameter from topic position i.
// An address occupies the lower 20 bytes; nonzero upper bytes mean the
// value does not fit the declared width.
func topicAddress(log *types.Log, i int) (common.Address, error) {
	if i >= len(log.Topics) {
		return common.Address{}, fmt.Errorf("%w: missing topic %d", ErrMalformed, i)
	}
	topic := log.Topics[i]
	for _, b := range topic[:12] {
		if b != 0 {
			return common.Address{}, fmt.Errorf("%w: topic %d is not an address", ErrMalformed, i)
		}
	}
	return common.BytesToAddress(topic[12:]), nil
}

// topicUint decodes an indexed uint256 parameter from topic position i
func topicUint(log *types.Log, i int) (*big.Int, error) {
	if i >= len(log.Topics) {
		return nil, fmt.Errorf("%w: missing topic %d", ErrMalformed, i)
	}
	return new(big.Int).SetBytes(log.Topics[i][:]), nil
}

// dataWord returns the 32-byte word at word index i of the log data
func dataWord(log *types.Log, i int) ([]byte, error) {
	offset := i * 32
	if len(log.Data) < offset+32 {
		return nil, fmt.Errorf("%w: data too short for word %d", ErrMalformed, i)
	}
	return log.Data[offset : offset+32], nil
}

// dataUint decodes a non-indexed uint256 parameter at word index i
func dataUint(log *types.Log, i int) (*big.Int, error) {
	word, err := dataWord(log, i)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(word), nil
}

// dataBool decodes a non-indexed bool parameter at word index i.
// Anything other than 0 or 1 does not fit the declared width.
func dataBool(log *types.Log, i int) (bool, error) {
	word, err := dataWord(log, i)
	if err != nil {
		return false, err
	}
	for _, b := range word[:31] {
		if b != 0 {
			return false, fmt.Errorf("%w: word %d is not a bool", ErrMalformed, i)
		}
	}
	switch word[31] {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("%w: word %d is not a bool", ErrMalformed, i)
	}
}

// dataString decodes a non-indexed dynamic string parameter whose offset
// word sits at word index i
func dataString(log *types.Log, i int) (string, error) {
	offsetWord, err := dataUint(log, i)
	if err != nil {
		return "", err
	}
	if !offsetWord.IsUint64() || offsetWord.Uint64() > uint64(len(log.Data)) {
		return "", fmt.Errorf("%w: string offset out of range at word %d", ErrMalformed, i)
	}
	offset := int(offsetWord.Uint64())
	if len(log.Data) < offset+32 {
		return "", fmt.Errorf("%w: data too short for string length at word %d", ErrMalformed, i)
	}

	lengthWord := new(big.Int).SetBytes(log.Data[offset : offset+32])
	if !lengthWord.IsUint64() || lengthWord.Uint64() > uint64(len(log.Data)) {
		return "", fmt.Errorf("%w: string length out of range at word %d", ErrMalformed, i)
	}
	length := int(lengthWord.Uint64())
	if len(log.Data) < offset+32+length {
		return "", fmt.Errorf("%w: data too short for string body at word %d", ErrMalformed, i)
	}

	return string(log.Data[offset+32 : offset+32+length]), nil
}

// unixTime converts a uint256 timestamp to time.Time, rejecting values
// outside the representable range
func unixTime(ts *big.Int) (time.Time, error) {
	if !ts.IsInt64() || ts.Int64() < 0 || ts.Int64() > math.MaxInt32*2 {
		return time.Time{}, fmt.Errorf("%w: timestamp out of range", ErrMalformed)
	}
	return time.Unix(ts.Int64(), 0).UTC(), nil
}
