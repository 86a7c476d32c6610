package dex

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// SwapLog is a decoded pair Swap event.
type SwapLog struct {
	Pair        common.Address
	Sender      common.Address
	To          common.Address
	Amount0In   *big.Int
	Amount1In   *big.Int
	Amount0Out  *big.Int
	Amount1Out  *big.Int
	TxHash      common.Hash
	BlockNumber uint64
	LogIndex    uint
}

// SwapTopic returns topic0 of the pair Swap event.
func SwapTopic() (common.Hash, error) {
	pairABI, err := PairABI()
	if err != nil {
		return common.Hash{}, err
	}
	return pairABI.Events[EventSwap].ID, nil
}

// DecodeSwap decodes a raw log emitted by a pair contract.
func DecodeSwap(log types.Log) (SwapLog, error) {
	pairABI, err := PairABI()
	if err != nil {
		return SwapLog{}, err
	}
	event := pairABI.Events[EventSwap]
	if len(log.Topics) == 0 || log.Topics[0] != event.ID {
		return SwapLog{}, fmt.Errorf("not a swap log: tx %s index %d", log.TxHash.Hex(), log.Index)
	}

	indexedTopics, err := indexedTopics(event, log.Topics)
	if err != nil {
		return SwapLog{}, err
	}
	var indexed struct {
		Sender common.Address
		To     common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return SwapLog{}, fmt.Errorf("parse topics: %w", err)
	}

	values, err := event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return SwapLog{}, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	if len(values) != 4 {
		return SwapLog{}, fmt.Errorf("unexpected swap values: %d", len(values))
	}

	amounts := make([]*big.Int, 0, len(values))
	for i, value := range values {
		amount, err := asBigInt(value)
		if err != nil {
			return SwapLog{}, fmt.Errorf("swap value %d: %w", i, err)
		}
		amounts = append(amounts, amount)
	}

	return SwapLog{
		Pair:        log.Address,
		Sender:      indexed.Sender,
		To:          indexed.To,
		Amount0In:   amounts[0],
		Amount1In:   amounts[1],
		Amount0Out:  amounts[2],
		Amount1Out:  amounts[3],
		TxHash:      log.TxHash,
		BlockNumber: log.BlockNumber,
		LogIndex:    log.Index,
	}, nil
}

func indexedTopics(event abi.Event, topics []common.Hash) ([]common.Hash, error) {
	indexedCount := len(indexedArguments(event.Inputs))
	if len(topics) != indexedCount+1 {
		return nil, fmt.Errorf("expected %d topics, got %d", indexedCount+1, len(topics))
	}
	return topics[1:], nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}
