package dex

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

func TestDecodeSwap(t *testing.T) {
	pairABI, err := PairABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}

	pair := common.HexToAddress("0x6e7a5FAFcec6BB1e78bAE2A1F0B612012BF14827")
	sender := common.HexToAddress("0x2222222222222222222222222222222222222222")
	to := common.HexToAddress("0x3333333333333333333333333333333333333333")

	data, err := pairABI.Events[EventSwap].Inputs.NonIndexed().Pack(
		big.NewInt(1000),
		big.NewInt(0),
		big.NewInt(0),
		big.NewInt(1987),
	)
	if err != nil {
		t.Fatalf("pack swap: %v", err)
	}

	log := types.Log{
		Address:     pair,
		Topics:      []common.Hash{pairABI.Events[EventSwap].ID, topicFromAddress(sender), topicFromAddress(to)},
		Data:        data,
		BlockNumber: 27080354,
		TxHash:      common.HexToHash("0xdef"),
		Index:       3,
	}

	swap, err := DecodeSwap(log)
	if err != nil {
		t.Fatalf("decode swap: %v", err)
	}
	if swap.Amount0In.String() != "1000" || swap.Amount1In.Sign() != 0 {
		t.Fatalf("amounts in mismatch: %+v", swap)
	}
	if swap.Amount0Out.Sign() != 0 || swap.Amount1Out.String() != "1987" {
		t.Fatalf("amounts out mismatch: %+v", swap)
	}
	if swap.Sender != sender || swap.To != to {
		t.Fatalf("address mismatch")
	}
	if swap.BlockNumber != 27080354 || swap.LogIndex != 3 || swap.Pair != pair {
		t.Fatalf("log position mismatch: %+v", swap)
	}
}

func TestDecodeSwapRejectsOtherEvents(t *testing.T) {
	pairABI, err := PairABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}

	log := types.Log{Topics: []common.Hash{pairABI.Events["Sync"].ID}}
	if _, err := DecodeSwap(log); err == nil {
		t.Fatalf("expected error for sync log")
	}

	log = types.Log{Topics: []common.Hash{pairABI.Events[EventSwap].ID}}
	if _, err := DecodeSwap(log); err == nil {
		t.Fatalf("expected error for missing indexed topics")
	}
}

func TestUnpackReserves(t *testing.T) {
	pairABI, err := PairABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}

	method := pairABI.Methods[MethodGetReserves]
	data, err := method.Outputs.Pack(big.NewInt(500), big.NewInt(700), uint32(1700000000))
	if err != nil {
		t.Fatalf("pack reserves: %v", err)
	}
	values, err := pairABI.Unpack(MethodGetReserves, data)
	if err != nil {
		t.Fatalf("unpack reserves: %v", err)
	}

	reserve0, reserve1, err := UnpackReserves(values)
	if err != nil {
		t.Fatalf("reserves: %v", err)
	}
	if reserve0.Int64() != 500 || reserve1.Int64() != 700 {
		t.Fatalf("reserves mismatch: %s %s", reserve0, reserve1)
	}

	if _, _, err := UnpackReserves([]interface{}{big.NewInt(1)}); err == nil {
		t.Fatalf("expected error for short result")
	}
}

func TestUnpackSupply(t *testing.T) {
	supply, err := UnpackSupply([]interface{}{big.NewInt(42)})
	if err != nil {
		t.Fatalf("supply: %v", err)
	}
	if supply.Int64() != 42 {
		t.Fatalf("supply mismatch: %s", supply)
	}
	if _, err := UnpackSupply([]interface{}{"42"}); err == nil {
		t.Fatalf("expected error for string value")
	}
}

func topicFromAddress(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}
