package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"pairstream/internal/model"
)

// ParsePairs parses ID=address entries. Addresses are checksummed, and an id
// or address may appear only once.
func ParsePairs(inputs []string) ([]model.MonitoredPair, error) {
	pairs := make([]model.MonitoredPair, 0, len(inputs))
	seenIDs := make(map[model.PairID]struct{}, len(inputs))
	seenAddresses := make(map[common.Address]struct{}, len(inputs))

	for _, input := range inputs {
		name, address, ok := strings.Cut(strings.TrimSpace(input), "=")
		if !ok {
			return nil, fmt.Errorf("invalid pair %q: expected ID=address", input)
		}
		id, err := model.ParsePairID(name)
		if err != nil {
			return nil, err
		}
		address = strings.TrimSpace(address)
		if !common.IsHexAddress(address) {
			return nil, fmt.Errorf("invalid address for %s: %s", id, address)
		}
		addr := common.HexToAddress(address)

		if _, dup := seenIDs[id]; dup {
			return nil, fmt.Errorf("duplicate pair: %s", id)
		}
		if _, dup := seenAddresses[addr]; dup {
			return nil, fmt.Errorf("duplicate pair address: %s", addr.Hex())
		}
		seenIDs[id] = struct{}{}
		seenAddresses[addr] = struct{}{}

		pairs = append(pairs, model.MonitoredPair{ID: id, Address: addr.Hex()})
	}
	return pairs, nil
}
