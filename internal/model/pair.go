package model

import (
	"fmt"
	"strings"
)

// PairID is the symbolic identifier of a monitored QuickSwap pair.
type PairID string

const (
	PairWMATICUSDC PairID = "WMATIC_USDC"
	PairUSDCWETH   PairID = "USDC_WETH"
	PairWMATICWETH PairID = "WMATIC_WETH"
)

var knownPairs = map[PairID]struct{}{
	PairWMATICUSDC: {},
	PairUSDCWETH:   {},
	PairWMATICWETH: {},
}

// ParsePairID validates a symbolic pair identifier against the known set.
func ParsePairID(input string) (PairID, error) {
	id := PairID(strings.ToUpper(strings.TrimSpace(input)))
	if _, ok := knownPairs[id]; !ok {
		return "", fmt.Errorf("unknown pair: %s", input)
	}
	return id, nil
}

// MonitoredPair identifies a pool being watched. Address is EIP-55 checksummed.
type MonitoredPair struct {
	ID      PairID `json:"pair"`
	Address string `json:"pair_id"`
}

func (p MonitoredPair) String() string {
	return fmt.Sprintf("%s(%s)", p.ID, p.Address)
}
