package resolve

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"curatewatch/internal/registry"
)

// ContractCaller is the read-only chain access the resolver needs.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// FetchMarketName reads marketName() from the market contract.
func FetchMarketName(ctx context.Context, caller ContractCaller, market common.Address) (string, error) {
	marketABI, err := registry.MarketABI()
	if err != nil {
		return "", fmt.Errorf("parse market abi: %w", err)
	}

	data, err := marketABI.Pack("marketName")
	if err != nil {
		return "", fmt.Errorf("pack marketName: %w", err)
	}
	msg := ethereum.CallMsg{To: &market, Data: data}
	resp, err := caller.CallContract(ctx, msg, nil)
	if err != nil {
		return "", fmt.Errorf("call marketName: %w", err)
	}
	values, err := marketABI.Unpack("marketName", resp)
	if err != nil {
		return "", fmt.Errorf("unpack marketName: %w", err)
	}

	name, ok := values[0].(string)
	if !ok {
		return "", fmt.Errorf("unexpected marketName type %T", values[0])
	}
	return name, nil
}
