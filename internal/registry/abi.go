package registry

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const registryABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "bytes32", "name": "_itemID", "type": "bytes32"},
      {"indexed": false, "internalType": "string", "name": "_data", "type": "string"},
      {"indexed": false, "internalType": "bool", "name": "_addedDirectly", "type": "bool"}
    ],
    "name": "NewItem",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "bytes32", "name": "_itemID", "type": "bytes32"},
      {"indexed": false, "internalType": "uint256", "name": "_evidenceGroupID", "type": "uint256"}
    ],
    "name": "RequestSubmitted",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "_arbitrator", "type": "address"},
      {"indexed": true, "internalType": "uint256", "name": "_disputeID", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "_metaEvidenceID", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "_evidenceGroupID", "type": "uint256"}
    ],
    "name": "Dispute",
    "type": "event"
  }
]`

const marketABIJSON = `[
  {"inputs": [], "name": "marketName", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"}
]`

var (
	registryABI     abi.ABI
	registryABIOnce sync.Once
	registryABIErr  error
	marketABI       abi.ABI
	marketABIOnce   sync.Once
	marketABIErr    error
)

// RegistryABI returns the parsed registry event ABI.
func RegistryABI() (abi.ABI, error) {
	registryABIOnce.Do(func() {
		registryABI, registryABIErr = abi.JSON(strings.NewReader(registryABIJSON))
	})
	return registryABI, registryABIErr
}

// MarketABI returns the parsed market contract ABI.
func MarketABI() (abi.ABI, error) {
	marketABIOnce.Do(func() {
		marketABI, marketABIErr = abi.JSON(strings.NewReader(marketABIJSON))
	})
	return marketABI, marketABIErr
}
