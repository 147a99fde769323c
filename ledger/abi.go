package ledger

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const (
	MethodVerify          = "verifyContent"
	MethodGetVerification = "getVerification"
	EventContentVerified  = "ContentVerified"
)

// ContentVerificationABI is the registry contract interface. The event is how
// a deployment reports the identifier assigned by verifyContent, since return
// values of state-changing calls are not part of a receipt.
const ContentVerificationABI = `[
  {
    "type": "function",
    "name": "verifyContent",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "contentHash", "type": "bytes32"},
      {"name": "metadata", "type": "string"}
    ],
    "outputs": [{"name": "verificationId", "type": "uint256"}]
  },
  {
    "type": "function",
    "name": "getVerification",
    "stateMutability": "view",
    "inputs": [{"name": "verificationId", "type": "uint256"}],
    "outputs": [
      {"name": "contentHash", "type": "bytes32"},
      {"name": "timestamp", "type": "uint256"},
      {"name": "creator", "type": "address"},
      {"name": "verified", "type": "bool"}
    ]
  },
  {
    "type": "event",
    "name": "ContentVerified",
    "anonymous": false,
    "inputs": [
      {"name": "verificationId", "type": "uint256", "indexed": true},
      {"name": "contentHash", "type": "bytes32", "indexed": true},
      {"name": "creator", "type": "address", "indexed": true},
      {"name": "timestamp", "type": "uint256", "indexed": false}
    ]
  }
]`

var contractABI = mustParseABI(ContentVerificationABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic("ledger: invalid contract ABI: " + err.Error())
	}
	return parsed
}

// ABI returns the parsed registry contract ABI.
func ABI() abi.ABI { return contractABI }
