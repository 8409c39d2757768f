// Package proxyaddr implements the decoder's Proxy-Address Allocator
// (spec §4.1): it mints a deterministic, collision-free synthetic
// address for each token the simulation engine needs to treat as its
// own contract, and builds the storage of the redirecting stub placed
// at the real token address, whose implementation slot points at the
// minted address.
package proxyaddr

import (
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// implementationSlot is the standard EIP-1967 proxy implementation
// storage slot: keccak256("eip1967.proxy.implementation") - 1.
var implementationSlot = common.HexToHash("0x360894a13ba1a3210667c828492db98dca3e2076cc3735a920a3ca505d382bbc")

// ImplementationSlot returns the storage slot a proxy token account
// stores its target address in.
func ImplementationSlot() common.Hash { return implementationSlot }

// proxyBytecodeSuffix is the literal marker every minted proxy address
// ends with, making proxy addresses recognizable on sight.
const proxyBytecodeSuffix = "BAdbaBe"

// ERC20ProxyBytecode is the stub bytecode the decoder installs at a
// real token address: on the redirecting stub whose implementation
// slot holds the minted proxy address, and on the slot-less stub
// accounts staged for resolved tokens with no proxy yet. It is a
// placeholder: the storage engine is expected to
// special-case accounts carrying this exact bytecode and interpret
// their storage via the proxy ABI rather than executing it, the same
// way `original_source`'s ERC20_PROXY_BYTECODE constant does.
var ERC20ProxyBytecode = []byte{0x60, 0x00, 0x60, 0x00, 0xfd} // PUSH1 0x0 PUSH1 0x0 REVERT

// Mint allocates the idx-th proxy address. idx is the count of
// proxy addresses already minted, so minting is strictly sequential
// and never revisits an address. The address is built by left-padding
// idx's hex form with zeroes to 33 hex digits and appending the
// literal marker "BAdbaBe", then reading the first 20 bytes as an
// address.
func Mint(idx uint32) common.Address {
	padded := fmt.Sprintf("%x", idx)
	zeroes := 33 - len(padded)
	raw := fmt.Sprintf("%s%s%s", repeatZero(zeroes), padded, proxyBytecodeSuffix)

	decoded, err := hex.DecodeString(raw)
	if err != nil {
		panic(fmt.Sprintf("proxyaddr: minted value %q is not valid hex: %v", raw, err))
	}
	return common.BytesToAddress(decoded)
}

func repeatZero(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, n)
	for i := range b {
		b[i] = '0'
	}
	return string(b)
}

// Account builds the storage of the redirecting stub account placed at
// a real token address: its implementation slot points at target (the
// minted proxy address), and any storage already
// carried on the original account (carried) is layered on top, so an
// explicit storage entry there always wins over the implementation
// slot itself.
func Account(target common.Address, carried map[common.Hash]uint256.Int) map[common.Hash]uint256.Int {
	slots := make(map[common.Hash]uint256.Int, len(carried)+1)
	slots[implementationSlot] = *uint256.NewInt(0).SetBytes(target.Bytes())
	for slot, val := range carried {
		slots[slot] = val
	}
	return slots
}
