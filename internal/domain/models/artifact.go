package models

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Artifact is a compiled contract
type Artifact struct {
	Name             string
	Path             string
	ABI              abi.ABI
	RawABI           []byte
	Bytecode         []byte
	DeployedBytecode []byte
}

// ABIHash is the hash an external verifier uses to match the interface
func (a *Artifact) ABIHash() common.Hash {
	return crypto.Keccak256Hash(a.RawABI)
}

// HasMethods reports whether the ABI exposes every named method
func (a *Artifact) HasMethods(names ...string) bool {
	for _, name := range names {
		if _, ok := a.ABI.Methods[name]; !ok {
			return false
		}
	}
	return true
}

// DefaultAdminRole is the AccessControl admin role name
const DefaultAdminRole = "DEFAULT_ADMIN_ROLE"

// RoleID maps a role name to its bytes32 identifier: the admin role is the
// zero hash, a 0x-prefixed 32-byte value is taken as is, anything else is
// keccak256 of the name.
func RoleID(name string) common.Hash {
	if name == DefaultAdminRole {
		return common.Hash{}
	}
	if strings.HasPrefix(name, "0x") && len(name) == 66 {
		return common.HexToHash(name)
	}
	return crypto.Keccak256Hash([]byte(name))
}
