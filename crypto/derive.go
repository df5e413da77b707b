package crypto

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// EIP-1167 minimal proxy creation code around a 20-byte implementation.
var (
	cloneCodePrefix = common.FromHex("0x3d602d80600a3d3981f3363d3d373d3d3d363d73")
	cloneCodeSuffix = common.FromHex("0x5af43d82803e903d91602b57fd5bf3")
)

// CloneInitCodeHash returns the init code hash of a minimal proxy that
// delegates to template.
func CloneInitCodeHash(template common.Address) common.Hash {
	return HashBytes(cloneCodePrefix, template.Bytes(), cloneCodeSuffix)
}

// CloneAddress derives the address of a deterministic clone of template
// deployed by deployer with the given salt.
func CloneAddress(deployer, template common.Address, salt common.Hash) common.Address {
	return ethcrypto.CreateAddress2(deployer, salt, CloneInitCodeHash(template).Bytes())
}

// BlueprintAddress derives the address of a blueprint instance created by
// factory. The init hash commits to the blueprint kind and version.
func BlueprintAddress(factory common.Address, kind string, version uint64, salt common.Hash) common.Address {
	var v [8]byte
	binary.BigEndian.PutUint64(v[:], version)
	initHash := HashBytes([]byte(kind), v[:])
	return ethcrypto.CreateAddress2(factory, salt, initHash.Bytes())
}

// ContractAddress derives the address of the nonce-th instance created by
// deployer.
func ContractAddress(deployer common.Address, nonce uint64) common.Address {
	return ethcrypto.CreateAddress(deployer, nonce)
}
