// Copyright 2026 Merito Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package signing

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/sha3"
)

// AddressLength is the length of an account address in bytes
const AddressLength = 20

var ErrInvalidAddress = errors.New("invalid address")

// Address is a 20-byte account identifier derived from a secp256k1 public
// key. Addresses are compared case-insensitively in their hex form, so two
// Address values are equal iff their bytes are equal.
type Address [AddressLength]byte

// ParseAddress decodes a 0x-prefixed hex address. The hex digits are
// accepted in any case.
func ParseAddress(s string) (Address, error) {
	var addr Address
	trimmed := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(trimmed) != AddressLength*2 {
		return addr, fmt.Errorf(
			"%w: expected %d hex chars, got %d",
			ErrInvalidAddress,
			AddressLength*2,
			len(trimmed),
		)
	}
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("%w: %s", ErrInvalidAddress, err)
	}
	copy(addr[:], raw)
	return addr, nil
}

// AddressFromBytes converts a raw byte slice to an Address
func AddressFromBytes(raw []byte) (Address, error) {
	var addr Address
	if len(raw) != AddressLength {
		return addr, fmt.Errorf(
			"%w: expected %d bytes, got %d",
			ErrInvalidAddress,
			AddressLength,
			len(raw),
		)
	}
	copy(addr[:], raw)
	return addr, nil
}

// PubkeyToAddress derives the address for a secp256k1 public key using the
// keccak-256 of the uncompressed point with the leading format byte removed,
// keeping the low 20 bytes
func PubkeyToAddress(pub *secp256k1.PublicKey) Address {
	uncompressed := pub.SerializeUncompressed()
	hash := keccak256(uncompressed[1:])
	var addr Address
	copy(addr[:], hash[12:])
	return addr
}

func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

func (a Address) Bytes() []byte {
	return a[:]
}

// IsZero returns true for the all-zero address
func (a Address) IsZero() bool {
	return a == Address{}
}

func keccak256(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}
