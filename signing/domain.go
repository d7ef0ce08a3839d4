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
	"encoding/binary"
	"errors"
)

const domainType = "EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"

// Domain binds signed vote messages to a deployment. All four parameters are
// injected configuration so the same verifier code can be tested against
// multiple chain/contract combinations. A signature produced under one
// domain never verifies under another.
type Domain struct {
	Name              string
	Version           string
	ChainID           uint64
	VerifyingContract Address
}

// Validate checks that the domain carries the fields required for a
// non-ambiguous separator
func (d Domain) Validate() error {
	if d.Name == "" {
		return errors.New("domain name is empty")
	}
	if d.Version == "" {
		return errors.New("domain version is empty")
	}
	if d.ChainID == 0 {
		return errors.New("domain chain id is zero")
	}
	return nil
}

// Separator computes the 32-byte domain separator
func (d Domain) Separator() []byte {
	return keccak256(
		keccak256([]byte(domainType)),
		keccak256([]byte(d.Name)),
		keccak256([]byte(d.Version)),
		uint256Bytes(d.ChainID),
		leftPad32(d.VerifyingContract.Bytes()),
	)
}

// uint256Bytes encodes v as a 32-byte big-endian word
func uint256Bytes(v uint64) []byte {
	buf := make([]byte, 32)
	binary.BigEndian.PutUint64(buf[24:], v)
	return buf
}

// leftPad32 pads b on the left with zeroes to 32 bytes. Inputs longer than
// 32 bytes are truncated from the left, matching word encoding rules.
func leftPad32(b []byte) []byte {
	buf := make([]byte, 32)
	if len(b) > 32 {
		b = b[len(b)-32:]
	}
	copy(buf[32-len(b):], b)
	return buf
}
