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
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	secpecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// SignatureLength is the wire length of a vote signature: R || S || V,
// where V is the recovery id (0/1, or 27/28 in legacy form)
const SignatureLength = 65

const voteType = "Vote(string projectId,string contributionId,address voter,uint8 choice,uint64 nonce)"

var (
	// ErrInvalidSignatureFormat is returned for signature bytes that cannot
	// be decoded into R, S and a recovery id
	ErrInvalidSignatureFormat = errors.New("invalid signature format")
	// ErrSignerMismatch is returned when the address recovered from a
	// well-formed signature does not match the expected signer
	ErrSignerMismatch = errors.New("recovered signer does not match expected signer")
)

// VoteMessage is the structured record a voter signs. Every field is bound
// into the digest, so a signature over one contribution (or one nonce)
// cannot be replayed against another.
type VoteMessage struct {
	ProjectID      string
	ContributionID string
	Voter          Address
	Choice         uint8
	Nonce          uint64
}

// Verifier recomputes typed-data digests under a fixed domain and recovers
// signing addresses from compact signatures.
type Verifier struct {
	domain Domain
}

func NewVerifier(domain Domain) (*Verifier, error) {
	if err := domain.Validate(); err != nil {
		return nil, fmt.Errorf("invalid signing domain: %w", err)
	}
	return &Verifier{domain: domain}, nil
}

// Domain returns the verifier's signing domain
func (v *Verifier) Domain() Domain {
	return v.domain
}

// Digest computes the 32-byte digest the voter is expected to have signed:
// keccak256(0x19 || 0x01 || domainSeparator || structHash(msg))
func (v *Verifier) Digest(msg VoteMessage) []byte {
	structHash := keccak256(
		keccak256([]byte(voteType)),
		keccak256([]byte(msg.ProjectID)),
		keccak256([]byte(msg.ContributionID)),
		leftPad32(msg.Voter.Bytes()),
		uint256Bytes(uint64(msg.Choice)),
		uint256Bytes(msg.Nonce),
	)
	return keccak256(
		[]byte{0x19, 0x01},
		v.domain.Separator(),
		structHash,
	)
}

// RecoverSigner recovers the address that produced the given signature over
// the message digest. The signature must be 65 bytes in R || S || V order.
func (v *Verifier) RecoverSigner(
	msg VoteMessage,
	signature []byte,
) (Address, error) {
	if len(signature) != SignatureLength {
		return Address{}, fmt.Errorf(
			"%w: expected %d bytes, got %d",
			ErrInvalidSignatureFormat,
			SignatureLength,
			len(signature),
		)
	}
	recoveryID := signature[SignatureLength-1]
	// Normalize legacy 27/28 recovery ids
	if recoveryID >= 27 {
		recoveryID -= 27
	}
	if recoveryID > 1 {
		return Address{}, fmt.Errorf(
			"%w: recovery id out of range",
			ErrInvalidSignatureFormat,
		)
	}
	// RecoverCompact wants the recovery header first
	compact := make([]byte, SignatureLength)
	compact[0] = 27 + recoveryID
	copy(compact[1:], signature[:SignatureLength-1])
	pub, _, err := secpecdsa.RecoverCompact(compact, v.Digest(msg))
	if err != nil {
		return Address{}, fmt.Errorf("%w: %s", ErrInvalidSignatureFormat, err)
	}
	return PubkeyToAddress(pub), nil
}

// Verify checks that signature was produced over msg by expectedSigner.
// This must be called before any vote is persisted.
func (v *Verifier) Verify(
	msg VoteMessage,
	signature []byte,
	expectedSigner Address,
) error {
	recovered, err := v.RecoverSigner(msg, signature)
	if err != nil {
		return err
	}
	if recovered != expectedSigner {
		return fmt.Errorf(
			"%w: recovered %s, expected %s",
			ErrSignerMismatch,
			recovered,
			expectedSigner,
		)
	}
	return nil
}

// Sign produces a wire-format signature over msg with the given private key.
// Used by tests and development tooling; production signatures come from the
// voter's own wallet.
func (v *Verifier) Sign(
	msg VoteMessage,
	key *secp256k1.PrivateKey,
) []byte {
	compact := secpecdsa.SignCompact(key, v.Digest(msg), false)
	// Convert from header-first compact form to R || S || V
	sig := make([]byte, SignatureLength)
	copy(sig, compact[1:])
	sig[SignatureLength-1] = compact[0]
	return sig
}
