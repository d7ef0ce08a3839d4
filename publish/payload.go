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

package publish

import (
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/merito-labs/merito/database/models"

	"golang.org/x/crypto/sha3"
)

// ContributorShare credits one account in the published snapshot
type ContributorShare struct {
	Account string `json:"account"`
	// Share in basis points, 10000 = 100%
	Share uint32 `json:"share"`
}

// Snapshot is the canonical JSON record of a contribution's content as of
// the version being published. Field order is fixed by the struct, so
// marshaling is deterministic and the content digest is stable.
type Snapshot struct {
	ContributionID string             `json:"contributionId"`
	LineageID      string             `json:"lineageId"`
	Version        uint               `json:"version"`
	Detail         string             `json:"detail"`
	Hours          float64            `json:"hours"`
	Tags           []string           `json:"tags"`
	StartAt        *time.Time         `json:"startAt,omitempty"`
	EndAt          *time.Time         `json:"endAt,omitempty"`
	Contributors   []ContributorShare `json:"contributors"`
}

// VoteRecord is one signed vote included in the published payload
type VoteRecord struct {
	Voter     string `json:"voter"`
	Choice    string `json:"choice"`
	Nonce     uint64 `json:"nonce"`
	Signature string `json:"signature"` // hex
}

// Payload is the outer record handed to the chain submission service. The
// digest of its canonical JSON form serves as the audit digest.
type Payload struct {
	ProjectRef      string       `json:"projectRef"`      // hex, 32 bytes
	ContributionRef string       `json:"contributionRef"` // hex, 32 bytes
	ContentDigest   string       `json:"contentDigest"`   // hex, 32 bytes
	Snapshot        Snapshot     `json:"snapshot"`
	Votes           []VoteRecord `json:"votes"`
}

// ChainRef derives a stable 32-byte on-chain reference from an external
// string id. Callers cache the result in the database on first use so the
// stored reference never changes even if this derivation ever does.
func ChainRef(id string) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(id))
	return h.Sum(nil)
}

func digestBytes(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}

func buildSnapshot(
	contribution *models.Contribution,
	contributors []models.Contributor,
) Snapshot {
	shares := make([]ContributorShare, 0, len(contributors))
	for _, contributor := range contributors {
		shares = append(shares, ContributorShare{
			Account: contributor.AccountID,
			Share:   contributor.Share,
		})
	}
	var tags []string
	if contribution.Tags != "" {
		tags = strings.Split(contribution.Tags, ",")
	}
	return Snapshot{
		ContributionID: contribution.ContributionID,
		LineageID:      contribution.LineageID,
		Version:        contribution.Version,
		Detail:         contribution.Detail,
		Hours:          contribution.Hours,
		Tags:           tags,
		StartAt:        contribution.StartAt,
		EndAt:          contribution.EndAt,
		Contributors:   shares,
	}
}

// encodePayload marshals the payload and returns the canonical bytes along
// with their audit digest
func encodePayload(payload Payload) ([]byte, []byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}
	return encoded, digestBytes(encoded), nil
}

func hexEncode(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}
