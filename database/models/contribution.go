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

package models

import (
	"errors"
	"time"
)

var ErrContributionNotFound = errors.New("contribution not found")

// Contribution status constants. Validating is the only state that accepts
// votes. Passed and Failed are terminal for voting; Passed additionally
// permits exactly one transition to OnChain.
const (
	ContributionStatusValidating = 0
	ContributionStatusPassed     = 1
	ContributionStatusFailed     = 2
	ContributionStatusOnChain    = 3
)

// ContributionStatusString returns the lowercase name for a status value
func ContributionStatusString(status uint8) string {
	switch status {
	case ContributionStatusValidating:
		return "validating"
	case ContributionStatusPassed:
		return "passed"
	case ContributionStatusFailed:
		return "failed"
	case ContributionStatusOnChain:
		return "onchain"
	default:
		return "unknown"
	}
}

// Contribution represents one version of a unit of submitted work.
// Contributions are versioned by replacement: editing a non-finalized
// contribution soft-deletes the current row (and its votes) and inserts a
// fresh row sharing the same LineageID with Version+1. DeletedAt marks a
// superseded version; Tombstoned marks genuine deletion. The two are kept
// separate so version history is never conflated with removal.
type Contribution struct {
	ID             uint   `gorm:"primarykey"`
	ContributionID string `gorm:"uniqueIndex;size:64;not null"`
	LineageID      string `gorm:"index:idx_contribution_lineage,priority:1;size:64;not null"`
	Version        uint   `gorm:"index:idx_contribution_lineage,priority:2;not null;default:1"`
	ProjectID      uint   `gorm:"index;not null"`
	Status         uint8  `gorm:"index;not null"`
	Detail         string `gorm:"type:text"`
	Hours          float64
	Tags           string `gorm:"size:256"` // comma-separated
	StartAt        *time.Time
	EndAt          *time.Time
	DeletedAt      *time.Time `gorm:"index"` // superseded by a newer version
	Tombstoned     bool       `gorm:"index"` // genuinely deleted
	// On-chain artifacts, populated by the publisher. ChainRef is computed
	// once and never recomputed. PublishPayload is the canonical JSON
	// payload handed to the chain submission service.
	ChainRef       []byte `gorm:"size:32"`
	ContentDigest  []byte `gorm:"size:32"`
	PayloadDigest  []byte `gorm:"size:32"`
	PublishPayload []byte
	PublishedAt    *time.Time
	TxRef          string `gorm:"size:80"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TableName returns the table name
func (Contribution) TableName() string {
	return "contribution"
}

// Live returns true when this row is the current version and not deleted
func (c *Contribution) Live() bool {
	return c.DeletedAt == nil && !c.Tombstoned
}

// Finalized returns true once the contribution's content and votes are
// immutable
func (c *Contribution) Finalized() bool {
	return c.Status == ContributionStatusPassed ||
		c.Status == ContributionStatusOnChain
}

// Contributor represents an account credited on a contribution, with its
// share in basis points.
type Contributor struct {
	ID             uint   `gorm:"primarykey"`
	ContributionID uint   `gorm:"index:idx_contributor_contribution;uniqueIndex:idx_contributor_unique,priority:1;not null"`
	AccountID      string `gorm:"uniqueIndex:idx_contributor_unique,priority:2;size:42;not null"`
	Share          uint32 `gorm:"not null"` // basis points, 10000 = 100%
	CreatedAt      time.Time
}

// TableName returns the table name
func (Contributor) TableName() string {
	return "contributor"
}
