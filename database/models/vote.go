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

var ErrVoteNotFound = errors.New("vote not found")

// Vote choice constants, matching the uint8 encoding bound into the signed
// message digest.
const (
	VoteChoicePass = 1
	VoteChoiceFail = 2
	VoteChoiceSkip = 3
)

// VoteChoiceString returns the lowercase name for a choice value
func VoteChoiceString(choice uint8) string {
	switch choice {
	case VoteChoicePass:
		return "pass"
	case VoteChoiceFail:
		return "fail"
	case VoteChoiceSkip:
		return "skip"
	default:
		return "unknown"
	}
}

// VoteChoiceFromString parses a lowercase choice name
func VoteChoiceFromString(s string) (uint8, bool) {
	switch s {
	case "pass":
		return VoteChoicePass, true
	case "fail":
		return VoteChoiceFail, true
	case "skip":
		return VoteChoiceSkip, true
	default:
		return 0, false
	}
}

// Vote represents the current vote of one voter on one contribution. The
// unique (contribution, voter) index holds because a changed or revived vote
// updates the existing row in place; history of withdrawn votes survives via
// DeletedAt until the vote is re-cast. Nonce increases strictly with every
// accepted signature, which is what prevents replay of an older signature.
type Vote struct {
	ID             uint   `gorm:"primarykey"`
	VoteID         string `gorm:"uniqueIndex;size:64;not null"`
	ContributionID uint   `gorm:"index:idx_vote_contribution;uniqueIndex:idx_vote_unique,priority:1;not null"`
	Voter          string `gorm:"uniqueIndex:idx_vote_unique,priority:2;size:42;not null"` // lowercased 0x address
	Choice         uint8  `gorm:"not null"`
	Nonce          uint64 `gorm:"not null"`
	Signature      []byte `gorm:"size:65;not null"`
	DigestHash     []byte `gorm:"size:32;not null"` // signed-message digest
	DeletedAt      *time.Time `gorm:"index"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TableName returns the table name
func (Vote) TableName() string {
	return "vote"
}

// Live returns true if the vote has not been withdrawn or invalidated
func (v *Vote) Live() bool {
	return v.DeletedAt == nil
}
