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

package database

import (
	"errors"
	"time"

	"github.com/merito-labs/merito/database/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Tally is the count of live votes on a contribution grouped by choice
type Tally struct {
	Pass int
	Fail int
	Skip int
}

// Total returns the number of live votes
func (t Tally) Total() int {
	return t.Pass + t.Fail + t.Skip
}

// CurrentNonce returns the highest nonce ever accepted for a (voter,
// contribution) pair, withdrawn votes included. Zero means no vote was ever
// accepted. Withdrawn votes still count so an old signature can never be
// replayed after a withdrawal.
func (d *Database) CurrentNonce(
	contributionRowID uint,
	voter string,
) (uint64, error) {
	var vote models.Vote
	if result := d.db.Where(
		"contribution_id = ? AND voter = ?",
		contributionRowID,
		voter,
	).First(&vote); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, result.Error
	}
	return vote.Nonce, nil
}

// GetLiveVote retrieves the live vote for a (voter, contribution) pair.
// Returns nil if the voter has no live vote.
func (d *Database) GetLiveVote(
	contributionRowID uint,
	voter string,
) (*models.Vote, error) {
	var vote models.Vote
	if result := d.db.Where(
		"contribution_id = ? AND voter = ? AND deleted_at IS NULL",
		contributionRowID,
		voter,
	).First(&vote); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &vote, nil
}

// GetLiveVotes retrieves all live votes on a contribution
func (d *Database) GetLiveVotes(
	contributionRowID uint,
) ([]models.Vote, error) {
	var votes []models.Vote
	if result := d.db.Where(
		"contribution_id = ? AND deleted_at IS NULL",
		contributionRowID,
	).Order("id").Find(&votes); result.Error != nil {
		return nil, result.Error
	}
	return votes, nil
}

// UpsertVote records a vote for a (voter, contribution) pair. The nonce must
// be exactly one greater than the current nonce (or 1 for a first vote) or
// ErrStaleNonce is returned. A changed or re-cast vote updates the existing
// row in place, preserving the at-most-one-row-per-pair invariant. The nonce
// check is a single conditional update so two racing submissions cannot both
// pass a stale read.
func (d *Database) UpsertVote(
	contributionRowID uint,
	voter string,
	choice uint8,
	nonce uint64,
	signature []byte,
	digestHash []byte,
	now time.Time,
) (*models.Vote, error) {
	var existing models.Vote
	result := d.db.Where(
		"contribution_id = ? AND voter = ?",
		contributionRowID,
		voter,
	).First(&existing)
	if result.Error != nil {
		if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, result.Error
		}
		// First vote for this pair ever
		if nonce != 1 {
			return nil, ErrStaleNonce
		}
		vote := models.Vote{
			VoteID:         uuid.NewString(),
			ContributionID: contributionRowID,
			Voter:          voter,
			Choice:         choice,
			Nonce:          nonce,
			Signature:      signature,
			DigestHash:     digestHash,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if result := d.db.Create(&vote); result.Error != nil {
			if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
				// Lost an insert race for the same pair
				return nil, ErrStaleNonce
			}
			return nil, result.Error
		}
		return &vote, nil
	}
	// Atomic compare-and-set on the previous nonce; zero rows means the
	// submission raced against a newer vote
	update := d.db.Model(&models.Vote{}).
		Where(
			"contribution_id = ? AND voter = ? AND nonce = ?",
			contributionRowID,
			voter,
			nonce-1,
		).
		Updates(map[string]any{
			"choice":      choice,
			"nonce":       nonce,
			"signature":   signature,
			"digest_hash": digestHash,
			"deleted_at":  nil,
			"updated_at":  now,
		})
	if update.Error != nil {
		return nil, update.Error
	}
	if update.RowsAffected == 0 {
		return nil, ErrStaleNonce
	}
	return d.GetLiveVote(contributionRowID, voter)
}

// WithdrawVote soft-deletes the live vote for a (voter, contribution) pair.
// Returns ErrVoteNotFound when no live vote exists.
func (d *Database) WithdrawVote(
	contributionRowID uint,
	voter string,
	now time.Time,
) error {
	result := d.db.Model(&models.Vote{}).
		Where(
			"contribution_id = ? AND voter = ? AND deleted_at IS NULL",
			contributionRowID,
			voter,
		).
		Updates(map[string]any{
			"deleted_at": now,
			"updated_at": now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrVoteNotFound
	}
	return nil
}

// SoftDeleteContributionVotes soft-deletes every live vote on a
// contribution. Used when an edit supersedes a version: the new version
// starts with a clean ledger.
func (d *Database) SoftDeleteContributionVotes(
	contributionRowID uint,
	now time.Time,
) error {
	result := d.db.Model(&models.Vote{}).
		Where(
			"contribution_id = ? AND deleted_at IS NULL",
			contributionRowID,
		).
		Updates(map[string]any{
			"deleted_at": now,
			"updated_at": now,
		})
	return result.Error
}

// VoteTally returns the count of live votes on a contribution grouped by
// choice
func (d *Database) VoteTally(contributionRowID uint) (Tally, error) {
	var tally Tally
	rows := []struct {
		Choice uint8
		Count  int
	}{}
	if result := d.db.Model(&models.Vote{}).
		Select("choice, count(*) as count").
		Where(
			"contribution_id = ? AND deleted_at IS NULL",
			contributionRowID,
		).
		Group("choice").
		Scan(&rows); result.Error != nil {
		return tally, result.Error
	}
	for _, row := range rows {
		switch row.Choice {
		case models.VoteChoicePass:
			tally.Pass = row.Count
		case models.VoteChoiceFail:
			tally.Fail = row.Count
		case models.VoteChoiceSkip:
			tally.Skip = row.Count
		}
	}
	return tally, nil
}
