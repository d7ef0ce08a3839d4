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

	"gorm.io/gorm"
)

// CreateContribution stores a contribution and its contributor list
func (d *Database) CreateContribution(
	contribution *models.Contribution,
	contributors []models.Contributor,
) error {
	return d.Transaction(func(txn *Database) error {
		if result := txn.db.Create(contribution); result.Error != nil {
			return result.Error
		}
		for i := range contributors {
			contributors[i].ContributionID = contribution.ID
			if result := txn.db.Create(&contributors[i]); result.Error != nil {
				return result.Error
			}
		}
		return nil
	})
}

// GetContribution retrieves a contribution by its external id. Returns nil
// if no such contribution exists.
func (d *Database) GetContribution(
	contributionID string,
) (*models.Contribution, error) {
	var contribution models.Contribution
	if result := d.db.Where(
		"contribution_id = ?",
		contributionID,
	).First(&contribution); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &contribution, nil
}

// GetContributionByRow retrieves a contribution by its row id
func (d *Database) GetContributionByRow(
	id uint,
) (*models.Contribution, error) {
	var contribution models.Contribution
	if result := d.db.First(&contribution, id); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &contribution, nil
}

// GetContributionVersions retrieves every version of a contribution lineage
// in version order, superseded versions included.
func (d *Database) GetContributionVersions(
	lineageID string,
) ([]models.Contribution, error) {
	var contributions []models.Contribution
	if result := d.db.Where(
		"lineage_id = ?",
		lineageID,
	).Order("version").Find(&contributions); result.Error != nil {
		return nil, result.Error
	}
	return contributions, nil
}

// GetProjectContributions retrieves all live contributions for a project
func (d *Database) GetProjectContributions(
	projectRowID uint,
) ([]models.Contribution, error) {
	var contributions []models.Contribution
	if result := d.db.Where(
		"project_id = ? AND deleted_at IS NULL AND tombstoned = ?",
		projectRowID,
		false,
	).Order("id").Find(&contributions); result.Error != nil {
		return nil, result.Error
	}
	return contributions, nil
}

// GetContributors retrieves the contributor list for a contribution row
func (d *Database) GetContributors(
	contributionRowID uint,
) ([]models.Contributor, error) {
	var contributors []models.Contributor
	if result := d.db.Where(
		"contribution_id = ?",
		contributionRowID,
	).Order("id").Find(&contributors); result.Error != nil {
		return nil, result.Error
	}
	return contributors, nil
}

// TransitionContributionStatus performs an atomic compare-and-set of the
// contribution status. Returns false when the row was not in the expected
// from status, which means another request already decided the transition.
func (d *Database) TransitionContributionStatus(
	contributionRowID uint,
	from uint8,
	to uint8,
	now time.Time,
) (bool, error) {
	result := d.db.Model(&models.Contribution{}).
		Where("id = ? AND status = ?", contributionRowID, from).
		Updates(map[string]any{
			"status":     to,
			"updated_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ReplaceContribution supersedes the current version of a contribution with
// a new one. The old row and its votes are soft-deleted and the replacement
// is inserted with the same lineage id and the next version number, all in
// one transaction. The replacement starts Validating with an empty ledger.
func (d *Database) ReplaceContribution(
	current *models.Contribution,
	replacement *models.Contribution,
	contributors []models.Contributor,
	now time.Time,
) error {
	replacement.LineageID = current.LineageID
	replacement.Version = current.Version + 1
	replacement.ProjectID = current.ProjectID
	replacement.Status = models.ContributionStatusValidating
	return d.Transaction(func(txn *Database) error {
		if result := txn.db.Model(&models.Contribution{}).
			Where("id = ? AND deleted_at IS NULL", current.ID).
			Updates(map[string]any{
				"deleted_at": now,
				"updated_at": now,
			}); result.Error != nil {
			return result.Error
		} else if result.RowsAffected == 0 {
			return models.ErrContributionNotFound
		}
		if err := txn.SoftDeleteContributionVotes(current.ID, now); err != nil {
			return err
		}
		if result := txn.db.Create(replacement); result.Error != nil {
			return result.Error
		}
		for i := range contributors {
			contributors[i].ContributionID = replacement.ID
			if result := txn.db.Create(&contributors[i]); result.Error != nil {
				return result.Error
			}
		}
		return nil
	})
}

// TombstoneContribution marks a contribution as genuinely deleted, as
// opposed to superseded by an edit
func (d *Database) TombstoneContribution(
	contributionRowID uint,
	now time.Time,
) error {
	return d.Transaction(func(txn *Database) error {
		if result := txn.db.Model(&models.Contribution{}).
			Where("id = ?", contributionRowID).
			Updates(map[string]any{
				"tombstoned": true,
				"updated_at": now,
			}); result.Error != nil {
			return result.Error
		} else if result.RowsAffected == 0 {
			return models.ErrContributionNotFound
		}
		return txn.SoftDeleteContributionVotes(contributionRowID, now)
	})
}

// SetContributionChainRef stores the contribution's 32-byte on-chain
// reference, only when unset, and returns the stored value
func (d *Database) SetContributionChainRef(
	contributionRowID uint,
	chainRef []byte,
) ([]byte, error) {
	if result := d.db.Model(&models.Contribution{}).
		Where(
			"id = ? AND (chain_ref IS NULL OR length(chain_ref) = 0)",
			contributionRowID,
		).
		Update("chain_ref", chainRef); result.Error != nil {
		return nil, result.Error
	}
	contribution, err := d.GetContributionByRow(contributionRowID)
	if err != nil {
		return nil, err
	}
	if contribution == nil {
		return nil, models.ErrContributionNotFound
	}
	return contribution.ChainRef, nil
}

// SetPublishArtifacts stores the publish payload, digests and timestamp for
// a contribution and moves it from Passed to OnChain in one atomic update.
// Returns false when the contribution was not in Passed, meaning another
// request already committed it.
func (d *Database) SetPublishArtifacts(
	contributionRowID uint,
	contentDigest []byte,
	payloadDigest []byte,
	payload []byte,
	txRef string,
	now time.Time,
) (bool, error) {
	result := d.db.Model(&models.Contribution{}).
		Where(
			"id = ? AND status = ? AND published_at IS NULL",
			contributionRowID,
			models.ContributionStatusPassed,
		).
		Updates(map[string]any{
			"status":          models.ContributionStatusOnChain,
			"content_digest":  contentDigest,
			"payload_digest":  payloadDigest,
			"publish_payload": payload,
			"published_at":    now,
			"tx_ref":          txRef,
			"updated_at":      now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
