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

	"github.com/merito-labs/merito/database/models"

	"gorm.io/gorm"
)

// ErrNoAdminMember is returned when creating a project whose roster has no
// member with the Admin role.
var ErrNoAdminMember = errors.New("project roster has no admin member")

// CreateProject stores a project and its member roster. Every project must
// have at least one member with the Admin role.
func (d *Database) CreateProject(
	project *models.Project,
	members []models.Member,
) error {
	hasAdmin := false
	for _, member := range members {
		if member.Roles&models.RoleAdmin != 0 {
			hasAdmin = true
			break
		}
	}
	if !hasAdmin {
		return ErrNoAdminMember
	}
	return d.Transaction(func(txn *Database) error {
		if result := txn.db.Create(project); result.Error != nil {
			return result.Error
		}
		for i := range members {
			members[i].ProjectID = project.ID
			if result := txn.db.Create(&members[i]); result.Error != nil {
				return result.Error
			}
		}
		return nil
	})
}

// GetProject retrieves a project by its external id. Returns nil if no such
// project exists or it has been tombstoned.
func (d *Database) GetProject(projectID string) (*models.Project, error) {
	var project models.Project
	if result := d.db.Where(
		"project_id = ? AND tombstoned = ?",
		projectID,
		false,
	).First(&project); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &project, nil
}

// GetProjectByRow retrieves a project by its row id
func (d *Database) GetProjectByRow(id uint) (*models.Project, error) {
	var project models.Project
	if result := d.db.First(&project, id); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &project, nil
}

// GetProjectMembers retrieves the member roster for a project
func (d *Database) GetProjectMembers(
	projectRowID uint,
) ([]models.Member, error) {
	var members []models.Member
	if result := d.db.Where(
		"project_id = ?",
		projectRowID,
	).Order("id").Find(&members); result.Error != nil {
		return nil, result.Error
	}
	return members, nil
}

// SetProjectChainRef stores the project's 32-byte on-chain reference. The
// reference is only written when unset; the stored value is returned either
// way, keeping on-chain references stable once computed.
func (d *Database) SetProjectChainRef(
	projectRowID uint,
	chainRef []byte,
) ([]byte, error) {
	if result := d.db.Model(&models.Project{}).
		Where(
			"id = ? AND (chain_ref IS NULL OR length(chain_ref) = 0)",
			projectRowID,
		).
		Update("chain_ref", chainRef); result.Error != nil {
		return nil, result.Error
	}
	project, err := d.GetProjectByRow(projectRowID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, models.ErrProjectNotFound
	}
	return project.ChainRef, nil
}
