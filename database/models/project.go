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

var ErrProjectNotFound = errors.New("project not found")

// ValidationMode constants select which members count as eligible voters.
const (
	ValidationModeSpecificMembers = 0 // members holding the Validator role
	ValidationModeAllMembers      = 1 // every current member
)

// Member role bits
const (
	RoleAdmin       = 1 << 0
	RoleValidator   = 1 << 1
	RoleContributor = 1 << 2
)

// Project represents a collaborative project whose contributions go through
// peer validation. The strategy fields describe how votes are turned into a
// pass/fail decision; ContractAddress is only required for publishing.
type Project struct {
	ID              uint   `gorm:"primarykey"`
	ProjectID       string `gorm:"uniqueIndex;size:64;not null"`
	Name            string `gorm:"size:128"`
	ValidationMode  uint8  `gorm:"not null"` // 0=SpecificMembers, 1=AllMembers
	StrategyKind    uint8  `gorm:"not null"` // validation.StrategyKind
	StrategyConfig  string `gorm:"size:512"` // JSON config for reserved strategy kinds
	ContractAddress string `gorm:"size:42"`
	// ChainRef is the cached 32-byte on-chain reference for the project.
	// Computed once on first publish and never recomputed, so on-chain
	// references stay stable across re-reads.
	ChainRef   []byte `gorm:"size:32"`
	Tombstoned bool   `gorm:"index"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TableName returns the table name
func (Project) TableName() string {
	return "project"
}

// Member represents a project member and their role set.
type Member struct {
	ID        uint   `gorm:"primarykey"`
	ProjectID uint   `gorm:"index:idx_member_project;uniqueIndex:idx_member_unique,priority:1;not null"`
	AccountID string `gorm:"uniqueIndex:idx_member_unique,priority:2;size:42;not null"` // lowercased 0x address
	Roles     uint8  `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName returns the table name
func (Member) TableName() string {
	return "member"
}

// HasRole returns true if the member's role set includes the given role bit
func (m *Member) HasRole(role uint8) bool {
	return m.Roles&role != 0
}
