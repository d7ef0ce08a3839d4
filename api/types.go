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

package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/merito-labs/merito/database/models"
)

// ErrorResponse is the JSON error envelope
type ErrorResponse struct {
	StatusCode int    `json:"status_code"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

// RootResponse is the response for GET /
type RootResponse struct {
	Service string `json:"service"`
	Version string `json:"version"`
}

// HealthResponse is the response for GET /health
type HealthResponse struct {
	IsHealthy bool `json:"is_healthy"`
}

// MemberRequest describes one project member with its roles
type MemberRequest struct {
	Account string   `json:"account"`
	Roles   []string `json:"roles"`
}

// ProjectRequest is the body for POST /api/v1/projects
type ProjectRequest struct {
	Name            string          `json:"name"`
	ValidationMode  string          `json:"validation_mode"`
	Strategy        string          `json:"strategy"`
	StrategyConfig  string          `json:"strategy_config,omitempty"`
	ContractAddress string          `json:"contract_address,omitempty"`
	Members         []MemberRequest `json:"members"`
}

// ProjectResponse describes a project
type ProjectResponse struct {
	ProjectID       string `json:"project_id"`
	Name            string `json:"name"`
	ValidationMode  string `json:"validation_mode"`
	Strategy        string `json:"strategy"`
	ContractAddress string `json:"contract_address,omitempty"`
}

// ContributorRequest credits an account with a share in basis points
type ContributorRequest struct {
	Account string `json:"account"`
	Share   uint32 `json:"share"`
}

// ContributionRequest is the body for creating or editing a contribution
type ContributionRequest struct {
	Detail       string               `json:"detail"`
	Hours        float64              `json:"hours"`
	Tags         []string             `json:"tags,omitempty"`
	StartAt      *time.Time           `json:"start_at,omitempty"`
	EndAt        *time.Time           `json:"end_at,omitempty"`
	Contributors []ContributorRequest `json:"contributors"`
}

// ContributionResponse describes one version of a contribution
type ContributionResponse struct {
	ContributionID string               `json:"contribution_id"`
	LineageID      string               `json:"lineage_id"`
	Version        uint                 `json:"version"`
	Status         string               `json:"status"`
	Detail         string               `json:"detail"`
	Hours          float64              `json:"hours"`
	Tags           []string             `json:"tags,omitempty"`
	StartAt        *time.Time           `json:"start_at,omitempty"`
	EndAt          *time.Time           `json:"end_at,omitempty"`
	Contributors   []ContributorRequest `json:"contributors,omitempty"`
	TxRef          string               `json:"tx_ref,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
	// CallerNonce is the requesting account's current vote nonce, included
	// when the caller header is present so a stale-nonce voter can resubmit
	CallerNonce *uint64 `json:"caller_nonce,omitempty"`
}

// VoteRequest is the body for POST /api/v1/contributions/{id}/votes
type VoteRequest struct {
	Voter     string `json:"voter"`
	Choice    string `json:"choice"`
	Nonce     uint64 `json:"nonce"`
	Signature string `json:"signature"` // hex, 65 bytes
}

// VoteResponse describes an accepted vote
type VoteResponse struct {
	VoteID string `json:"vote_id"`
	Voter  string `json:"voter"`
	Choice string `json:"choice"`
	Nonce  uint64 `json:"nonce"`
	Status string `json:"status"`
}

// TallyResponse is the live vote tally for a contribution
type TallyResponse struct {
	Pass   int    `json:"pass"`
	Fail   int    `json:"fail"`
	Skip   int    `json:"skip"`
	Total  int    `json:"total"`
	Status string `json:"status"`
}

// PublishResponse describes a publish result
type PublishResponse struct {
	ContributionID   string `json:"contribution_id"`
	TxRef            string `json:"tx_ref,omitempty"`
	ContentDigest    string `json:"content_digest"`
	PayloadDigest    string `json:"payload_digest"`
	AlreadyPublished bool   `json:"already_published"`
}

func contributionResponse(
	contribution *models.Contribution,
	contributors []models.Contributor,
) ContributionResponse {
	resp := ContributionResponse{
		ContributionID: contribution.ContributionID,
		LineageID:      contribution.LineageID,
		Version:        contribution.Version,
		Status:         models.ContributionStatusString(contribution.Status),
		Detail:         contribution.Detail,
		Hours:          contribution.Hours,
		StartAt:        contribution.StartAt,
		EndAt:          contribution.EndAt,
		TxRef:          contribution.TxRef,
		CreatedAt:      contribution.CreatedAt,
		UpdatedAt:      contribution.UpdatedAt,
	}
	if contribution.Tags != "" {
		resp.Tags = strings.Split(contribution.Tags, ",")
	}
	for _, c := range contributors {
		resp.Contributors = append(resp.Contributors, ContributorRequest{
			Account: c.AccountID,
			Share:   c.Share,
		})
	}
	return resp
}

func parseRoles(roles []string) (uint8, error) {
	var out uint8
	for _, role := range roles {
		switch strings.ToLower(role) {
		case "admin":
			out |= models.RoleAdmin
		case "validator":
			out |= models.RoleValidator
		case "contributor":
			out |= models.RoleContributor
		default:
			return 0, fmt.Errorf("unknown role: %s", role)
		}
	}
	return out, nil
}

func parseValidationMode(mode string) (uint8, error) {
	switch strings.ToLower(mode) {
	case "", "specific-members":
		return models.ValidationModeSpecificMembers, nil
	case "all-members":
		return models.ValidationModeAllMembers, nil
	default:
		return 0, fmt.Errorf("unknown validation mode: %s", mode)
	}
}

func validationModeString(mode uint8) string {
	if mode == models.ValidationModeAllMembers {
		return "all-members"
	}
	return "specific-members"
}
