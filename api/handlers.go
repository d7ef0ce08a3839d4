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
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/merito-labs/merito/database"
	"github.com/merito-labs/merito/database/models"
	"github.com/merito-labs/merito/publish"
	"github.com/merito-labs/merito/signing"
	"github.com/merito-labs/merito/validation"
)

const apiVersion = "0.1.0"

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck,errchkjson
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error envelope
func writeError(
	w http.ResponseWriter,
	status int,
	errStr string,
	message string,
) {
	writeJSON(w, status, ErrorResponse{
		StatusCode: status,
		Error:      errStr,
		Message:    message,
	})
}

// writeServiceError maps the error taxonomy onto HTTP status codes
func (a *Api) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrProjectNotFound),
		errors.Is(err, models.ErrContributionNotFound),
		errors.Is(err, models.ErrVoteNotFound):
		writeError(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, validation.ErrForbidden):
		writeError(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, database.ErrStaleNonce):
		writeError(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, signing.ErrSignerMismatch):
		writeError(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	case errors.Is(err, signing.ErrInvalidSignatureFormat),
		errors.Is(err, validation.ErrInvalidChoice),
		errors.Is(err, validation.ErrInvalidTag):
		writeError(w, http.StatusBadRequest, "Bad Request", err.Error())
	case errors.Is(err, publish.ErrPublishNotReady):
		writeError(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, publish.ErrPublishFailed):
		writeError(w, http.StatusBadGateway, "Bad Gateway", err.Error())
	default:
		a.logger.Error("request failed", "error", err)
		writeError(
			w,
			http.StatusInternalServerError,
			"Internal Server Error",
			"internal error",
		)
	}
}

// caller extracts and validates the requesting account from the caller
// header. Returns false after writing the error response.
func (a *Api) caller(
	w http.ResponseWriter,
	r *http.Request,
) (signing.Address, bool) {
	raw := r.Header.Get(CallerHeader)
	if raw == "" {
		writeError(
			w,
			http.StatusUnauthorized,
			"Unauthorized",
			"missing "+CallerHeader+" header",
		)
		return signing.Address{}, false
	}
	addr, err := signing.ParseAddress(raw)
	if err != nil {
		writeError(
			w,
			http.StatusUnauthorized,
			"Unauthorized",
			"invalid "+CallerHeader+" header",
		)
		return signing.Address{}, false
	}
	return addr, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(
			w,
			http.StatusBadRequest,
			"Bad Request",
			"invalid request body",
		)
		return false
	}
	return true
}

// handleRoot handles GET / and returns API metadata
func (a *Api) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, RootResponse{
		Service: "merito",
		Version: apiVersion,
	})
}

// handleHealth handles GET /health
func (a *Api) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{IsHealthy: true})
}

// handleCreateProject handles POST /api/v1/projects
func (a *Api) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req ProjectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	mode, err := parseValidationMode(req.ValidationMode)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	strategy := validation.StrategySimple
	if req.Strategy != "" {
		var ok bool
		strategy, ok = validation.StrategyKindFromString(req.Strategy)
		if !ok {
			writeError(
				w,
				http.StatusBadRequest,
				"Bad Request",
				"unknown strategy: "+req.Strategy,
			)
			return
		}
	}
	members := make([]models.Member, 0, len(req.Members))
	for _, m := range req.Members {
		addr, err := signing.ParseAddress(m.Account)
		if err != nil {
			writeError(
				w,
				http.StatusBadRequest,
				"Bad Request",
				"invalid member account: "+m.Account,
			)
			return
		}
		roles, err := parseRoles(m.Roles)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Bad Request", err.Error())
			return
		}
		members = append(members, models.Member{
			AccountID: strings.ToLower(addr.String()),
			Roles:     roles,
		})
	}
	project := &models.Project{
		ProjectID:       uuid.NewString(),
		Name:            req.Name,
		ValidationMode:  mode,
		StrategyKind:    uint8(strategy),
		StrategyConfig:  req.StrategyConfig,
		ContractAddress: strings.ToLower(req.ContractAddress),
	}
	if err := a.config.Database.CreateProject(project, members); err != nil {
		if errors.Is(err, database.ErrNoAdminMember) {
			writeError(w, http.StatusBadRequest, "Bad Request", err.Error())
			return
		}
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, projectResponse(project))
}

func projectResponse(project *models.Project) ProjectResponse {
	return ProjectResponse{
		ProjectID:       project.ProjectID,
		Name:            project.Name,
		ValidationMode:  validationModeString(project.ValidationMode),
		Strategy:        validation.StrategyKind(project.StrategyKind).String(),
		ContractAddress: project.ContractAddress,
	}
}

// handleGetProject handles GET /api/v1/projects/{projectId}
func (a *Api) handleGetProject(w http.ResponseWriter, r *http.Request) {
	project, err := a.config.Database.GetProject(r.PathValue("projectId"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	if project == nil {
		a.writeServiceError(w, models.ErrProjectNotFound)
		return
	}
	writeJSON(w, http.StatusOK, projectResponse(project))
}

// handleListContributions handles
// GET /api/v1/projects/{projectId}/contributions
func (a *Api) handleListContributions(
	w http.ResponseWriter,
	r *http.Request,
) {
	project, err := a.config.Database.GetProject(r.PathValue("projectId"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	if project == nil {
		a.writeServiceError(w, models.ErrProjectNotFound)
		return
	}
	contributions, err := a.config.Database.GetProjectContributions(
		project.ID,
	)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	resp := make([]ContributionResponse, 0, len(contributions))
	for i := range contributions {
		resp = append(resp, contributionResponse(&contributions[i], nil))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *Api) contributionInput(
	w http.ResponseWriter,
	req ContributionRequest,
) (validation.ContributionInput, bool) {
	input := validation.ContributionInput{
		Detail:  req.Detail,
		Hours:   req.Hours,
		Tags:    req.Tags,
		StartAt: req.StartAt,
		EndAt:   req.EndAt,
	}
	for _, c := range req.Contributors {
		addr, err := signing.ParseAddress(c.Account)
		if err != nil {
			writeError(
				w,
				http.StatusBadRequest,
				"Bad Request",
				"invalid contributor account: "+c.Account,
			)
			return input, false
		}
		input.Contributors = append(
			input.Contributors,
			validation.ContributorInput{AccountID: addr, Share: c.Share},
		)
	}
	return input, true
}

// handleCreateContribution handles
// POST /api/v1/projects/{projectId}/contributions
func (a *Api) handleCreateContribution(
	w http.ResponseWriter,
	r *http.Request,
) {
	if _, ok := a.caller(w, r); !ok {
		return
	}
	var req ContributionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	input, ok := a.contributionInput(w, req)
	if !ok {
		return
	}
	contribution, err := a.config.Service.CreateContribution(
		r.PathValue("projectId"),
		input,
	)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(
		w,
		http.StatusCreated,
		contributionResponse(contribution, nil),
	)
}

// handleGetContribution handles GET /api/v1/contributions/{id}
func (a *Api) handleGetContribution(
	w http.ResponseWriter,
	r *http.Request,
) {
	contribution, err := a.config.Database.GetContribution(
		r.PathValue("id"),
	)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	if contribution == nil {
		a.writeServiceError(w, models.ErrContributionNotFound)
		return
	}
	contributors, err := a.config.Database.GetContributors(contribution.ID)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	resp := contributionResponse(contribution, contributors)
	// The caller header is optional here: when present, report the
	// account's current vote nonce so a stale-nonce voter can resubmit
	if raw := r.Header.Get(CallerHeader); raw != "" {
		caller, ok := a.caller(w, r)
		if !ok {
			return
		}
		nonce, err := a.config.Service.VoterNonce(
			contribution.ContributionID,
			caller,
		)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		resp.CallerNonce = &nonce
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleEditContribution handles PUT /api/v1/contributions/{id}
func (a *Api) handleEditContribution(
	w http.ResponseWriter,
	r *http.Request,
) {
	if _, ok := a.caller(w, r); !ok {
		return
	}
	var req ContributionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	input, ok := a.contributionInput(w, req)
	if !ok {
		return
	}
	replacement, err := a.config.Service.EditContribution(
		r.PathValue("id"),
		input,
	)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contributionResponse(replacement, nil))
}

// handleDeleteContribution handles DELETE /api/v1/contributions/{id}
func (a *Api) handleDeleteContribution(
	w http.ResponseWriter,
	r *http.Request,
) {
	if _, ok := a.caller(w, r); !ok {
		return
	}
	if err := a.config.Service.DeleteContribution(
		r.PathValue("id"),
	); err != nil {
		a.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleTally handles GET /api/v1/contributions/{id}/tally
func (a *Api) handleTally(w http.ResponseWriter, r *http.Request) {
	contributionID := r.PathValue("id")
	tally, err := a.config.Service.Tally(contributionID)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	status, err := a.config.Service.ContributionStatus(contributionID)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, TallyResponse{
		Pass:   tally.Pass,
		Fail:   tally.Fail,
		Skip:   tally.Skip,
		Total:  tally.Total(),
		Status: models.ContributionStatusString(status),
	})
}

// handleSubmitVote handles POST /api/v1/contributions/{id}/votes
func (a *Api) handleSubmitVote(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.caller(w, r); !ok {
		return
	}
	var req VoteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	voter, err := signing.ParseAddress(req.Voter)
	if err != nil {
		writeError(
			w,
			http.StatusBadRequest,
			"Bad Request",
			"invalid voter address",
		)
		return
	}
	choice, ok := models.VoteChoiceFromString(req.Choice)
	if !ok {
		a.writeServiceError(w, validation.ErrInvalidChoice)
		return
	}
	signature, err := hex.DecodeString(
		strings.TrimPrefix(req.Signature, "0x"),
	)
	if err != nil {
		a.writeServiceError(w, signing.ErrInvalidSignatureFormat)
		return
	}
	contributionID := r.PathValue("id")
	vote, err := a.config.Service.SubmitVote(validation.SubmitVoteRequest{
		ContributionID: contributionID,
		Voter:          voter,
		Choice:         choice,
		Nonce:          req.Nonce,
		Signature:      signature,
	})
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	status, err := a.config.Service.ContributionStatus(contributionID)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, VoteResponse{
		VoteID: vote.VoteID,
		Voter:  vote.Voter,
		Choice: models.VoteChoiceString(vote.Choice),
		Nonce:  vote.Nonce,
		Status: models.ContributionStatusString(status),
	})
}

// handleWithdrawVote handles DELETE /api/v1/contributions/{id}/votes. The
// withdrawn vote is the caller's own.
func (a *Api) handleWithdrawVote(w http.ResponseWriter, r *http.Request) {
	voter, ok := a.caller(w, r)
	if !ok {
		return
	}
	if err := a.config.Service.WithdrawVote(
		r.PathValue("id"),
		voter,
	); err != nil {
		a.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handlePublish handles POST /api/v1/contributions/{id}/publish. Used to
// retry a publish after a chain submission failure; publishing an OnChain
// contribution is an idempotent no-op.
func (a *Api) handlePublish(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.caller(w, r); !ok {
		return
	}
	result, err := a.config.Publisher.Publish(
		r.Context(),
		r.PathValue("id"),
	)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PublishResponse{
		ContributionID:   result.ContributionID,
		TxRef:            result.TxRef,
		ContentDigest:    "0x" + hex.EncodeToString(result.ContentDigest),
		PayloadDigest:    "0x" + hex.EncodeToString(result.PayloadDigest),
		AlreadyPublished: result.AlreadyPublished,
	})
}
