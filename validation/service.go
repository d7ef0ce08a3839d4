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

package validation

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/merito-labs/merito/database"
	"github.com/merito-labs/merito/database/models"
	"github.com/merito-labs/merito/event"
	"github.com/merito-labs/merito/signing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// ErrInvalidChoice is returned for a vote choice outside pass/fail/skip
var ErrInvalidChoice = errors.New("invalid vote choice")

// ErrInvalidTag is returned for a tag containing the comma separator used
// in storage
var ErrInvalidTag = errors.New("invalid tag")

// noTransition marks a re-evaluation that left the contribution Validating
const noTransition = -1

// Service owns the contribution lifecycle: it verifies and records votes,
// re-evaluates the approval strategy after every vote mutation, commits
// status transitions, and emits events for the on-chain publisher to
// consume.
type Service struct {
	db       *database.Database
	bus      *event.EventBus
	verifier *signing.Verifier
	logger   *slog.Logger
	metrics  *serviceMetrics
}

// ServiceConfig contains the dependencies for a validation Service
type ServiceConfig struct {
	Database     *database.Database
	EventBus     *event.EventBus
	Verifier     *signing.Verifier
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
}

// NewService creates a validation Service
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	s := &Service{
		db:       cfg.Database,
		bus:      cfg.EventBus,
		verifier: cfg.Verifier,
		logger:   logger.With("component", "validation"),
	}
	if cfg.PromRegistry != nil {
		s.initMetrics(cfg.PromRegistry)
	}
	return s
}

// SubmitVoteRequest is a signed vote submission
type SubmitVoteRequest struct {
	ContributionID string
	Voter          signing.Address
	Choice         uint8
	Nonce          uint64
	Signature      []byte
}

// SubmitVote verifies and records a vote, then re-evaluates the
// contribution's approval strategy. Signature verification happens before
// any ledger mutation; the vote upsert and the status re-evaluation run in
// one transaction.
func (s *Service) SubmitVote(
	req SubmitVoteRequest,
) (*models.Vote, error) {
	if req.Choice != models.VoteChoicePass &&
		req.Choice != models.VoteChoiceFail &&
		req.Choice != models.VoteChoiceSkip {
		return nil, ErrInvalidChoice
	}
	contribution, project, members, err := s.loadContributionContext(
		req.ContributionID,
	)
	if err != nil {
		return nil, err
	}
	contributors, err := s.db.GetContributors(contribution.ID)
	if err != nil {
		return nil, err
	}
	// Verify the signature before touching the ledger
	msg := signing.VoteMessage{
		ProjectID:      project.ProjectID,
		ContributionID: contribution.ContributionID,
		Voter:          req.Voter,
		Choice:         req.Choice,
		Nonce:          req.Nonce,
	}
	if err := s.verifier.Verify(msg, req.Signature, req.Voter); err != nil {
		s.countRejected("signature")
		return nil, err
	}
	accountID := normalizeAccount(req.Voter)
	if err := CanVote(
		project, members, contribution, contributors, accountID,
	); err != nil {
		s.countRejected("forbidden")
		return nil, err
	}
	now := time.Now()
	var vote *models.Vote
	transition := noTransition
	err = s.db.Transaction(func(txn *database.Database) error {
		// Re-check status inside the transaction: a concurrent vote may
		// have finalized the contribution since the eligibility check
		current, err := txn.GetContributionByRow(contribution.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return models.ErrContributionNotFound
		}
		if current.Status != models.ContributionStatusValidating {
			return NewForbidden(ReasonNotValidating)
		}
		digest := s.verifier.Digest(msg)
		vote, err = txn.UpsertVote(
			contribution.ID,
			accountID,
			req.Choice,
			req.Nonce,
			req.Signature,
			digest,
			now,
		)
		if err != nil {
			return err
		}
		transition, err = s.reevaluate(txn, project, members, contribution, now)
		return err
	})
	if err != nil {
		if errors.Is(err, database.ErrStaleNonce) {
			s.countRejected("stale-nonce")
		}
		return nil, err
	}
	s.countAccepted(req.Choice)
	s.emitTransition(project, contribution, transition, now)
	return vote, nil
}

// WithdrawVote soft-deletes the caller's live vote and re-evaluates the
// contribution
func (s *Service) WithdrawVote(
	contributionID string,
	voter signing.Address,
) error {
	contribution, project, members, err := s.loadContributionContext(
		contributionID,
	)
	if err != nil {
		return err
	}
	if contribution.Status != models.ContributionStatusValidating {
		return NewForbidden(ReasonNotValidating)
	}
	now := time.Now()
	transition := noTransition
	err = s.db.Transaction(func(txn *database.Database) error {
		// Re-check status inside the transaction: a concurrent vote may
		// have finalized the contribution since the snapshot read
		current, err := txn.GetContributionByRow(contribution.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return models.ErrContributionNotFound
		}
		if current.Status != models.ContributionStatusValidating {
			return NewForbidden(ReasonNotValidating)
		}
		if err := txn.WithdrawVote(
			contribution.ID,
			normalizeAccount(voter),
			now,
		); err != nil {
			return err
		}
		transition, err = s.reevaluate(txn, project, members, contribution, now)
		return err
	})
	if err != nil {
		return err
	}
	s.emitTransition(project, contribution, transition, now)
	return nil
}

// VoterNonce returns the voter's current nonce on a contribution. The nonce
// survives withdrawal, so a stale-nonce caller can re-fetch it here and
// resubmit with the successor. Zero means the voter has never voted on this
// version.
func (s *Service) VoterNonce(
	contributionID string,
	voter signing.Address,
) (uint64, error) {
	contribution, err := s.db.GetContribution(contributionID)
	if err != nil {
		return 0, err
	}
	if contribution == nil {
		return 0, models.ErrContributionNotFound
	}
	return s.db.CurrentNonce(contribution.ID, normalizeAccount(voter))
}

// Tally returns the live vote tally for a contribution
func (s *Service) Tally(contributionID string) (database.Tally, error) {
	contribution, err := s.db.GetContribution(contributionID)
	if err != nil {
		return database.Tally{}, err
	}
	if contribution == nil {
		return database.Tally{}, models.ErrContributionNotFound
	}
	return s.db.VoteTally(contribution.ID)
}

// ContributionInput carries the content fields for a new or edited
// contribution
type ContributionInput struct {
	Detail       string
	Hours        float64
	Tags         []string
	StartAt      *time.Time
	EndAt        *time.Time
	Contributors []ContributorInput
}

// ContributorInput credits an account with a share of a contribution
type ContributorInput struct {
	AccountID signing.Address
	Share     uint32
}

func (in ContributionInput) contributors() []models.Contributor {
	contributors := make([]models.Contributor, 0, len(in.Contributors))
	for _, c := range in.Contributors {
		contributors = append(contributors, models.Contributor{
			AccountID: normalizeAccount(c.AccountID),
			Share:     c.Share,
		})
	}
	return contributors
}

// joinTags flattens tags into the stored comma-separated form. A tag
// containing the separator would silently split back into two tags, so it
// is rejected instead.
func (in ContributionInput) joinTags() (string, error) {
	for _, tag := range in.Tags {
		if strings.Contains(tag, ",") {
			return "", fmt.Errorf("%w: %q", ErrInvalidTag, tag)
		}
	}
	return strings.Join(in.Tags, ","), nil
}

// CreateContribution stores a new contribution in Validating status
func (s *Service) CreateContribution(
	projectID string,
	input ContributionInput,
) (*models.Contribution, error) {
	project, err := s.db.GetProject(projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, models.ErrProjectNotFound
	}
	tags, err := input.joinTags()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	contribution := &models.Contribution{
		ContributionID: uuid.NewString(),
		LineageID:      uuid.NewString(),
		Version:        1,
		ProjectID:      project.ID,
		Status:         models.ContributionStatusValidating,
		Detail:         input.Detail,
		Hours:          input.Hours,
		Tags:           tags,
		StartAt:        input.StartAt,
		EndAt:          input.EndAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.db.CreateContribution(
		contribution,
		input.contributors(),
	); err != nil {
		return nil, err
	}
	return contribution, nil
}

// EditContribution supersedes a contribution with a new version. Editing is
// only allowed while Validating or Failed; a finalized (Passed or OnChain)
// contribution is immutable. The new version starts Validating with an
// empty vote ledger.
func (s *Service) EditContribution(
	contributionID string,
	input ContributionInput,
) (*models.Contribution, error) {
	contribution, err := s.db.GetContribution(contributionID)
	if err != nil {
		return nil, err
	}
	if contribution == nil || !contribution.Live() {
		return nil, models.ErrContributionNotFound
	}
	if contribution.Finalized() {
		return nil, NewForbidden(ReasonFinalized)
	}
	tags, err := input.joinTags()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	replacement := &models.Contribution{
		ContributionID: uuid.NewString(),
		Detail:         input.Detail,
		Hours:          input.Hours,
		Tags:           tags,
		StartAt:        input.StartAt,
		EndAt:          input.EndAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.db.ReplaceContribution(
		contribution,
		replacement,
		input.contributors(),
		now,
	); err != nil {
		return nil, err
	}
	return replacement, nil
}

// DeleteContribution tombstones a contribution. Finalized contributions
// cannot be deleted.
func (s *Service) DeleteContribution(contributionID string) error {
	contribution, err := s.db.GetContribution(contributionID)
	if err != nil {
		return err
	}
	if contribution == nil || !contribution.Live() {
		return models.ErrContributionNotFound
	}
	if contribution.Finalized() {
		return NewForbidden(ReasonFinalized)
	}
	return s.db.TombstoneContribution(contribution.ID, time.Now())
}

// reevaluate re-reads the live tally and the eligible-voter count, applies
// the project's strategy, and commits a status transition when determined.
// Runs inside the caller's transaction. Returns the new status, or
// noTransition when the contribution stays Validating (or another request
// won the transition race).
func (s *Service) reevaluate(
	txn *database.Database,
	project *models.Project,
	members []models.Member,
	contribution *models.Contribution,
	now time.Time,
) (int, error) {
	tally, err := txn.VoteTally(contribution.ID)
	if err != nil {
		return noTransition, err
	}
	eligible := EligibleVoters(project, members)
	kind := StrategyKind(project.StrategyKind)
	decision := Evaluate(kind, eligible, tally, project.StrategyConfig)
	if decision.FellBack {
		s.logger.Warn(
			"strategy kind not implemented, evaluated with simple semantics",
			"project", project.ProjectID,
			"strategy", kind.String(),
		)
		if s.metrics != nil {
			s.metrics.strategyFallbacks.Inc()
		}
	}
	if !decision.Determined {
		return noTransition, nil
	}
	to := models.ContributionStatusFailed
	if decision.Passes {
		to = models.ContributionStatusPassed
	}
	ok, err := txn.TransitionContributionStatus(
		contribution.ID,
		models.ContributionStatusValidating,
		uint8(to),
		now,
	)
	if err != nil {
		return noTransition, err
	}
	if !ok {
		// Another request already decided
		return noTransition, nil
	}
	return to, nil
}

// emitTransition publishes lifecycle events after the deciding transaction
// has committed. The publisher's idempotence guard absorbs any duplicate
// emission.
func (s *Service) emitTransition(
	project *models.Project,
	contribution *models.Contribution,
	transition int,
	now time.Time,
) {
	if transition == noTransition || s.bus == nil {
		return
	}
	if s.metrics != nil {
		s.metrics.transitions.WithLabelValues(
			models.ContributionStatusString(uint8(transition)),
		).Inc()
	}
	switch transition {
	case models.ContributionStatusPassed:
		s.logger.Info(
			"contribution passed validation",
			"project", project.ProjectID,
			"contribution", contribution.ContributionID,
		)
		s.bus.Publish(
			event.ContributionPassedEventType,
			event.NewEvent(
				event.ContributionPassedEventType,
				event.ContributionPassedEvent{
					ProjectID:      project.ProjectID,
					ContributionID: contribution.ContributionID,
					Timestamp:      now,
				},
			),
		)
	case models.ContributionStatusFailed:
		s.logger.Info(
			"contribution failed validation",
			"project", project.ProjectID,
			"contribution", contribution.ContributionID,
		)
		s.bus.Publish(
			event.ContributionFailedEventType,
			event.NewEvent(
				event.ContributionFailedEventType,
				event.ContributionFailedEvent{
					ProjectID:      project.ProjectID,
					ContributionID: contribution.ContributionID,
					Timestamp:      now,
				},
			),
		)
	}
}

func (s *Service) loadContributionContext(
	contributionID string,
) (*models.Contribution, *models.Project, []models.Member, error) {
	contribution, err := s.db.GetContribution(contributionID)
	if err != nil {
		return nil, nil, nil, err
	}
	if contribution == nil {
		return nil, nil, nil, models.ErrContributionNotFound
	}
	project, err := s.db.GetProjectByRow(contribution.ProjectID)
	if err != nil {
		return nil, nil, nil, err
	}
	if project == nil {
		return nil, nil, nil, models.ErrProjectNotFound
	}
	members, err := s.db.GetProjectMembers(project.ID)
	if err != nil {
		return nil, nil, nil, err
	}
	return contribution, project, members, nil
}

func (s *Service) countAccepted(choice uint8) {
	if s.metrics != nil {
		s.metrics.votesAccepted.WithLabelValues(
			models.VoteChoiceString(choice),
		).Inc()
	}
}

func (s *Service) countRejected(reason string) {
	if s.metrics != nil {
		s.metrics.votesRejected.WithLabelValues(reason).Inc()
	}
}

func normalizeAccount(addr signing.Address) string {
	return strings.ToLower(addr.String())
}

// ContributionStatus is a convenience helper for callers that need the
// current status of a contribution by external id
func (s *Service) ContributionStatus(contributionID string) (uint8, error) {
	contribution, err := s.db.GetContribution(contributionID)
	if err != nil {
		return 0, err
	}
	if contribution == nil {
		return 0, models.ErrContributionNotFound
	}
	return contribution.Status, nil
}
