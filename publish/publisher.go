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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/merito-labs/merito/database"
	"github.com/merito-labs/merito/database/models"
	"github.com/merito-labs/merito/event"
	"github.com/merito-labs/merito/signing"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ErrPublishNotReady is returned when publishing a contribution that
	// is not in Passed status
	ErrPublishNotReady = errors.New("contribution is not ready to publish")
	// ErrPublishFailed wraps chain submission errors. The contribution
	// stays Passed and the publish can be retried.
	ErrPublishFailed = errors.New("chain submission failed")
)

// ChainSubmitter is the external collaborator that broadcasts a payload to
// the chain and returns a transaction reference. Transaction construction,
// gas handling and retries below this boundary are out of scope.
type ChainSubmitter interface {
	Submit(
		ctx context.Context,
		contractAddress string,
		payload []byte,
	) (string, error)
}

// Result describes a completed or already-completed publish
type Result struct {
	ContributionID string
	Payload        []byte
	ContentDigest  []byte
	PayloadDigest  []byte
	TxRef          string
	// AlreadyPublished is true when the contribution was OnChain before
	// this call and the stored artifacts were returned unchanged
	AlreadyPublished bool
}

// Publisher builds canonical publish payloads for passed contributions and
// commits them on-chain via the ChainSubmitter. It consumes
// ContributionPassed events from the bus; the idempotence guard on commit
// absorbs duplicate events and re-entrant triggers.
type Publisher struct {
	db        *database.Database
	bus       *event.EventBus
	submitter ChainSubmitter
	verifier  *signing.Verifier
	logger    *slog.Logger
	metrics   *publisherMetrics
}

// Config contains the dependencies for a Publisher
type Config struct {
	Database     *database.Database
	EventBus     *event.EventBus
	Submitter    ChainSubmitter
	Verifier     *signing.Verifier
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
}

// New creates a Publisher
func New(cfg Config) *Publisher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	p := &Publisher{
		db:        cfg.Database,
		bus:       cfg.EventBus,
		submitter: cfg.Submitter,
		verifier:  cfg.Verifier,
		logger:    logger.With("component", "publish"),
	}
	if cfg.PromRegistry != nil {
		p.initMetrics(cfg.PromRegistry)
	}
	return p
}

// Start subscribes the publisher to contribution-passed events
func (p *Publisher) Start() {
	if p.bus == nil {
		return
	}
	p.bus.SubscribeFunc(
		event.ContributionPassedEventType,
		p.handleContributionPassed,
	)
}

func (p *Publisher) handleContributionPassed(evt event.Event) {
	passed, ok := evt.Data.(event.ContributionPassedEvent)
	if !ok {
		return
	}
	// Publish failure leaves the contribution Passed; it can be retried
	// through the API
	if _, err := p.Publish(
		context.Background(),
		passed.ContributionID,
	); err != nil {
		p.logger.Error(
			"failed to publish passed contribution",
			"contribution", passed.ContributionID,
			"error", err,
		)
	}
}

// BuildPayload assembles the canonical publish payload for a contribution.
// For an already-published contribution the stored payload is returned
// unchanged rather than recomputed.
func (p *Publisher) BuildPayload(contributionID string) (*Result, error) {
	contribution, err := p.db.GetContribution(contributionID)
	if err != nil {
		return nil, err
	}
	if contribution == nil {
		return nil, models.ErrContributionNotFound
	}
	if contribution.PublishedAt != nil && contribution.PublishPayload != nil {
		return &Result{
			ContributionID:   contribution.ContributionID,
			Payload:          contribution.PublishPayload,
			ContentDigest:    contribution.ContentDigest,
			PayloadDigest:    contribution.PayloadDigest,
			TxRef:            contribution.TxRef,
			AlreadyPublished: true,
		}, nil
	}
	if contribution.Status != models.ContributionStatusPassed {
		return nil, fmt.Errorf(
			"%w: status is %s",
			ErrPublishNotReady,
			models.ContributionStatusString(contribution.Status),
		)
	}
	project, err := p.db.GetProjectByRow(contribution.ProjectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, models.ErrProjectNotFound
	}
	// Stable 32-byte references, computed once and cached
	projectRef, err := p.db.SetProjectChainRef(
		project.ID,
		ChainRef(project.ProjectID),
	)
	if err != nil {
		return nil, err
	}
	contributionRef, err := p.db.SetContributionChainRef(
		contribution.ID,
		ChainRef(contribution.ContributionID),
	)
	if err != nil {
		return nil, err
	}
	contributors, err := p.db.GetContributors(contribution.ID)
	if err != nil {
		return nil, err
	}
	votes, err := p.db.GetLiveVotes(contribution.ID)
	if err != nil {
		return nil, err
	}
	snapshot := buildSnapshot(contribution, contributors)
	snapshotBytes, err := json.Marshal(snapshot)
	if err != nil {
		return nil, err
	}
	contentDigest := digestBytes(snapshotBytes)
	payload := Payload{
		ProjectRef:      hexEncode(projectRef),
		ContributionRef: hexEncode(contributionRef),
		ContentDigest:   hexEncode(contentDigest),
		Snapshot:        snapshot,
		Votes:           p.voteRecords(project, contribution, votes),
	}
	encoded, payloadDigest, err := encodePayload(payload)
	if err != nil {
		return nil, err
	}
	return &Result{
		ContributionID: contribution.ContributionID,
		Payload:        encoded,
		ContentDigest:  contentDigest,
		PayloadDigest:  payloadDigest,
	}, nil
}

// voteRecords filters the live votes down to those carrying a verifiable
// signature and a positive nonce. A vote that fails re-verification is
// excluded from the payload rather than failing the publish.
func (p *Publisher) voteRecords(
	project *models.Project,
	contribution *models.Contribution,
	votes []models.Vote,
) []VoteRecord {
	records := make([]VoteRecord, 0, len(votes))
	for _, vote := range votes {
		if vote.Nonce == 0 || len(vote.Signature) != signing.SignatureLength {
			continue
		}
		if p.verifier != nil {
			voter, err := signing.ParseAddress(vote.Voter)
			if err != nil {
				continue
			}
			msg := signing.VoteMessage{
				ProjectID:      project.ProjectID,
				ContributionID: contribution.ContributionID,
				Voter:          voter,
				Choice:         vote.Choice,
				Nonce:          vote.Nonce,
			}
			if err := p.verifier.Verify(
				msg, vote.Signature, voter,
			); err != nil {
				p.logger.Warn(
					"excluding vote with unverifiable signature",
					"contribution", contribution.ContributionID,
					"voter", vote.Voter,
				)
				continue
			}
		}
		records = append(records, VoteRecord{
			Voter:     vote.Voter,
			Choice:    models.VoteChoiceString(vote.Choice),
			Nonce:     vote.Nonce,
			Signature: hexEncode(vote.Signature),
		})
	}
	return records
}

// Publish builds the payload, hands it to the chain submission service and
// commits the result. Calling Publish on an OnChain contribution is an
// idempotent no-op returning the stored artifacts.
func (p *Publisher) Publish(
	ctx context.Context,
	contributionID string,
) (*Result, error) {
	result, err := p.BuildPayload(contributionID)
	if err != nil {
		return nil, err
	}
	if result.AlreadyPublished {
		return result, nil
	}
	txRef := ""
	if p.submitter != nil {
		contribution, err := p.db.GetContribution(contributionID)
		if err != nil {
			return nil, err
		}
		if contribution == nil {
			return nil, models.ErrContributionNotFound
		}
		project, err := p.db.GetProjectByRow(contribution.ProjectID)
		if err != nil {
			return nil, err
		}
		if project == nil {
			return nil, models.ErrProjectNotFound
		}
		txRef, err = p.submitter.Submit(
			ctx,
			project.ContractAddress,
			result.Payload,
		)
		if err != nil {
			if p.metrics != nil {
				p.metrics.publishFailures.Inc()
			}
			// The contribution stays Passed; never regress its status
			return nil, fmt.Errorf("%w: %s", ErrPublishFailed, err)
		}
	}
	return p.Commit(contributionID, txRef)
}

// Commit stores the publish artifacts and moves the contribution from
// Passed to OnChain. A second commit is a no-op returning the stored
// result, so duplicate events or concurrent triggers cannot produce two
// transactions.
func (p *Publisher) Commit(
	contributionID string,
	txRef string,
) (*Result, error) {
	contribution, err := p.db.GetContribution(contributionID)
	if err != nil {
		return nil, err
	}
	if contribution == nil {
		return nil, models.ErrContributionNotFound
	}
	result, err := p.BuildPayload(contributionID)
	if err != nil {
		return nil, err
	}
	if result.AlreadyPublished {
		return result, nil
	}
	now := time.Now()
	committed, err := p.db.SetPublishArtifacts(
		contribution.ID,
		result.ContentDigest,
		result.PayloadDigest,
		result.Payload,
		txRef,
		now,
	)
	if err != nil {
		return nil, err
	}
	if !committed {
		// Another caller committed first; return what it stored
		return p.BuildPayload(contributionID)
	}
	result.TxRef = txRef
	if p.metrics != nil {
		p.metrics.publishes.Inc()
	}
	p.logger.Info(
		"contribution published on-chain",
		"contribution", contributionID,
		"tx_ref", txRef,
	)
	if p.bus != nil {
		project, err := p.db.GetProjectByRow(contribution.ProjectID)
		if err == nil && project != nil {
			p.bus.Publish(
				event.ContributionPublishedEventType,
				event.NewEvent(
					event.ContributionPublishedEventType,
					event.ContributionPublishedEvent{
						ProjectID:      project.ProjectID,
						ContributionID: contributionID,
						TxRef:          txRef,
						Timestamp:      now,
					},
				),
			)
		}
	}
	return result, nil
}
