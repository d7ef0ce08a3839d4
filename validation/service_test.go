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

package validation_test

import (
	"strings"
	"testing"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merito-labs/merito/database"
	"github.com/merito-labs/merito/database/models"
	"github.com/merito-labs/merito/event"
	"github.com/merito-labs/merito/signing"
	"github.com/merito-labs/merito/validation"
)

type testAccount struct {
	key     *secp256k1.PrivateKey
	address signing.Address
}

func newTestAccount(t *testing.T) testAccount {
	t.Helper()
	key, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	return testAccount{
		key:     key,
		address: signing.PubkeyToAddress(key.PubKey()),
	}
}

func (a testAccount) memberID() string {
	return strings.ToLower(a.address.String())
}

type testEnv struct {
	db           *database.Database
	bus          *event.EventBus
	verifier     *signing.Verifier
	service      *validation.Service
	project      *models.Project
	validators   []testAccount
	contributor  testAccount
	contribution *models.Contribution
}

// setupTestEnv creates a project with three validators and one
// contributor-only member, plus one contribution credited to the
// contributor
func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.New(nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Close() //nolint:errcheck
	})
	bus := event.NewEventBus(nil)
	t.Cleanup(bus.Stop)
	verifier, err := signing.NewVerifier(signing.Domain{
		Name:    "merito",
		Version: "1",
		ChainID: 10,
	})
	require.NoError(t, err)
	service := validation.NewService(validation.ServiceConfig{
		Database: db,
		EventBus: bus,
		Verifier: verifier,
	})

	validators := []testAccount{
		newTestAccount(t), newTestAccount(t), newTestAccount(t),
	}
	contributor := newTestAccount(t)
	members := []models.Member{
		{
			AccountID: validators[0].memberID(),
			Roles:     models.RoleAdmin | models.RoleValidator,
		},
		{AccountID: validators[1].memberID(), Roles: models.RoleValidator},
		{AccountID: validators[2].memberID(), Roles: models.RoleValidator},
		{AccountID: contributor.memberID(), Roles: models.RoleContributor},
	}
	project := &models.Project{
		ProjectID:      uuid.NewString(),
		Name:           "test project",
		ValidationMode: models.ValidationModeSpecificMembers,
		StrategyKind:   uint8(validation.StrategySimple),
	}
	require.NoError(t, db.CreateProject(project, members))

	contribution, err := service.CreateContribution(
		project.ProjectID,
		validation.ContributionInput{
			Detail: "implemented the widget",
			Hours:  8,
			Tags:   []string{"dev"},
			Contributors: []validation.ContributorInput{
				{AccountID: contributor.address, Share: 10000},
			},
		},
	)
	require.NoError(t, err)

	return &testEnv{
		db:           db,
		bus:          bus,
		verifier:     verifier,
		service:      service,
		project:      project,
		validators:   validators,
		contributor:  contributor,
		contribution: contribution,
	}
}

func (env *testEnv) signedVote(
	account testAccount,
	contributionID string,
	choice uint8,
	nonce uint64,
) validation.SubmitVoteRequest {
	msg := signing.VoteMessage{
		ProjectID:      env.project.ProjectID,
		ContributionID: contributionID,
		Voter:          account.address,
		Choice:         choice,
		Nonce:          nonce,
	}
	return validation.SubmitVoteRequest{
		ContributionID: contributionID,
		Voter:          account.address,
		Choice:         choice,
		Nonce:          nonce,
		Signature:      env.verifier.Sign(msg, account.key),
	}
}

func waitForEvent(
	t *testing.T,
	evtCh <-chan event.Event,
) event.Event {
	t.Helper()
	select {
	case evt := <-evtCh:
		return evt
	case <-time.After(1 * time.Second):
		t.Fatalf("timeout waiting for event")
		return event.Event{}
	}
}

func TestSubmitVotePassLifecycle(t *testing.T) {
	env := setupTestEnv(t)
	_, passedCh := env.bus.Subscribe(event.ContributionPassedEventType)

	// 3 eligible validators: passing needs more than 1.5 votes, i.e. 2
	vote, err := env.service.SubmitVote(env.signedVote(
		env.validators[0], env.contribution.ContributionID,
		models.VoteChoicePass, 1,
	))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), vote.Nonce)
	status, err := env.service.ContributionStatus(
		env.contribution.ContributionID,
	)
	require.NoError(t, err)
	assert.Equal(t, uint8(models.ContributionStatusValidating), status)

	_, err = env.service.SubmitVote(env.signedVote(
		env.validators[1], env.contribution.ContributionID,
		models.VoteChoicePass, 1,
	))
	require.NoError(t, err)
	status, err = env.service.ContributionStatus(
		env.contribution.ContributionID,
	)
	require.NoError(t, err)
	assert.Equal(t, uint8(models.ContributionStatusPassed), status)

	evt := waitForEvent(t, passedCh)
	passed, ok := evt.Data.(event.ContributionPassedEvent)
	require.True(t, ok)
	assert.Equal(t, env.contribution.ContributionID, passed.ContributionID)
	assert.Equal(t, env.project.ProjectID, passed.ProjectID)

	// Voting is closed once the contribution leaves Validating
	_, err = env.service.SubmitVote(env.signedVote(
		env.validators[2], env.contribution.ContributionID,
		models.VoteChoicePass, 1,
	))
	require.ErrorIs(t, err, validation.ErrForbidden)
}

func TestSubmitVoteFailLifecycle(t *testing.T) {
	env := setupTestEnv(t)
	_, failedCh := env.bus.Subscribe(event.ContributionFailedEventType)

	for _, validator := range env.validators[:2] {
		_, err := env.service.SubmitVote(env.signedVote(
			validator, env.contribution.ContributionID,
			models.VoteChoiceFail, 1,
		))
		require.NoError(t, err)
	}
	status, err := env.service.ContributionStatus(
		env.contribution.ContributionID,
	)
	require.NoError(t, err)
	assert.Equal(t, uint8(models.ContributionStatusFailed), status)
	waitForEvent(t, failedCh)

	// A failed contribution can still be edited into a fresh version
	replacement, err := env.service.EditContribution(
		env.contribution.ContributionID,
		validation.ContributionInput{Detail: "second attempt"},
	)
	require.NoError(t, err)
	assert.Equal(
		t,
		uint8(models.ContributionStatusValidating),
		replacement.Status,
	)
	assert.Equal(t, uint(2), replacement.Version)
}

func TestSubmitVoteRejectsBadSignature(t *testing.T) {
	env := setupTestEnv(t)
	// Vote signed by a different key than the claimed voter
	req := env.signedVote(
		env.validators[0], env.contribution.ContributionID,
		models.VoteChoicePass, 1,
	)
	req.Voter = env.validators[1].address
	_, err := env.service.SubmitVote(req)
	require.ErrorIs(t, err, signing.ErrSignerMismatch)

	// No vote was persisted
	tally, err := env.service.Tally(env.contribution.ContributionID)
	require.NoError(t, err)
	assert.Equal(t, 0, tally.Total())
}

func TestSubmitVoteStaleNonce(t *testing.T) {
	env := setupTestEnv(t)
	_, err := env.service.SubmitVote(env.signedVote(
		env.validators[0], env.contribution.ContributionID,
		models.VoteChoiceSkip, 1,
	))
	require.NoError(t, err)

	// Replaying the same nonce is a concurrency conflict
	_, err = env.service.SubmitVote(env.signedVote(
		env.validators[0], env.contribution.ContributionID,
		models.VoteChoicePass, 1,
	))
	require.ErrorIs(t, err, database.ErrStaleNonce)

	// The next nonce replaces the vote
	_, err = env.service.SubmitVote(env.signedVote(
		env.validators[0], env.contribution.ContributionID,
		models.VoteChoicePass, 2,
	))
	require.NoError(t, err)
	tally, err := env.service.Tally(env.contribution.ContributionID)
	require.NoError(t, err)
	assert.Equal(t, database.Tally{Pass: 1}, tally)
}

func TestSubmitVoteSelfVoteRestriction(t *testing.T) {
	env := setupTestEnv(t)
	// The contributor is not a validator: own-contribution votes are
	// forbidden even though they are a member
	_, err := env.service.SubmitVote(env.signedVote(
		env.contributor, env.contribution.ContributionID,
		models.VoteChoicePass, 1,
	))
	require.ErrorIs(t, err, validation.ErrForbidden)
}

func TestSubmitVoteInvalidChoice(t *testing.T) {
	env := setupTestEnv(t)
	req := env.signedVote(
		env.validators[0], env.contribution.ContributionID,
		models.VoteChoicePass, 1,
	)
	req.Choice = 9
	_, err := env.service.SubmitVote(req)
	require.ErrorIs(t, err, validation.ErrInvalidChoice)
}

func TestWithdrawVote(t *testing.T) {
	env := setupTestEnv(t)
	_, err := env.service.SubmitVote(env.signedVote(
		env.validators[0], env.contribution.ContributionID,
		models.VoteChoicePass, 1,
	))
	require.NoError(t, err)
	require.NoError(t, env.service.WithdrawVote(
		env.contribution.ContributionID,
		env.validators[0].address,
	))
	tally, err := env.service.Tally(env.contribution.ContributionID)
	require.NoError(t, err)
	assert.Equal(t, 0, tally.Total())

	err = env.service.WithdrawVote(
		env.contribution.ContributionID,
		env.validators[0].address,
	)
	require.ErrorIs(t, err, models.ErrVoteNotFound)
}

func TestContributionRejectsCommaTag(t *testing.T) {
	env := setupTestEnv(t)
	_, err := env.service.CreateContribution(
		env.project.ProjectID,
		validation.ContributionInput{
			Detail: "tagged work",
			Tags:   []string{"dev,ops"},
		},
	)
	require.ErrorIs(t, err, validation.ErrInvalidTag)

	_, err = env.service.EditContribution(
		env.contribution.ContributionID,
		validation.ContributionInput{
			Detail: "edited",
			Tags:   []string{"a,b"},
		},
	)
	require.ErrorIs(t, err, validation.ErrInvalidTag)
}

func TestWithdrawVoteFinalizedForbidden(t *testing.T) {
	env := setupTestEnv(t)
	_, err := env.service.SubmitVote(env.signedVote(
		env.validators[0], env.contribution.ContributionID,
		models.VoteChoicePass, 1,
	))
	require.NoError(t, err)

	// Simulate a concurrent deciding vote landing between the withdraw
	// caller's read and its transaction
	transitioned, err := env.db.TransitionContributionStatus(
		env.contribution.ID,
		models.ContributionStatusValidating,
		models.ContributionStatusPassed,
		time.Now(),
	)
	require.NoError(t, err)
	require.True(t, transitioned)

	err = env.service.WithdrawVote(
		env.contribution.ContributionID,
		env.validators[0].address,
	)
	require.ErrorIs(t, err, validation.ErrForbidden)

	// The finalized ledger must be untouched
	tally, err := env.service.Tally(env.contribution.ContributionID)
	require.NoError(t, err)
	assert.Equal(t, database.Tally{Pass: 1}, tally)
	current, err := env.db.GetContribution(env.contribution.ContributionID)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(
		t, uint8(models.ContributionStatusPassed), current.Status,
	)
}

func TestEditResetsVoteLedger(t *testing.T) {
	env := setupTestEnv(t)
	_, err := env.service.SubmitVote(env.signedVote(
		env.validators[0], env.contribution.ContributionID,
		models.VoteChoicePass, 1,
	))
	require.NoError(t, err)

	replacement, err := env.service.EditContribution(
		env.contribution.ContributionID,
		validation.ContributionInput{
			Detail: "implemented the widget, with tests",
			Hours:  10,
			Contributors: []validation.ContributorInput{
				{AccountID: env.contributor.address, Share: 10000},
			},
		},
	)
	require.NoError(t, err)
	assert.Equal(t, env.contribution.LineageID, replacement.LineageID)

	// Fresh version starts with a clean ledger
	tally, err := env.service.Tally(replacement.ContributionID)
	require.NoError(t, err)
	assert.Equal(t, 0, tally.Total())

	// The superseded version no longer accepts votes
	_, err = env.service.SubmitVote(env.signedVote(
		env.validators[1], env.contribution.ContributionID,
		models.VoteChoicePass, 1,
	))
	require.ErrorIs(t, err, validation.ErrForbidden)
}

func TestEditFinalizedForbidden(t *testing.T) {
	env := setupTestEnv(t)
	for _, validator := range env.validators[:2] {
		_, err := env.service.SubmitVote(env.signedVote(
			validator, env.contribution.ContributionID,
			models.VoteChoicePass, 1,
		))
		require.NoError(t, err)
	}
	status, err := env.service.ContributionStatus(
		env.contribution.ContributionID,
	)
	require.NoError(t, err)
	require.Equal(t, uint8(models.ContributionStatusPassed), status)

	_, err = env.service.EditContribution(
		env.contribution.ContributionID,
		validation.ContributionInput{Detail: "sneaky edit"},
	)
	require.ErrorIs(t, err, validation.ErrForbidden)

	err = env.service.DeleteContribution(env.contribution.ContributionID)
	require.ErrorIs(t, err, validation.ErrForbidden)
}

func TestSubmitVoteUnknownContribution(t *testing.T) {
	env := setupTestEnv(t)
	req := env.signedVote(
		env.validators[0], uuid.NewString(), models.VoteChoicePass, 1,
	)
	_, err := env.service.SubmitVote(req)
	require.ErrorIs(t, err, models.ErrContributionNotFound)
}
