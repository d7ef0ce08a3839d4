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

package api_test

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merito-labs/merito/api"
	"github.com/merito-labs/merito/database"
	"github.com/merito-labs/merito/event"
	"github.com/merito-labs/merito/publish"
	"github.com/merito-labs/merito/signing"
	"github.com/merito-labs/merito/validation"
)

type apiEnv struct {
	server    *httptest.Server
	db        *database.Database
	verifier  *signing.Verifier
	keys      []*secp256k1.PrivateKey
	addresses []signing.Address
	projectID string
}

type stubSubmitter struct{}

func (stubSubmitter) Submit(
	_ context.Context,
	_ string,
	_ []byte,
) (string, error) {
	return "0xstubtx", nil
}

func setupAPI(t *testing.T) *apiEnv {
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
	publisher := publish.New(publish.Config{
		Database:  db,
		EventBus:  bus,
		Submitter: stubSubmitter{},
		Verifier:  verifier,
	})
	apiServer := api.New(api.Config{
		Database:  db,
		Service:   service,
		Publisher: publisher,
	})
	server := httptest.NewServer(apiServer.Handler())
	t.Cleanup(server.Close)

	env := &apiEnv{
		server:   server,
		db:       db,
		verifier: verifier,
	}
	for range 2 {
		key, err := secp256k1.GeneratePrivateKey()
		require.NoError(t, err)
		env.keys = append(env.keys, key)
		env.addresses = append(
			env.addresses,
			signing.PubkeyToAddress(key.PubKey()),
		)
	}
	return env
}

func (env *apiEnv) request(
	t *testing.T,
	method string,
	path string,
	caller string,
	body any,
) (int, []byte) {
	t.Helper()
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewReader(encoded)
	}
	req, err := http.NewRequest(method, env.server.URL+path, reqBody)
	require.NoError(t, err)
	if caller != "" {
		req.Header.Set(api.CallerHeader, caller)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, respBody
}

// createProject provisions a two-validator project through the API
func (env *apiEnv) createProject(t *testing.T) string {
	t.Helper()
	status, body := env.request(
		t, http.MethodPost, "/api/v1/projects",
		env.addresses[0].String(),
		api.ProjectRequest{
			Name:            "api test project",
			ValidationMode:  "specific-members",
			Strategy:        "simple",
			ContractAddress: "0x00000000000000000000000000000000000000bb",
			Members: []api.MemberRequest{
				{
					Account: env.addresses[0].String(),
					Roles:   []string{"admin", "validator"},
				},
				{
					Account: env.addresses[1].String(),
					Roles:   []string{"validator"},
				},
			},
		},
	)
	require.Equal(t, http.StatusCreated, status, string(body))
	var project api.ProjectResponse
	require.NoError(t, json.Unmarshal(body, &project))
	require.NotEmpty(t, project.ProjectID)
	env.projectID = project.ProjectID
	return project.ProjectID
}

func (env *apiEnv) createContribution(t *testing.T) string {
	t.Helper()
	status, body := env.request(
		t, http.MethodPost,
		"/api/v1/projects/"+env.projectID+"/contributions",
		env.addresses[0].String(),
		api.ContributionRequest{
			Detail: "reviewed the audit findings",
			Hours:  4,
			Tags:   []string{"review"},
			Contributors: []api.ContributorRequest{
				{Account: env.addresses[0].String(), Share: 10000},
			},
		},
	)
	require.Equal(t, http.StatusCreated, status, string(body))
	var contribution api.ContributionResponse
	require.NoError(t, json.Unmarshal(body, &contribution))
	return contribution.ContributionID
}

func (env *apiEnv) voteRequest(
	keyIdx int,
	contributionID string,
	choice uint8,
	nonce uint64,
) api.VoteRequest {
	msg := signing.VoteMessage{
		ProjectID:      env.projectID,
		ContributionID: contributionID,
		Voter:          env.addresses[keyIdx],
		Choice:         choice,
		Nonce:          nonce,
	}
	sig := env.verifier.Sign(msg, env.keys[keyIdx])
	choiceStr := "pass"
	switch choice {
	case 2:
		choiceStr = "fail"
	case 3:
		choiceStr = "skip"
	}
	return api.VoteRequest{
		Voter:     env.addresses[keyIdx].String(),
		Choice:    choiceStr,
		Nonce:     nonce,
		Signature: "0x" + hex.EncodeToString(sig),
	}
}

func TestRootAndHealth(t *testing.T) {
	env := setupAPI(t)
	status, body := env.request(t, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, status)
	var root api.RootResponse
	require.NoError(t, json.Unmarshal(body, &root))
	assert.Equal(t, "merito", root.Service)

	status, body = env.request(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	var health api.HealthResponse
	require.NoError(t, json.Unmarshal(body, &health))
	assert.True(t, health.IsHealthy)
}

func TestProjectLifecycle(t *testing.T) {
	env := setupAPI(t)
	projectID := env.createProject(t)

	status, body := env.request(
		t, http.MethodGet, "/api/v1/projects/"+projectID, "", nil,
	)
	require.Equal(t, http.StatusOK, status)
	var project api.ProjectResponse
	require.NoError(t, json.Unmarshal(body, &project))
	assert.Equal(t, "api test project", project.Name)
	assert.Equal(t, "simple", project.Strategy)

	status, _ = env.request(
		t, http.MethodGet, "/api/v1/projects/no-such-project", "", nil,
	)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestProjectRequiresAdmin(t *testing.T) {
	env := setupAPI(t)
	status, body := env.request(
		t, http.MethodPost, "/api/v1/projects",
		env.addresses[0].String(),
		api.ProjectRequest{
			Name: "no admins",
			Members: []api.MemberRequest{
				{
					Account: env.addresses[0].String(),
					Roles:   []string{"validator"},
				},
			},
		},
	)
	assert.Equal(t, http.StatusBadRequest, status, string(body))
}

func TestVoteOverHTTP(t *testing.T) {
	env := setupAPI(t)
	env.createProject(t)
	contributionID := env.createContribution(t)

	// Vote submission requires the caller header
	status, _ := env.request(
		t, http.MethodPost,
		"/api/v1/contributions/"+contributionID+"/votes",
		"",
		env.voteRequest(1, contributionID, 1, 1),
	)
	assert.Equal(t, http.StatusUnauthorized, status)

	// First validator vote: accepted, contribution still validating
	status, body := env.request(
		t, http.MethodPost,
		"/api/v1/contributions/"+contributionID+"/votes",
		env.addresses[1].String(),
		env.voteRequest(1, contributionID, 1, 1),
	)
	require.Equal(t, http.StatusCreated, status, string(body))
	var vote api.VoteResponse
	require.NoError(t, json.Unmarshal(body, &vote))
	assert.Equal(t, "pass", vote.Choice)
	assert.Equal(t, "validating", vote.Status)

	// Replayed nonce
	status, _ = env.request(
		t, http.MethodPost,
		"/api/v1/contributions/"+contributionID+"/votes",
		env.addresses[1].String(),
		env.voteRequest(1, contributionID, 1, 1),
	)
	assert.Equal(t, http.StatusConflict, status)

	// Signature from the wrong key
	badVote := env.voteRequest(0, contributionID, 1, 1)
	badVote.Voter = env.addresses[1].String()
	status, _ = env.request(
		t, http.MethodPost,
		"/api/v1/contributions/"+contributionID+"/votes",
		env.addresses[1].String(),
		badVote,
	)
	assert.Equal(t, http.StatusUnauthorized, status)

	// Unknown choice
	unknownChoice := env.voteRequest(0, contributionID, 1, 1)
	unknownChoice.Choice = "abstain"
	status, _ = env.request(
		t, http.MethodPost,
		"/api/v1/contributions/"+contributionID+"/votes",
		env.addresses[0].String(),
		unknownChoice,
	)
	assert.Equal(t, http.StatusBadRequest, status)

	// Second validator vote finalizes the contribution (2 of 2 eligible)
	status, body = env.request(
		t, http.MethodPost,
		"/api/v1/contributions/"+contributionID+"/votes",
		env.addresses[0].String(),
		env.voteRequest(0, contributionID, 1, 1),
	)
	require.Equal(t, http.StatusCreated, status, string(body))
	require.NoError(t, json.Unmarshal(body, &vote))
	assert.Equal(t, "passed", vote.Status)

	status, body = env.request(
		t, http.MethodGet,
		"/api/v1/contributions/"+contributionID+"/tally",
		"", nil,
	)
	require.Equal(t, http.StatusOK, status)
	var tally api.TallyResponse
	require.NoError(t, json.Unmarshal(body, &tally))
	assert.Equal(t, 2, tally.Pass)
	assert.Equal(t, 2, tally.Total)
	assert.Equal(t, "passed", tally.Status)
}

func TestWithdrawVoteOverHTTP(t *testing.T) {
	env := setupAPI(t)
	env.createProject(t)
	contributionID := env.createContribution(t)

	status, _ := env.request(
		t, http.MethodPost,
		"/api/v1/contributions/"+contributionID+"/votes",
		env.addresses[1].String(),
		env.voteRequest(1, contributionID, 3, 1),
	)
	require.Equal(t, http.StatusCreated, status)

	// Withdraw requires the caller header
	status, _ = env.request(
		t, http.MethodDelete,
		"/api/v1/contributions/"+contributionID+"/votes",
		"", nil,
	)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = env.request(
		t, http.MethodDelete,
		"/api/v1/contributions/"+contributionID+"/votes",
		env.addresses[1].String(), nil,
	)
	assert.Equal(t, http.StatusNoContent, status)

	status, body := env.request(
		t, http.MethodGet,
		"/api/v1/contributions/"+contributionID+"/tally",
		"", nil,
	)
	require.Equal(t, http.StatusOK, status)
	var tally api.TallyResponse
	require.NoError(t, json.Unmarshal(body, &tally))
	assert.Equal(t, 0, tally.Total)
}

func TestEditAndDeleteOverHTTP(t *testing.T) {
	env := setupAPI(t)
	env.createProject(t)
	contributionID := env.createContribution(t)

	status, body := env.request(
		t, http.MethodPut,
		"/api/v1/contributions/"+contributionID,
		env.addresses[0].String(),
		api.ContributionRequest{Detail: "revised detail", Hours: 6},
	)
	require.Equal(t, http.StatusOK, status, string(body))
	var replacement api.ContributionResponse
	require.NoError(t, json.Unmarshal(body, &replacement))
	assert.Equal(t, uint(2), replacement.Version)
	assert.NotEqual(t, contributionID, replacement.ContributionID)

	// The superseded version is gone from the project listing
	status, body = env.request(
		t, http.MethodGet,
		"/api/v1/projects/"+env.projectID+"/contributions",
		"", nil,
	)
	require.Equal(t, http.StatusOK, status)
	var listing []api.ContributionResponse
	require.NoError(t, json.Unmarshal(body, &listing))
	require.Len(t, listing, 1)
	assert.Equal(t, replacement.ContributionID, listing[0].ContributionID)

	status, _ = env.request(
		t, http.MethodDelete,
		"/api/v1/contributions/"+replacement.ContributionID,
		env.addresses[0].String(), nil,
	)
	assert.Equal(t, http.StatusNoContent, status)
}

func TestCallerNonceOverHTTP(t *testing.T) {
	env := setupAPI(t)
	env.createProject(t)
	contributionID := env.createContribution(t)

	// Before any vote the caller's nonce reads zero
	status, body := env.request(
		t, http.MethodGet,
		"/api/v1/contributions/"+contributionID,
		env.addresses[1].String(), nil,
	)
	require.Equal(t, http.StatusOK, status)
	var resp api.ContributionResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	require.NotNil(t, resp.CallerNonce)
	assert.Equal(t, uint64(0), *resp.CallerNonce)

	status, _ = env.request(
		t, http.MethodPost,
		"/api/v1/contributions/"+contributionID+"/votes",
		env.addresses[1].String(),
		env.voteRequest(1, contributionID, 1, 1),
	)
	require.Equal(t, http.StatusCreated, status)

	// A stale-nonce voter re-fetches their current nonce here
	status, body = env.request(
		t, http.MethodGet,
		"/api/v1/contributions/"+contributionID,
		env.addresses[1].String(), nil,
	)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &resp))
	require.NotNil(t, resp.CallerNonce)
	assert.Equal(t, uint64(1), *resp.CallerNonce)

	// Without the caller header the field is omitted
	status, body = env.request(
		t, http.MethodGet,
		"/api/v1/contributions/"+contributionID,
		"", nil,
	)
	require.Equal(t, http.StatusOK, status)
	resp = api.ContributionResponse{}
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Nil(t, resp.CallerNonce)
}

func TestPublishOverHTTP(t *testing.T) {
	env := setupAPI(t)
	env.createProject(t)
	contributionID := env.createContribution(t)

	// Publishing before the vote passes is a conflict
	status, _ := env.request(
		t, http.MethodPost,
		"/api/v1/contributions/"+contributionID+"/publish",
		env.addresses[0].String(), nil,
	)
	assert.Equal(t, http.StatusConflict, status)

	for idx := range 2 {
		status, _ = env.request(
			t, http.MethodPost,
			"/api/v1/contributions/"+contributionID+"/votes",
			env.addresses[idx].String(),
			env.voteRequest(idx, contributionID, 1, 1),
		)
		require.Equal(t, http.StatusCreated, status)
	}

	status, body := env.request(
		t, http.MethodPost,
		"/api/v1/contributions/"+contributionID+"/publish",
		env.addresses[0].String(), nil,
	)
	require.Equal(t, http.StatusOK, status, string(body))
	var result api.PublishResponse
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, "0xstubtx", result.TxRef)
	assert.False(t, result.AlreadyPublished)

	// Second publish is an idempotent no-op
	status, body = env.request(
		t, http.MethodPost,
		"/api/v1/contributions/"+contributionID+"/publish",
		env.addresses[0].String(), nil,
	)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &result))
	assert.True(t, result.AlreadyPublished)
	assert.Equal(t, "0xstubtx", result.TxRef)
}
