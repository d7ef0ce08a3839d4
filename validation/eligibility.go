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
	"github.com/merito-labs/merito/database/models"
)

// EligibleVoters computes the number of accounts allowed to vote on the
// project's contributions: members with the Validator role under
// SpecificMembers mode, every member under AllMembers mode. This count is
// the denominator of every strategy threshold.
func EligibleVoters(project *models.Project, members []models.Member) int {
	if project.ValidationMode == models.ValidationModeAllMembers {
		return len(members)
	}
	count := 0
	for _, member := range members {
		if member.HasRole(models.RoleValidator) {
			count++
		}
	}
	return count
}

// CanVote checks whether an account may vote on a contribution. The account
// must be eligible per the project's validation mode, the contribution must
// be accepting votes, and voting on one's own contribution is permitted only
// for validators. Returns nil or a ForbiddenError with a distinguishing
// reason.
func CanVote(
	project *models.Project,
	members []models.Member,
	contribution *models.Contribution,
	contributors []models.Contributor,
	accountID string,
) error {
	if contribution.Status != models.ContributionStatusValidating ||
		!contribution.Live() {
		return NewForbidden(ReasonNotValidating)
	}
	var member *models.Member
	for i := range members {
		if members[i].AccountID == accountID {
			member = &members[i]
			break
		}
	}
	if member == nil {
		return NewForbidden(ReasonNotAMember)
	}
	isValidator := member.HasRole(models.RoleValidator)
	if project.ValidationMode == models.ValidationModeSpecificMembers &&
		!isValidator {
		return NewForbidden(ReasonNotAValidator)
	}
	for _, contributor := range contributors {
		if contributor.AccountID == accountID && !isValidator {
			return NewForbidden(ReasonOwnContribution)
		}
	}
	return nil
}
