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
)

// ErrForbidden is the sentinel matched by every ForbiddenError. Forbidden
// requests are caller errors and are never retried automatically.
var ErrForbidden = errors.New("forbidden")

// ForbiddenReason distinguishes why a request was rejected
type ForbiddenReason string

const (
	// ReasonNotAMember means the account is not on the project roster
	ReasonNotAMember = ForbiddenReason("not-a-member")
	// ReasonNotAValidator means the project requires the Validator role to
	// vote and the account does not hold it
	ReasonNotAValidator = ForbiddenReason("not-a-validator")
	// ReasonOwnContribution means a non-validator tried to vote on their
	// own contribution
	ReasonOwnContribution = ForbiddenReason("own-contribution")
	// ReasonNotValidating means the contribution is not accepting votes
	ReasonNotValidating = ForbiddenReason("not-validating")
	// ReasonFinalized means the contribution is Passed or OnChain and can
	// no longer be edited
	ReasonFinalized = ForbiddenReason("finalized")
)

// ForbiddenError carries the reason a request was rejected. It matches
// ErrForbidden under errors.Is.
type ForbiddenError struct {
	Reason ForbiddenReason
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("forbidden: %s", e.Reason)
}

func (e *ForbiddenError) Is(target error) bool {
	return target == ErrForbidden
}

// NewForbidden creates a ForbiddenError with the given reason
func NewForbidden(reason ForbiddenReason) error {
	return &ForbiddenError{Reason: reason}
}
