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

package event

import "time"

// ContributionPassedEventType is the event type for contributions whose
// voting strategy determined a pass
const ContributionPassedEventType = EventType("contribution.passed")

// ContributionPassedEvent is emitted after the state machine commits a
// Validating -> Passed transition. The on-chain publisher consumes it; its
// idempotence guard absorbs duplicate deliveries.
type ContributionPassedEvent struct {
	// ProjectID is the external id of the owning project
	ProjectID string
	// ContributionID is the external id of the passed contribution
	ContributionID string
	// Timestamp is when the transition was committed
	Timestamp time.Time
}

// ContributionFailedEventType is the event type for contributions whose
// voting strategy determined a fail
const ContributionFailedEventType = EventType("contribution.failed")

// ContributionFailedEvent is emitted after a Validating -> Failed transition
type ContributionFailedEvent struct {
	ProjectID      string
	ContributionID string
	Timestamp      time.Time
}

// ContributionPublishedEventType is the event type for contributions
// committed to the chain
const ContributionPublishedEventType = EventType("contribution.published")

// ContributionPublishedEvent is emitted after a contribution reaches
// OnChain with its payload stored.
type ContributionPublishedEvent struct {
	ProjectID      string
	ContributionID string
	// TxRef is the transaction reference returned by the chain submission
	// service, if any
	TxRef     string
	Timestamp time.Time
}
