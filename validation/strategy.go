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

import "github.com/merito-labs/merito/database"

// StrategyKind is the closed set of approval strategies. Keeping this a
// tagged enum dispatched through one switch (rather than a runtime-mutable
// registry) means an unknown strategy cannot silently do nothing: every kind
// is handled below and the reserved kinds fall back explicitly.
type StrategyKind uint8

const (
	// StrategySimple passes when pass votes exceed half the eligible
	// voters, fails when fail votes do
	StrategySimple = StrategyKind(0)
	// StrategyQuorum is reserved: quorum-gated majority
	StrategyQuorum = StrategyKind(1)
	// StrategyAbsolute is reserved: fixed absolute vote count or percentage
	StrategyAbsolute = StrategyKind(2)
	// StrategyRelative is reserved: plurality wins
	StrategyRelative = StrategyKind(3)
)

func (k StrategyKind) String() string {
	switch k {
	case StrategySimple:
		return "simple"
	case StrategyQuorum:
		return "quorum"
	case StrategyAbsolute:
		return "absolute"
	case StrategyRelative:
		return "relative"
	default:
		return "unknown"
	}
}

// StrategyKindFromString parses a lowercase strategy name
func StrategyKindFromString(s string) (StrategyKind, bool) {
	switch s {
	case "simple":
		return StrategySimple, true
	case "quorum":
		return StrategyQuorum, true
	case "absolute":
		return StrategyAbsolute, true
	case "relative":
		return StrategyRelative, true
	default:
		return 0, false
	}
}

// Decision is the outcome of evaluating a strategy over the current tally.
// An undetermined decision leaves the contribution Validating; no error is
// ever raised.
type Decision struct {
	// Determined is true when the strategy reached a verdict
	Determined bool
	// Passes is the verdict when Determined
	Passes bool
	// FellBack is true when a reserved strategy kind was evaluated with
	// Simple semantics. Callers must surface this: the fallback masks
	// configuration errors.
	FellBack bool
}

// Evaluate applies a strategy to the current tally. Pure function: no side
// effects, never errors.
//
// Simple semantics require a strict majority of the eligible voters. The
// threshold is exact: with 5 eligible voters, passing needs more than 2.5
// votes, i.e. 3. The comparison is done as 2*votes > eligible to avoid the
// silently weaker floor-division form.
func Evaluate(
	kind StrategyKind,
	eligibleVoters int,
	tally database.Tally,
	config string,
) Decision {
	switch kind {
	case StrategySimple:
		return evaluateSimple(eligibleVoters, tally)
	case StrategyQuorum, StrategyAbsolute, StrategyRelative:
		// Reserved kinds evaluate with Simple semantics until implemented.
		// The config payload is intentionally unused.
		_ = config
		decision := evaluateSimple(eligibleVoters, tally)
		decision.FellBack = true
		return decision
	default:
		decision := evaluateSimple(eligibleVoters, tally)
		decision.FellBack = true
		return decision
	}
}

func evaluateSimple(eligibleVoters int, tally database.Tally) Decision {
	passes := 2*tally.Pass > eligibleVoters
	fails := 2*tally.Fail > eligibleVoters
	return Decision{
		Determined: passes || fails,
		Passes:     passes,
	}
}
