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
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/merito-labs/merito/database"
	"github.com/merito-labs/merito/validation"
)

func TestEvaluateSimpleMajorityThreshold(t *testing.T) {
	testDefs := []struct {
		name       string
		eligible   int
		tally      database.Tally
		determined bool
		passes     bool
	}{
		{
			name:     "no votes",
			eligible: 5,
			tally:    database.Tally{},
		},
		{
			// 5 eligible needs more than 2.5 votes, i.e. 3
			name:     "five eligible two pass undetermined",
			eligible: 5,
			tally:    database.Tally{Pass: 2},
		},
		{
			name:       "five eligible three pass passes",
			eligible:   5,
			tally:      database.Tally{Pass: 3},
			determined: true,
			passes:     true,
		},
		{
			// 4 eligible needs more than 2: a 2-2 tie stays undetermined
			name:     "four eligible two pass undetermined",
			eligible: 4,
			tally:    database.Tally{Pass: 2},
		},
		{
			name:       "four eligible three pass passes",
			eligible:   4,
			tally:      database.Tally{Pass: 3},
			determined: true,
			passes:     true,
		},
		{
			name:       "fail majority fails",
			eligible:   5,
			tally:      database.Tally{Fail: 3},
			determined: true,
			passes:     false,
		},
		{
			name:     "two eligible one pass undetermined",
			eligible: 2,
			tally:    database.Tally{Pass: 1},
		},
		{
			name:       "one eligible one pass passes",
			eligible:   1,
			tally:      database.Tally{Pass: 1},
			determined: true,
			passes:     true,
		},
		{
			// Skip votes never count toward either threshold
			name:     "skips do not determine",
			eligible: 3,
			tally:    database.Tally{Skip: 3},
		},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			decision := validation.Evaluate(
				validation.StrategySimple,
				testDef.eligible,
				testDef.tally,
				"",
			)
			assert.Equal(t, testDef.determined, decision.Determined)
			assert.Equal(t, testDef.passes, decision.Passes)
			assert.False(t, decision.FellBack)
		})
	}
}

func TestEvaluateReservedKindsFallBack(t *testing.T) {
	for _, kind := range []validation.StrategyKind{
		validation.StrategyQuorum,
		validation.StrategyAbsolute,
		validation.StrategyRelative,
	} {
		t.Run(kind.String(), func(t *testing.T) {
			decision := validation.Evaluate(
				kind,
				5,
				database.Tally{Pass: 3},
				"{}",
			)
			// Simple semantics, and observably a fallback
			assert.True(t, decision.Determined)
			assert.True(t, decision.Passes)
			assert.True(t, decision.FellBack)
		})
	}
}

func TestStrategyKindFromString(t *testing.T) {
	for _, name := range []string{"simple", "quorum", "absolute", "relative"} {
		kind, ok := validation.StrategyKindFromString(name)
		assert.True(t, ok)
		assert.Equal(t, name, kind.String())
	}
	_, ok := validation.StrategyKindFromString("bogus")
	assert.False(t, ok)
}
