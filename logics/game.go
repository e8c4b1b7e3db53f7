// Copyright 2026 matjip Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logics

import (
	"regexp"
	"strings"

	"github.com/juju/errors"
)

const (
	GameFoodDuel = "food_duel"
	GameMBTI     = "mbti"
	GameMoodPick = "mood_pick"
)

const (
	duelWinnerTarget = 8
	duelLoserTarget  = 3
)

type Duel struct {
	Winner string `json:"winner"`
	Loser  string `json:"loser"`
}

// GameResult is the outcome of a taste game played in the app.
type GameResult struct {
	GameType string   `json:"gameType"`
	Duels    []Duel   `json:"duels,omitempty"`
	Letters  string   `json:"letters,omitempty"`
	Mood     string   `json:"mood,omitempty"`
	Picks    []string `json:"picks,omitempty"`
}

type tasteTarget struct {
	category  string
	dimension string
	value     float64
}

// foodTokens maps game tokens to taste dimensions.
var foodTokens = map[string][][2]string{
	"spicy":        {{CategoryFlavor, "spicy"}},
	"sweet":        {{CategoryFlavor, "sweet"}},
	"salty":        {{CategoryFlavor, "salty"}},
	"sour":         {{CategoryFlavor, "sour"}},
	"umami":        {{CategoryFlavor, "umami"}},
	"bitter":       {{CategoryFlavor, "bitter"}},
	"rich":         {{CategoryFlavor, "rich"}},
	"korean":       {{CategoryCuisine, "korean"}},
	"japanese":     {{CategoryCuisine, "japanese"}},
	"chinese":      {{CategoryCuisine, "chinese"}},
	"western":      {{CategoryCuisine, "western"}},
	"italian":      {{CategoryCuisine, "italian"}},
	"asian":        {{CategoryCuisine, "asian"}},
	"mexican":      {{CategoryCuisine, "mexican"}},
	"fusion":       {{CategoryCuisine, "fusion"}},
	"cafe":         {{CategoryCuisine, "cafe"}},
	"tteokbokki":   {{CategoryFlavor, "spicy"}, {CategoryCuisine, "korean"}},
	"kimchi":       {{CategoryFlavor, "spicy"}, {CategoryFlavor, "sour"}, {CategoryCuisine, "korean"}},
	"bibimbap":     {{CategoryCuisine, "korean"}, {CategoryBehavior, "health_conscious"}},
	"samgyeopsal":  {{CategoryCuisine, "korean"}, {CategoryFlavor, "rich"}},
	"ramen":        {{CategoryCuisine, "japanese"}, {CategoryFlavor, "umami"}},
	"sushi":        {{CategoryCuisine, "japanese"}, {CategoryFlavor, "umami"}},
	"jjajangmyeon": {{CategoryCuisine, "chinese"}, {CategoryFlavor, "salty"}},
	"mala":         {{CategoryCuisine, "chinese"}, {CategoryFlavor, "spicy"}},
	"pasta":        {{CategoryCuisine, "italian"}},
	"pizza":        {{CategoryCuisine, "italian"}, {CategoryFlavor, "rich"}},
	"steak":        {{CategoryCuisine, "western"}, {CategoryFlavor, "rich"}},
	"burger":       {{CategoryCuisine, "western"}, {CategoryFlavor, "salty"}},
	"pho":          {{CategoryCuisine, "asian"}, {CategoryFlavor, "umami"}},
	"curry":        {{CategoryCuisine, "asian"}, {CategoryFlavor, "spicy"}},
	"taco":         {{CategoryCuisine, "mexican"}},
	"salad":        {{CategoryBehavior, "health_conscious"}, {CategoryDietary, "vegetarian"}},
	"dessert":      {{CategoryCuisine, "cafe"}, {CategoryFlavor, "sweet"}},
	"coffee":       {{CategoryCuisine, "cafe"}, {CategoryFlavor, "bitter"}},
}

var mbtiLetters = regexp.MustCompile(`^[EI][SN][TF][JP]$`)

var mbtiTargets = map[rune][]tasteTarget{
	'E': {{CategoryBehavior, "social", 8}, {CategoryAtmosphere, "lively", 7}},
	'I': {{CategoryAtmosphere, "quiet", 8}, {CategoryContext, "solo", 7}},
	'S': {{CategoryBehavior, "loyal", 7}},
	'N': {{CategoryBehavior, "adventurous", 8}},
	'T': {{CategoryContext, "business", 6}},
	'F': {{CategoryAtmosphere, "cozy", 7}},
	'J': {{CategoryBehavior, "loyal", 6}},
	'P': {{CategoryBehavior, "trend_follower", 7}},
}

var moodTargets = map[string][]tasteTarget{
	"happy":       {{CategoryAtmosphere, "lively", 8}},
	"stressed":    {{CategoryFlavor, "spicy", 8}, {CategoryFlavor, "sweet", 8}},
	"tired":       {{CategoryFlavor, "rich", 8}, {CategoryAtmosphere, "cozy", 8}},
	"romantic":    {{CategoryAtmosphere, "romantic", 8}, {CategoryContext, "date", 8}},
	"adventurous": {{CategoryBehavior, "adventurous", 8}},
	"calm":        {{CategoryAtmosphere, "quiet", 8}},
}

func tokenTargets(token string, value float64) ([]tasteTarget, error) {
	dims, ok := foodTokens[strings.ToLower(strings.TrimSpace(token))]
	if !ok {
		return nil, errors.NotValidf("game token %q", token)
	}
	targets := make([]tasteTarget, len(dims))
	for i, dim := range dims {
		targets[i] = tasteTarget{category: dim[0], dimension: dim[1], value: value}
	}
	return targets, nil
}

// gameEffect is what a game result changes.
type gameEffect struct {
	signal TasteSignal
	// adventurousness is the target of the preference, when set.
	adventurousness *float64
}

// mapGameResult translates a game result into a taste signal. Nothing is
// returned for invalid results.
func mapGameResult(result GameResult) (*gameEffect, error) {
	var (
		effect  gameEffect
		targets []tasteTarget
	)
	switch result.GameType {
	case GameFoodDuel:
		if len(result.Duels) == 0 {
			return nil, errors.NotValidf("food duel without duels")
		}
		for _, duel := range result.Duels {
			winners, err := tokenTargets(duel.Winner, duelWinnerTarget)
			if err != nil {
				return nil, err
			}
			losers, err := tokenTargets(duel.Loser, duelLoserTarget)
			if err != nil {
				return nil, err
			}
			targets = append(targets, losers...)
			targets = append(targets, winners...)
		}
	case GameMBTI:
		letters := strings.ToUpper(strings.TrimSpace(result.Letters))
		if !mbtiLetters.MatchString(letters) {
			return nil, errors.NotValidf("MBTI letters %q", result.Letters)
		}
		for _, letter := range letters {
			targets = append(targets, mbtiTargets[letter]...)
		}
		adventurousness := 3.0
		if strings.ContainsRune(letters, 'N') {
			adventurousness = 8
		}
		effect.adventurousness = &adventurousness
	case GameMoodPick:
		moods, ok := moodTargets[strings.ToLower(strings.TrimSpace(result.Mood))]
		if !ok {
			return nil, errors.NotValidf("mood %q", result.Mood)
		}
		targets = append(targets, moods...)
		for _, pick := range result.Picks {
			picks, err := tokenTargets(pick, duelWinnerTarget)
			if err != nil {
				return nil, err
			}
			targets = append(targets, picks...)
		}
	default:
		return nil, errors.NotValidf("game type %q", result.GameType)
	}
	// later targets override earlier ones on the same dimension
	for _, target := range targets {
		effect.signal.Set(target.category, target.dimension, target.value)
	}
	return &effect, nil
}
