// Package fitness measures goal achievement from Google Fit aggregates and
// decides whether a measurement meets a pakt's goal.
package fitness

import (
	"errors"
	"fmt"

	"github.com/alexbensimon/pakt/pkg/pakt"
)

var ErrUnsupportedGoalType = errors.New("fitness: goal type has no fitness data")

var dataTypes = map[pakt.GoalType]string{
	pakt.GoalSteps:      "com.google.step_count.delta",
	pakt.GoalActive:     "com.google.active_minutes",
	pakt.GoalMeditation: "com.google.activity.segment",
}

// Daily targets per level: steps, active minutes, meditation minutes.
var goals = map[pakt.GoalType]pakt.LevelTable{
	pakt.GoalSteps:      {0, 3000, 5000, 7000, 10000, 15000},
	pakt.GoalActive:     {0, 20, 30, 40, 60, 100},
	pakt.GoalMeditation: {0, 5, 10, 20, 40, 60},
}

// meditationActivity is the Google Fit activity id for meditation.
const meditationActivity = 45

// DataType returns the Google Fit data type measured for goalType.
func DataType(goalType pakt.GoalType) (string, error) {
	dt, ok := dataTypes[goalType]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedGoalType, goalType)
	}
	return dt, nil
}

// ManualInputSource is the data source holding values typed in by hand,
// which disqualify a measurement.
func ManualInputSource(goalType pakt.GoalType) (string, error) {
	dt, err := DataType(goalType)
	if err != nil {
		return "", err
	}
	return "raw:" + dt + ":com.google.android.apps.fitness:user_input", nil
}

// GoalFor returns the daily target for goalType at level.
func GoalFor(goalType pakt.GoalType, level pakt.Level) (int64, error) {
	t, ok := goals[goalType]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedGoalType, goalType)
	}
	if level < 1 || level > pakt.MaxLevel {
		return 0, fmt.Errorf("fitness: level %d out of range", level)
	}
	return t[level], nil
}
