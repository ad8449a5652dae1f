package fitness

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexbensimon/pakt/pkg/pakt"
)

var (
	periodStart = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	periodEnd   = periodStart.Add(7 * 24 * time.Hour)
)

// fakeFit answers the manual input check with manualPoints points and the
// daily aggregate with daily.
func fakeFit(t *testing.T, manualPoints int, daily string) (*httptest.Server, *[]aggregateRequest) {
	t.Helper()
	var seen []aggregateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/me/dataset:aggregate", r.URL.Path)
		assert.Equal(t, "Bearer ya29.token", r.Header.Get("Authorization"))
		var req aggregateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		seen = append(seen, req)

		if req.AggregateBy[0].DataSourceID != "" {
			points := make([]point, manualPoints)
			_ = json.NewEncoder(w).Encode(aggregateResponse{Bucket: []bucket{{Dataset: []dataset{{Point: points}}}}})
			return
		}
		_, _ = w.Write([]byte(daily))
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func TestMeasure_StepsAverage(t *testing.T) {
	daily := `{"bucket":[
		{"dataset":[{"point":[{"value":[{"intVal":4000}]}]}]},
		{"dataset":[{"point":[{"value":[{"intVal":6001}]}]}]},
		{"dataset":[{"point":[]}]}
	]}`
	srv, seen := fakeFit(t, 0, daily)
	c := NewClient(WithBaseURL(srv.URL))

	got, err := c.Measure(context.Background(), pakt.GoalSteps, periodStart, periodEnd, "ya29.token")
	require.NoError(t, err)
	assert.Equal(t, int64(3334), got) // round(10001 / 3)

	require.Len(t, *seen, 2)
	first, second := (*seen)[0], (*seen)[1]
	assert.Equal(t, "raw:com.google.step_count.delta:com.google.android.apps.fitness:user_input", first.AggregateBy[0].DataSourceID)
	assert.Nil(t, first.BucketByTime)
	assert.Equal(t, "com.google.step_count.delta", second.AggregateBy[0].DataTypeName)
	assert.Equal(t, int64(86400000), second.BucketByTime.DurationMillis)
	assert.Equal(t, periodStart.UnixMilli(), second.StartTimeMillis)
	assert.Equal(t, periodEnd.UnixMilli(), second.EndTimeMillis)
}

func TestMeasure_MeditationMinutes(t *testing.T) {
	daily := `{"bucket":[
		{"dataset":[{"point":[{"value":[{"intVal":7},{"intVal":999999}]},{"value":[{"intVal":45},{"intVal":1200000}]}]}]},
		{"dataset":[{"point":[{"value":[{"intVal":45},{"intVal":600000}]}]}]},
		{"dataset":[{"point":[{"value":[{"intVal":8},{"intVal":600000}]}]}]}
	]}`
	srv, _ := fakeFit(t, 0, daily)
	got, err := NewClient(WithBaseURL(srv.URL)).Measure(context.Background(), pakt.GoalMeditation, periodStart, periodEnd, "ya29.token")
	require.NoError(t, err)
	assert.Equal(t, int64(10), got) // (20 + 10 + 0) / 3
}

func TestMeasure_NoBuckets(t *testing.T) {
	srv, _ := fakeFit(t, 0, `{}`)
	got, err := NewClient(WithBaseURL(srv.URL)).Measure(context.Background(), pakt.GoalActive, periodStart, periodEnd, "ya29.token")
	require.NoError(t, err)
	assert.Equal(t, int64(0), got)
}

func TestMeasure_ManualInputRejected(t *testing.T) {
	srv, seen := fakeFit(t, 2, `{}`)
	_, err := NewClient(WithBaseURL(srv.URL)).Measure(context.Background(), pakt.GoalSteps, periodStart, periodEnd, "ya29.token")
	assert.ErrorIs(t, err, ErrManualInput)
	assert.Len(t, *seen, 1)
}

func TestMeasure_UpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()
	_, err := NewClient(WithBaseURL(srv.URL)).Measure(context.Background(), pakt.GoalSteps, periodStart, periodEnd, "expired")
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestMeasure_CustomUnsupported(t *testing.T) {
	_, err := NewClient().Measure(context.Background(), pakt.GoalCustom, periodStart, periodEnd, "x")
	assert.ErrorIs(t, err, ErrUnsupportedGoalType)
}

func TestGoalFor(t *testing.T) {
	cases := []struct {
		goalType pakt.GoalType
		level    pakt.Level
		want     int64
	}{
		{pakt.GoalSteps, 1, 3000},
		{pakt.GoalSteps, 5, 15000},
		{pakt.GoalActive, 3, 40},
		{pakt.GoalMeditation, 4, 40},
	}
	for _, tc := range cases {
		got, err := GoalFor(tc.goalType, tc.level)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%s level %d", tc.goalType, tc.level)
	}
	_, err := GoalFor(pakt.GoalSteps, 0)
	assert.Error(t, err)
	_, err = GoalFor(pakt.GoalSteps, 6)
	assert.Error(t, err)
	_, err = GoalFor(pakt.GoalCustom, 1)
	assert.ErrorIs(t, err, ErrUnsupportedGoalType)
}

func TestGoalEvaluator_Default(t *testing.T) {
	e, err := NewGoalEvaluator(nil)
	require.NoError(t, err)

	ok, err := e.Evaluate(pakt.GoalSteps, 2, 5000)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.Evaluate(pakt.GoalSteps, 2, 4999)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGoalEvaluator_CustomRule(t *testing.T) {
	e, err := NewGoalEvaluator(map[pakt.GoalType]string{
		pakt.GoalActive: "result * 10 >= goal * 9", // 90% of the target
	})
	require.NoError(t, err)

	ok, err := e.Evaluate(pakt.GoalActive, 4, 54) // goal 60
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.Evaluate(pakt.GoalSteps, 1, 2700) // default rule
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGoalEvaluator_RejectsBadRules(t *testing.T) {
	_, err := NewGoalEvaluator(map[pakt.GoalType]string{pakt.GoalSteps: "result +"})
	assert.Error(t, err)

	_, err = NewGoalEvaluator(map[pakt.GoalType]string{pakt.GoalSteps: "result + goal"})
	assert.Error(t, err)
}
