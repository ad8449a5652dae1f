package fitness

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/alexbensimon/pakt/pkg/pakt"
)

const defaultBaseURL = "https://www.googleapis.com/fitness/v1"

var (
	// ErrManualInput means the period contains hand-entered values.
	ErrManualInput = errors.New("fitness: manual input present")
	ErrUpstream    = errors.New("fitness: google fit unavailable")
)

// Doer sends HTTP requests.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client queries the Google Fit aggregate endpoint.
type Client struct {
	baseURL    string
	httpClient Doer
}

type Option func(*Client)

func WithBaseURL(u string) Option  { return func(c *Client) { c.baseURL = strings.TrimSuffix(u, "/") } }
func WithHTTPClient(d Doer) Option { return func(c *Client) { c.httpClient = d } }

func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type aggregateBy struct {
	DataSourceID string `json:"dataSourceId,omitempty"`
	DataTypeName string `json:"dataTypeName,omitempty"`
}

type bucketByTime struct {
	DurationMillis int64 `json:"durationMillis"`
}

type aggregateRequest struct {
	AggregateBy     []aggregateBy `json:"aggregateBy"`
	BucketByTime    *bucketByTime `json:"bucketByTime,omitempty"`
	StartTimeMillis int64         `json:"startTimeMillis"`
	EndTimeMillis   int64         `json:"endTimeMillis"`
}

type value struct {
	IntVal int64 `json:"intVal"`
}

type point struct {
	Value []value `json:"value"`
}

type dataset struct {
	Point []point `json:"point"`
}

type bucket struct {
	Dataset []dataset `json:"dataset"`
}

type aggregateResponse struct {
	Bucket []bucket `json:"bucket"`
}

// Measure returns the rounded daily average for goalType over [start, end).
// It fails with ErrManualInput when any value in the period was entered by
// hand.
func (c *Client) Measure(ctx context.Context, goalType pakt.GoalType, start, end time.Time, accessToken string) (int64, error) {
	dataType, err := DataType(goalType)
	if err != nil {
		return 0, err
	}
	manual, _ := ManualInputSource(goalType)

	var check aggregateResponse
	err = c.aggregate(ctx, accessToken, aggregateRequest{
		AggregateBy:     []aggregateBy{{DataSourceID: manual}},
		StartTimeMillis: start.UnixMilli(),
		EndTimeMillis:   end.UnixMilli(),
	}, &check)
	if err != nil {
		return 0, err
	}
	if len(check.Bucket) > 0 && len(check.Bucket[0].Dataset) > 0 && len(check.Bucket[0].Dataset[0].Point) > 0 {
		return 0, ErrManualInput
	}

	var daily aggregateResponse
	err = c.aggregate(ctx, accessToken, aggregateRequest{
		AggregateBy:     []aggregateBy{{DataTypeName: dataType}},
		BucketByTime:    &bucketByTime{DurationMillis: (24 * time.Hour).Milliseconds()},
		StartTimeMillis: start.UnixMilli(),
		EndTimeMillis:   end.UnixMilli(),
	}, &daily)
	if err != nil {
		return 0, err
	}

	values := make([]float64, 0, len(daily.Bucket))
	for _, b := range daily.Bucket {
		values = append(values, dayValue(goalType, b))
	}
	return mean(values), nil
}

// dayValue extracts one bucket's daily figure. Buckets without data count
// as zero.
func dayValue(goalType pakt.GoalType, b bucket) float64 {
	if len(b.Dataset) == 0 {
		return 0
	}
	points := b.Dataset[0].Point
	if goalType == pakt.GoalMeditation {
		for _, p := range points {
			if len(p.Value) >= 2 && p.Value[0].IntVal == meditationActivity {
				return float64(p.Value[1].IntVal) / float64(time.Minute.Milliseconds())
			}
		}
		return 0
	}
	if len(points) == 0 || len(points[0].Value) == 0 {
		return 0
	}
	return float64(points[0].Value[0].IntVal)
}

func mean(values []float64) int64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return int64(math.Round(sum / float64(len(values))))
}

func (c *Client) aggregate(ctx context.Context, accessToken string, body aggregateRequest, out *aggregateResponse) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/users/me/dataset:aggregate", bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: aggregate failed: %v", ErrUpstream, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: aggregate failed with status %d: %s", ErrUpstream, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode aggregate response: %v", ErrUpstream, err)
	}
	return nil
}
