package api

import (
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/alexbensimon/pakt/pkg/finance"
	"github.com/alexbensimon/pakt/pkg/httpx"
	"github.com/alexbensimon/pakt/pkg/identity"
	"github.com/alexbensimon/pakt/pkg/pakt"
)

// Amounts cross the wire as decimal strings of base units.

type paktView struct {
	Index       int       `json:"index"`
	GoalType    uint8     `json:"goalType"`
	Level       uint8     `json:"level"`
	Amount      string    `json:"amount"`
	Description string    `json:"description"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
	Active      bool      `json:"active"`
	Success     bool      `json:"success"`
	Status      string    `json:"status"`
	Streak      int       `json:"streak"`
	Finished    bool      `json:"finished"`
}

func (s *Server) viewPakt(index int, p pakt.Pakt, now time.Time) paktView {
	return paktView{
		Index:       index,
		GoalType:    uint8(p.GoalType),
		Level:       uint8(p.Level),
		Amount:      amountString(p.Amount),
		Description: p.Description,
		StartTime:   p.StartTime,
		EndTime:     p.EndTime,
		Active:      p.Active,
		Success:     p.Success,
		Status:      string(p.Status()),
		Streak:      s.ledger.Streak(p),
		Finished:    p.Finished(now),
	}
}

type policyView struct {
	DurationSeconds     int64           `json:"durationSeconds"`
	MaxStakeByLevel     pakt.LevelTable `json:"maxStakeByLevel"`
	InterestRateByLevel pakt.LevelTable `json:"interestRateByLevel"`
	RateDenominator     int64           `json:"rateDenominator"`
	BurnInterestRatio   int64           `json:"burnInterestRatio"`
	UnlockFee           string          `json:"unlockFee"`
	GoalTypeCount       uint8           `json:"goalTypeCount"`
}

func viewPolicy(p pakt.Policy) policyView {
	return policyView{
		DurationSeconds:     int64(p.Duration / time.Second),
		MaxStakeByLevel:     p.MaxStakeByLevel,
		InterestRateByLevel: p.InterestRateByLevel,
		RateDenominator:     pakt.RateDenominator,
		BurnInterestRatio:   p.BurnInterestRatio,
		UnlockFee:           amountString(p.UnlockFee),
		GoalTypeCount:       p.GoalTypeCount,
	}
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func addressList(list []identity.Address) []string {
	out := make([]string, len(list))
	for i, a := range list {
		out[i] = a.Hex()
	}
	return out
}

// decode reads a JSON body, writing a 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.ReadJSON(r, dst); err != nil {
		httpx.WriteBadRequest(w, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func parseAmount(w http.ResponseWriter, field, raw string) (*big.Int, bool) {
	v, err := finance.ParseBaseUnits(raw)
	if err != nil {
		httpx.WriteBadRequest(w, fmt.Sprintf("%s: %v", field, err))
		return nil, false
	}
	return v, true
}

func parseAddress(w http.ResponseWriter, field, raw string) (identity.Address, bool) {
	a, err := identity.ParseAddress(raw)
	if err != nil {
		httpx.WriteBadRequest(w, fmt.Sprintf("%s: %v", field, err))
		return identity.ZeroAddress, false
	}
	return a, true
}

func pathAddress(w http.ResponseWriter, r *http.Request, key string) (identity.Address, bool) {
	return parseAddress(w, key, chi.URLParam(r, key))
}

func pathIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	i, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || i < 0 {
		httpx.WriteBadRequest(w, "index must be a non-negative integer")
		return 0, false
	}
	return i, true
}

func parseUint8(w http.ResponseWriter, field, raw string) (uint8, bool) {
	v, err := strconv.ParseUint(raw, 10, 8)
	if err != nil {
		httpx.WriteBadRequest(w, fmt.Sprintf("%s must be an integer between 0 and 255", field))
		return 0, false
	}
	return uint8(v), true
}
