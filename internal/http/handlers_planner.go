package http

import (
	"errors"
	"net/http"

	"github.com/shopspring/decimal"
	"risparmi/internal/calculator"
	applog "risparmi/internal/log"
)

const (
	maxPlannerAmount = 1e9
	maxPlannerYears  = 100
)

var (
	pTarget          = floatParam{name: "target", required: true, min: 0.01, max: maxPlannerAmount}
	pInitial         = floatParam{name: "initial", max: maxPlannerAmount}
	pCurrent         = floatParam{name: "current", max: maxPlannerAmount}
	pMonthly         = floatParam{name: "monthly", max: maxPlannerAmount}
	pMonthlyRequired = floatParam{name: "monthly", required: true, max: maxPlannerAmount}
	pRate            = floatParam{name: "rate", max: 100}
	pLumpSum         = floatParam{name: "lump_sum", required: true, min: 0.01, max: maxPlannerAmount}
	pYears           = floatParam{name: "years", required: true, min: 1.0 / 12, max: maxPlannerYears}
)

// euros renders a calculator amount rounded to the cent.
func euros(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

type plannerMonthlyJSON struct {
	MonthlyPayment string `json:"monthly_payment"`
	Months         int    `json:"months"`
}

type projectionPointJSON struct {
	Month    int    `json:"month"`
	Total    string `json:"total"`
	Interest string `json:"interest"`
}

type plannerSimulationJSON struct {
	FinalAmount        string                `json:"final_amount"`
	TotalContributions string                `json:"total_contributions"`
	TotalInterest      string                `json:"total_interest"`
	Projection         []projectionPointJSON `json:"projection,omitempty"`
}

type scenarioJSON struct {
	Label               string  `json:"label"`
	AnnualRatePct       float64 `json:"annual_rate_pct"`
	MonthlyContribution string  `json:"monthly_contribution,omitempty"`
}

type lumpSumJSON struct {
	WithoutLumpSum string `json:"without_lump_sum"`
	WithLumpSum    string `json:"with_lump_sum"`
	Difference     string `json:"difference"`
}

type achievementJSON struct {
	Date  string `json:"date,omitempty"`
	Never bool   `json:"never"`
}

// floats reads every parameter, stopping at the first invalid one.
func floats(r *http.Request, params ...floatParam) ([]float64, *JSONResponseBuilder) {
	q := r.URL.Query()
	out := make([]float64, len(params))
	for i, p := range params {
		v, resp := parseFloatQuery(q, p)
		if resp != nil {
			return nil, resp
		}
		out[i] = v
	}
	return out, nil
}

// planned serves a planner result from the cache. The key is the path plus
// the sorted query, so equivalent requests share an entry.
func (s *Server) planned(w http.ResponseWriter, r *http.Request, key string, compute func() (any, error)) {
	v, err := s.plannerCache.GetOrCompute(r.URL.Path+"?"+key, compute)
	if err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Planner computation failed",
			applog.FieldError, err, applog.FieldPath, r.URL.Path)
		InternalServerError("planner computation failed").Write(w)
		return
	}
	NewJSONResponse().Body(v).Write(w)
}

func (s *Server) handlePlannerMonthly(w http.ResponseWriter, r *http.Request) {
	v, resp := floats(r, pTarget, pInitial, pRate, pYears)
	if resp != nil {
		resp.Write(w)
		return
	}
	target, initial, rate, years := v[0], v[1], v[2], v[3]

	s.planned(w, r, r.URL.Query().Encode(), func() (any, error) {
		return plannerMonthlyJSON{
			MonthlyPayment: euros(calculator.MonthlyPaymentNeeded(target, initial, rate, years)),
			Months:         calculator.Months(years),
		}, nil
	})
}

// handlePlannerSimulate runs a plan; ?points=true adds the monthly
// projection.
func (s *Server) handlePlannerSimulate(w http.ResponseWriter, r *http.Request) {
	v, resp := floats(r, pInitial, pMonthlyRequired, pRate, pYears)
	if resp != nil {
		resp.Write(w)
		return
	}
	points, resp := parseBoolQuery(r.URL.Query(), "points")
	if resp != nil {
		resp.Write(w)
		return
	}
	initial, monthly, rate, years := v[0], v[1], v[2], v[3]

	s.planned(w, r, r.URL.Query().Encode(), func() (any, error) {
		res := calculator.Simulate(initial, monthly, rate, years)
		out := plannerSimulationJSON{
			FinalAmount:        euros(res.FinalAmount),
			TotalContributions: euros(res.TotalContributions),
			TotalInterest:      euros(res.TotalInterest),
		}
		if points {
			out.Projection = make([]projectionPointJSON, 0, calculator.Months(years))
			for p := range calculator.Projection(initial, monthly, rate, calculator.Months(years)) {
				out.Projection = append(out.Projection, projectionPointJSON{
					Month:    p.Month,
					Total:    euros(p.Total),
					Interest: euros(p.Interest),
				})
			}
		}
		return out, nil
	})
}

func (s *Server) handlePlannerScenarios(w http.ResponseWriter, r *http.Request) {
	v, resp := floats(r, pInitial, pTarget, pYears)
	if resp != nil {
		resp.Write(w)
		return
	}
	initial, target, years := v[0], v[1], v[2]

	s.planned(w, r, r.URL.Query().Encode(), func() (any, error) {
		return mapSlice(calculator.CompareScenarios(initial, target, years), func(sc calculator.Scenario) scenarioJSON {
			return scenarioJSON{
				Label:               sc.Label,
				AnnualRatePct:       sc.AnnualRatePct,
				MonthlyContribution: euros(sc.MonthlyContribution),
			}
		}), nil
	})
}

func (s *Server) handlePlannerLumpSum(w http.ResponseWriter, r *http.Request) {
	v, resp := floats(r, pInitial, pMonthly, pRate, pLumpSum, pYears)
	if resp != nil {
		resp.Write(w)
		return
	}
	initial, monthly, rate, lump, years := v[0], v[1], v[2], v[3], v[4]

	s.planned(w, r, r.URL.Query().Encode(), func() (any, error) {
		res := calculator.LumpSumImpact(initial, monthly, rate, lump, years)
		return lumpSumJSON{
			WithoutLumpSum: euros(res.WithoutLumpSum),
			WithLumpSum:    euros(res.WithLumpSum),
			Difference:     euros(res.Difference),
		}, nil
	})
}

// handlePlannerAchievement depends on today, which is part of the key.
func (s *Server) handlePlannerAchievement(w http.ResponseWriter, r *http.Request) {
	v, resp := floats(r, pTarget, pCurrent, pMonthly)
	if resp != nil {
		resp.Write(w)
		return
	}
	target, current, monthly := v[0], v[1], v[2]
	now := s.now()

	s.planned(w, r, now.Format("2006-01-02")+"&"+r.URL.Query().Encode(), func() (any, error) {
		date, err := calculator.AchievementDate(target, current, monthly, now)
		if errors.Is(err, calculator.ErrNeverReached) {
			return achievementJSON{Never: true}, nil
		}
		if err != nil {
			return nil, err
		}
		return achievementJSON{Date: date.Format("2006-01-02")}, nil
	})
}

func handlePlannerPresets(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(mapSlice(calculator.Presets, func(p calculator.RatePreset) scenarioJSON {
		return scenarioJSON{Label: p.Label, AnnualRatePct: p.AnnualRatePct}
	})).Write(w)
}
