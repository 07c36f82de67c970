package sweep

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
)

// csvHeader returns the fixed columns around the per-dimension columns.
func csvHeader(dims []Dimension) []string {
	header := []string{"rank", "grid_index", "config_id"}
	for _, d := range dims {
		header = append(header, d.Name)
	}
	return append(header,
		"total", "valid", "contract_failures", "execution_failures", "degenerate", "fallbacks",
		"mean", "stddev", "cv_pct", "fallback_rate_pct", "error")
}

// WriteCSV writes the ranked metric table. Floats use a fixed %.6f format
// so reruns over the same cases and grid produce identical bytes.
func WriteCSV(w io.Writer, rep *Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader(rep.Dimensions)); err != nil {
		return err
	}
	for _, r := range rep.Rows {
		row := []string{strconv.Itoa(r.Rank), strconv.Itoa(r.Index), r.ConfigID}
		for _, v := range r.Values {
			row = append(row, formatValue(v))
		}
		row = append(row,
			strconv.Itoa(r.Total),
			strconv.Itoa(r.Valid),
			strconv.Itoa(r.ContractFailures),
			strconv.Itoa(r.ExecutionFailures),
			strconv.Itoa(r.Degenerate),
			strconv.Itoa(r.Fallbacks),
			fmt.Sprintf("%.6f", r.Mean),
			fmt.Sprintf("%.6f", r.StdDev),
			fmt.Sprintf("%.6f", r.CVPct),
			fmt.Sprintf("%.6f", r.FallbackRatePct),
			r.Error,
		)
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// jsonRow is Row with NaN metrics as null.
type jsonRow struct {
	Rank              int                `json:"rank"`
	Index             int                `json:"grid_index"`
	ConfigID          string             `json:"config_id,omitempty"`
	Params            map[string]float64 `json:"params"`
	Total             int                `json:"total"`
	Valid             int                `json:"valid"`
	ContractFailures  int                `json:"contract_failures"`
	ExecutionFailures int                `json:"execution_failures"`
	Degenerate        int                `json:"degenerate"`
	Fallbacks         int                `json:"fallbacks"`
	Mean              *float64           `json:"mean"`
	StdDev            *float64           `json:"stddev"`
	CVPct             *float64           `json:"cv_pct"`
	FallbackRatePct   *float64           `json:"fallback_rate_pct"`
	Error             string             `json:"error,omitempty"`
}

type jsonReport struct {
	Key           string      `json:"measurement_key"`
	PolicyVersion string      `json:"policy_version"`
	BaseConfigID  string      `json:"base_config_id"`
	Dimensions    []Dimension `json:"dimensions"`
	CaseCount     int         `json:"case_count"`
	Rows          []jsonRow   `json:"rows"`
}

func finiteOrNil(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// ParamMap returns the row's grid values keyed by dimension name.
func (r Row) ParamMap(dims []Dimension) map[string]float64 {
	m := make(map[string]float64, len(dims))
	for i, d := range dims {
		if i < len(r.Values) {
			m[d.Name] = r.Values[i]
		}
	}
	return m
}

// WriteJSON writes the report as indented JSON in rank order.
func WriteJSON(w io.Writer, rep *Report) error {
	out := jsonReport{
		Key:           rep.Key,
		PolicyVersion: rep.PolicyVersion,
		BaseConfigID:  rep.BaseConfigID,
		Dimensions:    rep.Dimensions,
		CaseCount:     rep.CaseCount,
		Rows:          make([]jsonRow, len(rep.Rows)),
	}
	for i, r := range rep.Rows {
		out.Rows[i] = jsonRow{
			Rank:              r.Rank,
			Index:             r.Index,
			ConfigID:          r.ConfigID,
			Params:            r.ParamMap(rep.Dimensions),
			Total:             r.Total,
			Valid:             r.Valid,
			ContractFailures:  r.ContractFailures,
			ExecutionFailures: r.ExecutionFailures,
			Degenerate:        r.Degenerate,
			Fallbacks:         r.Fallbacks,
			Mean:              finiteOrNil(r.Mean),
			StdDev:            finiteOrNil(r.StdDev),
			CVPct:             finiteOrNil(r.CVPct),
			FallbackRatePct:   finiteOrNil(r.FallbackRatePct),
			Error:             r.Error,
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
