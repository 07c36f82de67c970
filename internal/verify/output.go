package verify

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"strings"
)

// RecordHeader is the per-case CSV header.
var RecordHeader = []string{
	"case_id", "measurement_key", "value", "section_id", "method_tag", "warnings",
	"failure_type", "fallback", "determinism_mismatch", "error",
}

// FormatValue renders a value for the per-case table. NaN renders as "NaN".
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// WarningList joins warning codes with '|'. Records hold them sorted.
func (r Record) WarningList() string {
	parts := make([]string, len(r.Warnings))
	for i, w := range r.Warnings {
		parts[i] = string(w)
	}
	return strings.Join(parts, "|")
}

// WriteRecordsCSV writes one row per record.
func WriteRecordsCSV(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(RecordHeader); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{
			r.CaseID,
			r.Key,
			FormatValue(r.Value),
			r.SectionID,
			r.MethodTag,
			r.WarningList(),
			string(r.FailureType),
			strconv.FormatBool(r.Fallback),
			strconv.FormatBool(r.Mismatch),
			r.Error,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSummaryJSON writes the summary as indented JSON.
func WriteSummaryJSON(w io.Writer, s Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}
