// Package report renders the optional HTML run summary spec §6
// describes: a Job Summary section and one section per reconciled
// table. Out of scope per spec §1 ("HTML report rendering" is named as
// an external collaborator); this is the thin supplemental
// implementation SPEC_FULL.md adds so `--report FILE` has somewhere to
// write to. Uses html/template, the teacher corpus's own choice for
// generated output (Pieczasz-smf's web/ templates follow the same
// pattern) rather than hand-built string concatenation.
package report

import (
	"html/template"
	"io"
	"time"

	"pgcompare/internal/model"
)

// TableSection is one table's compare (and, in check mode, recheck)
// results for the report.
type TableSection struct {
	Alias           string
	Equal           int64
	NotEqual        int64
	MissingSource   int64
	MissingTarget   int64
	ElapsedTime     time.Duration
	RowsPerSecond   float64
	RecheckOutcomes map[string]model.RecheckOutcome // nil unless this ran under `check`
}

// Summary is the whole run's report input.
type Summary struct {
	Project   int64
	BatchNbr  int64
	StartedAt time.Time
	Tables    []TableSection
}

// FromRunHistory adapts a Reconciler result into a report section.
func FromRunHistory(alias string, h model.RunHistory) TableSection {
	return TableSection{
		Alias:         alias,
		Equal:         h.Equal,
		NotEqual:      h.NotEqual,
		MissingSource: h.MissingSrc,
		MissingTarget: h.MissingTgt,
		ElapsedTime:   h.End.Sub(h.Start),
		RowsPerSecond: h.RowsPerSecond(),
	}
}

// WithRecheck attaches a Rechecker's outcomes to an existing section, for
// the additional per-table findings listing `check` mode adds.
func (t TableSection) WithRecheck(outcomes map[string]model.RecheckOutcome) TableSection {
	t.RecheckOutcomes = outcomes
	return t
}

const reportTemplate = `<!DOCTYPE html>
<html>
<head><title>pgcompare report</title></head>
<body>
<h1>Job Summary</h1>
<p>project={{.Project}} batch={{.BatchNbr}} started={{.StartedAt}}</p>
<table border="1" cellpadding="4">
<tr><th>table</th><th>equal</th><th>not_equal</th><th>missing_source</th><th>missing_target</th><th>elapsed</th><th>rows/sec</th></tr>
{{range .Tables}}<tr><td>{{.Alias}}</td><td>{{.Equal}}</td><td>{{.NotEqual}}</td><td>{{.MissingSource}}</td><td>{{.MissingTarget}}</td><td>{{.ElapsedTime}}</td><td>{{printf "%.1f" .RowsPerSecond}}</td></tr>
{{end}}
</table>
{{range .Tables}}{{if .RecheckOutcomes}}
<h2>{{.Alias}} — recheck findings</h2>
<table border="1" cellpadding="4">
<tr><th>pk</th><th>outcome</th></tr>
{{range $pk, $outcome := .RecheckOutcomes}}<tr><td>{{$pk}}</td><td>{{$outcome}}</td></tr>
{{end}}
</table>
{{end}}{{end}}
</body>
</html>
`

var parsed = template.Must(template.New("report").Parse(reportTemplate))

// Write renders s as HTML to w.
func Write(w io.Writer, s Summary) error {
	return parsed.Execute(w, s)
}
