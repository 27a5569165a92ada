package catalog

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"

	"earthgazer/internal/platform"
	"earthgazer/internal/services"
)

// Window bounds a catalog search to scenes covering a point within a time
// range.
type Window struct {
	Latitude  float64
	Longitude float64
	Start     time.Time
	End       time.Time
}

// Validate rejects windows the catalog cannot answer.
func (w Window) Validate() error {
	if w.Latitude < -90 || w.Latitude > 90 {
		return services.Wrap(services.ErrValidation, "catalog", "window", fmt.Sprintf("latitude %v out of range", w.Latitude), nil)
	}
	if w.Longitude < -180 || w.Longitude > 180 {
		return services.Wrap(services.ErrValidation, "catalog", "window", fmt.Sprintf("longitude %v out of range", w.Longitude), nil)
	}
	if !w.End.After(w.Start) {
		return services.Wrap(services.ErrValidation, "catalog", "window", "end must be after start", nil)
	}
	return nil
}

// Statement is a rendered catalog query. Window values travel as named
// parameters; only identifiers and platform filters are part of Text.
type Statement struct {
	Text   string
	Params []Param
}

// Param is one named query parameter, referenced in Text as @Name.
type Param struct {
	Name  string
	Value any
}

// String renders the statement followed by one comment line per parameter.
func (s Statement) String() string {
	var b strings.Builder
	b.WriteString(s.Text)
	for _, p := range s.Params {
		fmt.Fprintf(&b, "-- @%s = %s\n", p.Name, formatParam(p.Value))
	}
	return b.String()
}

func formatParam(v any) string {
	switch v := v.(type) {
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

const queryTemplate = `SELECT
{{- range $i, $name := .Columns}}
  {{if $i}}, {{end}}{{field $name}} AS {{$name}}
{{- end}}
FROM ` + "`{{.Table}}`" + `
WHERE {{field "sensing_time"}} BETWEEN @start AND @end
  AND {{field "north_lat"}} >= @lat
  AND {{field "south_lat"}} <= @lat
  AND {{field "west_lon"}} <= @lon
  AND {{field "east_lon"}} >= @lon
{{- range .Filters}}
  AND {{.}}
{{- end}}
ORDER BY {{field "sensing_time"}}
`

var parsedQuery = template.Must(template.New("catalog").Funcs(template.FuncMap{
	"field": func(string) string { return "" },
}).Parse(queryTemplate))

type queryData struct {
	Columns []string
	Table   string
	Filters []string
}

// RenderQuery builds the catalog statement for one platform and window.
func RenderQuery(p *platform.Platform, w Window) (Statement, error) {
	if err := w.Validate(); err != nil {
		return Statement{}, err
	}
	fields := p.Catalog.Fields
	tmpl, err := parsedQuery.Clone()
	if err != nil {
		return Statement{}, fmt.Errorf("clone query template: %w", err)
	}
	tmpl.Funcs(template.FuncMap{
		"field": func(name string) string { return strings.TrimSpace(fields[name]) },
	})

	data := queryData{
		Columns: platform.CatalogFields,
		Table:   strings.Trim(p.Catalog.Table, "`"),
		Filters: p.Catalog.Filters,
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return Statement{}, services.Wrap(services.ErrConfiguration, "catalog", "render query", p.Name, err)
	}
	return Statement{
		Text: buf.String(),
		Params: []Param{
			{Name: "start", Value: w.Start.UTC()},
			{Name: "end", Value: w.End.UTC()},
			{Name: "lat", Value: w.Latitude},
			{Name: "lon", Value: w.Longitude},
		},
	}, nil
}
