// Package report renders aggregated membership metrics as markdown and JSON
// snapshots.
package report

import (
	"time"

	"github.com/google/uuid"

	"github.com/adokit/adokit/azdo"
)

type GroupCount struct {
	Group string `json:"group"`
	Count int    `json:"count"`
}

type ProjectMetrics struct {
	Project string       `json:"project"`
	Groups  []GroupCount `json:"groups"`
}

type Report struct {
	Id           string            `json:"id"`
	Organization string            `json:"organization"`
	GeneratedAt  time.Time         `json:"generatedAt"`
	Projects     []ProjectMetrics  `json:"projects"`
	OrgWide      []GroupCount      `json:"orgWide"`
	Diagnostics  []azdo.Diagnostic `json:"-"`
}

// Build assembles a report from the aggregator output. groupNames keeps the
// configured order; projects keep API arrival order.
func Build(organization string, projects []azdo.Project, groupNames []string, agg *azdo.Aggregator, diagnostics []azdo.Diagnostic) *Report {
	var r = &Report{
		Id:           uuid.NewString(),
		Organization: organization,
		GeneratedAt:  time.Now().UTC(),
		Diagnostics:  diagnostics,
	}
	for _, p := range projects {
		var pm = ProjectMetrics{Project: p.Name}
		for _, g := range groupNames {
			pm.Groups = append(pm.Groups, GroupCount{
				Group: g,
				Count: agg.CountMembers(p.Name, g),
			})
		}
		r.Projects = append(r.Projects, pm)
	}
	for _, g := range groupNames {
		r.OrgWide = append(r.OrgWide, GroupCount{
			Group: g,
			Count: agg.OrgWideCount(g),
		})
	}
	return r
}
