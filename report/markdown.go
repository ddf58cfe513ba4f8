package report

import (
	"fmt"
	"strings"
)

// RenderMarkdown formats the report as a markdown document: one table per
// project, an organization-wide rollup, and any diagnostics collected along
// the way.
func RenderMarkdown(r *Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Membership report for %s\n\n", r.Organization)
	fmt.Fprintf(&b, "Generated %s\n\n", r.GeneratedAt.Format("2006-01-02 15:04:05 MST"))

	for _, p := range r.Projects {
		fmt.Fprintf(&b, "## %s\n\n", p.Project)
		b.WriteString("| Group | Members |\n|---|---|\n")
		for _, g := range p.Groups {
			fmt.Fprintf(&b, "| %s | %d |\n", g.Group, g.Count)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Organization-wide\n\n")
	b.WriteString("| Group | Distinct members |\n|---|---|\n")
	for _, g := range r.OrgWide {
		fmt.Fprintf(&b, "| %s | %d |\n", g.Group, g.Count)
	}
	b.WriteString("\n")

	if len(r.Diagnostics) > 0 {
		b.WriteString("## Warnings\n\n")
		for _, d := range r.Diagnostics {
			fmt.Fprintf(&b, "- %s\n", d)
		}
		b.WriteString("\n")
	}
	return b.String()
}
