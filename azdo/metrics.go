package azdo

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
)

// Resolutions is the side-table from group descriptor to the resolved set of
// user descriptors. It is built once by the resolver pass and handed to the
// aggregator; fetched records are never annotated in place.
type Resolutions map[string]Set[string]

// Aggregator cross-references resolved memberships against the
// project-scoped naming convention "[Project]\Group Name".
type Aggregator struct {
	groups      []Identity
	resolutions Resolutions
	sink        *DiagnosticSink
	fold        cases.Caser
}

func NewAggregator(groups []Identity, resolutions Resolutions, sink *DiagnosticSink) *Aggregator {
	if sink == nil {
		sink = NewDiagnosticSink(nil)
	}
	return &Aggregator{
		groups:      groups,
		resolutions: resolutions,
		sink:        sink,
		fold:        cases.Fold(),
	}
}

// PrincipalName composes the project-scoped principal name for a group.
func PrincipalName(project string, groupName string) string {
	return fmt.Sprintf("[%s]\\%s", project, groupName)
}

// FindGroup locates exactly one group by project-scoped principal name.
// Principal names compare case-insensitively; descriptors are never compared
// by display text.
func (a *Aggregator) FindGroup(project string, groupName string) (group *Identity, ok bool) {
	var want = a.fold.String(PrincipalName(project, groupName))
	var matches []int
	for i := range a.groups {
		if a.fold.String(a.groups[i].PrincipalName) == want {
			matches = append(matches, i)
		}
	}
	switch len(matches) {
	case 0:
		a.sink.Emit(DiagGroupNotFound, PrincipalName(project, groupName),
			"no group named %q in project %q", groupName, project)
	case 1:
		group = &a.groups[matches[0]]
		ok = true
	default:
		a.sink.Emit(DiagAmbiguousGroup, PrincipalName(project, groupName),
			"%d groups named %q in project %q", len(matches), groupName, project)
	}
	return
}

// CountMembers returns the number of distinct resolved users of the
// project-scoped group. A missing or ambiguous group counts as zero so that
// a report still renders for projects that lack a given built-in group.
func (a *Aggregator) CountMembers(project string, groupName string) int {
	var group, ok = a.FindGroup(project, groupName)
	if !ok {
		return 0
	}
	return len(a.resolutions[group.Descriptor])
}

// OrgWideCount unions every project's resolved set for the named group and
// counts distinct users, so a user who holds the role on several projects is
// counted once.
func (a *Aggregator) OrgWideCount(groupName string) int {
	var want = a.fold.String("\\" + groupName)
	var union = NewSet[string]()
	for i := range a.groups {
		var principal = a.groups[i].PrincipalName
		if !strings.HasPrefix(principal, "[") {
			continue
		}
		var idx = strings.Index(principal, "]")
		if idx < 0 {
			continue
		}
		if a.fold.String(principal[idx+1:]) != want {
			continue
		}
		if resolved, ok := a.resolutions[a.groups[i].Descriptor]; ok {
			union.Merge(resolved)
		}
	}
	return len(union)
}
