package azdo

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

const continuationHeader = "X-MS-ContinuationToken"

// getPaged fetches every page of a collection endpoint, following the
// continuation token from the response header until the server stops
// returning one or the page limit is reached. Items are delivered to cb in
// arrival order; the returned count is exactly the number of callbacks made.
//
// A failure on the first page is fatal (ErrFetchFailed). A failure on a later
// page follows the configured pagination policy: lenient keeps the collected
// data and records a PartialResult diagnostic, strict propagates the error.
func (c *Client) getPaged(ctx context.Context, uri *url.URL, cb func(map[string]any)) (count int, truncated bool, err error) {
	var token string
	var page = 0
	for {
		page++
		if page > c.pageLimit {
			truncated = true
			c.sink.Emit(DiagPartialResult, uri.Path,
				"pagination stopped after %d pages; results may be incomplete", c.pageLimit)
			return
		}

		var ruri = new(url.URL)
		*ruri = *uri
		if len(token) > 0 {
			var query = ruri.Query()
			query.Set("continuationToken", token)
			ruri.RawQuery = query.Encode()
		}

		var jo map[string]any
		var header http.Header
		if jo, header, err = c.executeRequest(ctx, "GET", ruri, nil); err != nil {
			if page == 1 {
				err = fmt.Errorf("%w: %v", ErrFetchFailed, err)
				return
			}
			if c.pagination == PaginationStrict {
				return
			}
			truncated = true
			c.sink.Emit(DiagPartialResult, uri.Path,
				"page %d failed, returning %d items collected so far: %v", page, count, err)
			err = nil
			return
		}

		for _, j := range collectionItems(jo) {
			cb(j)
			count++
		}

		token = header.Get(continuationHeader)
		if len(token) == 0 {
			return
		}
	}
}

// collectionItems unwraps the {"count": n, "value": [...]} envelope every
// collection endpoint uses.
func collectionItems(jo map[string]any) (items []map[string]any) {
	if jo == nil {
		return
	}
	var ja, ok = jo["value"].([]any)
	if !ok {
		return
	}
	for _, j := range ja {
		if jor, jok := j.(map[string]any); jok {
			items = append(items, jor)
		}
	}
	return
}

// Projects lists the organization's team projects.
func (c *Client) Projects(ctx context.Context) (projects []Project, err error) {
	var uri *url.URL
	if uri, err = c.composeUrl(c.coreBase, "_apis/projects"); err != nil {
		return
	}
	_, _, err = c.getPaged(ctx, uri, func(jo map[string]any) {
		if p := parseProject(jo); p != nil {
			projects = append(projects, *p)
		}
	})
	return
}

// Repositories lists every git repository in the organization.
func (c *Client) Repositories(ctx context.Context) (repos []Repository, err error) {
	var uri *url.URL
	if uri, err = c.composeUrl(c.coreBase, "_apis/git/repositories"); err != nil {
		return
	}
	_, _, err = c.getPaged(ctx, uri, func(jo map[string]any) {
		if r := parseRepository(jo); r != nil {
			repos = append(repos, *r)
		}
	})
	return
}

// Groups lists the organization's graph groups.
func (c *Client) Groups(ctx context.Context) (groups []Identity, err error) {
	var uri *url.URL
	if uri, err = c.composeUrl(c.graphBase, "_apis/graph/groups"); err != nil {
		return
	}
	_, _, err = c.getPaged(ctx, uri, func(jo map[string]any) {
		if g := parseSubject(jo); g != nil && g.Kind == KindGroup {
			groups = append(groups, *g)
		}
	})
	return
}

// Memberships lists the direct members of a container group, one edge per
// member.
func (c *Client) Memberships(ctx context.Context, containerDescriptor string) (members []Membership, err error) {
	var uri *url.URL
	if uri, err = c.composeUrl(c.graphBase, "_apis/graph/memberships/", url.PathEscape(containerDescriptor)); err != nil {
		return
	}
	var query = uri.Query()
	query.Set("direction", "down")
	uri.RawQuery = query.Encode()
	_, _, err = c.getPaged(ctx, uri, func(jo map[string]any) {
		if m := parseMembership(jo); m != nil {
			members = append(members, *m)
		}
	})
	return
}

// LookupSubjects resolves descriptors to full identities in one batch call.
func (c *Client) LookupSubjects(ctx context.Context, descriptors []string) (subjects map[string]Identity, err error) {
	subjects = make(map[string]Identity)
	if len(descriptors) == 0 {
		return
	}
	var uri *url.URL
	if uri, err = c.composeUrl(c.graphBase, "_apis/graph/subjectlookup"); err != nil {
		return
	}
	var keys []map[string]any
	for _, d := range descriptors {
		keys = append(keys, map[string]any{"descriptor": d})
	}
	var jo map[string]any
	if jo, _, err = c.executeRequest(ctx, "POST", uri, map[string]any{"lookupKeys": keys}); err != nil {
		return
	}
	var value, ok = jo["value"].(map[string]any)
	if !ok {
		return
	}
	for _, j := range value {
		if jor, jok := j.(map[string]any); jok {
			if subject := parseSubject(jor); subject != nil {
				subjects[subject.Descriptor] = *subject
			}
		}
	}
	return
}

func parseSubject(jo map[string]any) (result *Identity) {
	var ok bool
	var descriptor string
	if descriptor, ok = toString(jo["descriptor"]); !ok {
		return
	}
	result = &Identity{Descriptor: descriptor}
	result.DisplayName, _ = toString(jo["displayName"])
	result.PrincipalName, _ = toString(jo["principalName"])
	result.Origin, _ = toString(jo["origin"])
	var kind string
	if kind, ok = toString(jo["subjectKind"]); ok {
		switch kind {
		case "user":
			result.Kind = KindUser
		case "group":
			result.Kind = KindGroup
		default:
			result.Kind = KindUnknown
		}
	} else {
		result.Kind = kindFromDescriptor(descriptor)
	}
	return
}

func parseMembership(jo map[string]any) (result *Membership) {
	var ok bool
	var container, member string
	if container, ok = toString(jo["containerDescriptor"]); ok {
		member, ok = toString(jo["memberDescriptor"])
	}
	if !ok {
		return
	}
	result = &Membership{
		ContainerDescriptor: container,
		MemberDescriptor:    member,
	}
	return
}

func parseProject(jo map[string]any) (result *Project) {
	var ok bool
	var id, name string
	if id, ok = toString(jo["id"]); ok {
		name, ok = toString(jo["name"])
	}
	if !ok {
		return
	}
	result = &Project{Id: id, Name: name}
	result.State, _ = toString(jo["state"])
	return
}

func parseRepository(jo map[string]any) (result *Repository) {
	var ok bool
	var id, name string
	if id, ok = toString(jo["id"]); ok {
		name, ok = toString(jo["name"])
	}
	if !ok {
		return
	}
	result = &Repository{Id: id, Name: name}
	result.DefaultBranch, _ = toString(jo["defaultBranch"])
	if jp, jok := jo["project"].(map[string]any); jok {
		result.Project, _ = toString(jp["name"])
	}
	return
}
