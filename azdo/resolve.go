package azdo

import (
	"context"

	"go.uber.org/zap"
)

// Directory is the slice of the graph API the resolver needs. *Client
// implements it; tests substitute a fixture.
type Directory interface {
	Memberships(ctx context.Context, containerDescriptor string) ([]Membership, error)
	LookupSubjects(ctx context.Context, descriptors []string) (map[string]Identity, error)
}

// ResolvePolicy decides what a failed subtree does to the overall resolution.
type ResolvePolicy int

const (
	// SkipFailedSubtrees keeps resolving and reports the failure as a
	// warning; the result is a best-effort subset. Default for reports.
	SkipFailedSubtrees ResolvePolicy = iota
	// AbortOnFailure propagates the first subtree failure.
	AbortOnFailure
)

type Resolver struct {
	dir    Directory
	sink   *DiagnosticSink
	logger *zap.Logger
	policy ResolvePolicy
}

func NewResolver(dir Directory, sink *DiagnosticSink, logger *zap.Logger, policy ResolvePolicy) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sink == nil {
		sink = NewDiagnosticSink(logger)
	}
	return &Resolver{
		dir:    dir,
		sink:   sink,
		logger: logger,
		policy: policy,
	}
}

// ResolveMembers expands rootGroup into the flat set of user descriptors
// reachable through any chain of nested groups. The result contains only
// users, deduplicated by descriptor. Groups already being expanded on the
// active path are skipped with a CycleDetected diagnostic, so a cyclic graph
// terminates.
//
// A membership fetch that fails after the client's retry budget surfaces as a
// ResolutionError. For the root group that is always fatal; for nested groups
// the policy applies.
func (r *Resolver) ResolveMembers(ctx context.Context, rootGroup Identity) (result Set[string], err error) {
	result = NewSet[string]()
	var path = NewSet[string]()
	err = r.expand(ctx, rootGroup.Descriptor, path, result)
	return
}

func (r *Resolver) expand(ctx context.Context, groupDescriptor string, path Set[string], result Set[string]) (err error) {
	path.Add(groupDescriptor)
	defer path.Delete(groupDescriptor)

	var members []Membership
	if members, err = r.dir.Memberships(ctx, groupDescriptor); err != nil {
		err = &ResolutionError{Descriptor: groupDescriptor, Attempts: retryAttemptsOf(r.dir), Err: err}
		return
	}

	// Classify by descriptor prefix first; only unknowns cost a lookup.
	var pending []string
	var kinds = make(map[string]SubjectKind, len(members))
	for _, m := range members {
		var kind = kindFromDescriptor(m.MemberDescriptor)
		kinds[m.MemberDescriptor] = kind
		if kind == KindUnknown {
			pending = append(pending, m.MemberDescriptor)
		}
	}
	if len(pending) > 0 {
		var subjects map[string]Identity
		if subjects, err = r.dir.LookupSubjects(ctx, pending); err != nil {
			err = &ResolutionError{Descriptor: groupDescriptor, Attempts: retryAttemptsOf(r.dir), Err: err}
			return
		}
		for _, d := range pending {
			if subject, ok := subjects[d]; ok {
				kinds[d] = subject.Kind
			}
		}
	}

	for _, m := range members {
		var member = m.MemberDescriptor
		switch kinds[member] {
		case KindUser:
			result.Add(member)
		case KindGroup:
			if path.Has(member) {
				r.sink.Emit(DiagCycle, member,
					"group %q is already being expanded on this path, skipping", member)
				continue
			}
			if er1 := r.expand(ctx, member, path, result); er1 != nil {
				if r.policy == AbortOnFailure {
					err = er1
					return
				}
				r.logger.Warn("skipping unresolvable subtree",
					zap.String("group", member),
					zap.Error(er1))
			}
		default:
			r.sink.Emit(DiagUnhandledKind, member,
				"member %q of group %q is neither a user nor a group, skipping", member, groupDescriptor)
		}
	}
	return
}

func retryAttemptsOf(dir Directory) int {
	if c, ok := dir.(*Client); ok {
		return c.retryAttempts
	}
	return 1
}
