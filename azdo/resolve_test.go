package azdo

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeDirectory serves a static membership graph.
type fakeDirectory struct {
	members  map[string][]string
	subjects map[string]Identity
	failing  map[string]error
	fetches  int
	lookups  int
}

func (fd *fakeDirectory) Memberships(_ context.Context, containerDescriptor string) (members []Membership, err error) {
	fd.fetches++
	if er1, ok := fd.failing[containerDescriptor]; ok {
		return nil, er1
	}
	for _, m := range fd.members[containerDescriptor] {
		members = append(members, Membership{
			ContainerDescriptor: containerDescriptor,
			MemberDescriptor:    m,
		})
	}
	return
}

func (fd *fakeDirectory) LookupSubjects(_ context.Context, descriptors []string) (subjects map[string]Identity, err error) {
	fd.lookups++
	subjects = make(map[string]Identity)
	for _, d := range descriptors {
		if s, ok := fd.subjects[d]; ok {
			subjects[d] = s
		}
	}
	return
}

func newTestResolver(dir Directory, policy ResolvePolicy) (*Resolver, *DiagnosticSink) {
	var sink = NewDiagnosticSink(zap.NewNop())
	return NewResolver(dir, sink, zap.NewNop(), policy), sink
}

func group(descriptor string) Identity {
	return Identity{Descriptor: descriptor, Kind: KindGroup}
}

func TestResolveDeduplicatesAcrossPaths(t *testing.T) {
	// G1 -> [U1, G2]; G2 -> [U1, U2]. U1 is reachable twice.
	var dir = &fakeDirectory{
		members: map[string][]string{
			"vssgp.G1": {"aad.U1", "vssgp.G2"},
			"vssgp.G2": {"aad.U1", "aad.U2"},
		},
	}
	var resolver, sink = newTestResolver(dir, SkipFailedSubtrees)
	var resolved, err = resolver.ResolveMembers(context.Background(), group("vssgp.G1"))
	require.NoError(t, err)
	assert.True(t, resolved.EqualTo(MakeSet([]string{"aad.U1", "aad.U2"})))
	assert.Empty(t, sink.Entries())
}

func TestResolveTerminatesOnCycle(t *testing.T) {
	// A contains B, B contains A.
	var dir = &fakeDirectory{
		members: map[string][]string{
			"vssgp.A": {"vssgp.B", "aad.U1"},
			"vssgp.B": {"vssgp.A", "aad.U2"},
		},
	}
	var resolver, sink = newTestResolver(dir, SkipFailedSubtrees)
	var resolved, err = resolver.ResolveMembers(context.Background(), group("vssgp.A"))
	require.NoError(t, err)
	assert.True(t, resolved.EqualTo(MakeSet([]string{"aad.U1", "aad.U2"})))
	assert.GreaterOrEqual(t, sink.Count(DiagCycle), 1)
}

func TestResolveSelfMembership(t *testing.T) {
	var dir = &fakeDirectory{
		members: map[string][]string{
			"vssgp.A": {"vssgp.A", "aad.U1"},
		},
	}
	var resolver, sink = newTestResolver(dir, SkipFailedSubtrees)
	var resolved, err = resolver.ResolveMembers(context.Background(), group("vssgp.A"))
	require.NoError(t, err)
	assert.True(t, resolved.EqualTo(MakeSet([]string{"aad.U1"})))
	assert.Equal(t, 1, sink.Count(DiagCycle))
}

func TestResolveSkipsUnhandledKinds(t *testing.T) {
	var dir = &fakeDirectory{
		members: map[string][]string{
			"vssgp.G1": {"aad.U1", "svc.S1"},
		},
		subjects: map[string]Identity{
			"svc.S1": {Descriptor: "svc.S1", Kind: KindUnknown},
		},
	}
	var resolver, sink = newTestResolver(dir, SkipFailedSubtrees)
	var resolved, err = resolver.ResolveMembers(context.Background(), group("vssgp.G1"))
	require.NoError(t, err)
	assert.True(t, resolved.EqualTo(MakeSet([]string{"aad.U1"})))
	assert.Equal(t, 1, sink.Count(DiagUnhandledKind))
	assert.Equal(t, 1, dir.lookups)
}

func TestResolveLookupClassifiesUnknownPrefixes(t *testing.T) {
	// svc.T1 turns out to be a group once looked up.
	var dir = &fakeDirectory{
		members: map[string][]string{
			"vssgp.G1": {"svc.T1"},
			"svc.T1":   {"aad.U9"},
		},
		subjects: map[string]Identity{
			"svc.T1": {Descriptor: "svc.T1", Kind: KindGroup},
		},
	}
	var resolver, _ = newTestResolver(dir, SkipFailedSubtrees)
	var resolved, err = resolver.ResolveMembers(context.Background(), group("vssgp.G1"))
	require.NoError(t, err)
	assert.True(t, resolved.EqualTo(MakeSet([]string{"aad.U9"})))
}

func TestResolveRootFailureIsFatal(t *testing.T) {
	var dir = &fakeDirectory{
		failing: map[string]error{
			"vssgp.G1": errors.New("boom"),
		},
	}
	var resolver, _ = newTestResolver(dir, SkipFailedSubtrees)
	var _, err = resolver.ResolveMembers(context.Background(), group("vssgp.G1"))
	require.Error(t, err)
	var re *ResolutionError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "vssgp.G1", re.Descriptor)
}

func TestResolveSkipsFailedSubtrees(t *testing.T) {
	var dir = &fakeDirectory{
		members: map[string][]string{
			"vssgp.G1": {"aad.U1", "vssgp.G2", "vssgp.G3"},
			"vssgp.G3": {"aad.U3"},
		},
		failing: map[string]error{
			"vssgp.G2": errors.New("boom"),
		},
	}
	var resolver, _ = newTestResolver(dir, SkipFailedSubtrees)
	var resolved, err = resolver.ResolveMembers(context.Background(), group("vssgp.G1"))
	require.NoError(t, err)
	assert.True(t, resolved.EqualTo(MakeSet([]string{"aad.U1", "aad.U3"})))
}

func TestResolveAbortsOnFailureWhenConfigured(t *testing.T) {
	var dir = &fakeDirectory{
		members: map[string][]string{
			"vssgp.G1": {"vssgp.G2"},
		},
		failing: map[string]error{
			"vssgp.G2": errors.New("boom"),
		},
	}
	var resolver, _ = newTestResolver(dir, AbortOnFailure)
	var _, err = resolver.ResolveMembers(context.Background(), group("vssgp.G1"))
	require.Error(t, err)
	var re *ResolutionError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "vssgp.G2", re.Descriptor)
}

func TestResolveReturnsOnlyUsers(t *testing.T) {
	var dir = &fakeDirectory{
		members: map[string][]string{
			"vssgp.G1": {"vssgp.G2", "aadgp.G3", "aad.U1"},
			"vssgp.G2": {"msa.U2"},
			"aadgp.G3": {"aad.U1"},
		},
	}
	var resolver, _ = newTestResolver(dir, SkipFailedSubtrees)
	var resolved, err = resolver.ResolveMembers(context.Background(), group("vssgp.G1"))
	require.NoError(t, err)
	for _, d := range resolved.ToArray() {
		assert.NotEqual(t, KindGroup, kindFromDescriptor(d))
	}
	assert.True(t, resolved.EqualTo(MakeSet([]string{"aad.U1", "msa.U2"})))
}

func TestResolveIsIdempotent(t *testing.T) {
	var dir = &fakeDirectory{
		members: map[string][]string{
			"vssgp.G1": {"aad.U1", "vssgp.G2"},
			"vssgp.G2": {"aad.U2", "aad.U3"},
		},
	}
	var resolver, _ = newTestResolver(dir, SkipFailedSubtrees)
	var first, err = resolver.ResolveMembers(context.Background(), group("vssgp.G1"))
	require.NoError(t, err)
	var second Set[string]
	second, err = resolver.ResolveMembers(context.Background(), group("vssgp.G1"))
	require.NoError(t, err)
	assert.True(t, first.EqualTo(second))
}

func TestResolveEmptyGroup(t *testing.T) {
	var dir = &fakeDirectory{members: map[string][]string{}}
	var resolver, sink = newTestResolver(dir, SkipFailedSubtrees)
	var resolved, err = resolver.ResolveMembers(context.Background(), group("vssgp.Empty"))
	require.NoError(t, err)
	assert.Empty(t, resolved)
	assert.Empty(t, sink.Entries())
}
