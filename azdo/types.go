// Package azdo implements the Azure DevOps REST surface this toolkit depends on:
// paginated collection fetching, recursive group-membership resolution, and
// membership aggregation by project naming convention.
package azdo

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

type SubjectKind string

const (
	KindUser    SubjectKind = "user"
	KindGroup   SubjectKind = "group"
	KindUnknown SubjectKind = ""
)

// Identity is a subject in the directory graph. Descriptor is the opaque
// stable key; PrincipalName is the human-readable form used for
// naming-convention matching (e.g. "[Project]\Contributors").
type Identity struct {
	Descriptor    string
	DisplayName   string
	PrincipalName string
	Origin        string
	Kind          SubjectKind
}

// Membership is a directed edge from a container group to one of its members.
type Membership struct {
	ContainerDescriptor string
	MemberDescriptor    string
}

type Project struct {
	Id    string
	Name  string
	State string
}

type Repository struct {
	Id            string
	Name          string
	Project       string
	DefaultBranch string
}

type DiagnosticKind int

const (
	DiagPartialResult DiagnosticKind = iota
	DiagCycle
	DiagUnhandledKind
	DiagGroupNotFound
	DiagAmbiguousGroup
)

func (k DiagnosticKind) String() string {
	switch k {
	case DiagPartialResult:
		return "PartialResult"
	case DiagCycle:
		return "CycleDetected"
	case DiagUnhandledKind:
		return "UnhandledSubjectKind"
	case DiagGroupNotFound:
		return "GroupNotFound"
	case DiagAmbiguousGroup:
		return "AmbiguousGroup"
	}
	return "Unknown"
}

// Diagnostic is a non-fatal condition observed while fetching or resolving.
// Diagnostics never abort a run; they are logged and attached to the report.
type Diagnostic struct {
	Kind    DiagnosticKind
	Subject string
	Message string
}

func (d Diagnostic) String() string {
	if len(d.Subject) > 0 {
		return fmt.Sprintf("%s (%s): %s", d.Kind, d.Subject, d.Message)
	}
	return fmt.Sprintf("%s: %s", d.Kind, d.Message)
}

// DiagnosticSink collects diagnostics for the duration of one invocation.
// Not safe for concurrent use; resolution is single-threaded.
type DiagnosticSink struct {
	logger  *zap.Logger
	entries []Diagnostic
}

func NewDiagnosticSink(logger *zap.Logger) *DiagnosticSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DiagnosticSink{logger: logger}
}

func (ds *DiagnosticSink) Emit(kind DiagnosticKind, subject string, format string, args ...any) {
	var d = Diagnostic{
		Kind:    kind,
		Subject: subject,
		Message: fmt.Sprintf(format, args...),
	}
	ds.entries = append(ds.entries, d)
	ds.logger.Warn(d.Message,
		zap.String("diagnostic", kind.String()),
		zap.String("subject", subject))
}

func (ds *DiagnosticSink) Entries() []Diagnostic {
	return ds.entries
}

func (ds *DiagnosticSink) Count(kind DiagnosticKind) (n int) {
	for _, d := range ds.entries {
		if d.Kind == kind {
			n++
		}
	}
	return
}

// kindFromDescriptor classifies a subject by its descriptor prefix without a
// network round trip. Unknown prefixes fall back to a subject lookup.
func kindFromDescriptor(descriptor string) SubjectKind {
	var prefix = descriptor
	if idx := strings.IndexByte(descriptor, '.'); idx > 0 {
		prefix = descriptor[:idx]
	}
	switch prefix {
	case "vssgp", "aadgp":
		return KindGroup
	case "aad", "msa":
		return KindUser
	}
	return KindUnknown
}
