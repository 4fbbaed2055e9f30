package collect

import (
	"context"

	"go.uber.org/zap"

	"github.com/karev/glharvest/internal/gitlab"
	"github.com/karev/glharvest/internal/report"
	"github.com/karev/glharvest/internal/window"
)

// LoggerProvider supplies the zap logger used during command execution.
type LoggerProvider func() *zap.Logger

// ArtifactEmitter persists one snapshot artifact into the output directory.
type ArtifactEmitter interface {
	Emit(directoryPath string, artifact report.Artifact) error
}

// ProjectDirectory lists the projects active inside the harvest window.
type ProjectDirectory interface {
	ProjectIdentifiers(executionContext context.Context, harvestWindow window.Window) ([]int64, error)
}

// CodeChangeSource fetches the activity feeding the code_changes snapshot.
type CodeChangeSource interface {
	Commits(executionContext context.Context, projectIdentifier int64, harvestWindow window.Window) ([]gitlab.Commit, error)
	MergeRequests(executionContext context.Context, projectIdentifier int64, harvestWindow window.Window) ([]gitlab.MergeRequest, error)
	PushEvents(executionContext context.Context, projectIdentifier int64, harvestWindow window.Window) ([]gitlab.PushEvent, error)
}

// ReviewSource fetches merge requests and their discussion notes.
type ReviewSource interface {
	MergeRequests(executionContext context.Context, projectIdentifier int64, harvestWindow window.Window) ([]gitlab.MergeRequest, error)
	MergeRequestNotes(executionContext context.Context, projectIdentifier int64, mergeRequestIdentifier int64) ([]gitlab.Note, error)
}

// PipelineSource fetches pipelines and the jobs they executed.
type PipelineSource interface {
	Pipelines(executionContext context.Context, projectIdentifier int64, harvestWindow window.Window) ([]gitlab.Pipeline, error)
	PipelineJobs(executionContext context.Context, projectIdentifier int64, pipelineIdentifier int64) ([]gitlab.Job, error)
}

// ConfigChangeSource fetches commit diffs and file revisions for pipeline
// definition tracking.
type ConfigChangeSource interface {
	Commits(executionContext context.Context, projectIdentifier int64, harvestWindow window.Window) ([]gitlab.Commit, error)
	CommitDiff(executionContext context.Context, projectIdentifier int64, commitSHA string) ([]gitlab.Diff, error)
	RawFileContent(executionContext context.Context, projectIdentifier int64, reference string, filePath string) (string, error)
}

// AuditEventSource fetches instance level audit events.
type AuditEventSource interface {
	AuditEvents(executionContext context.Context, harvestWindow window.Window) ([]gitlab.AuditEvent, error)
}

// SystemChangeSource fetches instance configuration objects.
type SystemChangeSource interface {
	ApplicationSettings(executionContext context.Context) (map[string]any, error)
	SystemHooks(executionContext context.Context) ([]map[string]any, error)
	FeatureFlags(executionContext context.Context, projectIdentifier int64) ([]map[string]any, error)
}

// DimensionSource fetches the user, project, and group dimension payloads.
type DimensionSource interface {
	Users(executionContext context.Context) ([]gitlab.User, error)
	Projects(executionContext context.Context) ([]gitlab.ProjectEnvelope, error)
	Groups(executionContext context.Context) ([]gitlab.Group, error)
	GroupMembers(executionContext context.Context, groupIdentifier int64) ([]gitlab.GroupMember, error)
}

// Sources aggregates every collaborator the collection service needs.
// *gitlab.Client satisfies the full set.
type Sources interface {
	ProjectDirectory
	CodeChangeSource
	ReviewSource
	PipelineSource
	ConfigChangeSource
	AuditEventSource
	SystemChangeSource
	DimensionSource
}
