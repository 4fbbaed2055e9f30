package collect_test

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/karev/glharvest/internal/collect"
	"github.com/karev/glharvest/internal/gitlab"
	"github.com/karev/glharvest/internal/report"
	"github.com/karev/glharvest/internal/window"
)

type stubSources struct {
	projectIdentifiers []int64
	projectListError   error
	commits            map[int64][]gitlab.Commit
	mergeRequests      map[int64][]gitlab.MergeRequest
	mergeRequestNotes  map[int64][]gitlab.Note
	pushEvents         map[int64][]gitlab.PushEvent
	pipelines          map[int64][]gitlab.Pipeline
	pipelineJobs       map[int64][]gitlab.Job
	commitDiffs        map[string][]gitlab.Diff
	rawFiles           map[string]string
	auditEvents        []gitlab.AuditEvent
	auditEventsError   error
	settings           map[string]any
	systemHooks        []map[string]any
	featureFlags       map[int64][]map[string]any
	users              []gitlab.User
	usersError         error
	projects           []gitlab.ProjectEnvelope
	groups             []gitlab.Group
	groupMembers       map[int64][]gitlab.GroupMember
}

func (sources *stubSources) ProjectIdentifiers(_ context.Context, _ window.Window) ([]int64, error) {
	return sources.projectIdentifiers, sources.projectListError
}

func (sources *stubSources) Commits(_ context.Context, projectIdentifier int64, _ window.Window) ([]gitlab.Commit, error) {
	return sources.commits[projectIdentifier], nil
}

func (sources *stubSources) MergeRequests(_ context.Context, projectIdentifier int64, _ window.Window) ([]gitlab.MergeRequest, error) {
	return sources.mergeRequests[projectIdentifier], nil
}

func (sources *stubSources) MergeRequestNotes(_ context.Context, _ int64, mergeRequestIdentifier int64) ([]gitlab.Note, error) {
	return sources.mergeRequestNotes[mergeRequestIdentifier], nil
}

func (sources *stubSources) PushEvents(_ context.Context, projectIdentifier int64, _ window.Window) ([]gitlab.PushEvent, error) {
	return sources.pushEvents[projectIdentifier], nil
}

func (sources *stubSources) Pipelines(_ context.Context, projectIdentifier int64, _ window.Window) ([]gitlab.Pipeline, error) {
	return sources.pipelines[projectIdentifier], nil
}

func (sources *stubSources) PipelineJobs(_ context.Context, _ int64, pipelineIdentifier int64) ([]gitlab.Job, error) {
	return sources.pipelineJobs[pipelineIdentifier], nil
}

func (sources *stubSources) CommitDiff(_ context.Context, _ int64, commitSHA string) ([]gitlab.Diff, error) {
	return sources.commitDiffs[commitSHA], nil
}

func (sources *stubSources) RawFileContent(_ context.Context, _ int64, reference string, filePath string) (string, error) {
	content, exists := sources.rawFiles[reference+":"+filePath]
	if !exists {
		return "", fmt.Errorf("file %s not found at %s", filePath, reference)
	}
	return content, nil
}

func (sources *stubSources) AuditEvents(_ context.Context, _ window.Window) ([]gitlab.AuditEvent, error) {
	return sources.auditEvents, sources.auditEventsError
}

func (sources *stubSources) ApplicationSettings(_ context.Context) (map[string]any, error) {
	return sources.settings, nil
}

func (sources *stubSources) SystemHooks(_ context.Context) ([]map[string]any, error) {
	return sources.systemHooks, nil
}

func (sources *stubSources) FeatureFlags(_ context.Context, projectIdentifier int64) ([]map[string]any, error) {
	return sources.featureFlags[projectIdentifier], nil
}

func (sources *stubSources) Users(_ context.Context) ([]gitlab.User, error) {
	return sources.users, sources.usersError
}

func (sources *stubSources) Projects(_ context.Context) ([]gitlab.ProjectEnvelope, error) {
	return sources.projects, nil
}

func (sources *stubSources) Groups(_ context.Context) ([]gitlab.Group, error) {
	return sources.groups, nil
}

func (sources *stubSources) GroupMembers(_ context.Context, groupIdentifier int64) ([]gitlab.GroupMember, error) {
	return sources.groupMembers[groupIdentifier], nil
}

func februaryWindow() window.Window {
	return window.PreviousMonth(time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC), time.UTC)
}

func populatedSources() *stubSources {
	return &stubSources{
		projectIdentifiers: []int64{11},
		commits: map[int64][]gitlab.Commit{
			11: {{
				ID:            "abc123",
				AuthorName:    "dana",
				AuthorEmail:   "dana@example.com",
				CommittedDate: "2024-02-03T09:00:00Z",
				Message:       "Fix login redirect",
			}},
		},
		mergeRequests: map[int64][]gitlab.MergeRequest{
			11: {{
				IID:          42,
				Title:        "Add retry budget",
				Description:  "Bound retries on transient failures",
				State:        "merged",
				CreatedAt:    "2024-02-05T10:00:00Z",
				MergedAt:     "2024-02-20T12:00:00Z",
				Author:       &gitlab.Actor{ID: 9, Username: "dana"},
				Reviewers:    []gitlab.Actor{{ID: 4, Username: "lee"}},
				SourceBranch: "retry-budget",
				TargetBranch: "main",
			}},
		},
		mergeRequestNotes: map[int64][]gitlab.Note{
			42: {{
				Author:    &gitlab.Actor{ID: 4, Username: "lee"},
				Body:      "LGTM",
				CreatedAt: "2024-02-19T08:00:00Z",
			}},
		},
		pushEvents: map[int64][]gitlab.PushEvent{
			11: {{
				AuthorID:  9,
				Author:    &gitlab.Actor{ID: 9, Username: "dana"},
				CreatedAt: "2024-02-03T09:05:00Z",
				PushData:  &gitlab.PushData{CommitFrom: "000aaa", CommitTo: "abc123"},
			}},
		},
		pipelines: map[int64][]gitlab.Pipeline{
			11: {{
				ID:        501,
				Ref:       "main",
				SHA:       "abc123",
				CreatedAt: "2024-02-03T09:10:00Z",
				UpdatedAt: "2024-02-03T09:20:00Z",
				Duration:  600,
			}},
		},
		pipelineJobs: map[int64][]gitlab.Job{
			501: {{
				ID:     7001,
				Stage:  "test",
				Name:   "unit",
				Status: "success",
				User:   &gitlab.Actor{ID: 9, Username: "dana"},
			}},
		},
		commitDiffs: map[string][]gitlab.Diff{
			"abc123": {{OldPath: ".gitlab-ci.yml", NewPath: ".gitlab-ci.yml"}},
		},
		rawFiles: map[string]string{
			"abc123:.gitlab-ci.yml": "stages:\n  - test\n  - deploy\n",
		},
		auditEvents: []gitlab.AuditEvent{{
			ID:         301,
			AuthorID:   9,
			EntityID:   11,
			EntityType: "Project",
			EventName:  "Added deploy key",
			CreatedAt:  "2024-02-10T00:00:00Z",
			Details:    map[string]any{"author_name": "dana", "target_type": "DeployKey"},
		}},
		settings: map[string]any{
			"id":         float64(1),
			"updated_at": "2024-02-01T00:00:00Z",
			"version":    "16.9.0",
		},
		systemHooks: []map[string]any{{
			"id":          float64(3),
			"created_at":  "2024-02-02T00:00:00Z",
			"url":         "https://hooks.internal/notify",
			"push_events": true,
		}},
		featureFlags: map[int64][]map[string]any{
			11: {{
				"name":       "dark_mode",
				"active":     true,
				"updated_at": "2024-02-12T00:00:00Z",
				"strategies": []any{map[string]any{"id": float64(77)}},
			}},
		},
		users: []gitlab.User{{
			ID:              9,
			Username:        "dana",
			Email:           "dana@example.com",
			State:           "active",
			CreatedAt:       "2023-01-01T00:00:00Z",
			CurrentSignInAt: "2024-02-25T00:00:00Z",
			LastActivityOn:  "2024-02-25",
		}},
		projects: []gitlab.ProjectEnvelope{{
			Project: gitlab.Project{ID: 11, Name: "payments", TagList: []string{"go"}},
			Raw:     []byte(`{"id":11,"name":"payments"}`),
		}},
		groups: []gitlab.Group{{
			ID:         5,
			Name:       "platform",
			Visibility: "private",
			CreatedAt:  "2022-06-01T00:00:00Z",
			Path:       "platform",
		}},
		groupMembers: map[int64][]gitlab.GroupMember{
			5: {{ID: 9}, {ID: 4}},
		},
	}
}

func newMemoryService(testInstance *testing.T, sources collect.Sources, categories []collect.Category) (*collect.Service, afero.Fs) {
	testInstance.Helper()
	fileSystem := afero.NewMemMapFs()
	service, serviceError := collect.NewService(collect.ServiceOptions{
		Sources:         sources,
		Emitter:         report.NewEmitter(fileSystem),
		HarvestWindow:   februaryWindow(),
		OutputDirectory: "out",
		Categories:      categories,
	})
	require.NoError(testInstance, serviceError)
	return service, fileSystem
}

func readArtifact(testInstance *testing.T, fileSystem afero.Fs, directory string, category collect.Category) [][]string {
	testInstance.Helper()
	file, openError := fileSystem.Open(filepath.Join(directory, category.FileName()))
	require.NoError(testInstance, openError)
	defer func() { require.NoError(testInstance, file.Close()) }()
	rows, readError := csv.NewReader(file).ReadAll()
	require.NoError(testInstance, readError)
	return rows
}

func TestServiceRunEmitsEveryCategory(testInstance *testing.T) {
	sources := populatedSources()
	service, fileSystem := newMemoryService(testInstance, sources, nil)

	summary, runError := service.Run(context.Background())
	require.NoError(testInstance, runError)
	require.Empty(testInstance, summary.Failed)
	require.ElementsMatch(testInstance, collect.AllCategories(), summary.Succeeded)

	for _, category := range collect.AllCategories() {
		rows := readArtifact(testInstance, fileSystem, summary.OutputDirectory, category)
		require.NotEmpty(testInstance, rows, "category %s", category)
		require.Equal(testInstance, category.Header(), rows[0], "category %s", category)
		require.Equal(testInstance, summary.RecordCounts[category], len(rows)-1, "category %s", category)
	}
}

func TestServiceRunReviewRows(testInstance *testing.T) {
	sources := populatedSources()
	service, fileSystem := newMemoryService(testInstance, sources, []collect.Category{collect.CategoryMergeRequestReviews})

	summary, runError := service.Run(context.Background())
	require.NoError(testInstance, runError)
	require.Equal(testInstance, 2, summary.RecordCounts[collect.CategoryMergeRequestReviews])

	rows := readArtifact(testInstance, fileSystem, summary.OutputDirectory, collect.CategoryMergeRequestReviews)
	require.Len(testInstance, rows, 3)

	opened := rows[1]
	require.Equal(testInstance, "9", opened[0])
	require.Equal(testInstance, "dana", opened[1])
	require.Equal(testInstance, "Add retry budget", opened[2])
	require.Equal(testInstance, "[4]", opened[6])
	require.Equal(testInstance, "lee", opened[7])
	require.Equal(testInstance, "2024-02-05T10:00:00Z", opened[8])
	require.Equal(testInstance, "opened", opened[13])
	require.Empty(testInstance, opened[14])

	// Discussion notes land on the final lifecycle row only.
	merged := rows[2]
	require.Equal(testInstance, "merged", merged[13])
	require.Equal(testInstance, "lee: LGTM (2024-02-19T08:00:00Z)", merged[14])
}

func TestServiceRunIsolatesCategoryFailures(testInstance *testing.T) {
	sources := populatedSources()
	sources.usersError = errors.New("users endpoint unavailable")
	service, _ := newMemoryService(testInstance, sources, nil)

	summary, runError := service.Run(context.Background())
	require.NoError(testInstance, runError)
	require.Equal(testInstance, []collect.Category{collect.CategoryUserDimension}, summary.Failed)
	require.Len(testInstance, summary.Succeeded, len(collect.AllCategories())-1)
	require.NotContains(testInstance, summary.RecordCounts, collect.CategoryUserDimension)
}

func TestServiceRunAbortsOnRejectedCredentials(testInstance *testing.T) {
	sources := populatedSources()
	sources.auditEventsError = fmt.Errorf("GET /audit_events: %w", gitlab.ErrAuthentication)
	service, _ := newMemoryService(testInstance, sources, nil)

	_, runError := service.Run(context.Background())
	require.ErrorIs(testInstance, runError, gitlab.ErrAuthentication)
}

func TestServiceRunFailsWhenNothingSucceeds(testInstance *testing.T) {
	sources := populatedSources()
	sources.auditEventsError = errors.New("audit endpoint unavailable")
	service, _ := newMemoryService(testInstance, sources, []collect.Category{collect.CategoryAuditRecords})

	_, runError := service.Run(context.Background())
	require.Error(testInstance, runError)
	require.Contains(testInstance, runError.Error(), "all categories failed")
}

func TestServiceRunToleratesProjectDiscoveryFailure(testInstance *testing.T) {
	sources := populatedSources()
	sources.projectListError = errors.New("projects listing unavailable")
	service, fileSystem := newMemoryService(testInstance, sources, []collect.Category{
		collect.CategoryCodeChanges,
		collect.CategoryAuditRecords,
	})

	summary, runError := service.Run(context.Background())
	require.NoError(testInstance, runError)
	require.Empty(testInstance, summary.Failed)
	require.Zero(testInstance, summary.RecordCounts[collect.CategoryCodeChanges])
	require.Equal(testInstance, 1, summary.RecordCounts[collect.CategoryAuditRecords])

	rows := readArtifact(testInstance, fileSystem, summary.OutputDirectory, collect.CategoryCodeChanges)
	require.Len(testInstance, rows, 1)
}
