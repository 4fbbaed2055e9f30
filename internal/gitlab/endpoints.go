package gitlab

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"

	json "github.com/goccy/go-json"

	"github.com/karev/glharvest/internal/window"
)

const (
	projectsPathConstant            = "/projects"
	usersPathConstant               = "/users"
	groupsPathConstant              = "/groups"
	auditEventsPathConstant         = "/audit_events"
	applicationSettingsPathConstant = "/application/settings"
	systemHooksPathConstant         = "/hooks"

	orderByQueryParameterConstant = "order_by"
	updatedAtOrderValueConstant   = "updated_at"
	simpleQueryParameterConstant  = "simple"

	fileContentDecodeErrorTemplate = "decoding file content for %s: %w"
)

// ProjectIdentifiers returns the IDs of all projects updated inside the
// window, ordered by update recency.
func (client *Client) ProjectIdentifiers(executionContext context.Context, collectionWindow window.Window) ([]int64, error) {
	query := url.Values{}
	query.Set(orderByQueryParameterConstant, updatedAtOrderValueConstant)
	UpdatedTimeFilter.Apply(query, collectionWindow)

	projects, collectError := CollectPages[Project](executionContext, client, projectsPathConstant, query)
	if collectError != nil {
		return nil, collectError
	}

	identifiers := make([]int64, 0, len(projects))
	for _, project := range projects {
		identifiers = append(identifiers, project.ID)
	}
	return identifiers, nil
}

// Projects returns every visible project with both typed fields and the raw
// payload preserved for the metadata column.
func (client *Client) Projects(executionContext context.Context) ([]ProjectEnvelope, error) {
	query := url.Values{}
	query.Set(simpleQueryParameterConstant, "true")

	rawProjects, collectError := CollectPages[json.RawMessage](executionContext, client, projectsPathConstant, query)
	if collectError != nil {
		return nil, collectError
	}

	envelopes := make([]ProjectEnvelope, 0, len(rawProjects))
	for _, rawProject := range rawProjects {
		var project Project
		if decodeError := json.Unmarshal(rawProject, &project); decodeError != nil {
			// Malformed entries are dropped rather than failing the page.
			continue
		}
		envelopes = append(envelopes, ProjectEnvelope{Project: project, Raw: rawProject})
	}
	return envelopes, nil
}

// Users returns every user ordered by update recency.
func (client *Client) Users(executionContext context.Context) ([]User, error) {
	query := url.Values{}
	query.Set(orderByQueryParameterConstant, updatedAtOrderValueConstant)
	return CollectPages[User](executionContext, client, usersPathConstant, query)
}

// Groups returns every visible group.
func (client *Client) Groups(executionContext context.Context) ([]Group, error) {
	return CollectPages[Group](executionContext, client, groupsPathConstant, nil)
}

// GroupMembers returns the direct members of a group.
func (client *Client) GroupMembers(executionContext context.Context, groupID int64) ([]GroupMember, error) {
	path := fmt.Sprintf("%s/%d/members", groupsPathConstant, groupID)
	return CollectPages[GroupMember](executionContext, client, path, nil)
}

// Commits returns a project's commits committed inside the window.
func (client *Client) Commits(executionContext context.Context, projectID int64, collectionWindow window.Window) ([]Commit, error) {
	query := url.Values{}
	CommitTimeFilter.Apply(query, collectionWindow)
	path := fmt.Sprintf("%s/%d/repository/commits", projectsPathConstant, projectID)
	return CollectPages[Commit](executionContext, client, path, query)
}

// MergeRequests returns a project's merge requests updated inside the window.
func (client *Client) MergeRequests(executionContext context.Context, projectID int64, collectionWindow window.Window) ([]MergeRequest, error) {
	query := url.Values{}
	UpdatedTimeFilter.Apply(query, collectionWindow)
	path := fmt.Sprintf("%s/%d/merge_requests", projectsPathConstant, projectID)
	return CollectPages[MergeRequest](executionContext, client, path, query)
}

// MergeRequestNotes returns the comments attached to a merge request.
func (client *Client) MergeRequestNotes(executionContext context.Context, projectID int64, mergeRequestIID int64) ([]Note, error) {
	path := fmt.Sprintf("%s/%d/merge_requests/%d/notes", projectsPathConstant, projectID, mergeRequestIID)
	return CollectPages[Note](executionContext, client, path, nil)
}

// PushEvents returns a project's push events created inside the window.
func (client *Client) PushEvents(executionContext context.Context, projectID int64, collectionWindow window.Window) ([]PushEvent, error) {
	query := url.Values{}
	query.Set("action", "pushed")
	EventTimeFilter.Apply(query, collectionWindow)
	path := fmt.Sprintf("%s/%d/events", projectsPathConstant, projectID)
	return CollectPages[PushEvent](executionContext, client, path, query)
}

// Pipelines returns a project's pipelines updated inside the window.
func (client *Client) Pipelines(executionContext context.Context, projectID int64, collectionWindow window.Window) ([]Pipeline, error) {
	query := url.Values{}
	UpdatedTimeFilter.Apply(query, collectionWindow)
	path := fmt.Sprintf("%s/%d/pipelines", projectsPathConstant, projectID)
	return CollectPages[Pipeline](executionContext, client, path, query)
}

// PipelineJobs returns the jobs of one pipeline.
func (client *Client) PipelineJobs(executionContext context.Context, projectID int64, pipelineID int64) ([]Job, error) {
	path := fmt.Sprintf("%s/%d/pipelines/%d/jobs", projectsPathConstant, projectID, pipelineID)
	return CollectPages[Job](executionContext, client, path, nil)
}

// CommitDiff returns the changed files of one commit.
func (client *Client) CommitDiff(executionContext context.Context, projectID int64, commitSHA string) ([]Diff, error) {
	path := fmt.Sprintf("%s/%d/repository/commits/%s/diff", projectsPathConstant, projectID, url.PathEscape(commitSHA))
	return CollectPages[Diff](executionContext, client, path, nil)
}

// RawFileContent fetches a repository file at the given ref and decodes its
// base64 content. A missing file yields an empty string together with the
// terminal API error, which callers may treat as "no previous revision".
func (client *Client) RawFileContent(executionContext context.Context, projectID int64, reference string, filePath string) (string, error) {
	query := url.Values{}
	query.Set("ref", reference)
	path := fmt.Sprintf("%s/%d/repository/files/%s", projectsPathConstant, projectID, url.PathEscape(filePath))

	var blob fileBlob
	if fetchError := client.GetJSON(executionContext, path, query, &blob); fetchError != nil {
		return "", fetchError
	}
	if len(blob.Content) == 0 {
		return "", nil
	}

	decoded, decodeError := base64.StdEncoding.DecodeString(blob.Content)
	if decodeError != nil {
		return "", fmt.Errorf(fileContentDecodeErrorTemplate, filePath, decodeError)
	}
	return string(decoded), nil
}

// AuditEvents returns instance-level audit events created inside the window.
func (client *Client) AuditEvents(executionContext context.Context, collectionWindow window.Window) ([]AuditEvent, error) {
	query := url.Values{}
	CreatedTimeFilter.Apply(query, collectionWindow)
	return CollectPages[AuditEvent](executionContext, client, auditEventsPathConstant, query)
}

// ApplicationSettings returns the instance application settings object.
func (client *Client) ApplicationSettings(executionContext context.Context) (map[string]any, error) {
	settings := map[string]any{}
	if fetchError := client.GetJSON(executionContext, applicationSettingsPathConstant, nil, &settings); fetchError != nil {
		return nil, fetchError
	}
	return settings, nil
}

// SystemHooks returns the instance system hooks.
func (client *Client) SystemHooks(executionContext context.Context) ([]map[string]any, error) {
	return CollectPages[map[string]any](executionContext, client, systemHooksPathConstant, nil)
}

// FeatureFlags returns a project's feature flags.
func (client *Client) FeatureFlags(executionContext context.Context, projectID int64) ([]map[string]any, error) {
	path := fmt.Sprintf("%s/%d/feature_flags", projectsPathConstant, projectID)
	return CollectPages[map[string]any](executionContext, client, path, nil)
}
