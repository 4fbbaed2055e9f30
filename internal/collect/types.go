package collect

import (
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Category identifies one audit snapshot emitted by a collection run. The
// category name doubles as the base name of the CSV artifact.
type Category string

const (
	CategoryCodeChanges         Category = "code_changes"
	CategoryMergeRequestReviews Category = "mr_reviews"
	CategoryPipelineActivities  Category = "cicd_pipelines"
	CategoryConfigChanges       Category = "cicd_changes"
	CategoryAuditRecords        Category = "audit_records"
	CategorySystemChanges       Category = "all_system_changes"
	CategoryUserDimension       Category = "dim_users"
	CategoryProjectDimension    Category = "dim_projects"
	CategoryGroupDimension      Category = "dim_groups"
)

const artifactFileSuffixConstant = ".csv"

// AllCategories returns every category in emission order.
func AllCategories() []Category {
	return []Category{
		CategoryCodeChanges,
		CategoryMergeRequestReviews,
		CategoryPipelineActivities,
		CategoryConfigChanges,
		CategoryAuditRecords,
		CategorySystemChanges,
		CategoryUserDimension,
		CategoryProjectDimension,
		CategoryGroupDimension,
	}
}

// ParseCategory resolves a category name supplied on the command line.
func ParseCategory(name string) (Category, bool) {
	candidate := Category(strings.TrimSpace(strings.ToLower(name)))
	for _, category := range AllCategories() {
		if category == candidate {
			return category, true
		}
	}
	return "", false
}

// FileName returns the artifact file name for the category.
func (category Category) FileName() string {
	return string(category) + artifactFileSuffixConstant
}

// Header returns the CSV header row for the category.
func (category Category) Header() []string {
	return categoryHeaders[category]
}

var categoryHeaders = map[Category][]string{
	CategoryCodeChanges: {
		"operation", "time", "author_id", "author", "email", "message", "sha", "project_id", "mr_state",
	},
	CategoryMergeRequestReviews: {
		"author_id", "author", "mr_title", "mr_description", "assignee_id", "assignee",
		"reviewers_ids", "reviewers", "time", "project_id", "source_branch",
		"target_branch", "mr_id", "approval_status", "comments",
	},
	CategoryPipelineActivities: {
		"project_id", "branch", "pipeline_id", "stage", "job_name", "job_status",
		"time", "end_time", "duration", "triggered_by", "environment", "commit_sha",
	},
	CategoryConfigChanges: {
		"change_type", "change_content", "time", "author", "project_id", "message", "commit_sha",
	},
	CategoryAuditRecords: {
		"author_id", "author", "entity_id", "entity_type", "time", "operation",
		"event", "target_id", "target_type", "target_name", "pre_post",
		"last_role", "add_info_", "ip",
	},
	CategorySystemChanges: {
		"event_id", "event", "entity_type", "time", "entity_name",
		"entity_description", "entity_details", "hook_events", "flag_state",
	},
	CategoryUserDimension: {
		"id", "username", "email", "state", "is_admin", "created_at", "last_sign_in_at", "last_activity_on",
	},
	CategoryProjectDimension: {
		"id", "name", "description", "tag_list", "metadata",
	},
	CategoryGroupDimension: {
		"id", "name", "description", "members", "visibility", "created_at", "path",
	},
}

// CodeChangeRecord is one row in the code_changes snapshot. A single record
// describes either a commit, a merge request transition, or a push event;
// fields that do not apply to the source kind stay empty.
type CodeChangeRecord struct {
	Operation         string
	Time              string
	AuthorID          string
	Author            string
	Email             string
	Message           string
	SHA               string
	ProjectID         int64
	MergeRequestState string
}

// CSVRecord renders the record as a CSV row matching the category header.
func (record CodeChangeRecord) CSVRecord() []string {
	return []string{
		record.Operation,
		record.Time,
		record.AuthorID,
		record.Author,
		record.Email,
		record.Message,
		record.SHA,
		strconv.FormatInt(record.ProjectID, 10),
		record.MergeRequestState,
	}
}

// ReviewComment is one discussion note attached to a merge request review row.
type ReviewComment struct {
	Commenter string
	Content   string
	Time      string
}

// ReviewRecord is one merge request lifecycle transition in the mr_reviews
// snapshot. Discussion notes are attached to the final transition of the
// merge request they belong to.
type ReviewRecord struct {
	AuthorID        int64
	Author          string
	Title           string
	Description     string
	AssigneeID      int64
	Assignee        string
	ReviewerIDs     []int64
	Reviewers       string
	Time            string
	ProjectID       int64
	SourceBranch    string
	TargetBranch    string
	MergeRequestIID int64
	ApprovalStatus  string
	Comments        []ReviewComment
}

// CSVRecord renders the record as a CSV row matching the category header.
func (record ReviewRecord) CSVRecord() []string {
	return []string{
		strconv.FormatInt(record.AuthorID, 10),
		record.Author,
		record.Title,
		record.Description,
		strconv.FormatInt(record.AssigneeID, 10),
		record.Assignee,
		formatIdentifierList(record.ReviewerIDs),
		record.Reviewers,
		record.Time,
		strconv.FormatInt(record.ProjectID, 10),
		record.SourceBranch,
		record.TargetBranch,
		strconv.FormatInt(record.MergeRequestIID, 10),
		record.ApprovalStatus,
		formatReviewComments(record.Comments),
	}
}

// PipelineActivityRecord is one pipeline job execution in the cicd_pipelines
// snapshot.
type PipelineActivityRecord struct {
	ProjectID   int64
	Branch      string
	PipelineID  int64
	Stage       string
	JobName     string
	JobStatus   string
	Time        string
	EndTime     string
	Duration    float64
	TriggeredBy string
	Environment string
	CommitSHA   string
}

// CSVRecord renders the record as a CSV row matching the category header.
func (record PipelineActivityRecord) CSVRecord() []string {
	return []string{
		strconv.FormatInt(record.ProjectID, 10),
		record.Branch,
		strconv.FormatInt(record.PipelineID, 10),
		record.Stage,
		record.JobName,
		record.JobStatus,
		record.Time,
		record.EndTime,
		strconv.FormatFloat(record.Duration, 'f', -1, 64),
		record.TriggeredBy,
		record.Environment,
		record.CommitSHA,
	}
}

// ConfigChangeRecord is one pipeline definition change in the cicd_changes
// snapshot. ChangeContent carries a unified diff between the parent and
// current revision of the pipeline definition file.
type ConfigChangeRecord struct {
	ChangeType    string
	ChangeContent string
	Time          string
	Author        string
	ProjectID     int64
	Message       string
	CommitSHA     string
}

// CSVRecord renders the record as a CSV row matching the category header.
func (record ConfigChangeRecord) CSVRecord() []string {
	return []string{
		record.ChangeType,
		record.ChangeContent,
		record.Time,
		record.Author,
		strconv.FormatInt(record.ProjectID, 10),
		record.Message,
		record.CommitSHA,
	}
}

// AuditRecord is one instance audit event in the audit_records snapshot.
type AuditRecord struct {
	AuthorID       int64
	Author         string
	EntityID       int64
	EntityType     string
	Time           string
	Operation      string
	Event          string
	TargetID       int64
	TargetType     string
	TargetName     string
	PrePost        string
	LastRole       string
	AdditionalInfo string
	IP             string
}

// CSVRecord renders the record as a CSV row matching the category header.
func (record AuditRecord) CSVRecord() []string {
	return []string{
		strconv.FormatInt(record.AuthorID, 10),
		record.Author,
		strconv.FormatInt(record.EntityID, 10),
		record.EntityType,
		record.Time,
		record.Operation,
		record.Event,
		strconv.FormatInt(record.TargetID, 10),
		record.TargetType,
		record.TargetName,
		record.PrePost,
		record.LastRole,
		record.AdditionalInfo,
		record.IP,
	}
}

// SystemChangeRecord is one system configuration object in the
// all_system_changes snapshot.
type SystemChangeRecord struct {
	EventID           int64
	Event             string
	EntityType        string
	Time              string
	EntityName        string
	EntityDescription string
	EntityDetails     string
	HookEvents        string
	FlagState         string
}

// CSVRecord renders the record as a CSV row matching the category header.
func (record SystemChangeRecord) CSVRecord() []string {
	return []string{
		strconv.FormatInt(record.EventID, 10),
		record.Event,
		record.EntityType,
		record.Time,
		record.EntityName,
		record.EntityDescription,
		record.EntityDetails,
		record.HookEvents,
		record.FlagState,
	}
}

// UserDimensionRecord is one account in the dim_users snapshot.
type UserDimensionRecord struct {
	ID             int64
	Username       string
	Email          string
	State          string
	IsAdmin        bool
	CreatedAt      string
	LastSignInAt   string
	LastActivityOn string
}

// CSVRecord renders the record as a CSV row matching the category header.
func (record UserDimensionRecord) CSVRecord() []string {
	return []string{
		strconv.FormatInt(record.ID, 10),
		record.Username,
		record.Email,
		record.State,
		strconv.FormatBool(record.IsAdmin),
		record.CreatedAt,
		record.LastSignInAt,
		record.LastActivityOn,
	}
}

// ProjectDimensionRecord is one repository in the dim_projects snapshot.
// Metadata holds the raw project payload so downstream consumers keep
// access to attributes the flat columns drop.
type ProjectDimensionRecord struct {
	ID          int64
	Name        string
	Description string
	TagList     []string
	Metadata    string
}

// CSVRecord renders the record as a CSV row matching the category header.
func (record ProjectDimensionRecord) CSVRecord() []string {
	return []string{
		strconv.FormatInt(record.ID, 10),
		record.Name,
		record.Description,
		formatStringList(record.TagList),
		record.Metadata,
	}
}

// GroupDimensionRecord is one namespace in the dim_groups snapshot.
type GroupDimensionRecord struct {
	ID          int64
	Name        string
	Description string
	Members     []int64
	Visibility  string
	CreatedAt   string
	Path        string
}

// CSVRecord renders the record as a CSV row matching the category header.
func (record GroupDimensionRecord) CSVRecord() []string {
	return []string{
		strconv.FormatInt(record.ID, 10),
		record.Name,
		record.Description,
		formatIdentifierList(record.Members),
		record.Visibility,
		record.CreatedAt,
		record.Path,
	}
}

func formatReviewComments(comments []ReviewComment) string {
	if len(comments) == 0 {
		return ""
	}
	parts := make([]string, 0, len(comments))
	for _, comment := range comments {
		parts = append(parts, comment.Commenter+": "+comment.Content+" ("+comment.Time+")")
	}
	return strings.Join(parts, "\n")
}

func formatIdentifierList(identifiers []int64) string {
	if identifiers == nil {
		identifiers = []int64{}
	}
	encoded, encodeError := json.Marshal(identifiers)
	if encodeError != nil {
		return "[]"
	}
	return string(encoded)
}

func formatStringList(values []string) string {
	if values == nil {
		values = []string{}
	}
	encoded, encodeError := json.Marshal(values)
	if encodeError != nil {
		return "[]"
	}
	return string(encoded)
}
