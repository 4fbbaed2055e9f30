package gitlab

import (
	"strconv"

	json "github.com/goccy/go-json"
)

// Actor identifies the user attached to an API resource.
type Actor struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// User is a row of the users dimension.
type User struct {
	ID              int64  `json:"id"`
	Username        string `json:"username"`
	Email           string `json:"email"`
	State           string `json:"state"`
	IsAdmin         bool   `json:"is_admin"`
	CreatedAt       string `json:"created_at"`
	CurrentSignInAt string `json:"current_sign_in_at"`
	LastActivityOn  string `json:"last_activity_on"`
}

// Project carries the typed subset of project fields the harvester reads.
type Project struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	TagList     []string `json:"tag_list"`
}

// ProjectEnvelope pairs the typed project with its raw payload so the
// projects dimension can persist the full metadata object.
type ProjectEnvelope struct {
	Project Project
	Raw     json.RawMessage
}

// Group is a row of the groups dimension before member resolution.
type Group struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Visibility  string `json:"visibility"`
	CreatedAt   string `json:"created_at"`
	Path        string `json:"path"`
}

// GroupMember carries the member identifier used by the groups dimension.
type GroupMember struct {
	ID int64 `json:"id"`
}

// Commit is a repository commit as returned by the commits endpoint.
type Commit struct {
	ID            string   `json:"id"`
	AuthorName    string   `json:"author_name"`
	AuthorEmail   string   `json:"author_email"`
	CommittedDate string   `json:"committed_date"`
	Message       string   `json:"message"`
	ParentIDs     []string `json:"parent_ids"`
}

// MergeRequest is a merge request with the review-relevant fields.
type MergeRequest struct {
	IID          int64   `json:"iid"`
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	State        string  `json:"state"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
	MergedAt     string  `json:"merged_at"`
	ClosedAt     string  `json:"closed_at"`
	Author       *Actor  `json:"author"`
	Assignee     *Actor  `json:"assignee"`
	Reviewers    []Actor `json:"reviewers"`
	SourceBranch string  `json:"source_branch"`
	TargetBranch string  `json:"target_branch"`
}

// Note is a merge request comment.
type Note struct {
	Author    *Actor `json:"author"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at"`
}

// PushData describes the commit range of a push event.
type PushData struct {
	CommitFrom string `json:"commit_from"`
	CommitTo   string `json:"commit_to"`
}

// PushEvent is a project event filtered to the pushed action.
type PushEvent struct {
	AuthorID  int64     `json:"author_id"`
	Author    *Actor    `json:"author"`
	CreatedAt string    `json:"created_at"`
	PushData  *PushData `json:"push_data"`
}

// Pipeline is a CI/CD pipeline summary.
type Pipeline struct {
	ID        int64   `json:"id"`
	Ref       string  `json:"ref"`
	SHA       string  `json:"sha"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
	Duration  float64 `json:"duration"`
}

// JobEnvironment names the environment a job deployed to.
type JobEnvironment struct {
	Name string `json:"name"`
}

// Job is a single CI/CD job inside a pipeline.
type Job struct {
	ID          int64           `json:"id"`
	Stage       string          `json:"stage"`
	Name        string          `json:"name"`
	Status      string          `json:"status"`
	StartedAt   string          `json:"started_at"`
	FinishedAt  string          `json:"finished_at"`
	Duration    float64         `json:"duration"`
	User        *Actor          `json:"user"`
	Environment *JobEnvironment `json:"environment"`
}

// AuditEvent is an instance-level audit event. Details shapes vary by event
// kind, so they stay dynamic and are interrogated with the accessors below.
type AuditEvent struct {
	ID         int64          `json:"id"`
	AuthorID   int64          `json:"author_id"`
	EntityID   int64          `json:"entity_id"`
	EntityType string         `json:"entity_type"`
	EventName  string         `json:"event_name"`
	CreatedAt  string         `json:"created_at"`
	Details    map[string]any `json:"details"`
}

// DetailString returns the named detail rendered as a string, or the empty
// string when absent.
func (event AuditEvent) DetailString(key string) string {
	value, exists := event.Details[key]
	if !exists || value == nil {
		return ""
	}
	switch typed := value.(type) {
	case string:
		return typed
	case float64:
		return formatNumericDetail(typed)
	case bool:
		if typed {
			return "true"
		}
		return "false"
	default:
		encoded, encodeError := json.Marshal(typed)
		if encodeError != nil {
			return ""
		}
		return string(encoded)
	}
}

// HasDetail reports whether the named detail key is present.
func (event AuditEvent) HasDetail(key string) bool {
	_, exists := event.Details[key]
	return exists
}

// DetailInt64 returns the named detail as an integer, or the fallback when
// absent or not numeric.
func (event AuditEvent) DetailInt64(key string, fallback int64) int64 {
	value, exists := event.Details[key]
	if !exists {
		return fallback
	}
	numeric, isNumeric := value.(float64)
	if !isNumeric {
		return fallback
	}
	return int64(numeric)
}

// Diff describes one changed file inside a commit diff.
type Diff struct {
	OldPath string `json:"old_path"`
	NewPath string `json:"new_path"`
}

// fileBlob is the repository files endpoint payload.
type fileBlob struct {
	Content string `json:"content"`
}

func formatNumericDetail(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}
