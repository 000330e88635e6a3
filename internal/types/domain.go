// Package types holds the domain model shared by the ingestion pipeline,
// the repositories, and the HTTP API: persisted time-saving rows, upstream
// task records, classification triples, and the read-side stat shapes.
package types

import "time"

// TaskStatusCompleted is the only upstream task status that ever reaches
// the savings table.
const TaskStatusCompleted = "completed"

// EntityRefKey is the reserved key inside a classification payload that names
// the template the classification applies to. It is stripped before the
// payload is interpreted as team/role data.
const EntityRefKey = "entityRef"

// TimeSavingRecord is one persisted row of the savings table: a single
// (team, role) classification entry of a single completed task. One task
// fans out into one row per classification triple, so TemplateTaskID is not
// unique across rows.
type TimeSavingRecord struct {
	ID                 string    `json:"id,omitempty"`
	Team               string    `json:"team"`
	Role               string    `json:"role"`
	CreatedAt          time.Time `json:"createdAt"`
	CreatedBy          string    `json:"createdBy"`
	TimeSaved          float64   `json:"timeSaved"`
	TemplateName       string    `json:"templateName"`
	TemplateTaskID     string    `json:"templateTaskId"`
	TemplateTaskStatus string    `json:"templateTaskStatus"`
}

// TaskRecord is a workflow-task execution as returned by the upstream task
// source. CreatedAt stays a raw string here; parsing it is the normalizer's
// job and its failure mode is part of the pipeline contract.
type TaskRecord struct {
	ID        string   `json:"id"`
	Status    string   `json:"status"`
	CreatedAt string   `json:"createdAt"`
	CreatedBy string   `json:"createdBy"`
	Spec      TaskSpec `json:"spec"`
}

// TaskSpec carries the template metadata embedded in a task record.
type TaskSpec struct {
	TemplateInfo TemplateInfo `json:"templateInfo"`
}

// TemplateInfo identifies the originating template and carries its entity
// metadata, including the classification payload.
type TemplateInfo struct {
	EntityRef string         `json:"entityRef"`
	Entity    TemplateEntity `json:"entity"`
}

// TemplateEntity is the catalog entity snapshot embedded in a task spec.
type TemplateEntity struct {
	Metadata TemplateMetadata `json:"metadata"`
}

// TemplateMetadata holds the loosely-structured classification payload.
// Values are either numbers (single-level: role -> hours) or nested objects
// (two-level: team -> role -> hours); the parser sorts that out.
type TemplateMetadata struct {
	Substitute map[string]any `json:"substitute"`
}

// ClassificationEntry is one flat (team, role, hours) triple produced by
// parsing a task's classification payload.
type ClassificationEntry struct {
	Team      string
	Role      string
	TimeSaved float64
}

// TimeSavedStat is a grouped sum of time saved, keyed by team and/or
// template depending on the query.
type TimeSavedStat struct {
	Team         string  `json:"team,omitempty"`
	TemplateName string  `json:"templateName,omitempty"`
	TimeSaved    float64 `json:"timeSaved"`
}

// GroupSavingsDivision is one team's percentage share of the grand total.
type GroupSavingsDivision struct {
	Team       string  `json:"team"`
	Percentage float64 `json:"percentage"`
}

// TimeSummary is a date-bucketed total, grouped by team or template.
// For daily summaries TotalTimeSaved is that day's sum; for cumulative
// summaries it is the running sum up to and including that day.
type TimeSummary struct {
	Team           string  `json:"team,omitempty"`
	TemplateName   string  `json:"templateName,omitempty"`
	Date           Date    `json:"date"`
	TotalTimeSaved float64 `json:"totalTimeSaved"`
}

// MigrationReport summarizes a backward-migration run: which upstream tasks
// were patched with classification data and which had no matching entry.
type MigrationReport struct {
	UpdatedTemplates MigrationBucket `json:"updatedTemplates"`
	MissingTemplates MigrationBucket `json:"missingTemplates"`
}

// MigrationBucket is a count plus the task ids behind it.
type MigrationBucket struct {
	Total int      `json:"total"`
	List  []string `json:"list"`
}

// DateRange is the optional created_at filter accepted by every read query.
// Nil bounds are open.
type DateRange struct {
	Start *time.Time
	End   *time.Time
}

// IsZero reports whether no bound is set.
func (r DateRange) IsZero() bool {
	return r.Start == nil && r.End == nil
}
