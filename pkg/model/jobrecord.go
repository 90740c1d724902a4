package model

// JobRecordStatus is the lifecycle state of one JobRecord. Everything past
// Pending/PlanMaking is driven externally by task execution, which is out of
// scope for this core (spec §1).
type JobRecordStatus string

const (
	StatusPending       JobRecordStatus = "Pending"
	StatusPlanMaking    JobRecordStatus = "PlanMaking"
	StatusPlanMade      JobRecordStatus = "PlanMade"
	StatusTaskExecuting JobRecordStatus = "TaskExecuting"
	StatusTaskSyncing   JobRecordStatus = "TaskSyncing"
	StatusTaskMerging   JobRecordStatus = "TaskMerging"
	StatusTaskMerged    JobRecordStatus = "TaskMerged"
	StatusFailed        JobRecordStatus = "Failed"
)

// JobTask is one unit of work within a JobRecord, assigned to one member.
type JobTask struct {
	ID               string `json:"id"`
	JobRecordID      string `json:"jobRecordId"`
	AssignedMemberID string `json:"assignedMemberId"`
	State            string `json:"state"`
}

// JobRecord is a single run of a job, owning a task plan and a lifecycle
// status (spec §3). TaskPlan maps a member id to the ordered list of tasks
// that member must perform.
type JobRecord struct {
	ID      string                     `json:"id"`
	JobName string                     `json:"jobName"`
	Status  JobRecordStatus            `json:"status"`
	TaskPlan map[string][]JobTask      `json:"taskPlan,omitempty"`

	// ModifyIndex is the KV CAS token; excluded from JSON like JobConfig's.
	ModifyIndex int64 `json:"-"`
}

// IsTerminal reports whether the record has reached TaskMerged, the only
// status that unblocks creation of the config's next record.
func (r *JobRecord) IsTerminal() bool {
	return r.Status == StatusTaskMerged
}

// PlanReady reports whether the record's task plan has been computed and is
// safe for the task-plan extractor to read (spec §4.7).
func (r *JobRecord) PlanReady() bool {
	return r.Status != StatusPending && r.Status != StatusPlanMaking
}
