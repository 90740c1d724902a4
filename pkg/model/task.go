package model

// ActiveTask is one (jobRecordId, taskId, assignedMemberId) tuple extracted
// from an active JobRecord's TaskPlan (spec §4.7). It is the unit the
// task-plan extractor diffs against the in-memory active-task set.
type ActiveTask struct {
	JobRecordID      string
	TaskID           string
	AssignedMemberID string
}

// Key identifies the task for diffing purposes, independent of field order.
func (t ActiveTask) Key() string {
	return t.JobRecordID + "/" + t.TaskID
}
