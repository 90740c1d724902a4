package model

// JobConfig is the declarative description of a recurring job, discovered by
// the Manager from a job package on disk and published to KV (spec §4.4).
type JobConfig struct {
	Name                string   `json:"name"`
	LastRecordID        string   `json:"lastRecordId,omitempty"`
	LastRecordStartTime string   `json:"lastRecordStartTime,omitempty"`
	RunTimePlan         []string `json:"runTimePlan"`

	// Settings carries the rest of the job package's job.json payload
	// verbatim; this core never interprets package-level settings beyond
	// Name and RunTimePlan.
	Settings map[string]interface{} `json:"settings,omitempty"`

	// ModifyIndex is the KV CAS token for this value. It travels with the
	// value rather than inside the JSON payload stored at the key, so it is
	// excluded from JSON encoding.
	ModifyIndex int64 `json:"-"`
}

// Clone returns a deep-enough copy for diffing and in-place update.
func (c *JobConfig) Clone() *JobConfig {
	cp := *c
	cp.RunTimePlan = append([]string(nil), c.RunTimePlan...)
	if c.Settings != nil {
		cp.Settings = make(map[string]interface{}, len(c.Settings))
		for k, v := range c.Settings {
			cp.Settings[k] = v
		}
	}
	return &cp
}
