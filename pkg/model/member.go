// Package model holds the entities stored under the cluster's KV namespace:
// Member, JobConfig, JobRecord and JobTask (spec §3).
package model

import "time"

// Role identifies whether a Member is authorized to write job configs and
// records (Manager) or only reads them and executes assigned tasks (Worker).
// Serialized on the wire as its symbolic name (spec §6).
type Role string

const (
	RoleManager Role = "Manager"
	RoleWorker  Role = "Worker"
)

// Status is a Member's last-observed liveness, driven by the health probe.
type Status int

const (
	StatusOffline Status = 0
	StatusOnline  Status = 1
)

// Member is one participant process in the cluster, identified by a stable
// network id (recommended: its local IPv4 address).
//
// Role-specific behavior is never attached to Member itself — it lives on
// Cluster, keyed by Role — so Member stays a plain tagged record rather than
// an inheritance hierarchy.
type Member struct {
	ID                string     `json:"id"`
	Role              Role       `json:"role"`
	Status            Status     `json:"status"`
	FirstRegisterTime time.Time  `json:"firstRegisterTime"`
	OnlineTime        time.Time  `json:"onlineTime"`
	OfflineTime       *time.Time `json:"offlineTime,omitempty"`
}

// IsOnline reports the member's last-observed liveness.
func (m *Member) IsOnline() bool { return m.Status == StatusOnline }

// MembersList is the value stored at Swift/<cluster>/Members. ModifyIndex is
// not part of the JSON payload — it travels alongside the value as returned
// by the KV adapter's Get/CAS calls.
type MembersList struct {
	Members []Member `json:"members"`
}

// Clone returns a deep copy: changing the copy's members or offline times
// does not change the original.
func (l MembersList) Clone() MembersList {
	out := make([]Member, len(l.Members))
	copy(out, l.Members)
	for i, m := range l.Members {
		if m.OfflineTime != nil {
			t := *m.OfflineTime
			out[i].OfflineTime = &t
		}
	}
	return MembersList{Members: out}
}
