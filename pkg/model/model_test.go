package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	cfg := JobConfig{Name: "nightly", RunTimePlan: []string{"01:00", "13:00"}}
	data, err := Marshal(&cfg)
	require.NoError(t, err)

	var out JobConfig
	require.NoError(t, Unmarshal(data, &out))
	assert.Equal(t, cfg.Name, out.Name)
	assert.Equal(t, cfg.RunTimePlan, out.RunTimePlan)
}

func TestModifyIndexExcludedFromJSON(t *testing.T) {
	cfg := JobConfig{Name: "nightly", ModifyIndex: 42}
	data, err := Marshal(&cfg)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "42")
}

func TestJobConfigCloneIsIndependent(t *testing.T) {
	cfg := &JobConfig{Name: "nightly", RunTimePlan: []string{"01:00"}, Settings: map[string]interface{}{"k": "v"}}
	clone := cfg.Clone()
	clone.RunTimePlan[0] = "02:00"
	clone.Settings["k"] = "changed"

	assert.Equal(t, "01:00", cfg.RunTimePlan[0])
	assert.Equal(t, "v", cfg.Settings["k"])
}

func TestJobRecordIsTerminal(t *testing.T) {
	r := JobRecord{Status: StatusTaskMerged}
	assert.True(t, r.IsTerminal())

	r.Status = StatusTaskSyncing
	assert.False(t, r.IsTerminal())
}

func TestJobRecordPlanReady(t *testing.T) {
	assert.False(t, (&JobRecord{Status: StatusPending}).PlanReady())
	assert.False(t, (&JobRecord{Status: StatusPlanMaking}).PlanReady())
	assert.True(t, (&JobRecord{Status: StatusPlanMade}).PlanReady())
}

func TestMemberIsOnline(t *testing.T) {
	m := Member{Status: StatusOnline}
	assert.True(t, m.IsOnline())
	m.Status = StatusOffline
	assert.False(t, m.IsOnline())
}

func TestMembersListCloneDeepCopiesOfflineTime(t *testing.T) {
	now := Member{}.OnlineTime
	offline := now
	list := MembersList{Members: []Member{{ID: "a", OfflineTime: &offline}}}

	clone := list.Clone()
	*clone.Members[0].OfflineTime = offline.Add(1)

	assert.NotEqual(t, *clone.Members[0].OfflineTime, *list.Members[0].OfflineTime)
}

func TestActiveTaskKey(t *testing.T) {
	a := ActiveTask{JobRecordID: "r1", TaskID: "t1"}
	b := ActiveTask{JobRecordID: "r1", TaskID: "t2"}
	assert.NotEqual(t, a.Key(), b.Key())
}
