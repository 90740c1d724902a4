// Package kvkeys centralizes the KV layout from spec §6 so every reconciler
// builds the same keys the same way.
package kvkeys

// Members is the key storing the cluster's Members list.
func Members(cluster string) string {
	return "Swift/" + cluster + "/Members"
}

// JobsPrefix is the key prefix under which every job's config and records
// live.
func JobsPrefix(cluster string) string {
	return "Swift/" + cluster + "/Jobs/"
}

// JobPrefix is the key prefix for one job by name, used for DeleteTree.
func JobPrefix(cluster, jobName string) string {
	return "Swift/" + cluster + "/Jobs/" + jobName
}

// JobConfig is the key storing one job's config.
func JobConfig(cluster, jobName string) string {
	return "Swift/" + cluster + "/Jobs/" + jobName + "/Config"
}

// JobRecordsPrefix is the key prefix for one job's records.
func JobRecordsPrefix(cluster, jobName string) string {
	return "Swift/" + cluster + "/Jobs/" + jobName + "/Records/"
}

// JobRecord is the key storing one specific job record.
func JobRecord(cluster, jobName, recordID string) string {
	return "Swift/" + cluster + "/Jobs/" + jobName + "/Records/" + recordID
}
