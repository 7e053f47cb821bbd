package redis

import "github.com/xraph/jobgraph/job"

// DefaultKeyPrefix namespaces every key the store writes.
const DefaultKeyPrefix = "jobgraph"

// keyspace builds the store's keys under one prefix:
//
//	{p}:graph:{id}          graph JSON
//	{p}:graphs:{state}      sorted set of graph ids, scored by creation time
//	{p}:graph_jobs:{id}     list of a graph's job ids in creation order
//	{p}:job:{id}            job JSON
//	{p}:artifact:{id}       artifact JSON
type keyspace string

func (k keyspace) graph(id string) string { return string(k) + ":graph:" + id }

func (k keyspace) graphsIn(state job.GraphState) string {
	return string(k) + ":graphs:" + string(state)
}

func (k keyspace) graphJobs(graphID string) string { return string(k) + ":graph_jobs:" + graphID }

func (k keyspace) job(id string) string { return string(k) + ":job:" + id }

func (k keyspace) artifact(id string) string { return string(k) + ":artifact:" + id }
