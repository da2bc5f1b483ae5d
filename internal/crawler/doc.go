// Package crawler defines the types and collaborator contracts shared by the
// frontier, the index writer and the query path: work items moving through the
// queue, postings written to the index, and the fetch/queue/store interfaces
// each concrete backend implements.
package crawler
