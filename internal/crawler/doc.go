// Package crawler holds the domain model shared by the cycle orchestrator
// and its collaborators: stories, fetch results, reports, typed errors
// and the interfaces each subsystem implements.
package crawler
