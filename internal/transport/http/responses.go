package httptransport

import (
	"time"

	"hangar/internal/allocator"
	"hangar/internal/poller"
	"hangar/internal/registry"
	"hangar/internal/scheduler"
)

// AllocationResponse is the body for POST /v1/allocations.
type AllocationResponse struct {
	Domain       string `json:"domain"`
	Category     string `json:"category"`
	SiteID       string `json:"siteId"`
	Available    int    `json:"available"`
	FallbackUsed bool   `json:"fallbackUsed,omitempty"`
	ProjectScan  bool   `json:"projectScan,omitempty"`
}

// FromAllocation converts an allocation verdict to its HTTP shape.
func FromAllocation(a allocator.Allocation) AllocationResponse {
	return AllocationResponse{
		Domain:       a.Domain.String(),
		Category:     string(a.Category),
		SiteID:       string(a.SiteID),
		Available:    a.Available,
		FallbackUsed: a.FallbackUsed,
		ProjectScan:  a.ProjectScan,
	}
}

// BatchAcceptedResponse is the 202 body for an asynchronous batch.
type BatchAcceptedResponse struct {
	ID    string `json:"id"`
	State string `json:"state"`
}

// RunsResponse wraps GET /v1/batches listings.
type RunsResponse struct {
	Runs []scheduler.BatchRun `json:"runs"`
}

// SiteCountResponse is one site row in the registry snapshot.
type SiteCountResponse struct {
	SiteID        string `json:"siteId"`
	DefaultDomain string `json:"defaultDomain,omitempty"`
	Type          string `json:"type,omitempty"`
	Count         int    `json:"count"`
	Known         bool   `json:"known"`
}

// CountsResponse is the body for GET /v1/registry/counts.
type CountsResponse struct {
	Sites      []SiteCountResponse `json:"sites"`
	FetchedAt  time.Time           `json:"fetchedAt"`
	AgeSeconds int64               `json:"ageSeconds"`
}

// FromSnapshot converts a registry snapshot, stamping its age at now.
func FromSnapshot(snap registry.Snapshot, now time.Time) CountsResponse {
	sites := make([]SiteCountResponse, 0, len(snap.Sites))
	for _, site := range snap.Sites {
		count, known := snap.Count(site.ID)
		sites = append(sites, SiteCountResponse{
			SiteID:        string(site.ID),
			DefaultDomain: site.DefaultDomain,
			Type:          site.Type,
			Count:         count,
			Known:         known,
		})
	}
	return CountsResponse{
		Sites:      sites,
		FetchedAt:  snap.FetchedAt,
		AgeSeconds: int64(now.Sub(snap.FetchedAt).Seconds()),
	}
}

// PollResponse is the body for POST /v1/domains/{domain}/poll.
type PollResponse struct {
	Domain      string `json:"domain"`
	SiteID      string `json:"siteId"`
	State       string `json:"state"`
	Polls       int    `json:"polls"`
	FailedPolls int    `json:"failedPolls,omitempty"`
	ElapsedMs   int64  `json:"elapsedMs"`
	Status      string `json:"status,omitempty"`
	CertStatus  string `json:"certStatus,omitempty"`
}

// FromOutcome converts a poll outcome to its HTTP shape.
func FromOutcome(siteID, name string, o poller.Outcome) PollResponse {
	return PollResponse{
		Domain:      name,
		SiteID:      siteID,
		State:       string(o.State),
		Polls:       o.Polls,
		FailedPolls: o.FailedPolls,
		ElapsedMs:   o.Elapsed.Milliseconds(),
		Status:      o.LastStatus.Status,
		CertStatus:  o.LastStatus.CertStatus,
	}
}
