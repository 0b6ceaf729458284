package hosting

import (
	"context"
	"fmt"
	"sync"
	"time"

	"hangar/pkg/domain"
	"hangar/pkg/platform/sentinel"
)

// DefaultIngressIP is the address the fake platform hands out in A records.
const DefaultIngressIP = "203.0.113.10"

// FakeSite seeds one site in the fake platform.
type FakeSite struct {
	ID       domain.SiteID
	Occupied int
}

type fakeProvision struct {
	remaining int
	fail      bool
	status    DomainStatus
}

// Fake is an in-memory hosting platform used by tests, the dry-run CLI and
// the e2e harness. Domains added to it progress through a configurable
// number of PENDING polls before turning ACTIVE, or FAILED when scripted.
type Fake struct {
	mu sync.Mutex

	// Latency is applied to every call when non-zero.
	Latency time.Duration
	// PendingPolls is how many status reads report PENDING before the
	// domain and its certificate turn ACTIVE. Zero means active on the
	// first read after submission.
	PendingPolls int
	// IngressIP is the address returned in generated A records.
	IngressIP string

	sites      []Site
	counts     map[domain.SiteID]int
	provisions map[domain.SiteID]map[string]*fakeProvision

	countErrs map[domain.SiteID]error
	addErrs   map[string]error
	failures  map[string]bool
	listErr   error
}

// NewFake seeds a fake platform with the given sites and occupancy counts.
func NewFake(sites ...FakeSite) *Fake {
	f := &Fake{
		PendingPolls: 2,
		IngressIP:    DefaultIngressIP,
		counts:       make(map[domain.SiteID]int),
		provisions:   make(map[domain.SiteID]map[string]*fakeProvision),
		countErrs:    make(map[domain.SiteID]error),
		addErrs:      make(map[string]error),
		failures:     make(map[string]bool),
	}
	for _, s := range sites {
		f.sites = append(f.sites, Site{
			ID:            s.ID,
			DefaultDomain: fmt.Sprintf("%s.pages.dev", s.ID),
			Type:          "pages",
		})
		f.counts[s.ID] = s.Occupied
		f.provisions[s.ID] = make(map[string]*fakeProvision)
	}
	return f
}

// FailCount makes DomainCount for one site return err until cleared with nil.
func (f *Fake) FailCount(siteID domain.SiteID, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.countErrs, siteID)
		return
	}
	f.countErrs[siteID] = err
}

// FailAdd makes AddDomain for one domain return err until cleared with nil.
func (f *Fake) FailAdd(name domain.DomainName, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.addErrs, name.String())
		return
	}
	f.addErrs[name.String()] = err
}

// FailList makes ListSites return err until cleared with nil.
func (f *Fake) FailList(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listErr = err
}

// FailProvisioning scripts a domain to end FAILED instead of ACTIVE.
func (f *Fake) FailProvisioning(name domain.DomainName) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[name.String()] = true
}

// SetCount overrides the occupancy reported for a site.
func (f *Fake) SetCount(siteID domain.SiteID, count int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[siteID] = count
}

func (f *Fake) ListSites(ctx context.Context) ([]Site, error) {
	f.sleep(ctx)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]Site, len(f.sites))
	copy(out, f.sites)
	return out, nil
}

func (f *Fake) DomainCount(ctx context.Context, siteID domain.SiteID) (int, error) {
	f.sleep(ctx)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.countErrs[siteID]; err != nil {
		return 0, err
	}
	count, ok := f.counts[siteID]
	if !ok {
		return 0, fmt.Errorf("site %s: %w", siteID, sentinel.ErrNotFound)
	}
	return count, nil
}

func (f *Fake) AddDomain(ctx context.Context, siteID domain.SiteID, name domain.DomainName) (AddDomainResult, error) {
	f.sleep(ctx)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.addErrs[name.String()]; err != nil {
		return AddDomainResult{}, err
	}
	site, ok := f.provisions[siteID]
	if !ok {
		return AddDomainResult{}, fmt.Errorf("site %s: %w", siteID, sentinel.ErrNotFound)
	}
	if _, exists := site[name.String()]; exists {
		return AddDomainResult{}, fmt.Errorf("domain %s on site %s: %w", name, siteID, sentinel.ErrConflict)
	}
	status := DomainStatus{
		Domain:     name.String(),
		Status:     StatusPending,
		CertStatus: StatusPending,
		UpdatedAt:  time.Now().UTC(),
	}
	site[name.String()] = &fakeProvision{
		remaining: f.PendingPolls,
		fail:      f.failures[name.String()],
		status:    status,
	}
	f.counts[siteID]++
	return AddDomainResult{
		Status: status,
		Records: []domain.DNSRecord{
			{Type: "A", Name: "@", Data: f.IngressIP, TTL: domain.DefaultRecordTTL},
			{Type: "CNAME", Name: "www", Data: name.String(), TTL: domain.DefaultRecordTTL},
		},
	}, nil
}

func (f *Fake) DomainStatus(ctx context.Context, siteID domain.SiteID, name domain.DomainName) (DomainStatus, error) {
	f.sleep(ctx)
	f.mu.Lock()
	defer f.mu.Unlock()
	site, ok := f.provisions[siteID]
	if !ok {
		return DomainStatus{}, fmt.Errorf("site %s: %w", siteID, sentinel.ErrNotFound)
	}
	p, ok := site[name.String()]
	if !ok {
		return DomainStatus{}, fmt.Errorf("domain %s on site %s: %w", name, siteID, sentinel.ErrNotFound)
	}
	if p.remaining > 0 {
		p.remaining--
		return p.status, nil
	}
	if p.fail {
		p.status.Status = StatusFailed
		p.status.CertStatus = StatusFailed
	} else {
		p.status.Status = StatusActive
		p.status.CertStatus = StatusActive
	}
	p.status.UpdatedAt = time.Now().UTC()
	return p.status, nil
}

func (f *Fake) sleep(ctx context.Context) {
	if f.Latency <= 0 {
		return
	}
	select {
	case <-time.After(f.Latency):
	case <-ctx.Done():
	}
}
