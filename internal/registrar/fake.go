package registrar

import (
	"context"
	"fmt"
	"sync"
	"time"

	"hangar/pkg/domain"
	"hangar/pkg/platform/sentinel"
)

// Fake is an in-memory registrar for tests, the dry-run CLI and the e2e
// harness. It stores records keyed by domain and answers availability from
// a scripted set of taken names.
type Fake struct {
	mu sync.Mutex

	// Latency is applied to every call when non-zero.
	Latency time.Duration
	// PriceMicro is quoted for every available domain.
	PriceMicro int64

	records map[string][]domain.DNSRecord
	taken   map[string]bool
	errs    map[string]error

	upserts []UpsertCall
}

// UpsertCall records one UpsertRecords invocation for assertions on what
// the engine relayed.
type UpsertCall struct {
	Domain  domain.DomainName
	Records []domain.DNSRecord
}

// NewFake builds an empty fake registrar.
func NewFake() *Fake {
	return &Fake{
		PriceMicro: 11990000,
		records:    make(map[string][]domain.DNSRecord),
		taken:      make(map[string]bool),
		errs:       make(map[string]error),
	}
}

// MarkTaken makes CheckAvailability report the domain as registered.
func (f *Fake) MarkTaken(name domain.DomainName) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.taken[name.String()] = true
}

// SeedRecords installs an existing record set for a domain.
func (f *Fake) SeedRecords(name domain.DomainName, records []domain.DNSRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[name.String()] = append([]domain.DNSRecord(nil), records...)
}

// Fail makes every call for one domain return err until cleared with nil.
func (f *Fake) Fail(name domain.DomainName, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.errs, name.String())
		return
	}
	f.errs[name.String()] = err
}

// Upserts returns the relay calls seen so far.
func (f *Fake) Upserts() []UpsertCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]UpsertCall, len(f.upserts))
	copy(out, f.upserts)
	return out
}

func (f *Fake) CheckAvailability(ctx context.Context, name domain.DomainName) (Availability, error) {
	f.sleep(ctx)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[name.String()]; err != nil {
		return Availability{}, err
	}
	if f.taken[name.String()] {
		return Availability{Domain: name.String(), Available: false}, nil
	}
	return Availability{
		Domain:     name.String(),
		Available:  true,
		PriceMicro: f.PriceMicro,
		Currency:   "USD",
	}, nil
}

func (f *Fake) Records(ctx context.Context, name domain.DomainName) ([]domain.DNSRecord, error) {
	f.sleep(ctx)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[name.String()]; err != nil {
		return nil, err
	}
	records, ok := f.records[name.String()]
	if !ok {
		return nil, fmt.Errorf("domain %s: %w", name, sentinel.ErrNotFound)
	}
	out := make([]domain.DNSRecord, len(records))
	copy(out, records)
	return out, nil
}

func (f *Fake) UpsertRecords(ctx context.Context, name domain.DomainName, records []domain.DNSRecord) error {
	f.sleep(ctx)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[name.String()]; err != nil {
		return err
	}
	merged := mergeRecords(f.records[name.String()], records)
	f.records[name.String()] = merged
	f.upserts = append(f.upserts, UpsertCall{
		Domain:  name,
		Records: append([]domain.DNSRecord(nil), records...),
	})
	return nil
}

// mergeRecords replaces records matching on type+name and appends the rest,
// the same merge the real registrar applies to a PATCH.
func mergeRecords(existing, incoming []domain.DNSRecord) []domain.DNSRecord {
	out := make([]domain.DNSRecord, 0, len(existing)+len(incoming))
	replaced := func(r domain.DNSRecord) bool {
		for _, in := range incoming {
			if in.Type == r.Type && in.Name == r.Name {
				return true
			}
		}
		return false
	}
	for _, r := range existing {
		if !replaced(r) {
			out = append(out, r)
		}
	}
	return append(out, incoming...)
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
