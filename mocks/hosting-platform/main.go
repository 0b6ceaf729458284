// Mock hosting platform for local development and demos.
//
// Serves the subset of the platform API the engine calls: site listing,
// per-site domain counts, domain attachment and provisioning status. Added
// domains report PENDING for a configurable number of status reads before
// turning ACTIVE. A failure rate can be dialed in to rehearse retry and
// circuit breaker behavior.
//
//	go run . -addr :9090 -sites vl-pilots-site-1,opus-site-1 -pending 2 -fail-rate 0.1
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

const recordTTL = 600

type site struct {
	ID            string `json:"siteId"`
	DefaultDomain string `json:"defaultDomain"`
	Type          string `json:"type"`
}

type domainStatus struct {
	Domain     string    `json:"domain"`
	Status     string    `json:"status"`
	CertStatus string    `json:"certStatus"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type dnsRecord struct {
	Type string `json:"type"`
	Name string `json:"name"`
	Data string `json:"data"`
	TTL  int    `json:"ttl"`
}

type provision struct {
	remaining int
	status    domainStatus
}

type server struct {
	mu        sync.Mutex
	sites     []site
	counts    map[string]int
	domains   map[string]map[string]*provision
	pending   int
	failRate  float64
	ingressIP string
	log       *slog.Logger
}

func main() {
	addr := flag.String("addr", ":9090", "listen address")
	siteList := flag.String("sites", "vl-pilots-site-1,opus-site-1,character-site-1,specialty-site-1", "comma separated site IDs")
	pending := flag.Int("pending", 2, "PENDING status reads before a domain turns ACTIVE")
	failRate := flag.Float64("fail-rate", 0, "probability of answering 503 to any call")
	ingress := flag.String("ingress", "203.0.113.10", "address handed out in A records")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	s := &server{
		counts:    make(map[string]int),
		domains:   make(map[string]map[string]*provision),
		pending:   *pending,
		failRate:  *failRate,
		ingressIP: *ingress,
		log:       log,
	}
	for _, id := range strings.Split(*siteList, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		s.sites = append(s.sites, site{
			ID:            id,
			DefaultDomain: id + ".sites.example",
			Type:          "shared",
		})
		s.domains[id] = make(map[string]*provision)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/projects/{project}/sites", s.handleListSites)
	mux.HandleFunc("GET /v1/sites/{site}/domains/count", s.handleCount)
	mux.HandleFunc("POST /v1/sites/{site}/domains", s.handleAddDomain)
	mux.HandleFunc("GET /v1/sites/{site}/domains/{domain}", s.handleStatus)

	log.Info("mock hosting platform listening", "addr", *addr, "sites", len(s.sites))
	if err := http.ListenAndServe(*addr, s.guard(mux)); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// guard checks bearer auth and injects synthetic outages before routing.
func (s *server) guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimSpace(strings.TrimPrefix(auth, "Bearer ")) == "" {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "bearer token required")
			return
		}
		if s.failRate > 0 && rand.Float64() < s.failRate {
			s.log.Info("synthetic outage", "method", r.Method, "path", r.URL.Path)
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusServiceUnavailable, "unavailable", "synthetic outage")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *server) handleListSites(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"sites": s.sites})
}

func (s *server) handleCount(w http.ResponseWriter, r *http.Request) {
	siteID := r.PathValue("site")
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.domains[siteID]; !ok {
		writeError(w, http.StatusNotFound, "not_found", "unknown site "+siteID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": s.counts[siteID]})
}

func (s *server) handleAddDomain(w http.ResponseWriter, r *http.Request) {
	siteID := r.PathValue("site")
	var req struct {
		Domain string `json:"domain"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Domain == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "domain is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	siteDomains, ok := s.domains[siteID]
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "unknown site "+siteID)
		return
	}
	if _, exists := siteDomains[req.Domain]; exists {
		writeError(w, http.StatusConflict, "duplicate_domain", fmt.Sprintf("%s already attached to %s", req.Domain, siteID))
		return
	}
	status := domainStatus{
		Domain:     req.Domain,
		Status:     "PENDING",
		CertStatus: "PENDING",
		UpdatedAt:  time.Now().UTC(),
	}
	siteDomains[req.Domain] = &provision{remaining: s.pending, status: status}
	s.counts[siteID]++
	s.log.Info("domain attached", "site", siteID, "domain", req.Domain, "count", s.counts[siteID])

	writeJSON(w, http.StatusOK, map[string]any{
		"status": status,
		"dnsRecords": []dnsRecord{
			{Type: "A", Name: "@", Data: s.ingressIP, TTL: recordTTL},
			{Type: "CNAME", Name: "www", Data: req.Domain, TTL: recordTTL},
		},
	})
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	siteID := r.PathValue("site")
	name := r.PathValue("domain")

	s.mu.Lock()
	defer s.mu.Unlock()
	siteDomains, ok := s.domains[siteID]
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "unknown site "+siteID)
		return
	}
	p, ok := siteDomains[name]
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", fmt.Sprintf("%s not attached to %s", name, siteID))
		return
	}
	if p.remaining > 0 {
		p.remaining--
	} else if p.status.Status != "ACTIVE" {
		p.status.Status = "ACTIVE"
		p.status.CertStatus = "ACTIVE"
		p.status.UpdatedAt = time.Now().UTC()
		s.log.Info("domain active", "site", siteID, "domain", name)
	}
	writeJSON(w, http.StatusOK, p.status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "message": message})
}
