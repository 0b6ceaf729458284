// Mock domain registrar for local development and demos.
//
// Serves the registrar endpoints the engine relays DNS through:
// availability checks, record listing and record upserts. Domains named
// with -taken report as already registered.
//
//	go run . -addr :9091 -taken busy.example.com
package main

import (
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
)

type dnsRecord struct {
	Type string `json:"type"`
	Name string `json:"name"`
	Data string `json:"data"`
	TTL  int    `json:"ttl"`
}

type server struct {
	mu         sync.Mutex
	records    map[string][]dnsRecord
	taken      map[string]bool
	priceMicro int64
	log        *slog.Logger
}

func main() {
	addr := flag.String("addr", ":9091", "listen address")
	taken := flag.String("taken", "", "comma separated domains reported as registered")
	price := flag.Int64("price", 11990000, "micro-units quoted for available domains")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	s := &server{
		records:    make(map[string][]dnsRecord),
		taken:      make(map[string]bool),
		priceMicro: *price,
		log:        log,
	}
	for _, name := range strings.Split(*taken, ",") {
		if name = strings.TrimSpace(name); name != "" {
			s.taken[strings.ToLower(name)] = true
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/domains/available", s.handleAvailability)
	mux.HandleFunc("GET /v1/domains/{domain}/records", s.handleGetRecords)
	mux.HandleFunc("PATCH /v1/domains/{domain}/records", s.handleUpsertRecords)

	log.Info("mock registrar listening", "addr", *addr)
	if err := http.ListenAndServe(*addr, s.guard(mux)); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// guard enforces the sso-key authorization scheme before routing.
func (s *server) guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "sso-key ") {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "sso-key credentials required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	name := strings.ToLower(r.URL.Query().Get("domain"))
	if name == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "domain query parameter is required")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.taken[name] {
		writeJSON(w, http.StatusOK, map[string]any{"domain": name, "available": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"domain":    name,
		"available": true,
		"price":     s.priceMicro,
		"currency":  "USD",
	})
}

func (s *server) handleGetRecords(w http.ResponseWriter, r *http.Request) {
	name := strings.ToLower(r.PathValue("domain"))
	s.mu.Lock()
	defer s.mu.Unlock()
	records, ok := s.records[name]
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "no records for "+name)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *server) handleUpsertRecords(w http.ResponseWriter, r *http.Request) {
	name := strings.ToLower(r.PathValue("domain"))
	var incoming []dnsRecord
	if err := json.NewDecoder(r.Body).Decode(&incoming); err != nil || len(incoming) == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "record list is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	existing := s.records[name]
	for _, rec := range incoming {
		replaced := false
		for i, have := range existing {
			if have.Type == rec.Type && have.Name == rec.Name {
				existing[i] = rec
				replaced = true
				break
			}
		}
		if !replaced {
			existing = append(existing, rec)
		}
	}
	s.records[name] = existing
	s.log.Info("records upserted", "domain", name, "incoming", len(incoming), "total", len(existing))
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "message": message})
}
