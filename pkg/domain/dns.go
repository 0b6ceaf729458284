package domain

// DNSRecord is one record the registrar serves for a domain. The hosting
// platform dictates record contents when a domain is attached; the engine
// only relays them.
type DNSRecord struct {
	Type string `json:"type"`
	Name string `json:"name"`
	Data string `json:"data"`
	TTL  int    `json:"ttl"`
}

// DefaultRecordTTL is applied when a relayed record carries no TTL.
const DefaultRecordTTL = 600
