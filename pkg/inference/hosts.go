/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: hosts.go
Description: Host dominance resolution. Counts observation hostnames in first-encounter
order and selects the host with the strictly greatest count.
*/

package inference

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/kleascm/akaylee-mirror/pkg/interfaces"
)

// HostCount is the tally for one hostname
type HostCount struct {
	Host  string `json:"host"`
	Count int    `json:"count"`
}

// HostCounter tallies hostnames as they stream in.
// The leader only changes when a host strictly exceeds the current maximum, so on a
// tie the host that reached the maximum first keeps priority.
type HostCounter struct {
	order    []string
	counts   map[string]int
	dominant string
	max      int
}

// NewHostCounter creates an empty counter
func NewHostCounter() *HostCounter {
	return &HostCounter{counts: make(map[string]int)}
}

// Add counts the hostname of rawURL
func (h *HostCounter) Add(rawURL string) error {
	host, err := Hostname(rawURL)
	if err != nil {
		return err
	}
	if _, ok := h.counts[host]; !ok {
		h.order = append(h.order, host)
	}
	h.counts[host]++
	if h.counts[host] > h.max {
		h.max = h.counts[host]
		h.dominant = host
	}
	return nil
}

// Dominant returns the current leader, or false if nothing valid was counted
func (h *HostCounter) Dominant() (string, bool) {
	return h.dominant, h.dominant != ""
}

// Counts returns the tallies in first-encounter order
func (h *HostCounter) Counts() []HostCount {
	out := make([]HostCount, 0, len(h.order))
	for _, host := range h.order {
		out = append(out, HostCount{Host: host, Count: h.counts[host]})
	}
	return out
}

// ResolveDominantHost returns the most observed hostname. Invalid URLs are returned as
// item-level errors and excluded from the count.
func ResolveDominantHost(observations []interfaces.Observation) (string, []error, error) {
	counter := NewHostCounter()
	var skipped []error
	for _, obs := range observations {
		if err := counter.Add(obs.URL); err != nil {
			skipped = append(skipped, err)
		}
	}
	host, ok := counter.Dominant()
	if !ok {
		return "", skipped, fmt.Errorf("%w: no valid hostname among %d observations",
			interfaces.ErrNoTargetDomain, len(observations))
	}
	return host, skipped, nil
}

// Hostname extracts the lower-cased hostname of an absolute URL
func Hostname(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", &interfaces.URLError{URL: rawURL, Err: err}
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", &interfaces.URLError{URL: rawURL, Err: fmt.Errorf("missing host")}
	}
	return host, nil
}
