// Package simple implements a threshold host policy: hosts that keep
// refusing requests are skipped for the rest of the process.
package simple

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// ErrHostBlocked is returned for hosts that have been blocked.
var ErrHostBlocked = errors.New("host blocked")

const defaultForbiddenThreshold = 3

// Policy counts refusals per host and blocks a host once the threshold is
// reached. Hosts listed in Config.Blocklist are blocked from the start.
type Policy struct {
	mu        sync.Mutex
	threshold int
	counts    map[string]int
	blocked   map[string]struct{}
}

// Config controls a Policy.
type Config struct {
	// ForbiddenThreshold is the number of 403/429 responses after which a
	// host is blocked. Non-positive values use the default of 3.
	ForbiddenThreshold int
	Blocklist          []string
}

// New creates a Policy.
func New(cfg Config) *Policy {
	threshold := cfg.ForbiddenThreshold
	if threshold <= 0 {
		threshold = defaultForbiddenThreshold
	}
	p := &Policy{
		threshold: threshold,
		counts:    make(map[string]int),
		blocked:   make(map[string]struct{}),
	}
	for _, host := range cfg.Blocklist {
		if h := normalizeHost(host); h != "" {
			p.blocked[h] = struct{}{}
		}
	}
	return p
}

// AllowFetch reports ErrHostBlocked when rawURL points at a blocked host.
// A nil Policy allows everything.
func (p *Policy) AllowFetch(rawURL string) error {
	if p == nil {
		return nil
	}
	host := hostOf(rawURL)
	if host == "" {
		return nil
	}
	p.mu.Lock()
	_, blocked := p.blocked[host]
	p.mu.Unlock()
	if blocked {
		return fmt.Errorf("%s: %w", host, ErrHostBlocked)
	}
	return nil
}

// Observe records the response status for rawURL. It returns true when the
// observation caused the host to become blocked.
func (p *Policy) Observe(rawURL string, status int) bool {
	if p == nil || (status != http.StatusForbidden && status != http.StatusTooManyRequests) {
		return false
	}
	host := hostOf(rawURL)
	if host == "" {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.blocked[host]; ok {
		return false
	}
	p.counts[host]++
	if p.counts[host] >= p.threshold {
		p.blocked[host] = struct{}{}
		return true
	}
	return false
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return normalizeHost(u.Hostname())
}

func normalizeHost(host string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(host)), "www.")
}
