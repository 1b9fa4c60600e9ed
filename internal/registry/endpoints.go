package registry

import (
	"net"
	"net/url"
	"strings"
)

// DefaultSubgraphURL is the indexing service backing the explore listings.
const DefaultSubgraphURL = "https://api.studio.thegraph.com/query/120041/my-uniswap-subgraph/0.0.7"

var subgraphByChainID = map[int64]string{
	11155111: DefaultSubgraphURL,
}

func SubgraphURL(chainID int64) (string, bool) {
	value, ok := subgraphByChainID[chainID]
	return value, ok
}

// IsAllowedSubgraphURL accepts https endpoints, and plain http only on
// loopback hosts for local development.
func IsAllowedSubgraphURL(endpoint string) bool {
	parsed, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return false
	}
	if strings.TrimSpace(parsed.Hostname()) == "" {
		return false
	}
	scheme := strings.ToLower(strings.TrimSpace(parsed.Scheme))
	if isLoopbackHost(parsed.Hostname()) {
		return scheme == "http" || scheme == "https"
	}
	return scheme == "https"
}

// SameEndpoint compares two URLs by scheme, host, effective port and path.
func SameEndpoint(a, b string) bool {
	pa, err := url.Parse(strings.TrimSpace(a))
	if err != nil {
		return false
	}
	pb, err := url.Parse(strings.TrimSpace(b))
	if err != nil {
		return false
	}
	if !strings.EqualFold(pa.Scheme, pb.Scheme) || !strings.EqualFold(pa.Hostname(), pb.Hostname()) {
		return false
	}
	if normalizedURLPort(pa) != normalizedURLPort(pb) {
		return false
	}
	return normalizedURLPath(pa.Path) == normalizedURLPath(pb.Path)
}

func isLoopbackHost(host string) bool {
	h := strings.TrimSpace(strings.ToLower(host))
	if h == "localhost" {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}

func normalizedURLPort(parsed *url.URL) string {
	if parsed == nil {
		return ""
	}
	if port := strings.TrimSpace(parsed.Port()); port != "" {
		return port
	}
	switch strings.ToLower(strings.TrimSpace(parsed.Scheme)) {
	case "http":
		return "80"
	case "https":
		return "443"
	default:
		return ""
	}
}

func normalizedURLPath(path string) string {
	p := strings.TrimSpace(path)
	if p == "" {
		return "/"
	}
	p = strings.TrimSuffix(p, "/")
	if p == "" {
		return "/"
	}
	return p
}
