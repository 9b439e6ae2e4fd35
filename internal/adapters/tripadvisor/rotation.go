package tripadvisor

import (
	"errors"
	"net/http"
	"net/url"
	"sync/atomic"
)

// defaultUserAgents is the fallback pool rotated across requests when the
// operator supplies none.
var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/110.0.0.0 Safari/537.36",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 15_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/15.0 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/117.0",
}

// ProxyFunc selects the outbound proxy for a request; it plugs into
// http.Transport.Proxy.
type ProxyFunc func(*http.Request) (*url.URL, error)

type roundRobinSwitcher struct {
	proxyURLs []*url.URL
	index     uint32
}

func (r *roundRobinSwitcher) next(*http.Request) (*url.URL, error) {
	index := atomic.AddUint32(&r.index, 1) - 1
	return r.proxyURLs[index%uint32(len(r.proxyURLs))], nil
}

// RoundRobinProxy builds a ProxyFunc cycling through the given endpoints
// (scheme://[user:pass@]host:port).
func RoundRobinProxy(proxyURLs ...string) (ProxyFunc, error) {
	if len(proxyURLs) < 1 {
		return nil, errors.New("proxy URL list is empty")
	}
	urls := make([]*url.URL, len(proxyURLs))
	for i, u := range proxyURLs {
		parsed, err := url.Parse(u)
		if err != nil {
			return nil, err
		}
		urls[i] = parsed
	}
	sw := &roundRobinSwitcher{proxyURLs: urls}
	return sw.next, nil
}

// headerRotator varies the identifying headers across consecutive requests.
type headerRotator struct {
	agents []string
	index  uint32
}

func newHeaderRotator(agents []string) *headerRotator {
	if len(agents) == 0 {
		agents = defaultUserAgents
	}
	return &headerRotator{agents: agents}
}

func (h *headerRotator) userAgent() string {
	index := atomic.AddUint32(&h.index, 1) - 1
	return h.agents[index%uint32(len(h.agents))]
}

func (h *headerRotator) apply(req *http.Request) {
	req.Header.Set("User-Agent", h.userAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Cache-Control", "max-age=0")
}
