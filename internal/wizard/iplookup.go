package wizard

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"
)

// DefaultIPLookupURL answers {"ip": "..."}.
const DefaultIPLookupURL = "https://api.ipify.org?format=json"

// HTTPIPLookup queries a JSON "what is my ip" service.
type HTTPIPLookup struct {
	URL    string
	Client *http.Client
}

// NewHTTPIPLookup returns a lookup against DefaultIPLookupURL with a short
// timeout.
func NewHTTPIPLookup() *HTTPIPLookup {
	return &HTTPIPLookup{URL: DefaultIPLookupURL, Client: &http.Client{Timeout: 3 * time.Second}}
}

func (l *HTTPIPLookup) PublicIP(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.URL, nil)
	if err != nil {
		return "", err
	}
	resp, err := l.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ip lookup: status %d", resp.StatusCode)
	}
	var out struct {
		IP string `json:"ip"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("ip lookup: decode: %w", err)
	}
	if net.ParseIP(out.IP) == nil {
		return "", fmt.Errorf("ip lookup: invalid address %q", out.IP)
	}
	return out.IP, nil
}
