package metrics

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// ErrDomain is the label used when domain extraction fails.
const ErrDomain = "error"

// EndpointDomain returns the metric label for a node address.
// Extraction failures collapse into ErrDomain so label cardinality stays bounded.
func EndpointDomain(rawURL string) string {
	domain, err := ExtractDomainOrHost(rawURL)
	if err != nil {
		return ErrDomain
	}
	return domain
}

// ExtractDomainOrHost extracts the effective TLD+1 from a URL.
// IP addresses, localhost and internal hosts are returned as-is.
func ExtractDomainOrHost(rawURL string) (string, error) {
	if rawURL == "" {
		return "", fmt.Errorf("empty URL")
	}

	// Without a scheme url.Parse treats the input as a path.
	urlToParse := rawURL
	if !strings.Contains(rawURL, "://") {
		urlToParse = "https://" + rawURL
	}

	parsedURL, err := url.Parse(urlToParse)
	if err != nil {
		return "", fmt.Errorf("malformed URL: %w", err)
	}

	host := parsedURL.Hostname()
	if host == "" {
		return "", fmt.Errorf("empty host in URL: %q", rawURL)
	}

	if ip := net.ParseIP(host); ip != nil {
		return host, nil
	}
	if isLocalhost(host) {
		return host, nil
	}
	if isPrivateOrInternalDomain(host) {
		return host, nil
	}

	etld, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err == nil {
		return etld, nil
	}

	return fallbackDomainExtraction(host)
}

// fallbackDomainExtraction keeps the last two labels of hosts publicsuffix rejects.
func fallbackDomainExtraction(host string) (string, error) {
	parts := strings.Split(host, ".")
	if len(parts) < 2 {
		return host, nil
	}
	return strings.Join(parts[len(parts)-2:], "."), nil
}

// isLocalhost checks if the host is a localhost variant
func isLocalhost(host string) bool {
	lowercase := strings.ToLower(host)
	return lowercase == "localhost" ||
		lowercase == "localhost.localdomain" ||
		strings.HasPrefix(lowercase, "localhost.")
}

// isPrivateOrInternalDomain checks for private/internal domain patterns
func isPrivateOrInternalDomain(host string) bool {
	lowercase := strings.ToLower(host)

	internalTLDs := []string{".local", ".internal", ".corp", ".home", ".lan"}
	for _, tld := range internalTLDs {
		if strings.HasSuffix(lowercase, tld) {
			return true
		}
	}

	return !strings.Contains(host, ".")
}
