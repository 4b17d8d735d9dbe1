package senderfilter

import (
	"strings"

	"go.uber.org/zap"
)

// Checker decides whether mail from a sender should be left out of the
// model batch based on its domain
type Checker struct {
	domains []string
	logger  *zap.Logger
}

// NewChecker creates a new sender checker
func NewChecker(domains []string, logger *zap.Logger) *Checker {
	normalizedDomains := make([]string, 0, len(domains))
	for _, domain := range domains {
		if d := strings.ToLower(strings.TrimSpace(domain)); d != "" {
			normalizedDomains = append(normalizedDomains, d)
		}
	}

	if len(normalizedDomains) > 0 && logger != nil {
		logger.Info("Initialized sender filter", zap.Strings("domains", normalizedDomains))
	}

	return &Checker{
		domains: normalizedDomains,
		logger:  logger,
	}
}

// IsIgnored reports whether the address belongs to an ignored domain or one
// of its subdomains
func (c *Checker) IsIgnored(address string) bool {
	if c == nil || len(c.domains) == 0 {
		return false
	}

	at := strings.LastIndex(address, "@")
	if at < 0 || at == len(address)-1 {
		return false
	}
	domain := strings.ToLower(strings.TrimRight(address[at+1:], ">"))

	for _, ignored := range c.domains {
		if domain == ignored || strings.HasSuffix(domain, "."+ignored) {
			if c.logger != nil {
				c.logger.Debug("Sender domain is ignored",
					zap.String("domain", domain),
					zap.String("email", address))
			}
			return true
		}
	}

	return false
}
