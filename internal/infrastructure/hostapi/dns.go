package hostapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// LookupHost resolves host to its IP addresses. Any port of a matching
// network grant covers the lookup.
func (b *Backend) LookupHost(ctx context.Context, host string) ([]string, error) {
	if host == "" {
		return nil, errors.New("hostname cannot be empty")
	}
	if err := b.checker.CheckNetwork(host, ""); err != nil {
		slog.WarnContext(ctx, "lookup denied", "hostname", host, "error", err)
		return nil, err
	}

	addrs, err := b.resolver.LookupHost(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("DNS lookup failed: %w", err)
	}
	return addrs, nil
}
