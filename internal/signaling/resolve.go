package signaling

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Public resolvers raced when the system resolver cannot find the relay.
var publicDNS = []string{
	"1.1.1.1",
	"1.0.0.1",
	"8.8.8.8",
	"8.8.4.4",
	"9.9.9.9",
	"2606:4700:4700::1111",
	"2001:4860:4860::8888",
}

const (
	systemLookupTimeout = time.Second
	publicLookupTimeout = 2 * time.Second
)

// lookupHost resolves host to one address, preferring IPv4. IP literals are
// returned unchanged. The system resolver is tried first; on failure all
// public resolvers are raced and the first answer wins.
func lookupHost(ctx context.Context, host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return host, nil
	}

	sysCtx, cancel := context.WithTimeout(ctx, systemLookupTimeout)
	addr, sysErr := resolveWith(sysCtx, net.DefaultResolver, host)
	cancel()
	if sysErr == nil {
		return addr, nil
	}

	raceCtx, cancel := context.WithTimeout(ctx, publicLookupTimeout)
	defer cancel()

	type answer struct {
		addr string
		err  error
	}
	answers := make(chan answer, len(publicDNS))
	for _, server := range publicDNS {
		go func() {
			addr, err := resolveWith(raceCtx, publicResolver(server), host)
			answers <- answer{addr, err}
		}()
	}

	errs := []error{sysErr}
	for range publicDNS {
		select {
		case a := <-answers:
			if a.err == nil {
				return a.addr, nil
			}
			errs = append(errs, a.err)
		case <-raceCtx.Done():
			return "", fmt.Errorf("resolve %s: %w", host, raceCtx.Err())
		}
	}
	return "", fmt.Errorf("resolve %s: %w", host, errors.Join(errs...))
}

func publicResolver(server string) *net.Resolver {
	return &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, net.JoinHostPort(server, "53"))
		},
	}
}

func resolveWith(ctx context.Context, r *net.Resolver, host string) (string, error) {
	addrs, err := r.LookupHost(ctx, host)
	if err != nil {
		return "", err
	}
	if len(addrs) == 0 {
		return "", fmt.Errorf("no addresses for %s", host)
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && ip.To4() != nil {
			return a, nil
		}
	}
	return addrs[0], nil
}
