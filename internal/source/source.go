// Package source obtains contract source code: from a block explorer, from
// local files, or from the post-image of a patch.
package source

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/sprite-ai/solaudit/internal/model"
)

var (
	// ErrUnverified means the contract exists but has no published source.
	ErrUnverified = errors.New("source: contract source not verified")
	// ErrInvalidAddress means the address is not a 20-byte hex string.
	ErrInvalidAddress = errors.New("source: invalid contract address")
	// ErrUnknownNetwork means no explorer is configured for the network.
	ErrUnknownNetwork = errors.New("source: unknown network")
)

// Contract is fetched source code plus what is known about it.
type Contract struct {
	Code     string
	Metadata model.ContractMetadata
}

// Provider fetches verified source for an address on a network.
type Provider interface {
	Fetch(ctx context.Context, address, network string) (Contract, error)
}

var addressRe = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// ValidAddress reports whether s looks like a contract address.
func ValidAddress(s string) bool {
	return addressRe.MatchString(strings.TrimSpace(s))
}
