package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sprite-ai/solaudit/internal/logging"
	"github.com/sprite-ai/solaudit/internal/model"
	"github.com/sprite-ai/solaudit/internal/retry"
)

// DefaultNetworks maps network names to Etherscan-compatible API endpoints.
var DefaultNetworks = map[string]string{
	"mainnet":  "https://api.etherscan.io/api",
	"sepolia":  "https://api-sepolia.etherscan.io/api",
	"holesky":  "https://api-holesky.etherscan.io/api",
	"polygon":  "https://api.polygonscan.com/api",
	"arbitrum": "https://api.arbiscan.io/api",
	"optimism": "https://api-optimistic.etherscan.io/api",
	"base":     "https://api.basescan.org/api",
	"bsc":      "https://api.bscscan.com/api",
}

var networkAliases = map[string]string{
	"":         "mainnet",
	"ethereum": "mainnet",
	"eth":      "mainnet",
	"matic":    "polygon",
	"arb":      "arbitrum",
	"op":       "optimism",
	"bnb":      "bsc",
}

// NormalizeNetwork lowercases n and resolves common aliases.
func NormalizeNetwork(n string) string {
	n = strings.ToLower(strings.TrimSpace(n))
	if alias, ok := networkAliases[n]; ok {
		return alias
	}
	return n
}

// Explorer fetches verified source through the getsourcecode action of an
// Etherscan-compatible API.
type Explorer struct {
	APIKey string
	// BaseURL, when set, is used for every network.
	BaseURL  string
	Networks map[string]string
	Client   *http.Client
	Attempts int
	Backoff  time.Duration
	Log      *zap.SugaredLogger
}

// NewExplorer returns an Explorer over DefaultNetworks.
func NewExplorer(apiKey, baseURL string, log *zap.SugaredLogger) *Explorer {
	return &Explorer{
		APIKey:   apiKey,
		BaseURL:  baseURL,
		Networks: DefaultNetworks,
		Client:   &http.Client{Timeout: 30 * time.Second},
		Attempts: 3,
		Backoff:  time.Second,
		Log:      log,
	}
}

// StatusError is a non-2xx explorer response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("explorer http %d: %s", e.Code, e.Body)
}

// APIError is an explorer response with status "0".
type APIError struct {
	Message string
	Result  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("explorer: %s: %s", e.Message, e.Result)
}

// RateLimited reports whether the explorer refused the call for quota.
func (e *APIError) RateLimited() bool {
	return strings.Contains(strings.ToLower(e.Result), "rate limit")
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type sourceEntry struct {
	SourceCode      string `json:"SourceCode"`
	ContractName    string `json:"ContractName"`
	CompilerVersion string `json:"CompilerVersion"`
}

func (e *Explorer) endpoint(network string) (string, error) {
	if e.BaseURL != "" {
		return e.BaseURL, nil
	}
	networks := e.Networks
	if networks == nil {
		networks = DefaultNetworks
	}
	u, ok := networks[network]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownNetwork, network)
	}
	return u, nil
}

func (e *Explorer) Fetch(ctx context.Context, address, network string) (Contract, error) {
	log := logging.OrNop(e.Log)
	address = strings.TrimSpace(address)
	if !ValidAddress(address) {
		return Contract{}, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	network = NormalizeNetwork(network)
	base, err := e.endpoint(network)
	if err != nil {
		return Contract{}, err
	}

	q := url.Values{}
	q.Set("module", "contract")
	q.Set("action", "getsourcecode")
	q.Set("address", address)
	if e.APIKey != "" {
		q.Set("apikey", e.APIKey)
	}
	reqURL := base + "?" + q.Encode()

	attempts := e.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	var entry sourceEntry
	start := time.Now()
	err = retry.Do(ctx, attempts, e.Backoff, retryable, func() error {
		var err error
		entry, err = e.get(ctx, reqURL)
		return err
	})
	if err != nil {
		log.Warnw("explorer fetch failed", "address", address, "network", network, "error", err)
		return Contract{}, err
	}
	if strings.TrimSpace(entry.SourceCode) == "" {
		return Contract{}, fmt.Errorf("%w: %s on %s", ErrUnverified, address, network)
	}

	code, err := Flatten(entry.SourceCode)
	if err != nil {
		return Contract{}, err
	}
	log.Debugw("explorer fetch", "address", address, "network", network,
		"contract", entry.ContractName, "bytes", len(code), "duration", time.Since(start))

	return Contract{
		Code: code,
		Metadata: model.ContractMetadata{
			Address:         address,
			Network:         network,
			Name:            entry.ContractName,
			CompilerVersion: entry.CompilerVersion,
		},
	}, nil
}

func (e *Explorer) get(ctx context.Context, reqURL string) (sourceEntry, error) {
	client := e.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return sourceEntry{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return sourceEntry{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return sourceEntry{}, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return sourceEntry{}, fmt.Errorf("decoding explorer response: %w", err)
	}
	if env.Status != "1" {
		var msg string
		if json.Unmarshal(env.Result, &msg) != nil {
			msg = string(env.Result)
		}
		return sourceEntry{}, &APIError{Message: env.Message, Result: msg}
	}

	var entries []sourceEntry
	if err := json.Unmarshal(env.Result, &entries); err != nil {
		return sourceEntry{}, fmt.Errorf("decoding explorer result: %w", err)
	}
	if len(entries) == 0 {
		return sourceEntry{}, ErrUnverified
	}
	return entries[0], nil
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.RateLimited()
	}
	return !errors.Is(err, ErrUnverified)
}

type standardInput struct {
	Sources map[string]struct {
		Content string `json:"content"`
	} `json:"sources"`
}

// Flatten turns explorer SourceCode into one source text. Single-file
// source is returned as is. Multi-file source, either standard JSON input
// (optionally wrapped in an extra pair of braces) or a bare path-to-content
// map, is joined in path order under "// File:" headers.
func Flatten(code string) (string, error) {
	trimmed := strings.TrimSpace(code)
	if !strings.HasPrefix(trimmed, "{") {
		return code, nil
	}
	if strings.HasPrefix(trimmed, "{{") && strings.HasSuffix(trimmed, "}}") {
		trimmed = trimmed[1 : len(trimmed)-1]
	}

	var input standardInput
	if err := json.Unmarshal([]byte(trimmed), &input); err != nil {
		return "", fmt.Errorf("decoding multi-file source: %w", err)
	}
	files := input.Sources
	if len(files) == 0 {
		if err := json.Unmarshal([]byte(trimmed), &files); err != nil || len(files) == 0 {
			return "", fmt.Errorf("multi-file source has no files")
		}
	}

	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var b strings.Builder
	for i, p := range paths {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "// File: %s\n", p)
		b.WriteString(strings.TrimRight(files[p].Content, "\n"))
		b.WriteString("\n")
	}
	return b.String(), nil
}
