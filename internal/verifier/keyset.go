// internal/verifier/keyset.go
package verifier

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"
)

// Keyset fetches and caches the authority's public-key set so that
// signature verification does not need a network call per request.
type Keyset struct {
	url        string
	httpClient *http.Client
	refreshTTL time.Duration

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey // kid -> public key
	lastFetch time.Time
}

func NewKeyset(url string, client *http.Client, refreshTTL time.Duration) *Keyset {
	if client == nil {
		client = http.DefaultClient
	}
	return &Keyset{
		url:        url,
		httpClient: client,
		refreshTTL: refreshTTL,
		keys:       make(map[string]*rsa.PublicKey),
	}
}

// Key returns the RSA public key for the given kid, refreshing the
// cached set when it is stale or the kid is unknown.
func (k *Keyset) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	k.mu.RLock()
	key, found := k.keys[kid]
	stale := time.Since(k.lastFetch) > k.refreshTTL
	k.mu.RUnlock()

	if found && !stale {
		return key, nil
	}

	if err := k.refresh(ctx); err != nil {
		if found {
			// Serve the stale key rather than fail the verification.
			return key, nil
		}
		return nil, err
	}

	k.mu.RLock()
	defer k.mu.RUnlock()

	if key, ok := k.keys[kid]; ok {
		return key, nil
	}

	// No kid in the token header: any key from the set is a candidate.
	if kid == "" {
		for _, key := range k.keys {
			return key, nil
		}
	}

	return nil, fmt.Errorf("no key found for kid %q", kid)
}

// refresh fetches the key set from the configured URL and replaces the cache.
func (k *Keyset) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.url, nil)
	if err != nil {
		return fmt.Errorf("failed to build keyset request: %w", err)
	}

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch keyset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("keyset endpoint returned status %d", resp.StatusCode)
	}

	var payload keysetResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("failed to decode keyset: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(payload.Keys))
	for _, jwk := range payload.Keys {
		if jwk.Kty != "RSA" || (jwk.Use != "" && jwk.Use != "sig") {
			continue
		}
		pub, err := jwk.rsaPublicKey()
		if err != nil {
			continue // skip malformed keys
		}
		keys[jwk.Kid] = pub
	}

	if len(keys) == 0 {
		return fmt.Errorf("keyset contains no usable RSA signing keys")
	}

	k.mu.Lock()
	k.keys = keys
	k.lastFetch = time.Now()
	k.mu.Unlock()

	return nil
}

type keysetResponse struct {
	Keys []jwkKey `json:"keys"`
}

type jwkKey struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (j *jwkKey) rsaPublicKey() (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(j.N)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(j.E)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(new(big.Int).SetBytes(eBytes).Int64()),
	}, nil
}
