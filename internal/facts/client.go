// Package facts retrieves factual chemical context for reactants from a
// PubChem-style compound property API.
package facts

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Fact holds the retrieved properties for a single compound.
type Fact struct {
	Formula         string  `json:"formula"`
	MolecularWeight float64 `json:"molecular_weight,omitempty"`
	HBondDonors     int     `json:"h_bond_donors"`
	HBondAcceptors  int     `json:"h_bond_acceptors"`
	Source          string  `json:"source"`
}

// Context is the factual context for one reaction's reactants, keyed by
// reactant identifier.
type Context struct {
	Facts map[string]Fact `json:"facts"`
}

// Client fetches factual context for a set of reactant identifiers.
// Implementations are called at most once per cache miss; retry policy
// belongs to the caller.
type Client interface {
	Fetch(ctx context.Context, reactantIDs []string) (*Context, error)
}

// Config holds HTTP client configuration.
type Config struct {
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
	// CacheSize bounds the compound memo cache; 0 uses the default.
	CacheSize int           `json:"cache_size" yaml:"cache_size"`
	CacheTTL  time.Duration `json:"cache_ttl" yaml:"cache_ttl"`
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:   "https://pubchem.ncbi.nlm.nih.gov/rest/pug",
		Timeout:   10 * time.Second,
		CacheSize: 4096,
		CacheTTL:  24 * time.Hour,
	}
}

// HTTPClient implements Client against the PubChem PUG REST API.
// Resolved compounds are memoized; their properties do not change.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	memo    *memo
}

// NewHTTPClient creates a new PubChem-backed fact client.
func NewHTTPClient(cfg Config) *HTTPClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultConfig().BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultConfig().CacheSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultConfig().CacheTTL
	}
	return &HTTPClient{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
		memo:    newMemo(cfg.CacheSize, cfg.CacheTTL),
	}
}

// propertyTable mirrors the PubChem property response shape.
type propertyTable struct {
	PropertyTable struct {
		Properties []struct {
			MolecularFormula string `json:"MolecularFormula"`
			MolecularWeight  string `json:"MolecularWeight"`
			HBondDonorCount  int    `json:"HBondDonorCount"`
			HBondAcceptorCnt int    `json:"HBondAcceptorCount"`
		} `json:"Properties"`
	} `json:"PropertyTable"`
}

// Fetch retrieves compound properties for every reactant. A compound that
// cannot be resolved degrades to a placeholder fact; a transport-level
// failure fails the whole fetch.
func (c *HTTPClient) Fetch(ctx context.Context, reactantIDs []string) (*Context, error) {
	result := &Context{Facts: make(map[string]Fact, len(reactantIDs))}

	for _, id := range reactantIDs {
		if cached, ok := c.memo.get(id); ok {
			result.Facts[id] = cached
			continue
		}
		fact, err := c.fetchCompound(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("fetch compound %q: %w", id, err)
		}
		c.memo.set(id, fact)
		result.Facts[id] = fact
	}
	return result, nil
}

// fetchCompound tries the formula endpoint first, then the name endpoint.
// A 404 on both is not an error: the compound gets a placeholder fact.
func (c *HTTPClient) fetchCompound(ctx context.Context, compound string) (Fact, error) {
	paths := []string{
		"/compound/formula/%s/property/MolecularFormula,MolecularWeight,HBondDonorCount,HBondAcceptorCount/JSON",
		"/compound/name/%s/property/MolecularFormula,MolecularWeight,HBondDonorCount,HBondAcceptorCount/JSON",
	}

	for _, path := range paths {
		reqURL := c.baseURL + fmt.Sprintf(path, url.PathEscape(compound))
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return Fact{}, fmt.Errorf("build request: %w", err)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return Fact{}, fmt.Errorf("request failed: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			continue
		}

		var table propertyTable
		err = json.NewDecoder(resp.Body).Decode(&table)
		resp.Body.Close()
		if err != nil {
			return Fact{}, fmt.Errorf("decode response: %w", err)
		}

		if len(table.PropertyTable.Properties) > 0 {
			p := table.PropertyTable.Properties[0]
			fact := Fact{
				Formula:        p.MolecularFormula,
				HBondDonors:    p.HBondDonorCount,
				HBondAcceptors: p.HBondAcceptorCnt,
				Source:         "PubChem",
			}
			if fact.Formula == "" {
				fact.Formula = compound
			}
			fmt.Sscanf(p.MolecularWeight, "%f", &fact.MolecularWeight)
			return fact, nil
		}
	}

	// Unknown compound: factual context is simply absent
	return Fact{Formula: compound, Source: "Unknown"}, nil
}

// Static is a Client that returns fixed facts. Used in tests and when no
// fact service is configured.
type Static struct {
	Err error
}

// Fetch returns a placeholder fact per reactant.
func (s *Static) Fetch(ctx context.Context, reactantIDs []string) (*Context, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	result := &Context{Facts: make(map[string]Fact, len(reactantIDs))}
	for _, id := range reactantIDs {
		result.Facts[id] = Fact{Formula: id, Source: "Static"}
	}
	return result, nil
}
