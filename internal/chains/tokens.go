package chains

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chainscope/chainscope/internal/models"
)

// LoadTokens reads the curated token metadata for a network from
// <dir>/<network>.json. The file is the source of truth for decimals; token
// addresses are normalized to lowercase. A missing file is not an error: the
// network simply has no curated token set and only native balances are priced.
func LoadTokens(dir, network string) ([]models.TokenInfo, error) {
	path := filepath.Join(dir, network+".json")
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read token metadata %s: %w", path, err)
	}

	var tokens []models.TokenInfo
	if err := json.Unmarshal(raw, &tokens); err != nil {
		return nil, fmt.Errorf("parse token metadata %s: %w", path, err)
	}

	for i := range tokens {
		tokens[i].Address = strings.ToLower(tokens[i].Address)
		if tokens[i].Decimals < 0 || tokens[i].Decimals > 36 {
			return nil, fmt.Errorf("token %s in %s: implausible decimals %d",
				tokens[i].Symbol, path, tokens[i].Decimals)
		}
	}
	return tokens, nil
}
