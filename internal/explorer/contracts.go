package explorer

import (
	"context"
	"encoding/json"
	"strings"

	apierrors "github.com/chainscope/chainscope/internal/pkg/errors"
)

// CreationBatchSize is the explorer's cap on getcontractcreation addresses.
const CreationBatchSize = 5

// CreationRecord is one row of a getcontractcreation response.
type CreationRecord struct {
	ContractAddress string `json:"contractAddress"`
	ContractCreator string `json:"contractCreator"`
	TxHash          string `json:"txHash"`
}

// ContractCreations looks up creation metadata for up to CreationBatchSize
// addresses. An explorer "No data found" yields an empty slice, not an error.
func (c *Client) ContractCreations(ctx context.Context, addresses []string) ([]CreationRecord, error) {
	if len(addresses) == 0 {
		return nil, nil
	}
	lowered := make([]string, len(addresses))
	for i, a := range addresses {
		lowered[i] = strings.ToLower(a)
	}

	raw, err := c.Request(ctx, "contract", "getcontractcreation", Params{
		"contractaddresses": strings.Join(lowered, ","),
	})
	if apierrors.IsNoData(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var records []CreationRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, apierrors.New(apierrors.KindTransient, "explorer.getcontractcreation", err)
	}
	for i := range records {
		records[i].ContractAddress = strings.ToLower(records[i].ContractAddress)
	}
	return records, nil
}

// SourceInfo is the verification metadata of one contract.
type SourceInfo struct {
	ContractName   string
	Implementation string // verified name of the proxy implementation, if any
	IsProxy        bool
	Verified       bool
}

type sourceCodeRow struct {
	ContractName   string `json:"ContractName"`
	Proxy          string `json:"Proxy"`
	Implementation string `json:"Implementation"`
	ABI            string `json:"ABI"`
}

// SourceInfo fetches the verified name and proxy implementation for one
// contract address. Unverified contracts return Verified=false with no error.
func (c *Client) SourceInfo(ctx context.Context, address string) (*SourceInfo, error) {
	raw, err := c.Request(ctx, "contract", "getsourcecode", Params{
		"address": strings.ToLower(address),
	})
	if apierrors.IsNoData(err) {
		return &SourceInfo{}, nil
	}
	if err != nil {
		return nil, err
	}

	var rows []sourceCodeRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, apierrors.New(apierrors.KindTransient, "explorer.getsourcecode", err)
	}
	if len(rows) == 0 {
		return &SourceInfo{}, nil
	}

	row := rows[0]
	info := &SourceInfo{
		ContractName: row.ContractName,
		IsProxy:      row.Proxy == "1",
		Verified:     row.ContractName != "" && row.ABI != "Contract source code not verified",
	}
	if info.IsProxy && row.Implementation != "" {
		info.Implementation = strings.ToLower(row.Implementation)
	}
	return info, nil
}
