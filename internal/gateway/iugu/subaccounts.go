package iugu

import (
	"context"
	"net/http"

	"github.com/tidwall/gjson"
)

// SubAccountTokens lists sub-account API tokens visible to the master
// account. The body is returned undecoded beyond JSON; its shape varies.
func (c *Client) SubAccountTokens(ctx context.Context) (gjson.Result, error) {
	res, err := c.do(ctx, http.MethodGet, "/v1/retrieve_subaccounts_api_token", c.masterToken, nil)
	if err != nil {
		return gjson.Result{}, err
	}
	return res.Doc, nil
}
