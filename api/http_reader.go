// Reader is a small client of the http server, for tests and scripts.

package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/TEENet-io/inscription-bridge/common"
)

type HttpReader struct {
	baseURL string // e.g. http://127.0.0.1:8080
	client  *http.Client
}

func NewHttpReader(baseURL string) *HttpReader {
	return &HttpReader{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  http.DefaultClient,
	}
}

func (hr *HttpReader) get(path string, out any) error {
	resp, err := hr.client.Get(hr.baseURL + path)
	if err != nil {
		return errors.Wrapf(err, "failed to get %s", path)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.WithStack(err)
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Newf("GET %s: status=%d body=%s", path, resp.StatusCode, body)
	}
	return errors.WithStack(json.Unmarshal(body, out))
}

func (hr *HttpReader) GetHello() (string, error) {
	var resp struct {
		Message string `json:"message"`
	}
	err := hr.get(ROUTE_HELLO, &resp)
	return resp.Message, err
}

func (hr *HttpReader) GetDepositAddress() (string, error) {
	var resp struct {
		Address string `json:"address"`
	}
	err := hr.get(ROUTE_DEPOSIT_ADDRESS, &resp)
	return resp.Address, err
}

func (hr *HttpReader) GetMintOrders(sender, token common.Id256) ([]MintOrderView, error) {
	var resp struct {
		Data []MintOrderView `json:"data"`
	}
	err := hr.get("/mint-orders/"+sender.Hex()+"/"+token.Hex(), &resp)
	return resp.Data, err
}

func (hr *HttpReader) GetMintOrder(sender, token common.Id256, nonce uint32) (*MintOrderView, error) {
	var resp struct {
		Data MintOrderView `json:"data"`
	}
	err := hr.get("/mint-orders/"+sender.Hex()+"/"+token.Hex()+"/"+strconv.FormatUint(uint64(nonce), 10), &resp)
	if err != nil {
		return nil, err
	}
	return &resp.Data, nil
}
