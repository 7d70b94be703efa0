package indexer

import (
	"context"
	"encoding/json"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/cockroachdb/errors"
	logger "github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"

	"github.com/TEENet-io/inscription-bridge/errs"
)

var ErrUnexpectedStatus = errors.New("unexpected http status")

// Client talks to an esplora + ordinals indexer over HTTP.
type Client struct {
	baseURL *url.URL
	cfg     Config
	http    *fasthttp.Client
}

func New(cfg Config) (*Client, error) {
	parsedBaseURL, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, errors.Wrap(err, "can't parse indexer url")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		baseURL: parsedBaseURL,
		cfg:     cfg,
		http: &fasthttp.Client{
			Name:                          "inscription-bridge",
			Dial:                          cfg.Dial,
			DisableHeaderNamesNormalizing: true,
		},
	}, nil
}

// get fetches path and decodes the JSON body into out. A 404 gives
// errs.NotFound.
func (c *Client) get(ctx context.Context, p string, query url.Values, out any) error {
	u := *c.baseURL
	u.Path = path.Join(u.Path, p)
	u.RawQuery = query.Encode()
	uri := u.String()

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseResponse(resp)
		fasthttp.ReleaseRequest(req)
	}()
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")
	req.SetRequestURI(uri)

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.cfg.Timeout)
	}
	start := time.Now()
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return errors.Wrapf(err, "url: %s", uri)
	}
	if c.cfg.Debug {
		logger.WithFields(logger.Fields{
			"url":      uri,
			"status":   resp.StatusCode(),
			"duration": time.Since(start),
		}).Debug("indexer request")
	}

	switch status := resp.StatusCode(); {
	case status == fasthttp.StatusNotFound:
		return errors.Mark(errors.Newf("url: %s", uri), errs.NotFound)
	case status != fasthttp.StatusOK:
		return errors.Wrapf(ErrUnexpectedStatus, "url: %s, status %d, body %q", uri, status, resp.Body())
	}

	body, err := resp.BodyUncompressed()
	if err != nil {
		return errors.Wrapf(err, "can't uncompress body from %s", uri)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrapf(err, "can't unmarshal json body from %s", uri)
	}
	return nil
}

func (c *Client) esploraPath(elem ...string) string {
	parts := []string{"/"}
	if c.cfg.Network != "" {
		parts = append(parts, c.cfg.Network)
	}
	parts = append(parts, "api")
	return path.Join(append(parts, elem...)...)
}

// GetTxInfo returns the esplora record of txid.
func (c *Client) GetTxInfo(ctx context.Context, txid string) (*TxInfo, error) {
	info := new(TxInfo)
	if err := c.get(ctx, c.esploraPath("tx", txid), nil, info); err != nil {
		return nil, errors.Wrapf(err, "failed to get tx %s", txid)
	}
	return info, nil
}

// GetTransaction returns txid as a wire transaction. The result is checked
// against txid so a lying indexer cannot substitute another transaction.
func (c *Client) GetTransaction(ctx context.Context, txid string) (*wire.MsgTx, error) {
	info, err := c.GetTxInfo(ctx, txid)
	if err != nil {
		return nil, err
	}
	tx, err := info.MsgTx()
	if err != nil {
		return nil, errors.Wrapf(err, "tx %s", txid)
	}
	if got := tx.TxHash().String(); got != strings.ToLower(txid) {
		return nil, errors.Newf("indexer returned tx %s for %s", got, txid)
	}
	return tx, nil
}

// GetInscriptions lists the inscriptions held by address. A non-empty id
// narrows the list to that inscription.
func (c *Client) GetInscriptions(ctx context.Context, address string, id string) ([]Inscription, error) {
	query := url.Values{}
	query.Set("address", address)
	if id != "" {
		query.Set("id", id)
	}
	var resp listInscriptionsResponse
	if err := c.get(ctx, "/ordinals/v1/inscriptions", query, &resp); err != nil {
		return nil, errors.Wrapf(err, "failed to list inscriptions of %s", address)
	}
	return resp.Results, nil
}

// GetInscription returns inscription id when address holds it.
func (c *Client) GetInscription(ctx context.Context, address string, id string) (*Inscription, error) {
	list, err := c.GetInscriptions(ctx, address, id)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].ID == id {
			return &list[i], nil
		}
	}
	return nil, errors.Mark(errors.Newf("inscription %s not held by %s", id, address), errs.NotFound)
}
