package indexer

import (
	"time"

	"github.com/valyala/fasthttp"
)

type Config struct {
	// URL is the base URL of the indexer, serving both the esplora
	// (/api/tx) and the ordinals (/ordinals/v1) endpoints.
	URL string

	// Network is prepended to esplora paths, e.g. "testnet" or "regtest".
	// Empty for mainnet.
	Network string

	// Timeout bounds a single request when the context has no deadline.
	Timeout time.Duration

	// Debug logs every request.
	Debug bool

	// Dial overrides how connections are made. Nil uses TCP.
	Dial fasthttp.DialFunc
}

const DefaultTimeout = 10 * time.Second
