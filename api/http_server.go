// HTTP front of the bridge.
// Users start deposits and read their mint orders here, admins
// reconfigure the bridge.

package api

import (
	"context"
	"math/big"
	"net/http"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	logger "github.com/sirupsen/logrus"

	"github.com/TEENet-io/inscription-bridge/bridge"
	"github.com/TEENet-io/inscription-bridge/btcvault"
	"github.com/TEENet-io/inscription-bridge/common"
	"github.com/TEENet-io/inscription-bridge/errs"
	"github.com/TEENet-io/inscription-bridge/mintorder"
	"github.com/TEENet-io/inscription-bridge/state"
	"github.com/TEENet-io/inscription-bridge/swapper"
)

const (
	ROUTE_HELLO           = "/hello"
	ROUTE_METRICS         = "/metrics"
	ROUTE_DEPOSIT         = "/deposit"
	ROUTE_WITHDRAW        = "/withdraw"
	ROUTE_MINT_ORDERS     = "/mint-orders/:sender/:token"
	ROUTE_MINT_ORDER      = "/mint-orders/:sender/:token/:nonce"
	ROUTE_CONFIGURE       = "/admin/configure"
	ROUTE_DEPOSIT_ADDRESS = "/deposit-address"
	ROUTE_BALANCE         = "/balance"
	ROUTE_FEE_PERCENTILES = "/fee-percentiles"
	ROUTE_OPERATIONS      = "/operations/:wallet"
	ROUTE_RESERVED_UTXOS  = "/reserved-utxos"

	HEADER_ADMIN_TOKEN = "X-Admin-Token"

	shutdownTimeout = 5 * time.Second
)

// Bridge is what the routes need from bridge.Bridge.
type Bridge interface {
	Deposit(ctx context.Context, req *swapper.DepositRequest) (swapper.MintResult, error)
	Withdraw(ctx context.Context, token string, req *swapper.WithdrawRequest) (*chainhash.Hash, error)
	MintOrders(ctx context.Context, sender, srcToken common.Id256) ([]state.MintOrderRecord, error)
	MintOrder(ctx context.Context, sender, srcToken common.Id256, nonce uint32) (mintorder.SignedMintOrder, error)
	Configure(ctx context.Context, token string, update *bridge.Settings) error
	DepositAddress() string
	Balance(ctx context.Context) (*bridge.Balance, error)
	FeeRatePercentiles(ctx context.Context) ([]int64, error)
	Operations(ctx context.Context, wallet string) ([]state.Operation, error)
	ReservedUtxos(ctx context.Context) ([]btcvault.UsedUtxoRecord, error)
}

type HttpServer struct {
	serverIP   string // listen ip
	serverPort string // listen port

	bridge Bridge
}

func NewHttpServer(serverIP string, serverPort string, b Bridge) *HttpServer {
	return &HttpServer{
		serverIP:   serverIP,
		serverPort: serverPort,
		bridge:     b,
	}
}

// Hook up routes & handlers
func (h *HttpServer) SetupRouter() *gin.Engine {
	router := gin.Default()

	router.GET(ROUTE_HELLO, Hello)
	router.GET(ROUTE_METRICS, gin.WrapH(promhttp.Handler()))

	router.POST(ROUTE_DEPOSIT, h.Deposit)
	router.POST(ROUTE_WITHDRAW, h.Withdraw)
	router.GET(ROUTE_MINT_ORDERS, h.MintOrders)
	router.GET(ROUTE_MINT_ORDER, h.MintOrder)
	router.POST(ROUTE_CONFIGURE, h.Configure)

	router.GET(ROUTE_DEPOSIT_ADDRESS, h.DepositAddress)
	router.GET(ROUTE_BALANCE, h.Balance)
	router.GET(ROUTE_FEE_PERCENTILES, h.FeePercentiles)
	router.GET(ROUTE_OPERATIONS, h.Operations)
	router.GET(ROUTE_RESERVED_UTXOS, h.ReservedUtxos)

	return router
}

// Run serves until ctx is done, then shuts the listener down.
func (h *HttpServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    h.serverIP + ":" + h.serverPort,
		Handler: h.SetupRouter(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("address", srv.Addr).Info("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "http server stopped")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("failed to shut down http server: err=%v", err)
		}
		return nil
	}
}

// Example route.
func Hello(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "world",
	})
}

// statusOf maps an error kind to a response code.
func statusOf(err error) int {
	switch {
	case errors.Is(err, errs.Unauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, errs.NotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.NotInitialized), errors.Is(err, errs.UtxoUnavailable):
		return http.StatusServiceUnavailable
	case errs.IsPermanent(err),
		errors.Is(err, errs.MalformedAddress),
		errors.Is(err, errs.InvalidInscription),
		errors.Is(err, errs.ValueTooSmall):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func abort(c *gin.Context, err error) {
	code := statusOf(err)
	if code == http.StatusInternalServerError {
		logger.Errorf("failed to serve %s: err=%v", c.FullPath(), err)
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func parseAmount(s string) (*big.Int, bool) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Sign() < 0 {
		return nil, false
	}
	return n, true
}
