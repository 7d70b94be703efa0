package api

import (
	"crypto/rand"
	"encoding/binary"
	"net/http"
	"strconv"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/TEENet-io/inscription-bridge/bridge"
	"github.com/TEENet-io/inscription-bridge/btcvault"
	"github.com/TEENet-io/inscription-bridge/common"
	"github.com/TEENet-io/inscription-bridge/inscription"
	"github.com/TEENet-io/inscription-bridge/state"
	"github.com/TEENet-io/inscription-bridge/swapper"
)

// manual withdrawals get request ids with the top bit set, burn operation
// ids are expected below it
const manualRequestBit = 1 << 31

type DepositBody struct {
	Asset      string `json:"asset" binding:"required"`
	TxID       string `json:"tx_id" binding:"required"`
	Ticker     string `json:"ticker"`
	DstAddress string `json:"dst_address" binding:"required"`
}

type WithdrawBody struct {
	Asset      string  `json:"asset" binding:"required"`
	AssetID    string  `json:"asset_id" binding:"required"`
	Amount     string  `json:"amount" binding:"required"`
	DstAddress string  `json:"dst_address" binding:"required"`
	RequestID  *uint32 `json:"request_id"`
}

type ConfigureBody struct {
	Fee            string `json:"fee"`
	BridgeContract string `json:"bridge_contract"`
}

type MintOrderView struct {
	Nonce uint32        `json:"nonce"`
	Order hexutil.Bytes `json:"order"`
}

type ReservedUtxoView struct {
	Outpoint   string    `json:"outpoint"`
	Owner      string    `json:"owner"`
	ReservedAt time.Time `json:"reserved_at"`
}

func (h *HttpServer) Deposit(c *gin.Context) {
	var body DepositBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err.Error())
		return
	}
	kind, err := inscription.ParseKind(body.Asset)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	if !ethcommon.IsHexAddress(body.DstAddress) {
		badRequest(c, "dst_address is not an evm address")
		return
	}

	res, err := h.bridge.Deposit(c.Request.Context(), &swapper.DepositRequest{
		Kind:       kind,
		TxID:       body.TxID,
		Ticker:     body.Ticker,
		DstAddress: ethcommon.HexToAddress(body.DstAddress),
	})
	if err != nil {
		abort(c, err)
		return
	}

	switch res := res.(type) {
	case *swapper.Minted:
		c.JSON(http.StatusOK, gin.H{
			"status":  state.OpMinted,
			"amount":  res.Amount.String(),
			"tx_hash": res.TxHash.Hex(),
		})
	case *swapper.Signed:
		c.JSON(http.StatusOK, gin.H{
			"status": state.OpSigned,
			"order":  hexutil.Bytes(res.Order),
		})
	}
}

func (h *HttpServer) Withdraw(c *gin.Context) {
	var body WithdrawBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err.Error())
		return
	}
	kind, err := inscription.ParseKind(body.Asset)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	amount, ok := parseAmount(body.Amount)
	if !ok {
		badRequest(c, "amount must be a non-negative integer")
		return
	}
	requestID := lo.FromPtrOr(body.RequestID, randomRequestID())

	txHash, err := h.bridge.Withdraw(c.Request.Context(), c.GetHeader(HEADER_ADMIN_TOKEN), &swapper.WithdrawRequest{
		RequestID: requestID,
		ToToken:   common.Id256FromAsset(string(kind), body.AssetID),
		Recipient: body.DstAddress,
		Amount:    amount,
		Wallet:    "admin",
	})
	if err != nil {
		abort(c, err)
		return
	}

	resp := gin.H{"status": state.OpTransferred, "request_id": requestID}
	if txHash != nil {
		resp["tx_id"] = txHash.String()
	}
	c.JSON(http.StatusOK, resp)
}

func randomRequestID() uint32 {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return binary.BigEndian.Uint32(b[:]) | manualRequestBit
}

func parseSenderToken(c *gin.Context) (sender, token common.Id256, ok bool) {
	sender, err := common.ParseId256(c.Param("sender"))
	if err != nil {
		badRequest(c, "malformed sender: "+err.Error())
		return sender, token, false
	}
	token, err = common.ParseId256(c.Param("token"))
	if err != nil {
		badRequest(c, "malformed token: "+err.Error())
		return sender, token, false
	}
	return sender, token, true
}

func (h *HttpServer) MintOrders(c *gin.Context) {
	sender, token, ok := parseSenderToken(c)
	if !ok {
		return
	}
	records, err := h.bridge.MintOrders(c.Request.Context(), sender, token)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": lo.Map(records, func(r state.MintOrderRecord, _ int) MintOrderView {
		return MintOrderView{Nonce: r.Nonce, Order: r.Payload}
	})})
}

func (h *HttpServer) MintOrder(c *gin.Context) {
	sender, token, ok := parseSenderToken(c)
	if !ok {
		return
	}
	nonce, err := strconv.ParseUint(c.Param("nonce"), 10, 32)
	if err != nil {
		badRequest(c, "malformed nonce")
		return
	}
	order, err := h.bridge.MintOrder(c.Request.Context(), sender, token, uint32(nonce))
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": MintOrderView{Nonce: uint32(nonce), Order: hexutil.Bytes(order)}})
}

func (h *HttpServer) Configure(c *gin.Context) {
	var body ConfigureBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err.Error())
		return
	}

	update := &bridge.Settings{}
	if body.Fee != "" {
		fee, ok := parseAmount(body.Fee)
		if !ok {
			badRequest(c, "fee must be a non-negative integer")
			return
		}
		update.Fee = fee
	}
	if body.BridgeContract != "" {
		if !ethcommon.IsHexAddress(body.BridgeContract) {
			badRequest(c, "bridge_contract is not an evm address")
			return
		}
		update.BridgeContract = lo.ToPtr(ethcommon.HexToAddress(body.BridgeContract))
	}

	if err := h.bridge.Configure(c.Request.Context(), c.GetHeader(HEADER_ADMIN_TOKEN), update); err != nil {
		abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *HttpServer) DepositAddress(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"address": h.bridge.DepositAddress()})
}

func (h *HttpServer) Balance(c *gin.Context) {
	bal, err := h.bridge.Balance(c.Request.Context())
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, bal)
}

func (h *HttpServer) FeePercentiles(c *gin.Context) {
	percentiles, err := h.bridge.FeeRatePercentiles(c.Request.Context())
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"feerate_percentiles": percentiles})
}

func (h *HttpServer) Operations(c *gin.Context) {
	wallet := c.Param("wallet")
	if ethcommon.IsHexAddress(wallet) {
		wallet = ethcommon.HexToAddress(wallet).Hex()
	}
	ops, err := h.bridge.Operations(c.Request.Context(), wallet)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": ops})
}

func (h *HttpServer) ReservedUtxos(c *gin.Context) {
	reserved, err := h.bridge.ReservedUtxos(c.Request.Context())
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": lo.Map(reserved, func(r btcvault.UsedUtxoRecord, _ int) ReservedUtxoView {
		return ReservedUtxoView{Outpoint: r.Key.String(), Owner: r.Owner, ReservedAt: r.ReservedAt}
	})})
}
