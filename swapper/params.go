package swapper

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/TEENet-io/inscription-bridge/agreement"
	"github.com/TEENet-io/inscription-bridge/errs"
)

// KeyMintNonce is the kv key holding the next mint order nonce.
const KeyMintNonce = "mint_nonce"

type ParamsSaver interface {
	SetEvmParams(ctx context.Context, p *agreement.EvmParams) error
}

// EvmParamsHolder guards the shared EvmParams. Callers only ever see copies.
type EvmParamsHolder struct {
	mu     sync.RWMutex
	params *agreement.EvmParams
	saver  ParamsSaver
}

// NewEvmParamsHolder starts empty. saver may be nil.
func NewEvmParamsHolder(saver ParamsSaver) *EvmParamsHolder {
	return &EvmParamsHolder{saver: saver}
}

// Get returns a copy, NotInitialized until Set was called.
func (h *EvmParamsHolder) Get() (*agreement.EvmParams, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.params == nil {
		return nil, errors.WithStack(errs.NotInitialized)
	}
	return h.params.Copy(), nil
}

// Set replaces the params with a copy of p and persists them.
func (h *EvmParamsHolder) Set(ctx context.Context, p *agreement.EvmParams) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.storeLocked(ctx, p.Copy())
}

// Update applies fn to a copy of the current params and stores the result.
// fn returning false discards the change.
func (h *EvmParamsHolder) Update(ctx context.Context, fn func(p *agreement.EvmParams) bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.params == nil {
		return errors.WithStack(errs.NotInitialized)
	}
	p := h.params.Copy()
	if !fn(p) {
		return nil
	}
	return h.storeLocked(ctx, p)
}

func (h *EvmParamsHolder) storeLocked(ctx context.Context, p *agreement.EvmParams) error {
	if h.saver != nil {
		if err := h.saver.SetEvmParams(ctx, p); err != nil {
			return err
		}
	}
	h.params = p
	return nil
}

// NonceSaver stores the next mint order nonce under KeyMintNonce.
type NonceSaver interface {
	SetKeyedValue(ctx context.Context, key string, value []byte) error
}

// NonceAllocator hands out mint order nonces. It is unrelated to the EVM
// account nonce.
type NonceAllocator struct {
	mu    sync.Mutex
	next  uint32
	saver NonceSaver
}

// NewNonceAllocator starts at start. saver may be nil.
func NewNonceAllocator(start uint32, saver NonceSaver) *NonceAllocator {
	return &NonceAllocator{next: start, saver: saver}
}

// Next returns a nonce no other caller got. The counter only moves once the
// following value is stored, so a restart never repeats a nonce.
func (a *NonceAllocator) Next(ctx context.Context) (uint32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := a.next
	if a.saver != nil {
		if err := a.saver.SetKeyedValue(ctx, KeyMintNonce, EncodeNonce(n+1)); err != nil {
			return 0, errors.Wrap(err, "failed to persist mint nonce")
		}
	}
	a.next = n + 1
	return n, nil
}

// Peek is the nonce the next call to Next returns.
func (a *NonceAllocator) Peek() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.next
}

func EncodeNonce(n uint32) []byte {
	return binary.BigEndian.AppendUint32(nil, n)
}

func DecodeNonce(b []byte) (uint32, error) {
	if len(b) != 4 {
		return 0, errors.Mark(errors.Newf("mint nonce must be 4 bytes, got %d", len(b)), errs.CorruptRecord)
	}
	return binary.BigEndian.Uint32(b), nil
}
