package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/tolelom/artcade/core"
	"github.com/tolelom/artcade/indexer"
	"github.com/tolelom/artcade/vm"
	"github.com/tolelom/artcade/vm/modules/arcade"
)

// Handler holds all dependencies needed to serve RPC methods.
type Handler struct {
	bc      *core.Blockchain
	mempool *core.Mempool
	state   core.State
	indexer *indexer.Indexer
	chainID uint64 // used to reject cross-chain replay transactions
}

// NewHandler creates an RPC Handler.
func NewHandler(bc *core.Blockchain, mempool *core.Mempool, state core.State, idx *indexer.Indexer, chainID uint64) *Handler {
	return &Handler{bc: bc, mempool: mempool, state: state, indexer: idx, chainID: chainID}
}

// Dispatch routes an RPC request to the correct method.
func (h *Handler) Dispatch(req Request) Response {
	switch req.Method {
	case "getChainId":
		return okResponse(req.ID, h.chainID)
	case "getBlockHeight":
		return okResponse(req.ID, h.bc.Height())
	case "getBlock":
		return h.getBlock(req)
	case "getBalance":
		return h.getBalance(req)
	case "getTokenBalance":
		return h.getTokenBalance(req)
	case "getRegistry":
		return h.getRegistry(req)
	case "getGame":
		return h.getGame(req)
	case "getGameRecord":
		return h.getGameRecord(req)
	case "getPlayer":
		return h.getPlayer(req)
	case "isNonceUsed":
		return h.isNonceUsed(req)
	case "predictGameAddress":
		return h.predictGameAddress(req)
	case "getGamesByCreator":
		return h.getGamesByCreator(req)
	case "getGamesByPlayer":
		return h.getGamesByPlayer(req)
	case "getCredentialsByOwner":
		return h.getCredentialsByOwner(req)
	case "sendTx":
		return h.sendTx(req)
	case "getMempoolSize":
		return okResponse(req.ID, h.mempool.Size())
	default:
		return errResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
}

func decodeParams(req Request, v any) *Response {
	if len(req.Params) == 0 {
		resp := errResponse(req.ID, CodeInvalidParams, "params are required")
		return &resp
	}
	if err := json.Unmarshal(req.Params, v); err != nil {
		resp := errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
		return &resp
	}
	return nil
}

func requireAddr(req Request, name string, addr common.Address) *Response {
	if addr == (common.Address{}) {
		resp := errResponse(req.ID, CodeInvalidParams, name+" is required")
		return &resp
	}
	return nil
}

func stateErr(id any, err error) Response {
	if errors.Is(err, core.ErrNotFound) || errors.Is(err, arcade.ErrUnknownGame) || errors.Is(err, arcade.ErrUnknownRegistry) {
		return errResponse(id, CodeNotFound, err.Error())
	}
	return errResponse(id, CodeInternalError, err.Error())
}

// view binds arcade objects to the current state without a transaction.
func (h *Handler) view() *vm.Context {
	return vm.NewContext(h.state, nil, nil, h.chainID, nil)
}

func (h *Handler) getBlock(req Request) Response {
	var params struct {
		Hash   string `json:"hash"`
		Height *int64 `json:"height"`
	}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
		}
	}

	var block *core.Block
	var err error
	if params.Hash != "" {
		block, err = h.bc.GetBlock(params.Hash)
	} else if params.Height != nil {
		block, err = h.bc.GetBlockByHeight(*params.Height)
	} else {
		block = h.bc.Tip()
	}
	if err != nil {
		return stateErr(req.ID, err)
	}
	if block == nil {
		return errResponse(req.ID, CodeNotFound, "no block found")
	}
	return okResponse(req.ID, block)
}

// BalanceResult is returned by getBalance.
type BalanceResult struct {
	Address common.Address `json:"address"`
	Wei     *hexutil.Big   `json:"wei"`
	Ether   string         `json:"ether"`
	Nonce   uint64         `json:"nonce"`
}

func (h *Handler) getBalance(req Request) Response {
	var params struct {
		Address common.Address `json:"address"`
	}
	if resp := decodeParams(req, &params); resp != nil {
		return *resp
	}
	if resp := requireAddr(req, "address", params.Address); resp != nil {
		return *resp
	}
	acc, err := h.state.GetAccount(params.Address)
	if err != nil {
		return stateErr(req.ID, err)
	}
	return okResponse(req.ID, BalanceResult{
		Address: params.Address,
		Wei:     (*hexutil.Big)(acc.Balance),
		Ether:   core.FormatEther(acc.Balance),
		Nonce:   acc.Nonce,
	})
}

func (h *Handler) getTokenBalance(req Request) Response {
	var params struct {
		Token common.Address `json:"token"`
		ID    *hexutil.Big   `json:"id"`
		Owner common.Address `json:"owner"`
	}
	if resp := decodeParams(req, &params); resp != nil {
		return *resp
	}
	if resp := requireAddr(req, "token", params.Token); resp != nil {
		return *resp
	}
	id := new(big.Int)
	if params.ID != nil {
		id = params.ID.ToInt()
	}
	bal, err := h.state.GetTokenBalance(params.Token, id, params.Owner)
	if err != nil {
		return stateErr(req.ID, err)
	}
	return okResponse(req.ID, (*hexutil.Big)(bal))
}

func (h *Handler) getRegistry(req Request) Response {
	var params struct {
		Address common.Address `json:"address"`
	}
	if resp := decodeParams(req, &params); resp != nil {
		return *resp
	}
	reg, err := arcade.RegistryAt(h.view(), arcade.Env{}, params.Address).State()
	if err != nil {
		return stateErr(req.ID, err)
	}
	return okResponse(req.ID, reg)
}

func (h *Handler) getGame(req Request) Response {
	var params struct {
		Address common.Address `json:"address"`
	}
	if resp := decodeParams(req, &params); resp != nil {
		return *resp
	}
	inst, err := arcade.GameAt(h.view(), arcade.Env{}, params.Address).Instance()
	if err != nil {
		return stateErr(req.ID, err)
	}
	return okResponse(req.ID, inst)
}

func (h *Handler) getGameRecord(req Request) Response {
	var params struct {
		Registry common.Address `json:"registry"`
		Game     common.Address `json:"game"`
	}
	if resp := decodeParams(req, &params); resp != nil {
		return *resp
	}
	rec, err := arcade.RegistryAt(h.view(), arcade.Env{}, params.Registry).Record(params.Game)
	if err != nil {
		return stateErr(req.ID, err)
	}
	return okResponse(req.ID, rec)
}

func (h *Handler) getPlayer(req Request) Response {
	var params struct {
		Game   common.Address `json:"game"`
		Player common.Address `json:"player"`
	}
	if resp := decodeParams(req, &params); resp != nil {
		return *resp
	}
	if resp := requireAddr(req, "player", params.Player); resp != nil {
		return *resp
	}
	ps, err := arcade.GameAt(h.view(), arcade.Env{}, params.Game).Player(params.Player)
	if err != nil {
		return stateErr(req.ID, err)
	}
	return okResponse(req.ID, ps)
}

func (h *Handler) isNonceUsed(req Request) Response {
	var params struct {
		Game   common.Address `json:"game"`
		Player common.Address `json:"player"`
		Nonce  *hexutil.Big   `json:"nonce"`
	}
	if resp := decodeParams(req, &params); resp != nil {
		return *resp
	}
	if params.Nonce == nil {
		return errResponse(req.ID, CodeInvalidParams, "nonce is required")
	}
	used, err := arcade.GameAt(h.view(), arcade.Env{}, params.Game).NonceUsed(params.Player, params.Nonce.ToInt())
	if err != nil {
		return stateErr(req.ID, err)
	}
	return okResponse(req.ID, used)
}

func (h *Handler) predictGameAddress(req Request) Response {
	var params struct {
		Registry common.Address `json:"registry"`
		Name     string         `json:"name"`
		Creator  common.Address `json:"creator"`
	}
	if resp := decodeParams(req, &params); resp != nil {
		return *resp
	}
	if params.Name == "" {
		return errResponse(req.ID, CodeInvalidParams, "name is required")
	}
	addr, err := arcade.RegistryAt(h.view(), arcade.Env{}, params.Registry).PredictGameAddress(params.Name, params.Creator)
	if err != nil {
		return stateErr(req.ID, err)
	}
	return okResponse(req.ID, addr)
}

func (h *Handler) getGamesByCreator(req Request) Response {
	var params struct {
		Creator common.Address `json:"creator"`
	}
	if resp := decodeParams(req, &params); resp != nil {
		return *resp
	}
	if resp := requireAddr(req, "creator", params.Creator); resp != nil {
		return *resp
	}
	games, err := h.indexer.GetGamesByCreator(params.Creator)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, nonNil(games))
}

func (h *Handler) getGamesByPlayer(req Request) Response {
	var params struct {
		Player common.Address `json:"player"`
	}
	if resp := decodeParams(req, &params); resp != nil {
		return *resp
	}
	if resp := requireAddr(req, "player", params.Player); resp != nil {
		return *resp
	}
	games, err := h.indexer.GetGamesByPlayer(params.Player)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, nonNil(games))
}

func (h *Handler) getCredentialsByOwner(req Request) Response {
	var params struct {
		Owner common.Address `json:"owner"`
	}
	if resp := decodeParams(req, &params); resp != nil {
		return *resp
	}
	if resp := requireAddr(req, "owner", params.Owner); resp != nil {
		return *resp
	}
	refs, err := h.indexer.GetCredentialsByOwner(params.Owner)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, nonNil(refs))
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func (h *Handler) sendTx(req Request) Response {
	var tx core.Transaction
	if resp := decodeParams(req, &tx); resp != nil {
		return *resp
	}
	// Reject transactions destined for a different network to prevent
	// cross-chain replay attacks.
	if tx.ChainID != h.chainID {
		return errResponse(req.ID, CodeInvalidParams,
			fmt.Sprintf("chain ID mismatch: got %d want %d", tx.ChainID, h.chainID))
	}
	// The mempool recomputes the ID; the client-provided value is ignored.
	if err := h.mempool.Add(&tx); err != nil {
		return errResponse(req.ID, CodeRejectedTx, err.Error())
	}
	return okResponse(req.ID, map[string]string{"tx_id": tx.ID})
}
