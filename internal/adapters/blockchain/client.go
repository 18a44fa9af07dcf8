package blockchain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/bancorprotocol/carbon-migrate/internal/domain"
	"github.com/bancorprotocol/carbon-migrate/internal/domain/models"
	"github.com/bancorprotocol/carbon-migrate/internal/usecase"
)

// ImplementationSlot is the EIP-1967 storage slot holding a proxy's
// implementation address
var ImplementationSlot = common.HexToHash("0x360894a13ba1a3210667c828492db98dca3e2076cc3735a920a3ca505d382bbc")

// blockPollInterval is how often the head is polled while waiting for
// confirmations
const blockPollInterval = 2 * time.Second

// backend is the part of ethclient the client needs
type backend interface {
	bind.DeployBackend
	ethereum.ChainStateReader
	ethereum.ContractCaller
	ethereum.GasEstimator
	ethereum.GasPricer
	ethereum.PendingStateReader
	ethereum.TransactionSender
	ethereum.BlockNumberReader
}

// rpcCaller sends raw JSON-RPC requests
type rpcCaller interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
}

// Client sends transactions and reads state on one network. Send holds a
// mutex across signing, sending and confirmation, so a network never has
// two transactions in flight.
type Client struct {
	network *models.Network
	eth     backend
	rpc     rpcCaller
	chainID *big.Int
	closer  func()
	log     *slog.Logger

	mu      sync.Mutex
	key     *keySigner
	signers map[common.Address]txSigner
}

func newClient(network *models.Network, eth backend, rpc rpcCaller, closer func(), log *slog.Logger) (*Client, error) {
	c := &Client{
		network: network,
		eth:     eth,
		rpc:     rpc,
		chainID: new(big.Int).SetUint64(network.ChainID),
		closer:  closer,
		log:     log.With("network", network.Name),
		signers: make(map[common.Address]txSigner),
	}
	if network.Signer.Type == models.SignerPrivateKey {
		key, err := newKeySigner(network.Signer.PrivateKey)
		if err != nil {
			return nil, domain.NewConfigurationError("network "+network.Name, "%v", err)
		}
		c.key = key
	}
	return c, nil
}

func (c *Client) ChainID() uint64 { return c.network.ChainID }

// Send signs, sends and confirms a transaction
func (c *Client) Send(ctx context.Context, req usecase.TxRequest) (*usecase.TxReceipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.network.Signer.Type == models.SignerImpersonate {
		hash, err := c.sendImpersonated(ctx, req)
		if err != nil {
			return nil, err
		}
		return c.wait(ctx, hash)
	}

	signer, err := c.signerFor(req.From)
	if err != nil {
		return nil, err
	}

	tx, err := c.buildTx(ctx, req)
	if err != nil {
		return nil, err
	}
	signed, err := signer.Sign(ctx, tx, c.chainID)
	if err != nil {
		return nil, &domain.TransactionError{Kind: domain.TxRejected, Err: err}
	}

	c.log.Debug("sending transaction", "from", req.From.Address.Hex(), "hash", signed.Hash().Hex(), "nonce", signed.Nonce())
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return nil, classifyError(err, signed.Hash())
	}
	return c.wait(ctx, signed.Hash())
}

// signerFor picks the signer for a step's sender and checks it controls the
// sender address
func (c *Client) signerFor(from models.Account) (txSigner, error) {
	var signer txSigner
	switch c.network.Signer.Type {
	case models.SignerPrivateKey:
		signer = c.key
	case models.SignerLedger:
		s, err := c.ledgerSigner(from.Address, c.network.Signer.DerivationPath)
		if err != nil {
			return nil, &domain.TransactionError{Kind: domain.TxRejected, Err: err}
		}
		signer = s
	case models.SignerNone:
		return nil, &domain.TransactionError{Kind: domain.TxRejected, Err: fmt.Errorf("network %s is read-only", c.network.Name)}
	default:
		if !from.Ledger {
			return nil, &domain.TransactionError{Kind: domain.TxRejected, Err: fmt.Errorf("no signer for %s: use a ledger:// account or configure a network signer", from)}
		}
		s, err := c.ledgerSigner(from.Address, "")
		if err != nil {
			return nil, &domain.TransactionError{Kind: domain.TxRejected, Err: err}
		}
		signer = s
	}

	if signer.Address() != from.Address {
		return nil, &domain.TransactionError{
			Kind: domain.TxRejected,
			Err:  fmt.Errorf("signer %s does not control sender %s", signer.Address().Hex(), from),
		}
	}
	return signer, nil
}

func (c *Client) ledgerSigner(addr common.Address, path string) (txSigner, error) {
	if s, ok := c.signers[addr]; ok {
		return s, nil
	}
	s, err := openLedgerSigner(addr, path)
	if err != nil {
		return nil, err
	}
	c.signers[addr] = s
	return s, nil
}

func (c *Client) buildTx(ctx context.Context, req usecase.TxRequest) (*types.Transaction, error) {
	from := req.From.Address
	value := req.Value
	if value == nil {
		value = new(big.Int)
	}

	nonce, err := c.eth.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, classifyError(fmt.Errorf("failed to get nonce: %w", err), common.Hash{})
	}

	gasPrice := c.network.GasPrice.Wei
	if gasPrice == nil {
		if gasPrice, err = c.eth.SuggestGasPrice(ctx); err != nil {
			return nil, classifyError(fmt.Errorf("failed to get gas price: %w", err), common.Hash{})
		}
	}

	gas := c.network.GasLimit
	if gas == 0 {
		estimate, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{
			From:     from,
			To:       req.To,
			GasPrice: gasPrice,
			Value:    value,
			Data:     req.Data,
		})
		if err != nil {
			return nil, classifyError(fmt.Errorf("failed to estimate gas: %w", err), common.Hash{})
		}
		gas = estimate + estimate/5
	}

	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       req.To,
		Value:    value,
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     req.Data,
	}), nil
}

// sendImpersonated relies on the node signing for any sender, as forks with
// auto-impersonation do
func (c *Client) sendImpersonated(ctx context.Context, req usecase.TxRequest) (common.Hash, error) {
	args := map[string]interface{}{
		"from": req.From.Address,
		"data": hexutil.Bytes(req.Data),
	}
	if req.To != nil {
		args["to"] = req.To
	}
	if req.Value != nil {
		args["value"] = (*hexutil.Big)(req.Value)
	}
	if c.network.GasLimit > 0 {
		args["gas"] = hexutil.Uint64(c.network.GasLimit)
	}
	if !c.network.GasPrice.Auto() {
		args["gasPrice"] = (*hexutil.Big)(c.network.GasPrice.Wei)
	}

	var hash common.Hash
	if err := c.rpc.CallContext(ctx, &hash, "eth_sendTransaction", args); err != nil {
		return common.Hash{}, classifyError(err, common.Hash{})
	}
	c.log.Debug("sent impersonated transaction", "from", req.From.Address.Hex(), "hash", hash.Hex())
	return hash, nil
}

// wait blocks until the transaction is mined and has the configured number
// of confirmations, bounded by the network's confirm timeout
func (c *Client) wait(ctx context.Context, hash common.Hash) (*usecase.TxReceipt, error) {
	if c.network.ConfirmTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.network.ConfirmTimeout)
		defer cancel()
	}

	receipt, err := c.waitMined(ctx, hash)
	if err != nil {
		return nil, classifyError(err, hash)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, &domain.TransactionError{Kind: domain.TxReverted, TxHash: hash, Err: errors.New("receipt status 0")}
	}

	if c.network.Confirmations > 1 {
		target := receipt.BlockNumber.Uint64() + c.network.Confirmations - 1
		if err := c.waitBlock(ctx, target); err != nil {
			return nil, classifyError(err, hash)
		}
	}

	return &usecase.TxReceipt{
		Hash:            hash,
		ContractAddress: receipt.ContractAddress,
		BlockNumber:     receipt.BlockNumber.Uint64(),
		GasUsed:         receipt.GasUsed,
	}, nil
}

func (c *Client) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		receipt, err := c.eth.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			c.log.Debug("receipt lookup failed", "hash", hash.Hex(), "error", err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) waitBlock(ctx context.Context, target uint64) error {
	ticker := time.NewTicker(blockPollInterval)
	defer ticker.Stop()
	for {
		head, err := c.eth.BlockNumber(ctx)
		if err == nil && head >= target {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Call runs a read-only call against the latest block
func (c *Client) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
}

// ImplementationOf reads the EIP-1967 implementation slot of a proxy
func (c *Client) ImplementationOf(ctx context.Context, proxy common.Address) (common.Address, error) {
	raw, err := c.eth.StorageAt(ctx, proxy, ImplementationSlot, nil)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to read implementation slot of %s: %w", proxy.Hex(), err)
	}
	return common.BytesToAddress(raw), nil
}

// CodeAt returns the runtime code deployed at addr
func (c *Client) CodeAt(ctx context.Context, addr common.Address) ([]byte, error) {
	code, err := c.eth.CodeAt(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read code at %s: %w", addr.Hex(), err)
	}
	return code, nil
}

// Close releases the RPC connection and any open hardware wallets
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for addr, s := range c.signers {
		if ls, ok := s.(*ledgerSigner); ok {
			if err := ls.Close(); err != nil {
				c.log.Warn("failed to close Ledger", "account", addr.Hex(), "error", err)
			}
		}
	}
	if c.closer != nil {
		c.closer()
	}
}

var _ usecase.ChainClient = (*Client)(nil)
