// Package chain submits approved markets to the on-chain market factory.
package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/listingbot/internal/domain"
)

const (
	defaultReceiptTimeout = 3 * time.Minute
	defaultPollInterval   = 2 * time.Second
	defaultGasFallback    = 8_000_000
)

// Backend is the part of ethclient.Client the submitter uses.
type Backend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Config configures a Client.
type Config struct {
	ChainID          int64
	FactoryAddress   string
	GasLimitFallback uint64
	ReceiptTimeout   time.Duration
}

// Client implements domain.ChainClient with legacy EIP-155 transactions.
type Client struct {
	backend      Backend
	key          *ecdsa.PrivateKey
	from         common.Address
	factory      common.Address
	chainID      *big.Int
	gasFallback  uint64
	timeout      time.Duration
	pollInterval time.Duration
	abi          abi.ABI
	logger       *slog.Logger
}

// NewClient creates a Client that signs with key.
func NewClient(backend Backend, key *ecdsa.PrivateKey, cfg Config, logger *slog.Logger) (*Client, error) {
	if !common.IsHexAddress(cfg.FactoryAddress) {
		return nil, fmt.Errorf("chain: invalid factory address %q", cfg.FactoryAddress)
	}
	if key == nil {
		return nil, errors.New("chain: signing key is required")
	}
	parsed, err := abi.JSON(strings.NewReader(factoryABI))
	if err != nil {
		return nil, fmt.Errorf("chain: parse abi: %w", err)
	}
	if cfg.GasLimitFallback == 0 {
		cfg.GasLimitFallback = defaultGasFallback
	}
	if cfg.ReceiptTimeout <= 0 {
		cfg.ReceiptTimeout = defaultReceiptTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		backend:      backend,
		key:          key,
		from:         ethcrypto.PubkeyToAddress(key.PublicKey),
		factory:      common.HexToAddress(cfg.FactoryAddress),
		chainID:      big.NewInt(cfg.ChainID),
		gasFallback:  cfg.GasLimitFallback,
		timeout:      cfg.ReceiptTimeout,
		pollInterval: defaultPollInterval,
		abi:          parsed,
		logger:       logger.With(slog.String("component", "chain")),
	}, nil
}

// From returns the signer address.
func (c *Client) From() common.Address {
	return c.from
}

// Submit sends createMarket for m and waits for it to be mined.
func (c *Client) Submit(ctx context.Context, m domain.ChainMarket) (domain.ChainReceipt, error) {
	data, err := c.abi.Pack("createMarket", m.Question, m.Options, big.NewInt(m.Expiry.Unix()), m.Category, m.BannerURL)
	if err != nil {
		return domain.ChainReceipt{}, fmt.Errorf("chain: pack createMarket: %w", err)
	}

	nonce, err := c.backend.PendingNonceAt(ctx, c.from)
	if err != nil {
		return domain.ChainReceipt{}, fmt.Errorf("chain: pending nonce: %w", err)
	}
	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return domain.ChainReceipt{}, fmt.Errorf("chain: gas price: %w", err)
	}
	gas, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:     c.from,
		To:       &c.factory,
		GasPrice: gasPrice,
		Data:     data,
	})
	if err != nil {
		c.logger.WarnContext(ctx, "gas estimation failed, using fallback",
			slog.Uint64("gas", c.gasFallback),
			slog.String("error", err.Error()),
		)
		gas = c.gasFallback
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &c.factory,
		Value:    big.NewInt(0),
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.NewEIP155Signer(c.chainID), c.key)
	if err != nil {
		return domain.ChainReceipt{}, fmt.Errorf("chain: sign tx: %w", err)
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return domain.ChainReceipt{}, fmt.Errorf("chain: send tx: %w", err)
	}
	c.logger.InfoContext(ctx, "createMarket sent",
		slog.String("tx", signed.Hash().Hex()),
		slog.Uint64("nonce", nonce),
		slog.Uint64("gas", gas),
	)

	receipt, err := c.waitMined(ctx, signed.Hash())
	if err != nil {
		return domain.ChainReceipt{}, err
	}

	out := domain.ChainReceipt{
		TxHash:      signed.Hash().Hex(),
		BlockNumber: receipt.BlockNumber.Uint64(),
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return out, fmt.Errorf("chain: createMarket %s: %w", out.TxHash, domain.ErrTxReverted)
	}
	out.MarketID = c.marketID(receipt)
	if out.MarketID == "" {
		c.logger.WarnContext(ctx, "MarketCreated event not found in receipt", slog.String("tx", out.TxHash))
	}
	return out, nil
}

// waitMined polls for the receipt until it appears or the receipt timeout
// passes.
func (c *Client) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		switch {
		case err == nil && receipt != nil:
			return receipt, nil
		case err != nil && !errors.Is(err, ethereum.NotFound):
			c.logger.DebugContext(ctx, "receipt lookup failed", slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("chain: wait for %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// marketID extracts the id from the factory's MarketCreated log.
func (c *Client) marketID(receipt *types.Receipt) string {
	ev, ok := c.abi.Events["MarketCreated"]
	if !ok {
		return ""
	}
	for _, l := range receipt.Logs {
		if l == nil || l.Address != c.factory || len(l.Topics) < 2 || l.Topics[0] != ev.ID {
			continue
		}
		return new(big.Int).SetBytes(l.Topics[1].Bytes()).String()
	}
	return ""
}

var _ domain.ChainClient = (*Client)(nil)
