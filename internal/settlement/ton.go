package settlement

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/Astralabs2050/render-backend-sub000/internal/config"
	"github.com/Astralabs2050/render-backend-sub000/internal/services"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/liteclient"
	"github.com/xssnick/tonutils-go/ton"
	"go.uber.org/zap"
)

const txScanLimit = 256

// TONAdapter settles escrows against the platform escrow wallet on TON.
// Per-escrow separation happens via transfer memos, so "deploying a contract"
// resolves the shared wallet and checks it is live on chain rather than
// pushing bytecode.
type TONAdapter struct {
	api    ton.APIClientWrapped
	wallet *address.Address
	log    *zap.Logger
}

// Connect establishes a lite client connection. With LITE_SERVER_HOST +
// LITE_SERVER_KEY set it talks to that server, otherwise it auto-discovers
// lite servers from the global TON config for the configured network.
func Connect(ctx context.Context, cfg *config.Config, log *zap.Logger) (*TONAdapter, error) {
	wallet, err := address.ParseAddr(cfg.TONEscrowWalletAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid TON_ESCROW_WALLET_ADDRESS %q: %w", cfg.TONEscrowWalletAddress, err)
	}

	client := liteclient.NewConnectionPool()

	if cfg.LiteServerHost != "" && cfg.LiteServerKey != "" {
		addr := fmt.Sprintf("%s:%d", cfg.LiteServerHost, cfg.LiteServerPort)
		log.Info("connecting to lite server", zap.String("addr", addr))
		if err := client.AddConnection(ctx, addr, cfg.LiteServerKey); err != nil {
			return nil, fmt.Errorf("connect to lite server %s: %w", addr, err)
		}
	} else {
		var configURL string
		switch strings.ToLower(cfg.TONNetwork) {
		case "mainnet":
			configURL = "https://ton.org/global.config.json"
		default:
			configURL = "https://ton.org/testnet-global.config.json"
		}
		log.Info("connecting via global config", zap.String("url", configURL), zap.String("network", cfg.TONNetwork))
		if err := client.AddConnectionsFromConfigUrl(ctx, configURL); err != nil {
			return nil, fmt.Errorf("connect via config %s: %w", configURL, err)
		}
	}

	proofPolicy := ton.ProofCheckPolicyFast
	if strings.ToLower(cfg.TONNetwork) == "mainnet" {
		proofPolicy = ton.ProofCheckPolicySecure
	}

	api := ton.NewAPIClient(client, proofPolicy).WithRetry()
	return &TONAdapter{api: api, wallet: wallet, log: log}, nil
}

// DeployContract resolves the settlement address for a new escrow. The
// wallet must be active on chain; an uninitialized wallet would silently
// swallow deposits.
func (a *TONAdapter) DeployContract(ctx context.Context) (string, error) {
	block, err := a.api.CurrentMasterchainInfo(ctx)
	if err != nil {
		return "", fmt.Errorf("get master block: %w", err)
	}
	account, err := a.api.GetAccount(ctx, block, a.wallet)
	if err != nil {
		return "", fmt.Errorf("get escrow wallet account: %w", err)
	}
	if account == nil || !account.IsActive {
		return "", fmt.Errorf("escrow wallet %s is not active on chain", a.wallet.String())
	}
	return a.wallet.String(), nil
}

// VerifyPayment scans the escrow wallet's recent transactions for the given
// reference. A reference is either a hex transaction hash or a decimal
// logical time. Found: confirmed. Not found within the scan window: pending
// (the transfer may not have reached the wallet yet).
func (a *TONAdapter) VerifyPayment(ctx context.Context, txRef string) (services.PaymentStatus, error) {
	txRef = strings.TrimSpace(txRef)
	if txRef == "" {
		return services.PaymentFailed, fmt.Errorf("empty transaction reference")
	}

	wantHash, _ := hex.DecodeString(strings.TrimPrefix(txRef, "0x"))
	wantLT, _ := strconv.ParseUint(txRef, 10, 64)
	if len(wantHash) == 0 && wantLT == 0 {
		return services.PaymentFailed, fmt.Errorf("transaction reference %q is neither a hash nor a logical time", txRef)
	}

	block, err := a.api.CurrentMasterchainInfo(ctx)
	if err != nil {
		return services.PaymentPending, fmt.Errorf("get master block: %w", err)
	}
	account, err := a.api.GetAccount(ctx, block, a.wallet)
	if err != nil {
		return services.PaymentPending, fmt.Errorf("get escrow wallet account: %w", err)
	}
	if account == nil || !account.IsActive || account.LastTxLT == 0 {
		return services.PaymentPending, nil
	}

	lt := account.LastTxLT
	hash := account.LastTxHash
	scanned := 0

	for scanned < txScanLimit {
		txs, err := a.api.ListTransactions(ctx, a.wallet, 16, lt, hash)
		if err != nil {
			return services.PaymentPending, fmt.Errorf("list transactions (lt=%d): %w", lt, err)
		}
		if len(txs) == 0 {
			break
		}

		for _, tx := range txs {
			scanned++
			if wantLT != 0 && tx.LT == wantLT {
				return services.PaymentConfirmed, nil
			}
			if len(wantHash) > 0 && string(tx.Hash) == string(wantHash) {
				return services.PaymentConfirmed, nil
			}
		}

		oldest := txs[0]
		if oldest.PrevTxLT == 0 {
			break
		}
		lt = oldest.PrevTxLT
		hash = oldest.PrevTxHash
	}

	a.log.Debug("transaction reference not found in scan window",
		zap.String("tx_ref", txRef), zap.Int("scanned", scanned))
	return services.PaymentPending, nil
}
