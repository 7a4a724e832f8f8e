// Package evm implements the ledger interface against an EVM chain with
// go-ethereum. Writes are relayed: the adapter signs with the platform
// operator key and passes actor addresses as call arguments; the contract
// trusts the operator role for relayed actions.
package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"brickvault/internal/ledger"
	"brickvault/internal/platform/config"
	"brickvault/pkg/platform/sentinel"
)

// Client talks to the issuance contract. Safe for concurrent use; relayed
// writes are serialized through the nonce mutex.
type Client struct {
	eth      *ethclient.Client
	rpc      *rpc.Client
	abi      abi.ABI
	contract common.Address

	chainID  *big.Int
	key      *ecdsa.PrivateKey
	operator common.Address

	confirmTimeout time.Duration
	pollInterval   time.Duration
	logger         *slog.Logger

	nonceMu sync.Mutex
}

var _ ledger.Client = (*Client)(nil)

// Dial connects, verifies the configured chain ID, and prepares the operator
// signer. The chain identity is fixed here for the life of the client.
func Dial(ctx context.Context, cfg config.ChainConfig, logger *slog.Logger) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial chain rpc: %w", err)
	}
	eth := ethclient.NewClient(rpcClient)

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("read chain id: %w", err)
	}
	if cfg.ChainID != 0 && chainID.Uint64() != cfg.ChainID {
		rpcClient.Close()
		return nil, fmt.Errorf("chain id mismatch: configured %d, node reports %d", cfg.ChainID, chainID)
	}

	parsed, err := abi.JSON(strings.NewReader(issuanceABI))
	if err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("parse contract abi: %w", err)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.OperatorKey, "0x"))
	if err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("parse operator key: %w", err)
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		rpcClient.Close()
		return nil, fmt.Errorf("invalid contract address %q", cfg.ContractAddress)
	}

	return &Client{
		eth:            eth,
		rpc:            rpcClient,
		abi:            parsed,
		contract:       common.HexToAddress(cfg.ContractAddress),
		chainID:        chainID,
		key:            key,
		operator:       crypto.PubkeyToAddress(key.PublicKey),
		confirmTimeout: cfg.ConfirmTimeout,
		pollInterval:   cfg.PollInterval,
		logger:         logger,
	}, nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() { c.rpc.Close() }

func roleHash(role ledger.Role) common.Hash {
	return crypto.Keccak256Hash([]byte(role))
}

// call packs, executes, and unpacks a single view method.
func (c *Client) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &c.contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %v: %w", method, err, sentinel.ErrUnavailable)
	}
	values, err := c.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

// batchCall executes several view methods in one RPC round trip. Each element
// is an independent snapshot; this batching bounds latency, nothing more.
func (c *Client) batchCall(ctx context.Context, methods []string, argLists [][]interface{}) ([][]interface{}, error) {
	elems := make([]rpc.BatchElem, len(methods))
	results := make([]hexutil.Bytes, len(methods))
	for i, method := range methods {
		data, err := c.abi.Pack(method, argLists[i]...)
		if err != nil {
			return nil, fmt.Errorf("pack %s: %w", method, err)
		}
		elems[i] = rpc.BatchElem{
			Method: "eth_call",
			Args: []interface{}{
				map[string]interface{}{"to": c.contract, "data": hexutil.Bytes(data)},
				"latest",
			},
			Result: &results[i],
		}
	}
	if err := c.rpc.BatchCallContext(ctx, elems); err != nil {
		return nil, fmt.Errorf("batch call: %v: %w", err, sentinel.ErrUnavailable)
	}

	out := make([][]interface{}, len(methods))
	for i, method := range methods {
		if elems[i].Error != nil {
			return nil, fmt.Errorf("batch call %s: %v: %w", method, elems[i].Error, sentinel.ErrUnavailable)
		}
		values, err := c.abi.Unpack(method, results[i])
		if err != nil {
			return nil, fmt.Errorf("unpack %s: %w", method, err)
		}
		out[i] = values
	}
	return out, nil
}

// transact signs and submits a state-changing call and returns a future that
// resolves when the transaction is mined, reverts, or times out.
func (c *Client) transact(ctx context.Context, method string, args ...interface{}) (*ledger.PendingTx, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	c.nonceMu.Lock()
	defer c.nonceMu.Unlock()

	nonce, err := c.eth.PendingNonceAt(ctx, c.operator)
	if err != nil {
		return nil, fmt.Errorf("read nonce: %v: %w", err, sentinel.ErrUnavailable)
	}
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas price: %v: %w", err, sentinel.ErrUnavailable)
	}
	gasLimit, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{
		From: c.operator,
		To:   &c.contract,
		Data: data,
	})
	if err != nil {
		// Estimation runs the call; a failure here is the contract rejecting
		// the transition before anything was submitted.
		return nil, fmt.Errorf("%s: %v: %w", method, err, sentinel.ErrReverted)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &c.contract,
		Gas:      gasLimit + gasLimit/5,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return nil, fmt.Errorf("sign %s: %w", method, err)
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("send %s: %v: %w", method, err, sentinel.ErrUnavailable)
	}

	pending := ledger.NewPendingTx(signed.Hash())
	go c.awaitReceipt(pending, method)
	return pending, nil
}

// awaitReceipt polls for the receipt until mined or the confirm timeout
// elapses. A submitted transaction cannot be retracted; TimedOut means
// "unknown at deadline", not "cancelled".
func (c *Client) awaitReceipt(pending *ledger.PendingTx, method string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.eth.TransactionReceipt(ctx, pending.Hash())
		if err == nil && receipt != nil {
			result := ledger.TxResult{
				Outcome: ledger.TxConfirmed,
				Receipt: &ledger.Receipt{
					TxHash:      pending.Hash(),
					BlockNumber: receipt.BlockNumber.Uint64(),
					GasUsed:     receipt.GasUsed,
				},
			}
			if receipt.Status != types.ReceiptStatusSuccessful {
				result = ledger.TxResult{Outcome: ledger.TxReverted, RevertReason: "execution reverted"}
			}
			pending.Resolve(result)
			return
		}

		select {
		case <-ctx.Done():
			c.logger.Warn("ledger tx never confirmed",
				"method", method,
				"tx_hash", pending.Hash().Hex(),
				"timeout", c.confirmTimeout.String(),
			)
			pending.Resolve(ledger.TxResult{Outcome: ledger.TxTimedOut})
			return
		case <-ticker.C:
		}
	}
}

func (c *Client) HasRole(ctx context.Context, role ledger.Role, account common.Address) (bool, error) {
	values, err := c.call(ctx, "hasRole", roleHash(role), account)
	if err != nil {
		return false, err
	}
	return values[0].(bool), nil
}

func (c *Client) GetApplication(ctx context.Context, applicant common.Address) (ledger.Application, error) {
	values, err := c.call(ctx, "getApplication", applicant)
	if err != nil {
		return ledger.Application{}, err
	}
	status, err := ledger.StatusFromChain(values[1].(uint8))
	if err != nil {
		return ledger.Application{}, err
	}
	return ledger.Application{
		Applicant:     applicant,
		ApplicationID: values[0].(string),
		Status:        status,
	}, nil
}

func (c *Client) ApplyForPublisher(ctx context.Context, applicant common.Address, applicationID string) (*ledger.PendingTx, error) {
	return c.transact(ctx, "applyForPublisher", applicant, applicationID)
}

func (c *Client) ReviewPublisherApplication(ctx context.Context, _ common.Address, applicant common.Address, approve bool) (*ledger.PendingTx, error) {
	return c.transact(ctx, "reviewPublisherApplication", applicant, approve)
}

func (c *Client) WithdrawApplication(ctx context.Context, applicant common.Address) (*ledger.PendingTx, error) {
	return c.transact(ctx, "withdrawApplication", applicant)
}

func (c *Client) NextPropertyID(ctx context.Context) (uint64, error) {
	values, err := c.call(ctx, "nextPropertyId")
	if err != nil {
		return 0, err
	}
	return values[0].(*big.Int).Uint64(), nil
}

func (c *Client) GetProperty(ctx context.Context, propertyID uint64) (ledger.Property, error) {
	values, err := c.call(ctx, "getProperty", new(big.Int).SetUint64(propertyID))
	if err != nil {
		return ledger.Property{}, err
	}
	return decodeProperty(propertyID, values), nil
}

func (c *Client) GetProperties(ctx context.Context, propertyIDs []uint64) ([]ledger.Property, error) {
	if len(propertyIDs) == 0 {
		return nil, nil
	}
	methods := make([]string, len(propertyIDs))
	argLists := make([][]interface{}, len(propertyIDs))
	for i, id := range propertyIDs {
		methods[i] = "getProperty"
		argLists[i] = []interface{}{new(big.Int).SetUint64(id)}
	}
	batches, err := c.batchCall(ctx, methods, argLists)
	if err != nil {
		return nil, err
	}
	out := make([]ledger.Property, len(propertyIDs))
	for i, values := range batches {
		out[i] = decodeProperty(propertyIDs[i], values)
	}
	return out, nil
}

func (c *Client) CreateProperty(ctx context.Context, publisher common.Address, def ledger.PropertyDefinition) (*ledger.PendingTx, error) {
	return c.transact(ctx, "createProperty",
		publisher, def.Name, def.Location, def.MetadataURI,
		def.MaxSupply, def.UnitPriceWei, uint16(def.AnnualYieldBps))
}

func (c *Client) SetPropertyFinancials(ctx context.Context, propertyID uint64, unitPriceWei *big.Int, annualYieldBps uint32) (*ledger.PendingTx, error) {
	return c.transact(ctx, "setPropertyFinancials",
		new(big.Int).SetUint64(propertyID), unitPriceWei, uint16(annualYieldBps))
}

func (c *Client) SetProjectEndTime(ctx context.Context, propertyID uint64, endTime uint64) (*ledger.PendingTx, error) {
	return c.transact(ctx, "setProjectEndTime",
		new(big.Int).SetUint64(propertyID), new(big.Int).SetUint64(endTime))
}

func (c *Client) DepositYield(ctx context.Context, from common.Address, propertyID uint64, amount *big.Int) (*ledger.PendingTx, error) {
	return c.transact(ctx, "depositYield", from, new(big.Int).SetUint64(propertyID), amount)
}

func (c *Client) ClaimYield(ctx context.Context, holder common.Address, propertyID uint64) (*ledger.PendingTx, error) {
	return c.transact(ctx, "claimYield", holder, new(big.Int).SetUint64(propertyID))
}

func (c *Client) GetYieldPool(ctx context.Context, propertyID uint64) (*big.Int, error) {
	values, err := c.call(ctx, "getYieldPool", new(big.Int).SetUint64(propertyID))
	if err != nil {
		return nil, err
	}
	return values[0].(*big.Int), nil
}

func (c *Client) GetClaimableYield(ctx context.Context, propertyID uint64, holder common.Address) (*big.Int, error) {
	values, err := c.call(ctx, "getClaimableYield", new(big.Int).SetUint64(propertyID), holder)
	if err != nil {
		return nil, err
	}
	return values[0].(*big.Int), nil
}

func (c *Client) CalculateAnnualYield(ctx context.Context, propertyID uint64) (*big.Int, error) {
	values, err := c.call(ctx, "calculateAnnualYield", new(big.Int).SetUint64(propertyID))
	if err != nil {
		return nil, err
	}
	return values[0].(*big.Int), nil
}

func (c *Client) CalculateRequiredGuaranteeFund(ctx context.Context, propertyID uint64) (*big.Int, error) {
	values, err := c.call(ctx, "calculateRequiredGuaranteeFund", new(big.Int).SetUint64(propertyID))
	if err != nil {
		return nil, err
	}
	return values[0].(*big.Int), nil
}

func (c *Client) IsGuaranteeFundSufficient(ctx context.Context, propertyID uint64) (bool, error) {
	values, err := c.call(ctx, "isGuaranteeFundSufficient", new(big.Int).SetUint64(propertyID))
	if err != nil {
		return false, err
	}
	return values[0].(bool), nil
}

// FundingStatus reads the reserve requirement, the deposited pool, and the
// sufficiency flag in one batched round trip.
func (c *Client) FundingStatus(ctx context.Context, propertyID uint64) (ledger.FundingStatus, error) {
	id := new(big.Int).SetUint64(propertyID)
	batches, err := c.batchCall(ctx,
		[]string{"calculateRequiredGuaranteeFund", "getYieldPool", "isGuaranteeFundSufficient"},
		[][]interface{}{{id}, {id}, {id}},
	)
	if err != nil {
		return ledger.FundingStatus{}, err
	}
	return ledger.FundingStatus{
		Required:   batches[0][0].(*big.Int),
		Deposited:  batches[1][0].(*big.Int),
		Sufficient: batches[2][0].(bool),
	}, nil
}

func decodeProperty(id uint64, values []interface{}) ledger.Property {
	return ledger.Property{
		ID:             id,
		Name:           values[0].(string),
		Location:       values[1].(string),
		MetadataURI:    values[2].(string),
		TokenID:        values[3].(*big.Int).Uint64(),
		Publisher:      values[4].(common.Address),
		TotalSupply:    values[5].(*big.Int),
		MaxSupply:      values[6].(*big.Int),
		UnitPriceWei:   values[7].(*big.Int),
		AnnualYieldBps: uint32(values[8].(uint16)),
		LastYieldAt:    values[9].(*big.Int).Uint64(),
		Active:         values[10].(bool),
		ProjectEndTime: values[11].(*big.Int).Uint64(),
	}
}
