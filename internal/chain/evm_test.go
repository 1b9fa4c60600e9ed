package chain

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/dex-cli/internal/errors"
	"github.com/ggonzalez94/dex-cli/internal/registry"
	"github.com/ggonzalez94/dex-cli/internal/signer"
)

const testPrivateKey = "59c6995e998f97a5a0044976f0945388cf9b7e5e5f4f9d2d9d8f1f5b7f6d11d1"

var (
	testToken0 = common.HexToAddress("0x8F8d4529C06b9f8A8EA2049de9fcE5FBE99453CC")
	testToken1 = common.HexToAddress("0xc5C45CAe44dA4eD5F767d38ADBa00C7B56125fDa")
)

type rpcRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

type callArgs struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Input string `json:"input"`
	Data  string `json:"data"`
}

func (a callArgs) calldata() []byte {
	if a.Input != "" {
		return common.FromHex(a.Input)
	}
	return common.FromHex(a.Data)
}

// mockNode answers the eth_* methods the EVM client uses. ethCall decides the
// eth_call result per selector.
type mockNode struct {
	t       *testing.T
	mu      sync.Mutex
	methods []string
	ethCall func(selector string, args callArgs) (string, *rpcErrorBody)
	receipt string
}

type rpcErrorBody struct {
	Code    int
	Message string
	Data    string
}

func (m *mockNode) seen(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, got := range m.methods {
		if got == method {
			n++
		}
	}
	return n
}

func (m *mockNode) serve() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		m.mu.Lock()
		m.methods = append(m.methods, req.Method)
		m.mu.Unlock()

		switch req.Method {
		case "eth_chainId":
			writeRPCResult(w, req.ID, "0xaa36a7")
		case "eth_call", "eth_estimateGas":
			var args callArgs
			if len(req.Params) > 0 {
				_ = json.Unmarshal(req.Params[0], &args)
			}
			data := args.calldata()
			selector := ""
			if len(data) >= 4 {
				selector = hex.EncodeToString(data[:4])
			}
			result, rpcErr := m.ethCall(selector, args)
			if rpcErr != nil {
				writeRPCDataError(w, req.ID, rpcErr)
				return
			}
			if req.Method == "eth_estimateGas" {
				writeRPCResult(w, req.ID, "0x30d40")
				return
			}
			writeRPCResult(w, req.ID, result)
		case "eth_maxPriorityFeePerGas":
			writeRPCResult(w, req.ID, "0x3b9aca00")
		case "eth_getBlockByNumber":
			writeRPCRaw(w, req.ID, testHeaderJSON)
		case "eth_getTransactionCount":
			writeRPCResult(w, req.ID, "0x7")
		case "eth_sendRawTransaction":
			writeRPCResult(w, req.ID, "0x"+strings.Repeat("ab", 32))
		case "eth_getTransactionReceipt":
			var hash string
			if len(req.Params) > 0 {
				_ = json.Unmarshal(req.Params[0], &hash)
			}
			if m.receipt == "" {
				writeRPCRaw(w, req.ID, "null")
				return
			}
			writeRPCRaw(w, req.ID, fmt.Sprintf(m.receipt, hash))
		default:
			writeRPCError(w, req.ID, -32601, fmt.Sprintf("method not supported in test: %s", req.Method))
		}
	}))
}

func selectorOf(contract abi.ABI, method string) string {
	return hex.EncodeToString(contract.Methods[method].ID)
}

func packOutputs(t *testing.T, contract abi.ABI, method string, values ...any) string {
	t.Helper()
	out, err := contract.Methods[method].Outputs.Pack(values...)
	if err != nil {
		t.Fatalf("pack %s output: %v", method, err)
	}
	return "0x" + hex.EncodeToString(out)
}

func testContracts() registry.DEXContracts {
	return registry.DEXContracts{
		PoolManager:     "0x00000000000000000000000000000000000000a1",
		PositionManager: "0x00000000000000000000000000000000000000a2",
		SwapRouter:      "0x00000000000000000000000000000000000000a3",
	}
}

func newTestEVM(t *testing.T, node *mockNode, wallet Wallet, opts Options) *EVM {
	t.Helper()
	server := node.serve()
	t.Cleanup(server.Close)
	client, err := Dial(context.Background(), server.URL, testContracts(), wallet, opts, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func connectedWallet(t *testing.T) *signer.Session {
	t.Helper()
	local, err := signer.NewLocalSigner(signer.LocalSignerConfig{PrivateKeyHex: testPrivateKey})
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	return signer.NewSession(local)
}

func TestGetAllPoolsDecodesPoolInfo(t *testing.T) {
	node := &mockNode{t: t}
	node.ethCall = func(selector string, _ callArgs) (string, *rpcErrorBody) {
		if selector != selectorOf(poolManagerABI, "getAllPools") {
			t.Fatalf("unexpected selector %s", selector)
		}
		return packOutputs(t, poolManagerABI, "getAllPools", []poolInfo{{
			Pool:         common.HexToAddress("0x00000000000000000000000000000000000000f1"),
			Token0:       testToken0,
			Token1:       testToken1,
			Index:        3,
			Fee:          big.NewInt(3000),
			FeeProtocol:  0,
			TickLower:    big.NewInt(-887220),
			TickUpper:    big.NewInt(887220),
			Tick:         big.NewInt(-12),
			SqrtPriceX96: new(big.Int).Lsh(big.NewInt(1), 96),
			Liquidity:    big.NewInt(1_000_000),
		}}), nil
	}
	client := newTestEVM(t, node, nil, DefaultOptions())

	pools, err := client.GetAllPools(context.Background())
	if err != nil {
		t.Fatalf("GetAllPools failed: %v", err)
	}
	if len(pools) != 1 {
		t.Fatalf("expected 1 pool, got %d", len(pools))
	}
	p := pools[0]
	if p.Token0 != testToken0 || p.Index != 3 || p.Fee != 3000 || p.TickLower != -887220 || p.Tick != -12 {
		t.Fatalf("unexpected pool: %+v", p)
	}
}

func TestQuoteExactInputPacksRoute(t *testing.T) {
	node := &mockNode{t: t}
	node.ethCall = func(selector string, args callArgs) (string, *rpcErrorBody) {
		if selector != selectorOf(swapRouterABI, "quoteExactInput") {
			t.Fatalf("unexpected selector %s", selector)
		}
		values, err := swapRouterABI.Methods["quoteExactInput"].Inputs.Unpack(args.calldata()[4:])
		if err != nil {
			t.Fatalf("unpack quote input: %v", err)
		}
		params := *abi.ConvertType(values[0], new(quoteExactInputParams)).(*quoteExactInputParams)
		if len(params.IndexPath) != 2 || params.IndexPath[0] != 0 || params.IndexPath[1] != 4 {
			t.Fatalf("unexpected index path: %v", params.IndexPath)
		}
		if params.AmountIn.Cmp(big.NewInt(5000)) != 0 {
			t.Fatalf("unexpected amount in: %s", params.AmountIn)
		}
		return packOutputs(t, swapRouterABI, "quoteExactInput", big.NewInt(4975)), nil
	}
	client := newTestEVM(t, node, nil, DefaultOptions())

	out, err := client.QuoteExactInput(context.Background(), QuoteParams{
		TokenIn:           testToken0,
		TokenOut:          testToken1,
		IndexPath:         []uint32{0, 4},
		Amount:            big.NewInt(5000),
		SqrtPriceLimitX96: big.NewInt(4295128740),
	})
	if err != nil {
		t.Fatalf("QuoteExactInput failed: %v", err)
	}
	if out.Int64() != 4975 {
		t.Fatalf("expected 4975, got %s", out)
	}
}

func TestQuoteRevertCarriesDecodedReason(t *testing.T) {
	node := &mockNode{t: t}
	node.ethCall = func(string, callArgs) (string, *rpcErrorBody) {
		return "", &rpcErrorBody{
			Code:    3,
			Message: "execution reverted: SPL",
			Data:    "0x" + hex.EncodeToString(encodeErrorString(t, "SPL")),
		}
	}
	client := newTestEVM(t, node, nil, DefaultOptions())

	_, err := client.QuoteExactOutput(context.Background(), QuoteParams{
		TokenIn: testToken0, TokenOut: testToken1, IndexPath: []uint32{0}, Amount: big.NewInt(1), SqrtPriceLimitX96: big.NewInt(1),
	})
	revert, ok := AsRevert(err)
	if !ok {
		t.Fatalf("expected revert error, got %T %v", err, err)
	}
	if revert.Reason != "SPL" {
		t.Fatalf("expected decoded reason SPL, got %q", revert.Reason)
	}
}

func TestExactInputSendsSignedTransactionAndWaits(t *testing.T) {
	node := &mockNode{t: t, receipt: testReceiptJSON}
	node.ethCall = func(selector string, _ callArgs) (string, *rpcErrorBody) {
		if selector != selectorOf(swapRouterABI, "exactInput") {
			t.Fatalf("unexpected selector %s", selector)
		}
		return packOutputs(t, swapRouterABI, "exactInput", big.NewInt(99)), nil
	}
	opts := DefaultOptions()
	opts.PollInterval = 10 * time.Millisecond
	client := newTestEVM(t, node, connectedWallet(t), opts)

	hash, err := client.ExactInput(context.Background(), ExactInputParams{
		TokenIn:           testToken0,
		TokenOut:          testToken1,
		IndexPath:         []uint32{0},
		Recipient:         common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		Deadline:          big.NewInt(time.Now().Add(time.Hour).Unix()),
		AmountIn:          big.NewInt(100),
		AmountOutMinimum:  big.NewInt(99),
		SqrtPriceLimitX96: big.NewInt(4295128740),
	})
	if err != nil {
		t.Fatalf("ExactInput failed: %v", err)
	}
	if hash == (common.Hash{}) {
		t.Fatal("expected tx hash")
	}
	if node.seen("eth_sendRawTransaction") != 1 {
		t.Fatalf("expected one broadcast, got %d", node.seen("eth_sendRawTransaction"))
	}
	if node.seen("eth_call") != 1 {
		t.Fatalf("expected simulation call, got %d", node.seen("eth_call"))
	}

	receipt, err := client.WaitForTransactionReceipt(context.Background(), hash)
	if err != nil {
		t.Fatalf("WaitForTransactionReceipt failed: %v", err)
	}
	if !receipt.Succeeded() || receipt.TxHash != hash || receipt.BlockNumber != 16 {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}
}

func TestTransactWithoutWalletIsNotConnected(t *testing.T) {
	node := &mockNode{t: t}
	node.ethCall = func(string, callArgs) (string, *rpcErrorBody) {
		t.Fatal("no rpc call expected without a wallet")
		return "", nil
	}
	client := newTestEVM(t, node, signer.NewSession(nil), DefaultOptions())

	_, err := client.Mint(context.Background(), MintParams{})
	if !clierr.IsCode(err, clierr.CodeNotConnected) {
		t.Fatalf("expected not connected error, got %v", err)
	}
	if len(node.methods) != 0 {
		t.Fatalf("expected no rpc traffic, got %v", node.methods)
	}
}

func TestSimulationRevertStopsBroadcast(t *testing.T) {
	node := &mockNode{t: t}
	node.ethCall = func(string, callArgs) (string, *rpcErrorBody) {
		return "", &rpcErrorBody{Code: 3, Message: "execution reverted", Data: "0x" + hex.EncodeToString(encodeErrorString(t, "STF"))}
	}
	client := newTestEVM(t, node, connectedWallet(t), DefaultOptions())

	_, err := client.Approve(context.Background(), testToken0, testToken1, big.NewInt(1))
	revert, ok := AsRevert(err)
	if !ok || revert.Reason != "STF" {
		t.Fatalf("expected STF revert, got %v", err)
	}
	if node.seen("eth_sendRawTransaction") != 0 {
		t.Fatal("did not expect a broadcast after failed simulation")
	}
}

func TestWaitForTransactionReceiptTimesOut(t *testing.T) {
	node := &mockNode{t: t}
	opts := DefaultOptions()
	opts.PollInterval = 5 * time.Millisecond
	opts.ReceiptTimeout = 30 * time.Millisecond
	client := newTestEVM(t, node, nil, opts)

	_, err := client.WaitForTransactionReceipt(context.Background(), common.HexToHash("0x01"))
	if !clierr.IsCode(err, clierr.CodeTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestTokenMetadataToleratesMissingName(t *testing.T) {
	node := &mockNode{t: t}
	node.ethCall = func(selector string, _ callArgs) (string, *rpcErrorBody) {
		switch selector {
		case selectorOf(erc20ABI, "decimals"):
			return packOutputs(t, erc20ABI, "decimals", uint8(6)), nil
		case selectorOf(erc20ABI, "symbol"):
			return packOutputs(t, erc20ABI, "symbol", "USDC"), nil
		default:
			return "", &rpcErrorBody{Code: 3, Message: "execution reverted"}
		}
	}
	client := newTestEVM(t, node, nil, DefaultOptions())

	token, err := client.TokenMetadata(context.Background(), testToken0)
	if err != nil {
		t.Fatalf("TokenMetadata failed: %v", err)
	}
	if token.Decimals != 6 || token.Symbol != "USDC" || token.Name != "" {
		t.Fatalf("unexpected token: %+v", token)
	}
}

func TestDecodeRevertData(t *testing.T) {
	if got := decodeRevertData(encodeErrorString(t, "slippage too high")); got != "slippage too high" {
		t.Fatalf("expected decoded revert reason, got %q", got)
	}
	if got := decodeRevertData(common.FromHex("0x12345678")); !strings.Contains(got, "0x12345678") {
		t.Fatalf("expected custom error selector in reason, got %q", got)
	}
	if got := decodeRevertData(nil); got != "" {
		t.Fatalf("expected empty reason, got %q", got)
	}
}

func TestParseGwei(t *testing.T) {
	v, err := parseGwei("1.5")
	if err != nil || v.String() != "1500000000" {
		t.Fatalf("unexpected parse result: %v %v", v, err)
	}
	if _, err := parseGwei("-1"); err == nil {
		t.Fatal("expected negative value error")
	}
	if _, err := parseGwei("0.0000000001"); err == nil {
		t.Fatal("expected sub-wei precision error")
	}
	feeCap, err := resolveFeeCap(big.NewInt(10), big.NewInt(3), "")
	if err != nil || feeCap.Int64() != 23 {
		t.Fatalf("expected baseFee*2+tip=23, got %v %v", feeCap, err)
	}
}

func encodeErrorString(t *testing.T, reason string) []byte {
	t.Helper()
	stringTy, err := abi.NewType("string", "", nil)
	if err != nil {
		t.Fatalf("create abi string type: %v", err)
	}
	encoded, err := abi.Arguments{{Type: stringTy}}.Pack(reason)
	if err != nil {
		t.Fatalf("pack revert reason: %v", err)
	}
	return append(common.FromHex("0x08c379a0"), encoded...)
}

var (
	zeroHash  = "0x" + strings.Repeat("0", 64)
	zeroBloom = "0x" + strings.Repeat("0", 512)

	testHeaderJSON = `{"parentHash":"` + zeroHash + `","sha3Uncles":"` + zeroHash + `","miner":"0x0000000000000000000000000000000000000000","stateRoot":"` + zeroHash + `","transactionsRoot":"` + zeroHash + `","receiptsRoot":"` + zeroHash + `","logsBloom":"` + zeroBloom + `","difficulty":"0x0","number":"0x10","gasLimit":"0x1c9c380","gasUsed":"0x0","timestamp":"0x6553f100","extraData":"0x","baseFeePerGas":"0x3b9aca00"}`

	testReceiptJSON = `{"transactionHash":%q,"status":"0x1","blockNumber":"0x10","cumulativeGasUsed":"0x5208","gasUsed":"0x5208","logsBloom":"` + zeroBloom + `","logs":[]}`
)

func writeRPCResult(w http.ResponseWriter, id json.RawMessage, result any) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":%q}`, rawIDOrDefault(id), result)
}

func writeRPCRaw(w http.ResponseWriter, id json.RawMessage, raw string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":%s}`, rawIDOrDefault(id), raw)
}

func writeRPCError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"error":{"code":%d,"message":%q}}`, rawIDOrDefault(id), code, message)
}

func writeRPCDataError(w http.ResponseWriter, id json.RawMessage, e *rpcErrorBody) {
	if e.Data == "" {
		writeRPCError(w, id, e.Code, e.Message)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"error":{"code":%d,"message":%q,"data":%q}}`, rawIDOrDefault(id), e.Code, e.Message, e.Data)
}

func rawIDOrDefault(id json.RawMessage) string {
	if len(id) == 0 {
		return "1"
	}
	return string(id)
}
