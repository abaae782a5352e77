package relayer

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/zephyrpay/relayer/core/config"
	"github.com/zephyrpay/relayer/core/transferengine"
	"github.com/zephyrpay/relayer/model"
	"github.com/zephyrpay/relayer/pkg/erc4337/preset"
	pkglogger "github.com/zephyrpay/relayer/pkg/logger"
	"github.com/zephyrpay/relayer/storage"
)

var (
	testEntrypoint = common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789")
	testFactory    = common.HexToAddress("0x9406Cc6185a346906296840746125a0E44976454")
	testOwner      = "0x2A6c106ae13B558BB9E2Ec64Bd2f1f7BEFF3A5E0"
	testRecipient  = "0x71562b71999873DB5b286dF957af199Ec94617F7"
)

type fakeChainClient struct{}

func (f *fakeChainClient) CodeAt(_ context.Context, _ common.Address, _ *big.Int) ([]byte, error) {
	return nil, nil
}

func (f *fakeChainClient) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if *msg.To == testFactory {
		derived := common.BytesToAddress(crypto.Keccak256(msg.Data)[12:])
		return common.LeftPadBytes(derived.Bytes(), 32), nil
	}
	return common.LeftPadBytes(big.NewInt(0).Bytes(), 32), nil
}

func (f *fakeChainClient) SuggestGasTipCap(_ context.Context) (*big.Int, error) {
	return big.NewInt(2_000_000_000), nil
}

func (f *fakeChainClient) HeaderByNumber(_ context.Context, _ *big.Int) (*types.Header, error) {
	return &types.Header{BaseFee: big.NewInt(10_000_000_000)}, nil
}

func (f *fakeChainClient) PendingNonceAt(_ context.Context, _ common.Address) (uint64, error) {
	return 0, nil
}

func (f *fakeChainClient) EstimateGas(_ context.Context, _ ethereum.CallMsg) (uint64, error) {
	return 900_000, nil
}

func (f *fakeChainClient) SendTransaction(_ context.Context, _ *types.Transaction) error {
	return nil
}

func newTestRelayer(t *testing.T) *Relayer {
	t.Helper()

	controllerKey, err := crypto.HexToECDSA("4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	require.NoError(t, err)

	c := &config.Config{
		ChainID:              big.NewInt(11155111),
		EntrypointAddress:    testEntrypoint,
		FactoryAddress:       testFactory,
		ControllerPrivateKey: controllerKey,
		SubmissionMode:       config.SubmissionModeDirect,
		CallGasLimit:         big.NewInt(300_000),
		VerificationGasLimit: big.NewInt(700_000),
		PreVerificationGas:   big.NewInt(300_000),
		Tokens:               map[string]config.TokenInfo{},
		HttpBindAddress:      ":0",
	}

	db, err := storage.NewWithPath(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	chain := &fakeChainClient{}

	builder := preset.NewBuilder(preset.BuilderConfig{
		Client:               chain,
		Entrypoint:           c.EntrypointAddress,
		Factory:              c.FactoryAddress,
		ChainID:              c.ChainID,
		ControllerKey:        c.ControllerPrivateKey,
		CallGasLimit:         c.CallGasLimit,
		VerificationGasLimit: c.VerificationGasLimit,
		PreVerificationGas:   c.PreVerificationGas,
	})

	sender := preset.NewSubmitter(preset.SubmitterConfig{
		Mode:          preset.ModeDirect,
		Entrypoint:    c.EntrypointAddress,
		ChainID:       c.ChainID,
		ControllerKey: c.ControllerPrivateKey,
		TxClient:      chain,
	})

	engine := transferengine.New(transferengine.EngineConfig{
		DB:      db,
		Chain:   chain,
		Builder: builder,
		Sender:  sender,
		Config:  c,
	})

	return &Relayer{
		config:   c,
		logger:   pkglogger.NewNoOpLogger(),
		db:       db,
		engine:   engine,
		registry: prometheus.NewRegistry(),
		status:   runningStatus,
	}
}

func doRequest(t *testing.T, r *Relayer, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echoHeaderContentType, "application/json")
	}
	rec := httptest.NewRecorder()
	r.newRouter().ServeHTTP(rec, req)
	return rec
}

const echoHeaderContentType = "Content-Type"

func TestUpEndpoint(t *testing.T) {
	r := newTestRelayer(t)

	rec := doRequest(t, r, http.MethodGet, "/up", "")
	require.Equal(t, http.StatusOK, rec.Code)

	r.status = initStatus
	rec = doRequest(t, r, http.MethodGet, "/up", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestTransferEndpoint(t *testing.T) {
	r := newTestRelayer(t)

	body := `{"user_id":"user-123","owner":"` + testOwner + `","recipient":"` + testRecipient + `","amount":"0.5","currency":"ETH"}`
	rec := doRequest(t, r, http.MethodPost, "/transfers", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HttpJsonResp[*model.TransactionRecord]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, model.TxStatusPending, resp.Data.Status)
	require.Equal(t, "0.5", resp.Data.Amount)
	require.NotEmpty(t, resp.Data.Metadata.UserOpHash)
}

func TestTransferEndpointValidation(t *testing.T) {
	r := newTestRelayer(t)

	// missing recipient
	rec := doRequest(t, r, http.MethodPost, "/transfers",
		`{"user_id":"u","owner":"`+testOwner+`","amount":"1","currency":"ETH"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// malformed owner address
	rec = doRequest(t, r, http.MethodPost, "/transfers",
		`{"user_id":"u","owner":"nope","recipient":"`+testRecipient+`","amount":"1","currency":"ETH"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// unparseable amount
	rec = doRequest(t, r, http.MethodPost, "/transfers",
		`{"user_id":"u","owner":"`+testOwner+`","recipient":"`+testRecipient+`","amount":"one","currency":"ETH"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// unsupported currency
	rec = doRequest(t, r, http.MethodPost, "/transfers",
		`{"user_id":"u","owner":"`+testOwner+`","recipient":"`+testRecipient+`","amount":"1","currency":"DOGE"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var errResp HttpErrorResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	require.Contains(t, errResp.Error, "not supported")
}

func TestWalletEndpoint(t *testing.T) {
	r := newTestRelayer(t)

	rec := doRequest(t, r, http.MethodGet, "/wallets/"+testOwner, "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	body := `{"user_id":"user-123","owner":"` + testOwner + `","recipient":"` + testRecipient + `","amount":"0.5","currency":"ETH"}`
	rec = doRequest(t, r, http.MethodPost, "/transfers", body)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, r, http.MethodGet, "/wallets/"+testOwner, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HttpJsonResp[*model.SmartWallet]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Data.Deployed)
	require.NotNil(t, resp.Data.Address)

	rec = doRequest(t, r, http.MethodGet, "/wallets/not-an-address", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTransactionEndpoints(t *testing.T) {
	r := newTestRelayer(t)

	body := `{"user_id":"user-123","owner":"` + testOwner + `","recipient":"` + testRecipient + `","amount":"0.5","currency":"ETH"}`
	rec := doRequest(t, r, http.MethodPost, "/transfers", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var created HttpJsonResp[*model.TransactionRecord]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doRequest(t, r, http.MethodGet, "/transactions/user-123", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var list HttpJsonResp[[]*model.TransactionRecord]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Data, 1)
	require.Equal(t, created.Data.ID, list.Data[0].ID)

	rec = doRequest(t, r, http.MethodGet, "/transactions/user-123/"+created.Data.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, r, http.MethodGet, "/transactions/user-123/01UNKNOWN", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestRelayer(t)

	rec := doRequest(t, r, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
}
