package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"promptpot-backend/internal/config"
	"promptpot-backend/internal/models"
)

// HTTPOracle talks to an external AI-judge service. The service answers a
// scoring request with a correlation id and later posts the score to our
// callback endpoint.
type HTTPOracle struct {
	BaseURL    string
	Token      string
	address    common.Address
	HTTPClient *http.Client
}

func NewHTTPOracle(cfg *config.Config) (*HTTPOracle, error) {
	if cfg.OracleURL == "" {
		return nil, errors.New("ORACLE_URL is required for the http oracle")
	}
	if _, err := url.Parse(cfg.OracleURL); err != nil {
		return nil, errors.Wrap(err, "parse ORACLE_URL")
	}
	return &HTTPOracle{
		BaseURL: cfg.OracleURL,
		Token:   cfg.OracleToken,
		address: cfg.OracleAddress,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

func (o *HTTPOracle) Address() common.Address {
	return o.address
}

type feeResponse struct {
	Fee string `json:"fee"`
}

func (o *HTTPOracle) EstimateCallbackFee(ctx context.Context, modelID uint64) (*big.Int, error) {
	endpoint := fmt.Sprintf("%s/v1/models/%d/fee", o.BaseURL, modelID)

	var resp feeResponse
	if err := o.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	fee, err := models.ParseAmount(resp.Fee)
	if err != nil {
		return nil, errors.Wrap(err, "decode oracle fee")
	}
	return fee, nil
}

type callbackRequestBody struct {
	ModelID  uint64 `json:"model_id"`
	Input    string `json:"input"`
	Callback string `json:"callback"`
	GasLimit uint64 `json:"gas_limit"`
	AuxData  string `json:"aux_data,omitempty"`
	Fee      string `json:"fee"`
}

type callbackResponseBody struct {
	RequestID string `json:"request_id"`
}

func (o *HTTPOracle) RequestCallback(ctx context.Context, call OracleCall) (models.RequestID, error) {
	body := callbackRequestBody{
		ModelID:  call.ModelID,
		Input:    call.Input,
		Callback: call.Callback,
		GasLimit: call.GasBudget,
		Fee:      "0",
	}
	if call.Fee != nil {
		body.Fee = call.Fee.String()
	}
	if len(call.AuxData) > 0 {
		body.AuxData = base64.StdEncoding.EncodeToString(call.AuxData)
	}

	var resp callbackResponseBody
	if err := o.do(ctx, http.MethodPost, o.BaseURL+"/v1/requests", body, &resp); err != nil {
		return "", err
	}
	if resp.RequestID == "" {
		return "", errors.New("oracle returned an empty request id")
	}
	return models.RequestID(resp.RequestID), nil
}

func (o *HTTPOracle) do(ctx context.Context, method, endpoint string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "marshal oracle request")
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return errors.Wrap(err, "create oracle request")
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if o.Token != "" {
		req.Header.Set("X-Service-Token", o.Token)
	}

	resp, err := o.HTTPClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "call oracle")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return errors.Errorf("oracle returned status %d: %s", resp.StatusCode, string(msg))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode oracle response")
	}
	return nil
}
