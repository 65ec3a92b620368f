package dune

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/dunefetch/dunefetch/internal/observability"
)

const (
	DefaultBaseURL = "https://api.dune.com/api/v1"
	APIKeyHeader   = "X-Dune-Api-Key"

	OperationExecute = "execute"
	OperationStatus  = "status"
	OperationResults = "results"

	// maxResultPages bounds next_offset pagination against a server that
	// keeps returning the same offset.
	maxResultPages = 10000
)

type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

type Client struct {
	rest *resty.Client
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	var rest *resty.Client
	if cfg.HTTPClient != nil {
		rest = resty.NewWithClient(cfg.HTTPClient)
	} else {
		rest = resty.New()
	}
	rest.SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader(APIKeyHeader, apiKey).
		SetHeader("Accept", "application/json")
	if cfg.Logger != nil {
		rest.SetLogger(restyLogger{logger: cfg.Logger})
	}
	return &Client{rest: rest}, nil
}

// ExecuteQuery starts a new execution of a saved query and returns its handle.
func (c *Client) ExecuteQuery(ctx context.Context, queryID QueryID, opts ExecuteOptions) (Execution, error) {
	id := strings.TrimSpace(string(queryID))
	if id == "" {
		return Execution{}, fmt.Errorf("query id is required")
	}

	req := c.rest.R().SetContext(ctx).SetPathParam("queryID", id)
	if len(opts.Parameters) > 0 {
		req.SetHeader("Content-Type", "application/json").
			SetBody(map[string]any{"query_parameters": opts.Parameters})
	}
	body, status, err := c.do(OperationExecute, req, http.MethodPost, "/query/{queryID}/execute")
	if err != nil {
		return Execution{}, err
	}

	var execution Execution
	if err := json.Unmarshal(body, &execution); err != nil {
		return Execution{}, decodeError(OperationExecute, status, err)
	}
	if strings.TrimSpace(string(execution.ExecutionID)) == "" {
		return Execution{}, decodeError(OperationExecute, status, fmt.Errorf("execution_id missing from response"))
	}
	return execution, nil
}

// ExecutionStatus performs a single status check. It holds no client-side
// state, so repeated calls against an unchanged backend return the same state.
func (c *Client) ExecutionStatus(ctx context.Context, executionID ExecutionID) (Status, error) {
	id := strings.TrimSpace(string(executionID))
	if id == "" {
		return Status{}, fmt.Errorf("execution id is required")
	}

	req := c.rest.R().SetContext(ctx).SetPathParam("executionID", id)
	body, code, err := c.do(OperationStatus, req, http.MethodGet, "/execution/{executionID}/status")
	if err != nil {
		return Status{}, err
	}

	var status Status
	if err := json.Unmarshal(body, &status); err != nil {
		return Status{}, decodeError(OperationStatus, code, err)
	}
	if status.State == "" {
		return Status{}, decodeError(OperationStatus, code, fmt.Errorf("state missing from response"))
	}
	if status.ExecutionID == "" {
		status.ExecutionID = ExecutionID(id)
	}
	return status, nil
}

// ExecutionResults downloads every row of a completed execution, following
// next_offset pagination when the server splits the result.
func (c *Client) ExecutionResults(ctx context.Context, executionID ExecutionID) (Results, error) {
	id := strings.TrimSpace(string(executionID))
	if id == "" {
		return Results{}, fmt.Errorf("execution id is required")
	}

	results := Results{ExecutionID: ExecutionID(id)}
	var offset *int64
	pageSize := 0
	for page := 0; page < maxResultPages; page++ {
		req := c.rest.R().SetContext(ctx).SetPathParam("executionID", id)
		if offset != nil {
			req.SetQueryParam("offset", strconv.FormatInt(*offset, 10))
			if pageSize > 0 {
				req.SetQueryParam("limit", strconv.Itoa(pageSize))
			}
		}
		body, code, err := c.do(OperationResults, req, http.MethodGet, "/execution/{executionID}/results")
		if err != nil {
			return Results{}, err
		}

		payload, err := decodeResults(body)
		if err != nil {
			return Results{}, decodeError(OperationResults, code, err)
		}
		if page == 0 {
			if payload.ExecutionID != "" {
				results.ExecutionID = payload.ExecutionID
			}
			results.State = payload.State
			results.Metadata = payload.Result.Metadata
			pageSize = len(payload.Result.Rows)
		}
		results.Rows = append(results.Rows, payload.Result.Rows...)

		if payload.NextOffset == nil || len(payload.Result.Rows) == 0 {
			if results.Rows == nil {
				results.Rows = []Row{}
			}
			return results, nil
		}
		if offset != nil && *payload.NextOffset <= *offset {
			return Results{}, decodeError(OperationResults, code, fmt.Errorf("next_offset %d does not advance past %d", *payload.NextOffset, *offset))
		}
		next := *payload.NextOffset
		offset = &next
	}
	return Results{}, decodeError(OperationResults, http.StatusOK, fmt.Errorf("result pagination exceeded %d pages", maxResultPages))
}

func (c *Client) do(operation string, req *resty.Request, method, url string) ([]byte, int, error) {
	start := time.Now()
	resp, err := req.Execute(method, url)
	if err != nil {
		observability.ObserveRemoteRequest(operation, 0, time.Since(start))
		return nil, 0, &RemoteRequestError{Operation: operation, Kind: KindTransport, Err: err}
	}
	observability.ObserveRemoteRequest(operation, resp.StatusCode(), time.Since(start))
	if !resp.IsSuccess() {
		return nil, resp.StatusCode(), newStatusError(operation, resp.StatusCode(), resp.Body())
	}
	return resp.Body(), resp.StatusCode(), nil
}

func decodeResults(body []byte) (resultsPayload, error) {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	var payload resultsPayload
	if err := decoder.Decode(&payload); err != nil {
		return resultsPayload{}, err
	}
	return payload, nil
}

func decodeError(operation string, statusCode int, err error) *RemoteRequestError {
	return &RemoteRequestError{
		Operation:  operation,
		StatusCode: statusCode,
		Kind:       KindDecode,
		Err:        err,
	}
}

type restyLogger struct {
	logger *slog.Logger
}

func (l restyLogger) Errorf(format string, v ...any) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, v...)), slog.String("component", "resty"))
}

func (l restyLogger) Warnf(format string, v ...any) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, v...)), slog.String("component", "resty"))
}

func (l restyLogger) Debugf(format string, v ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)), slog.String("component", "resty"))
}
