package upstream

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/sjson"

	"ag2api-go/internal/config"
	"ag2api-go/internal/constants"
	"ag2api-go/internal/credential"
	"ag2api-go/internal/errors"
	"ag2api-go/internal/monitoring"
	"ag2api-go/internal/translator"
)

const maxErrorBodyBytes = 64 * 1024

// Response is a successful upstream call. The caller owns Body.
type Response struct {
	Body    io.ReadCloser
	Status  int
	Account *credential.Account
}

// Engine drives upstream calls through the recovery policy: classify
// each failure, then refresh, rotate, switch endpoint, or back off
// before the next attempt. The loop is bounded by MaxAttempts.
type Engine struct {
	pool           *credential.Pool
	client         *http.Client
	rings          map[credential.Family]*Ring
	projects       *ProjectResolver
	maxAttempts    int
	retryBase      time.Duration
	retryCeiling   time.Duration
	retryOnNetwork bool

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// EngineOptions wires the engine's collaborators.
type EngineOptions struct {
	Pool     *credential.Pool
	Client   *http.Client
	Config   *config.Config
	Projects *ProjectResolver
}

func NewEngine(opts EngineOptions) *Engine {
	cfg := opts.Config
	e := &Engine{
		pool:     opts.Pool,
		client:   opts.Client,
		projects: opts.Projects,
		rings: map[credential.Family]*Ring{
			credential.FamilyGeminiCLI:   NewRing(cfg.GeminiCLIEndpoints),
			credential.FamilyAntigravity: NewRing(cfg.AntigravityEndpoints),
		},
		maxAttempts:    cfg.RetryMax,
		retryBase:      time.Duration(cfg.RetryIntervalSec) * time.Second,
		retryCeiling:   time.Duration(cfg.RetryMaxIntervalSec) * time.Second,
		retryOnNetwork: cfg.RetryOnNetworkError,
		sleep:          sleepCtx,
	}
	if e.client == nil {
		e.client = NewHTTPClient(cfg.ProxyURL)
	}
	if e.projects == nil {
		e.projects = NewProjectResolver(ProjectPolicy(cfg.ProjectPolicy))
	}
	if e.maxAttempts <= 0 {
		e.maxAttempts = constants.DefaultMaxAttempts
	}
	return e
}

// Execute runs one generateContent call for the request, streaming when
// stream is true. It retries per the recovery policy and reports every
// outcome to the credential pool.
func (e *Engine) Execute(ctx context.Context, req *translator.Request, stream bool) (*Response, *errors.APIError) {
	family := req.Variant.Family
	ring := e.rings[family]

	account, err := e.pool.Acquire(ctx, family)
	if err != nil {
		return nil, noCredentialError(family)
	}

	basePayload, apiErr := e.buildPayload(req, account)
	if apiErr != nil {
		return nil, apiErr
	}

	var lastErr *errors.APIError
	authFailures := 0
	for attempt := 0; attempt <= e.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := e.retryDelay(attempt-1, lastErr)
			if sleepErr := e.sleep(ctx, delay); sleepErr != nil {
				return nil, errors.MapNetworkError(sleepErr)
			}
		}

		payload, apiErr := e.restampPayload(req, basePayload, account)
		if apiErr != nil {
			return nil, apiErr
		}

		started := time.Now()
		resp, apiErr := e.doOnce(ctx, family, ring.Current(), payload, account.Token(), stream)
		monitoring.UpstreamRequestDuration.WithLabelValues(string(family)).
			Observe(time.Since(started).Seconds())

		if apiErr == nil {
			e.pool.ReportSuccess(account.ID)
			monitoring.UpstreamRequestsTotal.WithLabelValues(string(family), "2xx").Inc()
			return &Response{Body: resp.Body, Status: resp.StatusCode, Account: account}, nil
		}
		lastErr = apiErr
		monitoring.UpstreamRequestsTotal.
			WithLabelValues(string(family), monitoring.StatusClass(apiErr.HTTPStatus)).Inc()

		class := errors.Classify(apiErr)
		log.WithFields(log.Fields{
			"family":  family,
			"account": account.ID,
			"attempt": attempt,
			"status":  apiErr.HTTPStatus,
			"class":   class.String(),
		}).Warn("upstream call failed")

		network := isNetworkCode(apiErr.Code)
		if !network {
			// Transport failures are the endpoint's fault, not the account's.
			e.pool.ReportFailure(account.ID, apiErr.Code, apiErr.HTTPStatus)
		}
		if !class.Retryable() {
			return nil, apiErr
		}
		if network && !e.retryOnNetwork {
			return nil, apiErr
		}
		monitoring.UpstreamRetryAttempts.WithLabelValues(string(family), class.String()).Inc()

		switch class {
		case errors.ClassAuth:
			// One forced refresh gets a retry on the same account. If
			// that account is still rejected, its grant is gone: take it
			// out of service and reacquire a different one.
			authFailures++
			refreshed := false
			if authFailures == 1 && e.pool.Refresh(ctx, account.ID) == nil {
				if fresh, getErr := e.pool.Get(account.ID); getErr == nil {
					account = fresh
					refreshed = true
				}
			}
			if !refreshed {
				if err := e.pool.Disable(account.ID, "authorization denied after refresh"); err != nil {
					log.WithError(err).WithField("account", account.ID).Warn("failed to disable account")
				}
				account = e.rotate(ctx, family, account)
				authFailures = 0
			}
		case errors.ClassQuota:
			// Rate limits are per credential and per endpoint; move on
			// both axes when an alternate endpoint exists.
			if apiErr.HTTPStatus == http.StatusTooManyRequests && ring.Len() > 1 {
				ring.Advance()
			}
			account = e.rotate(ctx, family, account)
			authFailures = 0
		case errors.ClassEndpoint:
			ring.Advance()
		}
		if account == nil {
			return nil, noCredentialError(family)
		}
	}
	return nil, lastErr
}

// ListModels asks the family endpoint for its model inventory.
func (e *Engine) ListModels(ctx context.Context, family credential.Family) ([]byte, *errors.APIError) {
	account, err := e.pool.Acquire(ctx, family)
	if err != nil {
		return nil, noCredentialError(family)
	}
	ring := e.rings[family]

	req, reqErr := newUpstreamRequest(ctx, family, modelsURL(ring.Current()), []byte("{}"), account.Token())
	if reqErr != nil {
		return nil, errors.MapNetworkError(reqErr)
	}
	resp, doErr := e.client.Do(req)
	if doErr != nil {
		return nil, errors.MapNetworkError(doErr)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if readErr != nil {
		return nil, errors.MapNetworkError(readErr)
	}
	if resp.StatusCode != http.StatusOK {
		e.pool.ReportFailure(account.ID, "list_models", resp.StatusCode)
		return nil, errors.MapHTTPError(resp.StatusCode, body)
	}
	e.pool.ReportSuccess(account.ID)
	return body, nil
}

func (e *Engine) buildPayload(req *translator.Request, account *credential.Account) ([]byte, *errors.APIError) {
	project, apiErr := e.resolveProject(req.Variant.Family, account)
	if apiErr != nil {
		return nil, apiErr
	}
	var payload []byte
	var err error
	if req.Variant.Family == credential.FamilyAntigravity {
		payload, err = translator.BuildAntigravityPayload(req, project)
	} else {
		payload, err = translator.BuildGeminiCLIPayload(req, project)
	}
	if err != nil {
		return nil, errors.New(http.StatusInternalServerError, "payload_encode", "server_error", err.Error())
	}
	return payload, nil
}

// restampPayload refreshes the per-attempt fields on the prebuilt
// payload: the project id follows the current account, and antigravity
// requires a fresh requestId per wire request.
func (e *Engine) restampPayload(req *translator.Request, base []byte, account *credential.Account) ([]byte, *errors.APIError) {
	project, apiErr := e.resolveProject(req.Variant.Family, account)
	if apiErr != nil {
		return nil, apiErr
	}
	payload, err := sjson.SetBytes(base, "project", project)
	if err != nil {
		return nil, errors.New(http.StatusInternalServerError, "payload_encode", "server_error", err.Error())
	}
	if req.Variant.Family == credential.FamilyAntigravity {
		payload, err = sjson.SetBytes(payload, "requestId", "agent-"+uuid.NewString())
		if err != nil {
			return nil, errors.New(http.StatusInternalServerError, "payload_encode", "server_error", err.Error())
		}
	}
	return payload, nil
}

func (e *Engine) resolveProject(family credential.Family, account *credential.Account) (string, *errors.APIError) {
	if family == credential.FamilyAntigravity {
		project, ok := e.projects.Resolve(account)
		if !ok {
			return "", errors.New(http.StatusForbidden, "project_required", "invalid_request_error",
				"account "+account.ID+" has no project id and project_policy is stored")
		}
		return project, nil
	}
	project := account.Project()
	if project == "" {
		return "", errors.New(http.StatusForbidden, "project_required", "invalid_request_error",
			"account "+account.ID+" has no project id for the gemini-cli family")
	}
	return project, nil
}

// doOnce performs a single HTTP round trip. On a non-2xx status the
// body is drained into the returned error and closed.
func (e *Engine) doOnce(ctx context.Context, family credential.Family, endpoint string, payload []byte, token string, stream bool) (*http.Response, *errors.APIError) {
	req, err := newUpstreamRequest(ctx, family, generateURL(endpoint, stream), payload, token)
	if err != nil {
		return nil, errors.MapNetworkError(err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, errors.MapNetworkError(err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	resp.Body.Close()
	apiErr := errors.MapHTTPError(resp.StatusCode, body)
	if ra, ok := parseRetryAfter(resp.Header.Get("Retry-After")); ok {
		apiErr = apiErr.WithDetails(map[string]interface{}{
			"retry_after_sec": int(ra.Seconds()),
		})
	}
	return nil, apiErr
}

// rotate switches to another account in the family, keeping the
// current one when no alternate exists.
func (e *Engine) rotate(ctx context.Context, family credential.Family, current *credential.Account) *credential.Account {
	alt, err := e.pool.Alternate(ctx, family, current.ID)
	if err != nil {
		if live, getErr := e.pool.Get(current.ID); getErr == nil && live.Available() {
			return live
		}
		return nil
	}
	monitoring.CredentialRotationsTotal.WithLabelValues(string(family)).Inc()
	return alt
}

func (e *Engine) retryDelay(attempt int, lastErr *errors.APIError) time.Duration {
	if lastErr != nil {
		if raw, ok := lastErr.Details["retry_after_sec"]; ok {
			if secs, ok := raw.(int); ok && secs > 0 {
				return time.Duration(secs) * time.Second
			}
		}
	}
	return nextBackoff(attempt, e.retryBase, e.retryCeiling)
}

func isNetworkCode(code string) bool {
	switch code {
	case "timeout", "connection_error", "network_error", "dns_error", "tls_error", "request_canceled":
		return true
	}
	return false
}

func noCredentialError(family credential.Family) *errors.APIError {
	return errors.New(http.StatusServiceUnavailable, errors.CodeNoCredential, "server_error",
		"no available credential for family "+string(family))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
