// internal/signing/client.go
package signing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"time"

	"certificate-service/internal/common/config"
	apperrors "certificate-service/internal/common/errors"
	"certificate-service/internal/common/logger"
	"certificate-service/internal/common/metrics"
	"certificate-service/internal/models"
)

// Signer produces a signed certificate document for a request. The call is
// synchronous and has no local side effects, so callers invoke it before
// touching their own storage.
type Signer interface {
	Sign(ctx context.Context, req *models.Request, signerName, templateFile string) (*Result, error)
}

// Result is the outcome of a successful signing call.
type Result struct {
	Message     string
	DocumentURL string
}

// signRequest mirrors the body the signing service expects. The keys with
// spaces are placeholder names inside the document template and must be
// sent exactly as the service defines them.
type signRequest struct {
	Name           string `json:"name"`
	StudentName    string `json:"Nume Student"`
	StudentCNP     string `json:"CNP Student"`
	Year           string `json:"Anul"`
	Faculty        string `json:"Facultatea"`
	Specialization string `json:"Specializarea"`
	Reason         string `json:"Motiv"`
	Date           string `json:"Data"`
	TemplatePath   string `json:"templatePath"`
}

type signResponse struct {
	Message string `json:"message"`
	URL     string `json:"url"`
}

// Client calls the external signing service over HTTP.
type Client struct {
	baseURL    string
	pathPrefix string
	httpClient *http.Client
	logger     logger.Logger
	now        func() time.Time
}

func NewClient(cfg config.SigningConfig, tmpl config.TemplateConfig, log logger.Logger) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		pathPrefix: tmpl.PathPrefix,
		httpClient: &http.Client{Timeout: cfg.GetTimeout()},
		logger:     log,
		now:        time.Now,
	}
}

// Sign posts the request data to the signing service and returns the URL of
// the produced document.
func (c *Client) Sign(ctx context.Context, req *models.Request, signerName, templateFile string) (*Result, error) {
	body := signRequest{
		Name:           signerName,
		StudentName:    req.Payload.FullName,
		StudentCNP:     req.Payload.CNP,
		Year:           req.Payload.StudyYear,
		Faculty:        req.Payload.Faculty,
		Specialization: req.Payload.Specialization,
		Reason:         req.Payload.Reason(),
		Date:           c.now().Format("02 Jan 2006"),
		TemplatePath:   path.Join(c.pathPrefix, templateFile),
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, apperrors.NewSigningServiceError(fmt.Errorf("marshal sign request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/signCertificate", bytes.NewReader(payload))
	if err != nil {
		return nil, apperrors.NewSigningServiceError(fmt.Errorf("build sign request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	metrics.SigningDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SigningRequestsTotal.WithLabelValues("error").Inc()
		return nil, apperrors.NewSigningServiceError(fmt.Errorf("signing service unreachable: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		metrics.SigningRequestsTotal.WithLabelValues("error").Inc()
		return nil, apperrors.NewSigningServiceError(fmt.Errorf("read signing response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.SigningRequestsTotal.WithLabelValues("error").Inc()

		var failure signResponse
		if json.Unmarshal(respBody, &failure) == nil && failure.Message != "" {
			return nil, apperrors.NewSigningServiceError(
				fmt.Errorf("signing service returned %d: %s", resp.StatusCode, failure.Message))
		}
		return nil, apperrors.NewSigningServiceError(
			fmt.Errorf("signing service returned %d", resp.StatusCode))
	}

	var success signResponse
	if err := json.Unmarshal(respBody, &success); err != nil {
		metrics.SigningRequestsTotal.WithLabelValues("error").Inc()
		return nil, apperrors.NewSigningServiceError(fmt.Errorf("decode signing response: %w", err))
	}
	if success.URL == "" {
		metrics.SigningRequestsTotal.WithLabelValues("error").Inc()
		return nil, apperrors.NewSigningServiceError(fmt.Errorf("signing service returned no document URL"))
	}

	metrics.SigningRequestsTotal.WithLabelValues("success").Inc()
	c.logger.Info("certificate signed", map[string]interface{}{
		"request_id": req.ID,
		"signed_by":  signerName,
	})

	return &Result{Message: success.Message, DocumentURL: success.URL}, nil
}
