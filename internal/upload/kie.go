package upload

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/maauso/vidgen/internal/fault"
)

// DefaultKIEBaseURL is the provider's file upload host.
const DefaultKIEBaseURL = "https://kieai.redpandaai.co"

// DefaultUploadPath is the remote folder uploads are placed in.
const DefaultUploadPath = "videogen/images"

const base64UploadPath = "/api/file-base64-upload"

// ErrAPIKeyRequired is returned when the upload sink has no credential.
var ErrAPIKeyRequired = errors.New("upload: API key is required")

// KIESink uploads files through the provider's base64 upload endpoint.
type KIESink struct {
	apiKey     string
	baseURL    string
	uploadPath string
	httpClient *http.Client
	timeout    time.Duration
}

// KIEOption configures a KIESink.
type KIEOption func(*KIESink)

// WithBaseURL sets the upload host.
func WithBaseURL(u string) KIEOption {
	return func(s *KIESink) {
		if u != "" {
			s.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithUploadPath sets the remote folder.
func WithUploadPath(p string) KIEOption {
	return func(s *KIESink) {
		if p != "" {
			s.uploadPath = p
		}
	}
}

// WithHTTPClient sets a custom HTTP client. The client is never modified.
func WithHTTPClient(hc *http.Client) KIEOption {
	return func(s *KIESink) {
		if hc != nil {
			s.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout on a copy of the HTTP client.
func WithTimeout(d time.Duration) KIEOption {
	return func(s *KIESink) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewKIESink creates a sink for the provider upload endpoint.
func NewKIESink(apiKey string, opts ...KIEOption) (*KIESink, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyRequired
	}

	s := &KIESink{
		apiKey:     apiKey,
		baseURL:    DefaultKIEBaseURL,
		uploadPath: DefaultUploadPath,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.timeout > 0 {
		hc := *s.httpClient
		hc.Timeout = s.timeout
		s.httpClient = &hc
	}
	return s, nil
}

type base64UploadRequest struct {
	Base64Data string `json:"base64Data"`
	UploadPath string `json:"uploadPath"`
	FileName   string `json:"fileName"`
}

type base64UploadResponse struct {
	Success bool   `json:"success"`
	Code    int    `json:"code"`
	Msg     string `json:"msg"`
	Data    *struct {
		FileName    string `json:"fileName"`
		FilePath    string `json:"filePath"`
		DownloadURL string `json:"downloadUrl"`
		FileSize    int64  `json:"fileSize"`
		MimeType    string `json:"mimeType"`
	} `json:"data"`
}

// Upload posts the file as a base64 data URL and returns its download URL.
func (s *KIESink) Upload(ctx context.Context, file File) (string, error) {
	body, err := json.Marshal(base64UploadRequest{
		Base64Data: "data:" + file.ContentType + ";base64," + base64.StdEncoding.EncodeToString(file.Data),
		UploadPath: s.uploadPath,
		FileName:   file.Name,
	})
	if err != nil {
		return "", errors.Wrap(err, "upload: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+base64UploadPath, bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "upload: create request")
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", errors.Wrap(ctx.Err(), "upload: request aborted")
		}
		return "", fault.Wrap(fault.KindUpload, opUpload, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fault.Wrap(fault.KindUpload, opUpload, err)
	}

	var out base64UploadResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fault.Errorf(fault.KindUpload, opUpload, "status %d: undecodable response %s", resp.StatusCode, excerpt(respBody))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !out.Success || (out.Code != 0 && out.Code != http.StatusOK) {
		msg := out.Msg
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return "", fault.New(fault.KindUpload, opUpload, msg)
	}
	if out.Data == nil || out.Data.DownloadURL == "" {
		return "", fault.New(fault.KindUpload, opUpload, "upload response has no download URL")
	}

	return out.Data.DownloadURL, nil
}

func excerpt(b []byte) string {
	const limit = 256
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}

// Compile-time check that KIESink implements Sink.
var _ Sink = (*KIESink)(nil)
