// Package remote talks to the inspection backend: photo batch upload and
// inspection record submission.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/bissquit/inspection-sync/internal/domain"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout       = 30 * time.Second
	defaultMaxPhotoBytes = 10 << 20

	uploadPath      = "/upload-batch"
	inspectionsPath = "/vistorias"

	photoField        = "fotos[]"
	inspectionIDField = "id_vistoria"
	photoContentType  = "image/jpeg"
)

// Config holds remote API client configuration.
type Config struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64 // 0 disables throttling
	Burst             int
	PhotoDir          string // base for relative file:// references
	MaxPhotoBytes     int64
}

// Client implements the two-phase submission against the remote API.
type Client struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a new remote API client.
func NewClient(config Config) *Client {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.MaxPhotoBytes == 0 {
		config.MaxPhotoBytes = defaultMaxPhotoBytes
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	limit := rate.Inf
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
	}
	burst := config.Burst
	if burst < 1 {
		burst = 1
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		limiter:    rate.NewLimiter(limit, burst),
	}
}

// UploadBatch uploads local photos in one multipart request and returns the
// remote URL for each logical key the server reported.
func (c *Client) UploadBatch(ctx context.Context, inspectionID *int64, photos []domain.LocalPhoto) (map[string]string, error) {
	if len(photos) == 0 {
		return map[string]string{}, nil
	}

	body, contentType, err := c.buildUploadBody(inspectionID, photos)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, http.MethodPost, uploadPath, contentType, body)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := readSuccess(resp)
	if err != nil {
		return nil, err
	}

	keys := make([]string, len(photos))
	for i, p := range photos {
		keys[i] = p.Key
	}

	urls, err := parseUploadResponse(data, keys)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Code: resp.StatusCode, Message: err.Error(), Err: err}
	}

	slog.Debug("photos uploaded", "requested", len(photos), "returned", len(urls))
	return urls, nil
}

func (c *Client) buildUploadBody(inspectionID *int64, photos []domain.LocalPhoto) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	if inspectionID != nil {
		if err := w.WriteField(inspectionIDField, strconv.FormatInt(*inspectionID, 10)); err != nil {
			return nil, "", fmt.Errorf("write %s: %w", inspectionIDField, err)
		}
	}

	for _, p := range photos {
		data, err := readPhoto(resolvePhotoPath(p.URI, c.config.PhotoDir), c.config.MaxPhotoBytes)
		if err != nil {
			return nil, "", err
		}

		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, photoField, p.Key+".jpg"))
		h.Set("Content-Type", photoContentType)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("create part %s: %w", p.Key, err)
		}
		if _, err := part.Write(data); err != nil {
			return nil, "", fmt.Errorf("write part %s: %w", p.Key, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return buf, w.FormDataContentType(), nil
}

type submitRequest struct {
	Data submitData `json:"dados"`
}

type submitData struct {
	Name           string                            `json:"nome"`
	Fleet          string                            `json:"frota"`
	Mileage        float64                           `json:"quilometragem"`
	Checklist      map[string]domain.ChecklistResult `json:"checklist"`
	Ratings        map[string]int                    `json:"avaliacoes"`
	TechnicalState map[string]string                 `json:"estado_tecnico"`
	Photos         domain.Photos                     `json:"fotos"`
	Observations   []domain.Observation              `json:"observacoes"`
}

type submitResponse struct {
	ID *int64 `json:"id"`
}

// SubmitInspection posts the inspection record. The returned id is nil when
// the server did not assign one.
func (c *Client) SubmitInspection(ctx context.Context, insp *domain.Inspection) (*int64, error) {
	observations := insp.Observations
	if observations == nil {
		observations = []domain.Observation{}
	}

	payload, err := json.Marshal(submitRequest{Data: submitData{
		Name:           insp.Name,
		Fleet:          insp.Fleet,
		Mileage:        insp.Mileage,
		Checklist:      insp.Checklist,
		Ratings:        insp.Ratings,
		TechnicalState: insp.TechnicalState,
		Photos:         insp.Photos,
		Observations:   observations,
	}})
	if err != nil {
		return nil, fmt.Errorf("marshal inspection: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, inspectionsPath, "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := readSuccess(resp)
	if err != nil {
		return nil, err
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var out submitResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, &Error{Kind: KindTransport, Code: resp.StatusCode, Message: fmt.Sprintf("decode response: %v", err), Err: err}
	}
	return out.ID, nil
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, requestError(err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, requestError(err)
	}
	return resp, nil
}

type errorBody struct {
	Message string `json:"erro"`
}

// readSuccess returns the body of a 2xx response, or an *Error built from
// any other status.
func readSuccess(resp *http.Response) ([]byte, error) {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, requestError(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return data, nil
	}

	var eb errorBody
	_ = json.Unmarshal(data, &eb)
	msg := eb.Message
	if msg == "" {
		msg = fmt.Sprintf("Erro %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	kind := KindTransport
	switch {
	case resp.StatusCode == http.StatusRequestEntityTooLarge,
		resp.StatusCode == http.StatusUnsupportedMediaType:
		kind = KindPayload
	case isPayloadMessage(eb.Message):
		kind = KindPayload
	}

	return nil, &Error{Kind: kind, Code: resp.StatusCode, Message: msg}
}
