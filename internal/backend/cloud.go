package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"intake-chat/internal/logger"
	"intake-chat/internal/middleware"
	"intake-chat/pkg"
)

// maxResponseBytes bounds how much of a cloud function reply is read.
const maxResponseBytes = 16 << 20

// CloudClient calls the intake cloud functions over HTTP. Function URLs are
// BaseURL + "/" + Prefix + function name.
type CloudClient struct {
	http    *http.Client
	baseURL string
	prefix  string
}

// NewCloudClient constructs a CloudClient. A nil httpClient falls back to
// http.DefaultClient.
func NewCloudClient(httpClient *http.Client, baseURL, prefix string) *CloudClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &CloudClient{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		prefix:  prefix,
	}
}

func (c *CloudClient) endpoint(fn string) string {
	return c.baseURL + "/" + c.prefix + fn
}

func (c *CloudClient) ProcessMessage(ctx context.Context, req pkg.ProcessMessageRequest) (*pkg.ProcessMessageResponse, error) {
	var out pkg.ProcessMessageResponse
	if err := c.postJSON(ctx, FnProcessMessage, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ProcessMedicationImage uploads the image as the multipart field "image".
func (c *CloudClient) ProcessMedicationImage(ctx context.Context, img Image) (*pkg.MedicationImageResponse, error) {
	if len(img.Data) == 0 {
		return nil, errors.New("processMedicationImage: empty image")
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	contentType := img.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(img.Data)
	}
	filename := img.Filename
	if filename == "" {
		filename = "medication"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, filename))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("processMedicationImage: building form: %w", err)
	}
	if _, err := part.Write(img.Data); err != nil {
		return nil, fmt.Errorf("processMedicationImage: building form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("processMedicationImage: building form: %w", err)
	}

	var out pkg.MedicationImageResponse
	if err := c.do(ctx, FnProcessMedicationImage, &buf, mw.FormDataContentType(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *CloudClient) DoctorSummaryAndQA(ctx context.Context, req pkg.DoctorRequest) (*pkg.DoctorResponse, error) {
	var out pkg.DoctorResponse
	if err := c.postJSON(ctx, FnDoctorSummaryAndQA, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *CloudClient) GenerateRecommendations(ctx context.Context, record pkg.PatientRecord) (*pkg.RecommendationsResponse, error) {
	var out pkg.RecommendationsResponse
	if err := c.postJSON(ctx, FnGenerateRecommendations, pkg.RecommendationsRequest{PatientRecord: record}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *CloudClient) GenerateFollowUp(ctx context.Context) (*pkg.FollowUpResponse, error) {
	var out pkg.FollowUpResponse
	if err := c.postJSON(ctx, FnGenerateFollowUp, struct{}{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *CloudClient) QueryPatientMedications(ctx context.Context, patientID string) (*pkg.MedicationLookupResponse, error) {
	var out pkg.MedicationLookupResponse
	if err := c.postJSON(ctx, FnQueryPatientMedications, pkg.MedicationLookupRequest{PatientID: patientID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *CloudClient) postJSON(ctx context.Context, fn string, body, out interface{}) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: encoding request: %w", fn, err)
	}
	return c.do(ctx, fn, bytes.NewReader(b), "application/json", out)
}

// do performs a single POST. Transport failures and non-2xx statuses are
// returned as errors; nothing is retried.
func (c *CloudClient) do(ctx context.Context, fn string, body io.Reader, contentType string, out interface{}) error {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(fn), body)
	if err != nil {
		return fmt.Errorf("%s: building request: %w", fn, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	reqID := middleware.RequestIDFromContext(ctx)
	if reqID != "" {
		req.Header.Set("X-Request-ID", reqID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", fn, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%s: reading response: %w", fn, err)
	}

	logger.WithFields(map[string]interface{}{
		"function":   fn,
		"status":     resp.StatusCode,
		"request_id": reqID,
		"duration":   time.Since(start).Milliseconds(),
	}).Debug("Called cloud function")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(data)
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		return &StatusError{Function: fn, StatusCode: resp.StatusCode, Body: snippet}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: decoding response: %w", fn, err)
	}
	return nil
}
