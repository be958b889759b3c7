package imaging

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultStabilityBaseURL = "https://api.stability.ai"
	stabilityPath           = "/v2beta/stable-image/generate/sd3"
	defaultEditTimeout      = 120 * time.Second

	negativePrompt = "blurry, deformed, low resolution, disfigured, cartoon, abstract, bad quality"
)

// ErrNoImage is returned when the response carries no usable image payload.
var ErrNoImage = errors.New("no image in response")

// Editor turns a captured frame into a past-life scene through the Stability
// image-to-image endpoint.
type Editor struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewEditor creates an Editor. An empty baseURL targets the public Stability API.
func NewEditor(apiKey, baseURL string) *Editor {
	if baseURL == "" {
		baseURL = DefaultStabilityBaseURL
	}
	return &Editor{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultEditTimeout,
		},
	}
}

// ScenePrompt is the img2img prompt for the given profession and age.
func ScenePrompt(profession string, age int) string {
	return fmt.Sprintf("Dramatic past-life scene of a %s, age %d, high quality, job side background, working the job,8k, cinemtic, clear image, photorealistic", profession, age)
}

// Edit submits image with the scene prompt and returns the decoded result.
func (e *Editor) Edit(ctx context.Context, image []byte, profession string, age int) ([]byte, error) {
	body, contentType, err := buildEditForm(image, profession, age)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+stabilityPath, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("stability: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out editResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	encoded := out.payload()
	if encoded == "" {
		return nil, ErrNoImage
	}
	img, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decoding image payload: %w", err)
	}
	return img, nil
}

func buildEditForm(image []byte, profession string, age int) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fw, err := mw.CreateFormFile("image", "capture.png")
	if err != nil {
		return nil, "", fmt.Errorf("creating image part: %w", err)
	}
	if _, err := fw.Write(image); err != nil {
		return nil, "", fmt.Errorf("writing image part: %w", err)
	}

	fields := []struct{ name, value string }{
		{"prompt", ScenePrompt(profession, age)},
		{"negative_prompt", negativePrompt},
		{"mode", "image-to-image"},
		{"strength", "0.5"},
		{"model", "sd3.5-large-turbo"},
		{"style_preset", "photographic"},
		{"output_format", "png"},
	}
	for _, f := range fields {
		if err := mw.WriteField(f.name, f.value); err != nil {
			return nil, "", fmt.Errorf("writing field %s: %w", f.name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("closing form: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}

// editResponse accepts every payload layout the endpoint has used.
type editResponse struct {
	Image     string `json:"image"`
	Artifacts []struct {
		Base64 string `json:"base64"`
	} `json:"artifacts"`
	Images []struct {
		Data   string `json:"data"`
		Base64 string `json:"base64"`
	} `json:"images"`
}

func (r editResponse) payload() string {
	switch {
	case len(r.Artifacts) > 0:
		return r.Artifacts[0].Base64
	case len(r.Images) > 0:
		if r.Images[0].Data != "" {
			return r.Images[0].Data
		}
		return r.Images[0].Base64
	default:
		return r.Image
	}
}
