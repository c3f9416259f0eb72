package provider_service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/serisow/craftvid/failure"
)

const openAIImageName = "openai_image"

// noTextInstruction keeps rendered text out of generated scene images.
const noTextInstruction = "IMPORTANT: Do not include any text, words, letters, numbers, " +
	"or captions in the image. The image should be completely free " +
	"of any textual elements. This image will be used for video creation."

type OpenAIImageService struct {
	httpClient *http.Client
	logger     *slog.Logger
	apiURL     string
	apiKey     string
	model      string
}

func NewOpenAIImageService(logger *slog.Logger, apiURL, apiKey, model string) *OpenAIImageService {
	return &OpenAIImageService{
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		logger:     logger,
		apiURL:     apiURL,
		apiKey:     apiKey,
		model:      model,
	}
}

func (s *OpenAIImageService) Configured() bool {
	return s.apiKey != "" && s.apiURL != ""
}

type openAIImageResponse struct {
	Data []struct {
		URL           string `json:"url"`
		B64JSON       string `json:"b64_json"`
		RevisedPrompt string `json:"revised_prompt"`
	} `json:"data"`
}

func (s *OpenAIImageService) Generate(ctx context.Context, req ImageRequest) (*ImageResult, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, failure.Provider(openAIImageName, fmt.Errorf("visual prompt is empty"))
	}
	size := req.Size
	if size == "" {
		size = "1024x1024"
	}
	quality := req.Quality
	if quality == "" {
		quality = "standard"
	}
	style := req.Style
	if style == "" {
		style = "vivid"
	}

	requestBody, err := json.Marshal(map[string]interface{}{
		"model":           s.model,
		"prompt":          req.Prompt + " " + noTextInstruction,
		"n":               1,
		"size":            size,
		"quality":         quality,
		"style":           style,
		"response_format": "url",
	})
	if err != nil {
		return nil, fmt.Errorf("error marshaling request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL, bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, failure.Provider(openAIImageName, fmt.Errorf("error making request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		rawBody, openAIErr := extractOpenAIErrorDetails(resp)
		httpErr := &OpenAIHttpError{
			StatusCode: resp.StatusCode,
			RawBody:    rawBody,
			Message:    "Unknown error",
			ErrorType:  "unknown",
		}
		if openAIErr != nil {
			httpErr.Message = openAIErr.Error.Message
			httpErr.ErrorType = openAIErr.Error.Type
		}
		s.logger.Error("OpenAI Image API error",
			slog.Int("status_code", httpErr.StatusCode),
			slog.String("error_type", httpErr.ErrorType),
			slog.String("error_message", httpErr.Message),
			slog.String("model", s.model),
			slog.String("image_size", size))
		return nil, classifyHTTP(openAIImageName, resp.StatusCode, resp.Header, httpErr)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, failure.Provider(openAIImageName, fmt.Errorf("error reading response body: %w", err))
	}
	var result openAIImageResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, failure.Provider(openAIImageName, fmt.Errorf("error unmarshaling response: %w", err))
	}
	if len(result.Data) == 0 {
		return nil, failure.Provider(openAIImageName, fmt.Errorf("unexpected response format from OpenAI Image API"))
	}

	item := result.Data[0]
	out := &ImageResult{
		URL:           item.URL,
		RevisedPrompt: item.RevisedPrompt,
		Cost:          imageCost(quality),
	}
	if item.URL == "" {
		if item.B64JSON == "" {
			return nil, failure.Provider(openAIImageName, fmt.Errorf("image not found in OpenAI Image API response"))
		}
		if out.Data, err = base64.StdEncoding.DecodeString(item.B64JSON); err != nil {
			return nil, failure.Provider(openAIImageName, fmt.Errorf("invalid image data: %w", err))
		}
		out.MimeType = "image/png"
	}
	return out, nil
}
