package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

var ErrNoAPIKey = errors.New("OPENAI_API_KEY not set")

// GeneratorConfig configures banner generation.
type GeneratorConfig struct {
	APIKey  string
	Model   string
	BaseURL string // empty uses the OpenAI default

	// MaxElapsedTime bounds retries of rate-limited or failed requests.
	MaxElapsedTime time.Duration
}

// GeneratorConfigFromEnv reads OPENAI_API_KEY and SAMEDAY_IMAGE_MODEL.
func GeneratorConfigFromEnv() GeneratorConfig {
	return GeneratorConfig{
		APIKey: os.Getenv("OPENAI_API_KEY"),
		Model:  os.Getenv("SAMEDAY_IMAGE_MODEL"),
	}
}

// Generator produces one banner per band through the OpenAI image API.
type Generator struct {
	client         openai.Client
	model          string
	maxElapsedTime time.Duration
}

func NewGenerator(cfg GeneratorConfig) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-image-1"
	}
	if cfg.MaxElapsedTime == 0 {
		cfg.MaxElapsedTime = 90 * time.Second
	}

	// Retries are handled here so they are logged and bounded like source fetches.
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Generator{
		client:         openai.NewClient(opts...),
		model:          cfg.Model,
		maxElapsedTime: cfg.MaxElapsedTime,
	}, nil
}

// Generate returns a PNG banner for band.
func (g *Generator) Generate(ctx context.Context, band Band) ([]byte, error) {
	log.Printf("imagegen: generating banner for %s", band)

	var banner []byte
	operation := func() error {
		resp, err := g.client.Images.Generate(ctx, openai.ImageGenerateParams{
			Model:        g.model,
			Prompt:       band.Prompt(),
			Size:         openai.ImageGenerateParamsSize1536x1024,
			Quality:      openai.ImageGenerateParamsQualityLow,
			OutputFormat: openai.ImageGenerateParamsOutputFormatPNG,
		})
		if err != nil {
			if ctx.Err() != nil || !retryable(err) {
				return backoff.Permanent(fmt.Errorf("image generation: %w", err))
			}
			return fmt.Errorf("image generation: %w", err)
		}

		if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
			return backoff.Permanent(errors.New("image generation: no image data returned"))
		}
		data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("decode image data: %w", err))
		}
		if _, err := png.DecodeConfig(bytes.NewReader(data)); err != nil {
			return backoff.Permanent(fmt.Errorf("generated banner is not a PNG: %w", err))
		}
		banner = data
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = g.maxElapsedTime
	notify := func(err error, wait time.Duration) {
		log.Printf("imagegen: %v, retrying in %s", err, wait.Round(time.Millisecond))
	}
	if err := backoff.RetryNotify(operation, backoff.WithContext(bo, ctx), notify); err != nil {
		return nil, err
	}

	log.Printf("imagegen: generated banner for %s (%d bytes)", band, len(banner))
	return banner, nil
}

// retryable reports whether an API error is worth another attempt.
// Transport errors without a status are retried.
func retryable(err error) bool {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return true
	}
	return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
}
