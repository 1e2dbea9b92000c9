// Package assist proposes a bounding box for an image. Proposals come from a
// vision model served by Ollama or a llama.cpp server, or from a local saliency
// map when no server is available.
package assist

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/jpeg"
	"image/png"
	"log/slog"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"github.com/Willayat060/data-annotating-tool/internal/errors"
	"github.com/Willayat060/data-annotating-tool/internal/logging"
	"github.com/Willayat060/data-annotating-tool/pkg/types"
)

// Backend names accepted by New.
const (
	BackendSaliency = "saliency"
	BackendOllama   = "ollama"
	BackendLlamaCpp = "llamacpp"
)

// DefaultMaxDim bounds the longer image side sent to a model.
const DefaultMaxDim = 1024

// Proposer suggests one box for an image.
type Proposer interface {
	Propose(ctx context.Context, img image.Image) (types.Proposal, error)
}

// VisionClient is a chat endpoint of a vision model.
type VisionClient interface {
	SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error)
	AnalyzeImage(ctx context.Context, model, prompt, imgB64 string) (*types.AnalysisResult, error)
}

// Options configures New.
type Options struct {
	Backend string
	URL     string
	Model   string
	Timeout time.Duration
	Prompt  string
	MaxDim  int
	Logger  *slog.Logger
}

// New builds the proposer for opts.Backend.
func New(opts Options) (Proposer, error) {
	switch strings.ToLower(opts.Backend) {
	case "", BackendSaliency:
		return NewSaliency(), nil
	case BackendOllama:
		c, err := NewOllamaClient(opts.URL)
		if err != nil {
			return nil, err
		}
		return NewModelProposer(c, BackendOllama, opts), nil
	case BackendLlamaCpp:
		c, err := NewLlamaCppClient(opts.URL)
		if err != nil {
			return nil, err
		}
		return NewModelProposer(c, BackendLlamaCpp, opts), nil
	default:
		return nil, errors.Newf("unknown assist backend %q", opts.Backend).
			Component("assist").
			Category(errors.CategoryValidation).
			Build()
	}
}

// ModelProposer asks a vision model for the primary subject of an image.
type ModelProposer struct {
	client  VisionClient
	source  string
	model   string
	prompt  string
	maxDim  int
	timeout time.Duration
	log     *slog.Logger
}

// NewModelProposer wraps client. source names the backend in proposals.
func NewModelProposer(client VisionClient, source string, opts Options) *ModelProposer {
	p := &ModelProposer{
		client:  client,
		source:  source,
		model:   opts.Model,
		prompt:  opts.Prompt,
		maxDim:  opts.MaxDim,
		timeout: opts.Timeout,
		log:     logging.OrDiscard(opts.Logger).With("component", "assist", "backend", source),
	}
	if p.prompt == "" {
		p.prompt = DefaultPrompt
	}
	if p.maxDim <= 0 {
		p.maxDim = DefaultMaxDim
	}
	return p
}

// Propose sends img to the model and converts its answer to a box of class 0.
// A "none" answer yields ErrNoSubject.
func (p *ModelProposer) Propose(ctx context.Context, img image.Image) (types.Proposal, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	b64, err := PrepareImage(img, "jpg", p.maxDim, 85)
	if err != nil {
		return types.Proposal{}, errors.New(err).
			Component("assist").
			Category(errors.CategoryGeneric).
			Build()
	}

	start := time.Now()
	result, err := p.client.AnalyzeImage(ctx, p.model, p.prompt, b64)
	if err != nil {
		return types.Proposal{}, errors.New(err).
			Component("assist").
			Category(errors.CategoryIntegration).
			Context("backend", p.source).
			Context("model", p.model).
			Build()
	}
	p.log.Debug("model answered", "model", p.model, "label", result.Primary.Label, "elapsed", time.Since(start))

	result = validateAndAdjust(result)
	if strings.EqualFold(result.Primary.Label, "none") {
		return types.Proposal{}, errors.New(errors.ErrNoSubject).
			Component("assist").
			Category(errors.CategoryNotFound).
			Context("backend", p.source).
			Build()
	}

	return types.Proposal{
		Box:        result.Primary.Box.ToBox(0),
		Label:      result.Primary.Label,
		Confidence: result.Primary.Confidence,
		Source:     p.source,
	}, nil
}

// PrepareImage downsizes img so its longer side is at most maxDim and returns
// it base64 encoded as jpg or png.
func PrepareImage(img image.Image, format string, maxDim, quality int) (string, error) {
	if maxDim > 0 {
		b := img.Bounds()
		w, h := b.Dx(), b.Dy()
		if w > maxDim || h > maxDim {
			if w >= h {
				img = imaging.Resize(img, maxDim, 0, imaging.Lanczos)
			} else {
				img = imaging.Resize(img, 0, maxDim, imaging.Lanczos)
			}
		}
	}

	var buf bytes.Buffer
	switch strings.ToLower(format) {
	case "png":
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return "", err
		}
	default:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return "", err
		}
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
