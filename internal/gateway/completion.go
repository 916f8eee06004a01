package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"

	"github.com/aulalab/maisa/internal/log"
)

// defaultCallTimeout bounds a single model call. Expiry is treated as a
// gateway failure and propagates like any other completion error.
const defaultCallTimeout = 60 * time.Second

// Sentinel errors for completion calls.
var (
	// ErrEmptyResponse indicates the model produced no usable message.
	ErrEmptyResponse = errors.New("model returned empty response")
)

// GenkitCompletionConfig contains all required parameters for the
// genkit-backed completion gateway.
type GenkitCompletionConfig struct {
	Genkit    *genkit.Genkit
	ModelName string // Provider-qualified model name (e.g. "googleai/gemini-2.5-flash")
	Logger    log.Logger

	// CallTimeout bounds each model call (zero-value uses the default).
	CallTimeout time.Duration

	// RateLimiter throttles outbound calls to protect provider quota
	// (nil = use default: 10 req/s sustained, burst of 30).
	RateLimiter *rate.Limiter
}

func (cfg GenkitCompletionConfig) validate() error {
	if cfg.Genkit == nil {
		return errors.New("genkit instance is required")
	}
	if cfg.ModelName == "" {
		return errors.New("model name is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// GenkitCompletion is the production Completion implementation backed by a
// genkit-registered model. It is stateless and safe for concurrent use.
type GenkitCompletion struct {
	g           *genkit.Genkit
	modelName   string
	logger      log.Logger
	callTimeout time.Duration
	limiter     *rate.Limiter
}

// NewGenkitCompletion creates the production completion gateway.
func NewGenkitCompletion(cfg GenkitCompletionConfig) (*GenkitCompletion, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}

	limiter := cfg.RateLimiter
	if limiter == nil {
		limiter = rate.NewLimiter(10, 30)
	}

	return &GenkitCompletion{
		g:           cfg.Genkit,
		modelName:   cfg.ModelName,
		logger:      cfg.Logger,
		callTimeout: timeout,
		limiter:     limiter,
	}, nil
}

// Complete sends the ordered message list as the prompt and returns the
// model's single response message.
func (c *GenkitCompletion) Complete(ctx context.Context, msgs []*ai.Message) (*ai.Message, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	resp, err := genkit.Generate(callCtx, c.g,
		ai.WithModelName(c.modelName),
		ai.WithMessages(msgs...),
	)
	if err != nil {
		return nil, fmt.Errorf("generating completion: %w", err)
	}
	if resp == nil || resp.Text() == "" {
		return nil, ErrEmptyResponse
	}

	c.logger.Debug("completion call finished",
		"model", c.modelName,
		"prompt_messages", len(msgs),
		"response_length", len(resp.Text()),
	)

	if resp.Message != nil {
		return resp.Message, nil
	}
	return ai.NewModelMessage(ai.NewTextPart(resp.Text())), nil
}
