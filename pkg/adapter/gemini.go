package adapter

import (
	"context"
	"errors"
	"sync"

	"github.com/foodlens/foodlens/pkg/credential"
	"github.com/foodlens/foodlens/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

// CapabilityGemini is the credential pool name for the inference
// service.
const CapabilityGemini = "gemini"

// Gemini is the interface to the vision-language inference service.
type Gemini interface {
	GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiClient calls the Gemini API with credentials drawn from the
// rotator. Clients are cached per API key; a rate-limited call rotates
// to the next healthy key before giving up.
type GeminiClient struct {
	rotator         *credential.Rotator
	generativeModel string

	mu      sync.Mutex
	clients map[string]*genai.Client
}

type GeminiOption func(*GeminiClient)

func WithGenerativeModel(model string) GeminiOption {
	return func(g *GeminiClient) {
		g.generativeModel = model
	}
}

// NewGemini creates a rotation-aware Gemini client.
func NewGemini(rotator *credential.Rotator, opts ...GeminiOption) *GeminiClient {
	g := &GeminiClient{
		rotator:         rotator,
		generativeModel: "gemini-2.5-flash",
		clients:         make(map[string]*genai.Client),
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

func (g *GeminiClient) clientFor(ctx context.Context, cred *credential.Credential) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if client, ok := g.clients[cred.Secret]; ok {
		return client, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cred.Secret,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create genai client")
	}

	g.clients[cred.Secret] = client
	return client, nil
}

func (g *GeminiClient) GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	// One attempt per registered credential at most; Acquire fails with
	// ErrAllCredentialsExhausted once every key is cooling down.
	attempts := g.rotator.Size(CapabilityGemini)
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		cred, err := g.rotator.Acquire(CapabilityGemini)
		if err != nil {
			return nil, err
		}

		client, err := g.clientFor(ctx, cred)
		if err != nil {
			return nil, err
		}

		resp, err := client.Models.GenerateContent(ctx, g.generativeModel, contents, config)
		if err != nil {
			g.rotator.ReportFailure(cred, classifyGeminiError(err))
			if isRateLimit(err) {
				lastErr = goerr.Wrap(model.ErrRateLimited, "gemini rate limited", goerr.V("attempt", i+1))
				continue
			}
			return nil, goerr.Wrap(err, "failed to generate content")
		}

		g.rotator.ReportSuccess(cred)
		return resp, nil
	}

	return nil, lastErr
}

func classifyGeminiError(err error) credential.FailureKind {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 429:
			return credential.FailureRateLimited
		case 401, 403:
			return credential.FailureAuth
		}
	}
	return credential.FailureTransient
}

func isRateLimit(err error) bool {
	var apiErr genai.APIError
	return errors.As(err, &apiErr) && apiErr.Code == 429
}
