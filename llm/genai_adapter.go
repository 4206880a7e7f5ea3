package llm

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"

	"github.com/google/uuid"
	"google.golang.org/genai"
)

// GenAIConfig configures the Gemini backend.
type GenAIConfig struct {
	APIKey      string
	UseVertexAI bool
	Project     string
	Location    string
	UserAgent   string
}

// GenAIAdapter implements Provider and TokenCounter on top of the
// google.golang.org/genai client.
type GenAIAdapter struct {
	client *genai.Client
}

// NewGenAIAdapter creates a Gemini backend. An empty APIKey lets the genai
// client fall back to its own environment lookup.
func NewGenAIAdapter(ctx context.Context, cfg GenAIConfig) (*GenAIAdapter, error) {
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.UseVertexAI {
		cc.Backend = genai.BackendVertexAI
		cc.Project = cfg.Project
		cc.Location = cfg.Location
	}
	if cfg.UserAgent != "" {
		cc.HTTPOptions = genai.HTTPOptions{Headers: http.Header{"User-Agent": []string{cfg.UserAgent}}}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, &ConfigurationError{SDKError: SDKError{Message: "failed to create genai client", Cause: err}}
	}
	return &GenAIAdapter{client: client}, nil
}

// Name returns the provider identifier.
func (a *GenAIAdapter) Name() string {
	return "gemini"
}

// GenerateContent sends a blocking request and returns the full response.
func (a *GenAIAdapter) GenerateContent(ctx context.Context, req *Request) (*Response, error) {
	resp, err := a.client.Models.GenerateContent(ctx, req.Model, toGenAIContents(req.Contents), toGenAIConfig(req.Config))
	if err != nil {
		return nil, translateGenAIError(ctx, err)
	}
	return fromGenAIResponse(req.Model, resp), nil
}

// GenerateContentStream opens a streaming request. The first chunk is pulled
// eagerly so that failures to open the stream surface as the returned error.
func (a *GenAIAdapter) GenerateContentStream(ctx context.Context, req *Request) (ResponseStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, abortError(err)
	}
	seq := a.client.Models.GenerateContentStream(ctx, req.Model, toGenAIContents(req.Contents), toGenAIConfig(req.Config))
	next, stop := iter.Pull2(seq)

	first, err, ok := next()
	if !ok {
		stop()
		return func(func(*Response, error) bool) {}, nil
	}
	if err != nil {
		stop()
		return nil, translateGenAIError(ctx, err)
	}

	model := req.Model
	return func(yield func(*Response, error) bool) {
		defer stop()
		if !yield(fromGenAIResponse(model, first), nil) {
			return
		}
		for {
			chunk, err, ok := next()
			if !ok {
				return
			}
			if err != nil {
				yield(nil, translateGenAIError(ctx, err))
				return
			}
			if !yield(fromGenAIResponse(model, chunk), nil) {
				return
			}
		}
	}, nil
}

// CountTokens returns the total token count of contents for model.
func (a *GenAIAdapter) CountTokens(ctx context.Context, model string, contents []*Content) (int, error) {
	resp, err := a.client.Models.CountTokens(ctx, model, toGenAIContents(contents), nil)
	if err != nil {
		return 0, translateGenAIError(ctx, err)
	}
	return int(resp.TotalTokens), nil
}

func toGenAIContents(contents []*Content) []*genai.Content {
	out := make([]*genai.Content, 0, len(contents))
	for _, c := range contents {
		if c == nil {
			continue
		}
		gc := &genai.Content{Role: string(c.Role), Parts: make([]*genai.Part, 0, len(c.Parts))}
		for _, p := range c.Parts {
			gc.Parts = append(gc.Parts, toGenAIPart(p))
		}
		out = append(out, gc)
	}
	return out
}

func toGenAIPart(p Part) *genai.Part {
	gp := &genai.Part{Text: p.Text, Thought: p.Thought}
	if p.FunctionCall != nil {
		gp.FunctionCall = &genai.FunctionCall{
			ID:   p.FunctionCall.ID,
			Name: p.FunctionCall.Name,
			Args: p.FunctionCall.Args,
		}
	}
	if p.FunctionResponse != nil {
		gp.FunctionResponse = &genai.FunctionResponse{
			ID:       p.FunctionResponse.ID,
			Name:     p.FunctionResponse.Name,
			Response: p.FunctionResponse.Response,
		}
	}
	return gp
}

func fromGenAIContent(gc *genai.Content) *Content {
	if gc == nil {
		return nil
	}
	c := &Content{Role: Role(gc.Role), Parts: make([]Part, 0, len(gc.Parts))}
	for _, gp := range gc.Parts {
		if gp == nil {
			continue
		}
		p := Part{Text: gp.Text, Thought: gp.Thought}
		if gp.FunctionCall != nil {
			p.FunctionCall = &FunctionCall{
				ID:   gp.FunctionCall.ID,
				Name: gp.FunctionCall.Name,
				Args: gp.FunctionCall.Args,
			}
		}
		if gp.FunctionResponse != nil {
			p.FunctionResponse = &FunctionResponse{
				ID:       gp.FunctionResponse.ID,
				Name:     gp.FunctionResponse.Name,
				Response: gp.FunctionResponse.Response,
			}
		}
		c.Parts = append(c.Parts, p)
	}
	return c
}

func toGenAIConfig(cfg GenerateConfig) *genai.GenerateContentConfig {
	gc := &genai.GenerateContentConfig{
		ResponseMIMEType: cfg.ResponseMIMEType,
	}
	if cfg.SystemInstruction != "" {
		gc.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: cfg.SystemInstruction}}}
	}
	if cfg.Temperature != nil {
		t := float32(*cfg.Temperature)
		gc.Temperature = &t
	}
	if cfg.TopP != nil {
		p := float32(*cfg.TopP)
		gc.TopP = &p
	}
	if cfg.MaxOutputTokens != nil {
		gc.MaxOutputTokens = int32(*cfg.MaxOutputTokens)
	}
	if len(cfg.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(cfg.Tools))
		for _, t := range cfg.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:                 t.Name,
				Description:          t.Description,
				ParametersJsonSchema: t.Parameters,
			})
		}
		gc.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	if cfg.ResponseSchema != nil {
		gc.ResponseJsonSchema = cfg.ResponseSchema
	}
	return gc
}

func fromGenAIResponse(model string, resp *genai.GenerateContentResponse) *Response {
	out := &Response{
		ID:       resp.ResponseID,
		Model:    model,
		Provider: "gemini",
	}
	if out.ID == "" {
		out.ID = "resp_" + uuid.New().String()[:8]
	}
	if resp.ModelVersion != "" {
		out.Model = resp.ModelVersion
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0] != nil {
		cand := resp.Candidates[0]
		out.Content = fromGenAIContent(cand.Content)
		out.FinishReason = string(cand.FinishReason)
	}
	if um := resp.UsageMetadata; um != nil {
		out.Usage = Usage{
			InputTokens:  int(um.PromptTokenCount),
			OutputTokens: int(um.CandidatesTokenCount),
			TotalTokens:  int(um.TotalTokenCount),
		}
		if um.ThoughtsTokenCount > 0 {
			n := int(um.ThoughtsTokenCount)
			out.Usage.ReasoningTokens = &n
		}
		if um.CachedContentTokenCount > 0 {
			n := int(um.CachedContentTokenCount)
			out.Usage.CacheReadTokens = &n
		}
	}
	return out
}

// translateGenAIError maps genai API errors onto the llm error hierarchy and
// cancellation onto AbortError.
func translateGenAIError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil || errors.Is(err, context.Canceled) {
		if ctxErr == nil {
			ctxErr = err
		}
		return abortError(ctxErr)
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return fromAPIError(apiErr, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return fromAPIError(*apiErrPtr, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &RequestTimeoutError{SDKError: SDKError{Message: "request timed out", Cause: err}}
	}
	return &NetworkError{SDKError: SDKError{Message: "gemini request failed", Cause: err}}
}

func fromAPIError(apiErr genai.APIError, cause error) error {
	msg := apiErr.Message
	if msg == "" {
		msg = fmt.Sprintf("gemini API error %d", apiErr.Code)
	}
	translated := ErrorFromStatusCode(apiErr.Code, msg, "gemini", apiErr.Status, nil, nil)
	if apiErr.Status == "RESOURCE_EXHAUSTED" && apiErr.Code != 429 {
		translated = &QuotaExceededError{ProviderError: ProviderError{
			SDKError:   SDKError{Message: msg},
			Provider:   "gemini",
			StatusCode: apiErr.Code,
			ErrorCode:  apiErr.Status,
		}}
	}
	setCause(translated, cause)
	return translated
}

func setCause(err error, cause error) {
	var pf providerFailure
	if errors.As(err, &pf) {
		pf.provider().Cause = cause
		return
	}
	var rt *RequestTimeoutError
	if errors.As(err, &rt) {
		rt.Cause = cause
	}
}
