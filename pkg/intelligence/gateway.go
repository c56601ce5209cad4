package intelligence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	pferrors "github.com/otherjamesbrown/emlsync/pkg/errors"
	"github.com/otherjamesbrown/emlsync/pkg/logging"
)

// Gateway wraps the oracle: cleaning, prompting, one chat completion and
// decoding of the structured answer.
type Gateway struct {
	cfg     Config
	client  *openai.Client
	cleaner *Cleaner
	logger  logging.Logger
}

// GatewayOption configures a Gateway.
type GatewayOption func(*gatewayOptions)

type gatewayOptions struct {
	logger     logging.Logger
	httpClient *http.Client
}

// WithGatewayLogger sets the logger.
func WithGatewayLogger(logger logging.Logger) GatewayOption {
	return func(o *gatewayOptions) {
		o.logger = logger
	}
}

// WithHTTPClient sets the HTTP client used for completions and link lookups.
func WithHTTPClient(c *http.Client) GatewayOption {
	return func(o *gatewayOptions) {
		o.httpClient = c
	}
}

// NewGateway creates a gateway. An empty BaseURL is allowed; every call then
// fails soft with ErrNotConfigured.
func NewGateway(cfg Config, opts ...GatewayOption) *Gateway {
	cfg.applyDefaults()

	o := &gatewayOptions{
		logger:     logging.NewNopLogger(),
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(o)
	}

	g := &Gateway{
		cfg:    cfg,
		logger: o.logger.With(logging.F("component", "intelligence_gateway")),
		cleaner: &Cleaner{
			MaxChars: cfg.MaxChars,
			Links:    NewLinkResolver(o.httpClient, cfg.LinkTimeout),
		},
	}

	if cfg.BaseURL != "" {
		apiKey := cfg.APIKey
		if apiKey == "" {
			// Local OpenAI-compatible servers ignore the key but the client requires one.
			apiKey = "not-needed"
		}
		client := openai.NewClient(
			option.WithAPIKey(apiKey),
			option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/"),
			option.WithHTTPClient(o.httpClient),
			option.WithMaxRetries(cfg.MaxRetries),
		)
		g.client = &client
	} else {
		g.logger.Warn("LLM base URL is not set; analysis is disabled")
	}

	return g
}

// Model returns the configured model name.
func (g *Gateway) Model() string {
	return g.cfg.Model
}

// Analyze extracts structured facts from message text. contextDate grounds
// relative dates. Any failure is logged and yields nil.
func (g *Gateway) Analyze(ctx context.Context, text, contextDate string, meta Metadata) *AnalysisResult {
	if contextDate == "" {
		contextDate = "Unknown"
	}
	log := g.logger.WithContext(ctx)

	cleaned, truncated := g.cleaner.Clean(ctx, text)
	if truncated {
		log.Warn("text too long, truncated for analysis", logging.F("max_chars", g.cfg.MaxChars))
	}

	system := fmt.Sprintf(analysisSystemPrompt, contextDate, analysisSchema())
	user := buildUserPrompt(cleaned, meta)

	var result AnalysisResult
	start := time.Now()
	if err := g.complete(ctx, system, user, &result); err != nil {
		log.Warn("analysis failed, continuing without it",
			logging.F("error_code", string(pferrors.ErrOracleFailed)),
			logging.F("llm_error", string(llmCode(err))),
			logging.F("model", g.cfg.Model),
			logging.Err(err),
		)
		return nil
	}

	result.normalize()
	log.Info("analysis complete",
		logging.F("sentiment", string(result.Sentiment)),
		logging.F("intent", string(result.Intent)),
		logging.F("tasks", len(result.SuggestedTasks)),
		logging.F("has_deal", result.DealInfo != nil),
		logging.F("duration", time.Since(start)),
	)
	return &result
}

// ParseCompany turns free text such as search snippets or a scraped page into
// company facts.
func (g *Gateway) ParseCompany(ctx context.Context, text string) (*CompanyDetails, error) {
	cleaned, _ := g.cleaner.Clean(ctx, text)
	if cleaned == "" {
		return nil, &LLMError{Code: ErrParseFailure, Message: "no content to parse"}
	}

	var details CompanyDetails
	system := fmt.Sprintf(companySystemPrompt, companySchema())
	if err := g.complete(ctx, system, cleaned, &details); err != nil {
		return nil, err
	}
	if details.IsEmpty() {
		return nil, &LLMError{Code: ErrParseFailure, Message: "model returned no company facts"}
	}
	return &details, nil
}

// complete runs one chat completion in JSON mode and decodes the answer into target.
func (g *Gateway) complete(ctx context.Context, system, user string, target any) error {
	if g.client == nil {
		return &LLMError{Code: ErrNotConfigured, Message: "LLM base URL is not set"}
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	completion, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: g.cfg.Model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(g.cfg.Temperature),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			return &LLMError{Code: ErrTimeout, Message: fmt.Sprintf("request timeout after %s", g.cfg.Timeout)}
		}
		return &LLMError{Code: ErrUnavailable, Message: fmt.Sprintf("chat completion: %v", err)}
	}

	if len(completion.Choices) == 0 {
		return &LLMError{Code: ErrParseFailure, Message: "no choices in response"}
	}
	choice := completion.Choices[0]
	if choice.FinishReason == "length" {
		return &LLMError{Code: ErrTokenLimit, Message: "response truncated: hit max_tokens limit", Details: choice.Message.Content}
	}

	content := stripFences(choice.Message.Content)
	if err := json.Unmarshal([]byte(content), target); err != nil {
		return &LLMError{Code: ErrParseFailure, Message: fmt.Sprintf("parse JSON: %v", err), Details: choice.Message.Content}
	}
	return nil
}

// stripFences removes Markdown code fences and any text around the outermost
// JSON object, including <think> blocks some local models emit.
func stripFences(content string) string {
	content = strings.TrimSpace(content)
	if i := strings.LastIndex(content, "</think>"); i >= 0 {
		content = strings.TrimSpace(content[i+len("</think>"):])
	}
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		return content[start : end+1]
	}
	return content
}

func llmCode(err error) LLMErrorCode {
	var le *LLMError
	if errors.As(err, &le) {
		return le.Code
	}
	return ErrUnavailable
}

const analysisSystemPrompt = `Extract CRM structured data from the provided email. Context Date is %s.
Resolve relative dates such as "next Monday" against the context date and write due dates as YYYY-MM-DD.
Only report facts stated in the email or its metadata. Leave unknown fields out.
Respond with one JSON object that matches this JSON schema:
%s`

const companySystemPrompt = `Parse the following text about a company into a structured company record.
Only report facts present in the text. Leave unknown fields out.
Respond with one JSON object that matches this JSON schema:
%s`

func buildUserPrompt(body string, meta Metadata) string {
	if meta.IsZero() {
		return body
	}

	var b strings.Builder
	b.WriteString("Metadata:\n")
	writeLine := func(k, v string) {
		if v != "" {
			b.WriteString(k)
			b.WriteString(": ")
			b.WriteString(v)
			b.WriteString("\n")
		}
	}
	writeLine("From", meta.From)
	writeLine("To", meta.To)
	writeLine("Cc", meta.Cc)
	writeLine("Subject", meta.Subject)
	writeLine("Attachments", strings.Join(meta.Attachments, ", "))
	b.WriteString("\nContent:\n")
	b.WriteString(body)
	return b.String()
}
