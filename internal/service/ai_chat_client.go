package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	// AIProviderGemini 表示使用 Google Gemini。
	AIProviderGemini = "gemini"
	// AIProviderOpenAI 表示使用 OpenAI 能力。
	AIProviderOpenAI = "openai"
	// AIProviderDeepSeek 表示使用 DeepSeek 能力。
	AIProviderDeepSeek = "deepseek"

	defaultGeminiBaseURL   = "https://generativelanguage.googleapis.com/v1beta"
	defaultOpenAIBaseURL   = "https://api.openai.com/v1"
	defaultDeepSeekBaseURL = "https://api.deepseek.com/v1"

	defaultGeminiModel   = "gemini-2.5-flash"
	defaultOpenAIModel   = "gpt-4o-mini"
	defaultDeepSeekModel = "deepseek-chat"

	defaultAIHTTPTimeout = 180 * time.Second
)

// TextRequest 描述一次文本生成请求。
type TextRequest struct {
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float64
}

// TextResponse 是模型返回的文本及用量。
type TextResponse struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
}

// TextGenerator 是外部文本生成能力的抽象，便于在测试中替换。
type TextGenerator interface {
	GenerateText(ctx context.Context, req TextRequest) (TextResponse, error)
}

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	Contents          []geminiContent         `json:"contents"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// AIClientOptions 配置 AIChatClient。
type AIClientOptions struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
	Logger   zerolog.Logger
}

// AIChatClient 通过 HTTP 调用 Gemini 或 OpenAI 兼容接口生成文本。
// 客户端在启动时构造一次，并在请求之间复用。
type AIChatClient struct {
	provider string
	apiKey   string
	model    string
	baseURL  string
	http     httpDoer
	logger   zerolog.Logger
}

// NewAIChatClient 根据选项构造客户端，未指定的模型与地址使用各平台默认值。
func NewAIChatClient(opts AIClientOptions) *AIChatClient {
	provider := normalizeAIProvider(opts.Provider)
	if provider == "" {
		provider = AIProviderGemini
	}

	c := &AIChatClient{
		provider: provider,
		apiKey:   strings.TrimSpace(opts.APIKey),
		http:     &http.Client{Timeout: defaultAIHTTPTimeout},
		logger:   opts.Logger,
	}
	c.SetModel(opts.Model)
	c.SetBaseURL(opts.BaseURL)
	return c
}

// Provider 返回当前使用的平台名称。
func (c *AIChatClient) Provider() string {
	return c.provider
}

// SetHTTPClient 覆盖默认 HTTP 客户端，主要用于测试。
func (c *AIChatClient) SetHTTPClient(client httpDoer) {
	if client == nil {
		c.http = &http.Client{Timeout: defaultAIHTTPTimeout}
		return
	}
	c.http = client
}

// SetBaseURL 覆盖 API 地址，传空字符串恢复平台默认值。
func (c *AIChatClient) SetBaseURL(base string) {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		switch c.provider {
		case AIProviderOpenAI:
			base = defaultOpenAIBaseURL
		case AIProviderDeepSeek:
			base = defaultDeepSeekBaseURL
		default:
			base = defaultGeminiBaseURL
		}
	}
	c.baseURL = base
}

// SetModel 指定模型名称，传空字符串恢复平台默认值。
func (c *AIChatClient) SetModel(model string) {
	model = strings.TrimSpace(model)
	if model == "" {
		switch c.provider {
		case AIProviderOpenAI:
			model = defaultOpenAIModel
		case AIProviderDeepSeek:
			model = defaultDeepSeekModel
		default:
			model = defaultGeminiModel
		}
	}
	c.model = model
}

// GenerateText 调用当前平台生成文本。
func (c *AIChatClient) GenerateText(ctx context.Context, req TextRequest) (TextResponse, error) {
	if c.apiKey == "" {
		return TextResponse{}, ErrAIAPIKeyMissing
	}
	logAIExchange(c.logger, "NARRATIVE", "prompt", req.UserPrompt)

	var (
		resp TextResponse
		err  error
	)
	switch c.provider {
	case AIProviderGemini:
		resp, err = c.callGemini(ctx, req)
	default:
		resp, err = c.callChatCompletions(ctx, req)
	}
	if err != nil {
		return TextResponse{}, err
	}

	logAIExchange(c.logger, "NARRATIVE", "response", resp.Content)
	if strings.TrimSpace(resp.Content) == "" {
		return TextResponse{}, ErrEmptyCompletion
	}
	return resp, nil
}

func (c *AIChatClient) callChatCompletions(ctx context.Context, req TextRequest) (TextResponse, error) {
	label := "OpenAI"
	if c.provider == AIProviderDeepSeek {
		label = "DeepSeek"
	}

	payload := chatCompletionRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: strings.TrimSpace(req.SystemPrompt)},
			{Role: "user", Content: req.UserPrompt},
		},
		MaxTokens:   max(req.MaxTokens, 0),
		Temperature: req.Temperature,
	}

	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}
	var completion chatCompletionResponse
	status, raw, err := c.postJSON(ctx, label, c.baseURL+"/chat/completions", headers, payload, &completion)
	if err != nil {
		return TextResponse{}, err
	}
	if status >= http.StatusBadRequest {
		return TextResponse{}, apiError(label, completion.Error.Message, raw, status)
	}
	if len(completion.Choices) == 0 {
		return TextResponse{}, fmt.Errorf("%s 接口未返回结果", label)
	}

	return TextResponse{
		Content:          completion.Choices[0].Message.Content,
		PromptTokens:     completion.Usage.PromptTokens,
		CompletionTokens: completion.Usage.CompletionTokens,
	}, nil
}

func (c *AIChatClient) callGemini(ctx context.Context, req TextRequest) (TextResponse, error) {
	const label = "Gemini"

	payload := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: req.UserPrompt}}}},
	}
	if system := strings.TrimSpace(req.SystemPrompt); system != "" {
		payload.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: system}}}
	}
	if req.Temperature > 0 || req.MaxTokens > 0 {
		payload.GenerationConfig = &geminiGenerationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: max(req.MaxTokens, 0),
		}
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, url.PathEscape(c.model))
	headers := map[string]string{"x-goog-api-key": c.apiKey}
	var out geminiResponse
	status, raw, err := c.postJSON(ctx, label, endpoint, headers, payload, &out)
	if err != nil {
		return TextResponse{}, err
	}
	if status >= http.StatusBadRequest {
		return TextResponse{}, apiError(label, out.Error.Message, raw, status)
	}
	if len(out.Candidates) == 0 {
		return TextResponse{}, fmt.Errorf("%s 接口未返回结果", label)
	}

	var builder strings.Builder
	for _, part := range out.Candidates[0].Content.Parts {
		builder.WriteString(part.Text)
	}

	return TextResponse{
		Content:          builder.String(),
		PromptTokens:     out.UsageMetadata.PromptTokenCount,
		CompletionTokens: out.UsageMetadata.CandidatesTokenCount,
	}, nil
}

func (c *AIChatClient) postJSON(ctx context.Context, label, endpoint string, headers map[string]string, payload, out any) (int, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("构造请求失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("创建 %s 请求失败: %w", label, err)
	}
	for key, value := range headers {
		httpReq.Header.Set(key, value)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "blogpulse-ai/1.0")

	client := c.http
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return 0, nil, fmt.Errorf("请求 %s 接口失败: %w", label, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, fmt.Errorf("读取 %s 响应失败: %w", label, err)
	}

	if err := json.Unmarshal(respBody, out); err != nil && resp.StatusCode < http.StatusBadRequest {
		return 0, nil, fmt.Errorf("解析 %s 响应失败: %w", label, err)
	}
	return resp.StatusCode, respBody, nil
}

func apiError(label, message string, raw []byte, status int) error {
	errMsg := strings.TrimSpace(message)
	if errMsg == "" {
		errMsg = strings.TrimSpace(string(raw))
	}
	if errMsg == "" {
		errMsg = http.StatusText(status)
	}
	return fmt.Errorf("%s 接口返回错误：%s", label, errMsg)
}

func normalizeAIProvider(provider string) string {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case AIProviderGemini, "google":
		return AIProviderGemini
	case AIProviderOpenAI:
		return AIProviderOpenAI
	case AIProviderDeepSeek:
		return AIProviderDeepSeek
	default:
		return ""
	}
}
