package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// Disclaimer сопровождает каждый ответ: рекомендации AI не имеют силы решения.
const Disclaimer = "Рекомендация AI носит справочный характер. Решение принимает арбитр."

const defaultModel = "grok-4.1-fast:free"

// Client это клиент OpenAI-совместимого API.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient создаёт экземпляр клиента.
func NewClient(baseURL, apiKey, model string) *Client {
	if model == "" {
		model = defaultModel
	}

	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Enabled сообщает, настроен ли адрес сервиса.
func (c *Client) Enabled() bool {
	return c != nil && c.baseURL != ""
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// prompt собирает пару system/user сообщений.
func prompt(system, user string) []message {
	return []message{{Role: "system", Content: system}, {Role: "user", Content: user}}
}

// completionOptions задаёт параметры генерации для одного вызова.
type completionOptions struct {
	MaxTokens   int
	Temperature float64
}

var deterministic = completionOptions{MaxTokens: 1024, Temperature: 0.2}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
}

type completionResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// complete выполняет запрос chat/completions и возвращает текст первого варианта.
func (c *Client) complete(ctx context.Context, messages []message, opts completionOptions) (string, error) {
	if !c.Enabled() {
		return "", fmt.Errorf("ai: baseURL не задан")
	}

	body, err := json.Marshal(completionRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("ai: кодирование запроса: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(c.baseURL, "/")+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ai: запрос: %w", err)
	}
	defer resp.Body.Close()

	var result completionResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&result)

	if resp.StatusCode >= 400 {
		if decodeErr == nil && result.Error != nil {
			return "", fmt.Errorf("ai: код ответа %d: %s", resp.StatusCode, result.Error.Message)
		}
		return "", fmt.Errorf("ai: код ответа %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("ai: разбор ответа: %w", decodeErr)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("ai: пустой ответ")
	}

	return result.Choices[0].Message.Content, nil
}

var codeBlockPattern = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)\\s*```")

// extractJSON достаёт JSON объект из ответа модели, допуская текст вокруг и markdown блок.
func extractJSON(text string, out any) error {
	jsonStart := strings.Index(text, "{")
	jsonEnd := strings.LastIndex(text, "}")
	if jsonStart != -1 && jsonEnd > jsonStart {
		if err := json.Unmarshal([]byte(text[jsonStart:jsonEnd+1]), out); err == nil {
			return nil
		}
	}

	if match := codeBlockPattern.FindStringSubmatch(text); len(match) > 1 {
		if err := json.Unmarshal([]byte(match[1]), out); err == nil {
			return nil
		}
	}

	return fmt.Errorf("ai: в ответе нет JSON")
}
