package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"showroom_bot/internal/entities"
	"showroom_bot/internal/resilience"
)

// ReasoningClient talks to an OpenAI-compatible chat completions endpoint with tool calling.
type ReasoningClient struct {
	http  *resty.Client
	model string
}

func NewReasoningClient(baseURL, apiKey, model string) *ReasoningClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(apiKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(60 * time.Second)

	log.Info().Str("baseURL", baseURL).Str("model", model).Msg("Reasoning provider configured")
	return &ReasoningClient{http: client, model: model}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Tools       []chatTool    `json:"tools,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Name       string         `json:"name,omitempty"`
}

type chatTool struct {
	Type     string       `json:"type"`
	Function chatFunction `json:"function"`
}

type chatFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type chatToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func toWire(req entities.CompletionRequest, model string) chatRequest {
	out := chatRequest{Model: model, Temperature: 0.3}
	for _, m := range req.Messages {
		wm := chatMessage{Role: string(m.Role), Content: m.Content, ToolCallID: m.ToolCallID, Name: m.Name}
		for _, tc := range m.ToolCalls {
			var call chatToolCall
			call.ID = tc.ID
			call.Type = "function"
			call.Function.Name = tc.Name
			call.Function.Arguments = string(tc.Arguments)
			wm.ToolCalls = append(wm.ToolCalls, call)
		}
		out.Messages = append(out.Messages, wm)
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, chatTool{
			Type:     "function",
			Function: chatFunction{Name: t.Name, Description: t.Description, Parameters: t.Parameters},
		})
	}
	return out
}

func fromWire(resp *chatResponse) (*entities.Completion, error) {
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("reasoning provider returned no choices")
	}
	choice := resp.Choices[0]
	out := &entities.Completion{
		Text:         choice.Message.Content,
		FinishReason: choice.FinishReason,
	}
	for _, tc := range choice.Message.ToolCalls {
		id := tc.ID
		if id == "" {
			id = "call_" + uuid.NewString()
		}
		args := json.RawMessage(tc.Function.Arguments)
		if len(args) == 0 {
			args = json.RawMessage("{}")
		}
		out.ToolCalls = append(out.ToolCalls, entities.ToolCall{ID: id, Name: tc.Function.Name, Arguments: args})
	}
	return out, nil
}

func (c *ReasoningClient) Complete(ctx context.Context, req entities.CompletionRequest) (*entities.Completion, error) {
	var out chatResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(toWire(req, c.model)).
		SetResult(&out).
		SetError(&out).
		Post("/chat/completions")
	if err != nil {
		return nil, resilience.Transient(fmt.Errorf("reasoning request: %w", err))
	}
	if resp.IsError() {
		msg := resp.String()
		if out.Error != nil {
			msg = out.Error.Message
		}
		err := fmt.Errorf("reasoning provider: status %s: %s", resp.Status(), msg)
		if resp.StatusCode() >= http.StatusInternalServerError || resp.StatusCode() == http.StatusTooManyRequests {
			return nil, resilience.Transient(err)
		}
		return nil, err
	}
	return fromWire(&out)
}
