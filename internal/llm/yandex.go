package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/Morwran/yagpt"
)

// jsonOnly is appended to the system prompt since YandexGPT has no JSON
// response mode.
const jsonOnly = "Reply with a single JSON object and nothing else: no prose, no markdown fences."

// YandexClient generates through YandexGPT Lite. It cannot embed.
type YandexClient struct {
	ya       yagpt.YaGPTFace
	iamToken string
}

func NewYandex(oauthToken, folderID string) (*YandexClient, error) {
	if oauthToken == "" || folderID == "" {
		return nil, fmt.Errorf("yandex provider needs YANDEX_OAUTH_TOKEN and YANDEX_FOLDER_ID")
	}
	iam, err := yagpt.NewYaIam(oauthToken)
	if err != nil {
		return nil, fmt.Errorf("failed to init yandex iam: %w", err)
	}
	resp, err := iam.Create()
	if err != nil {
		return nil, fmt.Errorf("failed to create iam token: %w", err)
	}
	ya, err := yagpt.NewYagpt(folderID)
	if err != nil {
		return nil, fmt.Errorf("failed to init yagpt: %w", err)
	}
	return &YandexClient{ya: ya, iamToken: resp.IamToken}, nil
}

func (c *YandexClient) Generate(ctx context.Context, messages []Message) (Response, error) {
	resp, err := c.ya.CompletionWithCtx(ctx, c.iamToken, yandexMessages(messages))
	if err != nil {
		return Response{}, fmt.Errorf("yagpt completion: %w", err)
	}
	if resp == nil || len(resp.Alternatives) == 0 {
		return Response{}, fmt.Errorf("yagpt returned no alternatives")
	}
	return Response{
		Content:          resp.Alternatives[0].Message.Content,
		Model:            yagpt.YaModelLite,
		PromptTokens:     int(resp.Usage.InputTextTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}, nil
}

// yandexMessages converts messages and makes sure the system prompt asks
// for bare JSON.
func yandexMessages(messages []Message) []yagpt.Message {
	out := make([]yagpt.Message, 0, len(messages)+1)
	hasSystem := false
	for _, m := range messages {
		content := m.Content
		if m.Role == RoleSystem && !hasSystem {
			hasSystem = true
			if !strings.Contains(content, jsonOnly) {
				content = strings.TrimSpace(content) + "\n\n" + jsonOnly
			}
		}
		out = append(out, yagpt.Message{Role: m.Role, Content: content})
	}
	if !hasSystem {
		out = append([]yagpt.Message{{Role: RoleSystem, Content: jsonOnly}}, out...)
	}
	return out
}
