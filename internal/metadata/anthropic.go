package metadata

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/ibeckermayer/uibot/internal/config"
	"github.com/ibeckermayer/uibot/internal/store"
)

// maxImageBytes is the API's per-image limit.
const maxImageBytes = 5 << 20

var imageMediaTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

// AnthropicProvider implements Provider using Anthropic's Claude API
type AnthropicProvider struct {
	client   *anthropic.Client
	model    string
	category int
	cacheDir string
	logger   *zap.Logger
}

// NewAnthropicProvider creates a new Anthropic provider. Exchanges are
// cached under cacheDir when it is non-empty.
func NewAnthropicProvider(apiKey, model string, category int, cacheDir string, logger *zap.Logger, opts ...option.RequestOption) *AnthropicProvider {
	client := anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	if category <= 0 {
		category = DefaultCategory
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnthropicProvider{
		client:   &client,
		model:    model,
		category: category,
		cacheDir: cacheDir,
		logger:   logger.Named("anthropic"),
	}
}

// Describe sends the images (where the format allows) with the prompt and
// parses the JSON answer.
func (c *AnthropicProvider) Describe(ctx context.Context, items []UploadItem) ([]Row, error) {
	var blocks []anthropic.ContentBlockParamUnion
	attached := make(map[string]bool, len(items))
	for _, it := range items {
		block, ok := c.imageBlock(it.Path)
		if !ok {
			continue
		}
		blocks = append(blocks, block)
		attached[it.Filename()] = true
	}
	prompt := buildPrompt(items, c.category, attached)
	blocks = append(blocks, anthropic.NewTextBlock(prompt))

	// Prefill "[" so the model continues with the JSON array.
	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: 4096,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(blocks...),
			anthropic.NewAssistantMessage(anthropic.NewTextBlock("[")),
		},
	})
	if err != nil {
		c.cache(prompt, "", err)
		return nil, fmt.Errorf("failed to call Claude API: %w", err)
	}

	var responseText string
	for _, block := range message.Content {
		if block.Type == "text" {
			responseText = block.Text
			break
		}
	}
	c.cache(prompt, responseText, nil)

	if responseText == "" {
		return nil, fmt.Errorf("claude returned empty response")
	}
	return ParseDescribeResponse([]byte("["+responseText), c.category)
}

func (c *AnthropicProvider) imageBlock(path string) (anthropic.ContentBlockParamUnion, bool) {
	mediaType, ok := imageMediaTypes[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return anthropic.ContentBlockParamUnion{}, false
	}
	info, err := os.Stat(path)
	if err != nil || info.Size() > maxImageBytes {
		return anthropic.ContentBlockParamUnion{}, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		c.logger.Warn("failed to read image", zap.String("path", path), zap.Error(err))
		return anthropic.ContentBlockParamUnion{}, false
	}
	return anthropic.NewImageBlockBase64(mediaType, base64.StdEncoding.EncodeToString(data)), true
}

func (c *AnthropicProvider) cache(prompt, response string, callErr error) {
	if c.cacheDir == "" {
		return
	}
	ex := store.LLMExchange{
		Timestamp: time.Now(),
		Provider:  config.ProviderAnthropic,
		Model:     c.model,
		Prompt:    prompt,
		Response:  response,
	}
	if callErr != nil {
		ex.Error = callErr.Error()
	}
	if path, err := store.SaveLLMExchange(c.cacheDir, ex); err != nil {
		c.logger.Warn("failed to cache LLM exchange", zap.Error(err))
	} else {
		c.logger.Debug("cached LLM exchange", zap.String("path", path))
	}
}
