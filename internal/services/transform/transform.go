// Package transform holds the gateway's generic message shape and
// converts it into each provider's wire format. All conversions are pure:
// images on the current request are attached only to the last user
// message, historical image references stay inline on their originating
// message, and a blank text body is replaced with a deterministic
// placeholder.
package transform

import (
	"fmt"
	"strings"
)

// Message is one turn of conversation history in the gateway's generic
// shape. Immutable within a request.
type Message struct {
	Role      string `json:"role"` // "user" or "assistant"
	Content   string `json:"content"`
	ImageData string `json:"imageData,omitempty"` // base64
	MediaType string `json:"mediaType,omitempty"`
}

// ImageAttachment is an inline image carried on the current request.
type ImageAttachment struct {
	Data      string `json:"data"` // base64
	MediaType string `json:"mediaType"`
}

// EmptyTextPlaceholder stands in for a blank user message that carries
// attachments.
const EmptyTextPlaceholder = "Please analyze this image."

// placeholderFor substitutes the placeholder when a message carrying
// attachments has no visible text. Whitespace-only counts as blank.
func placeholderFor(text string) string {
	if strings.TrimSpace(text) == "" {
		return EmptyTextPlaceholder
	}
	return text
}

// Anthropic content blocks.

type AnthropicImageSource struct {
	Type      string `json:"type"` // always "base64"
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type AnthropicBlock struct {
	Type   string                `json:"type"` // "text" | "image"
	Text   string                `json:"text,omitempty"`
	Source *AnthropicImageSource `json:"source,omitempty"`
}

type AnthropicMessage struct {
	Role    string           `json:"role"`
	Content []AnthropicBlock `json:"content"`
}

// ToAnthropic renders history plus current images as Anthropic messages.
func ToAnthropic(messages []Message, images []ImageAttachment) []AnthropicMessage {
	out := make([]AnthropicMessage, 0, len(messages))
	lastUser := lastUserIndex(messages)

	for i, m := range messages {
		blocks := make([]AnthropicBlock, 0, 2)

		if m.ImageData != "" {
			blocks = append(blocks, AnthropicBlock{
				Type: "image",
				Source: &AnthropicImageSource{
					Type:      "base64",
					MediaType: mediaTypeOrDefault(m.MediaType),
					Data:      m.ImageData,
				},
			})
		}
		if i == lastUser {
			for _, img := range images {
				blocks = append(blocks, AnthropicBlock{
					Type: "image",
					Source: &AnthropicImageSource{
						Type:      "base64",
						MediaType: mediaTypeOrDefault(img.MediaType),
						Data:      img.Data,
					},
				})
			}
		}

		text := m.Content
		if len(blocks) > 0 {
			text = placeholderFor(text)
		}
		blocks = append(blocks, AnthropicBlock{Type: "text", Text: text})

		out = append(out, AnthropicMessage{Role: m.Role, Content: blocks})
	}
	return out
}

// OpenAI chat messages: content is either a plain string or a parts array.

type OpenAIImageURL struct {
	URL string `json:"url"`
}

type OpenAIPart struct {
	Type     string          `json:"type"` // "text" | "image_url"
	Text     string          `json:"text,omitempty"`
	ImageURL *OpenAIImageURL `json:"image_url,omitempty"`
}

type OpenAIMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"` // string or []OpenAIPart
}

// ToOpenAI renders history plus current images as OpenAI chat messages.
func ToOpenAI(messages []Message, images []ImageAttachment) []OpenAIMessage {
	out := make([]OpenAIMessage, 0, len(messages))
	lastUser := lastUserIndex(messages)

	for i, m := range messages {
		var imgs []ImageAttachment
		if m.ImageData != "" {
			imgs = append(imgs, ImageAttachment{Data: m.ImageData, MediaType: m.MediaType})
		}
		if i == lastUser {
			imgs = append(imgs, images...)
		}

		if len(imgs) == 0 {
			out = append(out, OpenAIMessage{Role: m.Role, Content: m.Content})
			continue
		}

		parts := []OpenAIPart{{Type: "text", Text: placeholderFor(m.Content)}}
		for _, img := range imgs {
			parts = append(parts, OpenAIPart{
				Type: "image_url",
				ImageURL: &OpenAIImageURL{
					URL: fmt.Sprintf("data:%s;base64,%s", mediaTypeOrDefault(img.MediaType), img.Data),
				},
			})
		}
		out = append(out, OpenAIMessage{Role: m.Role, Content: parts})
	}
	return out
}

// Google generateContent parts.

type GoogleInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type GooglePart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *GoogleInlineData `json:"inlineData,omitempty"`
}

type GoogleContent struct {
	Role  string       `json:"role"` // "user" | "model"
	Parts []GooglePart `json:"parts"`
}

// ToGoogle renders history plus current images as Google contents. The
// assistant role maps to "model".
func ToGoogle(messages []Message, images []ImageAttachment) []GoogleContent {
	out := make([]GoogleContent, 0, len(messages))
	lastUser := lastUserIndex(messages)

	for i, m := range messages {
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}

		parts := make([]GooglePart, 0, 2)
		if m.ImageData != "" {
			parts = append(parts, GooglePart{InlineData: &GoogleInlineData{
				MimeType: mediaTypeOrDefault(m.MediaType),
				Data:     m.ImageData,
			}})
		}
		if i == lastUser {
			for _, img := range images {
				parts = append(parts, GooglePart{InlineData: &GoogleInlineData{
					MimeType: mediaTypeOrDefault(img.MediaType),
					Data:     img.Data,
				}})
			}
		}

		text := m.Content
		if len(parts) > 0 {
			text = placeholderFor(text)
		}
		parts = append(parts, GooglePart{Text: text})

		out = append(out, GoogleContent{Role: role, Parts: parts})
	}
	return out
}

func lastUserIndex(messages []Message) int {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return i
		}
	}
	return -1
}

func mediaTypeOrDefault(mt string) string {
	if mt == "" {
		return "image/png"
	}
	return mt
}
