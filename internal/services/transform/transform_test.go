package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func history() []Message {
	return []Message{
		{Role: "user", Content: "What is in this picture?", ImageData: "b2xk", MediaType: "image/jpeg"},
		{Role: "assistant", Content: "A lighthouse at dusk."},
		{Role: "user", Content: "Compare it with this one."},
	}
}

func currentImages() []ImageAttachment {
	return []ImageAttachment{{Data: "bmV3", MediaType: "image/png"}}
}

func TestToAnthropicAttachesImagesToLastUserMessage(t *testing.T) {
	msgs := ToAnthropic(history(), currentImages())
	require.Len(t, msgs, 3)

	// Historical image stays inline on its own message.
	require.Len(t, msgs[0].Content, 2)
	assert.Equal(t, "image", msgs[0].Content[0].Type)
	assert.Equal(t, "b2xk", msgs[0].Content[0].Source.Data)
	assert.Equal(t, "image/jpeg", msgs[0].Content[0].Source.MediaType)
	assert.Equal(t, "base64", msgs[0].Content[0].Source.Type)

	// Assistant turn is text only.
	require.Len(t, msgs[1].Content, 1)
	assert.Equal(t, "text", msgs[1].Content[0].Type)

	// Current image lands on the last user message, image before text.
	require.Len(t, msgs[2].Content, 2)
	assert.Equal(t, "image", msgs[2].Content[0].Type)
	assert.Equal(t, "bmV3", msgs[2].Content[0].Source.Data)
	assert.Equal(t, "Compare it with this one.", msgs[2].Content[1].Text)
}

func TestToOpenAIDataURLAndStringContent(t *testing.T) {
	msgs := ToOpenAI(history(), currentImages())
	require.Len(t, msgs, 3)

	// Plain text messages keep a string content.
	assert.Equal(t, "A lighthouse at dusk.", msgs[1].Content)

	parts, ok := msgs[2].Content.([]OpenAIPart)
	require.True(t, ok)
	require.Len(t, parts, 2)
	assert.Equal(t, "text", parts[0].Type)
	assert.Equal(t, "image_url", parts[1].Type)
	assert.Equal(t, "data:image/png;base64,bmV3", parts[1].ImageURL.URL)
}

func TestToGoogleRolesAndInlineData(t *testing.T) {
	contents := ToGoogle(history(), currentImages())
	require.Len(t, contents, 3)

	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "model", contents[1].Role)
	assert.Equal(t, "user", contents[2].Role)

	require.Len(t, contents[2].Parts, 2)
	assert.Equal(t, "bmV3", contents[2].Parts[0].InlineData.Data)
	assert.Equal(t, "image/png", contents[2].Parts[0].InlineData.MimeType)
	assert.Equal(t, "Compare it with this one.", contents[2].Parts[1].Text)
}

func TestBlankTextGetsPlaceholder(t *testing.T) {
	imgs := currentImages()

	// Empty and whitespace-only bodies both count as blank when the
	// message carries attachments.
	for _, content := range []string{"", "   ", "\n\t "} {
		blank := []Message{{Role: "user", Content: content}}

		a := ToAnthropic(blank, imgs)
		assert.Equal(t, EmptyTextPlaceholder, a[0].Content[1].Text)

		o := ToOpenAI(blank, imgs)
		parts := o[0].Content.([]OpenAIPart)
		assert.Equal(t, EmptyTextPlaceholder, parts[0].Text)

		g := ToGoogle(blank, imgs)
		assert.Equal(t, EmptyTextPlaceholder, g[0].Parts[1].Text)
	}

	// Without attachments no placeholder is injected.
	a2 := ToAnthropic([]Message{{Role: "user", Content: "   "}}, nil)
	assert.Equal(t, "   ", a2[0].Content[0].Text)
}

func TestTextOnlyRoundTripSemantics(t *testing.T) {
	textOnly := []Message{
		{Role: "user", Content: "first"},
		{Role: "assistant", Content: "second"},
		{Role: "user", Content: "third"},
	}

	a := ToAnthropic(textOnly, nil)
	o := ToOpenAI(textOnly, nil)
	g := ToGoogle(textOnly, nil)

	for i, m := range textOnly {
		assert.Equal(t, m.Content, a[i].Content[0].Text)
		assert.Equal(t, m.Content, o[i].Content)
		assert.Equal(t, m.Content, g[i].Parts[0].Text)
	}
}

func TestNoUserMessageDoesNotPanic(t *testing.T) {
	msgs := []Message{{Role: "assistant", Content: "orphan"}}
	assert.NotPanics(t, func() {
		ToAnthropic(msgs, currentImages())
		ToOpenAI(msgs, currentImages())
		ToGoogle(msgs, currentImages())
	})
}
