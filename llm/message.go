package llm

import (
	"encoding/base64"
	"strings"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ContentPartType 多模态内容片段类型
type ContentPartType string

const (
	ContentPartText     ContentPartType = "text"
	ContentPartImageURL ContentPartType = "image_url"
)

// ImageURL 图片引用，URL 可以是 data URI。
type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// ContentPart 是多模态消息中的一个片段。
type ContentPart struct {
	Type     ContentPartType `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *ImageURL       `json:"image_url,omitempty"`
}

// Message 是一条带角色的对话消息。
// Parts 非空时，消息按多模态内容发送，Content 被忽略。
type Message struct {
	Role    Role          `json:"role"`
	Content string        `json:"content,omitempty"`
	Parts   []ContentPart `json:"parts,omitempty"`
}

// IsMultimodal 判断消息是否包含多模态片段。
func (m Message) IsMultimodal() bool {
	return len(m.Parts) > 0
}

// Text 返回消息中的纯文本内容（多模态消息拼接所有文本片段）。
func (m Message) Text() string {
	if !m.IsMultimodal() {
		return m.Content
	}
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Type != ContentPartText {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(p.Text)
	}
	return b.String()
}

func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewUserMessageWithParts 创建多模态用户消息。
func NewUserMessageWithParts(parts ...ContentPart) Message {
	return Message{Role: RoleUser, Parts: parts}
}

// TextPart 创建文本片段。
func TextPart(text string) ContentPart {
	return ContentPart{Type: ContentPartText, Text: text}
}

// ImageDataPart 将二进制图片内联为 data URI 片段。
func ImageDataPart(mimeType string, data []byte) ContentPart {
	return ContentPart{
		Type:     ContentPartImageURL,
		ImageURL: &ImageURL{URL: ImageDataURL(mimeType, data)},
	}
}

// ImageDataURL 构建 data:<mime>;base64,<payload>。
func ImageDataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
