package moderation

import (
	"bytes"
	"errors"
	"strings"
)

// Kind identifies the submission variant.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
)

// DefaultImageMIMEType is used when an image arrives without a content type.
const DefaultImageMIMEType = "image/png"

// Boundary validation messages.
const (
	MsgMissingText        = "Missing text for text submission"
	MsgMissingFile        = "Missing file for image submission"
	MsgEmptyFile          = "Uploaded file has no buffer"
	MsgUnsupportedPayload = "Unsupported or missing payload."
)

// ErrUnsupportedInput is returned by a stage handed an input kind it cannot process.
var ErrUnsupportedInput = errors.New("unsupported input type")

// ValidationError reports a malformed submission. It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// IsValidationError reports whether err is (or wraps) a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// File is an uploaded file as received at the boundary.
type File struct {
	Data     []byte
	Filename string
	MIMEType string
}

// Submission is the untrusted request payload.
type Submission struct {
	Type string
	Text string
	File *File
}

// Image is the image variant of ModerationInput.
type Image struct {
	Data     []byte
	Filename string
	MIMEType string
}

// ModerationInput is a validated submission: exactly one of Text or Image is
// meaningful, selected by Kind. Treat it as immutable.
type ModerationInput struct {
	Kind  Kind
	Text  string
	Image Image
}

// TextInput builds an unvalidated text input.
func TextInput(text string) ModerationInput {
	return ModerationInput{Kind: KindText, Text: text}
}

// ImageInput builds an unvalidated image input.
func ImageInput(data []byte, filename, mimeType string) ModerationInput {
	return ModerationInput{Kind: KindImage, Image: Image{Data: data, Filename: filename, MIMEType: mimeType}}
}

// NewInput validates an untrusted submission.
func NewInput(sub Submission) (ModerationInput, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(sub.Type))) {
	case KindText:
		return Validate(TextInput(sub.Text))
	case KindImage:
		if sub.File == nil {
			return ModerationInput{}, &ValidationError{Field: "file", Reason: MsgMissingFile}
		}
		return Validate(ImageInput(sub.File.Data, sub.File.Filename, sub.File.MIMEType))
	default:
		return ModerationInput{}, &ValidationError{Field: "type", Reason: MsgUnsupportedPayload}
	}
}

// Validate checks the invariants and fills defaults. It is idempotent.
func Validate(in ModerationInput) (ModerationInput, error) {
	switch in.Kind {
	case KindText:
		if strings.TrimSpace(in.Text) == "" {
			return ModerationInput{}, &ValidationError{Field: "text", Reason: MsgMissingText}
		}
		return ModerationInput{Kind: KindText, Text: in.Text}, nil
	case KindImage:
		if len(in.Image.Data) == 0 {
			return ModerationInput{}, &ValidationError{Field: "file", Reason: MsgEmptyFile}
		}
		img := Image{
			Data:     bytes.Clone(in.Image.Data),
			Filename: in.Image.Filename,
			MIMEType: strings.TrimSpace(in.Image.MIMEType),
		}
		if img.MIMEType == "" {
			img.MIMEType = DefaultImageMIMEType
		}
		return ModerationInput{Kind: KindImage, Image: img}, nil
	default:
		return ModerationInput{}, &ValidationError{Field: "type", Reason: MsgUnsupportedPayload}
	}
}

// Equal reports whether two inputs carry the same content.
func (in ModerationInput) Equal(other ModerationInput) bool {
	return in.Kind == other.Kind &&
		in.Text == other.Text &&
		in.Image.Filename == other.Image.Filename &&
		in.Image.MIMEType == other.Image.MIMEType &&
		bytes.Equal(in.Image.Data, other.Image.Data)
}
