package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/BaSui01/modguard/llm"
	"github.com/BaSui01/modguard/moderation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 测试辅助
// =============================================================================

type fakeRunner struct {
	mu     sync.Mutex
	inputs []moderation.ModerationInput
	result moderation.Result
}

func (f *fakeRunner) Run(_ context.Context, in moderation.ModerationInput) moderation.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, in)
	return f.result
}

func (f *fakeRunner) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inputs)
}

type captureSink struct {
	mu   sync.Mutex
	logs []moderation.SubmissionLog
	err  error
}

func (c *captureSink) Record(_ context.Context, log moderation.SubmissionLog) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logs = append(c.logs, log)
	return c.err
}

func flaggedResult() moderation.Result {
	exp := "Mentions violence."
	return moderation.Result{
		Analysis:       "violent content",
		Classification: "Flagged",
		Explanation:    &exp,
		Label:          moderation.LabelFlagged,
	}
}

func multipartBody(t *testing.T, fields map[string]string, file []byte, filename, contentType string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if file != nil {
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
		hdr.Set("Content-Type", contentType)
		part, err := mw.CreatePart(hdr)
		require.NoError(t, err)
		_, err = part.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorInfo {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.NotNil(t, resp.Error)
	return *resp.Error
}

// =============================================================================
// 🧪 POST /submit
// =============================================================================

func TestSubmit_MultipartText(t *testing.T) {
	runner := &fakeRunner{result: flaggedResult()}
	sink := &captureSink{}
	h := NewSubmitHandler(runner, zap.NewNop(), WithResultSink(sink))

	body, ct := multipartBody(t, map[string]string{"type": "TEXT", "text": "some text"}, nil, "", "")
	r := httptest.NewRequest(http.MethodPost, "/submit", body)
	r.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	h.HandleSubmit(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"analysis":"violent content","classification":"Flagged","explanation":"Mentions violence.","label":"flagged"}`, w.Body.String())

	require.Len(t, runner.inputs, 1)
	assert.Equal(t, moderation.KindText, runner.inputs[0].Kind)
	assert.Equal(t, "some text", runner.inputs[0].Text)

	require.Len(t, sink.logs, 1)
	log := sink.logs[0]
	assert.Equal(t, "text", log.Type)
	require.NotNil(t, log.Text)
	assert.Equal(t, "some text", *log.Text)
	assert.Equal(t, "Flagged", log.Classification)
	require.NotNil(t, log.Explanation)
}

func TestSubmit_MultipartImage(t *testing.T) {
	runner := &fakeRunner{result: moderation.Result{Analysis: "a cat", Classification: "approved", Label: moderation.LabelApproved}}
	sink := &captureSink{}
	h := NewSubmitHandler(runner, nil, WithResultSink(sink))

	img := []byte{0x89, 'P', 'N', 'G'}
	body, ct := multipartBody(t, map[string]string{"type": "image", "text": "my cat"}, img, "cat.jpg", "image/jpeg")
	r := httptest.NewRequest(http.MethodPost, "/submit", body)
	r.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	h.HandleSubmit(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"analysis":"a cat","classification":"approved","label":"approved"}`, w.Body.String())

	require.Len(t, runner.inputs, 1)
	in := runner.inputs[0]
	assert.Equal(t, moderation.KindImage, in.Kind)
	assert.Equal(t, img, in.Image.Data)
	assert.Equal(t, "cat.jpg", in.Image.Filename)
	assert.Equal(t, "image/jpeg", in.Image.MIMEType)

	require.Len(t, sink.logs, 1)
	assert.Equal(t, "image", sink.logs[0].Type)
	require.NotNil(t, sink.logs[0].Text)
	assert.Equal(t, "my cat", *sink.logs[0].Text)
	assert.Nil(t, sink.logs[0].Explanation)
}

func TestSubmit_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		fields  map[string]string
		file    []byte
		wantMsg string
	}{
		{"missing text", map[string]string{"type": "text"}, nil, moderation.MsgMissingText},
		{"blank text", map[string]string{"type": "text", "text": "   "}, nil, moderation.MsgMissingText},
		{"missing file", map[string]string{"type": "image"}, nil, moderation.MsgMissingFile},
		{"empty file", map[string]string{"type": "image"}, []byte{}, moderation.MsgEmptyFile},
		{"unknown type", map[string]string{"type": "video"}, nil, moderation.MsgUnsupportedPayload},
		{"no type", map[string]string{"text": "hi"}, nil, moderation.MsgUnsupportedPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{}
			sink := &captureSink{}
			h := NewSubmitHandler(runner, zap.NewNop(), WithResultSink(sink))

			body, ct := multipartBody(t, tt.fields, tt.file, "x.png", "image/png")
			r := httptest.NewRequest(http.MethodPost, "/submit", body)
			r.Header.Set("Content-Type", ct)
			w := httptest.NewRecorder()
			h.HandleSubmit(w, r)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			info := decodeError(t, w)
			assert.Equal(t, "VALIDATION_ERROR", info.Code)
			assert.Equal(t, tt.wantMsg, info.Message)

			// 校验失败不调用模型，也不记录日志
			assert.Zero(t, runner.calls())
			assert.Empty(t, sink.logs)
		})
	}
}

func TestSubmit_JSON(t *testing.T) {
	runner := &fakeRunner{result: flaggedResult()}
	h := NewSubmitHandler(runner, nil)

	img := []byte("fake-image-bytes")
	payload, _ := json.Marshal(SubmitRequest{
		Type:        "image",
		ImageBase64: "data:image/webp;base64," + base64.StdEncoding.EncodeToString(img),
		Filename:    "a.webp",
	})
	r := httptest.NewRequest(http.MethodPost, "/submit", bytes.NewReader(payload))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.HandleSubmit(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, runner.inputs, 1)
	assert.Equal(t, img, runner.inputs[0].Image.Data)
	assert.Equal(t, "image/webp", runner.inputs[0].Image.MIMEType)
}

func TestSubmit_JSONErrors(t *testing.T) {
	h := NewSubmitHandler(&fakeRunner{}, nil)

	r := httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader("{not json"))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.HandleSubmit(w, r)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REQUEST", decodeError(t, w).Code)

	r = httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader(`{"type":"image","image_base64":"%%%"}`))
	r.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	h.HandleSubmit(w, r)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeError(t, w).Code)
}

func TestSubmit_URLEncodedForm(t *testing.T) {
	runner := &fakeRunner{result: flaggedResult()}
	h := NewSubmitHandler(runner, nil)

	form := url.Values{"type": {"text"}, "text": {"hello"}}
	r := httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	h.HandleSubmit(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello", runner.inputs[0].Text)
}

func TestSubmit_TooLarge(t *testing.T) {
	runner := &fakeRunner{}
	h := NewSubmitHandler(runner, nil, WithMaxUploadBytes(64))

	body, ct := multipartBody(t, map[string]string{"type": "image"}, bytes.Repeat([]byte{1}, 4096), "big.png", "image/png")
	r := httptest.NewRequest(http.MethodPost, "/submit", body)
	r.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	h.HandleSubmit(w, r)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "PAYLOAD_TOO_LARGE", decodeError(t, w).Code)
	assert.Zero(t, runner.calls())
}

func TestSubmit_SinkFailureDoesNotMaskResult(t *testing.T) {
	runner := &fakeRunner{result: flaggedResult()}
	sink := &captureSink{err: errors.New("db down")}
	var recorded []error
	h := NewSubmitHandler(runner, zap.NewNop(),
		WithResultSink(sink),
		WithRecordHook(func(err error) { recorded = append(recorded, err) }),
	)

	body, ct := multipartBody(t, map[string]string{"type": "text", "text": "x"}, nil, "", "")
	r := httptest.NewRequest(http.MethodPost, "/submit", body)
	r.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	h.HandleSubmit(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, recorded, 1)
	assert.EqualError(t, recorded[0], "db down")
}

func TestSubmit_WithPipeline(t *testing.T) {
	routing, err := moderation.NewRoutingPolicy(moderation.ExplainNever, 0, nil)
	require.NoError(t, err)
	p, err := moderation.New(moderation.Config{
		Model: moderation.ModelFunc(func(context.Context, []llm.Message) (string, error) {
			return "approved", nil
		}),
		Routing: routing,
	})
	require.NoError(t, err)

	h := NewSubmitHandler(p, nil)
	body, ct := multipartBody(t, map[string]string{"type": "text", "text": "have a nice day"}, nil, "", "")
	r := httptest.NewRequest(http.MethodPost, "/submit", body)
	r.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	h.HandleSubmit(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	var res moderation.Result
	require.NoError(t, json.NewDecoder(w.Body).Decode(&res))
	assert.Equal(t, "approved", res.Classification)
	assert.Equal(t, moderation.LabelApproved, res.Label)
	assert.Nil(t, res.Explanation)
}

func TestHandleRoot(t *testing.T) {
	w := httptest.NewRecorder()
	HandleRoot(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Hello World!", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
}

func TestDecodeImage(t *testing.T) {
	data, mt, err := decodeImage(base64.StdEncoding.EncodeToString([]byte("abc")))
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), data)
	assert.Empty(t, mt)

	_, _, err = decodeImage("data:image/png,rawdata")
	assert.Error(t, err)
}
