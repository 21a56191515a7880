package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
)

const httpLogPrefix = "transport:http"

// HTTP performs POST and GET requests against the backend and decodes the JSON answer.
type HTTP struct {
	// Client defaults to http.DefaultClient.
	Client *http.Client
	// CSRF returns the current token and whether CSRF handling is enabled.
	CSRF func() (token string, enabled bool)
}

// Post sends body as JSON, or as a multipart form when files are attached.
func (h *HTTP) Post(ctx context.Context, body []byte, t Target) (any, error) {
	var (
		reader      io.Reader
		contentType string
	)
	if len(t.Files) > 0 {
		form, ct, err := encodeMultipart(body, t.Files)
		if err != nil {
			return nil, fmt.Errorf("%s - failed to encode multipart body: %w", httpLogPrefix, err)
		}
		reader, contentType = form, ct
	} else {
		reader, contentType = bytes.NewReader(body), "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL(), reader)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to build POST request: %w", httpLogPrefix, err)
	}
	req.Header.Set("Content-Type", contentType)
	return h.do(req)
}

// Get sends body percent-encoded in the _json query parameter. Files are never sent.
func (h *HTTP) Get(ctx context.Context, body []byte, t Target) (any, error) {
	u := t.URL() + "?" + url.Values{ParamJSON: {string(body)}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to build GET request: %w", httpLogPrefix, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return h.do(req)
}

func (h *HTTP) do(req *http.Request) (any, error) {
	if h.CSRF != nil {
		if token, enabled := h.CSRF(); enabled {
			req.Header.Set(HeaderCSRF, token)
		}
	}

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s - %s %s failed: %w", httpLogPrefix, req.Method, req.URL.Redacted(), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to read response: %w", httpLogPrefix, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("%s - failed to decode response (status %d): %w", httpLogPrefix, resp.StatusCode, err)
	}
	return decoded, nil
}

func encodeMultipart(body []byte, files []File) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField(FieldFileCount, strconv.Itoa(len(files))); err != nil {
		return nil, "", err
	}
	if err := w.WriteField(ParamJSON, string(body)); err != nil {
		return nil, "", err
	}
	for i, f := range files {
		name := f.Name
		if name == "" {
			name = fieldFilePrefix + strconv.Itoa(i+1)
		}
		part, err := createFilePart(w, fieldFilePrefix+strconv.Itoa(i+1), name, f.ContentType)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func createFilePart(w *multipart.Writer, field, filename, contentType string) (io.Writer, error) {
	if contentType == "" {
		return w.CreateFormFile(field, filename)
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	h.Set("Content-Type", contentType)
	return w.CreatePart(h)
}
