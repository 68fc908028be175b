package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"github.com/google/uuid"
)

// formFile is one file part of a multipart request.
type formFile struct {
	field       string
	filename    string
	contentType string
	data        io.Reader
}

// form is an ordered multipart body. Empty optional fields are skipped.
type form struct {
	fields [][2]string
	files  []formFile
}

func (f *form) add(name, value string) {
	f.fields = append(f.fields, [2]string{name, value})
}

func (f *form) addOptional(name, value string) {
	if value != "" {
		f.add(name, value)
	}
}

func (f *form) addFile(field, filename, contentType string, data io.Reader) {
	f.files = append(f.files, formFile{field: field, filename: filename, contentType: contentType, data: data})
}

// encode writes the form and returns the body and its content type.
func (f *form) encode() (*bytes.Buffer, string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	for _, kv := range f.fields {
		if err := writer.WriteField(kv[0], kv[1]); err != nil {
			return nil, "", fmt.Errorf("could not write field %s: %w", kv[0], err)
		}
	}

	for _, file := range f.files {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, file.field, file.filename))
		contentType := file.contentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		header.Set("Content-Type", contentType)

		part, err := writer.CreatePart(header)
		if err != nil {
			return nil, "", fmt.Errorf("could not create form file: %w", err)
		}
		if _, err := io.Copy(part, file.data); err != nil {
			return nil, "", fmt.Errorf("could not copy file data: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("could not close writer: %w", err)
	}
	return &body, writer.FormDataContentType(), nil
}

// send executes req with a fresh request ID and returns the 2xx body.
func (c *Client) send(req *http.Request, endpoint string) ([]byte, error) {
	req.Header.Set("X-Request-ID", uuid.NewString())
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req) //nolint:gosec // URL constructed from validated parsedURL via resolveURL
	if err != nil {
		return nil, fmt.Errorf("could not send request: %w", err)
	}
	defer resp.Body.Close()

	return c.readBody(endpoint, resp)
}

// doGetJSON performs a GET request and unmarshals the JSON response into T.
func doGetJSON[T any](ctx context.Context, c *Client, endpoint string) (*T, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolveURL(endpoint), nil)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}

	body, err := c.send(req, endpoint)
	if err != nil {
		return nil, err
	}

	var result T
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("could not unmarshal response: %w", err)
	}
	return &result, nil
}

// doPostForm performs a multipart POST and unmarshals the JSON response into T.
func doPostForm[T any](ctx context.Context, c *Client, endpoint string, f *form) (*T, error) {
	body, contentType, err := f.encode()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.resolveURL(endpoint), body)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	respBody, err := c.send(req, endpoint)
	if err != nil {
		return nil, err
	}

	var result T
	if len(bytes.TrimSpace(respBody)) == 0 {
		return &result, nil
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("could not unmarshal response: %w", err)
	}
	return &result, nil
}
