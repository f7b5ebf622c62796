package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
)

// Form is a multipart/form-data body built field by field.
type Form struct {
	parts []formPart
}

type formPart struct {
	name     string
	value    string
	filename string
	content  io.Reader
}

// NewForm creates an empty [Form].
func NewForm() *Form {
	return &Form{}
}

// AddField appends a text field.
func (f *Form) AddField(name, value string) *Form {
	f.parts = append(f.parts, formPart{name: name, value: value})
	return f
}

// AddFile appends a file part read from content.
func (f *Form) AddFile(name, filename string, content io.Reader) *Form {
	f.parts = append(f.parts, formPart{name: name, filename: filename, content: content})
	return f
}

// Fields returns the names of the parts in order.
func (f *Form) Fields() []string {
	names := make([]string, 0, len(f.parts))
	for _, p := range f.parts {
		names = append(names, p.name)
	}
	return names
}

// Value returns the first text field with the given name.
func (f *Form) Value(name string) (string, bool) {
	for _, p := range f.parts {
		if p.name == name && p.content == nil {
			return p.value, true
		}
	}
	return "", false
}

func (f *Form) encode() (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, p := range f.parts {
		if p.content == nil {
			if err := w.WriteField(p.name, p.value); err != nil {
				return nil, "", fmt.Errorf("failed to write field %s: %w", p.name, err)
			}
			continue
		}

		part, err := w.CreateFormFile(p.name, p.filename)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create file part %s: %w", p.name, err)
		}
		if _, err := io.Copy(part, p.content); err != nil {
			return nil, "", fmt.Errorf("failed to write file part %s: %w", p.name, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finalize form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// SendForm sends form as multipart/form-data using method.
func (g *Gateway) SendForm(ctx context.Context, method, path string, form *Form) (*Response, error) {
	body, contentType, err := form.encode()
	if err != nil {
		return nil, &Error{Kind: KindRequest, Method: method, Path: path, Err: err}
	}
	return g.Do(ctx, method, path, body, contentType)
}
