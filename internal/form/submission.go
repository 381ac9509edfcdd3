package form

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"sort"
	"strings"
)

// Part is one entry of a submission: a plain value or a file.
type Part struct {
	Key   string
	Value string
	File  *Upload
}

// Submission is an ordered multipart body. A key may repeat; multi-valued kinds
// append one part per value.
type Submission struct {
	Parts []Part
}

func (s *Submission) Add(key, value string) {
	s.Parts = append(s.Parts, Part{Key: key, Value: value})
}

func (s *Submission) AddFile(key string, u *Upload) {
	s.Parts = append(s.Parts, Part{Key: key, File: u})
}

// Values returns every plain value submitted under key, in order.
func (s *Submission) Values(key string) []string {
	var out []string
	for _, p := range s.Parts {
		if p.Key == key && p.File == nil {
			out = append(out, p.Value)
		}
	}
	return out
}

// Files returns every file submitted under key.
func (s *Submission) Files(key string) []*Upload {
	var out []*Upload
	for _, p := range s.Parts {
		if p.Key == key && p.File != nil {
			out = append(out, p.File)
		}
	}
	return out
}

// Has reports whether any part uses key.
func (s *Submission) Has(key string) bool {
	for _, p := range s.Parts {
		if p.Key == key {
			return true
		}
	}
	return false
}

// WriteMultipart writes the parts in order and closes the writer.
func (s *Submission) WriteMultipart(w *multipart.Writer) error {
	for _, p := range s.Parts {
		if p.File == nil {
			if err := w.WriteField(p.Key, p.Value); err != nil {
				return fmt.Errorf("write field %s: %w", p.Key, err)
			}
			continue
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			escapeQuotes(p.Key), escapeQuotes(p.File.Filename)))
		ct := p.File.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)
		pw, err := w.CreatePart(h)
		if err != nil {
			return fmt.Errorf("create part %s: %w", p.Key, err)
		}
		if _, err := pw.Write(p.File.Data); err != nil {
			return fmt.Errorf("write file %s: %w", p.Key, err)
		}
	}
	return w.Close()
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// FromMultipart reads a parsed multipart form. Keys are visited in sorted order
// since the form's maps lose the wire order; values under one key keep theirs.
func FromMultipart(mf *multipart.Form) (*Submission, error) {
	sub := &Submission{}
	keys := make([]string, 0, len(mf.Value))
	for k := range mf.Value {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range mf.Value[k] {
			sub.Add(k, v)
		}
	}

	fileKeys := make([]string, 0, len(mf.File))
	for k := range mf.File {
		fileKeys = append(fileKeys, k)
	}
	sort.Strings(fileKeys)
	for _, k := range fileKeys {
		for _, fh := range mf.File[k] {
			u, err := ReadUpload(fh)
			if err != nil {
				return nil, err
			}
			sub.AddFile(k, u)
		}
	}
	return sub, nil
}

// ReadUpload loads an uploaded file into memory.
func ReadUpload(fh *multipart.FileHeader) (*Upload, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read upload %s: %w", fh.Filename, err)
	}
	return &Upload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}
