package render

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/anotherai/gateway/runtime/apierror"
	"github.com/anotherai/gateway/runtime/blob"
	"github.com/anotherai/gateway/runtime/model"
)

// dataURIPattern matches a complete "data:<mime>;base64,<payload>" value, the
// shape a template variable takes when it substitutes a whole part rather
// than inline text (spec §4.3: "File references embedded as templated
// data:/url values are resolved after substitution").
var dataURIPattern = regexp.MustCompile(`^data:([\w./+-]+);base64,(.+)$`)

// httpURLPattern matches a bare http(s) URL with nothing else around it.
var httpURLPattern = regexp.MustCompile(`^https?://\S+$`)

// FileRefResolver turns a rendered TextPart whose entire content is a
// data:/url file reference into the concrete ImagePart/DocumentPart it
// names, uploading the bytes to blob for dedup and later retrieval. Parts
// whose content is not a whole-part file reference pass through unchanged.
type FileRefResolver struct {
	blobs  blob.Store
	client *http.Client
}

// NewFileRefResolver builds a resolver uploading fetched/decoded file
// content to blobs.
func NewFileRefResolver(blobs blob.Store) *FileRefResolver {
	return &FileRefResolver{blobs: blobs, client: http.DefaultClient}
}

// Resolve walks every TextPart in messages and replaces whole-part file
// references with an ImagePart or DocumentPart, leaving everything else
// (including TextPart content that merely contains a URL amid other text)
// untouched.
func (r *FileRefResolver) Resolve(ctx context.Context, messages []*model.Message) ([]*model.Message, error) {
	out := make([]*model.Message, len(messages))
	for i, msg := range messages {
		parts := make([]model.Part, len(msg.Parts))
		for j, p := range msg.Parts {
			resolved, err := r.resolvePart(ctx, p)
			if err != nil {
				return nil, err
			}
			parts[j] = resolved
		}
		clone := *msg
		clone.Parts = parts
		out[i] = &clone
	}
	return out, nil
}

func (r *FileRefResolver) resolvePart(ctx context.Context, p model.Part) (model.Part, error) {
	text, ok := p.(model.TextPart)
	if !ok {
		return p, nil
	}

	if m := dataURIPattern.FindStringSubmatch(text.Text); m != nil {
		mimeType, payload := m[1], m[2]
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, apierror.Wrap(apierror.KindInvalidFile, "decode data uri", err)
		}
		return r.partForContent(ctx, data, mimeType)
	}

	if httpURLPattern.MatchString(text.Text) {
		data, contentType, err := r.fetch(ctx, text.Text)
		if err != nil {
			return nil, err
		}
		return r.partForContent(ctx, data, contentType)
	}

	return p, nil
}

func (r *FileRefResolver) fetch(ctx context.Context, url string) (data []byte, contentType string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", apierror.Wrap(apierror.KindInvalidFile, "build file fetch request", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, "", apierror.Wrap(apierror.KindInvalidFile, "fetch file url", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, "", apierror.Newf(apierror.KindInvalidFile, "fetch file url: status %d", resp.StatusCode)
	}

	data, err = io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, "", apierror.Wrap(apierror.KindInvalidFile, "read fetched file", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// partForContent uploads data to blobs for dedup and returns the ImagePart
// or DocumentPart that best represents mimeType, defaulting unrecognized
// types to a URI-less, bytes-carrying document.
func (r *FileRefResolver) partForContent(ctx context.Context, data []byte, mimeType string) (model.Part, error) {
	mimeType = strings.SplitN(mimeType, ";", 2)[0]
	if _, err := r.blobs.Put(ctx, data, mimeType); err != nil {
		return nil, err
	}

	switch mimeType {
	case "image/png":
		return model.ImagePart{Format: model.ImageFormatPNG, Bytes: data}, nil
	case "image/jpeg", "image/jpg":
		return model.ImagePart{Format: model.ImageFormatJPEG, Bytes: data}, nil
	default:
		return model.DocumentPart{
			Name:   "upload",
			Format: model.DocumentFormat(strings.TrimPrefix(mimeType, "application/")),
			Bytes:  data,
		}, nil
	}
}
