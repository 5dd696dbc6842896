// Package blob stores rendered thumbnail artifacts and returns the reference
// kept on the form version row.
package blob

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"mime"
	"strings"

	"golang.org/x/crypto/blake2b"
)

var ErrNotFound = errors.New("blob not found")

type Object struct {
	Data        []byte
	ContentType string
}

type Store interface {
	Put(ctx context.Context, obj Object) (string, error)
	Get(ctx context.Context, ref string) (Object, error)
}

// Key is the content address of an artifact: identical renders share a key.
func Key(obj Object) string {
	sum := blake2b.Sum256(obj.Data)
	return "thumbnails/" + hex.EncodeToString(sum[:]) + extension(obj.ContentType)
}

func extension(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	switch mediaType {
	case "image/png":
		return ".png"
	case "text/html":
		return ".html"
	default:
		return ""
	}
}

// InlineStore keeps artifacts in the reference itself as data URLs.
type InlineStore struct{}

func (InlineStore) Put(_ context.Context, obj Object) (string, error) {
	contentType := obj.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(obj.Data), nil
}

func (InlineStore) Get(_ context.Context, ref string) (Object, error) {
	rest, ok := strings.CutPrefix(ref, "data:")
	if !ok {
		return Object{}, ErrNotFound
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return Object{}, errors.New("malformed data url")
	}
	contentType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return Object{}, errors.New("data url is not base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Object{}, fmt.Errorf("decode data url: %w", err)
	}
	return Object{Data: data, ContentType: contentType}, nil
}
