package designer

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"

	"formdesk/api/internal/canvas"
)

var ErrAssetTooLarge = errors.New("asset exceeds size limit")

// Encoder turns a transient asset handle into a durable value that can be
// stored in a snapshot.
type Encoder interface {
	Encode(ctx context.Context, ref canvas.TransientRef) (string, error)
}

// EncoderFunc adapts a function to Encoder.
type EncoderFunc func(ctx context.Context, ref canvas.TransientRef) (string, error)

func (f EncoderFunc) Encode(ctx context.Context, ref canvas.TransientRef) (string, error) {
	return f(ctx, ref)
}

const defaultMaxAssetBytes = 5 << 20

// DataURLEncoder inlines the asset as a base64 data URL.
type DataURLEncoder struct {
	// MaxBytes caps the decoded size; zero means 5 MiB.
	MaxBytes int64
}

func (e DataURLEncoder) Encode(ctx context.Context, ref canvas.TransientRef) (string, error) {
	if ref.Open == nil {
		return "", fmt.Errorf("asset %q has no content", ref.Name)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	limit := e.MaxBytes
	if limit <= 0 {
		limit = defaultMaxAssetBytes
	}

	rc, err := ref.Open()
	if err != nil {
		return "", fmt.Errorf("open asset %q: %w", ref.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return "", fmt.Errorf("read asset %q: %w", ref.Name, err)
	}
	if int64(len(data)) > limit {
		return "", fmt.Errorf("%w: %s", ErrAssetTooLarge, ref.Name)
	}

	mediaType := ref.MediaType
	if mediaType == "" {
		mediaType = http.DetectContentType(data)
	}
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
