package gemini

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
)

// Image is inline image output.
type Image struct {
	MIMEType string
	Data     []byte
}

// DataURL renders the image as a self-contained data: URL.
func (i *Image) DataURL() string {
	mime := i.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// GenerateImage sends prompt to the image model and returns the first inline image.
// The SDK has no aspect-ratio field, so the ratio travels in the prompt text.
func (c *Client) GenerateImage(ctx context.Context, prompt, aspectRatio string) (*Image, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	text := prompt
	if aspectRatio != "" {
		text = strings.TrimSpace(prompt) + " Aspect ratio " + aspectRatio + "."
	}

	resp, err := c.images.GenerateContent(ctx, genai.Text(text))
	if err != nil {
		c.log.Error("gemini image request failed", "err", err)
		return nil, fmt.Errorf("generate image: %w", err)
	}
	img := firstImage(resp)
	if img == nil {
		return nil, ErrNoImage
	}
	c.log.Info("gemini image generated", "mime", img.MIMEType, "bytes", len(img.Data))
	return img, nil
}

func firstImage(resp *genai.GenerateContentResponse) *Image {
	if resp == nil {
		return nil
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if blob, ok := part.(genai.Blob); ok && len(blob.Data) > 0 {
				return &Image{MIMEType: blob.MIMEType, Data: blob.Data}
			}
		}
	}
	return nil
}
