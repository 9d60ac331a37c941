package core

import (
	"bytes"
	"context"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medilens.app/analysis-server/internal/report"
)

func TestDataURLRoundTrip(t *testing.T) {
	dataURL, err := EncodeDataURL("image/png", pngPixel)
	require.NoError(t, err)
	assert.Contains(t, dataURL, "data:image/png;base64,")

	payload, err := DecodeDataURL(dataURL)
	require.NoError(t, err)
	assert.Equal(t, "image/png", payload.MIMEType)
	assert.Equal(t, pngPixel, payload.Data)
}

func TestEncodeDataURLRejectsBadInput(t *testing.T) {
	_, err := EncodeDataURL("image/png", nil)
	assert.ErrorIs(t, err, ErrEncoding)

	_, err = EncodeDataURL("application/pdf", []byte("x"))
	assert.ErrorIs(t, err, ErrEncoding)
}

func TestDecodeDataURLRejectsMalformedInput(t *testing.T) {
	for _, in := range []string{"", "image/png;base64,AAAA", "data:image/png;base64", "data:image/png;base64,!!!"} {
		_, err := DecodeDataURL(in)
		assert.ErrorIs(t, err, ErrEncoding, "input %q", in)
	}
}

func TestRenderHeatmapIsDeterministic(t *testing.T) {
	a, err := renderHeatmap("record-1")
	require.NoError(t, err)
	b, err := renderHeatmap("record-1")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := renderHeatmap("record-2")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestRenderHeatmapProducesValidPNG(t *testing.T) {
	data, err := renderHeatmap("record-1")
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, heatmapSize, img.Bounds().Dx())
	assert.Equal(t, heatmapSize, img.Bounds().Dy())
}

type fakeArtifacts struct {
	gotKey string
}

func (f *fakeArtifacts) UploadPNG(_ context.Context, key string, _ []byte) (string, error) {
	f.gotKey = key
	return "https://objects.local/medilens-artifacts/" + key, nil
}

func TestAnalyzeUploadsHeatmapArtifact(t *testing.T) {
	model := &fakeModel{reply: scanReply("Critical", 10)}
	arts := &fakeArtifacts{}
	svc := NewAnalysisService(model, nil, report.RiskHigh, arts)

	rec, err := svc.Analyze(context.Background(), scanInput("chest_xray.png"), nil)
	require.NoError(t, err)

	assert.Equal(t, "heatmaps/"+rec.ID+".png", arts.gotKey)
	assert.Equal(t, "https://objects.local/medilens-artifacts/heatmaps/"+rec.ID+".png", rec.HeatmapURL)
	assert.NotEmpty(t, rec.HeatmapOverlay)
}
