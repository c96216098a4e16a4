package speech

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caption-service/internal/config"
)

func newMockedClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c := NewClient(&config.Config{
		TTSBaseURL: baseURL,
		TTSAPIKey:  "tts-key",
		TTSModel:   "kokoro",
		TTSVoice:   "af_heart",
		TTSFormat:  "mp3",
	}, nil)
	httpmock.ActivateNonDefault(c.httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)
	return c
}

func TestSynthesizePostsSpeechRequest(t *testing.T) {
	c := newMockedClient(t, "http://tts.test/v1/")

	httpmock.RegisterResponder(http.MethodPost, "http://tts.test/v1/audio/speech",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "Bearer tts-key", req.Header.Get("Authorization"))
			var body speechRequest
			require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
			assert.Equal(t, speechRequest{Model: "kokoro", Input: "A cat naps.", Voice: "af_heart", ResponseFormat: "mp3"}, body)
			return httpmock.NewBytesResponse(200, []byte("ID3audio")), nil
		})

	audio, err := c.Synthesize(context.Background(), "A cat naps.")
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3audio"), audio)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestSynthesizeFailures(t *testing.T) {
	c := newMockedClient(t, "http://tts.test/v1")

	_, err := c.Synthesize(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyText)

	httpmock.RegisterResponder(http.MethodPost, "http://tts.test/v1/audio/speech",
		httpmock.NewStringResponder(500, `{"error":"boom"}`))
	_, err = c.Synthesize(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrTransport)

	httpmock.RegisterResponder(http.MethodPost, "http://tts.test/v1/audio/speech",
		httpmock.NewBytesResponder(200, nil))
	_, err = c.Synthesize(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrTransport)
}

func TestSynthesizeWithoutEndpointReturnsSilence(t *testing.T) {
	c := newMockedClient(t, "")

	audio, err := c.Synthesize(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, SilentMP3(), audio)
	assert.Len(t, audio, 32)
	assert.Equal(t, []byte{0xFF, 0xFB, 0x90, 0x20, 0x64}, audio[:5])
	assert.Zero(t, httpmock.GetTotalCallCount())
}
