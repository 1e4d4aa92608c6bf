// Package stt transcribes recorded audio via Deepgram's prerecorded API.
package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type DeepgramClient struct {
	HTTPClient *http.Client
	APIKey     string
	Model      string
}

type listenAlternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

type listenChannel struct {
	Alternatives []listenAlternative `json:"alternatives"`
}

type listenResponse struct {
	Results struct {
		Channels []listenChannel `json:"channels"`
	} `json:"results"`
}

func NewDeepgramClient(apiKey, model string) *DeepgramClient {
	if model == "" {
		model = "nova-2"
	}
	return &DeepgramClient{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		APIKey:     apiKey,
		Model:      model,
	}
}

// Transcribe submits linear16 PCM at the given sample rate and returns the
// transcript text.
func (c *DeepgramClient) Transcribe(ctx context.Context, audio []byte, sampleRate int) (string, error) {
	if c.APIKey == "" {
		return "", fmt.Errorf("deepgram api key missing")
	}
	if len(audio) == 0 {
		return "", fmt.Errorf("deepgram: empty audio")
	}

	params := url.Values{}
	params.Set("model", c.Model)
	params.Set("encoding", "linear16")
	params.Set("sample_rate", strconv.Itoa(sampleRate))
	endpoint := "https://api.deepgram.com/v1/listen?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(audio))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Token "+c.APIKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("deepgram error: status=%d body=%s", resp.StatusCode, string(b))
	}

	var lr listenResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return "", err
	}
	if len(lr.Results.Channels) == 0 || len(lr.Results.Channels[0].Alternatives) == 0 {
		return "", fmt.Errorf("deepgram: empty transcription result")
	}
	return strings.TrimSpace(lr.Results.Channels[0].Alternatives[0].Transcript), nil
}
