package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/suPer8Hu/cesar/internal/pipeline"
)

// DiarizationClient calls an HTTP speaker diarization service that runs the
// pyannote pipeline next to this process.
type DiarizationClient struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewDiarizationClient(baseURL, token string) *DiarizationClient {
	if baseURL == "" {
		baseURL = "http://localhost:8765"
	}
	return &DiarizationClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		Client:  &http.Client{Timeout: 30 * time.Minute},
	}
}

type diarizeReq struct {
	AudioPath   string `json:"audio_path"`
	MinSpeakers *int   `json:"min_speakers,omitempty"`
	MaxSpeakers *int   `json:"max_speakers,omitempty"`
}

type diarizeResp struct {
	Segments     []pipeline.SpeakerTurn `json:"segments"`
	SpeakerCount int                    `json:"speaker_count"`
	Error        string                 `json:"error,omitempty"`
}

// Diarize implements pipeline.Diarizer.
func (c *DiarizationClient) Diarize(ctx context.Context, path string, minSpeakers, maxSpeakers *int) (pipeline.Diarization, error) {
	if strings.TrimSpace(c.Token) == "" {
		return pipeline.Diarization{}, pipeline.NewAuthenticationError(true, nil)
	}
	if c.Client == nil {
		return pipeline.Diarization{}, &pipeline.DiarizationError{Message: "speaker identification is not configured", Err: errors.New("diarize: http client is nil")}
	}

	b, err := json.Marshal(diarizeReq{AudioPath: path, MinSpeakers: minSpeakers, MaxSpeakers: maxSpeakers})
	if err != nil {
		return pipeline.Diarization{}, &pipeline.DiarizationError{Message: "speaker identification failed", Err: err}
	}

	url := fmt.Sprintf("%s/diarize", c.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return pipeline.Diarization{}, &pipeline.DiarizationError{Message: "speaker identification failed", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.Client.Do(req)
	if err != nil {
		return pipeline.Diarization{}, &pipeline.DiarizationError{Message: "speaker identification service unavailable", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return pipeline.Diarization{}, pipeline.NewAuthenticationError(false, fmt.Errorf("diarize: status %d", resp.StatusCode))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return pipeline.Diarization{}, &pipeline.DiarizationError{
			Message: "speaker identification failed",
			Err:     fmt.Errorf("diarize: status %d", resp.StatusCode),
		}
	}

	var decoded diarizeResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return pipeline.Diarization{}, &pipeline.DiarizationError{Message: "speaker identification returned an invalid response", Err: err}
	}
	if decoded.Error != "" {
		return pipeline.Diarization{}, &pipeline.DiarizationError{Message: "speaker identification failed", Err: errors.New(decoded.Error)}
	}

	count := decoded.SpeakerCount
	if count == 0 {
		seen := make(map[string]struct{})
		for _, t := range decoded.Segments {
			seen[t.Speaker] = struct{}{}
		}
		count = len(seen)
	}
	return pipeline.Diarization{Turns: decoded.Segments, SpeakerCount: count}, nil
}
