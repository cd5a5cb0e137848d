package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/suPer8Hu/cesar/internal/pipeline"
)

func TestDiarizeSuccess(t *testing.T) {
	var got diarizeReq
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/diarize" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"segments":[{"start":0,"end":2.5,"speaker":"SPEAKER_00"},{"start":2.5,"end":5,"speaker":"SPEAKER_01"}]}`))
	}))
	defer srv.Close()

	c := NewDiarizationClient(srv.URL+"/", "hf_secret")
	two := 2
	d, err := c.Diarize(context.Background(), "/tmp/a.wav", nil, &two)
	if err != nil {
		t.Fatalf("diarize: %v", err)
	}
	if auth != "Bearer hf_secret" {
		t.Fatalf("authorization = %q", auth)
	}
	if got.AudioPath != "/tmp/a.wav" || got.MinSpeakers != nil || got.MaxSpeakers == nil || *got.MaxSpeakers != 2 {
		t.Fatalf("unexpected request: %+v", got)
	}
	if d.SpeakerCount != 2 || len(d.Turns) != 2 || d.Turns[1].Speaker != "SPEAKER_01" {
		t.Fatalf("unexpected diarization: %+v", d)
	}
}

func TestDiarizeMissingToken(t *testing.T) {
	c := NewDiarizationClient("http://127.0.0.1:1", "")
	_, err := c.Diarize(context.Background(), "/tmp/a.wav", nil, nil)
	var ae *pipeline.AuthenticationError
	if !errors.As(err, &ae) || !ae.Missing {
		t.Fatalf("expected missing-credential error, got %v", err)
	}
}

func TestDiarizeRejectedToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewDiarizationClient(srv.URL, "bad").Diarize(context.Background(), "/tmp/a.wav", nil, nil)
	var ae *pipeline.AuthenticationError
	if !errors.As(err, &ae) || ae.Missing {
		t.Fatalf("expected rejected-credential error, got %v", err)
	}
}

func TestDiarizeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "oom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewDiarizationClient(srv.URL, "tok").Diarize(context.Background(), "/tmp/a.wav", nil, nil)
	var de *pipeline.DiarizationError
	if !errors.As(err, &de) {
		t.Fatalf("expected DiarizationError, got %v", err)
	}
	var ae *pipeline.AuthenticationError
	if errors.As(err, &ae) {
		t.Fatalf("server error must not look like an auth problem")
	}
}

func TestDiarizeUnreachable(t *testing.T) {
	_, err := NewDiarizationClient("http://127.0.0.1:1", "tok").Diarize(context.Background(), "/tmp/a.wav", nil, nil)
	var de *pipeline.DiarizationError
	if !errors.As(err, &de) {
		t.Fatalf("expected DiarizationError, got %v", err)
	}
}
