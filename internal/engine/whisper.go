package engine

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/suPer8Hu/cesar/internal/pipeline"
)

// 16 kHz mono s16le
const wavBytesPerSecond = 16000 * 2

const wavHeaderSize = 44

type WhisperConfig struct {
	FFmpegBin  string
	WhisperBin string
	ModelPath  string
	Threads    int
	TempDir    string // "" means os.TempDir()
}

// Whisper transcribes by converting input to 16 kHz mono WAV with ffmpeg and
// running whisper.cpp with JSON output.
type Whisper struct {
	cfg    WhisperConfig
	runner commandRunner
}

func NewWhisper(cfg WhisperConfig) *Whisper {
	if cfg.FFmpegBin == "" {
		cfg.FFmpegBin = "ffmpeg"
	}
	if cfg.WhisperBin == "" {
		cfg.WhisperBin = "whisper-cli"
	}
	if cfg.Threads <= 0 {
		cfg.Threads = 4
	}
	return &Whisper{cfg: cfg, runner: execRunner{}}
}

type whisperJSON struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

func (w *Whisper) Transcribe(ctx context.Context, path string) (pipeline.Transcript, error) {
	if _, err := os.Stat(path); err != nil {
		return pipeline.Transcript{}, &pipeline.TranscriptionError{Message: "audio file not found", Err: err}
	}

	dir, err := os.MkdirTemp(w.cfg.TempDir, "cesar-transcribe-*")
	if err != nil {
		return pipeline.Transcript{}, &pipeline.TranscriptionError{Message: "could not prepare workspace", Err: err}
	}
	defer os.RemoveAll(dir)

	wav := filepath.Join(dir, "audio-16k-mono.wav")
	if _, err := w.runner.Run(ctx, w.cfg.FFmpegBin, buildFFmpegArgs(path, wav)...); err != nil {
		return pipeline.Transcript{}, &pipeline.TranscriptionError{Message: "could not decode audio", Err: err}
	}

	base := filepath.Join(dir, "transcript")
	if _, err := w.runner.Run(ctx, w.cfg.WhisperBin, buildWhisperArgs(w.cfg.ModelPath, wav, base, w.cfg.Threads)...); err != nil {
		return pipeline.Transcript{}, &pipeline.TranscriptionError{Message: "transcription failed", Err: err}
	}

	raw, err := os.ReadFile(base + ".json")
	if err != nil {
		return pipeline.Transcript{}, &pipeline.TranscriptionError{Message: "transcription produced no output", Err: err}
	}
	tr, err := parseWhisperJSON(raw)
	if err != nil {
		return pipeline.Transcript{}, &pipeline.TranscriptionError{Message: "transcription produced unreadable output", Err: err}
	}

	if info, err := os.Stat(wav); err == nil && info.Size() > wavHeaderSize {
		tr.Duration = float64(info.Size()-wavHeaderSize) / wavBytesPerSecond
	}
	return tr, nil
}

func parseWhisperJSON(raw []byte) (pipeline.Transcript, error) {
	var doc whisperJSON
	if err := json.Unmarshal(raw, &doc); err != nil {
		return pipeline.Transcript{}, err
	}

	tr := pipeline.Transcript{Language: doc.Result.Language}
	for _, s := range doc.Transcription {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		seg := pipeline.Segment{
			Start: float64(s.Offsets.From) / 1000,
			End:   float64(s.Offsets.To) / 1000,
			Text:  text,
		}
		tr.Segments = append(tr.Segments, seg)
		if seg.End > tr.Duration {
			tr.Duration = seg.End
		}
	}
	return tr, nil
}

// buildFFmpegArgs builds preprocessing CLI args for mono 16k PCM WAV output.
func buildFFmpegArgs(inputPath, outPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		outPath,
	}
}

// buildWhisperArgs builds whisper.cpp args for JSON export with language
// detection.
func buildWhisperArgs(modelPath, audioPath, outBase string, threads int) []string {
	return []string{
		"-m", modelPath,
		"-f", audioPath,
		"-of", outBase,
		"-oj",
		"-l", "auto",
		"-t", strconv.Itoa(threads),
	}
}
