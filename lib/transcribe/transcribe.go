// Package transcribe turns a YouTube link into a title and a text transcript.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/kkdai/youtube/v2"
	"github.com/medleyhq/medley/lib/metrics"
	openai "github.com/sashabaranov/go-openai"
)

var ErrNoAudio = errors.New("transcribe: video has no audio stream")

// Audio is an open audio stream for one video. Callers must close Body.
type Audio struct {
	Title    string
	Filename string
	Body     io.ReadCloser
}

// Source opens the audio of a video link.
type Source interface {
	Open(ctx context.Context, link string) (*Audio, error)
}

// Transcriber converts speech to text.
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, r io.Reader) (string, error)
}

type YouTube struct {
	client *youtube.Client
	logger *slog.Logger
}

func NewYouTube(logger *slog.Logger) *YouTube {
	return &YouTube{client: &youtube.Client{}, logger: logger}
}

func (y *YouTube) Open(ctx context.Context, link string) (*Audio, error) {
	start := time.Now()
	video, err := y.client.GetVideoContext(ctx, link)
	metrics.ObserveExternal("youtube", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch video %s: %w", link, err)
	}

	formats := video.Formats.Type("audio").WithAudioChannels()
	if len(formats) == 0 {
		return nil, ErrNoAudio
	}
	formats.Sort()
	format := formats[0]

	body, size, err := y.client.GetStreamContext(ctx, video, &format)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio stream: %w", err)
	}
	y.logger.Debug("Opened audio stream",
		slog.String("video", video.ID),
		slog.String("mime", format.MimeType),
		slog.Int64("size", size))

	return &Audio{
		Title:    video.Title,
		Filename: AudioFilename(format.MimeType),
		Body:     body,
	}, nil
}

// AudioFilename picks a file name whose extension the speech-to-text API
// recognises for the given stream MIME type.
func AudioFilename(mimeType string) string {
	switch {
	case strings.Contains(mimeType, "webm"):
		return "audio.webm"
	case strings.Contains(mimeType, "mp4"):
		return "audio.m4a"
	case strings.Contains(mimeType, "mpeg"):
		return "audio.mp3"
	default:
		return "audio.mp4"
	}
}

type Whisper struct {
	client *openai.Client
	model  string
}

func NewWhisper(apiKey, model string) *Whisper {
	if model == "" {
		model = openai.Whisper1
	}
	return &Whisper{client: openai.NewClient(apiKey), model: model}
}

func (w *Whisper) Transcribe(ctx context.Context, filename string, r io.Reader) (string, error) {
	start := time.Now()
	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: filename,
		Reader:   r,
	})
	metrics.ObserveExternal("whisper", start, err)
	if err != nil {
		return "", fmt.Errorf("failed to transcribe audio: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// Run opens link through src and transcribes it with tr.
func Run(ctx context.Context, src Source, tr Transcriber, link string) (title, transcript string, err error) {
	audio, err := src.Open(ctx, link)
	if err != nil {
		return "", "", err
	}
	defer func() {
		if cerr := audio.Body.Close(); cerr != nil {
			slog.Warn("Failed to close audio stream", slog.Any("error", cerr))
		}
	}()

	transcript, err = tr.Transcribe(ctx, audio.Filename, audio.Body)
	if err != nil {
		return audio.Title, "", err
	}
	return audio.Title, transcript, nil
}
