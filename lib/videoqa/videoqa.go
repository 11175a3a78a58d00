// Package videoqa summarises YouTube videos and answers questions about
// them, keeping each conversation in a session.
package videoqa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/medleyhq/medley/lib/assistant"
	"github.com/medleyhq/medley/lib/transcribe"
	"github.com/medleyhq/medley/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNoTranscript    = errors.New("failed to get transcript")
	ErrSessionNotFound = errors.New("session not found")
	ErrVideoNotFound   = errors.New("video not found")
)

type Service struct {
	db          *gorm.DB
	chat        assistant.Chatter
	source      transcribe.Source
	transcriber transcribe.Transcriber
	logger      *slog.Logger
}

func New(db *gorm.DB, chat assistant.Chatter, source transcribe.Source, transcriber transcribe.Transcriber, logger *slog.Logger) *Service {
	return &Service{
		db:          db,
		chat:        chat,
		source:      source,
		transcriber: transcriber,
		logger:      logger,
	}
}

// Analysis is the outcome of analysing a video.
type Analysis struct {
	Summary   string `json:"summary"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

// Analyze transcribes the video at link, summarises it and opens a new
// session for follow-up questions. An empty userID gets a fresh one.
func (s *Service) Analyze(ctx context.Context, link, userID string) (*Analysis, error) {
	if userID == "" {
		userID = uuid.NewString()
	}

	title, transcript, err := transcribe.Run(ctx, s.source, s.transcriber, link)
	if err != nil {
		s.logger.Error("Failed to transcribe video", slog.String("link", link), slog.Any("error", err))
		return nil, fmt.Errorf("%w: %w", ErrNoTranscript, err)
	}
	if strings.TrimSpace(transcript) == "" {
		return nil, ErrNoTranscript
	}
	if title == "" {
		title = models.DefaultVideoTitle
	}

	prompt, err := assistant.SummaryPrompt(transcript)
	if err != nil {
		return nil, err
	}
	summary, err := s.chat.Chat(ctx, assistant.Summary, nil, []string{prompt})
	if err != nil {
		return nil, fmt.Errorf("failed to summarise video: %w", err)
	}

	var session models.VideoSession
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var video models.Video
		if err := tx.Where(models.Video{UserID: userID, Link: link}).
			Attrs(models.Video{Title: title}).
			FirstOrCreate(&video).Error; err != nil {
			return fmt.Errorf("failed to save video: %w", err)
		}
		session = models.VideoSession{VideoID: video.ID, Transcript: transcript, Summary: summary}
		if err := tx.Create(&session).Error; err != nil {
			return fmt.Errorf("failed to save session: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Analysed video",
		slog.String("session_id", session.ID.String()),
		slog.String("title", title),
		slog.Int("transcript_chars", len(transcript)))
	return &Analysis{Summary: summary, SessionID: session.ID.String(), UserID: userID}, nil
}

// Ask answers question from the session's transcript and history, then
// records the question and answer as two new turns.
func (s *Service) Ask(ctx context.Context, sessionID, question string) (string, error) {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return "", ErrSessionNotFound
	}
	session, err := s.session(s.db.WithContext(ctx), id)
	if err != nil {
		return "", err
	}

	prompt, err := assistant.AnswerPrompt(session.Transcript, question)
	if err != nil {
		return "", err
	}
	answer, err := s.chat.Chat(ctx, assistant.Answer, session.ChatHistory, []string{prompt})
	if err != nil {
		return "", fmt.Errorf("failed to answer question: %w", err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.session(tx.Clauses(clause.Locking{Strength: "UPDATE"}), id)
		if err != nil {
			return err
		}
		history := append(current.ChatHistory,
			models.Turn{Role: models.RoleUser, Parts: []string{question}},
			models.Turn{Role: models.RoleModel, Parts: []string{answer}},
		)
		return tx.Model(current).Update("chat_history", history).Error
	})
	if err != nil {
		return "", fmt.Errorf("failed to save chat history: %w", err)
	}
	return answer, nil
}

func (s *Service) session(tx *gorm.DB, id uuid.UUID) (*models.VideoSession, error) {
	var session models.VideoSession
	if err := tx.First(&session, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return &session, nil
}

// Videos lists the user's videos, newest first.
func (s *Service) Videos(ctx context.Context, userID string) ([]models.Video, error) {
	var videos []models.Video
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&videos).Error; err != nil {
		return nil, fmt.Errorf("failed to list videos: %w", err)
	}
	return videos, nil
}

// Video loads one of the user's videos with its sessions, newest first.
func (s *Service) Video(ctx context.Context, id, userID string) (*models.Video, error) {
	vid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrVideoNotFound
	}
	var video models.Video
	err = s.db.WithContext(ctx).
		Preload("Sessions", func(q *gorm.DB) *gorm.DB { return q.Order("created_at DESC") }).
		Where("id = ? AND user_id = ?", vid, userID).
		First(&video).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrVideoNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load video: %w", err)
	}
	return &video, nil
}
