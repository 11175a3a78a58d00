package handlers

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/medleyhq/medley/lib/auth"
	"github.com/medleyhq/medley/lib/taskchat"
	"github.com/medleyhq/medley/lib/validation"
	"github.com/medleyhq/medley/models"
)

// maxUploadBytes caps chat attachments.
const maxUploadBytes = 10 << 20

func writeDetail(w http.ResponseWriter, detail string, status int) {
	validation.WriteJSON(w, map[string]string{"detail": detail}, status)
}

type signupRequest struct {
	Username string `json:"username" validate:"required,max=150"`
	Email    string `json:"email" validate:"omitempty,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type credentials struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func HandleSignup(users *auth.Users, jwt *auth.JWTManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req signupRequest
		if err := decodeJSON(r, &req); err != nil {
			writeDetail(w, "Invalid JSON body.", http.StatusBadRequest)
			return
		}
		if err := validation.Struct(req); err != nil {
			writeDetail(w, validation.First(err), http.StatusBadRequest)
			return
		}

		user, err := users.Register(r.Context(), req.Username, req.Email, req.Password)
		if err != nil {
			if _, msg, ok := registerErrorField(err); ok {
				writeDetail(w, msg, http.StatusBadRequest)
				return
			}
			slog.Error("Failed to register user", slog.Any("error", err))
			writeDetail(w, "Could not create the account.", http.StatusInternalServerError)
			return
		}

		pair, err := jwt.GeneratePair(user)
		if err != nil {
			slog.Error("Failed to issue tokens", slog.Any("error", err))
			writeDetail(w, "Could not create the account.", http.StatusInternalServerError)
			return
		}
		validation.WriteJSON(w, map[string]any{
			"user":    map[string]string{"username": user.Username},
			"refresh": pair.Refresh,
			"access":  pair.Access,
		}, http.StatusCreated)
	}
}

func HandleTokenObtain(users *auth.Users, jwt *auth.JWTManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentials
		if err := decodeJSON(r, &req); err != nil {
			writeDetail(w, "Invalid JSON body.", http.StatusBadRequest)
			return
		}
		if err := validation.Struct(req); err != nil {
			writeDetail(w, validation.First(err), http.StatusBadRequest)
			return
		}

		user, err := users.Authenticate(r.Context(), req.Username, req.Password)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidCredentials) {
				writeDetail(w, "No active account found with the given credentials", http.StatusUnauthorized)
				return
			}
			slog.Error("Failed to authenticate", slog.Any("error", err))
			writeDetail(w, "Could not sign in.", http.StatusInternalServerError)
			return
		}
		pair, err := jwt.GeneratePair(user)
		if err != nil {
			slog.Error("Failed to issue tokens", slog.Any("error", err))
			writeDetail(w, "Could not sign in.", http.StatusInternalServerError)
			return
		}
		validation.WriteJSON(w, pair, http.StatusOK)
	}
}

func HandleTokenRefresh(jwt *auth.JWTManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Refresh string `json:"refresh"`
		}
		if err := decodeJSON(r, &req); err != nil || req.Refresh == "" {
			writeDetail(w, "The refresh field is required.", http.StatusBadRequest)
			return
		}
		access, err := jwt.Refresh(req.Refresh)
		if err != nil {
			writeDetail(w, "Token is invalid or expired", http.StatusUnauthorized)
			return
		}
		validation.WriteJSON(w, map[string]string{"access": access}, http.StatusOK)
	}
}

// HandleTokenVerify accepts any unexpired access or refresh token.
func HandleTokenVerify(jwt *auth.JWTManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Token string `json:"token"`
		}
		if err := decodeJSON(r, &req); err != nil || req.Token == "" {
			writeDetail(w, "The token field is required.", http.StatusBadRequest)
			return
		}
		if _, err := jwt.ValidateToken(req.Token, auth.KindAccess); err != nil {
			if _, err := jwt.ValidateToken(req.Token, auth.KindRefresh); err != nil {
				writeDetail(w, "Token is invalid or expired", http.StatusUnauthorized)
				return
			}
		}
		validation.WriteJSON(w, map[string]string{}, http.StatusOK)
	}
}

type taskJSON struct {
	ID          uint      `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	IsCompleted bool      `json:"is_completed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	User        uint      `json:"user"`
	ParentTask  *uint     `json:"parent_task"`
}

func toTaskJSON(t models.Task) taskJSON {
	return taskJSON{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		IsCompleted: t.IsCompleted,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		User:        t.UserID,
		ParentTask:  t.ParentTaskID,
	}
}

type historyJSON struct {
	ID          uint          `json:"id"`
	User        uint          `json:"user"`
	FullHistory []models.Turn `json:"full_history"`
	CurrentChat []models.Turn `json:"current_chat"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

func toHistoryJSON(h models.ChatHistory) historyJSON {
	out := historyJSON{
		ID:          h.ID,
		User:        h.UserID,
		FullHistory: h.FullHistory,
		CurrentChat: h.CurrentChat,
		CreatedAt:   h.CreatedAt,
		UpdatedAt:   h.UpdatedAt,
	}
	if out.FullHistory == nil {
		out.FullHistory = []models.Turn{}
	}
	if out.CurrentChat == nil {
		out.CurrentChat = []models.Turn{}
	}
	return out
}

func idParam(r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// writeTaskError maps task service errors to API responses.
func writeTaskError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, taskchat.ErrNotFound):
		writeDetail(w, "Not found.", http.StatusNotFound)
	case errors.Is(err, taskchat.ErrForbidden):
		writeDetail(w, "You do not have permission to perform this action.", http.StatusForbidden)
	default:
		slog.Error("Task request failed", slog.String("action", action), slog.Any("error", err))
		writeDetail(w, "Something went wrong.", http.StatusInternalServerError)
	}
}

func HandleListTasks(svc *taskchat.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tasks, err := svc.Tasks(r.Context(), currentUserID(r))
		if err != nil {
			writeTaskError(w, err, "list")
			return
		}
		out := make([]taskJSON, 0, len(tasks))
		for _, t := range tasks {
			out = append(out, toTaskJSON(t))
		}
		validation.WriteJSON(w, out, http.StatusOK)
	}
}

func HandleCreateTask(svc *taskchat.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in taskchat.NewTask
		if err := decodeJSON(r, &in); err != nil {
			writeDetail(w, "Invalid JSON body.", http.StatusBadRequest)
			return
		}
		in.Title = strings.TrimSpace(in.Title)
		if err := validation.Struct(in); err != nil {
			validation.WriteJSON(w, validation.FieldErrors(err), http.StatusBadRequest)
			return
		}
		task, err := svc.CreateTask(r.Context(), currentUserID(r), in)
		if err != nil {
			writeTaskError(w, err, "create")
			return
		}
		validation.WriteJSON(w, toTaskJSON(*task), http.StatusCreated)
	}
}

func HandleGetTask(svc *taskchat.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(r)
		if !ok {
			writeDetail(w, "Not found.", http.StatusNotFound)
			return
		}
		task, err := svc.Task(r.Context(), currentUserID(r), id)
		if err != nil {
			writeTaskError(w, err, "get")
			return
		}
		validation.WriteJSON(w, toTaskJSON(*task), http.StatusOK)
	}
}

func HandleUpdateTask(svc *taskchat.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(r)
		if !ok {
			writeDetail(w, "Not found.", http.StatusNotFound)
			return
		}
		var patch taskchat.TaskPatch
		if err := decodeJSON(r, &patch); err != nil {
			writeDetail(w, "Invalid JSON body.", http.StatusBadRequest)
			return
		}
		if err := validation.Struct(patch); err != nil {
			validation.WriteJSON(w, validation.FieldErrors(err), http.StatusBadRequest)
			return
		}
		task, err := svc.UpdateTask(r.Context(), currentUserID(r), id, patch)
		if err != nil {
			writeTaskError(w, err, "update")
			return
		}
		validation.WriteJSON(w, toTaskJSON(*task), http.StatusOK)
	}
}

func HandleDeleteTask(svc *taskchat.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(r)
		if !ok {
			writeDetail(w, "Not found.", http.StatusNotFound)
			return
		}
		if err := svc.DeleteTask(r.Context(), currentUserID(r), id); err != nil {
			writeTaskError(w, err, "delete")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func HandleListChats(svc *taskchat.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		histories, err := svc.Histories(r.Context(), currentUserID(r))
		if err != nil {
			writeTaskError(w, err, "list chats")
			return
		}
		out := make([]historyJSON, 0, len(histories))
		for _, h := range histories {
			out = append(out, toHistoryJSON(h))
		}
		validation.WriteJSON(w, out, http.StatusOK)
	}
}

// readChatMessage accepts either a multipart form with an optional file
// or a JSON body.
func readChatMessage(w http.ResponseWriter, r *http.Request) (string, *taskchat.Upload, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		var body struct {
			Content string `json:"content"`
		}
		if err := decodeJSON(r, &body); err != nil && !errors.Is(err, errEmptyBody) {
			return "", nil, err
		}
		return body.Content, nil, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+maxBodyBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return "", nil, err
	}
	content := r.FormValue("content")
	f, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return content, nil, nil
	}
	if err != nil {
		return "", nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return "", nil, err
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	return content, &taskchat.Upload{Name: header.Filename, ContentType: contentType, Data: data}, nil
}

func HandleSendChat(svc *taskchat.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		content, upload, err := readChatMessage(w, r)
		if err != nil {
			writeJSONError(w, "Invalid request body.", http.StatusBadRequest)
			return
		}

		reply, err := svc.Send(r.Context(), currentUserID(r), content, upload)
		if err != nil {
			if errors.Is(err, taskchat.ErrEmptyMessage) {
				writeJSONError(w, "Message cannot be empty.", http.StatusBadRequest)
				return
			}
			slog.Error("Failed to send chat message", slog.Any("error", err))
			writeJSONError(w, "Failed to get a response.", http.StatusInternalServerError)
			return
		}
		validation.WriteJSON(w, reply, http.StatusCreated)
	}
}

func HandleClearChat(svc *taskchat.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := svc.Clear(r.Context(), currentUserID(r)); err != nil {
			writeTaskError(w, err, "clear chat")
			return
		}
		writeDetail(w, "Chat history cleared successfully.", http.StatusOK)
	}
}

func HandleUpdateChat(svc *taskchat.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(r)
		if !ok {
			writeDetail(w, "Not found.", http.StatusNotFound)
			return
		}
		var patch taskchat.HistoryPatch
		if err := decodeJSON(r, &patch); err != nil {
			writeDetail(w, "Invalid JSON body.", http.StatusBadRequest)
			return
		}
		h, err := svc.UpdateHistory(r.Context(), currentUserID(r), id, patch)
		if err != nil {
			writeTaskError(w, err, "update chat")
			return
		}
		validation.WriteJSON(w, toHistoryJSON(*h), http.StatusOK)
	}
}

func HandleDeleteChat(svc *taskchat.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(r)
		if !ok {
			writeDetail(w, "Not found.", http.StatusNotFound)
			return
		}
		if err := svc.DeleteHistory(r.Context(), currentUserID(r), id); err != nil {
			writeTaskError(w, err, "delete chat")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
