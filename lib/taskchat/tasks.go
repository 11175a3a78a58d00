package taskchat

import (
	"context"
	"errors"
	"fmt"

	"github.com/medleyhq/medley/models"
	"gorm.io/gorm"
)

// NewTask is the body of a task creation request.
type NewTask struct {
	Title        string `json:"title" validate:"required,max=200"`
	Description  string `json:"description"`
	IsCompleted  bool   `json:"is_completed"`
	ParentTaskID *uint  `json:"parent_task"`
}

// TaskPatch is a partial update; nil fields are left alone.
type TaskPatch struct {
	Title       *string `json:"title" validate:"omitnil,min=1,max=200"`
	Description *string `json:"description"`
	IsCompleted *bool   `json:"is_completed"`
}

func (s *Service) Tasks(ctx context.Context, userID uint) ([]models.Task, error) {
	var tasks []models.Task
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("id").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

// Task returns one of the user's tasks. Other users' tasks are reported as
// missing.
func (s *Service) Task(ctx context.Context, userID, id uint) (*models.Task, error) {
	return findTask(s.db.WithContext(ctx), userID, id)
}

func findTask(tx *gorm.DB, userID, id uint) (*models.Task, error) {
	var task models.Task
	err := tx.Where("id = ? AND user_id = ?", id, userID).First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load task: %w", err)
	}
	return &task, nil
}

// CreateTask stores a task for the user. A parent task must belong to the
// same user.
func (s *Service) CreateTask(ctx context.Context, userID uint, in NewTask) (*models.Task, error) {
	task := &models.Task{
		Title:        in.Title,
		Description:  in.Description,
		IsCompleted:  in.IsCompleted,
		UserID:       userID,
		ParentTaskID: in.ParentTaskID,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if in.ParentTaskID != nil {
			if _, err := findTask(tx, userID, *in.ParentTaskID); err != nil {
				if errors.Is(err, ErrNotFound) {
					return ErrForbidden
				}
				return err
			}
		}
		return tx.Create(task).Error
	})
	if err != nil {
		if errors.Is(err, ErrForbidden) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	return task, nil
}

// UpdateTask applies the non-nil fields of patch to one of the user's tasks.
func (s *Service) UpdateTask(ctx context.Context, userID, id uint, patch TaskPatch) (*models.Task, error) {
	var task *models.Task
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if task, err = findTask(tx, userID, id); err != nil {
			return err
		}
		updates := map[string]any{}
		if patch.Title != nil {
			updates["title"] = *patch.Title
		}
		if patch.Description != nil {
			updates["description"] = *patch.Description
		}
		if patch.IsCompleted != nil {
			updates["is_completed"] = *patch.IsCompleted
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(task).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update task: %w", err)
		}
		return tx.First(task, task.ID).Error
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// DeleteTask deletes one of the user's tasks together with all of its
// subtasks.
func (s *Service) DeleteTask(ctx context.Context, userID, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := findTask(tx, userID, id); err != nil {
			return err
		}
		ids := []uint{id}
		frontier := ids
		for len(frontier) > 0 {
			var children []uint
			if err := tx.Model(&models.Task{}).
				Where("parent_task_id IN ?", frontier).
				Pluck("id", &children).Error; err != nil {
				return fmt.Errorf("failed to find subtasks: %w", err)
			}
			ids = append(ids, children...)
			frontier = children
		}
		if err := tx.Delete(&models.Task{}, ids).Error; err != nil {
			return fmt.Errorf("failed to delete tasks: %w", err)
		}
		return nil
	})
}
