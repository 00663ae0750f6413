package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"encargos/internal/core"
	"encargos/internal/store"

	"github.com/google/uuid"
)

type NoteService struct {
	notes store.NoteRepository
	now   func() time.Time
}

func NewNoteService(notes store.NoteRepository) *NoteService {
	return &NoteService{notes: notes, now: time.Now}
}

func (s *NoteService) Create(ctx context.Context, owner core.UserID, text string) (core.Note, error) {
	now := s.now().UTC()
	n := core.Note{
		ID:        uuid.NewString(),
		Owner:     owner,
		Text:      strings.TrimSpace(text),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := n.Validate(); err != nil {
		return core.Note{}, invalid(err)
	}
	if err := s.notes.CreateNote(ctx, owner, n); err != nil {
		return core.Note{}, fmt.Errorf("create note: %w", err)
	}
	return n, nil
}

func (s *NoteService) Update(ctx context.Context, owner core.UserID, id, text string) (core.Note, error) {
	n := core.Note{
		ID:        id,
		Owner:     owner,
		Text:      strings.TrimSpace(text),
		UpdatedAt: s.now().UTC(),
	}
	if err := n.Validate(); err != nil {
		return core.Note{}, invalid(err)
	}
	if err := s.notes.UpdateNote(ctx, owner, n); err != nil {
		return core.Note{}, fmt.Errorf("update note: %w", err)
	}
	return n, nil
}

func (s *NoteService) List(ctx context.Context, owner core.UserID) ([]core.Note, error) {
	notes, err := s.notes.ListNotes(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	return notes, nil
}

func (s *NoteService) Delete(ctx context.Context, owner core.UserID, id string) error {
	if err := s.notes.DeleteNote(ctx, owner, id); err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	return nil
}
