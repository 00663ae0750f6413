package http

import (
	"net/http"

	"encargos/internal/core"
	applog "encargos/internal/log"
)

// notesList feeds the notes_list partial.
type notesList struct {
	Notes     []core.Note
	LoadError string
}

type notesPage struct {
	page
	List notesList
}

func (s *Server) loadNotes(r *http.Request) (notesList, int) {
	notes, err := s.svc.Notes.List(r.Context(), userFrom(r.Context()).ID)
	if err != nil {
		s.logLoadError(r, err, applog.ComponentNotes)
		return notesList{LoadError: msgLoadFailed}, http.StatusInternalServerError
	}
	return notesList{Notes: notes}, http.StatusOK
}

func (s *Server) handleNotesPage(w http.ResponseWriter, r *http.Request) {
	list, status := s.loadNotes(r)
	s.render(w, r, status, "notes.html", notesPage{page: s.newPage(r, "Notas", "notes"), List: list})
}

// renderNotes answers a successful note write with the refreshed list.
func (s *Server) renderNotes(w http.ResponseWriter, r *http.Request, status int, msg string) {
	list, loadStatus := s.loadNotes(r)
	html, err := s.execute(r, "notes_list", list)
	if err != nil {
		InternalServerError(msgLoadFailed).Write(w)
		return
	}
	if loadStatus != http.StatusOK {
		status = loadStatus
	}
	NewHTMXResponse().
		Status(status).
		TriggerNotesChanged().
		TriggerFormReset().
		TriggerSuccessNotification(msg).
		BodyHTML(html).
		Write(w)
}

func (s *Server) handleCreateNote(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("Solicitud no válida").Write(w)
		return
	}
	if _, err := s.svc.Notes.Create(r.Context(), userFrom(r.Context()).ID, p.Get("text")); err != nil {
		s.writeError(w, r, err, applog.ComponentNotes, applog.OpCreate)
		return
	}
	s.renderNotes(w, r, http.StatusCreated, "Nota guardada")
}

func (s *Server) handleUpdateNote(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("Solicitud no válida").Write(w)
		return
	}
	if _, err := s.svc.Notes.Update(r.Context(), userFrom(r.Context()).ID, r.PathValue("id"), p.Get("text")); err != nil {
		s.writeError(w, r, err, applog.ComponentNotes, applog.OpUpdate)
		return
	}
	s.renderNotes(w, r, http.StatusOK, "Nota actualizada")
}

func (s *Server) handleDeleteNote(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Notes.Delete(r.Context(), userFrom(r.Context()).ID, r.PathValue("id")); err != nil {
		s.writeError(w, r, err, applog.ComponentNotes, applog.OpDelete)
		return
	}
	s.renderNotes(w, r, http.StatusOK, "Nota eliminada")
}
