package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"livetodo/internal/live"
)

const createdDetails = "running live queries pick up the new todo automatically"

type errorBody struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, errorBody{Detail: fmt.Sprintf(format, args...)})
}

// statusFor maps table errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, live.ErrInvalidTodo):
		return http.StatusUnprocessableEntity
	case errors.Is(err, live.ErrTodoNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func pathInt(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.PathValue(name))
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", name, raw)
	}
	return n, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":          true,
		"todos":       s.table.Len(),
		"conns":       s.Conns(),
		"subscribers": s.table.Subscribers(),
	})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	userID, err := pathInt(r, "user_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	todo, err := s.table.Insert(r.Context(), userID, r.PathValue("todo_title"))
	if err != nil {
		s.log.Warn("create rejected", "user", userID, "err", err)
		writeError(w, statusFor(err), "%v", err)
		return
	}
	s.log.Info("todo added", "id", todo.ID, "user", todo.UserID)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Todo added",
		"details": createdDetails,
		"todo":    todo.Wire(),
	})
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	done := true
	if v := strings.TrimSpace(r.URL.Query().Get("done")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "done must be a boolean, got %q", v)
			return
		}
		done = b
	}
	todo, err := s.table.SetCompleted(r.Context(), id, done)
	if err != nil {
		writeError(w, statusFor(err), "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"todo": todo.Wire()})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	todo, err := s.table.Remove(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"todo": todo.Wire()})
}
