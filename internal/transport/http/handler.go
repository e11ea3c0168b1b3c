package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"quizforge/internal/app"
	"quizforge/internal/auth"
	"quizforge/internal/domain"
)

// Handler wires the quiz and auth use cases into a JSON API.
type Handler struct {
	quizzes *app.QuizService
	auth    *auth.Service
	log     *zap.Logger
}

func NewHandler(quizzes *app.QuizService, authService *auth.Service, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{quizzes: quizzes, auth: authService, log: log}
}

// Register mounts every route on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/auth/signup", h.handleSignUp)
	mux.HandleFunc("POST /api/auth/signin", h.handleSignIn)
	mux.HandleFunc("POST /api/auth/signout", h.handleSignOut)
	mux.HandleFunc("POST /api/auth/reset-request", h.handleResetRequest)
	mux.HandleFunc("POST /api/auth/reset", h.handleReset)

	mux.HandleFunc("POST /api/quizzes", h.requireAuth(h.handleCreateQuiz))
	mux.HandleFunc("GET /api/quizzes", h.requireAuth(h.handleListQuizzes))
	mux.HandleFunc("GET /api/quizzes/{id}", h.withAuth(h.handleGetQuiz))
	mux.HandleFunc("PUT /api/quizzes/{id}", h.requireAuth(h.handleUpdateQuiz))
	mux.HandleFunc("POST /api/quizzes/{id}/publish", h.requireAuth(h.handleSetPublished))
	mux.HandleFunc("DELETE /api/quizzes/{id}", h.requireAuth(h.handleDeleteQuiz))
	mux.HandleFunc("GET /api/quizzes/{id}/stats", h.requireAuth(h.handleGetStats))
	mux.HandleFunc("POST /api/quizzes/{id}/submissions", h.handleSubmitAttempt)

	mux.HandleFunc("POST /api/sweeps/old", h.requireAuth(h.handleSweepOld))
	mux.HandleFunc("POST /api/sweeps/inactive", h.requireAuth(h.handleSweepInactive))

	mux.HandleFunc("GET /ws/stats", h.handleStatsWS)
	mux.HandleFunc("GET /ws/auth-state", h.handleAuthStateWS)
}

type questionPayload struct {
	ID            string   `json:"id"`
	Text          string   `json:"text"`
	Options       []string `json:"options"`
	CorrectOption int      `json:"correctOption"`
}

func (p questionPayload) toDomain() domain.Question {
	return domain.Question{ID: p.ID, Text: p.Text, Options: p.Options, CorrectOption: p.CorrectOption}
}

func (h *Handler) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	session, err := h.auth.SignUp(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (h *Handler) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	session, err := h.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) handleSignOut(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeJSONError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}
	if err := h.auth.SignOut(r.Context(), token); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleResetRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	token, err := h.auth.SendPasswordReset(r.Context(), req.Email)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"resetToken": token})
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.auth.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCreateQuiz(w http.ResponseWriter, r *http.Request) {
	user, _ := currentUser(r.Context())
	var req struct {
		Title       string            `json:"title"`
		Description string            `json:"description"`
		Questions   []questionPayload `json:"questions"`
		Publish     bool              `json:"publish"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	questions := make([]domain.Question, 0, len(req.Questions))
	for _, q := range req.Questions {
		questions = append(questions, q.toDomain())
	}
	quiz, err := h.quizzes.CreateQuiz(r.Context(), user.ID, req.Title, req.Description, questions, req.Publish)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, quiz)
}

func (h *Handler) handleListQuizzes(w http.ResponseWriter, r *http.Request) {
	user, _ := currentUser(r.Context())
	quizzes, err := h.quizzes.ListQuizzes(r.Context(), user.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quizzes)
}

func (h *Handler) handleGetQuiz(w http.ResponseWriter, r *http.Request) {
	actorID := ""
	if user, ok := currentUser(r.Context()); ok {
		actorID = user.ID
	}
	quiz, err := h.quizzes.GetQuiz(r.Context(), r.PathValue("id"), actorID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	// Respondents never see the answer key.
	if quiz.CreatedBy != actorID {
		for i := range quiz.Questions {
			quiz.Questions[i].CorrectOption = -1
		}
	}
	writeJSON(w, http.StatusOK, quiz)
}

func (h *Handler) handleUpdateQuiz(w http.ResponseWriter, r *http.Request) {
	user, _ := currentUser(r.Context())
	var req struct {
		Title       string            `json:"title"`
		Description string            `json:"description"`
		Questions   []questionPayload `json:"questions"`
		IsPublished bool              `json:"isPublished"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	questions := make([]domain.Question, 0, len(req.Questions))
	for _, q := range req.Questions {
		questions = append(questions, q.toDomain())
	}
	quiz, err := h.quizzes.UpdateQuiz(r.Context(), user.ID, domain.Quiz{
		ID:          r.PathValue("id"),
		Title:       req.Title,
		Description: req.Description,
		Questions:   questions,
		IsPublished: req.IsPublished,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quiz)
}

func (h *Handler) handleSetPublished(w http.ResponseWriter, r *http.Request) {
	user, _ := currentUser(r.Context())
	var req struct {
		Published bool `json:"published"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	quiz, err := h.quizzes.SetPublished(r.Context(), user.ID, r.PathValue("id"), req.Published)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quiz)
}

func (h *Handler) handleDeleteQuiz(w http.ResponseWriter, r *http.Request) {
	user, _ := currentUser(r.Context())
	if err := h.quizzes.DeleteQuiz(r.Context(), user.ID, r.PathValue("id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetStats(w http.ResponseWriter, r *http.Request) {
	user, _ := currentUser(r.Context())
	stats, err := h.quizzes.GetStats(r.Context(), user.ID, r.PathValue("id"))
	if errors.Is(err, domain.ErrNoSubmissions) {
		writeJSON(w, http.StatusOK, map[string]any{"noData": true})
		return
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleSubmitAttempt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StudentName string `json:"studentName"`
		Selections  []int  `json:"selections"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	submission, err := h.quizzes.SubmitAttempt(r.Context(), r.PathValue("id"), req.StudentName, req.Selections)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, submission)
}

func (h *Handler) handleSweepOld(w http.ResponseWriter, r *http.Request) {
	user, _ := currentUser(r.Context())
	var req struct {
		// Pointer so an explicit 0 is distinguishable from an omitted field.
		DaysOld *int `json:"daysOld"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	days := app.DefaultSweepDays
	if req.DaysOld != nil {
		days = *req.DaysOld
	}
	deleted, err := h.quizzes.SweepOldQuizzes(r.Context(), user.ID, days)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deletedCount": deleted})
}

func (h *Handler) handleSweepInactive(w http.ResponseWriter, r *http.Request) {
	user, _ := currentUser(r.Context())
	var req struct {
		MinResponses *int `json:"minResponses"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	minResponses := app.DefaultMinResponses
	if req.MinResponses != nil {
		minResponses = *req.MinResponses
	}
	deleted, err := h.quizzes.SweepInactiveQuizzes(r.Context(), user.ID, minResponses)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deletedCount": deleted})
}

// writeError maps the domain error taxonomy onto status codes. Anything
// outside the taxonomy is a persistence failure: logged, surfaced as a
// generic retry-suggested message.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var validation *domain.ValidationError
	switch {
	case errors.As(err, &validation):
		writeJSONError(w, http.StatusUnprocessableEntity, validation.Error())
	case errors.Is(err, domain.ErrIncompleteAttempt):
		writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrQuizNotFound),
		errors.Is(err, domain.ErrSubmissionNotFound),
		errors.Is(err, domain.ErrUserNotFound):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrNotOwner):
		writeJSONError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrEmailTaken):
		writeJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		writeJSONError(w, http.StatusUnauthorized, err.Error())
	default:
		h.log.Error("request failed", zap.Error(err))
		writeJSONError(w, http.StatusBadGateway, "storage unavailable, please retry")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
