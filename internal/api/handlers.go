package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/edustack/forumchat/internal/authz"
	"github.com/edustack/forumchat/internal/database"
	"github.com/edustack/forumchat/internal/server"
	"github.com/edustack/forumchat/internal/types"
	"github.com/gorilla/websocket"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type CreateForumRequest struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	CourseId     int      `json:"course_id"`
	DepartmentId int      `json:"department_id"`
	SubjectId    int      `json:"subject_id"`
	Private      bool     `json:"private"`
	Tags         []string `json:"tags"`
}

type ArchiveForumRequest struct {
	ForumId int `json:"forumId"`
}

type IngestMessagesRequest struct {
	SelectedForumId   int             `json:"selectedForumId"`
	ProcessedMessages []types.Message `json:"processedMessages"`
}

type IngestMessagesResponse struct {
	Success   bool            `json:"success"`
	Persisted []types.Message `json:"persisted,omitempty"`
}

type DeleteMessagesRequest struct {
	ForumId    int     `json:"forumId"`
	MessageIds []int64 `json:"messageIds"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

func (s *ForumChatApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func apiUser(a database.Account) types.User {
	return types.User{
		Id:           a.Id,
		Username:     a.Username,
		EmailAddress: a.EmailAddress,
		Role:         a.Role,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

func apiForum(f database.Forum) types.Forum {
	return types.Forum{
		Id:           f.Id,
		ExternalId:   f.ExternalId,
		Name:         f.Name,
		Description:  f.Description,
		CourseId:     f.CourseId,
		DepartmentId: f.DepartmentId,
		SubjectId:    f.SubjectId,
		ModeratorId:  f.ModeratorId,
		Private:      f.Private,
		Archived:     f.Archived,
		Tags:         f.Tags,
		CreatedAt:    f.CreatedAt,
		UpdatedAt:    f.UpdatedAt,
	}
}

// principal resolves the authenticated account for the request.
func (s *ForumChatApp) principal(r *http.Request) (types.User, *ApiError) {
	userId, ok := UserId(r.Context())
	if !ok {
		return types.User{}, NewUnauthorizedError()
	}

	account, err := s.db.GetAccountById(userId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, NewNotFoundError()
		}
		return types.User{}, NewInternalServerError(err)
	}

	return apiUser(account), nil
}

// forumResource resolves the forum a capability check is scoped to.
func (s *ForumChatApp) forumResource(forumId int) (*types.Forum, *ApiError) {
	dbForum, err := s.db.GetForumById(forumId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewNotFoundError()
		}
		return nil, NewServiceUnavailableError(err)
	}

	forum := apiForum(dbForum)
	return &forum, nil
}

func (s *ForumChatApp) healthCheck(w http.ResponseWriter, _ *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.log.Println("health check:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *ForumChatApp) createAccount(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Username == "" || req.Email == "" || req.Password == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Role == "" {
		req.Role = types.RoleStudent
	}
	if !slices.Contains([]string{types.RoleStudent, types.RoleFaculty, types.RoleAuthority}, req.Role) {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	pwdHash, err := hashPassword(req.Password)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	params := database.CreateAccountParams{
		Username:     req.Username,
		EmailAddress: req.Email,
		PasswordHash: pwdHash,
		Role:         req.Role,
	}

	newAccount, err := s.db.CreateAccount(params)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, apiUser(newAccount))
}

func (s *ForumChatApp) login(w http.ResponseWriter, r *http.Request) {
	var lr LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&lr); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if lr.Email == "" || lr.Password == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	account, err := s.db.GetAccountByEmail(lr.Email)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !verifyPassword(account.PasswordHash, lr.Password) {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	u := apiUser(account)

	token, err := s.createJwtForSession(u, defaultJwtExpiration)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	http.SetCookie(w, createJwtCookie(token, defaultJwtExpiration))

	s.writeJson(w, http.StatusOK, u)
}

func (s *ForumChatApp) session(w http.ResponseWriter, r *http.Request) {
	user, errResp := s.principal(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, user)
}

func (s *ForumChatApp) logout(w http.ResponseWriter, _ *http.Request) {
	// instruct browser to delete cookie by overwriting it with an expired one
	http.SetCookie(w, createJwtCookie("", -time.Hour))
	w.WriteHeader(http.StatusNoContent)
}

func (s *ForumChatApp) getMessages(w http.ResponseWriter, r *http.Request) {
	user, errResp := s.principal(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	forumIdStr := r.URL.Query().Get("forumId")
	if forumIdStr == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	forumId, err := strconv.Atoi(forumIdStr)
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	forum, errResp := s.forumResource(forumId)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.authz.Authorize(user, authz.ActionRead, authz.Resource{Forum: forum}); err != nil {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	messages, err := s.gw.History(forumId)
	if err != nil {
		s.log.Println("history:", err)
		errResp := gatewayError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, messages)
}

func (s *ForumChatApp) ingestMessages(w http.ResponseWriter, r *http.Request) {
	user, errResp := s.principal(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req IngestMessagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.SelectedForumId <= 0 || len(req.ProcessedMessages) == 0 {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var authorIds []int
	for i := range req.ProcessedMessages {
		if req.ProcessedMessages[i].AuthorId == 0 {
			req.ProcessedMessages[i].AuthorId = user.Id
		}
		if !slices.Contains(authorIds, req.ProcessedMessages[i].AuthorId) {
			authorIds = append(authorIds, req.ProcessedMessages[i].AuthorId)
		}
	}

	forum, errResp := s.forumResource(req.SelectedForumId)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.authz.Authorize(user, authz.ActionIngest, authz.Resource{Forum: forum, MessageAuthorIds: authorIds}); err != nil {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	persisted, err := s.gw.IngestBatch(req.SelectedForumId, req.ProcessedMessages)
	if err != nil {
		s.log.Println("ingest batch:", err)
		errResp := gatewayError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, IngestMessagesResponse{
		Success:   true,
		Persisted: persisted,
	})
}

func (s *ForumChatApp) deleteMessages(w http.ResponseWriter, r *http.Request) {
	user, errResp := s.principal(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req DeleteMessagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.ForumId <= 0 || len(req.MessageIds) == 0 {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	authorIds, err := s.gw.MessageAuthors(req.ForumId, req.MessageIds)
	if err != nil {
		s.log.Println("message authors:", err)
		errResp := gatewayError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.authz.Authorize(user, authz.ActionDelete, authz.Resource{MessageAuthorIds: authorIds}); err != nil {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	deleted, err := s.gw.DeleteBatch(req.ForumId, req.MessageIds)
	if err != nil {
		s.log.Println("delete batch:", err)
		errResp := gatewayError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, MessageResponse{
		Message: "deleted " + strconv.Itoa(len(deleted)) + " message(s)",
	})
}

func (s *ForumChatApp) createForum(w http.ResponseWriter, r *http.Request) {
	user, errResp := s.principal(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateForumRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Name == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.authz.Authorize(user, authz.ActionCreateForum, authz.Resource{}); err != nil {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	sid, err := s.generateShortId()
	if err != nil {
		s.log.Print("generateShortId:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	params := database.CreateForumParams{
		Name:         req.Name,
		Description:  req.Description,
		ExternalId:   sid,
		CourseId:     req.CourseId,
		DepartmentId: req.DepartmentId,
		SubjectId:    req.SubjectId,
		ModeratorId:  user.Id,
		Private:      req.Private,
		Tags:         req.Tags,
	}

	newForum, err := s.db.CreateForum(params)
	if err != nil {
		s.log.Println("create forum:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, apiForum(newForum))
}

func (s *ForumChatApp) getForums(w http.ResponseWriter, r *http.Request) {
	user, errResp := s.principal(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.authz.Authorize(user, authz.ActionRead, authz.Resource{}); err != nil {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	query := r.URL.Query()

	if idStr := query.Get("id"); idStr != "" {
		forumId, err := strconv.Atoi(idStr)
		if err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		forum, err := s.db.GetForumById(forumId)
		if err != nil {
			var errResp *ApiError
			if errors.Is(err, sql.ErrNoRows) {
				errResp = NewNotFoundError()
			} else {
				errResp = NewInternalServerError(err)
			}
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		s.writeJson(w, http.StatusOK, apiForum(forum))
		return
	}

	var params database.ListForumsParams
	for name, dst := range map[string]*int{
		"courseId":     &params.CourseId,
		"departmentId": &params.DepartmentId,
		"subjectId":    &params.SubjectId,
	} {
		if v := query.Get(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errResp := NewBadRequestError()
				s.writeJson(w, errResp.StatusCode, errResp)
				return
			}
			*dst = n
		}
	}

	dbForums, err := s.db.ListForums(params)
	if err != nil {
		s.log.Println("list forums:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	forums := make([]types.Forum, 0, len(dbForums))
	for _, f := range dbForums {
		forums = append(forums, apiForum(f))
	}

	s.writeJson(w, http.StatusOK, forums)
}

func (s *ForumChatApp) archiveForum(w http.ResponseWriter, r *http.Request) {
	user, errResp := s.principal(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req ArchiveForumRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ForumId <= 0 {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbForum, err := s.db.GetForumById(req.ForumId)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	forum := apiForum(dbForum)
	if err := s.authz.Authorize(user, authz.ActionArchiveForum, authz.Resource{Forum: &forum}); err != nil {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.ArchiveForum(req.ForumId); err != nil {
		s.log.Println("archive forum:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if s.cs != nil {
		if err := s.cs.UnloadRoom(r.Context(), req.ForumId, true); err != nil {
			s.log.Println("unload room:", err)
			errResp := NewInternalServerError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	s.writeJson(w, http.StatusOK, MessageResponse{Message: "forum archived"})
}

func (s *ForumChatApp) serveWs(w http.ResponseWriter, r *http.Request) {
	user, errResp := s.principal(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				// if no origin header, allow the request
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := server.NewClient(user, conn, s.cs, s.log)

	s.cs.RegisterClient(client)
	go client.Write()
	go client.Read()
}
