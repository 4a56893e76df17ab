package workspace

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/FACorreiaa/go-user-accounts/internal/api/auth"
	"github.com/FACorreiaa/go-user-accounts/internal/types"
)

type MockWorkspaceService struct {
	mock.Mock
}

func (m *MockWorkspaceService) InviteUsers(ctx context.Context, inviter *types.User, req types.InviteUsersRequest, origin string) ([]types.User, error) {
	args := m.Called(ctx, inviter, req, origin)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.User), args.Error(1)
}

func (m *MockWorkspaceService) LeaveWorkspace(ctx context.Context, user *types.User, workspaceID string) (*types.User, error) {
	args := m.Called(ctx, user, workspaceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.User), args.Error(1)
}

func TestHandler_InviteUsers(t *testing.T) {
	admin := &types.User{ID: uuid.New()}
	body := `{"usernames":["a@x.com"],"workspaceId":"ws-1","roleName":"Developer"}`

	t.Run("origin is required", func(t *testing.T) {
		svc := new(MockWorkspaceService)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/users/invite", strings.NewReader(body))
		req = req.WithContext(auth.WithUser(req.Context(), admin))
		rr := httptest.NewRecorder()
		NewHandlerImpl(svc, discardLogger()).InviteUsers(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		svc.AssertNotCalled(t, "InviteUsers", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("forbidden", func(t *testing.T) {
		svc := new(MockWorkspaceService)
		svc.On("InviteUsers", mock.Anything, admin, mock.Anything, "https://app.example.com").Return(nil, types.ErrForbidden).Once()

		req := httptest.NewRequest(http.MethodPost, "/api/v1/users/invite", strings.NewReader(body))
		req.Header.Set("Origin", "https://app.example.com/")
		req = req.WithContext(auth.WithUser(req.Context(), admin))
		rr := httptest.NewRecorder()
		NewHandlerImpl(svc, discardLogger()).InviteUsers(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("invited", func(t *testing.T) {
		svc := new(MockWorkspaceService)
		expected := types.InviteUsersRequest{Usernames: []string{"a@x.com"}, WorkspaceID: "ws-1", RoleName: types.RoleDeveloper}
		svc.On("InviteUsers", mock.Anything, admin, expected, "https://app.example.com").
			Return([]types.User{{Email: "a@x.com"}}, nil).Once()

		req := httptest.NewRequest(http.MethodPost, "/api/v1/users/invite", strings.NewReader(body))
		req.Header.Set("Origin", "https://app.example.com")
		req = req.WithContext(auth.WithUser(req.Context(), admin))
		rr := httptest.NewRecorder()
		NewHandlerImpl(svc, discardLogger()).InviteUsers(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), `"email":"a@x.com"`)
		svc.AssertExpectations(t)
	})
}

func TestHandler_LeaveWorkspace(t *testing.T) {
	user := &types.User{ID: uuid.New()}
	svc := new(MockWorkspaceService)
	svc.On("LeaveWorkspace", mock.Anything, user, "ws-9").Return(nil, types.NewValidationError("the last administrator cannot leave the workspace")).Once()

	r := chi.NewRouter()
	r.With(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), user)))
		})
	}).Put("/users/leaveWorkspace/{workspaceId}", NewHandlerImpl(svc, discardLogger()).LeaveWorkspace)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/users/leaveWorkspace/ws-9", nil))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "last administrator")
}
