package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"sabha/internal/directory"
	"sabha/internal/election"
	"sabha/internal/platform/middleware"
	dErrors "sabha/pkg/domain-errors"
	"sabha/pkg/testutil"
)

type fakeValidator struct {
	memberID uuid.UUID
}

func (f *fakeValidator) ValidateToken(token string) (*middleware.JWTClaims, error) {
	if token != "valid-token" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	return &middleware.JWTClaims{MemberID: f.memberID.String(), SessionID: uuid.NewString()}, nil
}

type fakeElectionService struct {
	election *election.Election
	err      error

	lastAction string
	gotActorID uuid.UUID
}

func (f *fakeElectionService) Create(_ context.Context, actorID uuid.UUID, _ directory.Level, _ uuid.UUID, _ string, _, _ election.Window) (*election.Election, error) {
	f.lastAction = "create"
	f.gotActorID = actorID
	return f.election, f.err
}

func (f *fakeElectionService) Get(_ context.Context, _ uuid.UUID) (*election.Election, error) {
	f.lastAction = "get"
	return f.election, f.err
}

func (f *fakeElectionService) SetWindows(_ context.Context, actorID, _ uuid.UUID, _, _ election.Window) (*election.Election, error) {
	f.lastAction = "set_windows"
	f.gotActorID = actorID
	return f.election, f.err
}

func (f *fakeElectionService) step(action string, actorID uuid.UUID) (*election.Election, error) {
	f.lastAction = action
	f.gotActorID = actorID
	return f.election, f.err
}

func (f *fakeElectionService) OpenNominations(_ context.Context, actorID, _ uuid.UUID) (*election.Election, error) {
	return f.step("open_nominations", actorID)
}

func (f *fakeElectionService) CloseNominations(_ context.Context, actorID, _ uuid.UUID) (*election.Election, error) {
	return f.step("close_nominations", actorID)
}

func (f *fakeElectionService) OpenVoting(_ context.Context, actorID, _ uuid.UUID) (*election.Election, error) {
	return f.step("open_voting", actorID)
}

func (f *fakeElectionService) CloseVoting(_ context.Context, actorID, _ uuid.UUID) (*election.Election, error) {
	return f.step("close_voting", actorID)
}

func (f *fakeElectionService) Complete(_ context.Context, actorID, _ uuid.UUID) (*election.Election, error) {
	return f.step("complete", actorID)
}

func (f *fakeElectionService) Cancel(_ context.Context, actorID, _ uuid.UUID) (*election.Election, error) {
	return f.step("cancel", actorID)
}

type ElectionHandlerSuite struct {
	suite.Suite

	actorID  uuid.UUID
	election *election.Election
	svc      *fakeElectionService
	router   chi.Router
}

func TestElectionHandlerSuite(t *testing.T) {
	suite.Run(t, new(ElectionHandlerSuite))
}

func (s *ElectionHandlerSuite) SetupTest() {
	s.actorID = uuid.New()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s.election = &election.Election{
		ID:           uuid.New(),
		Level:        directory.LevelTehsil,
		OrgUnitID:    uuid.New(),
		ElectionType: "general",
		Status:       election.StatusDraft,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.svc = &fakeElectionService{election: s.election}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(s.svc, logger, &fakeValidator{memberID: s.actorID})
	s.router = chi.NewRouter()
	h.Register(s.router)
}

func (s *ElectionHandlerSuite) authed(req *http.Request) *http.Request {
	req.Header.Set("Authorization", "Bearer valid-token")
	return req
}

func (s *ElectionHandlerSuite) TestCreateElection() {
	body := map[string]any{
		"level":         "tehsil",
		"org_unit_id":   s.election.OrgUnitID.String(),
		"election_type": "general",
		"nomination_window": map[string]string{
			"start": "2026-03-10T00:00:00Z",
			"end":   "2026-03-20T00:00:00Z",
		},
		"voting_window": map[string]string{
			"start": "2026-04-01T00:00:00Z",
			"end":   "2026-04-02T00:00:00Z",
		},
	}
	req := s.authed(testutil.NewJSONRequest(s.T(), http.MethodPost, "/elections", body))

	rr := testutil.DoRequest(s.router, req)

	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	assert.Equal(s.T(), "create", s.svc.lastAction)
	assert.Equal(s.T(), s.actorID, s.svc.gotActorID)
	testutil.AssertJSONContains(s.T(), rr, "status", "draft")
}

func (s *ElectionHandlerSuite) TestMissingBearerTokenRejected() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/elections", map[string]any{})

	rr := testutil.DoRequest(s.router, req)

	testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)
	assert.Empty(s.T(), s.svc.lastAction)
}

func (s *ElectionHandlerSuite) TestGetElection() {
	req := s.authed(testutil.NewRequest(s.T(), http.MethodGet, "/elections/"+s.election.ID.String()))

	rr := testutil.DoRequest(s.router, req)

	testutil.AssertStatusOK(s.T(), rr)
	testutil.AssertJSONContains(s.T(), rr, "id", s.election.ID.String())
}

func (s *ElectionHandlerSuite) TestGetElectionBadID() {
	req := s.authed(testutil.NewRequest(s.T(), http.MethodGet, "/elections/not-a-uuid"))

	rr := testutil.DoRequest(s.router, req)

	testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
}

func (s *ElectionHandlerSuite) TestTransitionRoutes() {
	routes := map[string]string{
		"open-nominations":  "open_nominations",
		"close-nominations": "close_nominations",
		"open-voting":       "open_voting",
		"close-voting":      "close_voting",
		"complete":          "complete",
		"cancel":            "cancel",
	}
	for path, action := range routes {
		req := s.authed(testutil.NewJSONRequest(s.T(), http.MethodPost, "/elections/"+s.election.ID.String()+"/"+path, nil))

		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatusOK(s.T(), rr)
		assert.Equal(s.T(), action, s.svc.lastAction, "route %s", path)
		assert.Equal(s.T(), s.actorID, s.svc.gotActorID)
	}
}

func (s *ElectionHandlerSuite) TestIllegalTransitionConflict() {
	s.svc.err = dErrors.New(dErrors.CodeInvalidStateTransition, "cannot open voting from draft")

	req := s.authed(testutil.NewJSONRequest(s.T(), http.MethodPost, "/elections/"+s.election.ID.String()+"/open-voting", nil))

	rr := testutil.DoRequest(s.router, req)

	testutil.AssertStatus(s.T(), rr, http.StatusConflict)
}

func (s *ElectionHandlerSuite) TestSetWindows() {
	body := map[string]any{
		"nomination_window": map[string]string{
			"start": "2026-03-12T00:00:00Z",
			"end":   "2026-03-22T00:00:00Z",
		},
		"voting_window": map[string]string{
			"start": "2026-04-05T00:00:00Z",
			"end":   "2026-04-06T00:00:00Z",
		},
	}
	req := s.authed(testutil.NewJSONRequest(s.T(), http.MethodPut, "/elections/"+s.election.ID.String()+"/windows", body))

	rr := testutil.DoRequest(s.router, req)

	testutil.AssertStatusOK(s.T(), rr)
	assert.Equal(s.T(), "set_windows", s.svc.lastAction)
}
