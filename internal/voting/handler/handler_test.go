package handler

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"sabha/internal/voting"
	dErrors "sabha/pkg/domain-errors"
	"sabha/pkg/testutil"
)

type fakeVotingService struct {
	requestOTPErr error
	verifyErr     error
	submitErr     error

	expiresAt time.Time
	session   *voting.VerifiedSession
	vote      *voting.Vote

	gotCode         string
	gotMemberID     uuid.UUID
	gotSessionToken string
	gotNominationID uuid.UUID
	gotPhoto        []byte
	gotContentType  string
}

func (f *fakeVotingService) RequestOTP(_ context.Context, _, _ uuid.UUID) (time.Time, error) {
	return f.expiresAt, f.requestOTPErr
}

func (f *fakeVotingService) VerifyOTP(_ context.Context, _, _ uuid.UUID, code string) (*voting.VerifiedSession, error) {
	f.gotCode = code
	return f.session, f.verifyErr
}

func (f *fakeVotingService) SubmitVote(_ context.Context, memberID uuid.UUID, sessionToken string, nominationID uuid.UUID, livePhoto []byte, photoContentType string) (*voting.Vote, error) {
	f.gotMemberID = memberID
	f.gotSessionToken = sessionToken
	f.gotNominationID = nominationID
	f.gotPhoto = livePhoto
	f.gotContentType = photoContentType
	return f.vote, f.submitErr
}

type VotingHandlerSuite struct {
	suite.Suite

	memberID   uuid.UUID
	electionID uuid.UUID
}

func TestVotingHandlerSuite(t *testing.T) {
	suite.Run(t, new(VotingHandlerSuite))
}

func (s *VotingHandlerSuite) SetupTest() {
	s.memberID = uuid.New()
	s.electionID = uuid.New()
}

func (s *VotingHandlerSuite) newHandler(svc *fakeVotingService) *Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(svc, logger, nil)
}

func (s *VotingHandlerSuite) otpRequest(path string, body any) *http.Request {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, path, body)
	req = testutil.WithMemberID(req, s.memberID.String())
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("electionID", s.electionID.String())
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func (s *VotingHandlerSuite) TestRequestOTPAccepted() {
	expires := time.Date(2026, 4, 10, 9, 5, 0, 0, time.UTC)
	svc := &fakeVotingService{expiresAt: expires}
	h := s.newHandler(svc)

	rr := httptest.NewRecorder()
	h.handleRequestOTP(rr, s.otpRequest("/elections/"+s.electionID.String()+"/otp/request", nil))

	testutil.AssertStatus(s.T(), rr, http.StatusAccepted)
	testutil.AssertJSONHasKey(s.T(), rr, "expires_at")
}

func (s *VotingHandlerSuite) TestRequestOTPUnauthenticated() {
	h := s.newHandler(&fakeVotingService{})

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/elections/"+s.electionID.String()+"/otp/request", nil)
	rr := httptest.NewRecorder()
	h.handleRequestOTP(rr, req)

	testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)
}

func (s *VotingHandlerSuite) TestRequestOTPNotEligible() {
	svc := &fakeVotingService{
		requestOTPErr: dErrors.New(dErrors.CodeNotEligible, "member is not on the voter roll"),
	}
	h := s.newHandler(svc)

	rr := httptest.NewRecorder()
	h.handleRequestOTP(rr, s.otpRequest("/elections/"+s.electionID.String()+"/otp/request", nil))

	testutil.AssertStatus(s.T(), rr, http.StatusForbidden)
}

func (s *VotingHandlerSuite) TestVerifyOTPReturnsSession() {
	session := &voting.VerifiedSession{
		Token:      "tok-123",
		ElectionID: s.electionID,
		MemberID:   s.memberID,
		ExpiresAt:  time.Date(2026, 4, 10, 9, 15, 0, 0, time.UTC),
	}
	svc := &fakeVotingService{session: session}
	h := s.newHandler(svc)

	rr := httptest.NewRecorder()
	h.handleVerifyOTP(rr, s.otpRequest("/elections/"+s.electionID.String()+"/otp/verify", map[string]string{"code": "482913"}))

	testutil.AssertStatusOK(s.T(), rr)
	assert.Equal(s.T(), "482913", svc.gotCode)
	testutil.AssertJSONContains(s.T(), rr, "session_token", "tok-123")
}

func (s *VotingHandlerSuite) TestVerifyOTPWrongCode() {
	svc := &fakeVotingService{
		verifyErr: dErrors.New(dErrors.CodeInvalidOTP, "the code is incorrect"),
	}
	h := s.newHandler(svc)

	rr := httptest.NewRecorder()
	h.handleVerifyOTP(rr, s.otpRequest("/elections/"+s.electionID.String()+"/otp/verify", map[string]string{"code": "000000"}))

	testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)
}

func (s *VotingHandlerSuite) TestVerifyOTPMalformedBody() {
	h := s.newHandler(&fakeVotingService{})

	req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/elections/"+s.electionID.String()+"/otp/verify", "{not json")
	req = testutil.WithMemberID(req, s.memberID.String())
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("electionID", s.electionID.String())
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	rr := httptest.NewRecorder()
	h.handleVerifyOTP(rr, req)

	testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
}

func (s *VotingHandlerSuite) multipartVote(fields map[string]string, photo []byte) *http.Request {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(s.T(), mw.WriteField(k, v))
	}
	if photo != nil {
		part, err := mw.CreatePart(map[string][]string{
			"Content-Disposition": {`form-data; name="live_photo"; filename="live.jpg"`},
			"Content-Type":        {"image/jpeg"},
		})
		require.NoError(s.T(), err)
		_, err = part.Write(photo)
		require.NoError(s.T(), err)
	}
	require.NoError(s.T(), mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/votes", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return testutil.WithMemberID(req, s.memberID.String())
}

func (s *VotingHandlerSuite) TestSubmitVoteCreated() {
	voteID := uuid.New()
	nominationID := uuid.New()
	svc := &fakeVotingService{vote: &voting.Vote{
		ID:          voteID,
		Status:      voting.VotePending,
		SubmittedAt: time.Date(2026, 4, 10, 9, 10, 0, 0, time.UTC),
	}}
	h := s.newHandler(svc)

	photo := []byte{0xFF, 0xD8, 0xFF, 0xE0}
	req := s.multipartVote(map[string]string{
		"session_token": "tok-123",
		"nomination_id": nominationID.String(),
	}, photo)

	rr := httptest.NewRecorder()
	h.handleSubmitVote(rr, req)

	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	assert.Equal(s.T(), s.memberID, svc.gotMemberID, "the authenticated caller is the voter on record")
	assert.Equal(s.T(), "tok-123", svc.gotSessionToken)
	assert.Equal(s.T(), nominationID, svc.gotNominationID)
	assert.Equal(s.T(), photo, svc.gotPhoto)
	assert.Equal(s.T(), "image/jpeg", svc.gotContentType)
	testutil.AssertJSONContains(s.T(), rr, "status", string(voting.VotePending))
}

func (s *VotingHandlerSuite) TestSubmitVoteMissingPhoto() {
	h := s.newHandler(&fakeVotingService{})

	req := s.multipartVote(map[string]string{
		"session_token": "tok-123",
		"nomination_id": uuid.New().String(),
	}, nil)

	rr := httptest.NewRecorder()
	h.handleSubmitVote(rr, req)

	testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
}

func (s *VotingHandlerSuite) TestSubmitVoteMissingSessionToken() {
	h := s.newHandler(&fakeVotingService{})

	req := s.multipartVote(map[string]string{
		"nomination_id": uuid.New().String(),
	}, []byte{0x01})

	rr := httptest.NewRecorder()
	h.handleSubmitVote(rr, req)

	testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
}

func (s *VotingHandlerSuite) TestSubmitVoteForeignSessionForbidden() {
	svc := &fakeVotingService{
		submitErr: dErrors.New(dErrors.CodeForbidden, "verification session belongs to a different member"),
	}
	h := s.newHandler(svc)

	req := s.multipartVote(map[string]string{
		"session_token": "stolen-token",
		"nomination_id": uuid.New().String(),
	}, []byte{0x01})

	rr := httptest.NewRecorder()
	h.handleSubmitVote(rr, req)

	testutil.AssertStatus(s.T(), rr, http.StatusForbidden)
	assert.Equal(s.T(), s.memberID, svc.gotMemberID)
}

func (s *VotingHandlerSuite) TestSubmitVoteAlreadyVoted() {
	svc := &fakeVotingService{
		submitErr: dErrors.New(dErrors.CodeAlreadyVoted, "a ballot was already cast in this election"),
	}
	h := s.newHandler(svc)

	req := s.multipartVote(map[string]string{
		"session_token": "tok-123",
		"nomination_id": uuid.New().String(),
	}, []byte{0x01})

	rr := httptest.NewRecorder()
	h.handleSubmitVote(rr, req)

	testutil.AssertStatus(s.T(), rr, http.StatusConflict)
}
