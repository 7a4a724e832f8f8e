package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"brickvault/internal/application/service"
	"brickvault/internal/application/store"
	jwttoken "brickvault/internal/jwt_token"
	"brickvault/internal/ledger"
	ledgermem "brickvault/internal/ledger/memory"
)

var (
	applicant = common.HexToAddress("0x00000000000000000000000000000000000000B1")
	reviewer  = common.HexToAddress("0x00000000000000000000000000000000000000A1")
	admin     = common.HexToAddress("0x00000000000000000000000000000000000000AD")
)

type ApplicationHandlerSuite struct {
	suite.Suite
	chain  *ledgermem.Ledger
	docs   *store.Memory
	jwt    *jwttoken.JWTService
	router chi.Router
}

func TestApplicationHandlerSuite(t *testing.T) {
	suite.Run(t, new(ApplicationHandlerSuite))
}

func (s *ApplicationHandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	s.chain = ledgermem.New()
	s.chain.GrantRole(ledger.RoleReviewer, reviewer)
	s.chain.GrantRole(ledger.RoleAdmin, admin)
	s.docs = store.NewMemory()
	s.jwt = jwttoken.NewJWTService("test-signing-key", "brickvault", "brickvault")

	svc := service.New(s.docs, s.chain,
		service.WithLogger(logger),
		service.WithMaxDocumentBytes(1<<20),
	)
	h := New(svc, logger, nil, jwttoken.NewJWTServiceAdapter(s.jwt), 1<<20)

	s.router = chi.NewRouter()
	h.Register(s.router)
}

func (s *ApplicationHandlerSuite) token(addr common.Address) string {
	token, err := s.jwt.GenerateAccessToken(addr, time.Hour)
	s.Require().NoError(err)
	return token
}

func (s *ApplicationHandlerSuite) do(req *http.Request, as common.Address) *httptest.ResponseRecorder {
	req.Header.Set("Authorization", "Bearer "+s.token(as))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *ApplicationHandlerSuite) submitRequest(name, email string, document []byte) *http.Request {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	s.Require().NoError(form.WriteField("name", name))
	s.Require().NoError(form.WriteField("email", email))
	part, err := form.CreateFormFile("document", "kyc.pdf")
	s.Require().NoError(err)
	_, err = part.Write(document)
	s.Require().NoError(err)
	s.Require().NoError(form.Close())

	req := httptest.NewRequest(http.MethodPost, "/applications", &body)
	req.Header.Set("Content-Type", form.FormDataContentType())
	return req
}

func (s *ApplicationHandlerSuite) submit() map[string]any {
	rec := s.do(s.submitRequest("Acme Estates", "ops@acme.example", []byte("kyc-doc")), applicant)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	var got map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &got))
	return got
}

func (s *ApplicationHandlerSuite) TestSubmit() {
	s.Run("valid multipart submission returns 201", func() {
		got := s.submit()
		s.Equal("pending", got["status"])
		s.Equal(applicant.Hex(), got["applicant_address"])
		s.NotEmpty(got["application_id"])
	})

	s.Run("unauthenticated request returns 401", func() {
		req := s.submitRequest("Acme", "ops@acme.example", []byte("doc"))
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		s.Equal(http.StatusUnauthorized, rec.Code)
	})

	s.Run("duplicate pending submission returns 422", func() {
		rec := s.do(s.submitRequest("Acme", "ops@acme.example", []byte("doc")), applicant)
		s.Equal(http.StatusUnprocessableEntity, rec.Code)
	})

	s.Run("missing document returns 400", func() {
		var body bytes.Buffer
		form := multipart.NewWriter(&body)
		s.Require().NoError(form.WriteField("name", "Acme"))
		s.Require().NoError(form.Close())
		req := httptest.NewRequest(http.MethodPost, "/applications", &body)
		req.Header.Set("Content-Type", form.FormDataContentType())

		rec := s.do(req, reviewer)
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *ApplicationHandlerSuite) TestGet() {
	s.submit()

	s.Run("existing record returned", func() {
		req := httptest.NewRequest(http.MethodGet, "/applications/"+applicant.Hex(), nil)
		rec := s.do(req, applicant)
		s.Require().Equal(http.StatusOK, rec.Code)

		var got map[string]any
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &got))
		s.Equal("pending", got["status"])
	})

	s.Run("unknown address returns 404", func() {
		req := httptest.NewRequest(http.MethodGet, "/applications/"+admin.Hex(), nil)
		rec := s.do(req, applicant)
		s.Equal(http.StatusNotFound, rec.Code)
	})

	s.Run("malformed address returns 400", func() {
		req := httptest.NewRequest(http.MethodGet, "/applications/not-an-address", nil)
		rec := s.do(req, applicant)
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *ApplicationHandlerSuite) TestList() {
	s.submit()

	s.Run("reviewer lists pending applications", func() {
		req := httptest.NewRequest(http.MethodGet, "/applications?status=pending", nil)
		rec := s.do(req, reviewer)
		s.Require().Equal(http.StatusOK, rec.Code)

		var got []map[string]any
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &got))
		s.Len(got, 1)
	})

	s.Run("non-reviewer gets 403", func() {
		req := httptest.NewRequest(http.MethodGet, "/applications", nil)
		rec := s.do(req, applicant)
		s.Equal(http.StatusForbidden, rec.Code)
	})

	s.Run("unknown status filter gets 400", func() {
		req := httptest.NewRequest(http.MethodGet, "/applications?status=bogus", nil)
		rec := s.do(req, reviewer)
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *ApplicationHandlerSuite) TestReview() {
	s.submit()

	s.Run("reviewer approves", func() {
		body := bytes.NewBufferString(`{"approve": true, "notes": "docs verified"}`)
		req := httptest.NewRequest(http.MethodPatch, "/applications/"+applicant.Hex(), body)
		rec := s.do(req, reviewer)
		s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

		var got map[string]any
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &got))
		s.Equal("approved", got["status"])
	})

	s.Run("second review gets 422", func() {
		body := bytes.NewBufferString(`{"approve": false, "reason": "too late"}`)
		req := httptest.NewRequest(http.MethodPatch, "/applications/"+applicant.Hex(), body)
		rec := s.do(req, reviewer)
		s.Equal(http.StatusUnprocessableEntity, rec.Code)
	})
}

func (s *ApplicationHandlerSuite) TestWithdraw() {
	s.submit()

	s.Run("someone else cannot withdraw", func() {
		req := httptest.NewRequest(http.MethodPost, "/applications/"+applicant.Hex()+"/withdraw", nil)
		rec := s.do(req, reviewer)
		s.Equal(http.StatusForbidden, rec.Code)
	})

	s.Run("applicant withdraws", func() {
		req := httptest.NewRequest(http.MethodPost, "/applications/"+applicant.Hex()+"/withdraw", nil)
		rec := s.do(req, applicant)
		s.Require().Equal(http.StatusOK, rec.Code)

		var got map[string]any
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &got))
		s.Equal("withdrawn", got["status"])
	})
}

func (s *ApplicationHandlerSuite) TestReconcileAndClear() {
	s.chain.FailNextTx(ledger.TxTimedOut, "")
	rec := s.do(s.submitRequest("Acme Estates", "ops@acme.example", []byte("doc")), applicant)
	s.Require().Equal(http.StatusConflict, rec.Code)

	s.Run("reconcile reports the unsynced record", func() {
		req := httptest.NewRequest(http.MethodGet, "/applications/"+applicant.Hex()+"/reconcile", nil)
		rec := s.do(req, admin)
		s.Require().Equal(http.StatusOK, rec.Code)

		var got reconcileResponse
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &got))
		s.Equal("unsynced_pending_no_chain_record", got.Outcome)
		s.Equal("pending", got.OffChain)
		s.Equal("none", got.OnChain)
	})

	s.Run("admin clears with notes", func() {
		body := bytes.NewBufferString(`{"notes": "tx never confirmed"}`)
		req := httptest.NewRequest(http.MethodPost, "/applications/"+applicant.Hex()+"/clear-unsynced", body)
		rec := s.do(req, admin)
		s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

		var got map[string]any
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &got))
		s.Equal("withdrawn", got["status"])
	})
}

func (s *ApplicationHandlerSuite) TestDocument() {
	got := s.submit()
	applicationID := got["application_id"].(string)

	s.Run("admin fetches the document", func() {
		req := httptest.NewRequest(http.MethodGet, "/documents/"+applicationID, nil)
		rec := s.do(req, admin)
		s.Require().Equal(http.StatusOK, rec.Code)

		body, err := io.ReadAll(rec.Body)
		s.Require().NoError(err)
		s.Equal([]byte("kyc-doc"), body)
	})

	s.Run("reviewer is refused", func() {
		req := httptest.NewRequest(http.MethodGet, "/documents/"+applicationID, nil)
		rec := s.do(req, reviewer)
		s.Equal(http.StatusForbidden, rec.Code)
	})
}
