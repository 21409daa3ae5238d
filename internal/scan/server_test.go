package scan

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

// scanResponse mirrors the wire format of a scan
type scanResponse struct {
	Anomalies []struct {
		ID               string  `json:"id"`
		Type             string  `json:"type"`
		Severity         string  `json:"severity"`
		InvoiceID        string  `json:"invoice_id"`
		InvoiceNumber    string  `json:"invoice_number"`
		VendorName       string  `json:"vendor_name"`
		Amount           float64 `json:"amount"`
		Date             string  `json:"date"`
		Description      string  `json:"description"`
		Confidence       float64 `json:"confidence"`
		RelatedInvoiceID string  `json:"related_invoice_id"`
	} `json:"anomalies"`
	Narrative string         `json:"narrative"`
	Summary   map[string]int `json:"summary"`
}

const testSecret = "test-secret"

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		narrator    *mockNarrator
		auth        *Authenticator
		server      *Server
		ghttpServer *ghttp.Server
		token       string
	)

	setupServer := func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		service := NewService(db, narrator, DefaultConfig())
		server = NewServerWithMux(service, auth, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		ghttpServer.AppendHandlers(server.ServeHTTP)
	}

	scanRequest := func(body string, bearer string) *http.Response {
		req, err := http.NewRequest(http.MethodPost, ghttpServer.URL()+"/api/anomaly-scan", bytes.NewBufferString(body))
		Expect(err).NotTo(HaveOccurred())
		req.Header.Set("Content-Type", "application/json")
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	errorMessage := func(resp *http.Response) string {
		var body map[string]string
		Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
		return body["error"]
	}

	BeforeEach(func() {
		db = newMockDB()
		db.members["tenant-1"] = []string{"user-1"}
		db.payables = duplicatePair()
		db.vendors["A"] = "Acme Supplies"
		narrator = &mockNarrator{text: "Check the Acme bills."}
		auth = NewAuthenticator(testSecret)

		var err error
		token, err = auth.IssueToken("user-1", time.Hour)
		Expect(err).NotTo(HaveOccurred())
	})

	JustBeforeEach(func() {
		setupServer()
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
			ghttpServer = nil
		}
	})

	Describe("handleScan", func() {
		When("the caller is a tenant member", func() {
			It("should return status OK with JSON", func() {
				resp := scanRequest(`{"tenant_id":"tenant-1"}`, token)
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))
			})

			It("should return anomalies, narrative and summary", func() {
				resp := scanRequest(`{"tenant_id":"tenant-1"}`, token)
				defer resp.Body.Close()
				var body scanResponse
				Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())

				Expect(body.Anomalies).To(HaveLen(3))
				first := body.Anomalies[0]
				Expect(first.ID).To(Equal("anom-0"))
				Expect(first.Type).To(Equal("duplicate"))
				Expect(first.Severity).To(Equal("high"))
				Expect(first.InvoiceID).To(Equal("bill-1"))
				Expect(first.InvoiceNumber).To(Equal("B-001"))
				Expect(first.VendorName).To(Equal("Acme Supplies"))
				Expect(first.Amount).To(Equal(50000.0))
				Expect(first.Date).To(Equal("2024-01-05"))
				Expect(first.Confidence).To(Equal(0.85))
				Expect(first.RelatedInvoiceID).To(Equal("bill-2"))

				Expect(body.Narrative).To(Equal("Check the Acme bills."))
				Expect(body.Summary).To(Equal(map[string]int{"total": 3, "high": 1, "medium": 0, "low": 2}))
			})

			It("should accept the tenant in the query string", func() {
				req, err := http.NewRequest(http.MethodPost, ghttpServer.URL()+"/api/anomaly-scan?tenant_id=tenant-1", nil)
				Expect(err).NotTo(HaveOccurred())
				req.Header.Set("Authorization", "Bearer "+token)
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
			})

			It("should echo a request id", func() {
				resp := scanRequest(`{"tenant_id":"tenant-1"}`, token)
				defer resp.Body.Close()
				Expect(resp.Header.Get("X-Request-ID")).NotTo(BeEmpty())
			})

			It("should set CORS headers", func() {
				resp := scanRequest(`{"tenant_id":"tenant-1"}`, token)
				defer resp.Body.Close()
				Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
			})
		})

		When("the narrator fails", func() {
			BeforeEach(func() {
				narrator.err = errors.New("model offline")
			})

			It("should still return the anomalies with an empty narrative", func() {
				resp := scanRequest(`{"tenant_id":"tenant-1"}`, token)
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				var body scanResponse
				Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
				Expect(body.Anomalies).To(HaveLen(3))
				Expect(body.Narrative).To(BeEmpty())
			})
		})

		When("no token is sent", func() {
			It("should return status Unauthorized", func() {
				resp := scanRequest(`{"tenant_id":"tenant-1"}`, "")
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
				Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Bearer"))
			})

			It("should not read any invoices", func() {
				resp := scanRequest(`{"tenant_id":"tenant-1"}`, "")
				resp.Body.Close()
				Expect(db.listCalls).To(Equal(0))
			})
		})

		When("the token is signed with another secret", func() {
			It("should return status Unauthorized", func() {
				forged, err := NewAuthenticator("other-secret").IssueToken("user-1", time.Hour)
				Expect(err).NotTo(HaveOccurred())
				resp := scanRequest(`{"tenant_id":"tenant-1"}`, forged)
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			})
		})

		When("the token has expired", func() {
			It("should return status Unauthorized", func() {
				expired, err := auth.IssueToken("user-1", -time.Minute)
				Expect(err).NotTo(HaveOccurred())
				resp := scanRequest(`{"tenant_id":"tenant-1"}`, expired)
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			})
		})

		When("the tenant id is missing", func() {
			It("should return status Bad Request", func() {
				resp := scanRequest(`{}`, token)
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(errorMessage(resp)).To(Equal("tenant_id is required"))
			})
		})

		When("the body is malformed", func() {
			It("should return status Bad Request", func() {
				resp := scanRequest(`{"tenant_id":`, token)
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})

		When("the caller is not a member", func() {
			It("should return status Forbidden", func() {
				resp := scanRequest(`{"tenant_id":"tenant-2"}`, token)
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusForbidden))
			})

			It("should not read any invoices", func() {
				resp := scanRequest(`{"tenant_id":"tenant-2"}`, token)
				resp.Body.Close()
				Expect(db.listCalls).To(Equal(0))
			})
		})

		When("the membership check fails", func() {
			BeforeEach(func() {
				db.memberErr = errors.New("store unavailable")
			})

			It("should return status Internal Server Error", func() {
				resp := scanRequest(`{"tenant_id":"tenant-1"}`, token)
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			})
		})

		When("reading the invoices fails", func() {
			BeforeEach(func() {
				db.payablesErr = errors.New("database locked")
			})

			It("should return status Internal Server Error with the message", func() {
				resp := scanRequest(`{"tenant_id":"tenant-1"}`, token)
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
				Expect(errorMessage(resp)).To(ContainSubstring("database locked"))
			})
		})

		When("the request is a preflight", func() {
			It("should return status No Content without auth", func() {
				req, err := http.NewRequest(http.MethodOptions, ghttpServer.URL()+"/api/anomaly-scan", nil)
				Expect(err).NotTo(HaveOccurred())
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
				Expect(resp.Header.Get("Access-Control-Allow-Methods")).To(ContainSubstring("POST"))
			})
		})

		When("the method is not POST", func() {
			It("should return status Method Not Allowed", func() {
				req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/api/anomaly-scan", nil)
				Expect(err).NotTo(HaveOccurred())
				req.Header.Set("Authorization", "Bearer "+token)
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusMethodNotAllowed))
			})
		})
	})

	Describe("handleAuditLog", func() {
		auditRequest := func(tenant string) *http.Response {
			req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/api/audit-log?tenant_id="+tenant, nil)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Authorization", "Bearer "+token)
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			return resp
		}

		When("the tenant has scans", func() {
			BeforeEach(func() {
				db.audit = []*AuditEntry{{ID: "audit-1", TenantID: "tenant-1", ConfidenceScore: 1.0}}
			})

			It("should return the entries", func() {
				resp := auditRequest("tenant-1")
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				var entries []*AuditEntry
				Expect(json.Unmarshal(body, &entries)).To(Succeed())
				Expect(entries).To(HaveLen(1))
				Expect(entries[0].ConfidenceScore).To(Equal(1.0))
			})
		})

		When("the caller is not a member", func() {
			It("should return status Forbidden", func() {
				resp := auditRequest("tenant-2")
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusForbidden))
			})
		})

		When("the tenant id is missing", func() {
			It("should return status Bad Request", func() {
				resp := auditRequest("")
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})
	})

	Describe("handleHealth", func() {
		It("should return status OK without auth", func() {
			resp, err := http.Get(ghttpServer.URL() + "/healthz")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})
})

var _ = Describe("Authenticator", func() {
	var auth *Authenticator

	BeforeEach(func() {
		auth = NewAuthenticator(testSecret)
	})

	request := func(header string) *http.Request {
		req, err := http.NewRequest(http.MethodGet, "/", nil)
		Expect(err).NotTo(HaveOccurred())
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		return req
	}

	It("should return the token subject", func() {
		token, err := auth.IssueToken("user-7", time.Hour)
		Expect(err).NotTo(HaveOccurred())
		Expect(auth.UserID(request("Bearer " + token))).To(Equal("user-7"))
	})

	It("should reject a missing header", func() {
		_, err := auth.UserID(request(""))
		Expect(err).To(MatchError(errMissingToken))
	})

	It("should reject basic auth", func() {
		_, err := auth.UserID(request("Basic dXNlcjpwYXNz"))
		Expect(err).To(MatchError(errMissingToken))
	})

	It("should reject garbage tokens", func() {
		_, err := auth.UserID(request("Bearer not-a-jwt"))
		Expect(err).To(HaveOccurred())
	})

	It("should reject tokens without a subject", func() {
		token, err := auth.IssueToken("", time.Hour)
		Expect(err).NotTo(HaveOccurred())
		_, err = auth.UserID(request("Bearer " + token))
		Expect(err).To(MatchError(errNoSubject))
	})

	When("no secret is configured", func() {
		It("should refuse to issue or accept tokens", func() {
			empty := NewAuthenticator("")
			_, err := empty.IssueToken("user-1", time.Hour)
			Expect(err).To(HaveOccurred())

			token, err := auth.IssueToken("user-1", time.Hour)
			Expect(err).NotTo(HaveOccurred())
			_, err = empty.UserID(request("Bearer " + token))
			Expect(err).To(HaveOccurred())
		})
	})
})
