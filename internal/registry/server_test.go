package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/scangate/internal/scanapi"
)

var _ = Describe("Server", func() {
	var (
		db          *BoltDB
		timeSrc     *mockTimeSource
		auth        *Authenticator
		server      *Server
		ghttpServer *ghttp.Server
		token       string
	)

	BeforeEach(func() {
		var err error
		db, err = NewBoltDB(filepath.Join(GinkgoT().TempDir(), "registry.db"))
		Expect(err).NotTo(HaveOccurred())

		timeSrc = &mockTimeSource{now: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
		auth = NewAuthenticatorWithDeps("barangay-secret", time.Hour, timeSrc)
		server = NewServerWithMux(NewServiceWithDeps(db, &defaultIDGenerator{}, timeSrc), auth, http.NewServeMux())

		ghttpServer = ghttp.NewServer()
		ghttpServer.RouteToHandler("GET", regexp.MustCompile(`.*`), server.ServeHTTP)
		ghttpServer.RouteToHandler("POST", regexp.MustCompile(`.*`), server.ServeHTTP)
		ghttpServer.RouteToHandler("OPTIONS", regexp.MustCompile(`.*`), server.ServeHTTP)

		token, err = auth.Mint("J. Dela Cruz")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		ghttpServer.Close()
		db.Close()
	})

	post := func(path, bearer string, body interface{}) (*http.Response, scanapi.SubmitResponse) {
		data, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		req, err := http.NewRequest("POST", ghttpServer.URL()+path, bytes.NewReader(data))
		Expect(err).NotTo(HaveOccurred())
		req.Header.Set("Content-Type", "application/json")
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		var decoded scanapi.SubmitResponse
		raw, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(json.Unmarshal(raw, &decoded)).To(Succeed())
		return resp, decoded
	}

	Describe("POST /api/qr-scans", func() {
		var req scanapi.SubmitRequest

		BeforeEach(func() {
			req = scanapi.SubmitRequest{QRData: "BADGE-0001", ScanTimestamp: "2024-06-01T08:30:00Z", ScannerType: "mobile_camera"}
		})

		When("the payload is new", func() {
			It("should return 201 with success", func() {
				resp, body := post("/api/qr-scans", token, req)
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))
				Expect(body.Success).To(BeTrue())
				Expect(body.IsDuplicate).To(BeFalse())
			})
		})

		When("the payload was already scanned", func() {
			BeforeEach(func() {
				resp, _ := post("/api/qr-scans", token, req)
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			})

			It("should return 409 with the original scan", func() {
				other, err := auth.Mint("M. Santos")
				Expect(err).NotTo(HaveOccurred())
				req.ScanTimestamp = "2024-06-01T08:45:00Z"

				resp, body := post("/api/qr-scans", other, req)
				Expect(resp.StatusCode).To(Equal(http.StatusConflict))
				Expect(body.Success).To(BeFalse())
				Expect(body.IsDuplicate).To(BeTrue())
				Expect(body.ExistingScan.ScannedBy).To(Equal("J. Dela Cruz"))
				Expect(body.ExistingScan.ScanTimestamp.Equal(time.Date(2024, 6, 1, 8, 30, 0, 0, time.UTC))).To(BeTrue())
			})
		})

		When("no token is sent", func() {
			It("should return 401", func() {
				resp, body := post("/api/qr-scans", "", req)
				Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
				Expect(body.Success).To(BeFalse())
			})
		})

		When("the token is forged", func() {
			It("should return 401", func() {
				forged, err := NewAuthenticator("wrong", time.Hour).Mint("J. Dela Cruz")
				Expect(err).NotTo(HaveOccurred())
				resp, _ := post("/api/qr-scans", forged, req)
				Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			})
		})

		When("qr_data exceeds the store's key limit", func() {
			It("should return 400", func() {
				req.QRData = strings.Repeat("A", 40*1024)
				resp, body := post("/api/qr-scans", token, req)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(body.Message).To(ContainSubstring("qr_data"))
			})
		})

		When("qr_data is missing", func() {
			It("should return 400", func() {
				req.QRData = ""
				resp, body := post("/api/qr-scans", token, req)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(body.Message).To(ContainSubstring("qr_data"))
			})
		})
	})

	Describe("OPTIONS preflight", func() {
		It("should answer with CORS headers", func() {
			req, err := http.NewRequest("OPTIONS", ghttpServer.URL()+"/api/qr-scans", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})
	})

	Describe("scan API contract", func() {
		var (
			client  *scanapi.Client
			payload scanapi.Payload
		)

		BeforeEach(func() {
			client = scanapi.NewClient(ghttpServer.URL(), scanapi.KindQR, scanapi.StaticToken(token), scanapi.DeviceInfo{UserAgent: "scangate/test"}, time.Second)

			var err error
			payload, err = scanapi.NewPayload("BADGE-0001", scanapi.ScannerFileUpload, time.Date(2024, 6, 1, 8, 30, 0, 0, time.UTC))
			Expect(err).NotTo(HaveOccurred())
		})

		It("should accept the first submission and flag the second as a duplicate", func() {
			first, err := client.Submit(context.Background(), payload)
			Expect(err).NotTo(HaveOccurred())
			Expect(first.Accepted).To(BeTrue())

			second, err := client.Submit(context.Background(), payload)
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Accepted).To(BeFalse())
			Expect(second.DuplicateOf.ScannedBy).To(Equal("J. Dela Cruz"))
		})

		It("should count accepted scans only", func() {
			_, err := client.Submit(context.Background(), payload)
			Expect(err).NotTo(HaveOccurred())
			_, err = client.Submit(context.Background(), payload)
			Expect(err).NotTo(HaveOccurred())

			stats, err := client.Stats(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(*stats).To(Equal(scanapi.Stats{Today: 1, Total: 1}))
		})

		It("should keep employee scans separate", func() {
			employees := scanapi.NewClient(ghttpServer.URL(), scanapi.KindEmployee, scanapi.StaticToken(token), scanapi.DeviceInfo{}, time.Second)
			_, err := client.Submit(context.Background(), payload)
			Expect(err).NotTo(HaveOccurred())

			result, err := employees.Submit(context.Background(), payload)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Accepted).To(BeTrue())
		})

		It("should map a rejected token to ErrUnauthenticated", func() {
			stranger := scanapi.NewClient(ghttpServer.URL(), scanapi.KindQR, scanapi.StaticToken("not-a-jwt"), scanapi.DeviceInfo{}, time.Second)
			_, err := stranger.Submit(context.Background(), payload)
			Expect(err).To(MatchError(scanapi.ErrUnauthenticated))
		})
	})
})
