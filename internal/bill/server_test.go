package bill

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/feedetective/feedetective/internal/analysis"
)

var _ = Describe("Server", func() {
	var (
		registry    *mockRegistry
		service     *Service
		server      *Server
		apiKey      string
		limiter     *RateLimiter
		ghttpServer *ghttp.Server
	)

	newService := func() *Service {
		catalog, err := analysis.DefaultCatalog()
		Expect(err).NotTo(HaveOccurred())
		return NewServiceWithDeps(registry, newMockScanner(),
			analysis.NewClassifier(catalog), analysis.NewDetector(catalog),
			time.Hour,
			&mockIDGenerator{id: "upload-123"},
			&mockTimeSource{now: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)})
	}

	setupServer := func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		ghttpServer = ghttp.NewServer()
		ghttpServer.AppendHandlers(server.ServeHTTP, server.ServeHTTP, server.ServeHTTP)
	}

	BeforeEach(func() {
		registry = newMockRegistry()
		apiKey = ""
		limiter = nil
		service = newService()
		server = NewServerWithMux(service, apiKey, limiter, http.NewServeMux())
		setupServer()
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
	})

	uploadRequest := func(filename string, fields map[string]string) *http.Response {
		var buf bytes.Buffer
		writer := multipart.NewWriter(&buf)
		fw, err := writer.CreateFormFile("file", filename)
		Expect(err).NotTo(HaveOccurred())
		_, err = fw.Write([]byte("fake file data"))
		Expect(err).NotTo(HaveOccurred())
		for key, value := range fields {
			Expect(writer.WriteField(key, value)).To(Succeed())
		}
		Expect(writer.Close()).To(Succeed())

		resp, err := http.Post(ghttpServer.URL()+"/api/upload", writer.FormDataContentType(), &buf)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	Describe("handleHealth", func() {
		It("should return status OK", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/health")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("should set CORS and security headers", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/health")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
			Expect(resp.Header.Get("X-Frame-Options")).To(Equal("DENY"))
			Expect(resp.Header.Get("X-Content-Type-Options")).To(Equal("nosniff"))
		})
	})

	Describe("preflight requests", func() {
		It("should answer OPTIONS with no content", func() {
			req, err := http.NewRequest("OPTIONS", ghttpServer.URL()+"/api/upload", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Methods")).To(ContainSubstring("POST"))
		})
	})

	Describe("handleUpload", func() {
		When("a supported file is uploaded", func() {
			It("should return status Created with the upload handle", func() {
				resp := uploadRequest("bill.pdf", map[string]string{"bill_type": "internet"})
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))

				var body uploadResponse
				Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
				Expect(body.ID).To(Equal("upload-123"))
				Expect(body.BillType).To(Equal(analysis.BillTypeInternet))
				Expect(body.Provider).To(Equal("Comcast"))
				Expect(body.PageCount).To(Equal(1))
				Expect(body.ExpiresAt).To(Equal("2024-01-15T11:00:00Z"))
			})
		})

		When("the file type is unsupported", func() {
			It("should return status Bad Request", func() {
				resp := uploadRequest("notes.txt", nil)
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

				var body map[string]string
				Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
				Expect(body["error"]).To(ContainSubstring("Unsupported file type"))
			})
		})

		When("no file is provided", func() {
			It("should return status Bad Request", func() {
				var buf bytes.Buffer
				writer := multipart.NewWriter(&buf)
				Expect(writer.WriteField("bill_type", "mobile")).To(Succeed())
				Expect(writer.Close()).To(Succeed())

				resp, err := http.Post(ghttpServer.URL()+"/api/upload", writer.FormDataContentType(), &buf)
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})
	})

	Describe("handleAnalyze", func() {
		BeforeEach(func() {
			registry.uploads["u1"] = &Upload{
				ID:       "u1",
				Provider: "AT&T",
				Document: &analysis.StructuredDocument{
					FullText: "wireless statement",
					LineItems: []analysis.LineItem{
						{Description: "Administrative Fee", Amount: 1.99},
					},
				},
			}
		})

		When("the upload exists", func() {
			It("should return the analysis result", func() {
				resp, err := http.Post(ghttpServer.URL()+"/api/analyze/u1", "application/json",
					bytes.NewBufferString(`{"bill_type": "mobile"}`))
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var result analysis.AnalysisResult
				Expect(json.NewDecoder(resp.Body).Decode(&result)).To(Succeed())
				Expect(result.BillType).To(Equal(analysis.BillTypeMobile))
				Expect(result.DetectedFees).To(HaveLen(1))
				Expect(result.PotentialSavings).To(Equal(1.99))
			})

			It("should treat an empty body as no hints", func() {
				resp, err := http.Post(ghttpServer.URL()+"/api/analyze/u1", "application/json", nil)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
			})
		})

		When("the upload does not exist", func() {
			It("should return status Not Found", func() {
				resp, err := http.Post(ghttpServer.URL()+"/api/analyze/missing", "application/json", nil)
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			})
		})

		When("the body is malformed", func() {
			It("should return status Bad Request", func() {
				resp, err := http.Post(ghttpServer.URL()+"/api/analyze/u1", "application/json",
					bytes.NewBufferString("{not json"))
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})
	})

	Describe("handleClassify", func() {
		BeforeEach(func() {
			registry.uploads["u1"] = &Upload{
				ID:       "u1",
				Provider: "Comcast",
				Document: &analysis.StructuredDocument{},
			}
		})

		It("should return the detected bill type", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/classify/u1")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var body map[string]analysis.BillType
			Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
			Expect(body["bill_type"]).To(Equal(analysis.BillTypeInternet))
		})

		It("should return Not Found for unknown uploads", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/classify/missing")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("handleDeleteUpload", func() {
		BeforeEach(func() {
			registry.uploads["u1"] = &Upload{ID: "u1"}
		})

		It("should delete the upload", func() {
			req, err := http.NewRequest("DELETE", ghttpServer.URL()+"/api/uploads/u1", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(registry.uploads).NotTo(HaveKey("u1"))
		})
	})

	Describe("API key auth", func() {
		BeforeEach(func() {
			apiKey = "secret"
			server = NewServerWithMux(service, apiKey, limiter, http.NewServeMux())
			setupServer()
			registry.uploads["u1"] = &Upload{ID: "u1"}
		})

		It("should reject requests without the key", func() {
			req, err := http.NewRequest("DELETE", ghttpServer.URL()+"/api/uploads/u1", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusForbidden))
		})

		It("should accept requests carrying the key", func() {
			req, err := http.NewRequest("DELETE", ghttpServer.URL()+"/api/uploads/u1", nil)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("X-API-Key", "secret")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
		})

		It("should leave the health endpoint open", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/health")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})

	Describe("rate limiting", func() {
		BeforeEach(func() {
			limiter = NewRateLimiter(1)
			server = NewServerWithMux(service, apiKey, limiter, http.NewServeMux())
			setupServer()
			registry.uploads["u1"] = &Upload{ID: "u1"}
		})

		It("should reject clients over their budget", func() {
			req, err := http.NewRequest("DELETE", ghttpServer.URL()+"/api/uploads/u1", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))

			resp, err = http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusTooManyRequests))
		})
	})
})

var _ = Describe("contentTypeForExtension", func() {
	It("should map common bill formats", func() {
		Expect(contentTypeForExtension("bill.pdf")).To(Equal("application/pdf"))
		Expect(contentTypeForExtension("photo.JPG")).To(Equal("image/jpeg"))
		Expect(contentTypeForExtension("photo.heic")).To(Equal("image/heic"))
	})

	It("should fall back to octet-stream", func() {
		Expect(contentTypeForExtension("notes.txt")).To(Equal("application/octet-stream"))
	})
})
