package bill

import (
	"bytes"
	"errors"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.etcd.io/bbolt"

	"github.com/feedetective/feedetective/internal/analysis"
)

var _ = Describe("BoltRegistry", func() {
	var (
		tmpDir   string
		dbPath   string
		registry *BoltRegistry
	)

	newUpload := func(id string, expiresAt time.Time) *Upload {
		return &Upload{
			ID:       id,
			BillType: analysis.BillTypeMobile,
			Provider: "AT&T",
			Document: &analysis.StructuredDocument{
				FullText:  "wireless statement",
				PageCount: 1,
			},
			CreatedAt: time.Now().UTC(),
			ExpiresAt: expiresAt,
		}
	}

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		dbPath = filepath.Join(tmpDir, "test.db")
		var err error
		registry, err = NewBoltRegistry(dbPath)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if registry != nil {
			registry.Close()
		}
	})

	Describe("SaveUpload and GetUpload", func() {
		It("should round-trip an upload", func() {
			saved := newUpload("u1", time.Now().Add(time.Hour))
			Expect(registry.SaveUpload(saved)).To(Succeed())

			got, err := registry.GetUpload("u1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal("u1"))
			Expect(got.BillType).To(Equal(analysis.BillTypeMobile))
			Expect(got.Provider).To(Equal("AT&T"))
			Expect(got.Document.FullText).To(Equal("wireless statement"))
		})

		It("should report unknown IDs", func() {
			_, err := registry.GetUpload("missing")
			Expect(errors.Is(err, ErrUploadNotFound)).To(BeTrue())
		})

		It("should store only ciphertext on disk", func() {
			Expect(registry.SaveUpload(newUpload("u1", time.Now().Add(time.Hour)))).To(Succeed())

			var raw []byte
			err := registry.db.View(func(tx *bbolt.Tx) error {
				raw = append([]byte(nil), tx.Bucket([]byte(uploadBucketName)).Get([]byte("u1"))...)
				return nil
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(raw).NotTo(BeEmpty())
			Expect(bytes.Contains(raw, []byte("wireless statement"))).To(BeFalse())
			Expect(bytes.Contains(raw, []byte("full_text"))).To(BeFalse())
		})
	})

	Describe("expiry", func() {
		It("should delete expired uploads on access", func() {
			Expect(registry.SaveUpload(newUpload("u1", time.Now().Add(-time.Minute)))).To(Succeed())

			_, err := registry.GetUpload("u1")
			Expect(errors.Is(err, ErrUploadExpired)).To(BeTrue())

			_, err = registry.GetUpload("u1")
			Expect(errors.Is(err, ErrUploadNotFound)).To(BeTrue())
		})

		It("should keep uploads inside their retention window", func() {
			Expect(registry.SaveUpload(newUpload("u1", time.Now().Add(time.Hour)))).To(Succeed())

			_, err := registry.GetUpload("u1")
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("DeleteUpload", func() {
		It("should remove an upload", func() {
			Expect(registry.SaveUpload(newUpload("u1", time.Now().Add(time.Hour)))).To(Succeed())
			Expect(registry.DeleteUpload("u1")).To(Succeed())

			_, err := registry.GetUpload("u1")
			Expect(errors.Is(err, ErrUploadNotFound)).To(BeTrue())
		})

		It("should tolerate unknown IDs", func() {
			Expect(registry.DeleteUpload("missing")).To(Succeed())
		})
	})

	Describe("SweepExpired", func() {
		It("should remove only expired uploads", func() {
			Expect(registry.SaveUpload(newUpload("expired", time.Now().Add(-time.Minute)))).To(Succeed())
			Expect(registry.SaveUpload(newUpload("live", time.Now().Add(time.Hour)))).To(Succeed())

			removed, err := registry.SweepExpired()
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(Equal(1))

			_, err = registry.GetUpload("live")
			Expect(err).NotTo(HaveOccurred())
			_, err = registry.GetUpload("expired")
			Expect(errors.Is(err, ErrUploadNotFound)).To(BeTrue())
		})

		It("should report zero when nothing expired", func() {
			Expect(registry.SaveUpload(newUpload("live", time.Now().Add(time.Hour)))).To(Succeed())

			removed, err := registry.SweepExpired()
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(BeZero())
		})
	})

	Describe("reopening the database", func() {
		It("should not expose uploads from a previous process", func() {
			Expect(registry.SaveUpload(newUpload("u1", time.Now().Add(time.Hour)))).To(Succeed())
			Expect(registry.Close()).To(Succeed())

			reopened, err := NewBoltRegistry(dbPath)
			Expect(err).NotTo(HaveOccurred())
			defer reopened.Close()

			_, err = reopened.GetUpload("u1")
			Expect(errors.Is(err, ErrUploadNotFound)).To(BeTrue())
			registry = nil
		})
	})
})
