package station

import (
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalStorage", func() {
	var (
		tmpDir  string
		storage Storage
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		var err error
		storage, err = NewLocalStorage(tmpDir)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Save", func() {
		var (
			filename  string
			savedPath string
			err       error
		)

		BeforeEach(func() {
			filename = "capture.jpg"
		})

		JustBeforeEach(func() {
			savedPath, err = storage.Save(filename, []byte("image bytes"))
		})

		When("saving succeeds", func() {
			It("should return the filename", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(savedPath).To(Equal(filename))
			})

			It("should save the file to disk", func() {
				Expect(filepath.Join(tmpDir, filename)).To(BeAnExistingFile())
			})
		})

		When("the name tries to leave the archive", func() {
			BeforeEach(func() {
				filename = "../escape.jpg"
			})

			It("should return an error", func() {
				Expect(err).To(HaveOccurred())
				Expect(filepath.Join(filepath.Dir(tmpDir), "escape.jpg")).NotTo(BeAnExistingFile())
			})
		})
	})

	Describe("Get and Delete", func() {
		BeforeEach(func() {
			_, err := storage.Save("capture.png", []byte("png bytes"))
			Expect(err).NotTo(HaveOccurred())
		})

		It("should read back the stored bytes", func() {
			Expect(storage.Get("capture.png")).To(Equal([]byte("png bytes")))
		})

		It("should remove the file", func() {
			Expect(storage.Delete("capture.png")).To(Succeed())
			_, err := storage.Get("capture.png")
			Expect(err).To(HaveOccurred())
		})

		It("should fail for a missing file", func() {
			Expect(storage.Delete("missing.png")).NotTo(Succeed())
		})
	})
})

var _ = Describe("sanitizeFilename", func() {
	It("should strip punctuation and keep the extension", func() {
		Expect(sanitizeFilename("IMG_2024-06-01 (copy)#1.JPG")).To(Equal("IMG_2024-06-01 copy1.jpg"))
	})

	It("should drop directory components", func() {
		Expect(sanitizeFilename("../../etc/passwd")).To(Equal("passwd"))
	})

	It("should truncate long names", func() {
		name := sanitizeFilename(strings.Repeat("a", 80) + ".png")
		Expect(name).To(Equal(strings.Repeat("a", 50) + ".png"))
	})

	It("should fall back to a default base", func() {
		Expect(sanitizeFilename("###.heic")).To(Equal("capture.heic"))
	})
})
