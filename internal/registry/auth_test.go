package registry

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Authenticator", func() {
	var (
		timeSrc *mockTimeSource
		auth    *Authenticator
	)

	BeforeEach(func() {
		timeSrc = &mockTimeSource{now: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)}
		auth = NewAuthenticatorWithDeps("barangay-secret", 12*time.Hour, timeSrc)
	})

	It("should round-trip the operator name", func() {
		token, err := auth.Mint("J. Dela Cruz")
		Expect(err).NotTo(HaveOccurred())
		Expect(auth.Verify(token)).To(Equal("J. Dela Cruz"))
	})

	It("should refuse to mint without a name", func() {
		_, err := auth.Mint("  ")
		Expect(err).To(HaveOccurred())
	})

	It("should reject an expired token", func() {
		token, err := auth.Mint("J. Dela Cruz")
		Expect(err).NotTo(HaveOccurred())
		timeSrc.now = timeSrc.now.Add(13 * time.Hour)
		_, err = auth.Verify(token)
		Expect(err).To(MatchError(ErrInvalidToken))
	})

	It("should accept tokens without expiry when ttl is zero", func() {
		forever := NewAuthenticatorWithDeps("barangay-secret", 0, timeSrc)
		token, err := forever.Mint("J. Dela Cruz")
		Expect(err).NotTo(HaveOccurred())
		timeSrc.now = timeSrc.now.Add(24 * 365 * time.Hour)
		Expect(forever.Verify(token)).To(Equal("J. Dela Cruz"))
	})

	It("should reject a token signed with another secret", func() {
		token, err := NewAuthenticatorWithDeps("other-secret", time.Hour, timeSrc).Mint("J. Dela Cruz")
		Expect(err).NotTo(HaveOccurred())
		_, err = auth.Verify(token)
		Expect(err).To(MatchError(ErrInvalidToken))
	})

	It("should reject an unsigned token", func() {
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, operatorClaims{Name: "intruder"}).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		Expect(err).NotTo(HaveOccurred())
		_, err = auth.Verify(token)
		Expect(err).To(MatchError(ErrInvalidToken))
	})

	It("should reject an empty token", func() {
		_, err := auth.Verify("")
		Expect(err).To(MatchError(ErrInvalidToken))
	})
})
