package registry

import (
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/scangate/internal/scanapi"
)

var _ = Describe("BoltDB", func() {
	var (
		db      *BoltDB
		morning time.Time
	)

	BeforeEach(func() {
		var err error
		db, err = NewBoltDB(filepath.Join(GinkgoT().TempDir(), "test.db"))
		Expect(err).NotTo(HaveOccurred())
		morning = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	Describe("RecordScan", func() {
		var (
			scan     *Scan
			existing *Scan
			err      error
		)

		BeforeEach(func() {
			scan = &Scan{ID: "scan-1", Kind: scanapi.KindQR, QRData: "BADGE-0001", ScanTimestamp: morning, ScannedBy: "J. Dela Cruz"}
		})

		JustBeforeEach(func() {
			existing, err = db.RecordScan(scan)
		})

		When("the payload is new", func() {
			It("should store it and report no earlier scan", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(existing).To(BeNil())

				scans, listErr := db.ListScans(scanapi.KindQR)
				Expect(listErr).NotTo(HaveOccurred())
				Expect(scans).To(HaveLen(1))
				Expect(scans[0].ID).To(Equal("scan-1"))
			})
		})

		When("the payload was already recorded", func() {
			BeforeEach(func() {
				first := &Scan{ID: "scan-0", Kind: scanapi.KindQR, QRData: "BADGE-0001", ScanTimestamp: morning.Add(-time.Hour), ScannedBy: "M. Santos"}
				_, firstErr := db.RecordScan(first)
				Expect(firstErr).NotTo(HaveOccurred())
			})

			It("should return the earlier scan", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(existing.ID).To(Equal("scan-0"))
				Expect(existing.ScannedBy).To(Equal("M. Santos"))
			})

			It("should not overwrite the earlier scan", func() {
				scans, listErr := db.ListScans(scanapi.KindQR)
				Expect(listErr).NotTo(HaveOccurred())
				Expect(scans).To(HaveLen(1))
				Expect(scans[0].ScannedBy).To(Equal("M. Santos"))
			})
		})

		When("the same payload is recorded under another kind", func() {
			BeforeEach(func() {
				_, firstErr := db.RecordScan(&Scan{ID: "emp-1", Kind: scanapi.KindEmployee, QRData: "BADGE-0001"})
				Expect(firstErr).NotTo(HaveOccurred())
			})

			It("should treat the kinds independently", func() {
				Expect(existing).To(BeNil())
			})
		})

		When("the kind is unknown", func() {
			BeforeEach(func() {
				scan.Kind = "visitor"
			})

			It("should return an error", func() {
				Expect(err).To(MatchError(ContainSubstring("unknown scan kind")))
			})
		})
	})

	Describe("CountScans", func() {
		BeforeEach(func() {
			for i, ts := range []time.Time{morning.Add(-24 * time.Hour), morning, morning.Add(2 * time.Hour)} {
				_, err := db.RecordScan(&Scan{ID: "id", Kind: scanapi.KindQR, QRData: string(rune('A' + i)), ScanTimestamp: ts})
				Expect(err).NotTo(HaveOccurred())
			}
		})

		It("should count scans since the cutoff and in total", func() {
			recent, total, err := db.CountScans(scanapi.KindQR, morning.Truncate(24*time.Hour))
			Expect(err).NotTo(HaveOccurred())
			Expect(recent).To(Equal(2))
			Expect(total).To(Equal(3))
		})

		It("should count an empty kind as zero", func() {
			recent, total, err := db.CountScans(scanapi.KindEmployee, morning)
			Expect(err).NotTo(HaveOccurred())
			Expect(recent).To(BeZero())
			Expect(total).To(BeZero())
		})
	})
})
