package station

import (
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/scangate/internal/gate"
)

var _ = Describe("BoltHistory", func() {
	var history *BoltHistory

	BeforeEach(func() {
		var err error
		history, err = NewBoltHistory(filepath.Join(GinkgoT().TempDir(), "history.db"))
		Expect(err).NotTo(HaveOccurred())

		at := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
		for i, id := range []string{"entry-a", "entry-b", "entry-c"} {
			Expect(history.Record(&HistoryEntry{ID: id, At: at.Add(time.Duration(i) * time.Minute), Phase: gate.PhaseShowingSuccess})).To(Succeed())
		}
	})

	AfterEach(func() {
		history.Close()
	})

	Describe("List", func() {
		It("should return entries newest first", func() {
			entries, err := history.List(0)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(3))
			Expect(entries[0].ID).To(Equal("entry-c"))
			Expect(entries[2].ID).To(Equal("entry-a"))
		})

		It("should honor the limit", func() {
			entries, err := history.List(2)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(2))
			Expect(entries[1].ID).To(Equal("entry-b"))
		})
	})

	Describe("Prune", func() {
		It("should remove the oldest entries beyond the limit", func() {
			removed, err := history.Prune(1)
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(HaveLen(2))
			Expect(removed[0].ID).To(Equal("entry-b"))
			Expect(removed[1].ID).To(Equal("entry-a"))

			entries, err := history.List(0)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].ID).To(Equal("entry-c"))
		})

		It("should remove nothing under the limit", func() {
			removed, err := history.Prune(10)
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(BeEmpty())
		})
	})

	Describe("Get", func() {
		It("should return the entry", func() {
			entry, err := history.Get("entry-b")
			Expect(err).NotTo(HaveOccurred())
			Expect(entry.Phase).To(Equal(gate.PhaseShowingSuccess))
		})

		It("should fail for an unknown id", func() {
			_, err := history.Get("nope")
			Expect(err).To(MatchError(ContainSubstring("entry not found")))
		})
	})
})
