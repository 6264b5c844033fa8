package station

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"regexp"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	skipqr "github.com/skip2/go-qrcode"

	"github.com/zombor/scangate/internal/decoding"
	"github.com/zombor/scangate/internal/gate"
	"github.com/zombor/scangate/internal/registry"
	"github.com/zombor/scangate/internal/scanapi"
)

var _ = Describe("Integration", func() {
	var (
		registryDB   *registry.BoltDB
		registrySrv  *ghttp.Server
		history      *BoltHistory
		stationSrv   *ghttp.Server
		badge        []byte
		otherBadge   []byte
		operatorName string
	)

	routeAll := func(srv *ghttp.Server, handler http.HandlerFunc) {
		for _, method := range []string{"GET", "POST", "OPTIONS"} {
			srv.RouteToHandler(method, regexp.MustCompile(`.*`), handler)
		}
	}

	BeforeEach(func() {
		tmpDir := GinkgoT().TempDir()
		operatorName = "J. Dela Cruz"

		var err error
		registryDB, err = registry.NewBoltDB(filepath.Join(tmpDir, "registry.db"))
		Expect(err).NotTo(HaveOccurred())
		auth := registry.NewAuthenticator("barangay-secret", time.Hour)
		registrySrv = ghttp.NewServer()
		routeAll(registrySrv, registry.NewServer(registry.NewService(registryDB), auth).ServeHTTP)

		token, err := auth.Mint(operatorName)
		Expect(err).NotTo(HaveOccurred())

		history, err = NewBoltHistory(filepath.Join(tmpDir, "history.db"))
		Expect(err).NotTo(HaveOccurred())
		storage, err := NewLocalStorage(filepath.Join(tmpDir, "archive"))
		Expect(err).NotTo(HaveOccurred())

		client := scanapi.NewClient(registrySrv.URL(), scanapi.KindQR, scanapi.StaticToken(token), scanapi.DeviceInfo{UserAgent: "scangate/test"}, 5*time.Second)
		session := gate.NewSession(decoding.NewPipeline(decoding.DefaultMaxDimension), client)
		session.Observe(NewRecorder(history, storage))

		stationSrv = ghttp.NewServer()
		routeAll(stationSrv, NewServer(session, history, storage, BasicAuth{}).ServeHTTP)

		badge, err = skipqr.Encode("BRGY-EMP-0042", skipqr.Medium, 320)
		Expect(err).NotTo(HaveOccurred())
		otherBadge, err = skipqr.Encode("BRGY-EMP-0043", skipqr.Medium, 320)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		stationSrv.Close()
		registrySrv.Close()
		history.Close()
		registryDB.Close()
	})

	snapshotOf := func(resp *http.Response) (int, gate.Snapshot) {
		defer resp.Body.Close()
		var snap gate.Snapshot
		Expect(json.NewDecoder(resp.Body).Decode(&snap)).To(Succeed())
		return resp.StatusCode, snap
	}

	It("should accept a badge once and gate the second scan behind acknowledgment", func() {
		code, snap := snapshotOf(postCapture(stationSrv.URL(), "badge.png", "image/png", badge, "camera"))
		Expect(code).To(Equal(http.StatusOK))
		Expect(snap.Phase).To(Equal(gate.PhaseShowingSuccess))
		Expect(snap.Success.Payload.RawText).To(Equal("BRGY-EMP-0042"))
		Expect(snap.Totals).To(Equal(gate.Totals{Today: 1, Total: 1}))

		_, snap = snapshotOf(postCapture(stationSrv.URL(), "badge.png", "image/png", badge, "upload"))
		Expect(snap.Phase).To(Equal(gate.PhaseShowingDuplicateWarning))
		Expect(snap.Duplicate.OriginalScannedBy).To(Equal(operatorName))
		Expect(snap.Totals).To(Equal(gate.Totals{Today: 1, Total: 1}))

		code, snap = snapshotOf(postCapture(stationSrv.URL(), "other.png", "image/png", otherBadge, "camera"))
		Expect(code).To(Equal(http.StatusConflict))
		Expect(snap.Phase).To(Equal(gate.PhaseShowingDuplicateWarning))

		resp, err := http.Post(stationSrv.URL()+"/api/session/acknowledge", "application/json", nil)
		Expect(err).NotTo(HaveOccurred())
		_, snap = snapshotOf(resp)
		Expect(snap.Phase).To(Equal(gate.PhaseIdle))

		_, snap = snapshotOf(postCapture(stationSrv.URL(), "other.png", "image/png", otherBadge, "camera"))
		Expect(snap.Phase).To(Equal(gate.PhaseShowingSuccess))
		Expect(snap.Totals).To(Equal(gate.Totals{Today: 2, Total: 2}))

		scans, err := registryDB.ListScans(scanapi.KindQR)
		Expect(err).NotTo(HaveOccurred())
		Expect(scans).To(HaveLen(2))
	})

	It("should agree with the registry after a refresh", func() {
		snapshotOf(postCapture(stationSrv.URL(), "badge.png", "image/png", badge, "camera"))

		resp, err := http.Post(stationSrv.URL()+"/api/session/refresh", "application/json", nil)
		Expect(err).NotTo(HaveOccurred())
		_, snap := snapshotOf(resp)
		Expect(snap.Totals).To(Equal(gate.Totals{Today: 1, Total: 1}))
	})

	It("should archive a capture without a code", func() {
		_, snap := snapshotOf(postCapture(stationSrv.URL(), "blank.png", "image/png", solidPNG(64), "upload"))
		Expect(snap.Phase).To(Equal(gate.PhaseShowingError))
		Expect(snap.Error.Kind).To(Equal(gate.ErrorNotFound))

		entries, err := history.List(0)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(1))
		Expect(entries[0].CaptureFile).NotTo(BeEmpty())
	})
})
