package integration

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stacklok/toolhive-gateway/internal/events"
	"github.com/stacklok/toolhive-gateway/test-integration/gateway/helpers"
)

// subscribeSSE opens the event stream and decodes every data line until ctx ends
func subscribeSSE(streamCtx context.Context, baseURL string) <-chan events.Event {
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, baseURL+"/events", nil)
	Expect(err).NotTo(HaveOccurred())
	req.Header.Set("Accept", "text/event-stream")
	resp, err := http.DefaultClient.Do(req)
	Expect(err).NotTo(HaveOccurred())
	Expect(resp.StatusCode).To(Equal(http.StatusOK))
	Expect(resp.Header.Get("Content-Type")).To(HavePrefix("text/event-stream"))

	out := make(chan events.Event, 64)
	go func() {
		defer GinkgoRecover()
		defer close(out)
		defer func() {
			_ = resp.Body.Close()
		}()
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			payload, ok := strings.CutPrefix(scanner.Text(), "data: ")
			if !ok {
				continue
			}
			var ev events.Event
			if json.Unmarshal([]byte(payload), &ev) == nil {
				out <- ev
			}
		}
	}()
	return out
}

// receiveType waits for the first event of type t
func receiveType(stream <-chan events.Event, t events.Type) events.Event {
	var found events.Event
	Eventually(func() bool {
		select {
		case ev, ok := <-stream:
			if ok && ev.Type == t {
				found = ev
				return true
			}
		default:
		}
		return false
	}, 10*time.Second, 10*time.Millisecond).Should(BeTrue(), "expected a %s event", t)
	return found
}

var _ = Describe("Change Events", Label("events"), func() {
	var (
		tempDir      string
		serverHelper *helpers.ServerTestHelper
		prefix       string
	)

	BeforeEach(func() {
		tempDir = createTempDir("gateway-events-test-")
		prefix = helpers.UniquePrefix("events")

		var err error
		serverHelper, err = helpers.NewServerTestHelper(ctx, tempDir)
		Expect(err).NotTo(HaveOccurred())
		serverHelper.WriteManifest("base.yaml", helpers.NewStaticManifest("base", prefix+"/one"))

		Expect(serverHelper.StartServer()).To(Succeed())
		serverHelper.WaitForServerReady(10 * time.Second)
	})

	AfterEach(func() {
		Expect(serverHelper.StopServer()).To(Succeed())
	})

	Context("over server-sent events", func() {
		It("should acknowledge the subscription and report reloads and syncs", func() {
			streamCtx, stop := context.WithCancel(ctx)
			defer stop()
			stream := subscribeSSE(streamCtx, serverHelper.GetBaseURL())

			connected := receiveType(stream, events.TypeConnected)
			Expect(connected.ID).NotTo(BeEmpty())

			serverHelper.WriteManifest("extra.yaml", helpers.NewStaticManifest("extra", prefix+"/two", prefix+"/three"))

			reloaded := receiveType(stream, events.TypeEndpointBulkChange)
			Expect(reloaded.Action).To(Equal(events.ActionReloaded))
			Expect(reloaded.Count).NotTo(BeNil())

			synced := receiveType(stream, events.TypeEndpointSyncComplete)
			Expect(synced.Stats).NotTo(BeNil())
		})
	})

	Context("over a websocket", func() {
		It("should deliver the same events as text messages", func() {
			wsURL := "ws" + strings.TrimPrefix(serverHelper.GetBaseURL(), "http") + "/events/ws"
			conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
			Expect(err).NotTo(HaveOccurred())
			_ = resp.Body.Close()
			defer func() {
				_ = conn.Close()
			}()

			readEvent := func() events.Event {
				Expect(conn.SetReadDeadline(time.Now().Add(10 * time.Second))).To(Succeed())
				var ev events.Event
				Expect(conn.ReadJSON(&ev)).To(Succeed())
				return ev
			}

			Expect(readEvent().Type).To(Equal(events.TypeConnected))

			serverHelper.WriteManifest("extra.yaml", helpers.NewStaticManifest("extra", prefix+"/two"))

			var types []events.Type
			for len(types) < 10 {
				ev := readEvent()
				types = append(types, ev.Type)
				if ev.Type == events.TypeEndpointBulkChange {
					break
				}
			}
			Expect(types).To(ContainElement(events.TypeEndpointBulkChange))
		})
	})
})
