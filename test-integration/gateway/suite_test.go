package integration

import (
	"context"
	"log/slog"
	"os"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var (
	ctx    context.Context
	cancel context.CancelFunc
)

func TestGatewayIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("gateway integration suite skipped in short mode")
	}
	RegisterFailHandler(Fail)
	RunSpecs(t, "Gateway Integration Suite")
}

var _ = BeforeSuite(func() {
	// gateway logs only show up for failed specs or with -v
	slog.SetDefault(slog.New(slog.NewTextHandler(GinkgoWriter, &slog.HandlerOptions{Level: slog.LevelDebug})))
	ctx, cancel = context.WithCancel(context.Background())
})

var _ = AfterSuite(func() {
	cancel()
})

// createTempDir creates a temporary directory removed after the current spec
func createTempDir(prefix string) string {
	dir, err := os.MkdirTemp("", prefix)
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(func() {
		if err := os.RemoveAll(dir); err != nil {
			GinkgoWriter.Printf("failed to remove temp dir %s: %v\n", dir, err)
		}
	})
	return dir
}
