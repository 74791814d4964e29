package matrix

import (
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/42wim/matrixbotd/config"
)

// time on top of the long-poll timeout before the http client gives up on a
// silent connection.
const httpTimeoutSlack = 30 * time.Second

// keypairReloader serves the TLS client certificate and reloads it from disk
// on SIGHUP.
type keypairReloader struct {
	certMu   sync.RWMutex
	cert     *tls.Certificate
	certPath string
	keyPath  string
	sighup   chan os.Signal
}

func newKeypairReloader(certPath, keyPath string) (*keypairReloader, error) {
	result := &keypairReloader{
		certPath: certPath,
		keyPath:  keyPath,
		sighup:   make(chan os.Signal, 1),
	}
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, err
	}
	result.cert = &cert
	signal.Notify(result.sighup, syscall.SIGHUP)
	go func() {
		for range result.sighup {
			logger.Infof("Received SIGHUP, reloading TLS client certificate and key from %q and %q", certPath, keyPath)
			if err := result.maybeReload(); err != nil {
				logger.Errorf("Keeping old TLS client certificate because the new one could not be loaded: %v", err)
			}
		}
	}()
	return result, nil
}

func (kpr *keypairReloader) maybeReload() error {
	newCert, err := tls.LoadX509KeyPair(kpr.certPath, kpr.keyPath)
	if err != nil {
		return err
	}
	kpr.certMu.Lock()
	defer kpr.certMu.Unlock()
	kpr.cert = &newCert
	return nil
}

func (kpr *keypairReloader) GetClientCertificateFunc() func(*tls.CertificateRequestInfo) (*tls.Certificate, error) {
	return func(*tls.CertificateRequestInfo) (*tls.Certificate, error) {
		kpr.certMu.RLock()
		defer kpr.certMu.RUnlock()
		return kpr.cert, nil
	}
}

func (kpr *keypairReloader) stop() {
	if kpr == nil {
		return
	}
	signal.Stop(kpr.sighup)
	close(kpr.sighup)
}

func newHTTPClient(cfg config.BotConfig) (*http.Client, *keypairReloader, error) {
	tr, _ := http.DefaultTransport.(*http.Transport)
	tr = tr.Clone()

	tr.TLSClientConfig = &tls.Config{
		InsecureSkipVerify: cfg.TLS.Insecure, //nolint:gosec
		MinVersion:         tls.VersionTLS12,
	}

	var kpr *keypairReloader

	if cfg.TLS.Cert != "" {
		var err error

		kpr, err = newKeypairReloader(cfg.TLS.Cert, cfg.TLS.Key)
		if err != nil {
			return nil, nil, err
		}

		tr.TLSClientConfig.GetClientCertificate = kpr.GetClientCertificateFunc()
	}

	client := &http.Client{
		Transport: tr,
		Timeout:   time.Duration(cfg.SyncTimeoutMS)*time.Millisecond + httpTimeoutSlack,
	}

	return client, kpr, nil
}

// statusRecorder keeps the status code of the last response seen by the
// client. Calls are serialized by Matrix.callMu.
type statusRecorder struct {
	next http.RoundTripper

	mu     sync.Mutex
	status int
}

func (t *statusRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	if resp != nil {
		t.mu.Lock()
		t.status = resp.StatusCode
		t.mu.Unlock()
	}

	return resp, err
}

func (t *statusRecorder) reset() {
	t.mu.Lock()
	t.status = 0
	t.mu.Unlock()
}

func (t *statusRecorder) last() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.status
}
