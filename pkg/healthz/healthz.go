// Package healthz reports whether the gateway's remote dependencies (chat,
// GitHub, Duo) answer. The same checks back the plain HTTP endpoints used by
// kube probes and the mTLS gRPC health service queried by `worf healthcheck`.
//
// The HTTP server does not use TLS; keep it inside the cluster.
package healthz

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/Sirupsen/logrus"
)

// DefaultCheckTimeout bounds a single provider check.
const DefaultCheckTimeout = 10 * time.Second

// Checker is implemented by every component that can tell whether its
// remote dependency works.
type Checker interface {
	HealthZ() error
}

// Provider is a registered Checker.
type Provider struct {
	Name    string
	Purpose string
	Checker Checker
}

// Failure is one provider that did not pass.
type Failure struct {
	Provider string `json:"provider"`
	Purpose  string `json:"purpose,omitempty"`
	Error    string `json:"error"`
}

// Report is the /healthz body. Host tells which replica answered.
type Report struct {
	Host     string    `json:"host"`
	Failures []Failure `json:"failures,omitempty"`
}

// Config for New. A zero Port is valid; the caller decides whether to serve.
type Config struct {
	Address      string
	Port         int
	Host         string
	CheckTimeout time.Duration
	Providers    []Provider
	Logger       *logrus.Logger
}

// Monitor runs the providers on demand.
type Monitor struct {
	providers []Provider
	host      string
	timeout   time.Duration
	log       *logrus.Entry
	srv       *http.Server
}

// New builds the monitor and its HTTP server.
func New(cfg Config) (*Monitor, error) {
	l := cfg.Logger
	if l == nil {
		l = logrus.New()
	}
	if cfg.Host == "" {
		h, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("could not detect hostname: %w", err)
		}
		cfg.Host = h
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = DefaultCheckTimeout
	}

	m := &Monitor{
		providers: cfg.Providers,
		host:      cfg.Host,
		timeout:   cfg.CheckTimeout,
		log:       l.WithField("host", cfg.Host),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", m.serveReport)
	mux.HandleFunc("/liveness", m.serveLiveness)
	m.srv = &http.Server{
		Addr:           fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		ReadTimeout:    45 * time.Second,
		WriteTimeout:   45 * time.Second,
		MaxHeaderBytes: 1 << 20,
		Handler:        mux,
	}
	return m, nil
}

// Check runs every provider concurrently and returns the failures in
// registration order. A provider that does not answer within the check
// timeout fails.
func (m *Monitor) Check() []Failure {
	results := make([]chan error, len(m.providers))
	for i, p := range m.providers {
		ch := make(chan error, 1)
		results[i] = ch
		go func(c Checker) { ch <- c.HealthZ() }(p.Checker)
	}

	deadline := time.NewTimer(m.timeout)
	defer deadline.Stop()

	timedOut := fmt.Errorf("no answer within %s", m.timeout)
	expired := false

	var failures []Failure
	for i, p := range m.providers {
		var err error
		if expired {
			select {
			case err = <-results[i]:
			default:
				err = timedOut
			}
		} else {
			select {
			case err = <-results[i]:
			case <-deadline.C:
				expired = true
				err = timedOut
			}
		}
		if err == nil {
			continue
		}
		m.log.WithFields(logrus.Fields{
			"provider": p.Name,
			"error":    err,
		}).Error("health check failed")
		failures = append(failures, Failure{Provider: p.Name, Purpose: p.Purpose, Error: err.Error()})
	}
	return failures
}

// Report runs the checks.
func (m *Monitor) Report() Report {
	return Report{Host: m.host, Failures: m.Check()}
}

func (m *Monitor) serveReport(w http.ResponseWriter, r *http.Request) {
	rep := m.Report()

	w.Header().Set("Content-Type", "application/json")
	if len(rep.Failures) > 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		m.log.Debug("all health checks passed")
	}
	if err := json.NewEncoder(w).Encode(rep); err != nil {
		m.log.WithError(err).Warn("writing health report")
	}
}

func (m *Monitor) serveLiveness(w http.ResponseWriter, r *http.Request) {
	if _, err := w.Write([]byte("OK")); err != nil {
		m.log.WithError(err).Warn("writing liveness")
	}
}

// Handler exposes the HTTP endpoints, mostly for tests.
func (m *Monitor) Handler() http.Handler { return m.srv.Handler }

// ListenAndServe blocks until the server fails or Shutdown is called, in
// which case it returns nil.
func (m *Monitor) ListenAndServe() error {
	m.log.WithField("addr", m.srv.Addr).Info("serving healthz")
	if err := m.srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server.
func (m *Monitor) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
