package healthz

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"errors"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Sirupsen/logrus"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/peer"
)

type checkFunc func() error

func (f checkFunc) HealthZ() error { return f() }

func newMonitor(t *testing.T, timeout time.Duration, providers ...Provider) *Monitor {
	t.Helper()
	log := logrus.New()
	log.Out = ioutil.Discard
	m, err := New(Config{Host: "worf-0", CheckTimeout: timeout, Providers: providers, Logger: log})
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestHealthzEndpoint(t *testing.T) {
	var duoErr error
	m := newMonitor(t, 0,
		Provider{Name: "github", Purpose: "GitHub API", Checker: checkFunc(func() error { return nil })},
		Provider{Name: "duo", Purpose: "Duo Auth API", Checker: checkFunc(func() error { return duoErr })},
	)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	duoErr = errors.New("401 invalid signature")
	rec = httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %q", ct)
	}

	var rep Report
	if err := json.NewDecoder(rec.Body).Decode(&rep); err != nil {
		t.Fatal(err)
	}
	if rep.Host != "worf-0" || len(rep.Failures) != 1 || rep.Failures[0].Provider != "duo" || rep.Failures[0].Error != "401 invalid signature" {
		t.Errorf("unexpected report %+v", rep)
	}
}

func TestLivenessEndpoint(t *testing.T) {
	m := newMonitor(t, 0)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/liveness", nil))
	if rec.Body.String() != "OK" {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}

func TestCheckTimesOutSlowProvider(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	m := newMonitor(t, 20*time.Millisecond,
		Provider{Name: "slack", Checker: checkFunc(func() error { <-release; return nil })},
		Provider{Name: "github", Checker: checkFunc(func() error { return nil })},
		Provider{Name: "duo", Checker: checkFunc(func() error { return errors.New("bad skey") })},
	)

	failures := m.Check()
	if len(failures) != 2 || failures[0].Provider != "slack" || failures[1].Provider != "duo" {
		t.Fatalf("unexpected failures %+v", failures)
	}
	if !strings.Contains(failures[0].Error, "no answer within") {
		t.Errorf("slow provider not reported as timed out: %s", failures[0].Error)
	}
}

func TestPoll(t *testing.T) {
	var ghErr error
	m := newMonitor(t, 0, Provider{Name: "github", Checker: checkFunc(func() error { return ghErr })})
	g := &GRPCServer{monitor: m, health: health.NewServer()}

	if st := g.Poll(); st != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("expected SERVING, got %s", st)
	}
	ghErr = errors.New("rate limited")
	g.Poll()

	resp, err := g.health.Check(context.Background(), &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("expected NOT_SERVING, got %s", resp.Status)
	}
}

func peerWithOU(ou ...string) context.Context {
	cert := &x509.Certificate{Subject: pkix.Name{OrganizationalUnit: ou}}
	return peer.NewContext(context.Background(), &peer.Peer{
		AuthInfo: credentials.TLSInfo{State: tls.ConnectionState{
			VerifiedChains: [][]*x509.Certificate{{cert}},
		}},
	})
}

func TestAuthOU(t *testing.T) {
	auth := AuthOU([]string{"infra"})

	if _, err := auth(peerWithOU("infra")); err != nil {
		t.Errorf("infra should be allowed: %v", err)
	}
	if _, err := auth(peerWithOU("marketing")); err == nil {
		t.Errorf("marketing should be rejected")
	}
	if _, err := auth(context.Background()); err == nil {
		t.Errorf("missing peer should be rejected")
	}
	if _, err := AuthOU(nil)(peerWithOU("anyone")); err != nil {
		t.Errorf("empty OU list should allow any verified client: %v", err)
	}
}
