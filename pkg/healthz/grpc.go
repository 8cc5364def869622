package healthz

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	grpc_auth "github.com/grpc-ecosystem/go-grpc-middleware/auth"
	"github.com/pantheon-systems/go-certauth/certutils"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// GRPCConfig configures the mTLS gRPC health endpoint.
type GRPCConfig struct {
	BindAddress string
	// TLSFile is the server cert + key in one .pem.
	TLSFile string
	CAFile  string
	// AllowedOUs lists the client certificate OUs that may connect. Empty
	// allows any client signed by the CA.
	AllowedOUs []string
	// Interval between provider polls.
	Interval time.Duration
}

// GRPCServer serves grpc.health.v1.Health, reporting NOT_SERVING while any
// provider fails.
type GRPCServer struct {
	monitor  *Monitor
	health   *health.Server
	grpc     *grpc.Server
	addr     string
	interval time.Duration
}

// NewGRPCServer loads the certificates and builds the server.
func (m *Monitor) NewGRPCServer(cfg GRPCConfig) (*GRPCServer, error) {
	cert, err := certutils.LoadKeyCertFiles(cfg.TLSFile, cfg.TLSFile)
	if err != nil {
		return nil, err
	}
	caPool, err := certutils.LoadCACertFile(cfg.CAFile)
	if err != nil {
		return nil, err
	}
	tlsConfig := certutils.NewTLSConfig(certutils.TLSConfigModern)
	tlsConfig.ClientCAs = caPool
	tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
	tlsConfig.Certificates = []tls.Certificate{cert}

	k := keepalive.ServerParameters{
		// After a duration of this time if the server doesn't see any activity it pings the client to see if the transport is still alive.
		Time: 3 * time.Second,
		// After having pinged for keepalive check, the server waits for a duration of Timeout and if no activity is seen even after that
		// the connection is closed.
		Timeout: 15 * time.Second,
	}

	authOU := AuthOU(cfg.AllowedOUs)
	s := grpc.NewServer(
		grpc.KeepaliveParams(k),
		grpc.StreamInterceptor(grpc_auth.StreamServerInterceptor(authOU)),
		grpc.UnaryInterceptor(grpc_auth.UnaryServerInterceptor(authOU)),
		grpc.Creds(credentials.NewTLS(tlsConfig)),
	)

	interval := cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	g := &GRPCServer{
		monitor:  m,
		health:   health.NewServer(),
		grpc:     s,
		addr:     cfg.BindAddress,
		interval: interval,
	}
	healthpb.RegisterHealthServer(s, g.health)
	return g, nil
}

// Poll runs the providers once and updates the served status.
func (g *GRPCServer) Poll() healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_SERVING
	if len(g.monitor.Check()) > 0 {
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	g.health.SetServingStatus("", st)
	return st
}

// Run listens and serves until ctx is done.
func (g *GRPCServer) Run(ctx context.Context) error {
	l, err := net.Listen("tcp", g.addr)
	if err != nil {
		return err
	}
	g.monitor.log.WithField("addr", g.addr).Info("serving grpc health")

	go func() {
		t := time.NewTicker(g.interval)
		defer t.Stop()
		for {
			g.Poll()
			select {
			case <-ctx.Done():
				g.grpc.GracefulStop()
				return
			case <-t.C:
			}
		}
	}()
	return g.grpc.Serve(l)
}

// AuthOU returns a grpc_auth.AuthFunc admitting only clients whose verified
// certificate carries one of ous.
func AuthOU(ous []string) grpc_auth.AuthFunc {
	allowed := make(map[string]bool, len(ous))
	for _, ou := range ous {
		allowed[ou] = true
	}
	return func(ctx context.Context) (context.Context, error) {
		if len(allowed) == 0 {
			return ctx, nil
		}
		p, ok := peer.FromContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "no peer")
		}
		info, ok := p.AuthInfo.(credentials.TLSInfo)
		if !ok || len(info.State.VerifiedChains) == 0 || len(info.State.VerifiedChains[0]) == 0 {
			return nil, status.Error(codes.Unauthenticated, "no verified client certificate")
		}
		for _, ou := range info.State.VerifiedChains[0][0].Subject.OrganizationalUnit {
			if allowed[ou] {
				return ctx, nil
			}
		}
		return nil, status.Error(codes.PermissionDenied, "client certificate OU is not allowed")
	}
}
