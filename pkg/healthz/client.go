package healthz

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/pantheon-systems/go-certauth/certutils"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// NewTLSConnection will initiate a connection to worf with given address caFile and client .pem
func NewTLSConnection(addr, caFile, tlsFile string) (*grpc.ClientConn, error) {
	cert, err := certutils.LoadKeyCertFiles(tlsFile, tlsFile)
	if err != nil {
		return nil, fmt.Errorf("could not load TLS cert '%s': %s", tlsFile, err.Error())
	}
	caPool, err := certutils.LoadCACertFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("could not load CA cert '%s': %s", caFile, err.Error())
	}
	tlsConfig := certutils.NewTLSConfig(certutils.TLSConfigModern)
	tlsConfig.RootCAs = caPool
	tlsConfig.Certificates = []tls.Certificate{cert}

	return grpc.Dial(addr, grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig)))
}

// Probe asks a worf instance for its health status.
func Probe(ctx context.Context, conn *grpc.ClientConn) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.Status, nil
}
