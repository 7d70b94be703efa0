package multisig

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"os"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/cockroachdb/errors"
	logger "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/TEENet-io/inscription-bridge/common"
)

const (
	methodPublicKey = "/multisig.ThresholdSigner/PublicKey"
	methodSign      = "/multisig.ThresholdSigner/Sign"
)

type ConnectorConfig struct {
	// IP address of the remote RPC server, in the form of host:port
	ServerAddress string

	// path to the TLS certificate and key used to run a TLS client.
	// Leave empty for a plaintext connection (local setups only).
	Cert string
	Key  string

	// path to the CA certificate used to authenticate the remote RPC server during TLS handshake
	ServerCACert string
}

// RemoteSigner asks the threshold signing service over gRPC. Requests are
// structpb.Struct {"path": [hex segments], "digest": hex}, replies are
// wrapperspb.BytesValue holding a compressed public key or r||s.
type RemoteSigner struct {
	conn grpc.ClientConnInterface
}

func NewRemoteSigner(cfg *ConnectorConfig) (*RemoteSigner, *grpc.ClientConn, error) {
	creds := insecure.NewCredentials()
	if cfg.Cert != "" {
		tlsConfig, err := createTLSConfig(cfg.Cert, cfg.Key, cfg.ServerCACert)
		if err != nil {
			return nil, nil, err
		}
		creds = credentials.NewTLS(tlsConfig)
	} else {
		logger.Warn("threshold signer connection is not encrypted")
	}

	conn, err := grpc.NewClient(cfg.ServerAddress, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to connect to signer at %s", cfg.ServerAddress)
	}
	return NewRemoteSignerFromConn(conn), conn, nil
}

func NewRemoteSignerFromConn(conn grpc.ClientConnInterface) *RemoteSigner {
	return &RemoteSigner{conn: conn}
}

// Create a TLS config, from loading the cert, key, and CA cert files (paths)
func createTLSConfig(certFilePath, keyFilePath, serverCaCertFilePath string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFilePath, keyFilePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load client certificate and key")
	}

	caCertPool := x509.NewCertPool()
	caCert, err := os.ReadFile(serverCaCertFilePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read CA certificate")
	}
	caCertPool.AppendCertsFromPEM(caCert)

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      caCertPool,
		MinVersion:   tls.VersionTLS12,
	}, nil
}

func (rs *RemoteSigner) PublicKey(ctx context.Context, path common.DerivationPath) (*btcec.PublicKey, error) {
	req, err := newSignerRequest(path, nil)
	if err != nil {
		return nil, err
	}
	reply := new(wrapperspb.BytesValue)
	if err := rs.conn.Invoke(ctx, methodPublicKey, req, reply); err != nil {
		return nil, errors.Wrapf(err, "failed to get public key for path %s", path)
	}
	pub, err := btcec.ParsePubKey(reply.GetValue())
	if err != nil {
		return nil, errors.Wrap(err, "invalid public key from signer")
	}
	return pub, nil
}

func (rs *RemoteSigner) Sign(ctx context.Context, path common.DerivationPath, digest []byte) ([]byte, error) {
	req, err := newSignerRequest(path, digest)
	if err != nil {
		return nil, err
	}
	reply := new(wrapperspb.BytesValue)
	if err := rs.conn.Invoke(ctx, methodSign, req, reply); err != nil {
		return nil, errors.Wrapf(err, "failed to sign with path %s", path)
	}
	if len(reply.GetValue()) != SignatureLen {
		return nil, errors.Newf("invalid signature length from signer: %d", len(reply.GetValue()))
	}
	return reply.GetValue(), nil
}

func newSignerRequest(path common.DerivationPath, digest []byte) (*structpb.Struct, error) {
	segs := make([]any, 0, len(path))
	for _, seg := range path {
		segs = append(segs, hex.EncodeToString(seg))
	}
	fields := map[string]any{"path": segs}
	if digest != nil {
		fields["digest"] = hex.EncodeToString(digest)
	}
	req, err := structpb.NewStruct(fields)
	return req, errors.WithStack(err)
}

func parseSignerRequest(req *structpb.Struct) (common.DerivationPath, []byte, error) {
	var path common.DerivationPath
	for _, v := range req.GetFields()["path"].GetListValue().GetValues() {
		seg, err := hex.DecodeString(v.GetStringValue())
		if err != nil {
			return nil, nil, errors.Wrap(err, "invalid path segment")
		}
		path = append(path, seg)
	}
	var digest []byte
	if v, ok := req.GetFields()["digest"]; ok {
		d, err := hex.DecodeString(v.GetStringValue())
		if err != nil {
			return nil, nil, errors.Wrap(err, "invalid digest")
		}
		digest = d
	}
	return path, digest, nil
}

type thresholdSignerServer interface {
	publicKey(ctx context.Context, req *structpb.Struct) (*wrapperspb.BytesValue, error)
	sign(ctx context.Context, req *structpb.Struct) (*wrapperspb.BytesValue, error)
}

// signerService exposes a Signer with the ThresholdSigner protocol. It lets a
// LocalSigner stand in for the threshold network in local deployments.
type signerService struct {
	signer Signer
}

func (s *signerService) publicKey(ctx context.Context, req *structpb.Struct) (*wrapperspb.BytesValue, error) {
	path, _, err := parseSignerRequest(req)
	if err != nil {
		return nil, err
	}
	pub, err := s.signer.PublicKey(ctx, path)
	if err != nil {
		return nil, err
	}
	return wrapperspb.Bytes(pub.SerializeCompressed()), nil
}

func (s *signerService) sign(ctx context.Context, req *structpb.Struct) (*wrapperspb.BytesValue, error) {
	path, digest, err := parseSignerRequest(req)
	if err != nil {
		return nil, err
	}
	sig, err := s.signer.Sign(ctx, path, digest)
	if err != nil {
		return nil, err
	}
	return wrapperspb.Bytes(sig), nil
}

type methodHandler = func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error)

func unaryHandler(call func(thresholdSignerServer, context.Context, *structpb.Struct) (*wrapperspb.BytesValue, error), fullMethod string) methodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(thresholdSignerServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(thresholdSignerServer), ctx, req.(*structpb.Struct))
		})
	}
}

var thresholdSignerDesc = grpc.ServiceDesc{
	ServiceName: "multisig.ThresholdSigner",
	HandlerType: (*thresholdSignerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "PublicKey", Handler: unaryHandler(thresholdSignerServer.publicKey, methodPublicKey)},
		{MethodName: "Sign", Handler: unaryHandler(thresholdSignerServer.sign, methodSign)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "multisig/threshold_signer",
}

// RegisterSignerService serves signer on s under the ThresholdSigner name.
func RegisterSignerService(s *grpc.Server, signer Signer) {
	s.RegisterService(&thresholdSignerDesc, &signerService{signer: signer})
}
