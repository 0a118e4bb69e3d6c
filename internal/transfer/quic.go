package transfer

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"time"

	"lanbeam/internal/apperr"

	"github.com/quic-go/quic-go"
)

const transferALPN = "lanbeam-transfer"

func quicConfig() *quic.Config {
	return &quic.Config{
		KeepAlivePeriod: 10 * time.Second,
		MaxIdleTimeout:  30 * time.Second,
	}
}

type quicServer struct {
	ln *quic.Listener
}

func (q *quicServer) close() {
	_ = q.ln.Close()
}

func (l *Listener) startQUIC() error {
	tlsConf, err := generateTLSConfig()
	if err != nil {
		return apperr.New(apperr.Bind, "transfer.Start", "generate TLS config", err)
	}
	ln, err := quic.ListenAddr(fmt.Sprintf(":%d", l.opts.Port), tlsConf, quicConfig())
	if err != nil {
		return apperr.New(apperr.Bind, "transfer.Start", fmt.Sprintf("bind quic port %d", l.opts.Port), err)
	}
	l.quic = &quicServer{ln: ln}
	l.port = ln.Addr().(*net.UDPAddr).Port
	l.log.Info("listening for transfers", "addr", ln.Addr().String(), "transport", "quic")

	l.wg.Add(1)
	go l.acceptQUICLoop()
	return nil
}

// acceptQUICLoop accepts QUIC connections and runs one session per
// incoming stream, so the stream protocol matches the TCP byte stream
// exactly.
func (l *Listener) acceptQUICLoop() {
	defer l.wg.Done()
	for {
		qc, err := l.quic.ln.Accept(l.ctx)
		if err != nil {
			if l.ctx.Err() != nil {
				return
			}
			l.log.Warn("quic accept failed", "err", err)
			return
		}
		l.wg.Add(1)
		go func(qc quic.Connection) {
			defer l.wg.Done()
			defer qc.CloseWithError(0, "connection closed")
			for {
				stream, err := qc.AcceptStream(l.ctx)
				if err != nil {
					return
				}
				l.startSession(streamConn{Stream: stream}, qc.RemoteAddr().String())
			}
		}(qc)
	}
}

// streamConn adapts a QUIC stream to the session connection interface.
// Close cancels the read side too, so a forced shutdown unblocks an
// in-flight read the same way closing a TCP socket does.
type streamConn struct {
	quic.Stream
}

func (c streamConn) Close() error {
	c.Stream.CancelRead(0)
	return c.Stream.Close()
}

// generateTLSConfig builds an in-memory self-signed certificate. Transfers
// run between trusted hosts on a local network; the certificate exists
// because QUIC requires one, not as an identity.
func generateTLSConfig() (*tls.Config, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			Organization: []string{"lanbeam"},
		},
		NotBefore: time.Now(),
		NotAfter:  time.Now().Add(time.Hour * 24 * 180),
		KeyUsage:  x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{
			x509.ExtKeyUsageServerAuth,
			x509.ExtKeyUsageClientAuth,
		},
		BasicConstraintsValid: true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	tlsCert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		Certificates: []tls.Certificate{tlsCert},
		NextProtos:   []string{transferALPN},
	}, nil
}
