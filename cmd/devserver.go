package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/chatlink/client/internal/devserver"
	"github.com/chatlink/client/internal/logging"
	"github.com/chatlink/client/internal/mdns"
	chattls "github.com/chatlink/client/internal/tls"
)

func runDevServer(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("devserver", flag.ContinueOnError)
	fs.SetOutput(stderr)

	addr := fs.String("addr", "127.0.0.1:8090", "Websocket listen address")
	apiAddr := fs.String("api-addr", "127.0.0.1:8080", "HTTP API listen address (empty to serve the API on --addr)")
	advertise := fs.Bool("advertise", false, "Advertise the server over mDNS (LAN-visible)")
	useTLS := fs.Bool("tls", false, "Serve wss:// and https:// with a self-signed certificate")
	certPath := fs.String("cert", "", "TLS certificate path (default: ~/.chatlink/certs/devserver.crt)")
	keyPath := fs.String("key", "", "TLS key path (default: ~/.chatlink/certs/devserver.key)")
	loginDelay := fs.Duration("login-delay", devserver.DefaultLoginDelay, "Pause before each simulated QR login step")
	logLevel := fs.String("log-level", "info", "Log level: debug, info, warn, error")

	fs.Usage = func() {
		fmt.Fprintf(stderr, `Usage: chatlink devserver [options]

Run a scripted chat server for trying the client. Users and tokens live in
memory. QR logins complete by themselves; password logins accept any
non-empty password; chat messages are echoed to every signed-in client.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	logger := logging.Init(logging.Options{Level: *logLevel, Output: stderr})
	srv := devserver.New(devserver.Options{LoginDelay: *loginDelay, Logger: logger})
	defer srv.Close()

	wsListener, err := net.Listen("tcp", *addr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to listen on %s: %v\n", *addr, err)
		return 1
	}
	listeners := []net.Listener{wsListener}
	apiListener := wsListener
	if *apiAddr != "" && *apiAddr != *addr {
		apiListener, err = net.Listen("tcp", *apiAddr)
		if err != nil {
			wsListener.Close()
			fmt.Fprintf(stderr, "Error: failed to listen on %s: %v\n", *apiAddr, err)
			return 1
		}
		listeners = append(listeners, apiListener)
	}

	wsScheme, apiScheme := "ws", "http"
	var cert *chattls.CertInfo
	if *useTLS {
		cert, err = chattls.EnsureCertificate(chattls.CertConfig{
			CertPath: *certPath,
			KeyPath:  *keyPath,
			Hosts:    certHosts(*addr, *apiAddr),
		})
		if err != nil {
			closeAll(listeners)
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		serverCfg, err := chattls.ServerConfig(cert.CertPath, cert.KeyPath)
		if err != nil {
			closeAll(listeners)
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		for i, ln := range listeners {
			listeners[i] = tls.NewListener(ln, serverCfg)
		}
		wsScheme, apiScheme = "wss", "https"
	}

	httpServer := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, len(listeners))
	for _, ln := range listeners {
		go func(ln net.Listener) { errc <- httpServer.Serve(ln) }(ln)
	}

	wsPort := listenerPort(wsListener)
	apiPort := listenerPort(apiListener)
	if *advertise {
		adv := mdns.NewAdvertiser(mdns.Config{Port: wsPort, Path: "/", APIPort: apiPort, TLS: *useTLS})
		if err := adv.Start(); err != nil {
			fmt.Fprintf(stderr, "Warning: mDNS advertisement failed: %v\n", err)
		} else {
			defer adv.Stop()
			fmt.Fprintln(stdout, "Advertising over mDNS as "+mdns.ServiceType)
		}
	}

	fmt.Fprintln(stdout, "")
	fmt.Fprintln(stdout, "===========================================")
	fmt.Fprintln(stdout, "  chatlink dev server")
	fmt.Fprintln(stdout, "===========================================")
	fmt.Fprintf(stdout, "  Websocket: %s://%s/\n", wsScheme, wsListener.Addr())
	fmt.Fprintf(stdout, "  API:       %s://%s\n", apiScheme, apiListener.Addr())
	if cert != nil {
		fmt.Fprintf(stdout, "  Cert:      %s\n", cert.CertPath)
		fmt.Fprintf(stdout, "  SHA-256:   %s\n", cert.Fingerprint)
	}
	fmt.Fprintln(stdout, "===========================================")
	if cert != nil {
		fmt.Fprintf(stdout, "  Connect with --ca %s\n", cert.CertPath)
	}
	fmt.Fprintln(stdout, "")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}

	srv.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	httpServer.Shutdown(shutdownCtx)
	return 0
}

func closeAll(listeners []net.Listener) {
	for _, ln := range listeners {
		ln.Close()
	}
}

// certHosts lists the names the dev certificate must cover: loopback plus
// any specific listen host.
func certHosts(addrs ...string) []string {
	hosts := []string{"localhost", "127.0.0.1", "::1"}
	seen := map[string]bool{"localhost": true, "127.0.0.1": true, "::1": true}
	for _, addr := range addrs {
		host, _, err := net.SplitHostPort(addr)
		if err != nil || host == "" || seen[host] {
			continue
		}
		if ip := net.ParseIP(host); ip != nil && ip.IsUnspecified() {
			continue
		}
		seen[host] = true
		hosts = append(hosts, host)
	}
	return hosts
}

func listenerPort(ln net.Listener) int {
	_, port, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		return 0
	}
	n, _ := strconv.Atoi(port)
	return n
}
