package app

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cafe/pkg/cart"
	"cafe/pkg/catalog"
	"cafe/pkg/checkout"
	"cafe/pkg/config"
	"cafe/pkg/gallery"
	"cafe/pkg/httpapi"
	"cafe/pkg/orders"
	"cafe/pkg/remote"
	"cafe/pkg/session"
	"cafe/pkg/storage/tokenstore"
	"cafe/pkg/version"
)

// Options are command-line overrides applied on top of the config file and the environment.
type Options struct {
	ConfigPath string
	Addr       string
	LogLevel   string
}

// LoadConfig reads the optional config file, applies PORT and CAFE_API_URL, then the flags.
func LoadConfig(opts Options, getenv func(string) string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if opts.ConfigPath != "" {
		loaded, err := config.LoadFromFile(opts.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfg.ApplyEnv(getenv)
	cfg.Merge(&config.Config{
		Server: config.ServerConfig{Addr: opts.Addr},
		Log:    config.LogConfig{Level: opts.LogLevel},
	})
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// NewLogger builds the process logger from the log section.
func NewLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Engine holds every state container and the HTTP surface built on them.
type Engine struct {
	Cart     *cart.Store
	Checkout *checkout.Flow
	Orders   *orders.Manager
	Catalog  *catalog.Store
	Session  *session.Session
	Gallery  *gallery.Store
	API      *httpapi.Server

	closers []func() error
}

// Build composes the token store, the remote client and the stores. A successful checkout clears
// and closes the cart.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	tokens, closeTokens, err := tokenstore.Open(cfg.TokenStore.Driver, cfg.TokenStore.Path)
	if err != nil {
		return nil, fmt.Errorf("unable to open token store: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	client := remote.New(cfg.API.BaseURL,
		remote.WithTimeout(cfg.API.Timeout),
		remote.WithTokenSource(tokens),
		remote.WithRateLimit(cfg.API.RateLimit, cfg.API.Burst),
		remote.WithMetrics(remote.NewMetrics(registry)),
		remote.WithLogger(logger))

	sess, err := session.New(ctx, client, tokens, logger)
	if err != nil {
		_ = closeTokens()
		return nil, fmt.Errorf("unable to restore session: %w", err)
	}

	e := &Engine{
		Cart:    cart.NewStore(logger),
		Orders:  orders.NewManager(client, orders.WithLogger(logger), orders.WithStatusRegression(cfg.Orders.AllowStatusRegression)),
		Catalog: catalog.NewStore(client, logger),
		Session: sess,
		Gallery: gallery.NewStore(client, logger),
	}
	e.Checkout = checkout.NewFlow(client,
		checkout.WithLogger(logger),
		checkout.WithSubmittedHook(func(ctx context.Context, _ checkout.Confirmation) error {
			if _, err := e.Cart.Clear(ctx); err != nil {
				return err
			}
			_, err := e.Cart.Close(ctx)
			return err
		}))
	e.closers = append(e.closers, closeTokens)

	e.API, err = httpapi.New(httpapi.Deps{
		Cart:     e.Cart,
		Checkout: e.Checkout,
		Orders:   e.Orders,
		Catalog:  e.Catalog,
		Session:  e.Session,
		Gallery:  e.Gallery,
		Metrics:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		Logger:   logger,
	})
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("unable to build http server: %w", err)
	}
	return e, nil
}

// Close stops every store and releases the token store.
func (e *Engine) Close() error {
	e.Checkout.Shutdown()
	e.Cart.Shutdown()
	e.Orders.Shutdown()
	e.Catalog.Shutdown()
	e.Session.Shutdown()
	e.Gallery.Shutdown()
	var errs []error
	for _, c := range e.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// Run serves the engine until ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if logger == nil {
		logger = NewLogger(cfg.Log, os.Stdout)
	}
	logger.Info("starting cafe", slog.String("version", version.Version()), slog.String("api", cfg.API.BaseURL))

	engine, err := Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			logger.Warn("engine shutdown incomplete", slog.String("error", err.Error()))
		}
	}()

	if cfg.Server.Domain != "" {
		logger.Info("starting HTTPS servers", slog.String("domain", cfg.Server.Domain))
		return runDomainServers(ctx, cfg.Server, engine.API, logger)
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      engine.API.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	go shutdownOnDone(ctx, logger, server)

	logger.Info("cafe service is running", slog.String("addr", cfg.Server.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server stopped unexpectedly: %w", err)
	}
	return nil
}

func shutdownOnDone(ctx context.Context, logger *slog.Logger, servers ...*http.Server) {
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, s := range servers {
		if err := s.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown failed", slog.String("addr", s.Addr), slog.String("error", err.Error()))
		}
	}
}

// runDomainServers launches both HTTP redirect and HTTPS handlers when a domain is configured.
func runDomainServers(ctx context.Context, cfg config.ServerConfig, srv *httpapi.Server, logger *slog.Logger) error {
	domain := cfg.Domain
	tlsCert, err := generateCertificate(domain, time.Now())
	if err != nil {
		return fmt.Errorf("unable to generate certificate: %w", err)
	}

	httpsServer := &http.Server{
		Addr:         ":443",
		Handler:      srv.Handler(),
		TLSConfig:    &tls.Config{Certificates: []tls.Certificate{tlsCert}},
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	httpRedirect := &http.Server{
		Addr: ":80",
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			target := "https://" + domain + r.URL.RequestURI()
			http.Redirect(w, r, target, http.StatusPermanentRedirect)
		}),
	}

	go func() {
		logger.Info("HTTP redirect server listening", slog.String("addr", httpRedirect.Addr))
		if err := httpRedirect.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("redirect server stopped", slog.String("error", err.Error()))
		}
	}()
	go shutdownOnDone(ctx, logger, httpRedirect, httpsServer)

	logger.Info("HTTPS server is starting with an ephemeral certificate", slog.String("domain", domain))
	if err := httpsServer.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("TLS server stopped unexpectedly: %w", err)
	}
	return nil
}

// generateCertificate produces a self-signed certificate for domain valid for 90 days from now.
// The certificate is served from memory.
func generateCertificate(domain string, now time.Time) (tls.Certificate, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, err
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: domain, Organization: []string{"cafe"}},
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     now.Add(90 * 24 * time.Hour),
		DNSNames:     []string{domain},
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("sign certificate for %s: %w", domain, err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv, Leaf: leaf}, nil
}
