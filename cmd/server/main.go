// Command server runs the local multi-account inference reverse
// proxy. Flag parsing, godotenv loading, and the base-logger init()
// hook follow the teacher's cmd/server/main.go shape, scoped down to
// this repository's single-upstream-backend core.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/router-for-me/acctproxy/internal/api"
	"github.com/router-for-me/acctproxy/internal/clockid"
	"github.com/router-for-me/acctproxy/internal/config"
	"github.com/router-for-me/acctproxy/internal/dispatcher"
	"github.com/router-for-me/acctproxy/internal/fingerprint"
	"github.com/router-for-me/acctproxy/internal/logging"
	"github.com/router-for-me/acctproxy/internal/model"
	"github.com/router-for-me/acctproxy/internal/netutil"
	"github.com/router-for-me/acctproxy/internal/oauthflow"
	"github.com/router-for-me/acctproxy/internal/refresher"
	"github.com/router-for-me/acctproxy/internal/selector"
	"github.com/router-for-me/acctproxy/internal/store"
)

func init() {
	logging.SetupBaseLogger()
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to config.yaml")
	port := flag.Int("port", 0, "override the configured listen port")
	importPath := flag.String("import", "", "import an externally obtained OAuth token set from a JSON file")
	loginFlag := flag.Bool("login", false, "run the local OAuth authorization-code+PKCE login helper")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if err := logging.ConfigureOutput(cfg.LoggingToFile, cfg.StorageDir); err != nil {
		log.WithError(err).Warn("failed to configure log output, continuing on stdout")
	}

	st := store.New(cfg.StorageDir)
	clock := clockid.SystemClock{}

	provider := &oauthflow.Provider{
		AuthURL:      cfg.OAuth.AuthURL,
		TokenURL:     cfg.OAuth.TokenURL,
		ClientID:     cfg.OAuth.ClientID,
		ClientSecret: cfg.OAuth.ClientSecret,
		RedirectURI:  cfg.OAuth.RedirectURI,
		HTTPClient:   netutil.ApplyProxy(&http.Client{}, cfg.ProxyURL),
	}

	if *importPath != "" {
		if err := importAccount(st, clock, *importPath); err != nil {
			log.WithError(err).Fatal("import failed")
		}
		return
	}
	if *loginFlag {
		if err := runLoginHelper(provider); err != nil {
			log.WithError(err).Fatal("login failed")
		}
		return
	}

	sel := selector.New(st, clock)
	ref := refresher.New(st, provider, clock)

	if stop, err := st.WatchForExternalEdits(); err != nil {
		log.WithError(err).Debug("accounts file watch not started")
	} else {
		defer stop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ref.RunSweepLoop(ctx)

	disp := &dispatcher.Dispatcher{
		Store:           st,
		Selector:        sel,
		Refresher:       ref,
		Clock:           clock,
		Upstream:        upstreamClient(cfg),
		UpstreamBaseURL: cfg.UpstreamBaseURL,
	}

	srv := &api.Server{
		Store:      st,
		Selector:   sel,
		Refresher:  ref,
		Dispatcher: disp,
		Provider:   provider,
		Clock:      clock,
	}

	router := srv.NewRouter()
	addr := fmt.Sprintf(":%d", cfg.Port)
	log.WithField("addr", addr).Info("listening")

	httpServer := &http.Server{Addr: addr, Handler: router}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down")
	cancel()
	httpServer.Shutdown(context.Background())
}

// upstreamClient builds the HTTP client the dispatcher sends upstream
// requests through. When cfg.TLSFingerprint is set, requests are sent
// over a uTLS Firefox-fingerprinted HTTP/2 transport instead of Go's
// own TLS stack, matching the teacher's optional fingerprint-spoofing
// transport for its Cloudflare-fronted upstream.
func upstreamClient(cfg *config.Config) *http.Client {
	if cfg.TLSFingerprint {
		return fingerprint.NewClient(netutil.DialerForProxy(cfg.ProxyURL))
	}
	return netutil.ApplyProxy(&http.Client{}, cfg.ProxyURL)
}

// importAccount reads an externally obtained OAuth token set from a
// JSON file and manufactures an Account from it, mirroring the
// callback path's token-set-to-Account construction.
func importAccount(st *store.Store, clock clockid.Clock, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var ts oauthflow.TokenSet
	if err := json.Unmarshal(data, &ts); err != nil {
		return err
	}
	now := clock.Now()
	a := &model.Account{
		ID:           clockid.NewID(),
		Kind:         model.KindOAuth,
		CreatedAt:    now,
		AccessToken:  ts.AccessToken,
		RefreshToken: ts.RefreshToken,
		IDToken:      ts.IDToken,
	}
	if ts.ExpiresIn > 0 {
		exp := oauthflow.ExpiresAt(now, ts.ExpiresIn)
		a.Expire = &exp
	}
	if ts.IDToken != "" {
		if claims, err := oauthflow.ParseIDToken(ts.IDToken); err == nil {
			a.Email = claims.Email
			a.AccountID = claims.AccountID()
		}
	}
	if err := st.Append(a); err != nil {
		return err
	}
	log.WithField("account_id", a.ID).Info("imported account")
	return nil
}

// runLoginHelper prints the authorize URL for the operator to open in
// a browser and waits for them to paste back the resulting code. The
// embedded browser launch and HTML redirect pages are external
// collaborators per spec.md §1; this is the minimal CLI-side
// counterpart that still exercises the same oauthflow package the
// HTTP /oauth/start and /auth/callback routes use.
func runLoginHelper(provider *oauthflow.Provider) error {
	pkce, err := oauthflow.GeneratePKCECodes()
	if err != nil {
		return err
	}
	state := clockid.NewID()
	fmt.Println("Open this URL to authorize:")
	fmt.Println(provider.AuthorizeURL(state, pkce))
	fmt.Print("Paste the returned code: ")

	var code string
	if _, err := fmt.Scanln(&code); err != nil {
		return err
	}

	ts, _, err := provider.ExchangeCode(context.Background(), code, pkce)
	if err != nil {
		return err
	}
	fmt.Printf("access_token acquired, expires_in=%ds\n", ts.ExpiresIn)
	return nil
}
