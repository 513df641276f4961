// sqrldemo wires the scheduler, a client session, and an in-process server
// loopback together: it generates an identity, saves it, then drives a full
// query -> ident exchange against a tiny in-memory site, all without ever
// touching a real socket.
package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pion/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sqrl-go/sqrl/pkg/action"
	"github.com/sqrl-go/sqrl/pkg/client"
	"github.com/sqrl-go/sqrl/pkg/crypto"
	"github.com/sqrl-go/sqrl/pkg/encoding"
	"github.com/sqrl-go/sqrl/pkg/scheduler"
	"github.com/sqrl-go/sqrl/pkg/server"
	"github.com/sqrl-go/sqrl/pkg/uri"
	"github.com/sqrl-go/sqrl/pkg/useridentity"
)

var (
	password       string
	timeoutMinutes int
	passcode       string
	linkTemplate   string
	friendlyName   string
)

var rootCmd = &cobra.Command{
	Use:          "sqrldemo",
	Short:        "Generate an identity and run it through a loopback SQRL exchange",
	SilenceUsage: true,
	RunE:         runDemo,
}

func init() {
	rootCmd.Flags().StringVar(&password, "password", "correct horse battery staple", "identity password")
	rootCmd.Flags().IntVar(&timeoutMinutes, "timeout-minutes", 1, "hint-lock autolock timer, in minutes")
	rootCmd.Flags().StringVar(&passcode, "passcode", "sqrldemo", "site passcode seeding the nut key and link MAC key")
	rootCmd.Flags().StringVar(&linkTemplate, "link-template",
		"sqrl://demo.sqrl-go.local/sqrl?sfn=_LIBSQRL_SFN_&nut=_LIBSQRL_NUT_", "challenge link template")
	rootCmd.Flags().StringVar(&friendlyName, "friendly-name", "sqrldemo", "site friendly name (sfn)")
	viper.BindPFlags(rootCmd.Flags())
	viper.BindPFlag("link_template", rootCmd.Flags().Lookup("link-template"))
	viper.BindPFlag("friendly_name", rootCmd.Flags().Lookup("friendly-name"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "sqrldemo:", err)
		os.Exit(1)
	}
}

// site is the server side of the loopback: a nut engine, a link builder
// sharing the nut engine's passcode-derived secret, and the set of identity
// public keys it has seen via cmd=ident.
type site struct {
	nuts   *server.NutEngine
	links  *server.LinkBuilder
	macKey []byte
	known  map[string]bool
}

func newSite(cfg server.Config) (*site, error) {
	engine, err := server.NewNutEngine([]byte(cfg.Passcode), cfg.NutLifetime, nil)
	if err != nil {
		return nil, err
	}
	macKey := server.DeriveMACKey(cfg.Passcode)
	links := server.NewLinkBuilder(cfg.LinkTemplate, cfg.FriendlyName, macKey, nil)
	return &site{nuts: engine, links: links, macKey: macKey, known: map[string]bool{}}, nil
}

// issueChallenge builds the first challenge link, MAC included.
func (s *site) issueChallenge() (string, error) {
	nut, err := s.nuts.Issue(server.Nut{Timestamp: uint64(time.Now().UnixMicro())})
	if err != nil {
		return "", err
	}
	return s.links.Build(nut), nil
}

// handle parses one client request (its nut-bearing URL plus its
// client=/server=/ids= body), verifies it, and returns the server's reply
// body in the base64url CRLF form client.Session expects. The very first
// request carries a link MAC (from issueChallenge); later ones carry only
// the bare nut the previous reply's Qry handed back, so the MAC check only
// applies when one is present.
func (s *site) handle(requestURL string, body []byte) ([]byte, error) {
	if strings.Contains(requestURL, "&mac=") {
		// The MAC covers the challenge link as issued (sqrl:// scheme), while
		// the client requests its https:// form, so restore the scheme first.
		if !s.links.Verify("sqrl" + strings.TrimPrefix(requestURL, "https")) {
			return nil, fmt.Errorf("server: link mac verification failed")
		}
	}

	parsed, err := url.Parse(requestURL)
	if err != nil {
		return nil, err
	}
	nutParam := parsed.Query().Get("nut")
	nut, err := encoding.Base64URLDecode(nutParam)
	if err != nil {
		return nil, err
	}
	if _, err := s.nuts.Verify(nut); err != nil {
		return nil, err
	}

	form, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, err
	}
	clientB64 := form.Get("client")
	serverB64 := form.Get("server")
	idsB64 := form.Get("ids")
	clientBytes, err := encoding.Base64URLDecode(clientB64)
	if err != nil {
		return nil, err
	}
	serverBytes, err := encoding.Base64URLDecode(serverB64)
	if err != nil {
		return nil, err
	}
	ids, err := encoding.Base64URLDecode(idsB64)
	if err != nil {
		return nil, err
	}

	fields := map[string]string{}
	for _, line := range strings.Split(string(clientBytes), "\r\n") {
		k, v, ok := strings.Cut(line, "=")
		if ok {
			fields[k] = v
		}
	}
	idk, err := encoding.Base64URLDecode(fields["idk"])
	if err != nil {
		return nil, err
	}
	if !crypto.Ed25519Verify(idk, append(clientBytes, serverBytes...), ids) {
		return nil, fmt.Errorf("server: signature verification failed")
	}

	var tif server.TIF
	if s.known[fields["idk"]] {
		tif |= server.TIFIDMatch
	}
	if fields["cmd"] == "ident" {
		s.known[fields["idk"]] = true
		tif |= server.TIFIDMatch
	}

	nextNut, err := s.nuts.Issue(server.Nut{Timestamp: uint64(time.Now().UnixMicro())})
	if err != nil {
		return nil, err
	}
	reply := &server.ReplyBuilder{
		Qry:    "/sqrl?nut=" + encoding.Base64URLEncode(nextNut),
		TIF:    tif,
		Nut:    nextNut,
		MACKey: s.macKey,
	}
	return []byte(reply.Build()), nil
}

func runDemo(cmd *cobra.Command, args []string) error {
	log := logging.NewDefaultLoggerFactory().NewLogger("sqrldemo")
	sched := scheduler.New(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched.RunThreaded(ctx)

	user := useridentity.New()
	sched.RegisterUser(user)
	defer user.Release()

	if err := runAction(sched, action.NewGenerate(user, action.Callbacks{
		RequestCredential: fixedCredential(password),
	}, log)); err != nil {
		return fmt.Errorf("generate: %w", err)
	}

	save := action.NewSave(user, 1, action.Callbacks{
		RequestCredential: fixedCredential(password),
	}, log)
	if err := runAction(sched, save); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	fmt.Printf("identity saved, %d bytes\n", len(save.Bytes()))

	lockTimer := time.AfterFunc(time.Duration(timeoutMinutes)*time.Minute, func() {
		sched.PostCallback(func() {
			sched.Submit(action.NewLock(user, []byte(password[:min(4, len(password))]), action.Callbacks{}, log))
		})
	})
	defer lockTimer.Stop()

	cfg, err := server.LoadConfig(viper.GetViper())
	if err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	site, err := newSite(cfg)
	if err != nil {
		return err
	}
	challenge, err := site.issueChallenge()
	if err != nil {
		return err
	}
	target, err := uri.Parse(challenge)
	if err != nil {
		return err
	}

	session := client.NewSession(target, user, client.KindIdent, []string{client.OptCPS}, log)
	reqURL, body, err := session.Start()
	if err != nil {
		return fmt.Errorf("session start: %w", err)
	}
	for {
		respBody, err := site.handle(reqURL, body)
		if err != nil {
			return fmt.Errorf("site: %w", err)
		}
		nextURL, nextBody, done, err := session.HandleReply(respBody)
		if err != nil {
			return fmt.Errorf("session: %w", err)
		}
		if done {
			break
		}
		reqURL, body = nextURL, nextBody
	}

	fmt.Printf("session finished: state=%s tif=%s\n", session.State(), session.TIF())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-time.After(100 * time.Millisecond):
	}
	return nil
}

// runAction submits a to sched and blocks until the scheduler reports it
// complete, via OnActionComplete rather than polling Status from outside
// the scheduler's goroutine.
func runAction(sched *scheduler.Scheduler, a action.Action) error {
	done := make(chan struct{})
	sched.OnActionComplete = func(completed action.Action) {
		if completed.Handle() == a.Handle() {
			close(done)
		}
	}
	sched.Submit(a)
	<-done
	if a.Status() != action.StatusSuccess {
		return fmt.Errorf("action %s ended with status %s", a.Kind(), a.Status())
	}
	return nil
}

func fixedCredential(password string) useridentity.CredentialCallback {
	return func(kind useridentity.CredentialKind) ([]byte, bool) {
		switch kind {
		case useridentity.CredentialPassword, useridentity.CredentialNewPassword:
			return []byte(password), true
		default:
			return nil, false
		}
	}
}
