package main

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"
)

// version is reported on startup.
const version = "1.0.0"

// pollInterval is how often the verdict endpoint is asked again while a
// submission is still in the queue.
const pollInterval = 5 * time.Second

func main() {
	_ = godotenv.Load()

	cmd := &cli.Command{
		Name:  "cftool",
		Usage: "a command line tool for submitting code to Codeforces",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "dry-run", Aliases: []string{"d"}, Usage: "Performs authentication and exit"},
			&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "Bypass the sanity check for problem ID"},
			&cli.BoolFlag{Name: "no-color", Aliases: []string{"w"}, Usage: "Disables color for verdict"},
			&cli.BoolFlag{Name: "poll", Aliases: []string{"l"}, Usage: "Polls the last submission until it's judged"},
			&cli.BoolFlag{Name: "query", Aliases: []string{"q"}, Usage: "Queries the status of the last submission in the contest"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "Sets the level of verbosity"},
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "Sets a custom config file, overriding other config files"},
			&cli.StringFlag{Name: "contest", Aliases: []string{"o"}, Usage: "Sets a contest path, overriding the config files"},
			&cli.StringFlag{Name: "cookie", Aliases: []string{"k"}, Usage: "Sets a cookie cache file path, overriding the default"},
			&cli.StringFlag{Name: "dialect", Aliases: []string{"a"}, Usage: "Sets the language dialect, overriding config and filename"},
			&cli.StringFlag{Name: "identy", Aliases: []string{"i"}, Usage: "Sets the identy (handle or email), overriding the config files"},
			&cli.StringFlag{Name: "problem", Aliases: []string{"p"}, Usage: "Sets the problem ID to be submitted for"},
			&cli.StringFlag{Name: "server", Aliases: []string{"u"}, Usage: "Sets the server URL, overriding the config files"},
			&cli.StringFlag{Name: "source", Aliases: []string{"s"}, Usage: "Submits this source code file"},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		newLogger(false).err(err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	log := newLogger(cmd.Bool("verbose"))
	log.infof("this is cftool %s", version)

	if cmd.Bool("no-color") {
		color.NoColor = true
	}

	act, problem, err := resolveAction(invocation{
		dryRun:  cmd.Bool("dry-run"),
		query:   cmd.Bool("query"),
		poll:    cmd.Bool("poll"),
		force:   cmd.Bool("force"),
		problem: cmd.String("problem"),
		source:  cmd.String("source"),
	}, log)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd.String("config"), log)
	if err != nil {
		return err
	}
	applyFlagOverrides(&cfg, cmd)
	if cfg.ServerURL != defaultServerURL {
		log.warn("overriding server_url is not recommended for normal use!")
	}

	s, err := newSession(cfg, log)
	if err != nil {
		return err
	}

	if err := ensureAuthenticated(ctx, s, log); err != nil {
		return err
	}
	flushCookies(s, log)

	switch act {
	case actionQuery:
		return reportVerdict(ctx, s, cmd.Bool("poll"), pollInterval, color.Output, log)
	case actionSubmit:
		if err := s.submit(ctx, problem, cmd.String("source"), cmd.String("dialect")); err != nil {
			return fmt.Errorf("submit failed: %w", err)
		}
		log.infof("problem %s submitted", problem)
		if cmd.Bool("poll") {
			return reportVerdict(ctx, s, true, pollInterval, color.Output, log)
		}
	}
	return nil
}

// applyFlagOverrides folds the command line into the merged config as
// the final layer.
func applyFlagOverrides(cfg *appConfig, cmd *cli.Command) {
	if s := cmd.String("server"); s != "" {
		cfg.ServerURL = s
	}
	if s := cmd.String("identy"); s != "" {
		cfg.Identy = s
	}
	if s := cmd.String("contest"); s != "" {
		cfg.ContestPath = s
	}
	if s := cmd.String("cookie"); s != "" {
		cfg.CookieFile = s
	}
}

// action is what a single invocation has been asked to do.
type action int

const (
	actionNone action = iota
	actionDry
	actionQuery
	actionSubmit
)

// invocation captures the command line flags that pick the action.
type invocation struct {
	dryRun  bool
	query   bool
	poll    bool
	force   bool
	problem string
	source  string
}

// problemIDPattern is the sanity check a problem ID must pass unless
// --force is given.
var problemIDPattern = regexp.MustCompile(`^[A-Z]([1-9][0-9]*)?$`)

var errActionConflict = errors.New("can only use one of --dry-run, --query, and --problem")

// resolveAction decides between dry-run, query and submit, guessing the
// problem ID from the source file name when it is not given explicitly.
func resolveAction(inv invocation, log *logger) (action, string, error) {
	act := actionNone
	problem := ""

	if inv.problem != "" {
		p, err := checkProblemID(inv.problem, inv.force)
		if err != nil {
			return actionNone, "", err
		}
		act, problem = actionSubmit, p
	}

	if inv.dryRun {
		if act != actionNone {
			return actionNone, "", errActionConflict
		}
		act = actionDry
	}

	if inv.query {
		if act != actionNone {
			return actionNone, "", errActionConflict
		}
		act = actionQuery
	}

	if inv.source != "" {
		switch act {
		case actionDry, actionQuery:
			return actionNone, "", errors.New("specifying source code file does not make sense without submitting it")
		case actionNone:
			stem := strings.TrimSuffix(filepath.Base(inv.source), filepath.Ext(inv.source))
			if stem == "" {
				return actionNone, "", errors.New("can't guess problem ID from the filename, please specify it explicitly")
			}
			p, err := checkProblemID(stem, inv.force)
			if err != nil {
				return actionNone, "", err
			}
			act, problem = actionSubmit, p
			log.infof("guessed problem ID to be %s", problem)
		}
	}

	if inv.poll && act == actionNone {
		act = actionQuery
	}

	switch act {
	case actionNone:
		return actionNone, "", errors.New("must use one of --dry-run, --query, and --problem")
	case actionSubmit:
		if inv.source == "" {
			return actionNone, "", errors.New("attempt to submit, but no source code specified")
		}
	}
	return act, problem, nil
}

// checkProblemID uppercases the ID and rejects anything that does not
// look like a problem letter with an optional trailing number.
func checkProblemID(s string, force bool) (string, error) {
	p := strings.ToUpper(s)
	if !force && !problemIDPattern.MatchString(p) {
		return "", fmt.Errorf("%s does not look like a problem ID", p)
	}
	return p, nil
}

// ensureAuthenticated probes whether the cookies still carry a live
// session and performs the login exchange when they do not. The login
// response is not trusted on its own; a second probe settles it.
func ensureAuthenticated(ctx context.Context, s *session, log *logger) error {
	loggedOn, err := s.probeLoginStatus(ctx)
	if err != nil {
		return err
	}
	if loggedOn {
		log.debugf("already logged on as %s", s.identy)
		return nil
	}

	log.info("authentication required")
	password, err := readPassword(s.identy)
	if err != nil {
		return err
	}
	if err := s.login(ctx, password); err != nil {
		return fmt.Errorf("failed to login: %w", err)
	}

	loggedOn, err = s.probeLoginStatus(ctx)
	if err != nil {
		return err
	}
	if !loggedOn {
		return errors.New("authentication failed, maybe identy or password is wrong")
	}
	return nil
}

// readPassword prefers CFTOOL_PASSWORD, which godotenv may have loaded
// from a .env file, over an interactive prompt.
func readPassword(identy string) (string, error) {
	if p := os.Getenv("CFTOOL_PASSWORD"); p != "" {
		return p, nil
	}
	fmt.Fprintf(os.Stderr, "[cftool] password for %s: ", identy)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed reading password: %w", err)
	}
	return string(b), nil
}

// flushCookies saves the jar once per run, right after authentication
// settles. Failure to persist is not fatal.
func flushCookies(s *session, log *logger) {
	path, err := s.saveCookies()
	switch {
	case err != nil:
		log.errf("cannot save cookie: %v", err)
	case path == "":
		log.info("cookie not saved")
	default:
		log.infof("cookie saved to %s", path)
	}
}

// reportVerdict prints the newest submission's verdict, and when poll is
// set keeps asking until the judgement settles. The cadence is measured
// from the start of each fetch so a slow response does not stretch the
// interval.
func reportVerdict(ctx context.Context, s *session, poll bool, interval time.Duration, out io.Writer, log *logger) error {
	id, err := s.lastSubmission(ctx)
	if err != nil {
		return fmt.Errorf("cannot get ID of last submission: %w", err)
	}
	log.infof("submission id = %s:", id)

	for {
		next := time.Now().Add(interval)

		v, err := s.getVerdict(ctx, id)
		if err != nil {
			return fmt.Errorf("cannot get verdict: %w", err)
		}
		v.render(out)

		if v.isCompilationError() {
			printJudgementProtocol(ctx, s, id, out, log)
		}
		if !v.isWaiting() || !poll {
			return nil
		}
		time.Sleep(time.Until(next))
	}
}

// printJudgementProtocol best-effort prints the compile log under a
// delimiter line. The log arrives HTML-escaped.
func printJudgementProtocol(ctx context.Context, s *session, id string, out io.Writer, log *logger) {
	text, err := s.judgementProtocol(ctx, id)
	if err != nil {
		log.errf("can not get compilation error info: %v", err)
		text = ""
	}
	fmt.Fprintln(out, strings.Repeat("=", 35))
	fmt.Fprint(out, html.UnescapeString(text))
}
