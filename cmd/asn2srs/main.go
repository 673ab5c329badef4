// package main ...
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"paepcke.de/asn2srs"
	"paepcke.de/asn2srs/config"
)

// const shortcuts
const (
	// DEFAULTS  [convinient build time defaults]
	_APPNAME        = "asn2srs"
	_DEFAULT_CONFIG = "configs/categories.yaml"

	// EXIT CODES
	_EXIT_OK      = 0
	_EXIT_FATAL   = 1
	_EXIT_USAGE   = 2
	_EXIT_RETRY   = 75 // EX_TEMPFAIL: the scheduler may re-run within its window
	_EXIT_UNKNOWN = _EXIT_FATAL
)

// errUsage marks command line and configuration problems.
var errUsage = errors.New("usage")

// main ..
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

// execute runs the root command and maps its outcome to a process exit code.
func execute(ctx context.Context, args []string) int {
	var res *asn2srs.Result
	cmd := newRootCmd(func(r asn2srs.Result) { res = &r })
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "["+_APPNAME+"] [error] "+err.Error())
		if errors.Is(err, errUsage) {
			return _EXIT_USAGE
		}
		return _EXIT_FATAL
	}
	if res == nil {
		return _EXIT_OK // --help, --version
	}
	return exitCode(*res)
}

// exitCode ...
func exitCode(r asn2srs.Result) int {
	switch r.Status {
	case asn2srs.Success:
		return _EXIT_OK
	case asn2srs.RetryableFailure:
		return _EXIT_RETRY
	case asn2srs.FatalFailure:
		return _EXIT_FATAL
	}
	return _EXIT_UNKNOWN
}

// newRootCmd ...
func newRootCmd(done func(asn2srs.Result)) *cobra.Command {
	var (
		configPath string
		workdir    string
		noPublish  bool
		noPush     bool
		logLevel   string
	)
	cmd := &cobra.Command{
		Use:   _APPNAME,
		Short: "refresh geoip / geosite rule-sets from ASN announcements and domain lists",
		Long: `asn2srs fetches announced prefixes per AS number, builds sing-box source
rule-sets, compiles them to .srs, replaces changed artifacts and commits them.

env vars
  ASN2SRS_CONFIG, ASN2SRS_WORKDIR, ASN2SRS_COMPILER, ASN2SRS_API_URL
  ASN2SRS_PUSHGATEWAY, ASN2SRS_BRANCH, ASN2SRS_NO_PUSH, ASN2SRS_NO_PUBLISH
  ASN2SRS_LOG_LEVEL, NO_IPV4, NO_IPV6, HTTPS_PROXY

exit codes
  0 success, 75 upstream failure (retry later), 1 fatal failure, 2 usage`,
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.NoArgs(cmd, args); err != nil {
				return errors.Join(errUsage, err)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("config") {
				if env, ok := os.LookupEnv(config.ENV_CONFIG); ok && env != "" {
					configPath = env
				}
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return errors.Join(errUsage, err)
			}
			cfg.ApplyEnv(nil)
			if workdir != "" {
				cfg.Workdir = workdir
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			off := false
			if noPublish {
				cfg.Publish.Enabled = &off
			}
			if noPush {
				cfg.Publish.Push = &off
			}

			log := asn2srs.NewLogger(cfg.LogLevel)
			runner, err := asn2srs.New(cfg, log)
			if err != nil {
				return errors.Join(errUsage, err)
			}
			done(runner.Run(cmd.Context()))
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return errors.Join(errUsage, err) })
	cmd.Flags().StringVarP(&configPath, "config", "c", _DEFAULT_CONFIG, "category definition file")
	cmd.Flags().StringVarP(&workdir, "workdir", "C", "", "repository work tree holding the artifacts")
	cmd.Flags().BoolVar(&noPublish, "no-publish", false, "reconcile artifacts but do not commit")
	cmd.Flags().BoolVar(&noPush, "no-push", false, "commit locally, do not push")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "debug|info|warn|error")
	return cmd
}
