// Licensed under the Apache License, Version 2.0 (the "License"); you may not
// use this file except in compliance with the License. You may obtain a copy of
// the License at
//
//  http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
// License for the specific language governing permissions and limitations under
// the License.

// Package cmd implements the recliner command line.
package cmd

import (
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/cobra"

	"github.com/go-kivik/recliner"
	"github.com/go-kivik/recliner/cmd/recliner/config"
	"github.com/go-kivik/recliner/cmd/recliner/errors"
	"github.com/go-kivik/recliner/cmd/recliner/input"
	"github.com/go-kivik/recliner/cmd/recliner/output"
	"github.com/go-kivik/recliner/cmd/recliner/output/yaml"
	"github.com/go-kivik/recliner/log"
)

// Version is the version of the recliner command.
const Version = "0.1.0"

type root struct {
	confFile string
	debug    bool
	log      log.Logger
	conf     *config.Config
	cmd      *cobra.Command
	fmt      *output.Formatter
	stdin    io.Reader

	requestTimeout       string
	parsedRequestTimeout time.Duration
	connectTimeout       string
	parsedConnectTimeout time.Duration
	retryDelay           string
	parsedRetryDelay     time.Duration
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute(ctx context.Context) {
	root := rootCmd(log.New(), os.Stdin, os.Stdout)
	os.Exit(root.execute(ctx))
}

func (r *root) execute(ctx context.Context) int {
	err := r.cmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	return extractExitCode(err)
}

func extractExitCode(err error) int {
	if code := errors.InspectErrorCode(err); code != 0 {
		return code
	}

	// Any unhandled errors are assumed to be from Cobra, so return a "failed
	// to initialize" error
	return errors.ErrUsage
}

func formatter(stdout io.Writer) *output.Formatter {
	f := output.New(stdout)
	f.Register("yaml", yaml.New())
	return f
}

func rootCmd(lg log.Logger, stdin io.Reader, stdout io.Writer) *root {
	r := &root{
		log:   lg,
		fmt:   formatter(stdout),
		conf:  config.New(),
		stdin: stdin,
	}
	r.cmd = &cobra.Command{
		Use:               "recliner",
		Short:             "recliner reads and writes CouchDB documents",
		Long:              `This tool drives the recliner document engine: conflict-retrying writes, generated views and Mango queries.`,
		PersistentPreRunE: r.init,
		RunE:              r.RunE,
	}
	r.cmd.SetOut(stdout)

	pf := r.cmd.PersistentFlags()

	r.fmt.ConfigFlags(pf)
	pf.StringVar(&r.confFile, "config", config.DefaultFile, "Path to config file to use for CLI requests")
	pf.BoolVar(&r.debug, "debug", false, "Enable debug output")
	pf.Uint64(config.KeyMaxRetries, recliner.DefaultMaxRetries, "Retry a write up to this many times after a conflict. May also be set with RECLINER_MAX_RETRIES.")
	pf.String(config.KeyDesign, recliner.DefaultDesign, "Design document which holds generated views. May also be set with RECLINER_DESIGN.")
	pf.StringVar(&r.retryDelay, "retry-delay", "", "Delay between conflict retries. By default, retries are immediate.")
	pf.StringVar(&r.requestTimeout, "request-timeout", "", "The time limit for each request.")
	pf.StringVar(&r.connectTimeout, "connect-timeout", "", "Limits the time spent establishing a TCP connection.")

	r.cmd.AddCommand(getCmd(r))
	r.cmd.AddCommand(headCmd(r))
	r.cmd.AddCommand(putCmd(r))
	r.cmd.AddCommand(postCmd(r))
	r.cmd.AddCommand(updateCmd(r))
	r.cmd.AddCommand(upsertCmd(r))
	r.cmd.AddCommand(deleteCmd(r))
	r.cmd.AddCommand(createDBCmd(r))
	r.cmd.AddCommand(destroyDBCmd(r))
	r.cmd.AddCommand(resetDBCmd(r))
	r.cmd.AddCommand(viewCmd(r))
	r.cmd.AddCommand(findCmd(r))
	r.cmd.AddCommand(versionCmd(r))

	return r
}

func parseDuration(val string) (time.Duration, error) {
	if val == "" {
		return 0, nil
	}
	if d, err := strconv.ParseFloat(val, 64); err == nil {
		if d < 0 {
			return 0, errors.Code(errors.ErrUsage, "negative timeout not permitted")
		}
		return time.Duration(d * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, errors.Code(errors.ErrUsage, err)
	}
	if d < 0 {
		return 0, errors.Code(errors.ErrUsage, "negative timeout not permitted")
	}
	return d, nil
}

func (r *root) init(cmd *cobra.Command, args []string) error {
	r.log.SetOut(cmd.OutOrStdout())
	r.log.SetErr(cmd.ErrOrStderr())
	r.log.SetDebug(r.debug)

	r.log.Debug("Debug mode enabled")

	var err error
	r.parsedRequestTimeout, err = parseDuration(r.requestTimeout)
	if err != nil {
		return err
	}
	r.parsedConnectTimeout, err = parseDuration(r.connectTimeout)
	if err != nil {
		return err
	}
	r.parsedRetryDelay, err = parseDuration(r.retryDelay)
	if err != nil {
		return err
	}

	if err := r.conf.BindFlags(r.cmd.PersistentFlags(), config.KeyMaxRetries, config.KeyDesign); err != nil {
		return err
	}
	if err := r.conf.Read(r.confFile, r.log); err != nil {
		return err
	}
	if len(args) > 0 {
		if err := r.conf.SetURL(args[0]); err != nil {
			return err
		}
	}
	cmd.SilenceUsage = true
	return nil
}

func (r *root) client() (*recliner.Client, error) {
	dsn, err := r.conf.ServerDSN()
	if err != nil {
		return nil, err
	}
	r.log.Debugf("DSN: %s from %q", dsn, r.conf.CurrentContext)
	return recliner.New(dsn,
		recliner.OptionHTTPClient(&http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: r.parsedConnectTimeout,
				}).DialContext,
			},
			Timeout: r.parsedRequestTimeout,
		}),
		recliner.OptionUserAgent("recliner-cli/"+Version),
		recliner.OptionLogger(r.log),
		recliner.OptionMaxRetries(r.conf.MaxRetries()),
		recliner.OptionDesignName(r.conf.Design()),
		recliner.OptionBackOff(r.backOff),
	)
}

// backOff paces conflict retries.
func (r *root) backOff() backoff.BackOff {
	if r.parsedRetryDelay == 0 {
		return &backoff.ZeroBackOff{}
	}
	return backoff.NewConstantBackOff(r.parsedRetryDelay)
}

// db returns a handle to the database named by the current context.
func (r *root) db() (*recliner.DB, error) {
	client, err := r.client()
	if err != nil {
		return nil, err
	}
	name, err := r.conf.DB()
	if err != nil {
		return nil, err
	}
	return client.DB(name), nil
}

// dbDoc returns a handle to the database, and the document ID, named by the
// current context.
func (r *root) dbDoc() (*recliner.DB, string, error) {
	client, err := r.client()
	if err != nil {
		return nil, "", err
	}
	name, docID, err := r.conf.DBDoc()
	if err != nil {
		return nil, "", err
	}
	return client.DB(name), docID, nil
}

func (r *root) input(cmd *cobra.Command) *input.Input {
	in := input.New(r.stdin)
	in.ConfigFlags(cmd.Flags())
	return in
}

func (r *root) RunE(cmd *cobra.Command, _ []string) error {
	_, err := r.client()
	return err
}
