package main

import (
	"fmt"
	"io"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/kannanru/studentfee/client/config"
	"github.com/kannanru/studentfee/client/gateway"
	"github.com/kannanru/studentfee/client/services"
)

var readPasswordFunc = term.ReadPassword // mocked in tests

// app is what every command runs against; PersistentPreRunE fills it in.
type app struct {
	out    io.Writer
	errOut io.Writer
	v      *viper.Viper
	conf   *config.Config
	client *gateway.Client
	svc    *services.Services
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, errOut: errOut, v: viper.New()}

	root := &cobra.Command{
		Use:           "collect",
		Short:         "Collect student fees",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			conf, err := config.Load(a.v)
			if err != nil {
				return err
			}
			a.conf = conf
			a.client = gateway.NewClient(conf.Server, gateway.NewFileTokenStore(conf.TokenFile))
			a.client.HTTP.Timeout = conf.Timeout
			a.client.OnUnauthorized = func() {
				fmt.Fprintln(a.errOut, "session expired, run `collect login`")
			}
			a.svc = services.New(a.client)
			return nil
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.String("server", "", "backend base URL (default http://localhost:8000)")
	flags.String("token-file", "", "where the session token is kept")
	flags.String("journal", "", "reconciliation journal database")
	flags.String("checkout-secret", "", "merchant secret used to sign simulated checkouts")
	for _, name := range []string{"server", "token-file", "journal", "checkout-secret"} {
		_ = a.v.BindPFlag(name, flags.Lookup(name))
	}

	root.AddCommand(
		a.loginCmd(),
		a.logoutCmd(),
		a.studentsCmd(),
		a.collectCmd(),
		a.overviewCmd(),
		a.watchCmd(),
		a.reconciliationsCmd(),
	)

	return root
}

func promptPassword(w io.Writer) (string, error) {
	fmt.Fprint(w, "Password: ")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(w)
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}
