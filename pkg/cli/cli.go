package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/igolaizola/sunoplayer"
	"github.com/igolaizola/sunoplayer/pkg/web"
	"github.com/peterbourgon/ff/ffyaml"
	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"
)

func New(version, commit, date string) *ffcli.Command {
	fs := flag.NewFlagSet("sunoplayer", flag.ExitOnError)

	return &ffcli.Command{
		ShortUsage: "sunoplayer [flags] <subcommand>",
		FlagSet:    fs,
		Exec: func(context.Context, []string) error {
			return flag.ErrHelp
		},
		Subcommands: []*ffcli.Command{
			newVersionCommand(version, commit, date),
			newLoginCommand(),
			newTokenCommand(),
			newLogoutCommand(),
			newStatusCommand(),
			newTracksCommand(),
			newPlayCommand(),
			newServeCommand(),
		},
	}
}

func newVersionCommand(version, commit, date string) *ffcli.Command {
	return &ffcli.Command{
		Name:       "version",
		ShortUsage: "sunoplayer version",
		ShortHelp:  "print version",
		Exec: func(ctx context.Context, args []string) error {
			v := version
			if v == "" {
				if buildInfo, ok := debug.ReadBuildInfo(); ok {
					v = buildInfo.Main.Version
				}
			}
			if v == "" {
				v = "dev"
			}
			versionFields := []string{v}
			if commit != "" {
				versionFields = append(versionFields, commit)
			}
			if date != "" {
				versionFields = append(versionFields, date)
			}
			fmt.Println(strings.Join(versionFields, " "))
			return nil
		},
	}
}

// commonFlags registers the flags shared by every command that talks to
// the token store or the API.
func commonFlags(fs *flag.FlagSet, cfg *sunoplayer.Config) {
	_ = fs.String("config", "", "config file (optional)")

	fs.BoolVar(&cfg.Debug, "debug", false, "debug mode")
	fs.StringVar(&cfg.Account, "account", "default", "account name")
	fs.StringVar(&cfg.TokenFile, "token-file", "", "token file (defaults to the user config dir)")
	fs.StringVar(&cfg.DBType, "db-type", "", "db type (sqlite, mysql, postgres), token file is used if empty")
	fs.StringVar(&cfg.DBConn, "db-conn", "", "path for sqlite, dsn for mysql or postgres")
	fs.StringVar(&cfg.Proxy, "proxy", "", "proxy to use")
	fs.DurationVar(&cfg.Wait, "wait", 0, "minimum time between api requests")
	fs.DurationVar(&cfg.Timeout, "timeout", 2*time.Minute, "http timeout")
	fs.BoolVar(&cfg.Fingerprint, "fingerprint", false, "use a chrome tls fingerprint")
	fs.StringVar(&cfg.APIBase, "api-base", "", "api base url")
	fs.BoolVar(&cfg.Accessible, "accessible", false, "accessible prompts")
}

func newCommand(name, usage, help string, fs *flag.FlagSet, exec func(ctx context.Context, args []string) error) *ffcli.Command {
	return &ffcli.Command{
		Name:       name,
		ShortUsage: fmt.Sprintf("sunoplayer %s %s", name, usage),
		Options: []ff.Option{
			ff.WithConfigFileFlag("config"),
			ff.WithConfigFileParser(ffyaml.Parser),
			ff.WithEnvVarPrefix("SUNOPLAYER"),
		},
		ShortHelp: help,
		FlagSet:   fs,
		Exec:      exec,
	}
}

func newLoginCommand() *ffcli.Command {
	cmd := "login"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	cfg := &sunoplayer.Config{}
	commonFlags(fs, cfg)

	return newCommand(cmd, "[flags]", "sign in and paste the session token", fs, func(ctx context.Context, args []string) error {
		return sunoplayer.Login(ctx, cfg)
	})
}

func newTokenCommand() *ffcli.Command {
	cmd := "token"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	cfg := &sunoplayer.Config{}
	commonFlags(fs, cfg)

	var value string
	fs.StringVar(&value, "value", "", "token to store, - reads it from stdin")

	return newCommand(cmd, "[flags]", "store a session token", fs, func(ctx context.Context, args []string) error {
		if value == "" && len(args) > 0 {
			value = args[0]
		}
		if value == "" {
			return errors.New("missing token value")
		}
		return sunoplayer.SetToken(ctx, cfg, value)
	})
}

func newLogoutCommand() *ffcli.Command {
	cmd := "logout"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	cfg := &sunoplayer.Config{}
	commonFlags(fs, cfg)

	return newCommand(cmd, "[flags]", "remove the stored session", fs, func(ctx context.Context, args []string) error {
		return sunoplayer.Logout(ctx, cfg)
	})
}

func newStatusCommand() *ffcli.Command {
	cmd := "status"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	cfg := &sunoplayer.Config{}
	commonFlags(fs, cfg)

	var output string
	fs.StringVar(&output, "output", "text", "output format (text, json, yaml)")

	return newCommand(cmd, "[flags]", "show the session status", fs, func(ctx context.Context, args []string) error {
		return sunoplayer.Status(ctx, cfg, output)
	})
}

func newTracksCommand() *ffcli.Command {
	cmd := "tracks"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	cfg := &sunoplayer.Config{}
	commonFlags(fs, cfg)

	var liked bool
	var page int
	var output string
	fs.BoolVar(&liked, "liked", false, "only liked tracks")
	fs.IntVar(&page, "page", 0, "feed page")
	fs.StringVar(&output, "output", "text", "output format (text, json, yaml)")

	return newCommand(cmd, "[flags]", "list playable tracks", fs, func(ctx context.Context, args []string) error {
		return sunoplayer.Tracks(ctx, cfg, liked, page, output)
	})
}

func newPlayCommand() *ffcli.Command {
	cmd := "play"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	cfg := &sunoplayer.Config{}
	commonFlags(fs, cfg)

	var liked, pick bool
	fs.BoolVar(&liked, "liked", false, "only liked tracks")
	fs.BoolVar(&pick, "pick", false, "choose the first track")
	fs.StringVar(&cfg.FFPlay, "ffplay", "ffplay", "ffplay binary")

	return newCommand(cmd, "[flags]", "play the feed", fs, func(ctx context.Context, args []string) error {
		return sunoplayer.Play(ctx, cfg, liked, pick, os.Stdin)
	})
}

func newServeCommand() *ffcli.Command {
	cmd := "serve"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	cfg := &sunoplayer.Config{}
	commonFlags(fs, cfg)

	webCfg := &web.Config{}
	var liked bool
	fs.BoolVar(&liked, "liked", false, "only liked tracks")
	fs.StringVar(&cfg.FFPlay, "ffplay", "ffplay", "ffplay binary")
	fs.StringVar(&webCfg.Addr, "addr", "127.0.0.1:1337", "address to listen on")
	fsMapVar(fs, &webCfg.Credentials, "creds", nil, "credentials to use (semicolon separated) Example: user1:pass1;user2:pass2")

	return newCommand(cmd, "[flags]", "run the local control server", fs, func(ctx context.Context, args []string) error {
		webCfg.Debug = cfg.Debug
		return sunoplayer.Serve(ctx, cfg, webCfg, liked)
	})
}

type mapValue struct {
	v *map[string]string
}

func (m *mapValue) String() string {
	if m.v == nil {
		return ""
	}
	return fmt.Sprintf("%v", map[string]string(*m.v))
}

func (m *mapValue) Set(value string) error {
	if m.v == nil {
		return errors.New("nil map reference")
	}
	pairs := strings.Split(value, ";")
	for _, pair := range pairs {
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid map entry: %s", pair)
		}
		(*m.v)[parts[0]] = parts[1]
	}
	return nil
}

func fsMapVar(fs *flag.FlagSet, p *map[string]string, name string, value map[string]string, usage string) {
	if value == nil {
		value = make(map[string]string)
	}
	*p = value
	fs.Var(&mapValue{p}, name, usage)
}
